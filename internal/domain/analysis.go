package domain

import "time"

// AnalysisRecord is the receipt of one charged resume analysis.
type AnalysisRecord struct {
	ID              int64
	UserID          int64
	MatchScore      float64
	Suggestions     []string
	KeywordsMissing []string
	KeywordsPresent []string
	CreatedAt       time.Time
}

// MatchResult is the scored comparison of a resume against a job description.
type MatchResult struct {
	MatchScore      float64  `json:"match_score"`
	KeywordsMissing []string `json:"keywords_missing"`
	KeywordsPresent []string `json:"keywords_present"`
	Suggestions     []string `json:"suggestions"`
}

// Record turns a match result into an analysis record owned by userID.
func (m MatchResult) Record(userID int64) *AnalysisRecord {
	return &AnalysisRecord{
		UserID:          userID,
		MatchScore:      m.MatchScore,
		Suggestions:     nonNil(m.Suggestions),
		KeywordsMissing: nonNil(m.KeywordsMissing),
		KeywordsPresent: nonNil(m.KeywordsPresent),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
