package ai

import (
	"context"
	"fmt"

	"resume-matcher/internal/domain"
)

// CompletionStatus classifies a raw model response.
type CompletionStatus int

const (
	CompletionOK CompletionStatus = iota
	// CompletionBlocked means the provider refused to answer, e.g. a safety block.
	CompletionBlocked
	// CompletionMalformed means the provider answered without usable text.
	CompletionMalformed
)

func (s CompletionStatus) String() string {
	switch s {
	case CompletionOK:
		return "ok"
	case CompletionBlocked:
		return "blocked"
	case CompletionMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Completion is a typed model response. Text is only meaningful for CompletionOK;
// Reason explains the other statuses.
type Completion struct {
	Status CompletionStatus
	Text   string
	Reason string
}

// Err converts a non-OK completion into an error.
func (c Completion) Err() error {
	if c.Status == CompletionOK {
		return nil
	}
	return fmt.Errorf("model response %s: %s", c.Status, c.Reason)
}

// ScoreKind tells a real score apart from the deterministic placeholder.
type ScoreKind int

const (
	ScoreOK ScoreKind = iota
	ScoreFallback
)

// FallbackMatchScore is reported when the model cannot produce a usable score.
const FallbackMatchScore = 70

// ScoreResult is either a parsed score or the fallback value. Cause is set for
// fallbacks only.
type ScoreResult struct {
	Kind  ScoreKind
	Match domain.MatchResult
	Cause error
}

// Fallback builds the placeholder score with a single explanatory suggestion.
func Fallback(cause error, note string) ScoreResult {
	return ScoreResult{
		Kind: ScoreFallback,
		Match: domain.MatchResult{
			MatchScore:      FallbackMatchScore,
			KeywordsMissing: []string{},
			KeywordsPresent: []string{},
			Suggestions:     []string{note},
		},
		Cause: cause,
	}
}

// CoverLetterInput carries the optional personalisation for a cover letter.
type CoverLetterInput struct {
	ResumeText     string
	JobDescription string
	RecipientName  string
	CompanyName    string
}

// Assistant is the model collaborator. Score never fails: it degrades to
// Fallback. Rewrite and CoverLetter return an error when no text is produced.
type Assistant interface {
	Score(ctx context.Context, resumeText, jobText string) ScoreResult
	Rewrite(ctx context.Context, section, resumeText, jobText string) (string, error)
	CoverLetter(ctx context.Context, in CoverLetterInput) (string, error)
}
