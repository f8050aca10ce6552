package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"resume-matcher/internal/domain"
)

var errNoJSON = errors.New("no JSON object in response")

// parseMatch reads the score JSON leniently: code fences and surrounding prose
// are ignored, and missing fields default to zero or empty.
func parseMatch(raw string) (domain.MatchResult, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return domain.MatchResult{}, errNoJSON
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &data); err != nil {
			return domain.MatchResult{}, fmt.Errorf("parse gemini response: %w", err)
		}
	}
	if data == nil {
		return domain.MatchResult{}, errNoJSON
	}

	score := coerceFloat(data["match_score"])
	if math.IsNaN(score) {
		score = 0
	}
	score = math.Max(0, math.Min(100, score))

	return domain.MatchResult{
		MatchScore:      score,
		KeywordsMissing: coerceStrings(data["keywords_missing"]),
		KeywordsPresent: coerceStrings(data["keywords_present"]),
		Suggestions:     coerceStrings(data["suggestions"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "%"), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceStrings(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
