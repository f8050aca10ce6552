package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestParseMatch(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		score   float64
		missing int
		wantErr bool
	}{
		{name: "plain", raw: `{"match_score": 72.5, "keywords_missing": ["AWS", "Docker"]}`, score: 72.5, missing: 2},
		{name: "fenced", raw: "```json\n{\"match_score\": 90}\n```", score: 90},
		{name: "prose around", raw: "Here you go:\n{\"match_score\": \"64\"}\nThanks!", score: 64},
		{name: "percent string", raw: `{"match_score": "81%"}`, score: 81},
		{name: "missing fields", raw: `{}`, score: 0},
		{name: "clamped", raw: `{"match_score": 140}`, score: 100},
		{name: "not json", raw: "no idea", wantErr: true},
		{name: "broken json", raw: "{\"match_score\": }", wantErr: true},
		{name: "array", raw: `[1, 2]`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMatch(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.MatchScore != tc.score || len(got.KeywordsMissing) != tc.missing {
				t.Fatalf("unexpected result %+v", got)
			}
			if got.KeywordsPresent == nil || got.Suggestions == nil {
				t.Fatalf("expected non-nil lists, got %+v", got)
			}
		})
	}
}

type stubLister struct {
	names []string
	err   error
}

func (s stubLister) GenerativeModels(context.Context) ([]string, error) {
	return s.names, s.err
}

func TestResolveModel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	cases := []struct {
		name     string
		lister   ModelLister
		override string
		want     string
	}{
		{name: "override", lister: stubLister{names: []string{"models/gemini-2.5-pro"}}, override: " models/custom ", want: "models/custom"},
		{name: "preferred order", lister: stubLister{names: []string{"models/gemini-2.5-pro", "models/gemini-2.0-flash-001"}}, want: "models/gemini-2.0-flash-001"},
		{name: "any gemini", lister: stubLister{names: []string{"models/embedding-001", "models/Gemini-Experimental"}}, want: "models/Gemini-Experimental"},
		{name: "nothing usable", lister: stubLister{names: []string{"models/embedding-001"}}, want: FallbackModel},
		{name: "listing fails", lister: stubLister{err: errors.New("forbidden")}, want: FallbackModel},
		{name: "no lister", lister: nil, want: FallbackModel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveModel(ctx, tc.lister, tc.override, logger); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
