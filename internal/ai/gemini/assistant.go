package gemini

import (
	"context"
	"fmt"
	"strings"

	_ "embed"

	"github.com/sirupsen/logrus"

	"resume-matcher/internal/ai"
)

const (
	maxScoreResumeRunes   = 5000
	maxScoreJobRunes      = 3000
	maxRewriteResumeRunes = 1000
	maxLetterResumeRunes  = 2000

	parseFailureNote = "Error parsing AI response. Please try again."
)

var (
	scoreParams   = Params{Temperature: 0.3, MaxOutputTokens: 1000}
	rewriteParams = Params{Temperature: 0.7, MaxOutputTokens: 500}
	letterParams  = Params{Temperature: 0.7, MaxOutputTokens: 800}
)

//go:embed prompts/score.md
var scoreTemplate string

//go:embed prompts/rewrite.md
var rewriteTemplate string

//go:embed prompts/cover_letter.md
var coverLetterTemplate string

type completer interface {
	Generate(ctx context.Context, prompt string, params Params) (ai.Completion, error)
}

// Assistant implements ai.Assistant on top of a Gemini generator.
type Assistant struct {
	generator completer
	logger    logrus.FieldLogger
}

func NewAssistant(generator completer, logger logrus.FieldLogger) *Assistant {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Assistant{generator: generator, logger: logger}
}

var _ ai.Assistant = (*Assistant)(nil)

func (a *Assistant) Score(ctx context.Context, resumeText, jobText string) ai.ScoreResult {
	prompt := fill(scoreTemplate,
		"{{RESUME}}", truncate(resumeText, maxScoreResumeRunes),
		"{{JOB}}", truncate(jobText, maxScoreJobRunes),
	)

	completion, err := a.generator.Generate(ctx, prompt, scoreParams)
	if err == nil {
		err = completion.Err()
	}
	if err != nil {
		a.logger.WithError(err).Warn("score request failed")
		return ai.Fallback(err, fmt.Sprintf("Error in AI analysis: %v. Please try again.", err))
	}

	match, err := parseMatch(completion.Text)
	if err != nil {
		a.logger.WithError(err).WithField("response_preview", truncateForLog(completion.Text, maxLogPreview)).Warn("score response unparseable")
		return ai.Fallback(err, parseFailureNote)
	}
	return ai.ScoreResult{Kind: ai.ScoreOK, Match: match}
}

func (a *Assistant) Rewrite(ctx context.Context, section, resumeText, jobText string) (string, error) {
	prompt := fill(rewriteTemplate,
		"{{SECTION}}", section,
		"{{RESUME}}", truncate(resumeText, maxRewriteResumeRunes),
		"{{JOB}}", jobText,
	)
	return a.text(ctx, prompt, rewriteParams)
}

func (a *Assistant) CoverLetter(ctx context.Context, in ai.CoverLetterInput) (string, error) {
	recipient := strings.TrimSpace(in.RecipientName)
	greeting := "Dear Hiring Manager,"
	if recipient != "" {
		greeting = fmt.Sprintf("Dear %s,", recipient)
	} else {
		recipient = "Hiring Manager"
	}
	company := strings.TrimSpace(in.CompanyName)
	if company == "" {
		company = "Company"
	}

	prompt := fill(coverLetterTemplate,
		"{{RESUME}}", truncate(in.ResumeText, maxLetterResumeRunes),
		"{{JOB}}", in.JobDescription,
		"{{RECIPIENT}}", recipient,
		"{{COMPANY}}", company,
		"{{GREETING}}", greeting,
	)
	return a.text(ctx, prompt, letterParams)
}

func (a *Assistant) text(ctx context.Context, prompt string, params Params) (string, error) {
	completion, err := a.generator.Generate(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	if err := completion.Err(); err != nil {
		return "", err
	}
	return completion.Text, nil
}

// fill replaces placeholders in one pass so inserted text is never re-expanded.
func fill(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
