package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"resume-matcher/internal/ai"
	"resume-matcher/internal/domain"
	"resume-matcher/internal/metrics"
)

const summarySectionLength = 500

var skillsHeadings = []string{"skills", "technical skills", "core competencies", "expertise"}

// JobScraper fetches the visible description text behind a job posting URL.
type JobScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

type AnalyzeRequest struct {
	ResumeText     string
	JobURL         string
	JobDescription string
}

type AnalysisOutcome struct {
	Match             domain.MatchResult
	RewrittenSections map[string]string
	ResumeText        string
	JobDescription    string
	// Charged is false when the score is the fallback placeholder.
	Charged   bool
	RecordID  int64
	Remaining domain.Quota
}

type RewriteRequest struct {
	Section        string
	ResumeText     string
	JobDescription string
}

type CoverLetterRequest struct {
	ResumeText     string
	JobDescription string
	RecipientName  string
	CompanyName    string
}

// AnalysisService orchestrates the model-backed operations.
type AnalysisService interface {
	Analyze(ctx context.Context, credential string, req AnalyzeRequest) (*AnalysisOutcome, error)
	RewriteSection(ctx context.Context, credential string, req RewriteRequest) (string, error)
	CoverLetter(ctx context.Context, credential string, req CoverLetterRequest) (string, error)
}

type analysisService struct {
	identities IdentityResolver
	ledger     QuotaLedger
	assistant  ai.Assistant
	scraper    JobScraper
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

type AnalysisServiceOptions struct {
	Identities IdentityResolver
	Ledger     QuotaLedger
	Assistant  ai.Assistant
	Scraper    JobScraper
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

func NewAnalysisService(opts AnalysisServiceOptions) AnalysisService {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &analysisService{
		identities: opts.Identities,
		ledger:     opts.Ledger,
		assistant:  opts.Assistant,
		scraper:    opts.Scraper,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

func (s *analysisService) Analyze(ctx context.Context, credential string, req AnalyzeRequest) (*AnalysisOutcome, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	decision, err := s.ledger.Evaluate(ctx, user)
	if err != nil {
		return nil, err
	}
	s.metrics.QuotaDecision("analyze", decision.Allowed)
	if !decision.Allowed {
		s.metrics.Analysis("rejected")
		s.logger.WithFields(logrus.Fields{"user_id": user.ID, "remaining": decision.Remaining.String()}).Info(decision.Reason)
		return nil, domain.ErrQuotaExceeded
	}

	resumeText := strings.TrimSpace(req.ResumeText)
	if resumeText == "" {
		return nil, fmt.Errorf("%w: resume text is required", domain.ErrInput)
	}
	jobText, err := s.jobText(ctx, req)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "tier": user.Tier})

	score := s.assistant.Score(ctx, resumeText, jobText)
	outcome := &AnalysisOutcome{
		Match:          score.Match,
		ResumeText:     resumeText,
		JobDescription: jobText,
	}

	switch score.Kind {
	case ai.ScoreOK:
		s.metrics.ModelCall("score", "ok")
		rec := score.Match.Record(user.ID)
		if err := s.ledger.Commit(ctx, user, rec); err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				s.metrics.Analysis("rejected")
			}
			return nil, err
		}
		outcome.Charged = true
		outcome.RecordID = rec.ID
		s.metrics.Analysis("charged")
		log.WithFields(logrus.Fields{"analysis_id": rec.ID, "match_score": rec.MatchScore}).Info("analysis recorded")
	default:
		s.metrics.ModelCall("score", "fallback")
		s.metrics.Analysis("fallback")
		log.WithError(score.Cause).Warn("scoring fell back to placeholder, usage not charged")
	}

	outcome.RewrittenSections = s.rewriteSections(ctx, log, resumeText, jobText)
	outcome.Remaining = s.ledger.Remaining(user)
	return outcome, nil
}

func (s *analysisService) RewriteSection(ctx context.Context, credential string, req RewriteRequest) (string, error) {
	if _, err := s.premiumUser(ctx, credential, "rewrite"); err != nil {
		return "", err
	}

	section := strings.TrimSpace(req.Section)
	resumeText := strings.TrimSpace(req.ResumeText)
	jobText := strings.TrimSpace(req.JobDescription)
	if section == "" || resumeText == "" || jobText == "" {
		return "", fmt.Errorf("%w: section, resume text and job description are required", domain.ErrInput)
	}

	text, err := s.assistant.Rewrite(ctx, section, resumeText, jobText)
	if err != nil {
		s.metrics.ModelCall("rewrite", "error")
		return "", fmt.Errorf("%w: rewrite section: %w", domain.ErrUpstream, err)
	}
	s.metrics.ModelCall("rewrite", "ok")
	return text, nil
}

func (s *analysisService) CoverLetter(ctx context.Context, credential string, req CoverLetterRequest) (string, error) {
	if _, err := s.premiumUser(ctx, credential, "cover_letter"); err != nil {
		return "", err
	}

	in := ai.CoverLetterInput{
		ResumeText:     strings.TrimSpace(req.ResumeText),
		JobDescription: strings.TrimSpace(req.JobDescription),
		RecipientName:  strings.TrimSpace(req.RecipientName),
		CompanyName:    strings.TrimSpace(req.CompanyName),
	}
	if in.ResumeText == "" || in.JobDescription == "" {
		return "", fmt.Errorf("%w: resume text and job description are required", domain.ErrInput)
	}

	letter, err := s.assistant.CoverLetter(ctx, in)
	if err != nil {
		s.metrics.ModelCall("cover_letter", "error")
		return "", fmt.Errorf("%w: generate cover letter: %w", domain.ErrUpstream, err)
	}
	s.metrics.ModelCall("cover_letter", "ok")
	return letter, nil
}

func (s *analysisService) premiumUser(ctx context.Context, credential, operation string) (*domain.User, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	allowed := domain.PremiumAllowed(user.Tier)
	s.metrics.QuotaDecision(operation, allowed)
	if !allowed {
		return nil, domain.ErrEntitlement
	}
	return user, nil
}

func (s *analysisService) jobText(ctx context.Context, req AnalyzeRequest) (string, error) {
	if text := strings.TrimSpace(req.JobDescription); text != "" {
		return text, nil
	}
	url := strings.TrimSpace(req.JobURL)
	if url == "" {
		return "", fmt.Errorf("%w: job description or job url is required", domain.ErrInput)
	}
	if s.scraper == nil {
		return "", fmt.Errorf("%w: job url scraping is not configured", domain.ErrInput)
	}

	text, err := s.scraper.Scrape(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no job description found at %s", domain.ErrInput, url)
	}
	return text, nil
}

// rewriteSections rewrites the summary and skills blocks. A section whose
// rewrite fails keeps its original text.
func (s *analysisService) rewriteSections(ctx context.Context, log logrus.FieldLogger, resumeText, jobText string) map[string]string {
	sections := []struct {
		name string
		text string
	}{
		{"summary", summarySection(resumeText)},
		{"skills", skillsSection(resumeText)},
	}

	out := make(map[string]string, len(sections))
	for _, sec := range sections {
		if sec.text == "" {
			continue
		}
		rewritten, err := s.assistant.Rewrite(ctx, sec.text, resumeText, jobText)
		if err != nil || strings.TrimSpace(rewritten) == "" {
			s.metrics.ModelCall("rewrite", "error")
			log.WithError(err).WithField("section", sec.name).Warn("keeping original section text")
			out[sec.name] = sec.text
			continue
		}
		s.metrics.ModelCall("rewrite", "ok")
		out[sec.name] = rewritten
	}
	return out
}

func summarySection(resumeText string) string {
	runes := []rune(resumeText)
	if len(runes) > summarySectionLength {
		return string(runes[:summarySectionLength])
	}
	return resumeText
}

// skillsSection returns the first line naming a skills heading plus up to nine
// following lines, lower-cased.
func skillsSection(resumeText string) string {
	lines := strings.Split(strings.ToLower(resumeText), "\n")
	for i, line := range lines {
		for _, heading := range skillsHeadings {
			if strings.Contains(line, heading) {
				end := min(i+10, len(lines))
				return strings.Join(lines[i:end], "\n")
			}
		}
	}
	return ""
}
