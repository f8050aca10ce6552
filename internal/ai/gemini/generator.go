package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"resume-matcher/internal/ai"
)

const (
	defaultMaxRetries = 3
	defaultMaxElapsed = 45 * time.Second
	maxLogPreview     = 200
)

// contentModels is the subset of genai.Models the generator needs.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Params tunes a single generation call.
type Params struct {
	Temperature     float32
	MaxOutputTokens int32
}

func (p Params) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.Temperature),
		MaxOutputTokens: p.MaxOutputTokens,
		SafetySettings:  permissiveSafety(),
	}
}

func permissiveSafety() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

type GeneratorOptions struct {
	MaxRetries int
	// MaxElapsed bounds one call including retries.
	MaxElapsed time.Duration
	Logger     logrus.FieldLogger
	// BackOff builds the retry schedule for one call. Defaults to exponential.
	BackOff func() backoff.BackOff
}

// Generator sends prompts to one Gemini model and classifies the responses.
type Generator struct {
	models     contentModels
	model      string
	maxTries   uint
	maxElapsed time.Duration
	newBackOff func() backoff.BackOff
	logger     logrus.FieldLogger
}

// NewClient creates a genai client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

func NewGenerator(client *genai.Client, model string, opts GeneratorOptions) *Generator {
	return newGenerator(client.Models, model, opts)
}

func newGenerator(models contentModels, model string, opts GeneratorOptions) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = FallbackModel
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	maxElapsed := opts.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	newBackOff := opts.BackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{
		models:     models,
		model:      model,
		maxTries:   uint(retries),
		maxElapsed: maxElapsed,
		newBackOff: newBackOff,
		logger:     logger.WithField("model", model),
	}
}

// Generate returns an error only when the model could not be reached; refusals
// and empty answers come back as a non-OK Completion.
func (g *Generator) Generate(ctx context.Context, prompt string, params Params) (ai.Completion, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ai.Completion{}, errors.New("prompt must not be empty")
	}

	g.logger.WithFields(logrus.Fields{
		"prompt_length": utf8.RuneCountInString(prompt),
		"temperature":   params.Temperature,
	}).Debug("gemini generate content request")

	cfg := params.config()
	attempt := 0
	operation := func() (*genai.GenerateContentResponse, error) {
		attempt++
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err == nil {
			return resp, nil
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		g.logger.WithError(err).WithField("attempt", attempt).Warn("gemini call failed")
		return nil, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(g.maxTries),
		backoff.WithMaxElapsedTime(g.maxElapsed),
	)
	if err != nil {
		return ai.Completion{}, fmt.Errorf("generate content: %w", err)
	}

	completion := classify(resp)
	g.logger.WithFields(logrus.Fields{
		"status":           completion.Status.String(),
		"response_preview": truncateForLog(completion.Text, maxLogPreview),
	}).Debug("gemini generate content response")
	return completion, nil
}

func (g *Generator) Model() string {
	return g.model
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// transport failures
	return true
}

func classify(resp *genai.GenerateContentResponse) ai.Completion {
	if resp == nil {
		return ai.Completion{Status: ai.CompletionMalformed, Reason: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		reason := string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			reason += ": " + fb.BlockReasonMessage
		}
		return ai.Completion{Status: ai.CompletionBlocked, Reason: reason}
	}
	if len(resp.Candidates) == 0 {
		return ai.Completion{Status: ai.CompletionMalformed, Reason: "no candidates"}
	}

	var builder strings.Builder
	var finish genai.FinishReason
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if finish == "" {
			finish = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}

	text := strings.TrimSpace(builder.String())
	if text != "" {
		return ai.Completion{Status: ai.CompletionOK, Text: text}
	}
	switch finish {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return ai.Completion{Status: ai.CompletionBlocked, Reason: "finish reason " + string(finish)}
	default:
		return ai.Completion{Status: ai.CompletionMalformed, Reason: fmt.Sprintf("no text (finish reason %q)", finish)}
	}
}

func truncateForLog(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
