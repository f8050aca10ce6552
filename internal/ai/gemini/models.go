package gemini

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// FallbackModel is used when discovery fails or finds nothing usable.
const FallbackModel = "models/gemini-2.5-flash"

var preferredModels = []string{
	"models/gemini-2.5-flash",
	"models/gemini-2.0-flash-001",
	"models/gemini-flash-latest",
	"models/gemini-2.5-flash-lite",
	"models/gemini-2.5-pro",
	"models/gemini-pro-latest",
}

// ModelLister returns the names of models that support content generation.
type ModelLister interface {
	GenerativeModels(ctx context.Context) ([]string, error)
}

type clientModelLister struct {
	client *genai.Client
}

func NewModelLister(client *genai.Client) ModelLister {
	return clientModelLister{client: client}
}

func (l clientModelLister) GenerativeModels(ctx context.Context) ([]string, error) {
	var names []string
	for model, err := range l.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if model == nil || !slices.Contains(model.SupportedActions, "generateContent") {
			continue
		}
		names = append(names, model.Name)
	}
	return names, nil
}

// ResolveModel picks the model used for the process lifetime. A non-empty
// override wins; otherwise the first preferred model the API offers, then any
// gemini model, then FallbackModel.
func ResolveModel(ctx context.Context, lister ModelLister, override string, logger logrus.FieldLogger) string {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if override = strings.TrimSpace(override); override != "" {
		logger.WithField("model", override).Info("using configured gemini model")
		return override
	}
	if lister == nil {
		return FallbackModel
	}

	available, err := lister.GenerativeModels(ctx)
	if err != nil {
		logger.WithError(err).WithField("model", FallbackModel).Warn("model discovery failed, using fallback")
		return FallbackModel
	}

	model := chooseModel(available)
	logger.WithFields(logrus.Fields{"model": model, "available": len(available)}).Info("resolved gemini model")
	return model
}

func chooseModel(available []string) string {
	for _, preferred := range preferredModels {
		if slices.Contains(available, preferred) {
			return preferred
		}
	}
	for _, name := range available {
		if strings.Contains(strings.ToLower(name), "gemini") {
			return name
		}
	}
	return FallbackModel
}
