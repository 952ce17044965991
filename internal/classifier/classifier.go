// Package classifier calls an LLM to tag a chat exchange with
// {classification, importance, entities, ...} and returns a storable Memory.
//
// A Provider enum selects which ChatBackend answers ChatCompletion, rather
// than one struct per provider. Concrete wire clients (OpenAI/Anthropic/
// Ollama HTTP code) plug into the ChatBackend seam from outside.
package classifier

import (
	"context"
	"fmt"

	"github.com/kittclouds/memori/internal/store"
)

// Provider selects which backend Service.ChatCompletion dispatches to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	// ProviderFake answers from an in-memory ChatBackend; used by tests and
	// by callers that supply a deterministic stand-in for a real model.
	ProviderFake Provider = "fake"
)

// ChatBackend is the capability a provider must offer, narrowed to the
// single completion call Classify needs from it.
type ChatBackend interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds the active provider selection and its model.
type Config struct {
	Provider Provider
	// Model is passed through to whichever backend is registered for
	// Provider; HTTPBackend uses it as the request body's "model" field.
	Model string
}

// Service dispatches Classify calls to the backend registered for its
// configured Provider.
type Service struct {
	config   Config
	backends map[Provider]ChatBackend
}

// NewService builds a Service. backends maps each Provider this deployment
// supports to the ChatBackend that answers for it; a Provider with no
// registered backend fails at call time, not at construction.
func NewService(config Config, backends map[Provider]ChatBackend) *Service {
	return &Service{config: config, backends: backends}
}

// UpdateConfig swaps the active provider/model without rebuilding Service.
func (s *Service) UpdateConfig(config Config) { s.config = config }

// ChatCompletion dispatches to the backend registered for the configured
// Provider.
func (s *Service) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	backend, ok := s.backends[s.config.Provider]
	if !ok {
		return "", fmt.Errorf("classifier: no backend registered for provider %q", s.config.Provider)
	}
	return backend.ChatCompletion(ctx, systemPrompt, userPrompt)
}

const classifySystemPrompt = `You classify a single chat exchange for a long-term memory store.
Respond with a single JSON object with the fields: classification (essential|contextual|conversational|reference|personal),
importance (critical|high|medium|low), importanceScore (0-1), confidenceScore (0-1), topic, entities (array of strings),
keywords (array of strings), categoryPrimary, classificationReason, summary.`

// Classify tags one exchange and returns a storable Memory. A backend call
// failure or unparsable response never returns an error to the caller; both
// fall back to the deterministic fallback Memory, since the capture layer
// depends on Classify always producing something storable.
func (s *Service) Classify(ctx context.Context, userInput, assistantOutput string, exchangeContext map[string]any) store.Memory {
	raw, err := s.ChatCompletion(ctx, classifySystemPrompt, buildUserPrompt(userInput, assistantOutput, exchangeContext))
	if err != nil {
		return fallbackMemory(userInput)
	}
	return parseOrFallback(raw, userInput)
}
