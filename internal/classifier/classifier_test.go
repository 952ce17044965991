package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyParsesWellFormedResponse(t *testing.T) {
	backend := &FakeBackend{Response: `{
		"classification": "ESSENTIAL",
		"importance": "HIGH",
		"importanceScore": 0.9,
		"confidenceScore": 0.8,
		"topic": "deployment",
		"entities": ["prod-db"],
		"keywords": ["migration"],
		"categoryPrimary": "ops",
		"classificationReason": "user stated a hard constraint",
		"summary": "user asked to avoid downtime during the migration"
	}`}
	svc := NewService(Config{Provider: ProviderFake}, map[Provider]ChatBackend{ProviderFake: backend})

	m := svc.Classify(context.Background(), "don't take down prod during migration", "noted, I'll stage it", nil)

	require.Equal(t, "essential", string(m.Classification))
	require.Equal(t, "high", string(m.Importance))
	assert.InDelta(t, 0.9, m.ImportanceScore, 0.0001)
	assert.Equal(t, "ops", m.CategoryPrimary)
	assert.Equal(t, "user asked to avoid downtime during the migration", m.Summary)
}

func TestClassifyFallsBackOnUnparsableResponse(t *testing.T) {
	backend := &FakeBackend{Response: "not json at all, the model rambled"}
	svc := NewService(Config{Provider: ProviderFake}, map[Provider]ChatBackend{ProviderFake: backend})

	m := svc.Classify(context.Background(), "this is the user input that should be truncated for the summary field because it runs past one hundred characters easily", "ok", nil)

	assert.Equal(t, "conversational", string(m.Classification))
	assert.Equal(t, "medium", string(m.Importance))
	assert.InDelta(t, 0.5, m.ImportanceScore, 0.0001)
	assert.InDelta(t, 0.5, m.ConfidenceScore, 0.0001)
	assert.Equal(t, "Fallback processing due to error", m.ClassificationReason)
	assert.True(t, len(m.Summary) > 100 && m.Summary[len(m.Summary)-3:] == "...")
}

func TestClassifyFallsBackOnUnknownEnumValue(t *testing.T) {
	backend := &FakeBackend{Response: `{"classification": "urgent", "importance": "high", "summary": "x"}`}
	svc := NewService(Config{Provider: ProviderFake}, map[Provider]ChatBackend{ProviderFake: backend})

	m := svc.Classify(context.Background(), "hello", "hi", nil)

	assert.Equal(t, "conversational", string(m.Classification))
	assert.Equal(t, "Fallback processing due to error", m.ClassificationReason)
}

func TestClassifyFallsBackOnBackendError(t *testing.T) {
	backend := &FakeBackend{Fn: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		return "", assertError{}
	}}
	svc := NewService(Config{Provider: ProviderFake}, map[Provider]ChatBackend{ProviderFake: backend})

	m := svc.Classify(context.Background(), "hi", "hello", nil)
	assert.Equal(t, "conversational", string(m.Classification))
}

func TestChatCompletionErrorsOnUnregisteredProvider(t *testing.T) {
	svc := NewService(Config{Provider: ProviderOpenAI}, map[Provider]ChatBackend{})
	_, err := svc.ChatCompletion(context.Background(), "sys", "user")
	require.Error(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "backend unavailable" }
