// Package capture implements the after-call hook that turns a chat or
// embedding exchange into a stored Memory without ever changing the
// provider call's own return value.
package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kittclouds/memori/internal/classifier"
	"github.com/kittclouds/memori/internal/store"
)

const (
	userHistoryCap      = 500
	assistantHistoryCap = 2000
	defaultHookTimeout  = 30 * time.Second
)

// Policy gates which exchanges the capture layer acts on.
type Policy struct {
	ChatMemoryEnabled      bool
	EmbeddingMemoryEnabled bool
	// HookTimeout bounds hook latency; zero uses defaultHookTimeout.
	HookTimeout time.Duration
}

func (p Policy) timeout() time.Duration {
	if p.HookTimeout > 0 {
		return p.HookTimeout
	}
	return defaultHookTimeout
}

// FailureLogger receives failures the hook swallows instead of surfacing
// to the provider call. A nil logger passed to NewHook falls back to a
// plain printf.
type FailureLogger func(format string, args ...any)

// Hook wraps provider calls with AfterChat/AfterEmbedding.
type Hook struct {
	store      *store.Store
	classifier *classifier.Service
	policy     Policy
	log        FailureLogger
	now        func() time.Time
}

// NewHook builds a Hook. log may be nil, in which case failures are printed
// with fmt.Printf (see FailureLogger doc comment).
func NewHook(s *store.Store, c *classifier.Service, policy Policy, log FailureLogger) *Hook {
	if log == nil {
		log = func(format string, args ...any) { fmt.Printf("[capture] "+format+"\n", args...) }
	}
	return &Hook{store: s, classifier: c, policy: policy, log: log, now: time.Now}
}

// AfterChat runs after a chat completion. It never alters the response and
// never blocks the caller past the configured hook timeout; it fires the
// capture+persist pipeline in its own goroutine.
func (h *Hook) AfterChat(namespace, lastUserMessage, assistantContent string) {
	if !h.policy.ChatMemoryEnabled || lastUserMessage == "" || assistantContent == "" {
		return
	}
	go h.CaptureNow(namespace, lastUserMessage, assistantContent, nil)
}

// AfterEmbedding runs after an embedding call: it synthesizes a surrogate
// exchange describing the embedding request, then submits it through the
// same classify+persist pipeline as a chat exchange.
func (h *Hook) AfterEmbedding(namespace string, input []string) {
	if !h.policy.EmbeddingMemoryEnabled || len(input) == 0 {
		return
	}
	surrogateUser := "embedding request over: " + joinPreview(input)
	surrogateAssistant := "embedding computed"
	go h.CaptureNow(namespace, surrogateUser, surrogateAssistant, map[string]any{"kind": "embedding"})
}

func joinPreview(input []string) string {
	if len(input) == 1 {
		return input[0]
	}
	out := input[0]
	for _, s := range input[1:] {
		out += "; " + s
	}
	return out
}

// CaptureNow runs classify()+persist() under the hook timeout. It is the
// body of the goroutine AfterChat/AfterEmbedding fire, exported so it can
// also be driven synchronously (tests, a caller that wants to await
// completion for diagnostics). Its own errors are logged via h.log and
// never returned; the hook invariant that capture failures never surface
// to a provider call holds regardless of how CaptureNow is invoked.
func (h *Hook) CaptureNow(namespace, userInput, assistantOutput string, exchangeContext map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), h.policy.timeout())
	defer cancel()

	processed := h.classifier.Classify(ctx, userInput, assistantOutput, exchangeContext)

	chatID := generateID()
	now := h.now().UnixMilli()
	if err := h.persist(ctx, chatID, namespace, userInput, assistantOutput, processed, now); err != nil {
		h.log("persist failed for chat %s: %v", chatID, err)
	}
}

// persist writes the ChatHistory and Memory rows within a single
// transaction: ChatHistory capped at 500/2000 chars, then the Memory row.
// A ChatHistory write failure is logged and ignored; a Memory write
// failure fails persist, which the caller logs but never surfaces to the
// provider call.
func (h *Hook) persist(ctx context.Context, chatID, namespace, userInput, assistantOutput string, processed store.Memory, now int64) error {
	return h.store.Txn(ctx, namespace, func(tx *store.Tx) error {
		userHistory := truncate(userInput, userHistoryCap)
		assistantHistory := truncate(assistantOutput, assistantHistoryCap)

		if err := tx.InsertChatHistory(ctx, &store.ChatHistory{
			ID: chatID, Namespace: namespace, Role: "user", Content: userHistory, CreatedAt: now,
		}); err != nil {
			h.log("chat history insert (user) failed: %v", err)
		}
		if err := tx.InsertChatHistory(ctx, &store.ChatHistory{
			ID: chatID + "-assistant", Namespace: namespace, Role: "assistant", Content: assistantHistory, CreatedAt: now,
		}); err != nil {
			h.log("chat history insert (assistant) failed: %v", err)
		}

		processed.ID = generateID()
		processed.Namespace = namespace
		processed.SearchableContent = userInput + "\n" + assistantOutput
		processed.RetentionType = store.RetentionShortTerm
		processed.ExtractionTimestamp = now
		processed.CreatedAt = now

		if err := tx.Insert(ctx, &processed); err != nil {
			return fmt.Errorf("capture: insert memory: %w", err)
		}
		return nil
	})
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
