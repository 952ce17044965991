// Package store provides SQLite-backed persistence for the memory engine:
// CRUD over memory rows, raw JSON/FTS queries, and transactional scopes.
package store

import "encoding/json"

// Classification is the fixed enumeration a Memory's classification belongs to.
type Classification string

const (
	ClassEssential    Classification = "essential"
	ClassContextual   Classification = "contextual"
	ClassConversation Classification = "conversational"
	ClassReference    Classification = "reference"
	ClassPersonal     Classification = "personal"
)

var validClassifications = map[Classification]bool{
	ClassEssential: true, ClassContextual: true, ClassConversation: true,
	ClassReference: true, ClassPersonal: true,
}

// IsValidClassification reports whether c is one of the fixed enum values.
func IsValidClassification(c Classification) bool { return validClassifications[c] }

// Importance is the fixed enumeration an importance level belongs to.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

var validImportances = map[Importance]bool{
	ImportanceCritical: true, ImportanceHigh: true, ImportanceMedium: true, ImportanceLow: true,
}

// IsValidImportance reports whether i is one of the fixed enum values.
func IsValidImportance(i Importance) bool { return validImportances[i] }

// RetentionType selects which physical table a Memory lives in.
type RetentionType string

const (
	RetentionShortTerm RetentionType = "short_term"
	RetentionLongTerm  RetentionType = "long_term"
)

// Memory is the central persisted entity: one classified exchange.
type Memory struct {
	ID                   string         `json:"id"`
	Namespace            string         `json:"namespace"`
	SearchableContent    string         `json:"searchableContent"`
	Summary              string         `json:"summary"`
	Classification       Classification `json:"classification"`
	Importance           Importance     `json:"importance"`
	ImportanceScore      float64        `json:"importanceScore"`
	ConfidenceScore      float64        `json:"confidenceScore"`
	Topic                string         `json:"topic,omitempty"`
	Entities             []string       `json:"entities"`
	Keywords             []string       `json:"keywords"`
	CategoryPrimary      string         `json:"categoryPrimary"`
	ClassificationReason string         `json:"classificationReason"`
	RetentionType        RetentionType  `json:"retentionType"`
	ExtractionTimestamp  int64          `json:"extractionTimestamp"`
	CreatedAt            int64          `json:"createdAt"`
	DuplicateOf          string         `json:"duplicateOf,omitempty"`
	RelatedMemories      []string       `json:"relatedMemoriesJson,omitempty"`
	ProcessedData        map[string]any `json:"processedData,omitempty"`
	// ConsolidationTimestamp is an explicit column instead of reusing
	// ExtractionTimestamp as a last-activity proxy.
	ConsolidationTimestamp int64 `json:"consolidationTimestamp,omitempty"`
}

// Clone returns a deep-enough copy for snapshot/rollback purposes.
func (m *Memory) Clone() *Memory {
	c := *m
	c.Entities = append([]string(nil), m.Entities...)
	c.Keywords = append([]string(nil), m.Keywords...)
	c.RelatedMemories = append([]string(nil), m.RelatedMemories...)
	if m.ProcessedData != nil {
		c.ProcessedData = make(map[string]any, len(m.ProcessedData))
		for k, v := range m.ProcessedData {
			c.ProcessedData[k] = v
		}
	}
	return &c
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func marshalAny(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalAny(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ChatHistory is the capped capture-layer audit row.
type ChatHistory struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// FTSResult is one row returned by RawFtsQuery.
type FTSResult struct {
	ID    string
	Score float64
}

// Patch describes a partial update to a Memory row (Store.UpdateMany).
// Only non-nil fields are applied.
type Patch struct {
	Summary              *string
	Classification       *Classification
	Importance           *Importance
	ImportanceScore      *float64
	ConfidenceScore      *float64
	Topic                *string
	CategoryPrimary      *string
	ClassificationReason *string
	ProcessedData        map[string]any
}
