package store

import "github.com/kittclouds/memori/internal/errs"

// Length bounds every write method enforces.
const (
	maxIDLength      = 100
	maxContentLength = 10000
)

func sanitizeID(field, id string) error {
	if id == "" {
		return errs.Validation(field, id, "non_empty", "id must not be empty")
	}
	if len(id) > maxIDLength {
		return errs.Validation(field, id, "max_length", "id exceeds 100 characters")
	}
	return nil
}

func sanitizeContent(field, content string) error {
	if len(content) > maxContentLength {
		return errs.Validation(field, content, "max_length", "content exceeds 10000 characters")
	}
	return nil
}

func validateMemory(m *Memory) error {
	if err := sanitizeID("id", m.ID); err != nil {
		return err
	}
	if err := sanitizeID("namespace", m.Namespace); err != nil {
		return err
	}
	if err := sanitizeContent("searchableContent", m.SearchableContent); err != nil {
		return err
	}
	if !IsValidClassification(m.Classification) {
		return errs.Validation("classification", m.Classification, "enum", "unknown classification")
	}
	if !IsValidImportance(m.Importance) {
		return errs.Validation("importance", m.Importance, "enum", "unknown importance")
	}
	// Invariant 1: duplicateOf and a non-empty relatedMemoriesJson are mutually exclusive.
	if m.DuplicateOf != "" && len(m.RelatedMemories) > 0 {
		return errs.Validation("duplicateOf", m.DuplicateOf, "mutually_exclusive",
			"a row cannot be both a duplicate and a primary")
	}
	// Invariant 3: no self-reference.
	if m.DuplicateOf == m.ID && m.DuplicateOf != "" {
		return errs.Validation("duplicateOf", m.DuplicateOf, "no_self_reference",
			"memory cannot be its own duplicateOf")
	}
	return nil
}
