package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kittclouds/memori/internal/errs"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting read/write
// helpers be written once and reused inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the relational access layer. It owns all Memory row storage;
// every other component holds transient references by id.
type Store struct {
	db    *sql.DB
	locks *namespaceLocks
}

// Open creates a Store backed by the SQLite file/DSN given, creating schema
// if absent. Use ":memory:" for an ephemeral in-process store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db, locks: newNamespaceLocks()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Tx is a transactional handle scoped to one namespace: committed on
// success, rolled back on any failure on all exit paths.
type Tx struct {
	tx        *sql.Tx
	namespace string
}

// Txn runs fn inside a single SQLite transaction, serialized against every
// other write transaction on the same namespace by a per-namespace mutex.
// On any error returned by fn, or a deadline expiry, the
// transaction rolls back and no partial write is ever visible.
func (s *Store) Txn(ctx context.Context, namespace string, fn func(*Tx) error) error {
	lock := s.locks.get(namespace)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return errs.Timeout("deadline exceeded before transaction start")
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	txn := &Tx{tx: sqlTx, namespace: namespace}
	if err := fn(txn); err != nil {
		_ = sqlTx.Rollback()
		if ctx.Err() != nil {
			return errs.Timeout("deadline exceeded during transaction")
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = sqlTx.Rollback()
		return errs.Timeout("deadline exceeded before commit")
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------
// Insert / read / update / delete
// -----------------------------------------------------------------------

func insertMemory(ctx context.Context, q querier, m *Memory) error {
	if err := validateMemory(m); err != nil {
		return err
	}
	entitiesJSON, err := marshalStrings(m.Entities)
	if err != nil {
		return err
	}
	keywordsJSON, err := marshalStrings(m.Keywords)
	if err != nil {
		return err
	}
	relatedJSON, err := marshalStrings(m.RelatedMemories)
	if err != nil {
		return err
	}
	processedJSON, err := marshalAny(m.ProcessedData)
	if err != nil {
		return err
	}

	table := memoryTable(m.RetentionType)
	_, err = q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, namespace, searchable_content, summary, classification,
			importance, importance_score, confidence_score, topic, entities_json,
			keywords_json, category_primary, classification_reason, retention_type,
			extraction_timestamp, created_at, duplicate_of, related_memories_json,
			processed_data, consolidation_timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table),
		m.ID, m.Namespace, m.SearchableContent, m.Summary, string(m.Classification),
		string(m.Importance), m.ImportanceScore, m.ConfidenceScore, m.Topic, entitiesJSON,
		keywordsJSON, m.CategoryPrimary, m.ClassificationReason, string(m.RetentionType),
		m.ExtractionTimestamp, m.CreatedAt, nullable(m.DuplicateOf), relatedJSON,
		processedJSON, nullableInt(m.ConsolidationTimestamp))
	if err != nil {
		return fmt.Errorf("store: insert memory: %w", err)
	}

	metaJSON, err := marshalAny(m.ProcessedData)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO memory_fts (memory_id, namespace, content, metadata) VALUES (?,?,?,?)`,
		m.ID, m.Namespace, m.SearchableContent, metaJSON)
	if err != nil {
		return fmt.Errorf("store: insert fts row: %w", err)
	}
	return nil
}

// Insert persists a new Memory outside of any caller-managed transaction.
func (s *Store) Insert(ctx context.Context, m *Memory) error {
	return s.Txn(ctx, m.Namespace, func(tx *Tx) error { return tx.Insert(ctx, m) })
}

// Insert persists a new Memory within tx.
func (t *Tx) Insert(ctx context.Context, m *Memory) error {
	if m.Namespace != t.namespace {
		return errs.Validation("namespace", m.Namespace, "namespace_scope", "memory namespace does not match transaction namespace")
	}
	return insertMemory(ctx, t.tx, m)
}

func scanMemoryRow(row *sql.Row) (*Memory, error) {
	return scanMemory(func(dest ...any) error { return row.Scan(dest...) })
}

func scanMemory(scan func(dest ...any) error) (*Memory, error) {
	var m Memory
	var entitiesJSON, keywordsJSON, relatedJSON, processedJSON string
	var classification, importance, retention string
	var duplicateOf sql.NullString
	var consolidationTS sql.NullInt64

	if err := scan(&m.ID, &m.Namespace, &m.SearchableContent, &m.Summary, &classification,
		&importance, &m.ImportanceScore, &m.ConfidenceScore, &m.Topic, &entitiesJSON,
		&keywordsJSON, &m.CategoryPrimary, &m.ClassificationReason, &retention,
		&m.ExtractionTimestamp, &m.CreatedAt, &duplicateOf, &relatedJSON,
		&processedJSON, &consolidationTS); err != nil {
		return nil, err
	}
	m.Classification = Classification(classification)
	m.Importance = Importance(importance)
	m.RetentionType = RetentionType(retention)
	if duplicateOf.Valid {
		m.DuplicateOf = duplicateOf.String
	}
	if consolidationTS.Valid {
		m.ConsolidationTimestamp = consolidationTS.Int64
	}
	var err error
	if m.Entities, err = unmarshalStrings(entitiesJSON); err != nil {
		return nil, err
	}
	if m.Keywords, err = unmarshalStrings(keywordsJSON); err != nil {
		return nil, err
	}
	if m.RelatedMemories, err = unmarshalStrings(relatedJSON); err != nil {
		return nil, err
	}
	if m.ProcessedData, err = unmarshalAny(processedJSON); err != nil {
		return nil, err
	}
	return &m, nil
}

const memorySelectColumns = `id, namespace, searchable_content, summary, classification,
	importance, importance_score, confidence_score, topic, entities_json,
	keywords_json, category_primary, classification_reason, retention_type,
	extraction_timestamp, created_at, duplicate_of, related_memories_json,
	processed_data, consolidation_timestamp`

// GetByID returns the Memory with id in namespace, or nil if absent.
func (s *Store) GetByID(ctx context.Context, id, namespace string) (*Memory, error) {
	return getByID(ctx, s.db, id, namespace)
}

func getByID(ctx context.Context, q querier, id, namespace string) (*Memory, error) {
	for _, table := range bothMemoryTables {
		row := q.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT %s FROM %s WHERE id = ? AND namespace = ?`, memorySelectColumns, table),
			id, namespace)
		m, err := scanMemoryRow(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: get by id: %w", err)
		}
		return m, nil
	}
	return nil, nil
}

func (t *Tx) GetByID(ctx context.Context, id string) (*Memory, error) {
	return getByID(ctx, t.tx, id, t.namespace)
}

// FindMany runs a caller-supplied, already parameterized WHERE fragment
// against both memory tables, adding the namespace scope itself, and
// returns the rows of each table ordered by created_at descending
// (short-term rows first, then long-term rows).
func (s *Store) FindMany(ctx context.Context, namespace, whereSQL string, args []any) ([]*Memory, error) {
	var out []*Memory
	for _, table := range bothMemoryTables {
		q := fmt.Sprintf(`SELECT %s FROM %s WHERE namespace = ? AND (%s) ORDER BY created_at DESC`,
			memorySelectColumns, table, whereSQL)
		fullArgs := append([]any{namespace}, args...)
		rows, err := s.db.QueryContext(ctx, q, fullArgs...)
		if err != nil {
			return nil, errs.Search("store.findMany", "query failed", err)
		}
		for rows.Next() {
			m, err := scanMemory(rows.Scan)
			if err != nil {
				rows.Close()
				return nil, errs.Search("store.findMany", "scan failed", err)
			}
			out = append(out, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errs.Search("store.findMany", "row iteration failed", err)
		}
		rows.Close()
	}
	return out, nil
}

// UpdateMany applies patch to every id, failing atomically if any id falls
// outside namespace.
func (s *Store) UpdateMany(ctx context.Context, ids []string, namespace string, patch Patch) error {
	return s.Txn(ctx, namespace, func(tx *Tx) error {
		for _, id := range ids {
			existing, err := tx.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if existing == nil {
				return errs.Validation("id", id, "namespace_scope", "id not found in namespace")
			}
			if err := tx.applyPatch(ctx, existing, patch); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Tx) applyPatch(ctx context.Context, m *Memory, patch Patch) error {
	if patch.Summary != nil {
		m.Summary = *patch.Summary
	}
	if patch.Classification != nil {
		m.Classification = *patch.Classification
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.ImportanceScore != nil {
		m.ImportanceScore = *patch.ImportanceScore
	}
	if patch.ConfidenceScore != nil {
		m.ConfidenceScore = *patch.ConfidenceScore
	}
	if patch.Topic != nil {
		m.Topic = *patch.Topic
	}
	if patch.CategoryPrimary != nil {
		m.CategoryPrimary = *patch.CategoryPrimary
	}
	if patch.ClassificationReason != nil {
		m.ClassificationReason = *patch.ClassificationReason
	}
	if patch.ProcessedData != nil {
		m.ProcessedData = patch.ProcessedData
	}
	if err := validateMemory(m); err != nil {
		return err
	}
	processedJSON, err := marshalAny(m.ProcessedData)
	if err != nil {
		return err
	}
	table := memoryTable(m.RetentionType)
	_, err = t.tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET summary=?, classification=?, importance=?, importance_score=?,
			confidence_score=?, topic=?, category_primary=?, classification_reason=?,
			processed_data=? WHERE id=? AND namespace=?`, table),
		m.Summary, string(m.Classification), string(m.Importance), m.ImportanceScore,
		m.ConfidenceScore, m.Topic, m.CategoryPrimary, m.ClassificationReason,
		processedJSON, m.ID, m.Namespace)
	if err != nil {
		return fmt.Errorf("store: update memory: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE memory_fts SET metadata = ? WHERE memory_id = ?`,
		processedJSON, m.ID)
	return err
}

// DeleteMany removes rows by id, scoped to namespace.
func (s *Store) DeleteMany(ctx context.Context, ids []string, namespace string) error {
	return s.Txn(ctx, namespace, func(tx *Tx) error {
		for _, id := range ids {
			if err := tx.delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Tx) delete(ctx context.Context, id string) error {
	for _, table := range bothMemoryTables {
		if _, err := t.tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND namespace = ?`, table),
			id, t.namespace); err != nil {
			return fmt.Errorf("store: delete memory: %w", err)
		}
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE memory_id = ? AND namespace = ?`,
		id, t.namespace)
	return err
}

// RawFtsQuery runs a full-text query over the FTS mirror, using bm25()
// ranking when the driver supports it.
func (s *Store) RawFtsQuery(ctx context.Context, term, namespace string, limit int) ([]FTSResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, bm25(memory_fts) AS score
		FROM memory_fts
		WHERE memory_fts MATCH ? AND namespace = ?
		ORDER BY score
		LIMIT ?`, term, namespace, limit)
	if err != nil {
		return nil, errs.Search("store.rawFtsQuery", "fts query failed", err)
	}
	defer rows.Close()

	var out []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, errs.Search("store.rawFtsQuery", "scan failed", err)
		}
		// bm25() returns lower-is-better; normalize to the [0,1]
		// higher-is-better convention used throughout the search result shape.
		r.Score = normalizeBM25(r.Score)
		out = append(out, r)
	}
	return out, rows.Err()
}

func normalizeBM25(raw float64) float64 {
	if raw >= 0 {
		return 0
	}
	score := 1 / (1 - raw)
	if score > 1 {
		return 1
	}
	return score
}

// maxChatContentLength is the upper content cap; callers apply the
// role-specific 500-char cap before calling InsertChatHistory.
const maxChatContentLength = 2000

// InsertChatHistory persists a capped ChatHistory row within tx.
func (t *Tx) InsertChatHistory(ctx context.Context, h *ChatHistory) error {
	if h.Namespace != t.namespace {
		return errs.Validation("namespace", h.Namespace, "namespace_scope", "chat history namespace does not match transaction namespace")
	}
	content := h.Content
	if len(content) > maxChatContentLength {
		content = content[:maxChatContentLength]
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO chat_history (id, namespace, role, content, created_at) VALUES (?,?,?,?,?)`,
		h.ID, h.Namespace, h.Role, content, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert chat history: %w", err)
	}
	return nil
}

// Snapshot captures full rows before a risky consolidation op.
func (s *Store) Snapshot(ctx context.Context, ids []string, namespace string) (map[string]*Memory, error) {
	out := make(map[string]*Memory, len(ids))
	for _, id := range ids {
		m, err := s.GetByID(ctx, id, namespace)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out[id] = m
		}
	}
	return out, nil
}

// Query exposes a read-only escape hatch for strategies that need to emit
// their own namespace-scoped, parameterized SQL (the Metadata Strategy)
// without reimplementing scan logic here.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// MarkDuplicate sets dup.duplicateOf = primary within tx. Both rows must
// exist in the namespace, the primary must not itself be a duplicate, and
// the duplicate must not already be a consolidation primary.
func (t *Tx) MarkDuplicate(ctx context.Context, dupID, primaryID, reason string) error {
	if dupID == primaryID {
		return errs.Validation("duplicateOf", primaryID, "no_self_reference",
			"memory cannot be its own duplicateOf")
	}
	dup, err := t.GetByID(ctx, dupID)
	if err != nil {
		return err
	}
	if dup == nil {
		return errs.Validation("duplicateId", dupID, "not_found", "duplicate id not found in namespace")
	}
	primary, err := t.GetByID(ctx, primaryID)
	if err != nil {
		return err
	}
	if primary == nil {
		return errs.Validation("primaryId", primaryID, "not_found", "primary id not found in namespace")
	}
	if primary.DuplicateOf != "" {
		return errs.Validation("primaryId", primaryID, "not_primary",
			"primary already marked as a duplicate of another memory")
	}
	if len(dup.RelatedMemories) > 0 {
		return errs.Validation("duplicateId", dupID, "mutually_exclusive",
			"a row cannot be both a duplicate and a primary")
	}

	table := memoryTable(dup.RetentionType)
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET duplicate_of = ?, classification_reason = ? WHERE id = ? AND namespace = ?`, table),
		primaryID, reason, dupID, t.namespace)
	if err != nil {
		return fmt.Errorf("store: mark duplicate: %w", err)
	}
	return nil
}

// Consolidate sets duplicateOf for each id in duplicateIDs and
// relatedMemoriesJson on primary within tx. The primary must not itself be a
// duplicate, and no duplicate may already be a consolidation primary. The
// integrity hash is not stored here; the caller computes it from the same
// instant it passes as consolidationTS.
func (t *Tx) Consolidate(ctx context.Context, primaryID string, duplicateIDs []string, consolidationTS int64) error {
	primary, err := t.GetByID(ctx, primaryID)
	if err != nil {
		return err
	}
	if primary == nil {
		return errs.Validation("primaryId", primaryID, "not_found", "primary id not found in namespace")
	}
	if primary.DuplicateOf != "" {
		return errs.Validation("primaryId", primaryID, "not_primary",
			"primary already marked as a duplicate of another memory")
	}
	for _, id := range duplicateIDs {
		if id == primaryID {
			return errs.Validation("duplicateIds", primaryID, "no_self_reference",
				"duplicate set may not contain the primary id")
		}
	}
	for _, id := range duplicateIDs {
		dup, err := t.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if dup == nil {
			return errs.Validation("duplicateIds", id, "not_found", "duplicate id not found in namespace")
		}
		if len(dup.RelatedMemories) > 0 {
			return errs.Validation("duplicateIds", id, "mutually_exclusive",
				"a row cannot be both a duplicate and a primary")
		}
		table := memoryTable(dup.RetentionType)
		_, err = t.tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET duplicate_of = ?, consolidation_timestamp = ? WHERE id = ? AND namespace = ?`, table),
			primaryID, consolidationTS, id, t.namespace)
		if err != nil {
			return fmt.Errorf("store: consolidate duplicate: %w", err)
		}
	}

	relatedJSON, err := marshalStrings(duplicateIDs)
	if err != nil {
		return err
	}
	table := memoryTable(primary.RetentionType)
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET related_memories_json = ?, consolidation_timestamp = ? WHERE id = ? AND namespace = ?`, table),
		relatedJSON, consolidationTS, primaryID, t.namespace)
	if err != nil {
		return fmt.Errorf("store: consolidate primary: %w", err)
	}
	return nil
}

// RestoreConsolidationState is the inverse of MarkDuplicate/Consolidate,
// used by rollback: it restores duplicateOf,
// relatedMemoriesJson, and classificationReason verbatim from a snapshot,
// for exactly the rows named, within a single transaction.
func (t *Tx) RestoreConsolidationState(ctx context.Context, snapshot map[string]*Memory) error {
	for id, m := range snapshot {
		if m == nil || id != m.ID {
			continue
		}
		relatedJSON, err := marshalStrings(m.RelatedMemories)
		if err != nil {
			return err
		}
		table := memoryTable(m.RetentionType)
		_, err = t.tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET duplicate_of = ?, related_memories_json = ?,
				classification_reason = ?, consolidation_timestamp = ? WHERE id = ? AND namespace = ?`, table),
			nullable(m.DuplicateOf), relatedJSON, m.ClassificationReason,
			nullableInt(m.ConsolidationTimestamp), id, t.namespace)
		if err != nil {
			return fmt.Errorf("store: restore consolidation state: %w", err)
		}
	}
	return nil
}

// DeleteConsolidated removes rows that are consolidation primaries
// (non-empty relatedMemoriesJson) older than cutoff, scoped to namespace.
// When dryRun is true no rows are deleted; the
// count of rows that would be deleted is still returned.
func (s *Store) DeleteConsolidated(ctx context.Context, namespace string, cutoff int64, dryRun bool) (int, error) {
	rows, err := s.FindMany(ctx, namespace, "related_memories_json != '[]' AND extraction_timestamp < ?", []any{cutoff})
	if err != nil {
		return 0, err
	}
	if dryRun || len(rows) == 0 {
		return len(rows), nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := s.DeleteMany(ctx, ids, namespace); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Stats holds consolidation bookkeeping counters for one namespace.
type Stats struct {
	TotalMemories             int
	DuplicateCount            int
	ConsolidatedMemories      int
	LastConsolidationActivity int64
}

// GetStats computes consolidation statistics directly over both memory
// tables. ConsolidationTimestamp is used for LastConsolidationActivity
// rather than ExtractionTimestamp.
func (s *Store) GetStats(ctx context.Context, namespace string) (Stats, error) {
	var out Stats
	for _, table := range bothMemoryTables {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*),
				COALESCE(SUM(CASE WHEN duplicate_of IS NOT NULL THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN related_memories_json != '[]' THEN 1 ELSE 0 END), 0),
				COALESCE(MAX(consolidation_timestamp), 0)
			FROM %s WHERE namespace = ?`, table), namespace)
		var total, dupCount, consCount int
		var lastActivity int64
		if err := row.Scan(&total, &dupCount, &consCount, &lastActivity); err != nil {
			return Stats{}, fmt.Errorf("store: get stats: %w", err)
		}
		out.TotalMemories += total
		out.DuplicateCount += dupCount
		out.ConsolidatedMemories += consCount
		if lastActivity > out.LastConsolidationActivity {
			out.LastConsolidationActivity = lastActivity
		}
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
