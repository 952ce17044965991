package store

// memoryColumns lists the physical columns shared by short_term_memory and
// long_term_memory; both tables carry an identical schema so the metadata
// strategy can UNION ALL across them.
const memoryColumns = `
    id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    searchable_content TEXT NOT NULL,
    summary TEXT,
    classification TEXT NOT NULL,
    importance TEXT NOT NULL,
    importance_score REAL NOT NULL DEFAULT 0,
    confidence_score REAL NOT NULL DEFAULT 0,
    topic TEXT,
    entities_json TEXT NOT NULL DEFAULT '[]',
    keywords_json TEXT NOT NULL DEFAULT '[]',
    category_primary TEXT,
    classification_reason TEXT,
    retention_type TEXT NOT NULL,
    extraction_timestamp INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    duplicate_of TEXT,
    related_memories_json TEXT NOT NULL DEFAULT '[]',
    processed_data TEXT NOT NULL DEFAULT '{}',
    consolidation_timestamp INTEGER
`

const schema = `
CREATE TABLE IF NOT EXISTS short_term_memory (` + memoryColumns + `
);
CREATE TABLE IF NOT EXISTS long_term_memory (` + memoryColumns + `
);

CREATE INDEX IF NOT EXISTS idx_stm_namespace ON short_term_memory(namespace);
CREATE INDEX IF NOT EXISTS idx_stm_duplicate_of ON short_term_memory(duplicate_of);
CREATE INDEX IF NOT EXISTS idx_ltm_namespace ON long_term_memory(namespace);
CREATE INDEX IF NOT EXISTS idx_ltm_duplicate_of ON long_term_memory(duplicate_of);

CREATE TABLE IF NOT EXISTS chat_history (
    id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_namespace ON chat_history(namespace);

-- FTS mirror: derived index over both memory tables, mapped by memory_id
-- rather than SQLite's implicit rowid since Memory ids are caller-supplied
-- opaque strings, not integers.
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
    memory_id UNINDEXED,
    namespace UNINDEXED,
    content,
    metadata
);
`

// memoryTable returns the physical table name for a retention type.
func memoryTable(rt RetentionType) string {
	if rt == RetentionLongTerm {
		return "long_term_memory"
	}
	return "short_term_memory"
}

var bothMemoryTables = []string{"short_term_memory", "long_term_memory"}
