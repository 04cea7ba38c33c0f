package store

// schemaSQL is the DDL for all tables.
const schemaSQL = `
-- Document registry with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    source TEXT NOT NULL,
    scheme TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    run_id TEXT,
    sentence_count INTEGER DEFAULT 0,
    triple_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per non-blank input line
CREATE TABLE IF NOT EXISTS sentences (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    text TEXT NOT NULL,
    edge_count INTEGER DEFAULT 0,
    error TEXT,
    UNIQUE(document_id, idx)
);

-- Extracted triples in emission order
CREATE TABLE IF NOT EXISTS triples (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    sentence_idx INTEGER NOT NULL,
    position INTEGER NOT NULL,
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT NOT NULL,
    kind TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_sentences_document ON sentences(document_id, idx);
CREATE INDEX IF NOT EXISTS idx_triples_document ON triples(document_id, position);
CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject);
CREATE INDEX IF NOT EXISTS idx_triples_object ON triples(object);
`
