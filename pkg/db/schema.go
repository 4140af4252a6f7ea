package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- URLs table: one row per distinct article URL
CREATE TABLE IF NOT EXISTS urls (
    url_id INTEGER PRIMARY KEY AUTOINCREMENT,
    original_url TEXT NOT NULL UNIQUE,
    scheme TEXT NOT NULL,
    domain TEXT NOT NULL,
    path TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_urls_domain ON urls(domain);

-- Runs: one row per pipeline invocation
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    input_path TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'running',  -- running, finished, cancelled, aborted
    total_count INTEGER DEFAULT 0,
    completed_count INTEGER DEFAULT 0,
    failed_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    bytes_written INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- URL accesses: every fetch attempt tracked
CREATE TABLE IF NOT EXISTS url_accesses (
    access_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    url_id INTEGER NOT NULL,
    attempt INTEGER NOT NULL,
    accessed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    status_code INTEGER,
    error_type TEXT,
    error_message TEXT,
    duration_ms INTEGER,
    from_cache BOOLEAN DEFAULT 0,
    success BOOLEAN NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    FOREIGN KEY (url_id) REFERENCES urls(url_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_accesses_url ON url_accesses(url_id);
CREATE INDEX IF NOT EXISTS idx_accesses_run ON url_accesses(run_id);
CREATE INDEX IF NOT EXISTS idx_accesses_success ON url_accesses(success);

-- Documents: content pointers (DB stores metadata, disk stores content)
CREATE TABLE IF NOT EXISTS documents (
    document_id INTEGER PRIMARY KEY AUTOINCREMENT,
    url_id INTEGER NOT NULL UNIQUE,
    run_id TEXT NOT NULL,
    slug TEXT NOT NULL,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    size_bytes INTEGER,
    title TEXT,
    language TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (url_id) REFERENCES urls(url_id) ON DELETE CASCADE,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_documents_slug ON documents(slug);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`
