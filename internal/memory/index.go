package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// chunkTargetSize and chunkOverlap control the chunker: line-boundary
// chunks of target ~1600 chars with ~320-char overlap.
const (
	chunkTargetSize = 1600
	chunkOverlap    = 320
)

// SearchResult is one row returned by Search.
type SearchResult struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
	Score     float64
}

// Index is a regenerable SQLite FTS5 cache over a workspace's markdown
// files. Flat files remain the source of truth — deleting the
// database is always safe; the next Reindex reconstructs it.
type Index struct {
	mu        sync.Mutex // serializes writers on this process-local connection
	db        *sql.DB
	workspace string
	reindexSF singleflight.Group // collapses concurrent Reindex callers into one walk
}

// Open creates or opens the memory index database at dbPath.
func Open(workspace, dbPath string) (*Index, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: single writer connection

	idx := &Index{db: db, workspace: workspace}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

func (idx *Index) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			mtime INTEGER NOT NULL,
			size INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			hash TEXT NOT NULL,
			text TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text, content=chunks, content_rowid=rowid
		);`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END;`,
	}
	for _, s := range stmts {
		if _, err := idx.db.Exec(s); err != nil {
			return fmt.Errorf("memory index schema: %w", err)
		}
	}
	return nil
}

// Reindex walks all *.md files under the workspace, skipping unchanged
// files by SHA-256 hash, and removes entries for files that disappeared.
// Idempotent on unchanged input. Concurrent callers
// (e.g. a turn finishing and the heartbeat firing at the same moment)
// share a single walk via singleflight rather than each re-scanning the
// workspace back to back.
func (idx *Index) Reindex() error {
	_, err, _ := idx.reindexSF.Do("reindex", func() (interface{}, error) {
		return nil, idx.reindexOnce()
	})
	return err
}

func (idx *Index) reindexOnce() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	seen := make(map[string]bool)

	err := filepath.Walk(idx.workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, don't abort the whole walk
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(idx.workspace, path)
		if relErr != nil {
			rel = path
		}
		seen[rel] = true

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Warn("memory index: failed to read file", "path", path, "error", readErr)
			return nil
		}
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])

		var existingHash string
		row := idx.db.QueryRow(`SELECT hash FROM files WHERE path = ?`, rel)
		scanErr := row.Scan(&existingHash)
		if scanErr == nil && existingHash == hash {
			return nil // unchanged, skip
		}

		if err := idx.reindexFile(rel, hash, info, content); err != nil {
			slog.Warn("memory index: failed to index file", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk workspace: %w", err)
	}

	// Drop rows for files no longer present.
	rows, err := idx.db.Query(`SELECT path FROM files`)
	if err != nil {
		return fmt.Errorf("list indexed files: %w", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		if !seen[p] {
			stale = append(stale, p)
		}
	}
	rows.Close()
	for _, p := range stale {
		if err := idx.deletePath(p); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) reindexFile(relPath, hash string, info os.FileInfo, content []byte) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, relPath); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO files(path, hash, mtime, size) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, mtime=excluded.mtime, size=excluded.size`,
		relPath, hash, info.ModTime().Unix(), info.Size(),
	); err != nil {
		return err
	}

	for _, c := range chunkText(string(content)) {
		sum := sha256.Sum256([]byte(c.text))
		chunkHash := hex.EncodeToString(sum[:])
		if _, err := tx.Exec(
			`INSERT INTO chunks(id, path, start_line, end_line, hash, text, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), relPath, c.startLine, c.endLine, chunkHash, c.text, info.ModTime().Unix(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (idx *Index) deletePath(relPath string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, relPath); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, relPath); err != nil {
		return err
	}
	return tx.Commit()
}

type rawChunk struct {
	text               string
	startLine, endLine int
}

// chunkText splits content into overlapping line-boundary chunks targeting
// ~chunkTargetSize chars with ~chunkOverlap char overlap.
func chunkText(content string) []rawChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var chunks []rawChunk
	start := 0
	for start < len(lines) {
		size := 0
		end := start
		for end < len(lines) {
			size += len(lines[end]) + 1
			end++
			if size >= chunkTargetSize {
				break
			}
		}
		chunkLines := lines[start:end]
		chunks = append(chunks, rawChunk{
			text:      strings.Join(chunkLines, "\n"),
			startLine: start + 1,
			endLine:   end,
		})
		if end >= len(lines) {
			break
		}
		// Step back by overlap chars worth of lines.
		overlapSize := 0
		back := end
		for back > start && overlapSize < chunkOverlap {
			back--
			overlapSize += len(lines[back]) + 1
		}
		if back <= start {
			back = end // guarantee forward progress
		}
		start = back
	}
	return chunks
}

// Search tokenizes the query on whitespace, quotes each token (doubling
// embedded quotes) and joins with spaces for an implicit-AND FTS5 match.
// An empty/whitespace query returns an empty list.
func (idx *Index) Search(query string, limit int) ([]SearchResult, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var quoted []string
	for _, t := range tokens {
		escaped := strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	matchExpr := strings.Join(quoted, " ")

	idx.mu.Lock()
	defer idx.mu.Unlock()

	rows, err := idx.db.Query(`
		SELECT c.path, c.start_line, c.end_line, c.text, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.Path, &r.StartLine, &r.EndLine, &r.Text, &rank); err != nil {
			return nil, err
		}
		// bm25() is lower-is-better; invert so positive = better.
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}
