package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	_ "modernc.org/sqlite"

	"pulse/model"
)

// searchCandidateLimit bounds how many stored rows are scored per query.
const searchCandidateLimit = 500

// MemoryStore keeps previously stored knowledge in a local sqlite database
// and ranks it against queries. It satisfies the semantic-search collaborator
// contract (memory.Searcher): callers treat the ranking as a black box.
type MemoryStore struct {
	db *sql.DB
}

// NewMemoryStore opens (or creates) <data_dir>/memories.db.
func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	dbPath := filepath.Join(dataDir, "memories.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MemoryStore{db: db}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (ms *MemoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		tags TEXT,
		scope TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
	`

	_, err := ms.db.Exec(schema)
	return err
}

// Save stores a piece of text under an optional scope and tag set.
// Returns the new memory's ID.
func (ms *MemoryStore) Save(ctx context.Context, text string, tags []string, scope string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("memory text cannot be empty")
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}

	id := uuid.New().String()
	_, err = ms.db.ExecContext(ctx,
		`INSERT INTO memories (id, text, tags, scope, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, text, string(tagsJSON), scope, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save memory: %w", err)
	}

	return id, nil
}

// Delete removes a memory by ID.
func (ms *MemoryStore) Delete(ctx context.Context, id string) error {
	result, err := ms.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

// Count returns the number of memories stored under a scope ("" = all).
func (ms *MemoryStore) Count(ctx context.Context, scope string) (int, error) {
	query := `SELECT COUNT(*) FROM memories`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}

	var count int
	if err := ms.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// Search ranks stored memories against the query and returns the topK with
// similarity above the threshold, ordered similarity-descending. Candidate
// rows are fuzzy-scored and the scores normalized into [0, 1].
func (ms *MemoryStore) Search(ctx context.Context, query string, topK int, threshold float64, scope string) ([]model.MemorySnippet, error) {
	if query == "" || topK <= 0 {
		return nil, nil
	}

	rows, err := ms.candidates(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.text
	}

	matches := fuzzy.Find(query, texts)
	if len(matches) == 0 {
		return nil, nil
	}

	// fuzzy.Find returns matches best-first with unbounded integer scores;
	// normalize against the best score so downstream thresholds in [0, 1]
	// keep their meaning.
	best := matches[0].Score
	snippets := make([]model.MemorySnippet, 0, topK)
	for _, m := range matches {
		similarity := normalizeScore(m.Score, best)
		if similarity <= threshold {
			continue
		}
		row := rows[m.Index]
		snippets = append(snippets, model.MemorySnippet{
			Text:       row.text,
			Similarity: similarity,
			Tags:       row.tags,
			CreatedAt:  row.createdAt,
		})
		if len(snippets) == topK {
			break
		}
	}

	return snippets, nil
}

// Close closes the underlying database.
func (ms *MemoryStore) Close() error {
	return ms.db.Close()
}

type memoryRow struct {
	text      string
	tags      []string
	createdAt time.Time
}

func (ms *MemoryStore) candidates(ctx context.Context, scope string) ([]memoryRow, error) {
	query := `SELECT text, tags, created_at FROM memories`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, searchCandidateLimit)

	rows, err := ms.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []memoryRow
	for rows.Next() {
		var (
			text     string
			tagsJSON sql.NullString
			created  time.Time
		)
		if err := rows.Scan(&text, &tagsJSON, &created); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}

		var tags []string
		if tagsJSON.Valid && tagsJSON.String != "" {
			// Corrupted tag blobs lose their tags, not the memory.
			_ = json.Unmarshal([]byte(tagsJSON.String), &tags)
		}

		out = append(out, memoryRow{text: text, tags: tags, createdAt: created})
	}
	return out, rows.Err()
}

func normalizeScore(score, best int) float64 {
	if best <= 0 || score < 0 {
		return 0
	}
	return float64(score) / float64(best)
}
