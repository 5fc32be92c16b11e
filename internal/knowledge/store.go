package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists guideline chunks and their embeddings in sqlite. Vector
// search goes through sqlite-vec when the extension loads; otherwise search
// falls back to scanning the JSON-encoded embeddings. The vec flag flips off
// permanently on the first vec error so one broken extension cannot fail
// every lookup.
type Store struct {
	db  *sql.DB
	vec atomic.Bool
}

var ErrStoreNotReady = errors.New("knowledge store is not initialized")

const (
	defaultSearchLimit       = 5
	defaultDistanceThreshold = 0.85
	embeddingDimensions      = 768
)

// Chunk is one indexed passage of a guideline document.
type Chunk struct {
	ID      string
	Source  string
	Seq     int
	Content string
}

// sqlite_vec.Auto registers the extension for every sqlite3 connection
// opened afterwards, so it must run once before sql.Open.
var registerVecOnce sync.Once

func OpenStore(dbPath string) (*Store, error) {
	registerVecOnce.Do(sqlite_vec.Auto)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store %q: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect knowledge store %q: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS guideline_chunks (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE,
		source TEXT NOT NULL,
		seq INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_guideline_chunks_source ON guideline_chunks(source);
	CREATE TABLE IF NOT EXISTS guideline_sources (
		source TEXT PRIMARY KEY,
		modified_unix INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize knowledge schema: %w", err)
	}

	store := &Store{db: db}
	vecSchema := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS vec_guidelines USING vec0(embedding float[%d]);", embeddingDimensions)
	if _, err := db.Exec(vecSchema); err == nil {
		store.vec.Store(true)
	}
	return store, nil
}

func (s *Store) EnsureReady(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreNotReady
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("knowledge store connection is not ready: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// vecUsable reports whether the vec index should handle an embedding of this
// length. The vec0 table is fixed at embeddingDimensions, so differently
// sized vectors always take the fallback.
func (s *Store) vecUsable(embedding []float32) bool {
	return s.vec.Load() && len(embedding) == embeddingDimensions
}

func (s *Store) SaveChunk(ctx context.Context, chunk Chunk, embedding []float32) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(chunk.ID) == "" {
		return errors.New("chunk id is required")
	}
	if len(embedding) == 0 {
		return errors.New("embedding is required")
	}

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	if s.vecUsable(embedding) {
		if err := s.saveChunkVec(ctx, chunk, embedding, string(embJSON)); err == nil {
			return nil
		}
		s.vec.Store(false)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO guideline_chunks (id, source, seq, content, embedding) VALUES (?, ?, ?, ?, ?)",
		chunk.ID, chunk.Source, chunk.Seq, chunk.Content, string(embJSON),
	)
	return err
}

// saveChunkVec replaces the chunk and its vector row in one transaction.
// INSERT OR REPLACE is not enough here because the vec row is keyed by the
// chunk's rowid, which changes on replace.
func (s *Store) saveChunkVec(ctx context.Context, chunk Chunk, embedding []float32, embJSON string) error {
	vecBlob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serialize vector: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vec_guidelines WHERE rowid IN (SELECT rowid FROM guideline_chunks WHERE id = ?)", chunk.ID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM guideline_chunks WHERE id = ?", chunk.ID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO guideline_chunks (id, source, seq, content, embedding) VALUES (?, ?, ?, ?, ?)",
		chunk.ID, chunk.Source, chunk.Seq, chunk.Content, embJSON,
	)
	if err != nil {
		return err
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO vec_guidelines (rowid, embedding) VALUES (?, ?)", rowid, vecBlob); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteSource removes every chunk indexed from one guideline document along
// with its freshness stamp.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.vec.Load() {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_guidelines WHERE rowid IN (SELECT rowid FROM guideline_chunks WHERE source = ?)", source,
		); err != nil {
			s.vec.Store(false)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM guideline_chunks WHERE source = ?", source); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM guideline_sources WHERE source = ?", source); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkSource records the document's modification time after indexing so an
// unchanged file can be skipped on the next pass.
func (s *Store) MarkSource(ctx context.Context, source string, modifiedUnix int64) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO guideline_sources (source, modified_unix) VALUES (?, ?)",
		source, modifiedUnix,
	)
	return err
}

// SourceStamp returns the recorded modification time for a document, or
// ok=false when it was never indexed.
func (s *Store) SourceStamp(ctx context.Context, source string) (int64, bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return 0, false, err
	}
	var stamp int64
	err := s.db.QueryRowContext(ctx,
		"SELECT modified_unix FROM guideline_sources WHERE source = ?", source,
	).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stamp, true, nil
}

// Sources lists every indexed document path.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT source FROM guideline_sources ORDER BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]Chunk, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if s.vecUsable(embedding) {
		if chunks, err := s.searchVec(ctx, embedding, limit); err == nil {
			return chunks, nil
		}
		s.vec.Store(false)
	}
	return s.searchScan(ctx, embedding, limit)
}

// searchVec runs a KNN query against the vec0 table and resolves the winning
// rowids back to chunks. Results past the distance threshold are dropped.
func (s *Store) searchVec(ctx context.Context, embedding []float32, limit int) ([]Chunk, error) {
	vecBlob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid, distance FROM vec_guidelines WHERE embedding MATCH ? AND k = ? ORDER BY distance",
		vecBlob, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []int64
	for rows.Next() {
		var rowid int64
		var distance float64
		if err := rows.Scan(&rowid, &distance); err != nil {
			return nil, err
		}
		if distance <= defaultDistanceThreshold {
			winners = append(winners, rowid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(winners))
	for _, rowid := range winners {
		var c Chunk
		err := s.db.QueryRowContext(ctx,
			"SELECT id, source, seq, content FROM guideline_chunks WHERE rowid = ?", rowid,
		).Scan(&c.ID, &c.Source, &c.Seq, &c.Content)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// searchScan is the no-extension path: walk every stored embedding and rank
// by cosine distance. Corpora here are guideline documents, small enough
// that a full scan stays cheap.
func (s *Store) searchScan(ctx context.Context, embedding []float32, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, source, seq, content, embedding FROM guideline_chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type match struct {
		Chunk
		dist float64
	}
	var matches []match
	for rows.Next() {
		var m match
		var encoded string
		if err := rows.Scan(&m.ID, &m.Source, &m.Seq, &m.Content, &encoded); err != nil {
			return nil, err
		}
		var candidate []float32
		if err := json.Unmarshal([]byte(encoded), &candidate); err != nil {
			return nil, fmt.Errorf("decode embedding for chunk %q: %w", m.ID, err)
		}
		dist, derr := cosineDistance(embedding, candidate)
		if derr != nil || dist > defaultDistanceThreshold {
			continue
		}
		m.dist = dist
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	chunks := make([]Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
	}
	return chunks, nil
}

func cosineDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("embedding cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: query=%d candidate=%d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cos = math.Max(-1, math.Min(1, cos))
	return 1 - cos, nil
}
