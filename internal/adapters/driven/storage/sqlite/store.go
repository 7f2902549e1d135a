package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/campusrag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Store is the SQLite-backed persistence layer: page metadata, chunk
// and image rows, and the FTS5 keyword index, all in one database
// file.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data
// directory. If dataDir is empty, defaults to ~/.campusrag/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".campusrag", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "index.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// PageStore returns a PageStore interface backed by this store.
func (s *Store) PageStore() driven.PageStore {
	return &pageStore{store: s}
}

// SparseIndex returns the FTS5-backed keyword index.
func (s *Store) SparseIndex() driven.SparseIndex {
	return &sparseIndex{store: s}
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Page Store ====================

// pageStore implements driven.PageStore.
type pageStore struct {
	store *Store
}

var _ driven.PageStore = (*pageStore)(nil)

// SavePage atomically stores a page with its chunks and images,
// replacing any previous page with the same canonical URL. Replaced
// rows cascade away inside the same transaction.
func (p *pageStore) SavePage(ctx context.Context, page *domain.Page, chunks []domain.Chunk, images []domain.ImageRecord) error {
	tx, err := p.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pages WHERE canonical_url = ?`, page.CanonicalURL); err != nil {
		return fmt.Errorf("deleting previous page: %w", err)
	}

	headingsJSON, err := json.Marshal(page.Headings)
	if err != nil {
		return fmt.Errorf("marshalling headings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (id, url, canonical_url, title, text, headings, language, simhash, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, page.ID, page.URL, page.CanonicalURL, page.Title, page.Text,
		string(headingsJSON), page.Language, int64(page.Simhash), page.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("inserting page: %w", err)
	}

	for i := range chunks {
		if err := insertChunk(ctx, tx, &chunks[i]); err != nil {
			return err
		}
	}
	for i := range images {
		if err := insertImage(ctx, tx, &images[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertChunk(ctx context.Context, tx *sql.Tx, chunk *domain.Chunk) error {
	sectionJSON, err := json.Marshal(chunk.SectionPath)
	if err != nil {
		return fmt.Errorf("marshalling section path: %w", err)
	}
	linksJSON, err := json.Marshal(chunk.LinkedImages)
	if err != nil {
		return fmt.Errorf("marshalling linked images: %w", err)
	}
	entitiesJSON, err := json.Marshal(chunk.Entities)
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (id, page_id, text, token_count, section_path, span_start, span_end,
			position, linked_images, entities, embedding, quality_prior)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.ID, chunk.PageID, chunk.Text, chunk.TokenCount, string(sectionJSON),
		chunk.Span.Start, chunk.Span.End, chunk.Position, string(linksJSON),
		string(entitiesJSON), float32SliceToBytes(chunk.Embedding), chunk.QualityPrior)
	if err != nil {
		return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func insertImage(ctx context.Context, tx *sql.Tx, img *domain.ImageRecord) error {
	lineageJSON, err := json.Marshal(img.HeaderLineage)
	if err != nil {
		return fmt.Errorf("marshalling header lineage: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, page_id, url, alt, caption, header_lineage, context_snippet,
			context_start, context_end, dom_position, quality_score, borderline, is_primary, dedup_group)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, img.ID, img.PageID, img.URL, img.Alt, img.Caption, string(lineageJSON),
		img.ContextSnippet, img.ContextSpan.Start, img.ContextSpan.End, img.DOMPosition,
		img.QualityScore, img.Borderline, img.IsPrimary, img.DedupGroup)
	if err != nil {
		return fmt.Errorf("inserting image %s: %w", img.ID, err)
	}
	return nil
}

// GetPage retrieves a page by ID.
func (p *pageStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	return p.scanPage(p.store.db.QueryRowContext(ctx,
		`SELECT id, url, canonical_url, title, text, headings, language, simhash, fetched_at
		 FROM pages WHERE id = ?`, id))
}

// FindPageByCanonicalURL retrieves a page by its canonical URL.
func (p *pageStore) FindPageByCanonicalURL(ctx context.Context, canonicalURL string) (*domain.Page, error) {
	return p.scanPage(p.store.db.QueryRowContext(ctx,
		`SELECT id, url, canonical_url, title, text, headings, language, simhash, fetched_at
		 FROM pages WHERE canonical_url = ?`, canonicalURL))
}

func (p *pageStore) scanPage(row *sql.Row) (*domain.Page, error) {
	var page domain.Page
	var headingsJSON string
	var simhash int64
	err := row.Scan(&page.ID, &page.URL, &page.CanonicalURL, &page.Title, &page.Text,
		&headingsJSON, &page.Language, &simhash, &page.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning page: %w", err)
	}
	page.Simhash = uint64(simhash)
	if err := json.Unmarshal([]byte(headingsJSON), &page.Headings); err != nil {
		return nil, fmt.Errorf("unmarshalling headings: %w", err)
	}
	return &page, nil
}

const chunkColumns = `id, page_id, text, token_count, section_path, span_start, span_end,
	position, linked_images, entities, embedding, quality_prior`

// GetChunk retrieves a chunk by ID.
func (p *pageStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	rows, err := p.store.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, domain.ErrNotFound
	}
	chunk, err := scanChunk(rows)
	if err != nil {
		return nil, err
	}
	return chunk, rows.Err()
}

// GetChunks retrieves all chunks of a page, in position order.
func (p *pageStore) GetChunks(ctx context.Context, pageID string) ([]domain.Chunk, error) {
	return p.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE page_id = ? ORDER BY position`, pageID)
}

// ListChunks retrieves every indexed chunk.
func (p *pageStore) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	return p.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks ORDER BY page_id, position`)
}

func (p *pageStore) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := p.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var sectionJSON, linksJSON, entitiesJSON string
	var embedding []byte
	err := rows.Scan(&chunk.ID, &chunk.PageID, &chunk.Text, &chunk.TokenCount, &sectionJSON,
		&chunk.Span.Start, &chunk.Span.End, &chunk.Position, &linksJSON, &entitiesJSON,
		&embedding, &chunk.QualityPrior)
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	if err := json.Unmarshal([]byte(sectionJSON), &chunk.SectionPath); err != nil {
		return nil, fmt.Errorf("unmarshalling section path: %w", err)
	}
	if err := json.Unmarshal([]byte(linksJSON), &chunk.LinkedImages); err != nil {
		return nil, fmt.Errorf("unmarshalling linked images: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &chunk.Entities); err != nil {
		return nil, fmt.Errorf("unmarshalling entities: %w", err)
	}
	chunk.Embedding = bytesToFloat32Slice(embedding)
	return &chunk, nil
}

// GetImage retrieves an image record by ID.
func (p *pageStore) GetImage(ctx context.Context, id string) (*domain.ImageRecord, error) {
	images, err := p.queryImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, domain.ErrNotFound
	}
	return &images[0], nil
}

// GetImages retrieves all image records of a page.
func (p *pageStore) GetImages(ctx context.Context, pageID string) ([]domain.ImageRecord, error) {
	return p.queryImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE page_id = ? ORDER BY dom_position`, pageID)
}

const imageColumns = `id, page_id, url, alt, caption, header_lineage, context_snippet,
	context_start, context_end, dom_position, quality_score, borderline, is_primary, dedup_group`

func (p *pageStore) queryImages(ctx context.Context, query string, args ...any) ([]domain.ImageRecord, error) {
	rows, err := p.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var images []domain.ImageRecord
	for rows.Next() {
		var img domain.ImageRecord
		var lineageJSON string
		err := rows.Scan(&img.ID, &img.PageID, &img.URL, &img.Alt, &img.Caption, &lineageJSON,
			&img.ContextSnippet, &img.ContextSpan.Start, &img.ContextSpan.End, &img.DOMPosition,
			&img.QualityScore, &img.Borderline, &img.IsPrimary, &img.DedupGroup)
		if err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		if err := json.Unmarshal([]byte(lineageJSON), &img.HeaderLineage); err != nil {
			return nil, fmt.Errorf("unmarshalling header lineage: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeletePage removes a page and cascades to its chunks and images.
func (p *pageStore) DeletePage(ctx context.Context, id string) error {
	result, err := p.store.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListPages returns all stored pages.
func (p *pageStore) ListPages(ctx context.Context) ([]domain.Page, error) {
	rows, err := p.store.db.QueryContext(ctx,
		`SELECT id, url, canonical_url, title, text, headings, language, simhash, fetched_at
		 FROM pages ORDER BY canonical_url`)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var page domain.Page
		var headingsJSON string
		var simhash int64
		err := rows.Scan(&page.ID, &page.URL, &page.CanonicalURL, &page.Title, &page.Text,
			&headingsJSON, &page.Language, &simhash, &page.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		page.Simhash = uint64(simhash)
		if err := json.Unmarshal([]byte(headingsJSON), &page.Headings); err != nil {
			return nil, fmt.Errorf("unmarshalling headings: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// ==================== Sparse Index ====================

// sparseIndex implements driven.SparseIndex over the chunks_fts FTS5
// table. BM25 ranks ascending (more negative is better), so scores
// are negated to make higher better for the fusion step.
type sparseIndex struct {
	store *Store
}

var _ driven.SparseIndex = (*sparseIndex)(nil)

// Index adds or updates a chunk in the keyword index.
func (s *sparseIndex) Index(ctx context.Context, chunk domain.Chunk) error {
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id = ?`, chunk.ID); err != nil {
		return fmt.Errorf("clearing fts entry: %w", err)
	}
	if _, err := s.store.db.ExecContext(ctx,
		`INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)`, chunk.ID, chunk.Text); err != nil {
		return fmt.Errorf("inserting fts entry: %w", err)
	}
	return nil
}

// Delete removes a chunk from the keyword index.
func (s *sparseIndex) Delete(ctx context.Context, chunkID string) error {
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("deleting fts entry: %w", err)
	}
	return nil
}

// Search performs a keyword search and returns matching chunk IDs
// with scores, best first.
func (s *sparseIndex) Search(ctx context.Context, query string, limit int) ([]driven.SparseHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []driven.SparseHit
	for rows.Next() {
		var hit driven.SparseHit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("scanning fts hit: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Close is a no-op; the index shares the store's connection.
func (s *sparseIndex) Close() error {
	return nil
}

// ftsQuery turns free text into a safe FTS5 match expression: each
// term quoted (so punctuation cannot become syntax) and OR-joined for
// recall, since reranking handles precision.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, "")
		if term == "" {
			continue
		}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// float32SliceToBytes converts an embedding to a little-endian blob.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a stored blob back to an embedding.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
