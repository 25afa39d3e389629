package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quarrylabs/quarry/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.quarry/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".quarry", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
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

// SourceStore returns a SourceStore interface backed by this store.
func (s *Store) SourceStore() driven.SourceStore {
	return &sourceStore{store: s}
}

// JobStore returns a JobStore interface backed by this store.
func (s *Store) JobStore() driven.JobStore {
	return &jobStore{store: s}
}

// FingerprintStore returns a FingerprintStore interface backed by this store.
func (s *Store) FingerprintStore() driven.FingerprintStore {
	return &fingerprintStore{store: s}
}

// CatalogStore returns a CatalogStore interface backed by this store.
func (s *Store) CatalogStore() driven.CatalogStore {
	return &catalogStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// marshalJSON round-trips a value through JSON for a TEXT column.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// nullTime maps a zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// ==================== Source Store ====================

// sourceStore implements driven.SourceStore.
type sourceStore struct {
	store *Store
}

var _ driven.SourceStore = (*sourceStore)(nil)

// Save stores or updates a source.
func (s *sourceStore) Save(ctx context.Context, source domain.Source) error {
	urlsJSON, err := marshalJSON(source.DiscoveredURLs)
	if err != nil {
		return fmt.Errorf("marshalling discovered urls: %w", err)
	}
	crawlJSON, err := marshalJSON(source.Crawl)
	if err != nil {
		return fmt.Errorf("marshalling crawl config: %w", err)
	}

	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sources (id, url, status, discovered_urls, content_version, crawl, last_ingested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			discovered_urls = excluded.discovered_urls,
			content_version = excluded.content_version,
			crawl = excluded.crawl,
			last_ingested = excluded.last_ingested,
			updated_at = excluded.updated_at
	`, source.ID, source.URL, string(source.Status), urlsJSON, source.ContentVersion,
		crawlJSON, nullTime(source.LastIngested), source.CreatedAt, source.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving source: %w", err)
	}
	return nil
}

// Get retrieves a source by ID.
func (s *sourceStore) Get(ctx context.Context, id string) (*domain.Source, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, url, status, discovered_urls, content_version, crawl, last_ingested, created_at, updated_at
		FROM sources WHERE id = ?
	`, id)

	source, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return source, nil
}

// Delete removes a source.
func (s *sourceStore) Delete(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all registered sources.
func (s *sourceStore) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, url, status, discovered_urls, content_version, crawl, last_ingested, created_at, updated_at
		FROM sources ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source //nolint:prealloc // size unknown from query
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*domain.Source, error) {
	var source domain.Source
	var status, urlsJSON, crawlJSON string
	var lastIngested, createdAt, updatedAt sql.NullTime

	if err := row.Scan(&source.ID, &source.URL, &status, &urlsJSON, &source.ContentVersion,
		&crawlJSON, &lastIngested, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning source: %w", err)
	}

	source.Status = domain.SourceStatus(status)
	if err := json.Unmarshal([]byte(urlsJSON), &source.DiscoveredURLs); err != nil {
		return nil, fmt.Errorf("unmarshaling discovered urls: %w", err)
	}
	if err := json.Unmarshal([]byte(crawlJSON), &source.Crawl); err != nil {
		return nil, fmt.Errorf("unmarshaling crawl config: %w", err)
	}
	if lastIngested.Valid {
		source.LastIngested = lastIngested.Time
	}
	if createdAt.Valid {
		source.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		source.UpdatedAt = updatedAt.Time
	}
	return &source, nil
}

// ==================== Job Store ====================

// jobStore implements driven.JobStore.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

// Save stores or updates a job.
func (s *jobStore) Save(ctx context.Context, job domain.IngestionJob) error {
	transitionsJSON, err := marshalJSON(job.Transitions)
	if err != nil {
		return fmt.Errorf("marshalling transitions: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_id, state, attempts, last_error,
			chunks_indexed, chunks_skipped, chunks_failed,
			enqueued_at, started_at, finished_at, transitions, cancel_requested)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			chunks_indexed = excluded.chunks_indexed,
			chunks_skipped = excluded.chunks_skipped,
			chunks_failed = excluded.chunks_failed,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			transitions = excluded.transitions,
			cancel_requested = excluded.cancel_requested
	`, job.ID, job.SourceID, string(job.State), job.Attempts, job.LastError,
		job.ChunksIndexed, job.ChunksSkipped, job.ChunksFailed,
		job.EnqueuedAt, nullTime(job.StartedAt), nullTime(job.FinishedAt),
		transitionsJSON, job.CancelRequested)

	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *jobStore) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_id, state, attempts, last_error,
			chunks_indexed, chunks_skipped, chunks_failed,
			enqueued_at, started_at, finished_at, transitions, cancel_requested
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ActiveForSource returns the non-terminal job for a source.
func (s *jobStore) ActiveForSource(ctx context.Context, sourceID string) (*domain.IngestionJob, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_id, state, attempts, last_error,
			chunks_indexed, chunks_skipped, chunks_failed,
			enqueued_at, started_at, finished_at, transitions, cancel_requested
		FROM jobs
		WHERE source_id = ? AND state NOT IN ('succeeded', 'failed', 'cancelled')
		ORDER BY enqueued_at DESC LIMIT 1
	`, sourceID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns all jobs, newest first.
func (s *jobStore) List(ctx context.Context) ([]domain.IngestionJob, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, source_id, state, attempts, last_error,
			chunks_indexed, chunks_skipped, chunks_failed,
			enqueued_at, started_at, finished_at, transitions, cancel_requested
		FROM jobs ORDER BY enqueued_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.IngestionJob //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row scanner) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var state, transitionsJSON string
	var startedAt, finishedAt sql.NullTime

	if err := row.Scan(&job.ID, &job.SourceID, &state, &job.Attempts, &job.LastError,
		&job.ChunksIndexed, &job.ChunksSkipped, &job.ChunksFailed,
		&job.EnqueuedAt, &startedAt, &finishedAt, &transitionsJSON, &job.CancelRequested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.State = domain.JobState(state)
	if err := json.Unmarshal([]byte(transitionsJSON), &job.Transitions); err != nil {
		return nil, fmt.Errorf("unmarshaling transitions: %w", err)
	}
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = finishedAt.Time
	}
	return &job, nil
}

// ==================== Fingerprint Store ====================

// fingerprintStore implements driven.FingerprintStore.
type fingerprintStore struct {
	store *Store
}

var _ driven.FingerprintStore = (*fingerprintStore)(nil)

// Get retrieves the record for a logical chunk position.
func (s *fingerprintStore) Get(ctx context.Context, sourceID, url string, ordinal int) (*driven.FingerprintRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_id, url, ordinal, chunk_id, fingerprint
		FROM fingerprints WHERE source_id = ? AND url = ? AND ordinal = ?
	`, sourceID, url, ordinal)

	var rec driven.FingerprintRecord
	if err := row.Scan(&rec.SourceID, &rec.URL, &rec.Ordinal, &rec.ChunkID, &rec.Fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning fingerprint: %w", err)
	}
	return &rec, nil
}

// Save stores or replaces a record.
func (s *fingerprintStore) Save(ctx context.Context, rec driven.FingerprintRecord) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO fingerprints (source_id, url, ordinal, chunk_id, fingerprint)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, url, ordinal) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			fingerprint = excluded.fingerprint
	`, rec.SourceID, rec.URL, rec.Ordinal, rec.ChunkID, rec.Fingerprint)

	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

// ListBySource returns all records for a source.
func (s *fingerprintStore) ListBySource(ctx context.Context, sourceID string) ([]driven.FingerprintRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, url, ordinal, chunk_id, fingerprint
		FROM fingerprints WHERE source_id = ?
		ORDER BY url, ordinal
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	var recs []driven.FingerprintRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rec driven.FingerprintRecord
		if err := rows.Scan(&rec.SourceID, &rec.URL, &rec.Ordinal, &rec.ChunkID, &rec.Fingerprint); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fingerprints: %w", err)
	}
	return recs, nil
}

// Delete removes the record for one logical chunk position.
func (s *fingerprintStore) Delete(ctx context.Context, sourceID, url string, ordinal int) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM fingerprints WHERE source_id = ? AND url = ? AND ordinal = ?",
		sourceID, url, ordinal)
	if err != nil {
		return fmt.Errorf("deleting fingerprint: %w", err)
	}
	return nil
}

// DeleteBySource removes all records for a source.
func (s *fingerprintStore) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM fingerprints WHERE source_id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting fingerprints: %w", err)
	}
	return nil
}

// ==================== Catalog Store ====================

// catalogStore implements driven.CatalogStore.
type catalogStore struct {
	store *Store
}

var _ driven.CatalogStore = (*catalogStore)(nil)

// Upsert stores or replaces a catalog entry.
func (s *catalogStore) Upsert(ctx context.Context, entry domain.CatalogEntry) error {
	keywordsJSON, err := marshalJSON(entry.Keywords)
	if err != nil {
		return fmt.Errorf("marshalling keywords: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO catalog (source_id, summary, keywords, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			summary = excluded.summary,
			keywords = excluded.keywords,
			updated_at = excluded.updated_at
	`, entry.SourceID, entry.Summary, keywordsJSON, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving catalog entry: %w", err)
	}
	return nil
}

// Get retrieves the entry for a source.
func (s *catalogStore) Get(ctx context.Context, sourceID string) (*domain.CatalogEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_id, summary, keywords, updated_at
		FROM catalog WHERE source_id = ?
	`, sourceID)

	var entry domain.CatalogEntry
	var keywordsJSON string
	if err := row.Scan(&entry.SourceID, &entry.Summary, &keywordsJSON, &entry.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning catalog entry: %w", err)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &entry.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshaling keywords: %w", err)
	}
	return &entry, nil
}

// List returns all catalog entries.
func (s *catalogStore) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, summary, keywords, updated_at
		FROM catalog ORDER BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.CatalogEntry
		var keywordsJSON string
		if err := rows.Scan(&entry.SourceID, &entry.Summary, &keywordsJSON, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning catalog entry: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &entry.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshaling keywords: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog: %w", err)
	}
	return entries, nil
}

// Delete removes the entry for a source.
func (s *catalogStore) Delete(ctx context.Context, sourceID string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM catalog WHERE source_id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting catalog entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
