package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultCacheSize = 4096

// SQLiteStore implements ContentStore on a SQLite database. Records are
// stored as JSON payloads keyed by (type, natural key, digest); version
// membership lives in a join table so records are shared across versions.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	cache *lru.Cache[string, content.Record]
}

// NewSQLiteStore opens (and migrates) a content store at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}

	// A single connection keeps ":memory:" stores coherent and lets SQLite
	// serialize writers itself.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate content store: %w", err)
	}

	cache, err := lru.New[string, content.Record](defaultCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	return &SQLiteStore{db: db, path: path, cache: cache}, nil
}

func cacheKey(t content.RecordType, naturalKey string, digest content.Digest) string {
	return string(t) + "|" + naturalKey + "|" + string(digest)
}

// Put implements ContentStore.Put. The UNIQUE constraint over
// (type, natural key, digest) makes re-ingestion of identical content a
// no-op that returns the original handle.
func (s *SQLiteStore) Put(ctx context.Context, rec content.Record) (Handle, error) {
	key := rec.Key()
	digest := rec.Fingerprint()

	payload, err := content.Marshal(rec)
	if err != nil {
		return Handle{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (record_type, natural_key, digest, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (record_type, natural_key, digest) DO NOTHING`,
		string(key.Type), key.ID, string(digest), payload, time.Now().UTC())
	if err != nil {
		return Handle{}, fmt.Errorf("store unavailable: failed to put record: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM records WHERE record_type = ? AND natural_key = ? AND digest = ?`,
		string(key.Type), key.ID, string(digest)).Scan(&id)
	if err != nil {
		return Handle{}, fmt.Errorf("store unavailable: failed to read back record: %w", err)
	}

	s.cache.Add(cacheKey(key.Type, key.ID, digest), rec)
	return Handle{ID: id, Key: key, Digest: digest}, nil
}

// Get implements ContentStore.Get.
func (s *SQLiteStore) Get(ctx context.Context, key content.NaturalKey, asOf *RepositoryVersion) (content.Record, error) {
	var (
		digest  string
		payload []byte
		err     error
	)
	if asOf != nil {
		err = s.db.QueryRowContext(ctx, `
			SELECT r.digest, r.payload
			FROM records r
			JOIN version_members vm ON vm.record_id = r.id
			WHERE vm.version_id = ? AND r.record_type = ? AND r.natural_key = ?`,
			asOf.ID, string(key.Type), key.ID).Scan(&digest, &payload)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT digest, payload
			FROM records
			WHERE record_type = ? AND natural_key = ?
			ORDER BY id DESC LIMIT 1`,
			string(key.Type), key.ID).Scan(&digest, &payload)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to get record: %w", err)
	}

	return s.decodeRecord(key.Type, key.ID, content.Digest(digest), payload)
}

func (s *SQLiteStore) decodeRecord(t content.RecordType, naturalKey string, digest content.Digest, payload []byte) (content.Record, error) {
	ck := cacheKey(t, naturalKey, digest)
	if rec, ok := s.cache.Get(ck); ok {
		return rec, nil
	}
	rec, err := content.Unmarshal(t, payload)
	if err != nil {
		return nil, err
	}
	s.cache.Add(ck, rec)
	return rec, nil
}

// VersionsContaining implements ContentStore.VersionsContaining.
func (s *SQLiteStore) VersionsContaining(ctx context.Context, key content.NaturalKey) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.number
		FROM versions v
		JOIN version_members vm ON vm.version_id = v.id
		JOIN records r ON r.id = vm.record_id
		WHERE r.record_type = ? AND r.natural_key = ?
		ORDER BY v.number`,
		string(key.Type), key.ID)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to list versions: %w", err)
	}
	defer rows.Close()

	var numbers []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store unavailable: failed to scan version: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// CreateVersion implements ContentStore.CreateVersion. Version creation is
// all-or-nothing: number assignment and membership insertion share one
// transaction, so a failed sync leaves no partial version behind.
func (s *SQLiteStore) CreateVersion(ctx context.Context, repository string, members []Handle) (*RepositoryVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE repository = ?`,
		repository).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to assign version number: %w", err)
	}

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO versions (repository, number, created_at) VALUES (?, ?, ?)`,
		repository, next, createdAt)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to create version: %w", err)
	}
	versionID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to read version id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO version_members (version_id, record_id) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to prepare member insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, versionID, m.ID); err != nil {
			return nil, fmt.Errorf("store unavailable: failed to add member %s: %w", m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store unavailable: failed to commit version: %w", err)
	}

	return &RepositoryVersion{
		ID:         versionID,
		Repository: repository,
		Number:     next,
		CreatedAt:  createdAt,
	}, nil
}

// GetVersion implements ContentStore.GetVersion.
func (s *SQLiteStore) GetVersion(ctx context.Context, repository string, number int64) (*RepositoryVersion, error) {
	v := &RepositoryVersion{Repository: repository}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, number, created_at FROM versions WHERE repository = ? AND number = ?`,
		repository, number).Scan(&v.ID, &v.Number, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to get version: %w", err)
	}
	return v, nil
}

// LatestVersion implements ContentStore.LatestVersion.
func (s *SQLiteStore) LatestVersion(ctx context.Context, repository string) (*RepositoryVersion, error) {
	v := &RepositoryVersion{Repository: repository}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, created_at FROM versions
		WHERE repository = ? ORDER BY number DESC LIMIT 1`,
		repository).Scan(&v.ID, &v.Number, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to get latest version: %w", err)
	}
	return v, nil
}

// VersionHandles implements ContentStore.VersionHandles.
func (s *SQLiteStore) VersionHandles(ctx context.Context, v *RepositoryVersion) ([]Handle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.record_type, r.natural_key, r.digest
		FROM records r
		JOIN version_members vm ON vm.record_id = r.id
		WHERE vm.version_id = ?
		ORDER BY r.record_type, r.natural_key`,
		v.ID)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to list version members: %w", err)
	}
	defer rows.Close()

	var handles []Handle
	for rows.Next() {
		var (
			h          Handle
			recordType string
			naturalKey string
			digest     string
		)
		if err := rows.Scan(&h.ID, &recordType, &naturalKey, &digest); err != nil {
			return nil, fmt.Errorf("store unavailable: failed to scan member: %w", err)
		}
		h.Key = content.NaturalKey{Type: content.RecordType(recordType), ID: naturalKey}
		h.Digest = content.Digest(digest)
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

// RecordsOfType implements ContentStore.RecordsOfType.
func (s *SQLiteStore) RecordsOfType(ctx context.Context, v *RepositoryVersion, t content.RecordType) ([]content.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.natural_key, r.digest, r.payload
		FROM records r
		JOIN version_members vm ON vm.record_id = r.id
		WHERE vm.version_id = ? AND r.record_type = ?
		ORDER BY r.natural_key`,
		v.ID, string(t))
	if err != nil {
		return nil, fmt.Errorf("store unavailable: failed to list records: %w", err)
	}
	defer rows.Close()

	var records []content.Record
	for rows.Next() {
		var (
			naturalKey string
			digest     string
			payload    []byte
		)
		if err := rows.Scan(&naturalKey, &digest, &payload); err != nil {
			return nil, fmt.Errorf("store unavailable: failed to scan record: %w", err)
		}
		rec, err := s.decodeRecord(t, naturalKey, content.Digest(digest), payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Path returns the database path (":memory:" for ephemeral stores).
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements ContentStore.
var _ ContentStore = (*SQLiteStore)(nil)
