package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// OpenDB opens a Postgres pool through the pgx stdlib driver.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	return db, nil
}

// SQLStore persists CRS definitions so restarts do not hit the remote
// CRS service again.
type SQLStore struct {
	DB *sql.DB
}

const createCRSTable = `
CREATE TABLE IF NOT EXISTS crs_definitions (
	epsg       INTEGER PRIMARY KEY,
	proj4      TEXT NOT NULL,
	wkt        TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("crs store: db is nil")
	}
	if _, err := s.DB.ExecContext(ctx, createCRSTable); err != nil {
		return fmt.Errorf("crs store: create table: %w", err)
	}
	return nil
}

// Get returns ok=false when the code has not been stored.
func (s *SQLStore) Get(ctx context.Context, epsg int) (CRSInfo, bool, error) {
	if s.DB == nil {
		return CRSInfo{}, false, errors.New("crs store: db is nil")
	}
	info := CRSInfo{EPSG: epsg}
	err := s.DB.QueryRowContext(ctx,
		`SELECT proj4, wkt FROM crs_definitions WHERE epsg = $1`, epsg,
	).Scan(&info.Proj4, &info.WKT)
	if errors.Is(err, sql.ErrNoRows) {
		return CRSInfo{}, false, nil
	}
	if err != nil {
		return CRSInfo{}, false, fmt.Errorf("crs store: query epsg=%d: %w", epsg, err)
	}
	return info, true, nil
}

func (s *SQLStore) Put(ctx context.Context, info CRSInfo) error {
	if s.DB == nil {
		return errors.New("crs store: db is nil")
	}
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO crs_definitions (epsg, proj4, wkt)
	VALUES ($1, $2, $3)
	ON CONFLICT (epsg) DO UPDATE
	SET proj4 = EXCLUDED.proj4,
		wkt = EXCLUDED.wkt,
		fetched_at = now();`,
		info.EPSG, info.Proj4, info.WKT)
	if err != nil {
		return fmt.Errorf("crs store: upsert epsg=%d: %w", info.EPSG, err)
	}
	return nil
}

type definitionStore interface {
	Get(ctx context.Context, epsg int) (CRSInfo, bool, error)
	Put(ctx context.Context, info CRSInfo) error
}

// PersistentSource reads through a definition store to a remote source.
// Store failures degrade to the remote lookup.
type PersistentSource struct {
	store  definitionStore
	remote CRSInfoSource
	logger *slog.Logger
}

func NewPersistentSource(store definitionStore, remote CRSInfoSource, logger *slog.Logger) *PersistentSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentSource{store: store, remote: remote, logger: logger}
}

func (p *PersistentSource) Lookup(ctx context.Context, epsg int) (CRSInfo, error) {
	info, ok, err := p.store.Get(ctx, epsg)
	if err != nil {
		p.logger.WarnContext(ctx, "crs store read failed", "epsg", epsg, "err", err)
	}
	if ok {
		return info, nil
	}
	info, err = p.remote.Lookup(ctx, epsg)
	if err != nil {
		return CRSInfo{}, err
	}
	if err := p.store.Put(ctx, info); err != nil {
		p.logger.WarnContext(ctx, "crs store write failed", "epsg", epsg, "err", err)
	}
	return info, nil
}
