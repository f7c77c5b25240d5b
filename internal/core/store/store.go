package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feedwatch/feedwatch/internal/config"
)

// Supported values of store.driver. "sqlite" and "memory" run on the pure
// Go modernc driver; "libsql" needs cgo but can also reach a remote Turso
// database.
const (
	driverLibsql = "libsql"
	driverSQLite = "sqlite"
	driverMemory = "memory"
)

const (
	memoryDSN         = ":memory:"
	filePrefix        = "file:"
	busyTimeoutMillis = 5000
)

// Store wraps the database connection for feedwatch.
//
// It backs the key-value store (dedup entries and sessions), the watch
// target list and persisted pool snapshots.
type Store struct {
	DB     *sql.DB
	driver string

	// Clock overrides time.Now for expiry checks.
	Clock func() time.Time
}

// connection is what a driver resolves a StoreConfig to before dialing.
type connection struct {
	sqlDriver string
	dsn       string
	// local databases get a single pinned connection, WAL and a busy timeout.
	local bool
}

func resolveConnection(driver string, cfg config.StoreConfig) (connection, error) {
	switch driver {
	case driverLibsql:
		dsn, err := buildLibsqlDSN(cfg)
		if err != nil {
			return connection{}, err
		}
		local := dsn == memoryDSN || strings.HasPrefix(dsn, filePrefix)
		return connection{sqlDriver: driverLibsql, dsn: dsn, local: local}, nil
	case driverSQLite:
		path := strings.TrimPrefix(strings.TrimSpace(cfg.Path), filePrefix)
		if path == "" {
			return connection{}, errors.New("store path is required for sqlite")
		}
		if err := ensureStoreDir(path); err != nil {
			return connection{}, err
		}
		return connection{sqlDriver: driverSQLite, dsn: path, local: true}, nil
	case driverMemory:
		return connection{sqlDriver: driverSQLite, dsn: memoryDSN, local: true}, nil
	default:
		return connection{}, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// Open connects to the configured database. An empty driver selects libsql.
// Call Migrate before use.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}

	conn, err := resolveConnection(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(conn.sqlDriver, conn.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	store := &Store{DB: db, driver: driver}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}
	if conn.local {
		if err := store.configureLocal(ctx, conn.dsn == memoryDSN); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// configureLocal pins one connection so an in-memory database is shared
// and writers to a file serialize.
func (s *Store) configureLocal(ctx context.Context, inMemory bool) error {
	s.DB.SetMaxOpenConns(1)
	s.DB.SetMaxIdleConns(1)

	var ignored any
	if !inMemory {
		if err := s.DB.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&ignored); err != nil {
			return fmt.Errorf("enable wal: %w", err)
		}
	}
	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)
	if err := s.DB.QueryRowContext(ctx, pragma).Scan(&ignored); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func (s *Store) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// buildLibsqlDSN prefers store.url (remote, with the auth token appended)
// and otherwise turns store.path into a file: DSN, creating its directory.
func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if remote := strings.TrimSpace(cfg.URL); remote != "" {
		return withAuthToken(remote, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryDSN, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, filePrefix):
		local, err := localPath(path)
		if err != nil {
			return "", err
		}
		return path, ensureStoreDir(local)
	default:
		return filePrefix + filepath.Clean(path), ensureStoreDir(path)
	}
}

// withAuthToken sets the authToken query parameter unless the URL already
// carries one.
func withAuthToken(raw, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return raw, nil
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// localPath extracts the filesystem path from a file: DSN.
func localPath(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return strings.TrimPrefix(p, "//"), nil
}

func ensureStoreDir(path string) error {
	if path == "" || path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- shared data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
