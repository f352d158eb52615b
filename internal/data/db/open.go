package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Target is a parsed DB_URL.
type Target struct {
	Dialect Dialect
	DSN     string
}

// ParseURL accepts sqlite:///relative.db, sqlite:////abs.db, sqlite://:memory:
// and postgres:// or postgresql:// URLs (an optional +driver suffix is dropped).
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Target{}, fmt.Errorf("db url %q: missing scheme", raw)
	}
	scheme, _, _ = strings.Cut(strings.ToLower(scheme), "+")
	switch scheme {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return Target{}, fmt.Errorf("db url %q: missing sqlite path", raw)
		}
		return Target{Dialect: DialectSQLite, DSN: sqliteDSN(path)}, nil
	case "postgres", "postgresql":
		return Target{Dialect: DialectPostgres, DSN: "postgres://" + rest}, nil
	default:
		return Target{}, fmt.Errorf("db url %q: unsupported scheme %q", raw, scheme)
	}
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "_busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

type Service struct {
	db      *gorm.DB
	dialect Dialect
	log     *logger.Logger
}

func NewService(logg *logger.Logger, dbURL string) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	target, err := ParseURL(dbURL)
	if err != nil {
		return nil, err
	}

	gormLog := gormLogger.New(
		gormWriter{log: serviceLog.With("component", "gorm")},
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := Open(target, gormLog)
	if err != nil {
		return nil, err
	}
	serviceLog.Info("Database connected", "dialect", target.Dialect)
	return &Service{db: db, dialect: target.Dialect, log: serviceLog}, nil
}

// gormWriter sends gorm's slow-query and error lines through zap.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.SugaredLogger.Warnf(strings.TrimSpace(format), args...)
}

// Open connects to target. SQLite is pinned to a single connection so writers queue
// in the pool instead of failing with SQLITE_BUSY.
func Open(target Target, l gormLogger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch target.Dialect {
	case DialectSQLite:
		dialector = sqlite.Open(target.DSN)
	case DialectPostgres:
		dialector = postgres.Open(target.DSN)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", target.Dialect)
	}
	cfg := &gorm.Config{Logger: l}
	if l == nil {
		cfg.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target.Dialect, err)
	}
	if target.Dialect == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() Dialect { return s.dialect }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
