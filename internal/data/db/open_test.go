package db

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		in      string
		dialect Dialect
		dsn     string
	}{
		{"sqlite:///./mindmesh.db", DialectSQLite, "./mindmesh.db?_busy_timeout=5000&_foreign_keys=on"},
		{"sqlite:////var/lib/mm.db", DialectSQLite, "/var/lib/mm.db?_busy_timeout=5000&_foreign_keys=on"},
		{"sqlite://:memory:", DialectSQLite, ":memory:"},
		{"postgres://u:p@localhost:5432/mm?sslmode=disable", DialectPostgres, "postgres://u:p@localhost:5432/mm?sslmode=disable"},
		{"postgresql+psycopg://u@db/mm", DialectPostgres, "postgres://u@db/mm"},
	}
	for _, tc := range cases {
		got, err := ParseURL(tc.in)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", tc.in, err)
		}
		if got.Dialect != tc.dialect || got.DSN != tc.dsn {
			t.Fatalf("ParseURL(%q): want=%s %q got=%s %q", tc.in, tc.dialect, tc.dsn, got.Dialect, got.DSN)
		}
	}
}

func TestParseURLRejects(t *testing.T) {
	for _, in := range []string{"", "mindmesh.db", "mysql://root@localhost/mm", "sqlite://"} {
		if _, err := ParseURL(in); err == nil {
			t.Fatalf("ParseURL(%q): expected error", in)
		}
	}
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	target, err := ParseURL("sqlite://file:open_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	gdb, err := Open(target, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := AutoMigrateAll(gdb); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	for _, table := range []string{"session", "node", "link"} {
		if !gdb.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	if !gdb.Migrator().HasIndex("node", "idx_node_session_seq") {
		t.Fatalf("missing unique (session_id, seq) index")
	}
}

func TestGormLogsGoThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := gormWriter{log: &logger.Logger{SugaredLogger: zap.New(core).Sugar()}}
	l := gormLogger.New(w, gormLogger.Config{LogLevel: gormLogger.Warn})

	l.Error(context.Background(), "insert failed: %s", "constraint")
	l.Info(context.Background(), "ignored below level")

	if logs.Len() != 1 {
		t.Fatalf("want 1 entry, got %d", logs.Len())
	}
	e := logs.All()[0]
	if e.Level != zapcore.WarnLevel || !strings.Contains(e.Message, "insert failed: constraint") {
		t.Fatalf("unexpected entry: level=%s msg=%q", e.Level, e.Message)
	}
}
