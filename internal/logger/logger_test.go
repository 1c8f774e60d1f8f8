package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestModuleAddsField(t *testing.T) {
	var buf bytes.Buffer
	InitOutput("info", &buf)

	roster := Module("roster")
	roster.Info().Msg("hello")
	roster.Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"module":"roster"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("log output = %q, want module field and message", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %q", out)
	}
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	InitOutput("debug", &buf)
	l := NewGormLogger("gorm")
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast queries and not-found logged at warn mode: %q", buf.String())
	}

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("failed query not logged: %q", buf.String())
	}

	buf.Reset()
	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode logged: %q", buf.String())
	}
}
