// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogBackend(t *testing.T) {
	ctx := context.Background()
	for _, debug := range []bool{false, true} {
		logsDir := filepath.Join(t.TempDir(), "logs")
		backend, err := newLogBackend(logsDir, debug)
		if err != nil {
			t.Fatal(err)
		}
		if fi, err := os.Stat(logsDir); err != nil || !fi.IsDir() {
			t.Fatalf("want logs directory created, got %v", err)
		}
		h := backend.Handler()
		if got := h.Enabled(ctx, slog.LevelDebug); got != debug {
			t.Errorf("debug=%t: want debug messages enabled=%t, got %t", debug, debug, got)
		}
		if !h.Enabled(ctx, slog.LevelInfo) {
			t.Errorf("debug=%t: want info messages enabled", debug)
		}
		backend.Close()
	}
}
