// Copyright (c) 2026 BVK Chaitanya

package cmdutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bvk/sigbot/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
)

func TestRestore(t *testing.T) {
	ctx := context.Background()

	src := kvmemdb.New()
	for _, k := range []string{"/a", "/b/c"} {
		v := k
		if err := kvutil.SetDB(ctx, src, k, &v); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := kv.WithReader(ctx, src, func(ctx context.Context, r kv.Reader) error {
		return kvutil.Export(ctx, r, &buf)
	}); err != nil {
		t.Fatal(err)
	}

	dst := kvmemdb.New()
	stale := "stale"
	if err := kvutil.SetDB(ctx, dst, "/old", &stale); err != nil {
		t.Fatal(err)
	}
	if err := Restore(ctx, &buf, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := kvutil.GetDB[string](ctx, dst, "/old"); err == nil {
		t.Fatalf("want old keys removed by the restore")
	}
	v, err := kvutil.GetDB[string](ctx, dst, "/b/c")
	if err != nil || *v != "/b/c" {
		t.Fatalf("want restored value, got %v, %v", v, err)
	}
}

func TestDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	got, err := DataDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(got); err != nil || !st.IsDir() {
		t.Fatalf("want data directory created, got %v", err)
	}
	if !strings.HasSuffix(SecretsPath(got), "secrets.json") || !strings.HasPrefix(BadgerDir(got), got) {
		t.Fatalf("unexpected paths under %q", got)
	}
}

func TestIsGoodKey(t *testing.T) {
	for key, want := range map[string]bool{
		"/positions/bittrex/main/ETH": true,
		"positions":                   false,
		"/a/../b":                     false,
		"/a/":                         false,
	} {
		if got := IsGoodKey(key); got != want {
			t.Errorf("%q: want %t, got %t", key, want, got)
		}
	}
}
