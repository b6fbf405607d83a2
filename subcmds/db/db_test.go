// Copyright (c) 2026 BVK Chaitanya

package db

import (
	"testing"

	"github.com/bvk/sigbot/gobs"
)

func TestKeyTypeName(t *testing.T) {
	for key, want := range map[string]string{
		"/positions/bittrex/main/ETH": "PositionState",
		"/signal/state":               "SignalState",
		"/telegram/mybot/state":       "TelegramState",
		"/config/settings":            "Settings",
		"/unknown":                    "",
	} {
		if got := KeyTypeName(key); got != want {
			t.Errorf("%s: want %q, got %q", key, want, got)
		}
	}

	v, err := TypeNameValue(KeyTypeName("/positions/bittrex/main/ETH"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*gobs.PositionState); !ok {
		t.Fatalf("want *gobs.PositionState, got %T", v)
	}
	if _, err := TypeNameValue(""); err == nil {
		t.Fatalf("want error for empty type name")
	}
}
