// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"fmt"
	"strings"

	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/gobs"
)

func TypeNameValue(typename string) (any, error) {
	var v any
	switch typename {
	case "PositionState":
		v = new(gobs.PositionState)
	case "SignalState":
		v = new(gobs.SignalState)
	case "TelegramState":
		v = new(gobs.TelegramState)
	case "Settings":
		v = new(config.Settings)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}

// KeyTypeName returns the gob type name of the values saved at a key. Returns
// empty string for unknown keys.
func KeyTypeName(key string) string {
	switch {
	case strings.HasPrefix(key, "/positions/"):
		return "PositionState"
	case key == "/signal/state":
		return "SignalState"
	case strings.HasPrefix(key, "/telegram/"):
		return "TelegramState"
	case key == "/config/settings":
		return "Settings"
	}
	return ""
}
