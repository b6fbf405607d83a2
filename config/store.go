// Copyright (c) 2026 BVK Chaitanya

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/kvutil"
	"github.com/bvkgo/kv"
)

const settingsKey = "/config/settings"

// Store keeps the current runtime settings in the database and publishes
// change events on updates.
type Store struct {
	mu sync.Mutex

	db kv.Database

	bus *event.Bus

	settings Settings
}

// NewStore loads the settings saved in the database. Defaults are used when
// database has no saved settings.
func NewStore(ctx context.Context, db kv.Database, bus *event.Bus, defaults *Settings) (*Store, error) {
	s := &Store{
		db:  db,
		bus: bus,
	}
	if defaults != nil {
		s.settings = *defaults
	}

	saved, err := kvutil.GetDB[Settings](ctx, db, settingsKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load saved settings: %w", err)
		}
	} else {
		s.settings = *saved
	}

	s.settings.setDefaults()
	if err := s.settings.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// Duration returns a duration valued setting. It returns zero for unknown
// names.
func (s *Store) Duration(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.settings.durationPtr(name); p != nil {
		return *p
	}
	return 0
}

// Set updates a setting from its string form, saves the settings to the
// database and publishes a change event.
func (s *Store) Set(ctx context.Context, name, value string) error {
	ev, changed, err := s.update(ctx, name, value)
	if err != nil {
		return err
	}
	slog.Info("updated runtime setting", "name", name, "value", value, "changed", changed)
	if changed && s.bus != nil {
		s.bus.Publish(ev)
	}
	return nil
}

func (s *Store) update(ctx context.Context, name, value string) (event.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.settings
	var ev event.Event
	if name == ReplaceOrders {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, false, fmt.Errorf("could not parse %q as a boolean: %w", value, err)
		}
		tmp.ReplaceOrders = v
		ev = event.ReplaceFlagChanged{Enabled: v}
	} else {
		p := tmp.durationPtr(name)
		if p == nil {
			return nil, false, fmt.Errorf("setting %q: %w", name, os.ErrNotExist)
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, false, fmt.Errorf("could not parse %q as a duration: %w", value, err)
		}
		*p = d
		ev = event.ExpirationChanged{Name: name, Value: d}
	}
	if err := tmp.Check(); err != nil {
		return nil, false, err
	}

	if err := kvutil.SetDB(ctx, s.db, settingsKey, &tmp); err != nil {
		return nil, false, fmt.Errorf("could not save settings: %w", err)
	}
	changed := s.settings != tmp
	s.settings = tmp
	return ev, changed, nil
}
