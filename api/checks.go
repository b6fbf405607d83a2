// Copyright (c) 2026 BVK Chaitanya

package api

import (
	"fmt"
	"strings"
)

func (r *SettingsSetRequest) Check() error {
	if len(r.Name) == 0 {
		return fmt.Errorf("setting name cannot be empty")
	}
	if len(r.Value) == 0 {
		return fmt.Errorf("setting value cannot be empty")
	}
	return nil
}

func (r *SignalSubmitRequest) Check() error {
	if len(strings.TrimSpace(r.Line)) == 0 {
		return fmt.Errorf("signal line cannot be empty")
	}
	return nil
}

func (r *OrdersListRequest) Check() error {
	if r.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	return nil
}
