// Copyright (c) 2026 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/gobs"
)

const defaultOrdersLimit = 20

func (s *Server) doPositionsList(ctx context.Context, req *api.PositionsListRequest) (*api.PositionsListResponse, error) {
	var positions []*gobs.PositionState
	for _, p := range s.stoploss.Positions() {
		if len(req.Exchange) != 0 && !strings.EqualFold(p.Exchange, req.Exchange) {
			continue
		}
		if len(req.Account) != 0 && p.Account != req.Account {
			continue
		}
		positions = append(positions, p)
	}
	return &api.PositionsListResponse{Positions: positions}, nil
}

func (s *Server) doQueueList(ctx context.Context, req *api.QueueListRequest) (*api.QueueListResponse, error) {
	resp := new(api.QueueListResponse)
	for _, order := range s.queue.Pending() {
		resp.Orders = append(resp.Orders, &api.QueueListItem{
			Exchange: order.Exchange,
			Account:  order.Account,
			MainCoin: order.MainCoin,
			AltCoin:  order.AltCoin,
			Side:     order.Type.String(),
			Quantity: order.Quantity,
			Rate:     order.Rate,
		})
	}
	return resp, nil
}

func (s *Server) doSettingsGet(ctx context.Context, req *api.SettingsGetRequest) (*api.SettingsGetResponse, error) {
	names := req.Names
	if len(names) == 0 {
		names = config.Names()
	}
	settings := s.settings.Settings()
	values := make(map[string]string)
	for _, name := range names {
		v, err := settings.Get(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", err, os.ErrNotExist)
		}
		values[name] = v
	}
	return &api.SettingsGetResponse{Values: values}, nil
}

func (s *Server) doSettingsSet(ctx context.Context, req *api.SettingsSetRequest) (*api.SettingsSetResponse, error) {
	if err := req.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	if !slices.Contains(config.Names(), req.Name) {
		return nil, fmt.Errorf("setting %q is not defined: %w", req.Name, os.ErrNotExist)
	}
	old := s.settings.Settings()
	oldValue, _ := old.Get(req.Name)
	if err := s.settings.Set(ctx, req.Name, req.Value); err != nil {
		return nil, fmt.Errorf("could not update setting %q: %w: %w", req.Name, err, os.ErrInvalid)
	}
	current := s.settings.Settings()
	newValue, _ := current.Get(req.Name)
	return &api.SettingsSetResponse{OldValue: oldValue, NewValue: newValue}, nil
}

func (s *Server) doSignalSubmit(ctx context.Context, req *api.SignalSubmitRequest) (*api.SignalSubmitResponse, error) {
	if err := req.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	n, err := s.processor.Submit(ctx, req.Line)
	if err != nil {
		return nil, fmt.Errorf("could not submit signal: %w: %w", err, os.ErrInvalid)
	}
	return &api.SignalSubmitResponse{NumOrders: n}, nil
}

func (s *Server) doOrdersList(ctx context.Context, req *api.OrdersListRequest) (*api.OrdersListResponse, error) {
	if err := req.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	if s.journal == nil {
		return nil, fmt.Errorf("order journal is not configured: %w", os.ErrNotExist)
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultOrdersLimit
	}
	entries, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	resp := new(api.OrdersListResponse)
	for _, e := range entries {
		resp.Orders = append(resp.Orders, &api.OrdersListItem{
			ID:       e.ID,
			Time:     e.Time,
			Exchange: e.Exchange,
			Account:  e.Account,
			Market:   e.AltCoin + "-" + e.MainCoin,
			Side:     e.Side.String(),
			Quantity: e.Quantity,
			Rate:     e.Rate,
			Status:   string(e.Status),
			OrderID:  e.OrderID,
			Error:    e.Error,
		})
	}
	return resp, nil
}
