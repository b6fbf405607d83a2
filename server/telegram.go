// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/telegram"
)

// telegramService answers the telegram bot commands with the same handlers
// as the http api.
type telegramService struct {
	s *Server
}

var _ telegram.Service = telegramService{}

func (v telegramService) Status(ctx context.Context, req *api.StatusRequest) (*api.StatusResponse, error) {
	return v.s.doStatus(ctx, req)
}

func (v telegramService) ListPositions(ctx context.Context, req *api.PositionsListRequest) (*api.PositionsListResponse, error) {
	return v.s.doPositionsList(ctx, req)
}

func (v telegramService) ListQueue(ctx context.Context, req *api.QueueListRequest) (*api.QueueListResponse, error) {
	return v.s.doQueueList(ctx, req)
}

func (v telegramService) GetSettings(ctx context.Context, req *api.SettingsGetRequest) (*api.SettingsGetResponse, error) {
	return v.s.doSettingsGet(ctx, req)
}

func (v telegramService) SetSetting(ctx context.Context, req *api.SettingsSetRequest) (*api.SettingsSetResponse, error) {
	return v.s.doSettingsSet(ctx, req)
}

func (v telegramService) SubmitSignal(ctx context.Context, req *api.SignalSubmitRequest) (*api.SignalSubmitResponse, error) {
	return v.s.doSignalSubmit(ctx, req)
}

func (v telegramService) SignalPrefix() string {
	return v.s.signalPrefix()
}
