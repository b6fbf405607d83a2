// Copyright (c) 2026 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/sigbot/api"
	"github.com/shirou/gopsutil/v4/process"
)

func (s *Server) doStatus(ctx context.Context, _ *api.StatusRequest) (*api.StatusResponse, error) {
	resp := &api.StatusResponse{
		Pid:           os.Getpid(),
		StartTime:     s.startTime,
		Uptime:        time.Since(s.startTime),
		Exchanges:     s.exchanges.Names(),
		Accounts:      s.accountNames(),
		NumPositions:  s.stoploss.Len(),
		NumQueued:     s.queue.Len(),
		Tasks:         make(map[string]time.Duration),
		ReplaceOrders: s.replacer.Enabled(),
	}
	for _, name := range s.scheduler.Tasks() {
		if d, err := s.scheduler.Interval(name); err == nil {
			resp.Tasks[name] = d
		}
	}

	proc, err := process.NewProcessWithContext(ctx, int32(resp.Pid))
	if err != nil {
		slog.Warn("could not inspect the current process (ignored)", "err", err)
		return resp, nil
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
		resp.RSS = mem.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		resp.CPUPercent = cpu
	}
	if msecs, err := proc.CreateTimeWithContext(ctx); err == nil {
		resp.StartTime = time.UnixMilli(msecs)
		resp.Uptime = time.Since(resp.StartTime)
	}
	return resp, nil
}
