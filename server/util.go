// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"strings"

	"github.com/bvk/sigbot/signal"
)

func (s *Server) signalPrefix() string {
	if p := s.opts.Config.Mail.SubjectPrefix; len(p) != 0 {
		return strings.ToLower(p)
	}
	return signal.DefaultPrefix
}
