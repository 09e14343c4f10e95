// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package hacli

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "hamcp/internal/errors"
)

// Service couples the safety filter with the executor. When disabled, every
// call fails before any filtering or process spawning happens.
type Service struct {
	enabled bool
	filter  *Filter
	exec    *Executor
	log     zerolog.Logger
}

// NewService builds the CLI execution service.
func NewService(enabled bool, timeout time.Duration, maxOutput int64, log zerolog.Logger) *Service {
	return &Service{
		enabled: enabled,
		filter:  NewFilter(DefaultRules()),
		exec:    NewExecutor(timeout, maxOutput, log),
		log:     log.With().Str("component", "hacli").Logger(),
	}
}

// Enabled reports whether the CLI tool is active.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Execute filters raw and, when allowed, runs it as an argument vector.
func (s *Service) Execute(ctx context.Context, raw string) (*CommandResult, error) {
	if !s.enabled {
		return nil, apperrors.New(apperrors.CodeFeatureDisabled, "HA CLI execution is disabled")
	}

	tokens, err := s.filter.Evaluate(raw)
	if err != nil {
		s.log.Warn().Msg("command rejected by safety filter")
		return nil, err
	}

	return s.exec.Run(ctx, tokens)
}
