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

package tools

import (
	"fmt"
	"sync"
	"time"

	apperrors "hamcp/internal/errors"

	"hamcp/internal/config"
)

// toolRateLimiter enforces per-tool call budgets over a sliding one-minute
// window, plus optional cooldowns between consecutive calls to the same
// tool. Limits are fixed at construction; only the call history mutates.
type toolRateLimiter struct {
	mu        sync.Mutex
	perMinute map[string]int
	cooldown  map[string]time.Duration
	fallback  int
	history   map[string][]time.Time
	lastCall  map[string]time.Time
	now       func() time.Time
}

func newToolRateLimiter(cfg config.ToolRateLimits) *toolRateLimiter {
	limiter := &toolRateLimiter{
		perMinute: make(map[string]int, len(cfg.PerTool)),
		cooldown:  make(map[string]time.Duration, len(cfg.CooldownSeconds)),
		fallback:  cfg.DefaultPerMinute,
		history:   make(map[string][]time.Time),
		lastCall:  make(map[string]time.Time),
		now:       time.Now,
	}
	for name, limit := range cfg.PerTool {
		limiter.perMinute[name] = limit
	}
	for name, secs := range cfg.CooldownSeconds {
		if secs > 0 {
			limiter.cooldown[name] = time.Duration(secs) * time.Second
		}
	}
	return limiter
}

// allow records a call attempt and fails when the tool is over budget or
// still cooling down. Rejected attempts are not recorded.
func (l *toolRateLimiter) allow(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if cd, ok := l.cooldown[name]; ok {
		if last, called := l.lastCall[name]; called && now.Sub(last) < cd {
			return apperrors.New(apperrors.CodeInvalidArguments,
				fmt.Sprintf("tool %s is cooling down; retry in %s", name, (cd - now.Sub(last)).Round(time.Second)))
		}
	}

	limit, ok := l.perMinute[name]
	if !ok {
		limit = l.fallback
	}
	if limit > 0 {
		cutoff := now.Add(-time.Minute)
		recent := l.history[name][:0]
		for _, t := range l.history[name] {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		l.history[name] = recent
		if len(recent) >= limit {
			return apperrors.New(apperrors.CodeInvalidArguments,
				fmt.Sprintf("tool %s exceeded its rate limit of %d calls per minute", name, limit))
		}
		l.history[name] = append(l.history[name], now)
	}

	l.lastCall[name] = now
	return nil
}
