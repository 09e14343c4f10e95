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
	"time"

	"hamcp/internal/config"
)

const defaultToolTimeout = 60 * time.Second

// timeoutTable resolves per-tool execution deadlines. It is built once at
// registry construction and read-only afterwards.
type timeoutTable struct {
	fallback time.Duration
	perTool  map[string]time.Duration
}

func newTimeoutTable(cfg config.ToolTimeouts) *timeoutTable {
	table := &timeoutTable{
		fallback: defaultToolTimeout,
		perTool:  make(map[string]time.Duration, len(cfg.PerToolSeconds)),
	}
	if cfg.DefaultSeconds > 0 {
		table.fallback = time.Duration(cfg.DefaultSeconds) * time.Second
	}
	for name, secs := range cfg.PerToolSeconds {
		if secs > 0 {
			table.perTool[name] = time.Duration(secs) * time.Second
		}
	}
	return table
}

func (t *timeoutTable) forTool(name string) time.Duration {
	if d, ok := t.perTool[name]; ok {
		return d
	}
	return t.fallback
}
