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

// Package tools registers and dispatches the MCP tool set. The registry is
// assembled once at startup from immutable configuration; after that it only
// routes calls, so no locking is needed around the tool table itself.
package tools

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"hamcp/internal/config"
	"hamcp/internal/fileops"
	"hamcp/internal/hacli"
	"hamcp/internal/supervisor"
)

// Deps carries the components the built-in tools execute against. A nil
// Supervisor skips registration of the supervisor-backed tools.
type Deps struct {
	Files      *fileops.Handler
	CLI        *hacli.Service
	Supervisor *supervisor.Client
}

// Definition is the tool descriptor returned by tools/list.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Registry owns the tool table and the execution policy around it: rate
// limits, per-tool timeouts and output sanitization.
type Registry struct {
	tools    map[string]Tool
	limiter  *toolRateLimiter
	timeouts *timeoutTable
	filter   *outputFilter
	log      zerolog.Logger
}

// NewRegistry builds the registry and registers the built-in tools.
func NewRegistry(deps Deps, cfg *config.Config, log zerolog.Logger) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		limiter:  newToolRateLimiter(cfg.ToolRateLimits),
		timeouts: newTimeoutTable(cfg.ToolTimeouts),
		filter:   newOutputFilter(cfg.ToolOutputFilters),
		log:      log.With().Str("component", "tools").Logger(),
	}
	r.registerBuiltins(deps)
	return r
}

func (r *Registry) register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool descriptors for discovery, in name order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, name := range r.Names() {
		tool := r.tools[name]
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		})
	}
	return defs
}

// Execute validates and runs one tool call. The per-tool timeout bounds the
// execution; rate limiting and validation happen before any work starts.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", errToolNotFound(name)
	}

	if err := r.limiter.allow(name); err != nil {
		r.log.Warn().Str("tool", name).Err(err).Msg("tool call rate limited")
		return "", err
	}
	if err := tool.Validate(args); err != nil {
		return "", err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeouts.forTool(name))
	defer cancel()

	r.log.Debug().Str("tool", name).Msg("executing tool")
	result, err := tool.Execute(execCtx, args)
	if err != nil {
		r.log.Warn().Str("tool", name).Err(err).Msg("tool call failed")
		return "", err
	}
	return result, nil
}
