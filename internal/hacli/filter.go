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
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	apperrors "hamcp/internal/errors"
)

const maxCommandLength = 4096

// msgCommandNotAllowed is the fixed client-facing rejection message; the
// matched rule or pattern is never echoed back.
const msgCommandNotAllowed = "command is not permitted"

func errCommandNotAllowed() error {
	return apperrors.New(apperrors.CodeCommandNotAllowed, msgCommandNotAllowed)
}

// CommandRule permits one command family by its leading tokens.
type CommandRule struct {
	Prefix      []string
	Description string
}

// DefaultRules is the static allowlist of ha CLI command families. Prefix
// matching is exact per token: "ha addonsx" does not match ["ha","addons"].
func DefaultRules() []CommandRule {
	return []CommandRule{
		{Prefix: []string{"ha", "addons"}, Description: "manage and inspect add-ons"},
		{Prefix: []string{"ha", "audio"}, Description: "audio subsystem info"},
		{Prefix: []string{"ha", "backups"}, Description: "list and inspect backups"},
		{Prefix: []string{"ha", "core"}, Description: "Home Assistant Core state and logs"},
		{Prefix: []string{"ha", "dns"}, Description: "DNS plugin info"},
		{Prefix: []string{"ha", "host"}, Description: "host system info and logs"},
		{Prefix: []string{"ha", "info"}, Description: "general installation info"},
		{Prefix: []string{"ha", "jobs"}, Description: "supervisor job queue"},
		{Prefix: []string{"ha", "network"}, Description: "network configuration info"},
		{Prefix: []string{"ha", "os"}, Description: "operating system info"},
		{Prefix: []string{"ha", "resolution"}, Description: "resolution center issues"},
		{Prefix: []string{"ha", "supervisor"}, Description: "supervisor state and logs"},
	}
}

// Deny patterns are scanned over the raw command string and win over any
// allowlist match: an allowed prefix cannot smuggle shell syntax or
// destructive verbs past the filter.
var denyPatterns = []*regexp.Regexp{
	// Shell control characters and substitution syntax. The executor never
	// invokes a shell, so these could not expand anyway; rejecting them
	// outright keeps smuggled syntax out of argument vectors too.
	regexp.MustCompile("[;&|<>`$\\\\\n\r]"),
	// Destructive or network verbs, as whole words anywhere in the string.
	regexp.MustCompile(`\b(rm|mv|dd|mkfs|chmod|chown|kill|sudo|su|wget|curl|reboot|shutdown|poweroff)\b`),
}

// Filter decides whether a raw command may run. It is stateless after
// construction and safe for concurrent use.
type Filter struct {
	rules []CommandRule
}

// NewFilter builds a filter from a static rule table.
func NewFilter(rules []CommandRule) *Filter {
	return &Filter{rules: rules}
}

// Evaluate tokenizes raw (quoted segments preserved, no shell expansion)
// and returns the argument vector when the command is allowed. Deny
// patterns are checked against the raw string independently of the
// allowlist and take precedence over it.
func (f *Filter) Evaluate(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" || len(raw) > maxCommandLength {
		return nil, errCommandNotAllowed()
	}

	for _, pattern := range denyPatterns {
		if pattern.MatchString(raw) {
			return nil, errCommandNotAllowed()
		}
	}

	tokens, err := shellwords.Parse(raw)
	if err != nil || len(tokens) == 0 {
		return nil, errCommandNotAllowed()
	}

	// The ha CLI addresses add-ons and subsystems by slug, never by
	// filesystem path.
	for _, token := range tokens {
		if strings.HasPrefix(token, "/") {
			return nil, errCommandNotAllowed()
		}
	}

	for _, rule := range f.rules {
		if matchesPrefix(tokens, rule.Prefix) {
			return tokens, nil
		}
	}
	return nil, errCommandNotAllowed()
}

func matchesPrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i, want := range prefix {
		if tokens[i] != want {
			return false
		}
	}
	return true
}
