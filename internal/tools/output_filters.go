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
	"regexp"
	"strings"

	"hamcp/internal/config"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][0-9A-B]`)

// outputFilter sanitizes command output before it reaches a client. It is
// applied to CLI results only; file contents pass through untouched.
type outputFilter struct {
	maxChars     int
	stripANSI    bool
	stripControl bool
}

func newOutputFilter(cfg config.ToolOutputFilters) *outputFilter {
	return &outputFilter{
		maxChars:     cfg.MaxChars,
		stripANSI:    cfg.StripANSI,
		stripControl: cfg.StripControl,
	}
}

func (f *outputFilter) sanitize(text string) string {
	if f.stripANSI {
		text = ansiEscape.ReplaceAllString(text, "")
	}
	if f.stripControl {
		text = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\t' || r == '\r' {
				return r
			}
			if r < 0x20 || r == 0x7f {
				return -1
			}
			return r
		}, text)
	}
	if f.maxChars > 0 && len(text) > f.maxChars {
		text = text[:f.maxChars] + "\n[output truncated]"
	}
	return text
}
