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

package fileops

import (
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	apperrors "hamcp/internal/errors"
	"hamcp/internal/paths"
)

const maxPathLength = 4096

// msgPathViolation is the fixed client-facing rejection message. The
// requested path is never echoed back, so probing for forbidden paths
// reveals nothing about the filesystem layout.
const msgPathViolation = "path is not within allowed directories"

func errPathViolation() error {
	return apperrors.New(apperrors.CodePathViolation, msgPathViolation)
}

// Guard confines requested paths to a fixed set of allowed root
// directories. The roots are canonicalized once at construction; Confine is
// pure with respect to the guard and safe for concurrent use.
type Guard struct {
	roots []string
}

// NewGuard canonicalizes the configured directories into a Guard.
func NewGuard(dirs []string) (*Guard, error) {
	g := &Guard{}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		canonical, err := paths.Canonicalize(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot canonicalize allowed directory %q: %w", dir, err)
		}
		g.roots = append(g.roots, canonical)
	}
	return g, nil
}

// Roots returns a copy of the canonicalized allowed roots.
func (g *Guard) Roots() []string {
	return append([]string{}, g.roots...)
}

// Confine resolves requested to its canonical absolute form and verifies it
// lies inside one of the allowed roots. Relative paths are joined
// symlink-safely onto the primary root. Containment is tested per path
// component on the resolved target, never the textual input: /config-backup
// is not inside root /config, and a symlink pointing outside every root is
// rejected no matter where the link itself lives.
func (g *Guard) Confine(requested string) (string, error) {
	if err := paths.ValidatePathString(requested, maxPathLength); err != nil {
		return "", errPathViolation()
	}
	if len(g.roots) == 0 {
		return "", errPathViolation()
	}

	candidate := requested
	if !filepath.IsAbs(candidate) {
		joined, err := securejoin.SecureJoin(g.roots[0], candidate)
		if err != nil {
			return "", errPathViolation()
		}
		candidate = joined
	}

	resolved, err := paths.Canonicalize(candidate)
	if err != nil {
		return "", errPathViolation()
	}

	for _, root := range g.roots {
		if paths.HasPathPrefix(resolved, root) {
			return resolved, nil
		}
	}
	return "", errPathViolation()
}

// Recheck re-resolves an already-confined path and verifies it still lands
// on the same in-root target. Called immediately before destructive
// syscalls to shrink the window in which a swapped symlink could redirect
// the operation.
func (g *Guard) Recheck(confined string) error {
	resolved, err := paths.Canonicalize(confined)
	if err != nil || resolved != confined {
		return errPathViolation()
	}
	for _, root := range g.roots {
		if paths.HasPathPrefix(resolved, root) {
			return nil
		}
	}
	return errPathViolation()
}
