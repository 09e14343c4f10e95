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
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "hamcp/internal/errors"
)

func newTestGuard(t *testing.T, dirs ...string) *Guard {
	t.Helper()
	guard, err := NewGuard(dirs)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return guard
}

func requirePathViolation(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected path violation, got nil")
	}
	if !apperrors.HasCode(err, apperrors.CodePathViolation) {
		t.Fatalf("expected path_violation, got %v", err)
	}
}

func TestConfineAcceptsPathsInsideRoot(t *testing.T) {
	root := t.TempDir()
	guard := newTestGuard(t, root)

	confined, err := guard.Confine(filepath.Join(root, "automations.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rootResolved, _ := filepath.EvalSymlinks(root)
	if confined != filepath.Join(rootResolved, "automations.yaml") {
		t.Fatalf("unexpected confined path: %s", confined)
	}
}

func TestConfineAcceptsRootItself(t *testing.T) {
	root := t.TempDir()
	guard := newTestGuard(t, root)
	if _, err := guard.Confine(root); err != nil {
		t.Fatalf("unexpected error confining the root: %v", err)
	}
}

func TestConfineRejectsSiblingWithRootPrefix(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	sibling := filepath.Join(base, "config-backup")
	for _, dir := range []string{root, sibling} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	guard := newTestGuard(t, root)

	_, err := guard.Confine(filepath.Join(sibling, "keys.txt"))
	requirePathViolation(t, err)
}

func TestConfineRejectsDotDotEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	guard := newTestGuard(t, root)

	_, err := guard.Confine(filepath.Join(root, "..", "secrets", "keys.txt"))
	requirePathViolation(t, err)
}

func TestConfineRejectsSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	outside := filepath.Join(base, "outside")
	for _, dir := range []string{root, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("hidden"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	guard := newTestGuard(t, root)

	_, err := guard.Confine(link)
	requirePathViolation(t, err)
}

func TestConfineRejectsEmptyAndOverlong(t *testing.T) {
	guard := newTestGuard(t, t.TempDir())

	_, err := guard.Confine("")
	requirePathViolation(t, err)

	_, err = guard.Confine("/" + strings.Repeat("a", maxPathLength))
	requirePathViolation(t, err)
}

func TestConfineWithNoRootsRejectsEverything(t *testing.T) {
	guard := newTestGuard(t)
	_, err := guard.Confine("/config/file.txt")
	requirePathViolation(t, err)
}

func TestConfineJoinsRelativeAgainstPrimaryRoot(t *testing.T) {
	root := t.TempDir()
	guard := newTestGuard(t, root)

	confined, err := guard.Confine("notes/today.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rootResolved, _ := filepath.EvalSymlinks(root)
	if confined != filepath.Join(rootResolved, "notes", "today.md") {
		t.Fatalf("unexpected confined path: %s", confined)
	}
}

func TestConfineMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	guard := newTestGuard(t, rootA, rootB)

	if _, err := guard.Confine(filepath.Join(rootB, "media.mp3")); err != nil {
		t.Fatalf("expected second root to be allowed: %v", err)
	}
}

func TestConfineAllowsInRootSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "alias.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	guard := newTestGuard(t, root)

	confined, err := guard.Confine(link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rootResolved, _ := filepath.EvalSymlinks(root)
	if confined != filepath.Join(rootResolved, "real.txt") {
		t.Fatalf("expected resolved target, got %s", confined)
	}
}

func TestRecheckDetectsSwappedTarget(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	outside := filepath.Join(base, "outside")
	for _, dir := range []string{root, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	guard := newTestGuard(t, root)

	victim := filepath.Join(root, "victim.txt")
	if err := os.WriteFile(victim, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	confined, err := guard.Confine(victim)
	if err != nil {
		t.Fatalf("confine: %v", err)
	}

	// Swap the confined file for a symlink pointing outside the root.
	if err := os.Remove(confined); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "other.txt"), confined); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	requirePathViolation(t, guard.Recheck(confined))
}
