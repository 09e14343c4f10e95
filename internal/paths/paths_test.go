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

package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathStringRejectsNullByte(t *testing.T) {
	if err := ValidatePathString("bad\x00path", 0); err == nil {
		t.Fatal("expected error for null byte path")
	}
}

func TestValidatePathStringRejectsEmpty(t *testing.T) {
	if err := ValidatePathString("   ", 0); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestValidatePathStringRejectsOverlong(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidatePathString(string(long), 50); err == nil {
		t.Fatal("expected error for overlong path")
	}
}

func TestHasPathPrefixComponentWise(t *testing.T) {
	cases := []struct {
		path, base string
		want       bool
	}{
		{"/config", "/config", true},
		{"/config/automations.yaml", "/config", true},
		{"/config/sub/dir", "/config", true},
		{"/config-backup", "/config", false},
		{"/config2/file", "/config", false},
		{"/etc/passwd", "/config", false},
		{"/", "/config", false},
	}
	for _, tc := range cases {
		if got := HasPathPrefix(tc.path, tc.base); got != tc.want {
			t.Errorf("HasPathPrefix(%q, %q) = %v, want %v", tc.path, tc.base, got, tc.want)
		}
	}
}

func TestCanonicalizeResolvesSymlink(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	if err := os.MkdirAll(real, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	resolved, err := Canonicalize(filepath.Join(link, "file.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	realResolved, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatalf("eval real: %v", err)
	}
	if resolved != filepath.Join(realResolved, "file.txt") {
		t.Fatalf("expected canonical path under real dir, got %s", resolved)
	}
}

func TestCanonicalizeNonExistentAncestors(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "missing", "deeper", "file.txt")
	resolved, err := Canonicalize(target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseResolved, err := filepath.EvalSymlinks(base)
	if err != nil {
		t.Fatalf("eval base: %v", err)
	}
	if !HasPathPrefix(resolved, baseResolved) {
		t.Fatalf("expected resolved path under base, got %s", resolved)
	}
}
