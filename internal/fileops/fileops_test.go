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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	apperrors "hamcp/internal/errors"
)

func newTestHandler(t *testing.T, root string, readOnly bool, maxSize int64) *Handler {
	t.Helper()
	h, err := NewHandler([]string{root}, readOnly, maxSize, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 10*1024*1024)
	ctx := context.Background()

	target := filepath.Join(root, "automations.yaml")
	content := "automation:\n  - alias: test\n"
	if err := h.Write(ctx, target, content); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := h.Read(ctx, target, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != content {
		t.Fatalf("round trip mismatch: %q != %q", got, content)
	}
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 1024)
	ctx := context.Background()

	target := filepath.Join(root, "esphome", "devices", "sensor.yaml")
	if err := h.Write(ctx, target, "data"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected file created: %v", err)
	}
}

func TestMutationsRejectedInReadOnlyMode(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "keep.txt")
	if err := os.WriteFile(existing, []byte("keep"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, true, 1024)
	ctx := context.Background()

	cases := []struct {
		name string
		op   func() error
	}{
		{"write", func() error { return h.Write(ctx, existing, "overwrite") }},
		{"create_dir", func() error { return h.CreateDir(ctx, filepath.Join(root, "new")) }},
		{"delete", func() error { return h.Delete(ctx, existing, false) }},
	}
	for _, tc := range cases {
		err := tc.op()
		if !apperrors.HasCode(err, apperrors.CodeReadOnly) {
			t.Errorf("%s: expected read_only, got %v", tc.name, err)
		}
	}

	// No mutation must have happened.
	data, err := os.ReadFile(existing)
	if err != nil || string(data) != "keep" {
		t.Fatalf("file mutated in read-only mode: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(root, "new")); !os.IsNotExist(err) {
		t.Fatal("directory created in read-only mode")
	}
}

func TestWriteRejectsOversizedContentWithoutPartialWrite(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 8)
	ctx := context.Background()

	target := filepath.Join(root, "big.txt")
	err := h.Write(ctx, target, "way more than eight bytes")
	if !apperrors.HasCode(err, apperrors.CodeFileTooLarge) {
		t.Fatalf("expected file_too_large, got %v", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("expected no file on rejected write")
	}
}

func TestWriteLeavesExistingFileUntouchedOnRejection(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 8)
	ctx := context.Background()

	target := filepath.Join(root, "small.txt")
	if err := h.Write(ctx, target, "ok"); err != nil {
		t.Fatalf("setup write: %v", err)
	}
	if err := h.Write(ctx, target, "definitely too large now"); err == nil {
		t.Fatal("expected rejection")
	}
	data, _ := os.ReadFile(target)
	if string(data) != "ok" {
		t.Fatalf("existing content changed: %q", data)
	}
}

func TestReadRejectsOversizedFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "big.log")
	if err := os.WriteFile(target, []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 10)

	_, err := h.Read(context.Background(), target, nil)
	if !apperrors.HasCode(err, apperrors.CodeFileTooLarge) {
		t.Fatalf("expected file_too_large, got %v", err)
	}
}

func TestRangedReadOfOversizedFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "big.log")
	if err := os.WriteFile(target, []byte("0123456789abcdef"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 10)

	got, err := h.Read(context.Background(), target, &ReadOptions{Offset: 4, Length: 4})
	if err != nil {
		t.Fatalf("ranged read: %v", err)
	}
	if got != "4567" {
		t.Fatalf("expected window 4567, got %q", got)
	}
}

func TestRangedReadWindowCappedBySizeLimit(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "big.log")
	if err := os.WriteFile(target, []byte(strings.Repeat("z", 64)), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 10)

	got, err := h.Read(context.Background(), target, &ReadOptions{Length: 50})
	if err != nil {
		t.Fatalf("ranged read: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected window capped at 10 bytes, got %d", len(got))
	}
}

func TestReadMissingFile(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 1024)
	_, err := h.Read(context.Background(), filepath.Join(root, "nope.txt"), nil)
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDeleteOutsideRootsIsPathViolation(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	err := h.Delete(context.Background(), filepath.Join(root, "..", "secrets", "keys.txt"), false)
	if !apperrors.HasCode(err, apperrors.CodePathViolation) {
		t.Fatalf("expected path_violation, got %v", err)
	}
}

func TestDeleteNonEmptyDirectoryRequiresRecursive(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "stale")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)
	ctx := context.Background()

	if err := h.Delete(ctx, sub, false); err == nil {
		t.Fatal("expected error deleting non-empty directory without recursive")
	}
	if err := h.Delete(ctx, sub, true); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatal("expected directory removed")
	}
}

func TestListSortsDirectoriesFirst(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "zdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "afile.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	entries, err := h.List(context.Background(), root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != "directory" || entries[0].Name != "zdir" {
		t.Fatalf("expected directory first, got %+v", entries[0])
	}
	if entries[1].Size == nil || *entries[1].Size != 1 {
		t.Fatalf("expected file size 1, got %+v", entries[1])
	}
}

func TestSearchFindsPatternWithLineNumbers(t *testing.T) {
	root := t.TempDir()
	content := "line one\nneedle here\nline three\nAnother NEEDLE\n"
	if err := os.WriteFile(filepath.Join(root, "hay.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "other.txt"), []byte("nothing"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	results, err := h.Search(context.Background(), root, "needle")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 matching file, got %d", len(results))
	}
	if len(results[0].Matches) != 2 {
		t.Fatalf("expected 2 matches (case-insensitive), got %d", len(results[0].Matches))
	}
	if results[0].Matches[0].Line != 2 {
		t.Fatalf("expected first match on line 2, got %d", results[0].Matches[0].Line)
	}
}

func TestSearchSkipsEscapingSymlinks(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "config")
	outside := filepath.Join(base, "outside")
	for _, dir := range []string{root, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("needle"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	results, err := h.Search(context.Background(), root, "needle")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected escaping symlink to be skipped, got %v", results)
	}
}

func TestSearchSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte("needle "+strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 10)

	results, err := h.Search(context.Background(), root, "needle")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected oversized file skipped, got %v", results)
	}
}

func TestSearchCancelled(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("needle"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Search(ctx, root, "needle"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestCreateDirRejectsExisting(t *testing.T) {
	root := t.TempDir()
	h := newTestHandler(t, root, false, 1024)
	ctx := context.Background()

	target := filepath.Join(root, "dashboards")
	if err := h.CreateDir(ctx, target); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.CreateDir(ctx, target); err == nil {
		t.Fatal("expected error for existing directory")
	}
}

func TestReadBinaryFileReturnsPlaceholder(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "blob.bin")
	if err := os.WriteFile(target, []byte{0x00, 0x01, 0xff, 0xfe}, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h := newTestHandler(t, root, false, 1024)

	got, err := h.Read(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(got, "[binary file") {
		t.Fatalf("expected binary placeholder, got %q", got)
	}
}
