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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	apperrors "hamcp/internal/errors"
)

// Search budgets, independent of any request timeout.
const (
	maxSearchResults      = 100
	maxSearchMatchPerFile = 5
	maxSearchFilesVisited = 2000
)

func errReadOnly() error {
	return apperrors.New(apperrors.CodeReadOnly, "operation not allowed in read-only mode")
}

// Handler performs filesystem operations confined to the guard's allowed
// roots. All methods are safe for concurrent use; the only shared state is
// the immutable configuration captured at construction.
type Handler struct {
	guard       *Guard
	readOnly    bool
	maxFileSize int64
	log         zerolog.Logger
}

// NewHandler builds a file operation handler over the given allowed roots.
func NewHandler(allowedDirs []string, readOnly bool, maxFileSize int64, log zerolog.Logger) (*Handler, error) {
	guard, err := NewGuard(allowedDirs)
	if err != nil {
		return nil, err
	}
	return &Handler{
		guard:       guard,
		readOnly:    readOnly,
		maxFileSize: maxFileSize,
		log:         log.With().Str("component", "fileops").Logger(),
	}, nil
}

// Guard exposes the handler's path confinement guard.
func (h *Handler) Guard() *Guard {
	return h.guard
}

// Entry describes a single directory listing entry.
type Entry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     *int64 `json:"size"`
	Modified string `json:"modified"`
}

// List returns the entries of a confined directory, directories first.
func (h *Handler) List(ctx context.Context, dir string) ([]Entry, error) {
	confined, err := h.guard.Confine(dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(confined)
	if os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.CodeNotFound, "directory not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "failed to stat directory", err)
	}
	if !info.IsDir() {
		return nil, apperrors.New(apperrors.CodeInvalidArguments, "path is not a directory")
	}

	dirents, err := os.ReadDir(confined)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "failed to read directory", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, dirent := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := dirent.Info()
		if err != nil {
			h.log.Warn().Str("entry", dirent.Name()).Err(err).Msg("skipping unreadable entry")
			continue
		}
		entry := Entry{
			Name:     dirent.Name(),
			Path:     filepath.Join(confined, dirent.Name()),
			Type:     "file",
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		}
		if info.IsDir() {
			entry.Type = "directory"
		} else {
			size := info.Size()
			entry.Size = &size
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// ReadOptions selects a byte window of a file; the size cap then applies to
// the window rather than the whole file.
type ReadOptions struct {
	Offset int64
	Length int64
}

// Read returns the contents of a confined file. Binary files are reported
// as a placeholder instead of raw bytes.
func (h *Handler) Read(ctx context.Context, file string, opts *ReadOptions) (string, error) {
	confined, err := h.guard.Confine(file)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(confined)
	if os.IsNotExist(err) {
		return "", apperrors.New(apperrors.CodeNotFound, "file not found")
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to stat file", err)
	}
	if info.IsDir() {
		return "", apperrors.New(apperrors.CodeInvalidArguments, "path is not a file")
	}

	if opts == nil {
		if info.Size() > h.maxFileSize {
			return "", apperrors.New(apperrors.CodeFileTooLarge,
				fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxFileSize))
		}
		content, err := os.ReadFile(confined)
		if err != nil {
			return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to read file", err)
		}
		if !isTextContent(content) {
			return fmt.Sprintf("[binary file, %d bytes]", len(content)), nil
		}
		return string(content), nil
	}

	return h.readRange(confined, opts)
}

func (h *Handler) readRange(confined string, opts *ReadOptions) (string, error) {
	if opts.Offset < 0 || opts.Length < 0 {
		return "", apperrors.New(apperrors.CodeInvalidArguments, "offset and length must be non-negative")
	}
	window := opts.Length
	if window == 0 || window > h.maxFileSize {
		window = h.maxFileSize
	}

	f, err := os.Open(confined)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to open file", err)
	}
	defer f.Close()

	if opts.Offset > 0 {
		if _, err := f.Seek(opts.Offset, io.SeekStart); err != nil {
			return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to seek", err)
		}
	}
	content, err := io.ReadAll(io.LimitReader(f, window))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to read file", err)
	}
	if !isTextContent(content) {
		return fmt.Sprintf("[binary data, %d bytes]", len(content)), nil
	}
	return string(content), nil
}

// Write stores content at a confined path, creating parent directories as
// needed. The size check happens before any byte touches disk, so a
// rejected write leaves the target unchanged.
func (h *Handler) Write(ctx context.Context, file, content string) error {
	if h.readOnly {
		return errReadOnly()
	}
	if int64(len(content)) > h.maxFileSize {
		return apperrors.New(apperrors.CodeFileTooLarge,
			fmt.Sprintf("content exceeds maximum size of %d bytes", h.maxFileSize))
	}

	confined, err := h.guard.Confine(file)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if info, err := os.Stat(confined); err == nil && info.IsDir() {
		return apperrors.New(apperrors.CodeInvalidArguments, "path is a directory")
	}

	if err := os.MkdirAll(filepath.Dir(confined), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to create parent directory", err)
	}
	if err := os.WriteFile(confined, []byte(content), 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to write file", err)
	}

	h.log.Info().Str("path", confined).Int("bytes", len(content)).Msg("file written")
	return nil
}

// CreateDir creates a new confined directory, including parents.
func (h *Handler) CreateDir(ctx context.Context, dir string) error {
	if h.readOnly {
		return errReadOnly()
	}

	confined, err := h.guard.Confine(dir)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(confined); err == nil {
		return apperrors.New(apperrors.CodeInvalidArguments, "path already exists")
	}
	if err := os.MkdirAll(confined, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to create directory", err)
	}

	h.log.Info().Str("path", confined).Msg("directory created")
	return nil
}

// Delete removes a confined file or directory. Non-empty directories are
// only removed when recursive is set. The resolved target is re-validated
// immediately before the destructive syscall.
func (h *Handler) Delete(ctx context.Context, path string, recursive bool) error {
	if h.readOnly {
		return errReadOnly()
	}

	confined, err := h.guard.Confine(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(confined)
	if os.IsNotExist(err) {
		return apperrors.New(apperrors.CodeNotFound, "path not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to stat path", err)
	}

	// A changed resolution between confinement and here means the target
	// was swapped underneath us; treat it as a fresh violation.
	if err := h.guard.Recheck(confined); err != nil {
		return err
	}

	if info.IsDir() {
		if recursive {
			if err := os.RemoveAll(confined); err != nil {
				return apperrors.Wrap(apperrors.CodeInternalIO, "failed to delete directory", err)
			}
		} else {
			dirents, err := os.ReadDir(confined)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeInternalIO, "failed to read directory", err)
			}
			if len(dirents) > 0 {
				return apperrors.New(apperrors.CodeInvalidArguments,
					"directory is not empty; set recursive to delete it")
			}
			if err := os.Remove(confined); err != nil {
				return apperrors.Wrap(apperrors.CodeInternalIO, "failed to delete directory", err)
			}
		}
		h.log.Info().Str("path", confined).Bool("recursive", recursive).Msg("directory deleted")
		return nil
	}

	if err := os.Remove(confined); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to delete file", err)
	}
	h.log.Info().Str("path", confined).Msg("file deleted")
	return nil
}

// Match is a single matching line within a searched file.
type Match struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchResult lists the matches found in one file.
type SearchResult struct {
	Path    string  `json:"path"`
	Matches []Match `json:"matches"`
}

// Search scans file contents beneath a confined directory for a literal,
// case-insensitive pattern. Symlinks whose resolved targets escape the
// allowed roots are skipped, each file is subject to the size cap, and the
// walk honours fixed visit/result budgets plus context cancellation.
func (h *Handler) Search(ctx context.Context, dir, pattern string) ([]SearchResult, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArguments, "search pattern cannot be empty")
	}

	confined, err := h.guard.Confine(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(confined); os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.CodeNotFound, "path not found")
	}

	needle := strings.ToLower(pattern)
	results := []SearchResult{}
	visited := 0

	walkErr := filepath.WalkDir(confined, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			h.log.Debug().Str("path", path).Err(err).Msg("search skipping unreadable path")
			return nil
		}
		if len(results) >= maxSearchResults {
			return fs.SkipAll
		}

		if d.Type()&fs.ModeSymlink != 0 {
			// Follow only links whose resolved target stays in-root.
			if _, err := h.guard.Confine(path); err != nil {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				return nil
			}
		} else if d.IsDir() {
			return nil
		}

		visited++
		if visited > maxSearchFilesVisited {
			return fs.SkipAll
		}

		result, ok := h.searchFile(path, needle)
		if ok {
			results = append(results, result)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "search failed", walkErr)
	}
	return results, nil
}

func (h *Handler) searchFile(path, needle string) (SearchResult, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > h.maxFileSize {
		return SearchResult{}, false
	}

	content, err := os.ReadFile(path)
	if err != nil || !isTextContent(content) {
		return SearchResult{}, false
	}
	if !strings.Contains(strings.ToLower(string(content)), needle) {
		return SearchResult{}, false
	}

	var matches []Match
	for i, line := range strings.Split(string(content), "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			text := strings.TrimSpace(line)
			if len(text) > 100 {
				text = text[:100]
			}
			matches = append(matches, Match{Line: i + 1, Text: text})
			if len(matches) >= maxSearchMatchPerFile {
				break
			}
		}
	}
	return SearchResult{Path: path, Matches: matches}, true
}

// isTextContent reports whether data looks like readable text.
func isTextContent(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if !utf8.Valid(data) {
		return false
	}

	const sampleSize = 8192
	limit := len(data)
	if limit > sampleSize {
		limit = sampleSize
	}

	var nonPrintable int
	for _, b := range data[:limit] {
		switch b {
		case '\n', '\r', '\t':
			continue
		}
		if b == 0 {
			return false
		}
		if b < 0x20 || b == 0x7f {
			nonPrintable++
		}
	}

	return nonPrintable*20 < limit
}
