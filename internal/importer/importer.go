// Package importer parses bulk-paste import blobs into named test files.
//
// A blob packs several files, separated by a line of two or more = signs:
//
//	ФАЙЛ: geography/capitals
//	MODE: Test
//	Q: ...
//	==========
//	ФАЙЛ: biology/cells.txt
//	MODE: Open
//	Q: ...
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/olegsv/schoolquiz/internal/testfile"
)

const filePrefix = "ФАЙЛ:"

// Separator lines may carry trailing whitespace, including the \r of
// CRLF blobs pasted through a browser form.
var blockSeparator = regexp.MustCompile(`(?m)^==+[ \t\r]*$`)

// Unit is one file extracted from an import blob.
type Unit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Result holds the parsed units alongside per-block error messages.
// Every non-blank block contributes exactly one unit or exactly one error.
type Result struct {
	Units  []Unit   `json:"units"`
	Errors []string `json:"errors"`
}

// Parse splits an import blob into validated file units. Malformed
// blocks are reported as discrete errors and never abort the batch.
func Parse(text string) Result {
	var res Result
	for _, block := range blockSeparator.Split(text, -1) {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}

		firstLine := trimmed
		rest := ""
		if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
			firstLine = strings.TrimSpace(trimmed[:i])
			rest = trimmed[i+1:]
		}

		if !hasFoldPrefix(firstLine, filePrefix) {
			res.Errors = append(res.Errors, fmt.Sprintf("Block without %s: %q", filePrefix, truncate(firstLine, 50)))
			continue
		}

		path := strings.Trim(firstLine[len(filePrefix):], ": \t")
		if path == "" {
			res.Errors = append(res.Errors, "Empty path in "+filePrefix)
			continue
		}
		if !strings.EqualFold(filepath.Ext(path), ".txt") {
			path += ".txt"
		}
		if !pathSafe(path) {
			res.Errors = append(res.Errors, "Invalid path: "+path)
			continue
		}

		content := strings.TrimSpace(rest)
		if content == "" {
			res.Errors = append(res.Errors, "Empty content for "+path)
			continue
		}

		res.Units = append(res.Units, Unit{Path: path, Content: content})
	}
	return res
}

// pathSafe rejects relative paths that could escape the tests root.
// The .txt suffix is the only correction ever applied; anything else
// suspicious is refused outright.
func pathSafe(path string) bool {
	if strings.Contains(path, "..") {
		return false
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return false
	}
	return true
}

// Service materializes parsed units under the tests root.
type Service struct {
	root string
}

// NewService creates a Service writing into the given tests root.
func NewService(root string) *Service {
	return &Service{root: root}
}

// WriteAll writes each unit to disk, creating directories as needed.
// It re-applies the path guard before touching the filesystem and
// returns the created and failed paths. Cancellation stops the loop;
// already written files are kept.
func (s *Service) WriteAll(ctx context.Context, units []Unit) (created, failed []string) {
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", u.Path, err))
			continue
		}
		if !pathSafe(u.Path) {
			failed = append(failed, fmt.Sprintf("%s: unsafe path", u.Path))
			continue
		}
		full := filepath.Join(s.root, testfile.NormalizePath(u.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", u.Path, err))
			continue
		}
		if err := os.WriteFile(full, []byte(u.Content), 0o644); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", u.Path, err))
			continue
		}
		slog.Info("imported test file", "path", u.Path, "bytes", len(u.Content))
		created = append(created, u.Path)
	}
	return created, failed
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
