package testfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/olegsv/schoolquiz/internal/model"
)

// ErrNotFound is returned when a topic's backing file does not exist.
// Callers branch on it to show a "test unavailable" state instead of a
// generic error.
var ErrNotFound = errors.New("test file not found")

// TopicFile describes one test file discovered under the tests root.
type TopicFile struct {
	FileName string // relative path within the tests root, slash-separated
	Title    string // file name without directory or extension
	Mode     model.TopicMode
}

// Service loads and scans test definition files under a root directory.
type Service struct {
	root string
}

// NewService creates a Service rooted at dir, creating it if missing.
func NewService(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tests dir: %w", err)
	}
	return &Service{root: dir}, nil
}

// Root returns the tests root directory.
func (s *Service) Root() string {
	return s.root
}

// Load reads and parses the test file stored under the given relative
// name. A missing file is reported as ErrNotFound.
func (s *Service) Load(fileName string) (model.TopicMode, []model.Question, error) {
	path := filepath.Join(s.root, NormalizePath(fileName))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, fileName)
		}
		return "", nil, fmt.Errorf("read test file %s: %w", fileName, err)
	}
	mode, questions := Parse(string(data))
	return mode, questions, nil
}

// Scan walks the tests root recursively and returns every *.txt file
// with its declared mode. Unreadable files are logged and skipped so a
// single bad file never blocks a sync.
func (s *Service) Scan() ([]TopicFile, error) {
	var files []TopicFile
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable entry skips itself (and its subtree, for a
			// directory) without failing the whole sync.
			slog.Error("failed to access path during scan", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("failed to read test file", "path", rel, "error", err)
			return nil
		}
		mode, _ := Parse(string(data))
		files = append(files, TopicFile{
			FileName: filepath.ToSlash(rel),
			Title:    titleFromPath(rel),
			Mode:     mode,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan tests dir: %w", err)
	}
	return files, nil
}

// NormalizePath converts a stored relative path to the current OS
// separator. Imported paths may carry either / or \.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", string(filepath.Separator))
	return strings.ReplaceAll(path, "/", string(filepath.Separator))
}

// DisplayPath renders a relative directory path as "folder1 / folder2"
// for UI breadcrumbs. Empty paths map to the given label.
func DisplayPath(path, emptyLabel string) string {
	if path == "" {
		return emptyLabel
	}
	parts := strings.FieldsFunc(NormalizePath(path), func(r rune) bool {
		return r == filepath.Separator
	})
	if len(parts) == 0 {
		return emptyLabel
	}
	return strings.Join(parts, " / ")
}

func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
