package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSingleBlock(t *testing.T) {
	res := Parse("ФАЙЛ: math/test1\nMODE: Test\nQ: q\n*1) a\n")
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Units) != 1 {
		t.Fatalf("got %d units, want 1", len(res.Units))
	}
	u := res.Units[0]
	if u.Path != "math/test1.txt" {
		t.Errorf("path = %q, want math/test1.txt", u.Path)
	}
	if !strings.HasPrefix(u.Content, "MODE: Test") {
		t.Errorf("content = %q", u.Content)
	}
}

func TestParseMultipleBlocks(t *testing.T) {
	blob := "ФАЙЛ: a\ncontent a\n==========\nФАЙЛ: b.txt\ncontent b\n====\nФАЙЛ: c\ncontent c\n"
	res := Parse(blob)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Units) != 3 {
		t.Fatalf("got %d units, want 3", len(res.Units))
	}
	if res.Units[1].Path != "b.txt" {
		t.Errorf("already-suffixed path must not be double-suffixed, got %q", res.Units[1].Path)
	}
}

func TestParseCRLFBlob(t *testing.T) {
	// Browser textareas post CRLF line endings; the separator line then
	// ends in \r and must still split the blob.
	blob := "ФАЙЛ: a\r\ncontent a\r\n==========\r\nФАЙЛ: b\r\ncontent b\r\n"
	res := Parse(blob)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Units) != 2 {
		t.Fatalf("got %d units, want 2", len(res.Units))
	}
	if res.Units[0].Path != "a.txt" || res.Units[1].Path != "b.txt" {
		t.Errorf("paths = %q, %q", res.Units[0].Path, res.Units[1].Path)
	}
	if strings.Contains(res.Units[0].Content, "ФАЙЛ") {
		t.Errorf("first unit swallowed the next block: %q", res.Units[0].Content)
	}
	if strings.Contains(res.Units[0].Content, "==") {
		t.Errorf("separator leaked into content: %q", res.Units[0].Content)
	}
}

func TestParseBlockErrors(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		wantErr string
	}{
		{"missing prefix", "just some text\nmore text\n", "Block without ФАЙЛ::"},
		{"empty path", "ФАЙЛ:\ncontent\n", "Empty path in ФАЙЛ:"},
		{"traversal dots", "ФАЙЛ: ../../etc/passwd\ncontent\n", "Invalid path:"},
		{"absolute slash", "ФАЙЛ: /etc/hosts\ncontent\n", "Invalid path:"},
		{"absolute backslash", `ФАЙЛ: \windows\system32` + "\ncontent\n", "Invalid path:"},
		{"empty content", "ФАЙЛ: ok\n", "Empty content for ok.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.blob)
			if len(res.Units) != 0 {
				t.Errorf("bad block produced units: %+v", res.Units)
			}
			if len(res.Errors) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(res.Errors), res.Errors)
			}
			if !strings.HasPrefix(res.Errors[0], tt.wantErr) {
				t.Errorf("error = %q, want prefix %q", res.Errors[0], tt.wantErr)
			}
		})
	}
}

func TestParseMixedBatch(t *testing.T) {
	blob := "ФАЙЛ: good\nMODE: Test\nQ: q\n==========\nno header here\noops\n"
	res := Parse(blob)
	if len(res.Units) != 1 {
		t.Errorf("got %d units, want 1", len(res.Units))
	}
	if len(res.Errors) != 1 {
		t.Errorf("got %d errors, want 1", len(res.Errors))
	}
}

func TestParseBlankBlocksIgnored(t *testing.T) {
	blob := "==========\n\n==========\nФАЙЛ: only\ncontent\n==========\n   \n"
	res := Parse(blob)
	if len(res.Units) != 1 || len(res.Errors) != 0 {
		t.Errorf("units = %d, errors = %v; want 1 unit, 0 errors", len(res.Units), res.Errors)
	}
}

func TestParseHeaderVariants(t *testing.T) {
	t.Run("lowercase prefix", func(t *testing.T) {
		res := Parse("файл: lower\ncontent\n")
		if len(res.Units) != 1 {
			t.Fatalf("lowercase ФАЙЛ: not accepted: %v", res.Errors)
		}
		if res.Units[0].Path != "lower.txt" {
			t.Errorf("path = %q", res.Units[0].Path)
		}
	})

	t.Run("extra colons and tabs around path", func(t *testing.T) {
		res := Parse("ФАЙЛ:\t: spaced \ncontent\n")
		if len(res.Units) != 1 {
			t.Fatalf("errors: %v", res.Errors)
		}
		if res.Units[0].Path != "spaced.txt" {
			t.Errorf("path = %q, want spaced.txt", res.Units[0].Path)
		}
	})

	t.Run("uppercase TXT suffix kept", func(t *testing.T) {
		res := Parse("ФАЙЛ: keep.TXT\ncontent\n")
		if len(res.Units) != 1 {
			t.Fatalf("errors: %v", res.Errors)
		}
		if res.Units[0].Path != "keep.TXT" {
			t.Errorf("path = %q, want keep.TXT", res.Units[0].Path)
		}
	})

	t.Run("long header truncated in error", func(t *testing.T) {
		long := strings.Repeat("х", 80)
		res := Parse(long + "\ncontent\n")
		if len(res.Errors) != 1 {
			t.Fatalf("errors = %v", res.Errors)
		}
		if !strings.Contains(res.Errors[0], "...") {
			t.Errorf("long header not truncated: %q", res.Errors[0])
		}
	})
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir)

	created, failed := s.WriteAll(context.Background(), []Unit{
		{Path: "geo/capitals.txt", Content: "MODE: Test\nQ: q\n*1) a\n"},
		{Path: "../escape.txt", Content: "nope"},
	})
	if len(created) != 1 || created[0] != "geo/capitals.txt" {
		t.Errorf("created = %v", created)
	}
	if len(failed) != 1 {
		t.Errorf("failed = %v", failed)
	}

	data, err := os.ReadFile(filepath.Join(dir, "geo", "capitals.txt"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if !strings.HasPrefix(string(data), "MODE: Test") {
		t.Errorf("written content = %q", data)
	}
}

func TestWriteAllCancelled(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	created, failed := s.WriteAll(ctx, []Unit{{Path: "a.txt", Content: "x"}})
	if len(created) != 0 {
		t.Errorf("created = %v, want none after cancellation", created)
	}
	if len(failed) != 1 {
		t.Errorf("failed = %v", failed)
	}
}
