// Package container does a best-effort, read-only listing of a ZIP
// archive's top-level entries without extracting anything. Any failure is
// the caller's to swallow: a peek never fails the upload it describes.
package container

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"
)

// maxEntries bounds how many entries PeekZIP returns.
const maxEntries = 8

// Result is the outcome of a peek attempt.
type Result struct {
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated"`
}

// LooksLikeZIP reports whether filename's extension suggests a ZIP
// archive. It is intentionally conservative: extension-only, no content
// sniffing, so a misnamed file just fails the later Open and gets
// swallowed same as any other peek error.
func LooksLikeZIP(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".zip")
}

// PeekZIP lists up to maxEntries top-level entries of the ZIP archive at
// path — entries with no "/" in their name, plus directory markers
// (entries whose name ends in "/"). Nested file entries are excluded.
func PeekZIP(filePath string) (Result, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("open zip %s: %w", filePath, err)
	}
	defer r.Close()

	var entries []string
	for _, f := range r.File {
		if !isTopLevel(f.Name) {
			continue
		}
		if len(entries) == maxEntries {
			return Result{Entries: entries, Truncated: true}, nil
		}
		entries = append(entries, f.Name)
	}
	return Result{Entries: entries}, nil
}

func isTopLevel(name string) bool {
	if strings.HasSuffix(name, "/") {
		return true
	}
	return !strings.Contains(name, "/")
}
