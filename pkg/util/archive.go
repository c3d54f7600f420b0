package util

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/boyter/gocodewalker"
	"github.com/samber/lo"
)

// Directories never worth scanning for prompt files.
var excludedDirs = []string{
	"node_modules",
	".git",
	"vendor",
	"dist",
	"build",
}

// WalkPromptFiles finds every file under root with one of the given
// extensions (no leading dot), honoring .gitignore files and skipping the
// usual dependency directories. Results come back sorted.
func WalkPromptFiles(root string, exts []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	queue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(root, queue)
	walker.ExcludeDirectory = excludedDirs
	walker.AllowListExtensions = exts
	walker.SetErrorHandler(func(error) bool { return true })

	go func() {
		_ = walker.Start()
	}()

	var files []string
	for f := range queue {
		files = append(files, f.Location)
	}
	sort.Strings(files)
	return files, nil
}

// ZipDirectory packs every regular file under srcDir into a zip at zipPath,
// with paths relative to srcDir. Returns the number of files written.
func ZipDirectory(srcDir, zipPath string) (int, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	count := 0

	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("archive %s: %w", srcDir, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	return count, nil
}

// NormalizeExts lowercases extensions and strips leading dots, dropping
// empties and duplicates, so flag input like ".TXT,md,txt" becomes
// {"txt", "md"}.
func NormalizeExts(exts []string) []string {
	return lo.Uniq(lo.FilterMap(exts, func(e string, _ int) (string, bool) {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		return e, e != ""
	}))
}
