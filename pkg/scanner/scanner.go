// Package scanner finds hardcoded credentials and unsafe calls in source
// trees by matching file contents against a fixed signature catalogue.
//
// Matching is purely textual. There is no parsing, so findings in comments
// and string literals are reported like any other.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/pathutil"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("scanner")
}

// DefaultSnippetLimit bounds the reported excerpt of each match, in characters
const DefaultSnippetLimit = 100

// Options configures discovery and matching
type Options struct {
	Extensions   []string
	ExcludeDirs  []string
	MaxFileSize  int64 // 0 disables the size check
	SnippetLimit int
}

// OptionsFromConfig converts scan settings into Options
func OptionsFromConfig(cfg config.ScanConfig) Options {
	return Options{
		Extensions:   cfg.Extensions,
		ExcludeDirs:  cfg.ExcludeDirs,
		MaxFileSize:  cfg.MaxFileSize,
		SnippetLimit: cfg.SnippetLimit,
	}
}

// FileResult is the outcome of scanning one file: either its findings or
// the reason it was skipped
type FileResult struct {
	Path     string
	Findings []models.Finding
	Skipped  bool
	Reason   string
}

// Scanner walks a tree and reports catalogue matches
type Scanner struct {
	opts      Options
	catalogue []Pattern
}

// New creates a scanner using the built-in catalogue
func New(opts Options) *Scanner {
	return NewWithCatalogue(opts, Catalogue())
}

// NewWithCatalogue creates a scanner with a custom signature list
func NewWithCatalogue(opts Options, catalogue []Pattern) *Scanner {
	if opts.SnippetLimit <= 0 {
		opts.SnippetLimit = DefaultSnippetLimit
	}
	return &Scanner{opts: opts, catalogue: catalogue}
}

// Scan discovers files under root and matches each one. Per-file read
// failures are recorded in the result and never abort the scan; only an
// unusable root is an error.
func (s *Scanner) Scan(ctx context.Context, root string) (*models.ScanResult, error) {
	startTime := time.Now()

	abs, err := pathutil.ExpandAndValidatePath(root)
	if err != nil {
		return nil, err
	}

	files, err := s.Discover(abs)
	if err != nil {
		return nil, err
	}

	result := &models.ScanResult{
		Success: true,
		Issues:  []models.Finding{},
		Scanned: len(files),
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fr := s.ScanFile(file)
		if fr.Skipped {
			result.Skipped = append(result.Skipped, models.SkippedFile{File: fr.Path, Reason: fr.Reason})
			continue
		}
		result.Issues = append(result.Issues, fr.Findings...)
	}
	result.Count = len(result.Issues)

	log.WithFields(logrus.Fields{
		"root":     abs,
		"scanned":  result.Scanned,
		"skipped":  len(result.Skipped),
		"findings": result.Count,
		"duration": time.Since(startTime),
	}).Info("Scan completed")

	return result, nil
}

// Discover lists candidate files under root in lexical order. Directories
// named in ExcludeDirs are pruned; unreadable subdirectories are skipped.
func (s *Scanner) Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access scan root: %w", err)
	}
	if !info.IsDir() {
		if s.wanted(root, filepath.Base(root)) {
			return []string{root}, nil
		}
		return []string{}, nil
	}

	files := []string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.WithError(walkErr).WithField("path", path).Debug("Skipping unreadable entry")
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if path != root && pathutil.HasSegment(rel, s.opts.ExcludeDirs) {
				return fs.SkipDir
			}
			return nil
		}

		if s.wanted(path, rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk scan root: %w", err)
	}

	return files, nil
}

func (s *Scanner) wanted(path, rel string) bool {
	return pathutil.HasExtension(path, s.opts.Extensions) &&
		!pathutil.HasSegment(rel, s.opts.ExcludeDirs)
}

// ScanFile reads one file and matches it against the catalogue
func (s *Scanner) ScanFile(path string) FileResult {
	if s.opts.MaxFileSize > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > s.opts.MaxFileSize {
			return FileResult{Path: path, Skipped: true,
				Reason: fmt.Sprintf("file too large (%d bytes, limit %d)", info.Size(), s.opts.MaxFileSize)}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		reason := err.Error()
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			reason = pathErr.Err.Error()
		}
		log.WithField("path", path).WithField("reason", reason).Debug("Skipping unreadable file")
		return FileResult{Path: path, Skipped: true, Reason: reason}
	}

	return FileResult{Path: path, Findings: s.Match(path, string(data))}
}

// Match evaluates every pattern in catalogue order and returns all
// non-overlapping matches with 1-based line numbers
func (s *Scanner) Match(file, content string) []models.Finding {
	var (
		findings []models.Finding
		starts   []int
	)
	for _, p := range s.catalogue {
		for _, loc := range p.Regexp.FindAllStringIndex(content, -1) {
			if starts == nil {
				starts = lineStarts(content)
			}
			findings = append(findings, models.Finding{
				File:    file,
				Line:    lineAt(starts, loc[0]),
				Issue:   p.Name,
				Snippet: truncate(content[loc[0]:loc[1]], s.opts.SnippetLimit),
			})
		}
	}
	return findings
}

// lineStarts returns the byte offset at which each line begins
func lineStarts(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineAt maps a byte offset to its 1-based line number
func lineAt(starts []int, offset int) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
