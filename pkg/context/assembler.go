// Package context assembles a relevance-ranked project file set for a
// query: the "project-context builder" collaborator spec.md §2 treats
// as external and specifies only at its interface — produce a ranked
// file set for a query, nothing more. The parallel-fan-out-then-collect
// shape is grounded on hector's pkg/context/search.go ParallelSearch
// generic; this package narrows hector's embedder+vector-database
// pipeline (pkg/databases, pkg/embedders — out of spec.md's scope, see
// DESIGN.md) down to a lexical term-overlap scorer that needs no
// third-party index, walking the filesystem directly the way hector's
// own document_store.go walks a source tree before it ever reaches an
// embedder.
package context

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kadirpekel/forge/pkg/logger"
)

// FileScore is one ranked candidate: a file path plus its relevance
// score and the first line that matched a query term, for a human or an
// LLM to sanity-check the ranking.
type FileScore struct {
	Path    string
	Score   float64
	Snippet string
}

// skippedDirs are never descended into; the same noise hector's indexer
// excludes before it ever tokenizes a repo (vendor trees, VCS metadata,
// build output).
var skippedDirs = map[string]bool{
	".git": true, "vendor": true, "node_modules": true,
	"dist": true, "build": true, ".cache": true,
}

const defaultMaxFileSize = 1 << 20 // 1 MiB; larger files are skipped, not truncated

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Assembler ranks files under a set of roots against a query. One
// Assembler may be reused across Rank calls; it holds no per-query
// state.
type Assembler struct {
	roots       []string
	concurrency int
	maxFileSize int64
	log         *slog.Logger
}

// Option configures an Assembler at construction.
type Option func(*Assembler)

// WithConcurrency bounds how many files are scored in parallel (default
// 8, matching the Stream Pipeline's default read concurrency since both
// are I/O-bound file scans).
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithMaxFileSize overrides the per-file size cap applied before a file
// is read and scored.
func WithMaxFileSize(n int64) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

// NewAssembler builds an Assembler rooted at the given directories —
// normally forge's configured allowed base paths (spec.md §6
// "Environment"), so context assembly never surfaces a file the Path
// Validator would reject anyway.
func NewAssembler(roots []string, opts ...Option) *Assembler {
	a := &Assembler{
		roots:       append([]string(nil), roots...),
		concurrency: 8,
		maxFileSize: defaultMaxFileSize,
		log:         logger.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rank walks every root, scores each candidate file against the query's
// terms, and returns the topK highest-scoring files in descending score
// order. A query with no matching terms anywhere yields an empty slice,
// not an error: the absence of relevant context is a valid answer.
func (a *Assembler) Rank(ctx context.Context, query string, topK int) ([]FileScore, error) {
	terms := tokenize(query)
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}

	paths, err := a.collectCandidates()
	if err != nil {
		return nil, fmt.Errorf("context: collecting candidate files: %w", err)
	}

	scored := a.scoreAll(ctx, paths, terms)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Path < scored[j].Path // stable tiebreak for deterministic output
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (a *Assembler) collectCandidates() ([]string, error) {
	var paths []string
	for _, root := range a.roots {
		err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries rather than aborting the whole scan
			}
			if d.IsDir() {
				if skippedDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// scoreAll fans scoring out across a_concurrency-bounded worker pool and
// collects every non-zero score, the same fan-out/collect shape as
// hector's ParallelSearch generalized from a generic-typed target list
// to a plain string slice since context assembly has only one kind of
// target.
func (a *Assembler) scoreAll(ctx context.Context, paths []string, terms []string) []FileScore {
	sem := make(chan struct{}, a.concurrency)
	resultsCh := make(chan FileScore, len(paths))
	var wg sync.WaitGroup

	for _, p := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			fs, ok := a.scoreFile(path, terms)
			if ok {
				resultsCh <- fs
			}
		}(p)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	out := make([]FileScore, 0, len(paths))
	for fs := range resultsCh {
		out = append(out, fs)
	}
	return out
}

// scoreFile scores one file's path and content against terms. Path
// matches count double a content match: a file named after the query is
// almost always more relevant than one that merely mentions it once.
func (a *Assembler) scoreFile(path string, terms []string) (FileScore, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > a.maxFileSize {
		return FileScore{}, false
	}

	var score float64
	lowerPath := strings.ToLower(path)
	for _, t := range terms {
		if strings.Contains(lowerPath, t) {
			score += 2
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if score > 0 {
			return FileScore{Path: path, Score: score}, true
		}
		return FileScore{}, false
	}
	defer f.Close()

	snippet := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		hit := false
		for _, t := range terms {
			if strings.Contains(lower, t) {
				score++
				hit = true
			}
		}
		if hit && snippet == "" {
			snippet = strings.TrimSpace(line)
		}
	}

	if score <= 0 {
		return FileScore{}, false
	}
	return FileScore{Path: path, Score: score, Snippet: snippet}, true
}

func tokenize(query string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < 2 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
