package codebase

import (
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/errgroup"

	"context"
	"runtime"

	"aprz.dev/aprz/internal/facts"
)

const (
	maxWalkDepth   = 50
	maxFileCount   = 10_000
	maxFileSize    = 5 * 1024 * 1024
)

// Analyzer walks a checked-out package directory and produces line and
// construct counts via an error-tolerant syntactic scan — no semantic
// resolution, matching spec.md §4.E step 7.
type Analyzer struct {
	sem *semaphore.Weighted
}

// NewAnalyzer bounds concurrent per-file analysis to GOMAXPROCS.
func NewAnalyzer() *Analyzer {
	return &Analyzer{sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

// Analyze walks srcRoot, parses every recognized source file under the
// walk caps, and aggregates their classification into one CodebaseData
// partial (lines/unsafe/examples only — CI detection and git history
// are filled in by the caller).
func (a *Analyzer) Analyze(ctx context.Context, srcRoot string) (facts.CodebaseData, error) {
	var data facts.CodebaseData

	paths, err := walkSourceFiles(srcRoot)
	if err != nil {
		return data, err
	}

	type fileResult struct {
		result fileClassification
	}
	results := make([]fileClassification, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		if err := a.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer a.sem.Release(1)
			fc, err := classifyFile(p)
			if err != nil {
				return nil // parse failures are recorded, not fatal
			}
			results[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return data, err
	}

	for _, fc := range results {
		data.ProductionLines += fc.production
		data.TestLines += fc.test
		data.CommentLines += fc.comment
		data.UnsafeConstructs += fc.unsafeCount
		data.ExampleCount += fc.examples
		if fc.hasErrors {
			data.HasParseErrors = true
		}
	}

	return data, nil
}

func walkSourceFiles(root string) ([]string, error) {
	var paths []string
	var count int

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate unreadable entries
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if depth > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if count >= maxFileCount {
			return filepath.SkipAll
		}
		if !isSourceFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		paths = append(paths, path)
		count++
		return nil
	})
	return paths, err
}

func isSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".go", ".rs":
		return true
	default:
		return false
	}
}

type fileClassification struct {
	production  uint64
	test        uint64
	comment     uint64
	unsafeCount uint64
	examples    uint64
	hasErrors   bool
}

// classifyFile tokenizes one file with go/scanner (an error-tolerant
// syntactic tokenizer — no semantic resolution is performed, matching
// spec.md's requirement) and classifies each line as production,
// test, or comment, tracking an "inside test context" depth entered on
// any function whose name marks it as a test (comments are not
// consulted), and counting unsafe-construct keywords. A .go file is also
// run through go/parser so that syntax errors, not only lexical ones,
// are recorded.
func classifyFile(path string) (fileClassification, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return fileClassification{}, err
	}

	fset := token.NewFileSet()
	file := fset.AddFile(path, fset.Base(), len(src))

	var fc fileClassification
	var hadError bool
	errHandler := func(pos token.Position, msg string) { hadError = true }

	var s scanner.Scanner
	s.Init(file, src, errHandler, scanner.ScanComments)

	testContextDepth := 0
	lastLineSeen := map[int]bool{}
	inTest := inTestFilePath(path)
	afterFunc := false

	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		line := fset.Position(pos).Line

		switch tok {
		case token.COMMENT:
			if !lastLineSeen[line] {
				fc.comment++
				lastLineSeen[line] = true
			}
			if strings.Contains(lit, "Example") {
				fc.examples++
			}
			continue
		case token.FUNC:
			// lit is the keyword text "func" itself; the declared or
			// literal's name, if any, arrives as the next token.
			afterFunc = true
		case token.IDENT:
			if afterFunc && looksLikeTestSignature(lit) {
				testContextDepth++
			}
			if lit == "unsafe" {
				fc.unsafeCount++
			}
		}
		if tok != token.FUNC {
			afterFunc = false
		}

		if lastLineSeen[line] {
			continue
		}
		lastLineSeen[line] = true

		if inTest || testContextDepth > 0 {
			fc.test++
		} else {
			fc.production++
		}
	}

	if filepath.Ext(path) == ".go" {
		if _, err := parser.ParseFile(token.NewFileSet(), path, src, parser.AllErrors); err != nil {
			hadError = true
		}
	}

	fc.hasErrors = hadError
	return fc, nil
}

func inTestFilePath(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, "_test.") || strings.Contains(path, "/tests/")
}

// looksLikeTestSignature is a coarse heuristic standing in for the
// original's "attributes textually contain a test marker" check: a
// function literal token immediately preceding an identifier starting
// with "Test", "Benchmark" or "Example" in the same declaration.
func looksLikeTestSignature(lit string) bool {
	return strings.HasPrefix(lit, "Test") || strings.HasPrefix(lit, "Benchmark") || strings.HasPrefix(lit, "Example")
}
