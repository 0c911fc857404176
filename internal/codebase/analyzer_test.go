package codebase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
}

func TestAnalyzeClassifiesProductionAndTestLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", `package main

// comment line
func main() {
	println("hi")
}
`)
	writeFile(t, dir, "main_test.go", `package main

func TestMain(t *testing.T) {
	println("test")
}
`)

	a := NewAnalyzer()
	data, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	require.Greater(t, data.ProductionLines, uint64(0))
	require.Greater(t, data.TestLines, uint64(0))
	require.GreaterOrEqual(t, data.CommentLines, uint64(1))
	require.False(t, data.HasParseErrors)
}

func TestAnalyzeTracksTestContextWithinASingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mixed.go", `package mixed

func Helper() int {
	return 1
}

func TestSomething(t *testingT) {
	Helper()
}
`)

	a := NewAnalyzer()
	data, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	// Helper's body (one statement line) must classify as production;
	// every line after TestSomething's declaration line must classify
	// as test, even though both live in one non-"_test.go" file.
	require.Greater(t, data.ProductionLines, uint64(0))
	require.Greater(t, data.TestLines, uint64(0))
}

func TestLooksLikeTestSignatureOnlyMatchesTheNameAfterFunc(t *testing.T) {
	require.True(t, looksLikeTestSignature("TestFoo"))
	require.False(t, looksLikeTestSignature("func"))
}

func TestAnalyzeCountsUnsafe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "p.go", `package p

import "unsafe"

func f() uintptr {
	var x int
	return uintptr(unsafe.Pointer(&x))
}
`)

	a := NewAnalyzer()
	data, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, uint64(1), data.UnsafeConstructs)
}

func TestAnalyzeSkipsFilesBeyondSizeCap(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, maxFileSize+1)
	writeFile(t, dir, "huge.go", string(big))

	a := NewAnalyzer()
	data, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, uint64(0), data.ProductionLines)
}

func TestAnalyzeRecordsParseErrorsWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package p\nfunc f( {\n")

	a := NewAnalyzer()
	data, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, data.HasParseErrors)
}
