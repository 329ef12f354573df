package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/parser"
	"github.com/qsjs/quicksilver/internal/value"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveRelativeWithExtensionFill(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.js", "export const PI = 3;\n")
	entry := writeFile(t, dir, "main.js", "import './math.js';\n")

	l := NewLoader(dir)
	id, err := l.Resolve("./math", entry)
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(filepath.Join(dir, "math.js"))
	want, _ := filepath.Abs(resolved)
	assert.Equal(t, want, id)
}

func TestResolveDirectoryIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/index.js", "export const x = 1;\n")
	entry := writeFile(t, dir, "main.js", "")

	l := NewLoader(dir)
	id, err := l.Resolve("./lib", entry)
	require.NoError(t, err)
	assert.Contains(t, id, filepath.Join("lib", "index.js"))
}

func TestResolveBareSpecifierRejected(t *testing.T) {
	l := NewLoader(t.TempDir())
	_, err := l.Resolve("lodash", "")
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ResolutionFailed, me.Kind)
}

func TestResolveNotFound(t *testing.T) {
	l := NewLoader(t.TempDir())
	_, err := l.Resolve("./nope", "")
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, NotFound, me.Kind)
}

func TestLoadCachesByCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.js", "export const a = 1;\n")

	l := NewLoader(dir)
	m1, err := l.Load("./a.js", "")
	require.NoError(t, err)
	m2, err := l.Load("./a.js", "")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestLoadCircularDependency(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.js", "import './b.js';\n")
	writeFile(t, dir, "b.js", "import './a.js';\n")

	l := NewLoader(dir)
	// Simulate the evaluator walking a's import while a is still loading.
	l.loading = append(l.loading, mustResolve(t, l, "./a.js", filepath.Join(dir, "entry.js")))
	_, err := l.Load("./a.js", filepath.Join(dir, "entry.js"))
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, CircularDependency, me.Kind)
}

func mustResolve(t *testing.T, l *Loader, specifier, referrer string) string {
	t.Helper()
	id, err := l.Resolve(specifier, referrer)
	require.NoError(t, err)
	return id
}

func TestUpdateExportsAndNamespaceObject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.js", "export const PI = 3;\n")

	l := NewLoader(dir)
	m, err := l.Load("./math.js", "")
	require.NoError(t, err)

	l.UpdateExports(m.ID, map[string]value.Value{"PI": value.Num(3)}, value.Str("fallback"), true)

	reloaded, _ := l.Get(m.ID)
	v, ok := reloaded.GetExport("PI")
	require.True(t, ok)
	assert.Equal(t, value.Num(3), v)

	d, ok := reloaded.GetExport("default")
	require.True(t, ok)
	assert.Equal(t, value.Str("fallback"), d)
	assert.Equal(t, Evaluated, reloaded.Status)

	h := value.NewHeap()
	ns := reloaded.NamespaceObject(h)
	obj := h.MustGet(ns.AsObject())
	assert.Equal(t, value.Num(3), obj.Props["PI"])
	assert.Equal(t, value.Str("fallback"), obj.Props["default"])
}

func TestGetImportBindings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.js", "export const PI = 3;\nexport default 42;\n")

	l := NewLoader(dir)
	mathID, err := l.Resolve("./math.js", "")
	require.NoError(t, err)
	m, err := l.Load("./math.js", "")
	require.NoError(t, err)
	require.Equal(t, mathID, m.ID)
	l.UpdateExports(m.ID, map[string]value.Value{"PI": value.Num(3)}, value.Num(42), true)

	prog, err := parser.ParseProgram(`import d, { PI as pi } from "./math.js";`)
	require.NoError(t, err)
	importDecl := findImport(t, prog)

	bindings, err := l.GetImportBindings(importDecl, filepath.Join(dir, "entry.js"))
	require.NoError(t, err)
	assert.Equal(t, value.Num(42), bindings["d"])
	assert.Equal(t, value.Num(3), bindings["pi"])
}

func TestAnalyzeExports(t *testing.T) {
	src := `
export const a = 1;
export function f() {}
export default 5;
export * from "./other.js";
export * as ns from "./other.js";
export { a as b };
`
	prog, err := parser.ParseProgram(src)
	require.NoError(t, err)

	infos := AnalyzeExports(prog)
	var sawDefault, sawAll, sawAllAs bool
	var named []string
	for _, info := range infos {
		switch info.Kind {
		case ExportInfoDefault:
			sawDefault = true
		case ExportInfoAll:
			sawAll = true
			assert.Equal(t, "./other.js", info.Source)
		case ExportInfoAllAs:
			sawAllAs = true
			assert.Equal(t, "ns", info.Exported)
		case ExportInfoNamed:
			named = append(named, info.Local)
		}
	}
	assert.True(t, sawDefault)
	assert.True(t, sawAll)
	assert.True(t, sawAllAs)
	assert.Contains(t, named, "a")
	assert.Contains(t, named, "f")
}

func findImport(t *testing.T, prog *ast.Program) *ast.ImportDeclaration {
	t.Helper()
	for _, stmt := range prog.Body {
		if imp, ok := stmt.(*ast.ImportDeclaration); ok {
			return imp
		}
	}
	t.Fatal("no import declaration found")
	return nil
}
