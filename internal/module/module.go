// Package module implements ES module resolution, loading, and the
// per-module export table spec.md §4.J describes: relative/absolute-only
// specifier resolution, an extension fill order, a load cache keyed by
// canonical path, and cycle detection for import graphs that loop back on
// themselves.
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/parser"
	"github.com/qsjs/quicksilver/internal/value"
)

// ErrorKind classifies a Error, mirroring the original runtime's
// ModuleError variants.
type ErrorKind int

const (
	NotFound ErrorKind = iota
	ParseError
	CircularDependency
	ExportNotFound
	IOError
	ResolutionFailed
)

// Error reports why a module could not be resolved, loaded, or linked.
type Error struct {
	Kind     ErrorKind
	Specifier string
	Export   string
	Message  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("module not found: %s", e.Specifier)
	case ParseError:
		return fmt.Sprintf("parse error: %s", e.Message)
	case CircularDependency:
		return fmt.Sprintf("circular dependency: %s", e.Specifier)
	case ExportNotFound:
		return fmt.Sprintf("export %q not found in module %q", e.Export, e.Specifier)
	case IOError:
		return fmt.Sprintf("I/O error: %s", e.Message)
	case ResolutionFailed:
		return fmt.Sprintf("resolution failed: %s", e.Message)
	}
	return "module error"
}

// Status tracks a Module's position in the fetch/link/evaluate lifecycle.
type Status int

const (
	Fetching Status = iota
	Linking
	Evaluating
	Evaluated
	Errored
)

// ReExport records an `export { a, b } from "./x.js"` or `export * from
// "./x.js"` re-export that the engine's linker resolves against another
// module's own export table. Names is nil for `export * from`.
type ReExport struct {
	Source string
	Names  [][2]string // (local, exported)
}

// Module is one loaded, parsed, (eventually) evaluated source file.
type Module struct {
	ID      string // canonical resolved path, used as cache key
	Path    string
	Source  string // original text, kept for the compiler's diagnostic snippets
	Program *ast.Program
	Status  Status

	Exports       map[string]value.Value
	DefaultExport value.Value
	HasDefault    bool
	ReExports     []ReExport
}

func newModule(id, path, source string, program *ast.Program) *Module {
	return &Module{
		ID:      id,
		Path:    path,
		Source:  source,
		Program: program,
		Status:  Fetching,
		Exports: make(map[string]value.Value),
	}
}

// GetExport returns an own export by name ("default" reads DefaultExport).
func (m *Module) GetExport(name string) (value.Value, bool) {
	if name == "default" {
		return m.DefaultExport, m.HasDefault
	}
	v, ok := m.Exports[name]
	return v, ok
}

// SetExport records an own export ("default" writes DefaultExport).
func (m *Module) SetExport(name string, v value.Value) {
	if name == "default" {
		m.DefaultExport, m.HasDefault = v, true
		return
	}
	m.Exports[name] = v
}

// ExportNames lists every own export name, "default" last if present.
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports)+1)
	for k := range m.Exports {
		names = append(names, k)
	}
	if m.HasDefault {
		names = append(names, "default")
	}
	return names
}

// NamespaceObject builds the `import * as ns` namespace value: every own
// export as a property, plus "default" when present.
func (m *Module) NamespaceObject(h *value.Heap) value.Value {
	id := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	for k, v := range m.Exports {
		value.SetProperty(h, id, k, v)
	}
	if m.HasDefault {
		value.SetProperty(h, id, "default", m.DefaultExport)
	}
	return value.Obj(id)
}

// Loader resolves specifiers to canonical paths, loads and caches modules,
// and detects import cycles. Safe for concurrent use (the HMR watcher and
// the evaluator may both touch it).
type Loader struct {
	mu      sync.RWMutex
	modules map[string]*Module
	loading []string
	baseDir string
}

// NewLoader returns a Loader resolving relative specifiers against baseDir
// (the process's working directory if baseDir is empty).
func NewLoader(baseDir string) *Loader {
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		} else {
			baseDir = "."
		}
	}
	return &Loader{modules: make(map[string]*Module), baseDir: baseDir}
}

// Resolve turns a specifier into a canonical absolute path, per spec.md
// §4.J: relative (`./`, `../`) and absolute (`/...`) specifiers only —
// bare specifiers (`"lodash"`) are rejected, there is no node_modules
// search. The extension fill order is: as written, then `.js` appended,
// then `<specifier>/index.js`.
func (l *Loader) Resolve(specifier, referrer string) (string, error) {
	base := l.baseDir
	if referrer != "" {
		base = filepath.Dir(referrer)
	}

	switch {
	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		return l.resolveRelative(base, specifier)
	case strings.HasPrefix(specifier, "/"):
		return l.canonicalize(specifier)
	default:
		return "", &Error{Kind: ResolutionFailed, Specifier: specifier,
			Message: fmt.Sprintf("bare specifiers not supported: %s", specifier)}
	}
}

func (l *Loader) resolveRelative(base, specifier string) (string, error) {
	path := filepath.Join(base, specifier)

	if fileExists(path) {
		return l.canonicalize(path)
	}
	if filepath.Ext(path) == "" {
		withExt := path + ".js"
		if fileExists(withExt) {
			return l.canonicalize(withExt)
		}
	}
	indexPath := filepath.Join(base, specifier, "index.js")
	if fileExists(indexPath) {
		return l.canonicalize(indexPath)
	}
	return "", &Error{Kind: NotFound, Specifier: specifier}
}

func (l *Loader) canonicalize(path string) (string, error) {
	if !fileExists(path) {
		return "", &Error{Kind: NotFound, Specifier: path}
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", &Error{Kind: IOError, Message: err.Error()}
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", &Error{Kind: IOError, Message: err.Error()}
	}
	return abs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load resolves specifier against referrer, returning the cached Module if
// one already exists for that canonical id, parsing a fresh one otherwise.
// A specifier still on the loading stack (an import cycle) fails with
// CircularDependency rather than recursing forever — the caller gets back
// the partially-loaded module on a second, non-cyclic Load once the first
// pass completes and sets its exports via UpdateExports.
func (l *Loader) Load(specifier, referrer string) (*Module, error) {
	id, err := l.Resolve(specifier, referrer)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	if m, ok := l.modules[id]; ok {
		l.mu.RUnlock()
		return m, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	for _, inFlight := range l.loading {
		if inFlight == id {
			l.mu.Unlock()
			return nil, &Error{Kind: CircularDependency, Specifier: id}
		}
	}
	l.loading = append(l.loading, id)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		for i, inFlight := range l.loading {
			if inFlight == id {
				l.loading = append(l.loading[:i], l.loading[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
	}()

	src, err := os.ReadFile(id)
	if err != nil {
		return nil, &Error{Kind: IOError, Message: err.Error()}
	}
	program, err := parser.ParseProgram(string(src))
	if err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error()}
	}

	m := newModule(id, id, string(src), program)
	l.mu.Lock()
	l.modules[id] = m
	l.mu.Unlock()
	return m, nil
}

// Get returns a previously loaded module by canonical id, if cached.
func (l *Loader) Get(id string) (*Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[id]
	return m, ok
}

// UpdateExports records a module's evaluated export table — called by the
// engine once it has run the module's compiled chunk and harvested its
// top-level export bindings.
func (l *Loader) UpdateExports(id string, exports map[string]value.Value, defaultExport value.Value, hasDefault bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.modules[id]
	if !ok {
		return
	}
	m.Exports = exports
	m.DefaultExport = defaultExport
	m.HasDefault = hasDefault
	m.Status = Evaluated
}

// GetImportBindings loads source and resolves every specifier in imp
// against that module's (possibly not-yet-evaluated) export table —
// callers evaluating modules in dependency order will see real values;
// an out-of-order call sees whatever the source module has exported so
// far (ES modules' live-binding semantics are not modeled here, matching
// the original runtime's own snapshot-based getter).
func (l *Loader) GetImportBindings(imp *ast.ImportDeclaration, referrer string) (map[string]value.Value, error) {
	m, err := l.Load(imp.Source, referrer)
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]value.Value, len(imp.Specifiers))
	for _, spec := range imp.Specifiers {
		switch spec.Kind {
		case ast.ImportDefault:
			v, _ := m.GetExport("default")
			bindings[spec.Local.Name] = v
		case ast.ImportNamed:
			v, ok := m.GetExport(spec.Imported)
			if !ok {
				v = value.Undef
			}
			bindings[spec.Local.Name] = v
		case ast.ImportNamespace:
			bindings[spec.Local.Name] = value.Undef // filled by NamespaceObject once a *value.Heap is available to the caller
		}
	}
	return bindings, nil
}

// ExportInfo describes one export statement found by AnalyzeExports,
// before the corresponding value exists (analysis runs on the parsed AST,
// ahead of evaluation).
type ExportInfo struct {
	Kind     ExportInfoKind
	Local    string
	Exported string
	Source   string // non-empty for re-exports
}

type ExportInfoKind int

const (
	ExportInfoNamed ExportInfoKind = iota
	ExportInfoDefault
	ExportInfoAll
	ExportInfoAllAs
)

// AnalyzeExports walks program's top-level statements and reports every
// export declaration, without evaluating anything — used by the engine
// before running a module's body to evaluate its re-export sources, and
// afterwards to harvest its exports. The HMR package does not call it.
func AnalyzeExports(program *ast.Program) []ExportInfo {
	var out []ExportInfo
	for _, stmt := range program.Body {
		switch ex := stmt.(type) {
		case *ast.ExportNamedDeclaration:
			if len(ex.Specifiers) > 0 {
				for _, spec := range ex.Specifiers {
					out = append(out, ExportInfo{Kind: ExportInfoNamed, Local: spec.Local, Exported: spec.Exported, Source: ex.Source})
				}
				continue
			}
			if ex.Declaration != nil {
				out = append(out, namesFromDeclaration(ex.Declaration)...)
			}
		case *ast.ExportDefaultDeclaration:
			out = append(out, ExportInfo{Kind: ExportInfoDefault})
		case *ast.ExportAllDeclaration:
			if ex.Exported != "" {
				out = append(out, ExportInfo{Kind: ExportInfoAllAs, Exported: ex.Exported, Source: ex.Source})
			} else {
				out = append(out, ExportInfo{Kind: ExportInfoAll, Source: ex.Source})
			}
		}
	}
	return out
}

func namesFromDeclaration(decl ast.Statement) []ExportInfo {
	switch d := decl.(type) {
	case *ast.VariableDeclaration:
		var out []ExportInfo
		for _, decl := range d.Declarations {
			if id, ok := decl.ID.(*ast.Identifier); ok {
				out = append(out, ExportInfo{Kind: ExportInfoNamed, Local: id.Name, Exported: id.Name})
			}
		}
		return out
	case *ast.FunctionDeclaration:
		if d.ID != nil {
			return []ExportInfo{{Kind: ExportInfoNamed, Local: d.ID.Name, Exported: d.ID.Name}}
		}
	case *ast.ClassDeclaration:
		if d.ID != nil {
			return []ExportInfo{{Kind: ExportInfoNamed, Local: d.ID.Name, Exported: d.ID.Name}}
		}
	}
	return nil
}
