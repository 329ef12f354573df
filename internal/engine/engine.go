// Package engine orchestrates spec.md's pipeline end to end: resolving and
// loading ES modules (internal/module), compiling each to bytecode
// (internal/compiler), and running it (internal/vm) — then, in watch mode,
// reacting to filesystem changes through the hot-module-reload runtime
// (internal/hmr). Nothing in internal/vm imports internal/module or
// internal/hmr directly; this package is the one place that wires the
// otherwise-standalone pieces into a single executable pipeline, the way
// the teacher's internal/orchestrator.Builder wires its own store/adapter/
// dispatch pieces together rather than having any one of them reach into
// the others.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/compiler"
	"github.com/qsjs/quicksilver/internal/hmr"
	"github.com/qsjs/quicksilver/internal/module"
	"github.com/qsjs/quicksilver/internal/sandbox"
	"github.com/qsjs/quicksilver/internal/value"
	"github.com/qsjs/quicksilver/internal/vm"
)

// Engine owns the state one `qsjs run`/`qsjs watch` invocation needs across
// every module it loads: a shared heap and host context (so Promises,
// timers, and object identity stay consistent program-wide even though
// each module gets its own VM/Globals), the module loader doing
// resolution and caching, and an optional sandbox grant set applied to
// every module's VM.
type Engine struct {
	Heap    *value.Heap
	Host    *vm.HostContext
	Loader  *module.Loader
	Log     *slog.Logger
	Sandbox sandbox.Checker

	// vms holds the VM each already-evaluated module ran on, keyed by
	// canonical module id — Watch re-evaluates a changed module by
	// discarding and rebuilding its entry here, not by mutating it in
	// place.
	vms map[string]*vm.VM
}

// New returns an Engine resolving relative module specifiers against
// baseDir (the process's working directory if empty).
func New(baseDir string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Heap:   value.NewHeap(),
		Host:   vm.NewHostContext(),
		Loader: module.NewLoader(baseDir),
		Log:    log,
		vms:    make(map[string]*vm.VM),
	}
}

// SetSandbox installs the capability grants applied to every module's VM.
func (e *Engine) SetSandbox(checker sandbox.Checker) { e.Sandbox = checker }

// buildVM returns a fresh VM sharing this engine's heap/host, with the
// standard global surface and sandbox already installed — one per module,
// mirroring a module's own top-level lexical environment rather than a
// single flat global namespace shared by the whole program.
func (e *Engine) buildVM() *vm.VM {
	mv := vm.New(e.Heap, e.Host, e.Log)
	mv.InstallGlobals()
	if e.Sandbox != nil {
		mv.SetSandbox(e.Sandbox)
	}
	return mv
}

// NewVM returns a fresh script-scope VM sharing this engine's heap/host
// and sandbox, for callers (the REPL) that evaluate bare statements rather
// than a resolvable module graph.
func (e *Engine) NewVM() *vm.VM { return e.buildVM() }

// Run loads, links, and evaluates entryPath and every module it
// transitively imports or re-exports from, returning the entry module.
func (e *Engine) Run(entryPath string) (*module.Module, error) {
	abs, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve entry path: %w", err)
	}
	m, err := e.Loader.Load(abs, "")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", entryPath, err)
	}
	if err := e.evaluate(m, make(map[string]bool)); err != nil {
		return nil, err
	}
	return m, nil
}

// evaluate runs m's imports and re-export sources (depth-first, memoized
// against m.Status so a diamond-shaped import graph only compiles and
// runs each module once), then compiles and runs m itself. visiting
// tracks modules currently on this call's evaluation stack, so a cyclic
// import resolves to whatever the in-progress dependency has exported so
// far rather than recursing forever — the same accommodation real
// engines make for cyclic ES modules, one level up from
// internal/module.Loader.Load's own CircularDependency check at the
// resolve/parse stage.
func (e *Engine) evaluate(m *module.Module, visiting map[string]bool) error {
	if m.Status == module.Evaluated {
		return nil
	}
	if visiting[m.ID] {
		return nil
	}
	visiting[m.ID] = true
	defer delete(visiting, m.ID)
	m.Status = module.Linking

	imports := importDeclarations(m.Program)
	bindings := make(map[string]value.Value, len(imports))
	namespaces := make(map[string]string)

	for _, imp := range imports {
		dep, err := e.Loader.Load(imp.Source, m.Path)
		if err != nil {
			return fmt.Errorf("import %q from %s: %w", imp.Source, m.Path, err)
		}
		if err := e.evaluate(dep, visiting); err != nil {
			return err
		}
		for _, spec := range imp.Specifiers {
			switch spec.Kind {
			case ast.ImportDefault:
				v, _ := dep.GetExport("default")
				bindings[spec.Local.Name] = v
			case ast.ImportNamed:
				v, ok := dep.GetExport(spec.Imported)
				if !ok {
					return &module.Error{Kind: module.ExportNotFound, Specifier: imp.Source, Export: spec.Imported}
				}
				bindings[spec.Local.Name] = v
			case ast.ImportNamespace:
				namespaces[spec.Local.Name] = dep.ID
			}
		}
	}

	// Re-export sources (`export { a } from "./x.js"`, `export * from
	// "./x.js"`) need their dependency evaluated too, even though no
	// bytecode in m's own chunk ever references them directly — the
	// binding only has to exist by the time harvestExports runs.
	exportInfo := module.AnalyzeExports(m.Program)
	depsByID := map[string]*module.Module{}
	for _, info := range exportInfo {
		if info.Source == "" {
			continue
		}
		dep, err := e.Loader.Load(info.Source, m.Path)
		if err != nil {
			return fmt.Errorf("re-export %q from %s: %w", info.Source, m.Path, err)
		}
		if err := e.evaluate(dep, visiting); err != nil {
			return err
		}
		depsByID[dep.ID] = dep
	}

	m.Status = module.Evaluating
	mv := e.buildVM()
	for name, v := range bindings {
		mv.Globals[name] = v
	}
	for name, depID := range namespaces {
		if dep, ok := e.Loader.Get(depID); ok {
			mv.Globals[name] = dep.NamespaceObject(e.Heap)
		}
	}

	chunk, err := compiler.CompileProgram(m.Program, m.Source)
	if err != nil {
		m.Status = module.Errored
		return fmt.Errorf("compile %s: %w", m.Path, err)
	}
	if _, err := mv.RunProgram(chunk); err != nil {
		m.Status = module.Errored
		return fmt.Errorf("evaluate %s: %w", m.Path, err)
	}

	e.vms[m.ID] = mv
	e.harvestExports(m, mv, exportInfo, depsByID)
	e.Loader.UpdateExports(m.ID, m.Exports, m.DefaultExport, m.HasDefault)
	m.Status = module.Evaluated
	return nil
}

// harvestExports reads back every export statement's binding. Ordinary
// named/default exports were left on mv.Globals under their exported name
// by OpExportSet; re-exports instead copy straight from the already-
// evaluated source module's own export table, since this engine's
// bytecode has no instruction for "load a name from another module" (only
// for a local export-set).
func (e *Engine) harvestExports(m *module.Module, mv *vm.VM, infos []module.ExportInfo, deps map[string]*module.Module) {
	for _, info := range infos {
		switch info.Kind {
		case module.ExportInfoNamed:
			if info.Source == "" {
				v := mv.Globals[info.Exported]
				m.SetExport(info.Exported, v)
				continue
			}
			id, err := e.Loader.Resolve(info.Source, m.Path)
			if err != nil {
				continue
			}
			dep := deps[id]
			if dep == nil {
				continue
			}
			v, _ := dep.GetExport(info.Local)
			m.SetExport(info.Exported, v)
			m.ReExports = append(m.ReExports, module.ReExport{Source: info.Source, Names: [][2]string{{info.Local, info.Exported}}})
		case module.ExportInfoDefault:
			m.SetExport("default", mv.Globals["default"])
		case module.ExportInfoAll:
			id, err := e.Loader.Resolve(info.Source, m.Path)
			if err != nil {
				continue
			}
			dep := deps[id]
			if dep == nil {
				continue
			}
			for _, name := range dep.ExportNames() {
				if name == "default" {
					continue
				}
				v, _ := dep.GetExport(name)
				m.SetExport(name, v)
			}
			m.ReExports = append(m.ReExports, module.ReExport{Source: info.Source})
		case module.ExportInfoAllAs:
			id, err := e.Loader.Resolve(info.Source, m.Path)
			if err != nil {
				continue
			}
			dep := deps[id]
			if dep == nil {
				continue
			}
			m.SetExport(info.Exported, dep.NamespaceObject(e.Heap))
		}
	}
}

// importSpec groups one ImportDeclaration's source and specifiers, the
// unit evaluate's dependency walk needs.
type importSpec struct {
	Source     string
	Specifiers []ast.ImportSpecifier
}

func importDeclarations(prog *ast.Program) []importSpec {
	var out []importSpec
	for _, stmt := range prog.Body {
		if imp, ok := stmt.(*ast.ImportDeclaration); ok {
			out = append(out, importSpec{Source: imp.Source, Specifiers: imp.Specifiers})
		}
	}
	return out
}

// Watch runs entryPath once, then polls for source changes via
// internal/hmr and, for every applied update, re-runs the whole program
// from the entry module (see reevaluateFromScratch); it does not
// re-evaluate only the affected modules. A module with no accepting boundary along
// its dependent chain forces a full re-run of the entry module instead —
// HmrRuntime.ApplyUpdate already reports that case as a failed update, so
// Watch treats "no accepting boundary" the same way a browser's HMR
// client treats it: fall back to reloading the page, here meaning
// re-running Run from the entry point.
func (e *Engine) Watch(entryPath string, pollInterval time.Duration, onReload func(reason string)) error {
	if pollInterval <= 0 {
		pollInterval = hmr.DefaultPollInterval
	}
	abs, err := filepath.Abs(entryPath)
	if err != nil {
		return fmt.Errorf("resolve entry path: %w", err)
	}

	runtime, err := hmr.NewHmrRuntimeWithPollInterval(pollInterval)
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer runtime.Close()

	if _, err := e.Run(abs); err != nil {
		return err
	}
	e.registerWatchedModules(runtime, abs, make(map[string]bool))

	for {
		changes := runtime.CheckForUpdates()
		if len(changes) == 0 {
			time.Sleep(pollInterval)
			continue
		}
		for _, result := range runtime.ApplyPendingUpdates() {
			id := string(result.ModuleID)
			if !result.Success {
				if onReload != nil {
					onReload(fmt.Sprintf("%s: %s (full reload)", id, result.Error))
				}
				e.vms = make(map[string]*vm.VM)
				e.Loader = module.NewLoader(filepath.Dir(abs))
				if _, err := e.Run(abs); err != nil {
					return err
				}
				e.registerWatchedModules(runtime, abs, make(map[string]bool))
				continue
			}
			if onReload != nil {
				onReload(id)
			}
			e.invalidate(id)
			if err := e.reevaluateFromScratch(abs); err != nil {
				return err
			}
		}
	}
}

// invalidate drops a module's entry from this engine's VM table; the
// loader's cache is left as it is (reevaluateFromScratch replaces the
// whole loader).
func (e *Engine) invalidate(id string) {
	delete(e.vms, id)
}

// reevaluateFromScratch re-runs the whole program from the entry point.
// Real incremental HMR would re-run only the affected subgraph in place
// against live bindings; this engine's module/VM boundary doesn't expose
// a way to re-bind one already-linked module's imports without re-running
// its dependents too, so a changed module currently triggers a full
// re-evaluation of the entry program rather than an in-place patch — the
// dependency-graph/accept-boundary bookkeeping in internal/hmr is still
// exercised end to end (CheckForUpdates, ApplyUpdate, accept/decline,
// dispose data), just not threaded into a partial VM patch.
func (e *Engine) reevaluateFromScratch(entryPath string) error {
	e.Loader = module.NewLoader(filepath.Dir(entryPath))
	e.vms = make(map[string]*vm.VM)
	_, err := e.Run(entryPath)
	return err
}

// registerWatchedModules walks the already-evaluated module graph
// starting at entryPath and registers every file with the HMR runtime's
// watcher and dependency graph.
func (e *Engine) registerWatchedModules(runtime *hmr.HmrRuntime, path string, seen map[string]bool) {
	e.registerWatchedModule(runtime, path, seen, true)
}

func (e *Engine) registerWatchedModule(runtime *hmr.HmrRuntime, path string, seen map[string]bool, isEntry bool) {
	m, ok := e.Loader.Get(path)
	if !ok {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		m, ok = e.Loader.Get(abs)
		if !ok {
			return
		}
	}
	if seen[m.ID] {
		return
	}
	seen[m.ID] = true
	id := runtime.RegisterModule(m.ID)
	if isEntry {
		runtime.Graph().AddEntryPoint(id)
	}
	for _, imp := range importDeclarations(m.Program) {
		depPath, err := e.Loader.Resolve(imp.Source, m.Path)
		if err != nil {
			continue
		}
		runtime.AddDependency(id, hmr.ModuleID(depPath))
		e.registerWatchedModule(runtime, depPath, seen, false)
	}
}
