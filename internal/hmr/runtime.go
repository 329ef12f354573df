package hmr

import (
	"os"
	"sync"
	"time"
)

// UpdateHandler is invoked once a module's update has been applied. Per this
// port's resolution of the original's accept-callback Open Question, the
// handler receives the now-current ModuleInfo rather than only the raw
// update — a script's `module.hot.accept(cb)` callback should be able to see
// the module it's reacting to, not just the diff that triggered it.
type UpdateHandler func(update *HotUpdate, module *ModuleInfo)

// HmrRuntime ties the module graph and file watcher together: it queues
// updates as changes are detected and applies them against the dependency
// graph, bubbling up to the nearest accepting ancestor.
type HmrRuntime struct {
	graph   *ModuleGraph
	watcher *FileWatcher

	pendingMu sync.Mutex
	pending   []HotUpdate

	handlersMu sync.Mutex
	handlers   map[ModuleID]UpdateHandler
}

// NewHmrRuntime returns a runtime using DefaultPollInterval.
func NewHmrRuntime() (*HmrRuntime, error) {
	return NewHmrRuntimeWithPollInterval(DefaultPollInterval)
}

// NewHmrRuntimeWithPollInterval returns a runtime polling at the given
// interval.
func NewHmrRuntimeWithPollInterval(pollInterval time.Duration) (*HmrRuntime, error) {
	watcher, err := NewFileWatcher(pollInterval)
	if err != nil {
		return nil, err
	}
	return &HmrRuntime{
		graph:    NewModuleGraph(),
		watcher:  watcher,
		handlers: make(map[ModuleID]UpdateHandler),
	}, nil
}

// RegisterModule adds path to the dependency graph and begins watching it.
func (r *HmrRuntime) RegisterModule(path string) ModuleID {
	id := ModuleID(path)
	r.graph.Register(id, path)
	r.watcher.Watch(path)
	return id
}

// AddDependency records that the module "from" imports "to".
func (r *HmrRuntime) AddDependency(from, to ModuleID) {
	r.graph.AddDependency(from, to)
}

// GetHotContext returns the module.hot handle for id.
func (r *HmrRuntime) GetHotContext(id ModuleID) (*HotContext, bool) {
	m, ok := r.graph.Get(id)
	if !ok {
		return nil, false
	}
	return m.Hot, true
}

// CheckForUpdates polls the watcher and queues a HotUpdate for every
// modified file, bubbling by default.
func (r *HmrRuntime) CheckForUpdates() []FileChange {
	changes := r.watcher.Poll()
	for _, change := range changes {
		if change.Kind != FileModified {
			continue
		}
		source, err := os.ReadFile(change.Path)
		if err != nil {
			continue
		}
		r.QueueUpdate(HotUpdate{
			ModuleID:   ModuleID(change.Path),
			NewSource:  string(source),
			SourceHash: calculateHash(string(source)),
			Mode:       ModeBubble,
		})
	}
	return changes
}

// QueueUpdate appends an update to the pending queue.
func (r *HmrRuntime) QueueUpdate(u HotUpdate) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending = append(r.pending, u)
}

// PendingUpdates returns and clears the queue.
func (r *HmrRuntime) PendingUpdates() []HotUpdate {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// ApplyUpdate applies a single update against the graph, searching for an
// accepting boundary when the target module itself hasn't opted in.
func (r *HmrRuntime) ApplyUpdate(update *HotUpdate) UpdateResult {
	start := time.Now()

	module, ok := r.graph.Get(update.ModuleID)
	if !ok {
		return UpdateResult{
			ModuleID: update.ModuleID,
			Success:  false,
			Error:    (&Error{Kind: ModuleNotFound, ModuleID: update.ModuleID}).Error(),
			Duration: time.Since(start),
		}
	}

	if !module.Hot.CanUpdate() {
		boundary := r.graph.FindUpdateBoundary(update.ModuleID)
		if len(boundary) == 0 {
			return UpdateResult{
				ModuleID: update.ModuleID,
				Success:  false,
				Error:    "no module accepts this update, full reload required",
				Duration: time.Since(start),
			}
		}
	}

	affected := r.graph.GetAffectedModules(update.ModuleID)

	disposeData := module.Hot.TakeDisposeData()
	module.Version = module.Version.Next()
	module.SourceHash = update.SourceHash
	module.Status = StatusUpdating
	if disposeData != nil {
		module.Hot.Data = disposeData
	}
	module.Status = StatusReady

	r.handlersMu.Lock()
	handler, hasHandler := r.handlers[update.ModuleID]
	r.handlersMu.Unlock()
	if hasHandler {
		handler(update, module)
	}

	return UpdateResult{
		ModuleID:        update.ModuleID,
		Success:         true,
		AffectedModules: affected,
		Duration:        time.Since(start),
	}
}

// ApplyPendingUpdates drains the queue and applies every update in order.
func (r *HmrRuntime) ApplyPendingUpdates() []UpdateResult {
	updates := r.PendingUpdates()
	results := make([]UpdateResult, 0, len(updates))
	for i := range updates {
		results = append(results, r.ApplyUpdate(&updates[i]))
	}
	return results
}

// OnUpdate registers the handler invoked once id's update is applied.
func (r *HmrRuntime) OnUpdate(id ModuleID, handler UpdateHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers[id] = handler
}

// Invalidate sets a module's status to StatusDisposed. It does not itself
// unload, reload or re-evaluate the module.
func (r *HmrRuntime) Invalidate(id ModuleID) {
	if m, ok := r.graph.Get(id); ok {
		m.Status = StatusDisposed
	}
}

// Graph returns the underlying module dependency graph.
func (r *HmrRuntime) Graph() *ModuleGraph { return r.graph }

// Watcher returns the underlying file watcher.
func (r *HmrRuntime) Watcher() *FileWatcher { return r.watcher }

// Close releases the watcher's fsnotify handle.
func (r *HmrRuntime) Close() error { return r.watcher.Close() }
