package hmr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleGraphDependencyEdges(t *testing.T) {
	g := NewModuleGraph()
	a, b := ModuleID("a.js"), ModuleID("b.js")

	g.Register(a, "a.js")
	g.Register(b, "b.js")
	g.AddDependency(a, b)

	bInfo, ok := g.Get(b)
	require.True(t, ok)
	assert.True(t, bInfo.Dependents[a])

	aInfo, ok := g.Get(a)
	require.True(t, ok)
	assert.True(t, aInfo.Dependencies[b])
}

func TestHotContextAccept(t *testing.T) {
	hot := NewHotContext("test.js")
	assert.False(t, hot.CanUpdate())
	hot.Accept()
	assert.True(t, hot.CanUpdate())
}

func TestHotContextDeclineSelf(t *testing.T) {
	hot := NewHotContext("test.js")
	hot.Accept()
	assert.True(t, hot.CanUpdate())
	hot.DeclineSelf()
	assert.False(t, hot.CanUpdate())
}

func TestHotContextAcceptsUpdateFrom(t *testing.T) {
	hot := NewHotContext("test.js")
	dep := ModuleID("dep.js")

	assert.False(t, hot.AcceptsUpdateFrom(dep))
	hot.AcceptDeps([]ModuleID{dep})
	assert.True(t, hot.AcceptsUpdateFrom(dep))

	hot.Decline([]ModuleID{dep})
	assert.False(t, hot.AcceptsUpdateFrom(dep))
}

func TestFileWatcherDetectsModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log('hello');\n"), 0o644))

	w, err := NewFileWatcher(time.Hour)
	require.NoError(t, err)
	defer w.Close()
	w.Watch(path)

	assert.Empty(t, w.Poll())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("console.log('world');\n"), 0o644))

	changes := w.Poll()
	require.Len(t, changes, 1)
	assert.Equal(t, FileModified, changes[0].Kind)
}

func TestHmrRuntimeRegistersModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.js")
	require.NoError(t, os.WriteFile(path, []byte("export const x = 1;\n"), 0o644))

	r, err := NewHmrRuntime()
	require.NoError(t, err)
	defer r.Close()

	id := r.RegisterModule(path)
	_, ok := r.Graph().Get(id)
	assert.True(t, ok)
}

func TestFindUpdateBoundaryBubbles(t *testing.T) {
	g := NewModuleGraph()
	a, b, c := ModuleID("a.js"), ModuleID("b.js"), ModuleID("c.js")

	g.Register(a, "a.js")
	g.Register(b, "b.js")
	g.Register(c, "c.js")

	g.AddDependency(a, b)
	g.AddDependency(b, c)

	bInfo, ok := g.Get(b)
	require.True(t, ok)
	bInfo.Hot.Accept()

	boundary := g.FindUpdateBoundary(c)
	assert.Contains(t, boundary, b)
}

func TestFindUpdateBoundaryEmptyForcesFullReload(t *testing.T) {
	g := NewModuleGraph()
	a := ModuleID("a.js")
	g.Register(a, "a.js")

	assert.Empty(t, g.FindUpdateBoundary(a))
}

func TestHotDataRawRoundTrip(t *testing.T) {
	d := NewHotData()
	d.SetRaw("counter", []byte{1, 2, 3, 4})
	assert.True(t, d.Has("counter"))

	got, ok := d.GetRaw("counter")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	d.Remove("counter")
	assert.False(t, d.Has("counter"))
}

func TestHotDataJSONRoundTrip(t *testing.T) {
	d := NewHotData()
	require.NoError(t, SetHotData(d, "counter", 42))

	got, ok, err := GetHotData[int](d, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok, err = GetHotData[int](d, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyUpdateNoAcceptorFailsWithoutBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.js")
	require.NoError(t, os.WriteFile(path, []byte("export const x = 1;\n"), 0o644))

	r, err := NewHmrRuntime()
	require.NoError(t, err)
	defer r.Close()

	id := r.RegisterModule(path)
	result := r.ApplyUpdate(&HotUpdate{ModuleID: id, NewSource: "export const x = 2;\n", SourceHash: calculateHash("export const x = 2;\n")})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestApplyUpdateAcceptedBumpsVersionAndInvokesHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.js")
	require.NoError(t, os.WriteFile(path, []byte("export const x = 1;\n"), 0o644))

	r, err := NewHmrRuntime()
	require.NoError(t, err)
	defer r.Close()

	id := r.RegisterModule(path)
	hot, ok := r.GetHotContext(id)
	require.True(t, ok)
	hot.Accept()

	var seen *ModuleInfo
	r.OnUpdate(id, func(update *HotUpdate, module *ModuleInfo) {
		seen = module
	})

	newSource := "export const x = 2;\n"
	result := r.ApplyUpdate(&HotUpdate{ModuleID: id, NewSource: newSource, SourceHash: calculateHash(newSource)})
	require.True(t, result.Success)

	module, ok := r.Graph().Get(id)
	require.True(t, ok)
	assert.Equal(t, ModuleVersion(2), module.Version)
	assert.Equal(t, calculateHash(newSource), module.SourceHash)
	require.NotNil(t, seen)
	assert.Equal(t, id, seen.ID)
}

func TestApplyUpdatePreservesDisposeData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.js")
	require.NoError(t, os.WriteFile(path, []byte("export const x = 1;\n"), 0o644))

	r, err := NewHmrRuntime()
	require.NoError(t, err)
	defer r.Close()

	id := r.RegisterModule(path)
	hot, ok := r.GetHotContext(id)
	require.True(t, ok)
	hot.Accept()

	saved := NewHotData()
	saved.SetRaw("counter", []byte{7})
	hot.Dispose(saved)

	r.ApplyUpdate(&HotUpdate{ModuleID: id, NewSource: "export const x = 2;\n"})

	module, ok := r.Graph().Get(id)
	require.True(t, ok)
	require.NotNil(t, module.Hot.Data)
	got, ok := module.Hot.Data.GetRaw("counter")
	require.True(t, ok)
	assert.Equal(t, []byte{7}, got)
}

func TestCalculateHashStable(t *testing.T) {
	assert.Equal(t, calculateHash("same"), calculateHash("same"))
	assert.NotEqual(t, calculateHash("a"), calculateHash("b"))
}
