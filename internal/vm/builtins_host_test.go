package vm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsjs/quicksilver/internal/sandbox"
	"github.com/qsjs/quicksilver/internal/value"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	vm := New(value.NewHeap(), NewHostContext(), nil)
	vm.InstallGlobals()
	return vm
}

func TestDenoReadTextFileDeniedWithoutGrant(t *testing.T) {
	vm := newTestVM(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	vm.SetSandbox(sandbox.NewGrants()) // empty Grants: everything denied

	_, err := vm.denoReadTextFile([]value.Value{value.Str(path)})
	require.Error(t, err)
	rt, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Contains(t, vm.toDisplayString(rt.Value), "--allow-read")

	// No side effect on denial: nothing was read, and the file is untouched.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "hello", string(data))
}

func TestDenoReadTextFileGrantedExactPath(t *testing.T) {
	vm := newTestVM(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	vm.SetSandbox(sandbox.NewGrants().AllowFileRead(sandbox.ExactPattern(path)))

	result, err := vm.denoReadTextFile([]value.Value{value.Str(path)})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.AsString())
}

func TestDenoReadTextFileDeniedForDifferentPath(t *testing.T) {
	vm := newTestVM(t)
	dir := t.TempDir()
	allowed := filepath.Join(dir, "a.txt")
	other := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(other, []byte("secret"), 0o644))

	vm.SetSandbox(sandbox.NewGrants().AllowFileRead(sandbox.ExactPattern(allowed)))

	_, err := vm.denoReadTextFile([]value.Value{value.Str(other)})
	require.Error(t, err)
}

func TestDenoWriteTextFileDeniedLeavesNoFile(t *testing.T) {
	vm := newTestVM(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	vm.SetSandbox(sandbox.NewGrants())
	_, err := vm.denoWriteTextFile([]value.Value{value.Str(path), value.Str("x")})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDenoEnvGetGatedByEnvCapability(t *testing.T) {
	vm := newTestVM(t)
	t.Setenv("QSJS_TEST_VAR", "value")

	vm.SetSandbox(sandbox.NewGrants())
	_, err := vm.denoEnvGet([]value.Value{value.Str("QSJS_TEST_VAR")})
	require.Error(t, err)

	vm.SetSandbox(sandbox.NewGrants().AllowEnv(sandbox.ExactPattern("QSJS_TEST_VAR")))
	result, err := vm.denoEnvGet([]value.Value{value.Str("QSJS_TEST_VAR")})
	require.NoError(t, err)
	assert.Equal(t, "value", result.AsString())
}

func TestDenoCommandRunGatedBySubprocessCapability(t *testing.T) {
	vm := newTestVM(t)

	vm.SetSandbox(sandbox.NewGrants())
	_, err := vm.denoCommandRun([]value.Value{value.Str("echo")})
	require.Error(t, err)

	vm.SetSandbox(sandbox.NewGrants().AllowSubprocess())
	argv := vm.newArrayValue([]value.Value{value.Str("hi")})
	result, err := vm.denoCommandRun([]value.Value{value.Str("echo"), argv})
	require.NoError(t, err)
	assert.True(t, result.IsObject())
}

func TestNilSandboxGrantsEverything(t *testing.T) {
	vm := newTestVM(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	// vm.Sandbox is nil by default: spec.md's "absence of a sandbox = all
	// granted" rule.
	result, err := vm.denoReadTextFile([]value.Value{value.Str(path)})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.AsString())
}

func TestFetchMockRoute(t *testing.T) {
	vm := newTestVM(t)
	vm.RegisterMock("hello", 200, `{"ok":true}`, map[string]string{"Content-Type": "application/json"})

	resultVal, err := vm.doFetch([]value.Value{value.Str("mock://hello")})
	require.NoError(t, err)
	require.True(t, resultVal.IsObject())

	// doFetch settles synchronously against a just-created Promise since
	// there is no real I/O involved in the mock path.
	promiseObj := vm.Heap.MustGet(resultVal.AsObject())
	require.Equal(t, value.PromiseFulfilled, promiseObj.PromiseState)

	status, ok := value.GetProperty(vm.Heap, promiseObj.PromiseValue.AsObject(), "status")
	require.True(t, ok)
	assert.Equal(t, float64(200), status.AsNumber())
}

func TestFetchUnknownMockRejects(t *testing.T) {
	vm := newTestVM(t)
	resultVal, err := vm.doFetch([]value.Value{value.Str("mock://missing")})
	require.NoError(t, err)

	promiseObj := vm.Heap.MustGet(resultVal.AsObject())
	assert.Equal(t, value.PromiseRejected, promiseObj.PromiseState)
}

func TestCryptoRandomUUIDProducesDistinctValues(t *testing.T) {
	vm := newTestVM(t)
	crypto := vm.Globals["crypto"]
	require.True(t, crypto.IsObject())
	randomUUID, _ := value.GetProperty(vm.Heap, crypto.AsObject(), "randomUUID")
	fn := vm.Heap.MustGet(randomUUID.AsObject())

	v1, err := fn.Native(vm.Host, value.Undef, nil)
	require.NoError(t, err)
	v2, err := fn.Native(vm.Host, value.Undef, nil)
	require.NoError(t, err)
	assert.NotEqual(t, v1.AsString(), v2.AsString())
}

func TestTextEncoderDecoderRoundTrip(t *testing.T) {
	vm := newTestVM(t)
	encoded, err := vm.constructValue(vm.Globals["TextEncoder"], nil)
	require.NoError(t, err)
	require.True(t, encoded.IsObject())

	encodeFn, _ := value.GetProperty(vm.Heap, encoded.AsObject(), "encode")
	bytesVal, err := vm.callValue(encodeFn, value.Undef, []value.Value{value.Str("hi")}, value.Undef)
	require.NoError(t, err)

	decoder, err := vm.constructValue(vm.Globals["TextDecoder"], nil)
	require.NoError(t, err)
	decodeFn, _ := value.GetProperty(vm.Heap, decoder.AsObject(), "decode")
	out, err := vm.callValue(decodeFn, value.Undef, []value.Value{bytesVal}, value.Undef)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.AsString())
}
