package vm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"

	"github.com/qsjs/quicksilver/internal/sandbox"
	"github.com/qsjs/quicksilver/internal/value"
)

// InstallHostAPIs seeds spec.md §4.L's remaining host surface beyond
// InstallGlobals: crypto, performance, the Deno.*-shaped FS/env/process
// namespace, and fetch/Response — every one of these gated by vm.Sandbox
// per spec.md invariant 8, so installing them is safe even before a
// sandbox is attached (SetSandbox defaults to "all granted").
func (vm *VM) InstallHostAPIs() {
	vm.Globals["crypto"] = vm.buildCrypto()
	vm.Globals["performance"] = vm.buildPerformance()
	vm.Globals["Deno"] = vm.buildDeno()
	vm.Globals["fetch"] = vm.nativeFn("fetch", vm.doFetch)
	vm.Globals["TextEncoder"] = vm.nativeFn("TextEncoder", func(args []value.Value) (value.Value, error) {
		return vm.buildTextEncoder(), nil
	})
	vm.Globals["TextDecoder"] = vm.nativeFn("TextDecoder", func(args []value.Value) (value.Value, error) {
		return vm.buildTextDecoder(), nil
	})
	if vm.mockRoutes == nil {
		vm.mockRoutes = make(map[string]mockResponse)
	}
}

// mockResponse is a canned reply registered for a mock:// URL, letting
// tests exercise fetch's Response shape without touching the network —
// spec.md §4.L reserves the mock:// scheme for exactly this.
type mockResponse struct {
	status int
	body   string
	header map[string]string
}

// RegisterMock installs a canned response a script's fetch("mock://name")
// call will receive, bypassing both the sandbox Network check and any real
// socket — tests are expected to opt into this explicitly rather than it
// happening implicitly for any URL.
func (vm *VM) RegisterMock(name string, status int, body string, header map[string]string) {
	if vm.mockRoutes == nil {
		vm.mockRoutes = make(map[string]mockResponse)
	}
	vm.mockRoutes[name] = mockResponse{status: status, body: body, header: header}
}

// ---- crypto -----------------------------------------------------------

func (vm *VM) buildCrypto() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	value.SetProperty(vm.Heap, id, "randomUUID", vm.nativeFn("randomUUID", func(args []value.Value) (value.Value, error) {
		return value.Str(uuid.New().String()), nil
	}))
	value.SetProperty(vm.Heap, id, "getRandomValues", vm.nativeFn("getRandomValues", func(args []value.Value) (value.Value, error) {
		arg := argAt(args, 0)
		if !arg.IsObject() {
			return value.Undef, vm.throwError("TypeError", "getRandomValues requires a typed array argument")
		}
		obj, ok := vm.Heap.Get(arg.AsObject())
		if !ok {
			return value.Undef, vm.throwError("TypeError", "getRandomValues requires a typed array argument")
		}
		buf := make([]byte, len(obj.Elements))
		// crypto/rand is the one documented stdlib exception in this file:
		// the pack's crypto libraries are signature/cipher-focused, not
		// byte-fill CSPRNGs, and spec.md disclaims needing one of its own.
		if _, err := rand.Read(buf); err != nil {
			return value.Undef, vm.throwError("Error", "getRandomValues: %s", err)
		}
		for i, b := range buf {
			obj.Elements[i] = value.Num(float64(b))
		}
		return arg, nil
	}))
	return value.Obj(id)
}

// ---- performance --------------------------------------------------------

func (vm *VM) buildPerformance() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	origin := time.Now()
	value.SetProperty(vm.Heap, id, "timeOrigin", value.Num(float64(origin.UnixMilli())))
	value.SetProperty(vm.Heap, id, "now", vm.nativeFn("now", func(args []value.Value) (value.Value, error) {
		return value.Num(float64(time.Since(origin)) / float64(time.Millisecond)), nil
	}))
	return value.Obj(id)
}

// ---- Deno.* FS/env/process namespace ------------------------------------

// buildDeno assembles the Deno.*-shaped namespace spec.md §4.L names: every
// member here checks a sandbox capability before touching the filesystem,
// environment, or a child process, and throws before any side effect on
// denial per spec.md invariant 8.
func (vm *VM) buildDeno() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)

	value.SetProperty(vm.Heap, id, "readTextFile", vm.nativeFn("readTextFile", vm.denoReadTextFile))
	value.SetProperty(vm.Heap, id, "writeTextFile", vm.nativeFn("writeTextFile", vm.denoWriteTextFile))
	value.SetProperty(vm.Heap, id, "remove", vm.nativeFn("remove", vm.denoRemove))
	value.SetProperty(vm.Heap, id, "mkdir", vm.nativeFn("mkdir", vm.denoMkdir))
	value.SetProperty(vm.Heap, id, "readDir", vm.nativeFn("readDir", vm.denoReadDir))

	envObj := &value.Object{Class: value.ClassOrdinary}
	envID := vm.Heap.Alloc(envObj)
	value.SetProperty(vm.Heap, envID, "get", vm.nativeFn("get", vm.denoEnvGet))
	value.SetProperty(vm.Heap, envID, "set", vm.nativeFn("set", vm.denoEnvSet))
	value.SetProperty(vm.Heap, envID, "delete", vm.nativeFn("delete", vm.denoEnvDelete))
	value.SetProperty(vm.Heap, envID, "toObject", vm.nativeFn("toObject", vm.denoEnvToObject))
	value.SetProperty(vm.Heap, id, "env", value.Obj(envID))

	value.SetProperty(vm.Heap, id, "cwd", vm.nativeFn("cwd", func(args []value.Value) (value.Value, error) {
		dir, err := os.Getwd()
		if err != nil {
			return value.Undef, vm.throwError("Error", "cwd: %s", err)
		}
		return value.Str(dir), nil
	}))

	cmdObj := &value.Object{Class: value.ClassOrdinary}
	cmdID := vm.Heap.Alloc(cmdObj)
	value.SetProperty(vm.Heap, cmdID, "run", vm.nativeFn("run", vm.denoCommandRun))
	value.SetProperty(vm.Heap, id, "Command", value.Obj(cmdID))

	return value.Obj(id)
}

func (vm *VM) argPath(args []value.Value, i int) (string, error) {
	arg := argAt(args, i)
	if arg.Kind() != value.String {
		return "", vm.throwError("TypeError", "expected a path string argument")
	}
	return arg.AsString(), nil
}

func (vm *VM) denoReadTextFile(args []value.Value) (value.Value, error) {
	path, err := vm.argPath(args, 0)
	if err != nil {
		return value.Undef, err
	}
	if err := vm.checkCapability(sandbox.FileReadCap(sandbox.ExactPattern(path)), path); err != nil {
		return value.Undef, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return value.Undef, vm.throwError("Error", "readTextFile %q: %s", path, err)
	}
	return value.Str(string(data)), nil
}

func (vm *VM) denoWriteTextFile(args []value.Value) (value.Value, error) {
	path, err := vm.argPath(args, 0)
	if err != nil {
		return value.Undef, err
	}
	if err := vm.checkCapability(sandbox.FileWriteCap(sandbox.ExactPattern(path)), path); err != nil {
		return value.Undef, err
	}
	contents := vm.toDisplayString(argAt(args, 1))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return value.Undef, vm.throwError("Error", "writeTextFile %q: %s", path, err)
	}
	return value.Undef, nil
}

func (vm *VM) denoRemove(args []value.Value) (value.Value, error) {
	path, err := vm.argPath(args, 0)
	if err != nil {
		return value.Undef, err
	}
	if err := vm.checkCapability(sandbox.FileWriteCap(sandbox.ExactPattern(path)), path); err != nil {
		return value.Undef, err
	}
	if err := os.Remove(path); err != nil {
		return value.Undef, vm.throwError("Error", "remove %q: %s", path, err)
	}
	return value.Undef, nil
}

func (vm *VM) denoMkdir(args []value.Value) (value.Value, error) {
	path, err := vm.argPath(args, 0)
	if err != nil {
		return value.Undef, err
	}
	if err := vm.checkCapability(sandbox.FileWriteCap(sandbox.ExactPattern(path)), path); err != nil {
		return value.Undef, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return value.Undef, vm.throwError("Error", "mkdir %q: %s", path, err)
	}
	return value.Undef, nil
}

func (vm *VM) denoReadDir(args []value.Value) (value.Value, error) {
	path, err := vm.argPath(args, 0)
	if err != nil {
		return value.Undef, err
	}
	if err := vm.checkCapability(sandbox.FileReadCap(sandbox.ExactPattern(path)), path); err != nil {
		return value.Undef, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return value.Undef, vm.throwError("Error", "readDir %q: %s", path, err)
	}
	out := make([]value.Value, len(entries))
	for i, e := range entries {
		entryObj := &value.Object{Class: value.ClassOrdinary}
		entryID := vm.Heap.Alloc(entryObj)
		value.SetProperty(vm.Heap, entryID, "name", value.Str(e.Name()))
		value.SetProperty(vm.Heap, entryID, "isFile", value.Bool(!e.IsDir()))
		value.SetProperty(vm.Heap, entryID, "isDirectory", value.Bool(e.IsDir()))
		out[i] = value.Obj(entryID)
	}
	return vm.newArrayValue(out), nil
}

func (vm *VM) denoEnvGet(args []value.Value) (value.Value, error) {
	name := vm.toDisplayString(argAt(args, 0))
	if err := vm.checkCapability(sandbox.EnvCap(sandbox.ExactPattern(name)), name); err != nil {
		return value.Undef, err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return value.Undef, nil
	}
	return value.Str(v), nil
}

func (vm *VM) denoEnvSet(args []value.Value) (value.Value, error) {
	name := vm.toDisplayString(argAt(args, 0))
	if err := vm.checkCapability(sandbox.EnvCap(sandbox.ExactPattern(name)), name); err != nil {
		return value.Undef, err
	}
	if err := os.Setenv(name, vm.toDisplayString(argAt(args, 1))); err != nil {
		return value.Undef, vm.throwError("Error", "env.set %q: %s", name, err)
	}
	return value.Undef, nil
}

func (vm *VM) denoEnvDelete(args []value.Value) (value.Value, error) {
	name := vm.toDisplayString(argAt(args, 0))
	if err := vm.checkCapability(sandbox.EnvCap(sandbox.ExactPattern(name)), name); err != nil {
		return value.Undef, err
	}
	os.Unsetenv(name)
	return value.Undef, nil
}

func (vm *VM) denoEnvToObject(args []value.Value) (value.Value, error) {
	if err := vm.checkCapability(sandbox.EnvCap(sandbox.AnyPattern()), "*"); err != nil {
		return value.Undef, err
	}
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				value.SetProperty(vm.Heap, id, kv[:i], value.Str(kv[i+1:]))
				break
			}
		}
	}
	return value.Obj(id), nil
}

// denoCommandRun gates the all-or-nothing Subprocess capability and, when
// granted, shells out via internal/sandbox's own process-isolation backend
// so an engine-spawned child process inherits the same mounts/rlimits the
// teacher's Sandbox enforces for agent sessions — the repurposing
// SPEC_FULL.md §4.I describes.
func (vm *VM) denoCommandRun(args []value.Value) (value.Value, error) {
	name := vm.toDisplayString(argAt(args, 0))
	if err := vm.checkCapability(sandbox.SubprocessCap(), name); err != nil {
		return value.Undef, err
	}
	var cmdArgs []string
	argsArr := argAt(args, 1)
	if argsArr.IsObject() {
		if arr, ok := vm.Heap.Get(argsArr.AsObject()); ok && arr.Class == value.ClassArray {
			cmdArgs = make([]string, len(arr.Elements))
			for i, e := range arr.Elements {
				cmdArgs[i] = vm.toDisplayString(e)
			}
		}
	}
	out, exitCode, err := vm.runSubprocess(name, cmdArgs)
	resultObj := &value.Object{Class: value.ClassOrdinary}
	resultID := vm.Heap.Alloc(resultObj)
	value.SetProperty(vm.Heap, resultID, "stdout", value.Str(out))
	value.SetProperty(vm.Heap, resultID, "code", value.Num(float64(exitCode)))
	value.SetProperty(vm.Heap, resultID, "success", value.Bool(err == nil && exitCode == 0))
	return value.Obj(resultID), nil
}

// runSubprocess executes name/cmdArgs, routed through vm.ProcessConfig's
// isolation backend when set, or a plain exec.CommandContext otherwise —
// the capability gate (checked by the caller before this runs) is what
// spec.md requires; ProcessConfig adds the teacher's optional extra
// resource-limit layer on top.
func (vm *VM) runSubprocess(name string, cmdArgs []string) (string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if vm.ProcessConfig == nil {
		cmd := exec.CommandContext(ctx, name, cmdArgs...)
		out, err := cmd.Output()
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		} else if err != nil {
			exitCode = -1
		}
		return string(out), exitCode, err
	}

	sbx, err := sandbox.New(*vm.ProcessConfig)
	if err != nil {
		return "", -1, err
	}
	defer sbx.Destroy()
	cmd, err := sbx.Exec(ctx, name, cmdArgs)
	if err != nil {
		return "", -1, err
	}
	out, err := cmd.Output()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return string(out), exitCode, err
}

// ---- fetch/Response ------------------------------------------------------

// doFetch implements the subset of spec.md's fetch contract this engine
// needs: a capability check against the target host, then either a mock
// lookup (mock:// scheme, reserved for tests) or a real HTTP round trip,
// settling a Promise rather than returning synchronously to match the
// real fetch's async shape.
func (vm *VM) doFetch(args []value.Value) (value.Value, error) {
	rawURL := vm.toDisplayString(argAt(args, 0))
	resultID, result := vm.newPromise()

	u, perr := url.Parse(rawURL)
	if perr != nil {
		vm.rejectPromise(resultID, vm.errToValue(vm.throwError("TypeError", "fetch: invalid URL %q", rawURL)))
		return result, nil
	}

	if u.Scheme == "mock" {
		name := u.Host
		mock, ok := vm.mockRoutes[name]
		if !ok {
			vm.rejectPromise(resultID, vm.errToValue(vm.throwError("Error", "fetch: no mock registered for %q", name)))
			return result, nil
		}
		vm.resolvePromise(resultID, vm.buildResponse(mock.status, mock.body, mock.header))
		return result, nil
	}

	host := u.Hostname()
	asciiHost, idnaErr := idna.Lookup.ToASCII(host)
	if idnaErr == nil {
		host = asciiHost
	}
	if err := vm.checkCapability(sandbox.NetworkCap(sandbox.ExactPattern(host)), host); err != nil {
		vm.rejectPromise(resultID, vm.errToValue(err))
		return result, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		vm.rejectPromise(resultID, vm.errToValue(vm.throwError("TypeError", "fetch: %s", err)))
		return result, nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		vm.rejectPromise(resultID, vm.errToValue(vm.throwError("Error", "fetch: %s", err)))
		return result, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		vm.rejectPromise(resultID, vm.errToValue(vm.throwError("Error", "fetch: reading body: %s", err)))
		return result, nil
	}
	header := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		header[k] = resp.Header.Get(k)
	}
	vm.resolvePromise(resultID, vm.buildResponse(resp.StatusCode, string(body), header))
	return result, nil
}

func (vm *VM) buildResponse(status int, body string, header map[string]string) value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	value.SetProperty(vm.Heap, id, "status", value.Num(float64(status)))
	value.SetProperty(vm.Heap, id, "ok", value.Bool(status >= 200 && status < 300))

	headersObj := &value.Object{Class: value.ClassOrdinary}
	headersID := vm.Heap.Alloc(headersObj)
	for k, v := range header {
		value.SetProperty(vm.Heap, headersID, k, value.Str(v))
	}
	value.SetProperty(vm.Heap, id, "headers", value.Obj(headersID))

	value.SetProperty(vm.Heap, id, "text", vm.nativeFn("text", func(args []value.Value) (value.Value, error) {
		id, result := vm.newPromise()
		vm.resolvePromise(id, value.Str(body))
		return result, nil
	}))
	value.SetProperty(vm.Heap, id, "json", vm.nativeFn("json", func(args []value.Value) (value.Value, error) {
		id, result := vm.newPromise()
		var parsed any
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			vm.rejectPromise(id, vm.errToValue(vm.throwError("SyntaxError", "Response.json: %s", err)))
			return result, nil
		}
		vm.resolvePromise(id, vm.jsonToValue(parsed))
		return result, nil
	}))
	return value.Obj(id)
}

// ---- TextEncoder/TextDecoder --------------------------------------------

func (vm *VM) buildTextEncoder() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	value.SetProperty(vm.Heap, id, "encode", vm.nativeFn("encode", func(args []value.Value) (value.Value, error) {
		s := vm.toDisplayString(argAt(args, 0))
		bytes := []byte(s)
		elems := make([]value.Value, len(bytes))
		for i, b := range bytes {
			elems[i] = value.Num(float64(b))
		}
		return vm.newArrayValue(elems), nil
	}))
	return value.Obj(id)
}

func (vm *VM) buildTextDecoder() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	value.SetProperty(vm.Heap, id, "decode", vm.nativeFn("decode", func(args []value.Value) (value.Value, error) {
		arg := argAt(args, 0)
		if !arg.IsObject() {
			return value.Str(""), nil
		}
		arr, ok := vm.Heap.Get(arg.AsObject())
		if !ok {
			return value.Str(""), nil
		}
		bytes := make([]byte, len(arr.Elements))
		for i, e := range arr.Elements {
			n, _ := vm.toNumber(e)
			bytes[i] = byte(n)
		}
		return value.Str(string(bytes)), nil
	}))
	return value.Obj(id)
}
