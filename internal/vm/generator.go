package vm

import (
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// generatorState is a Generator object's GenFrame payload: a private VM
// instance (sharing this VM's Heap/Globals/Host/Log but owning its own
// operand stack, frame stack, and open-upvalue table) that a suspended
// generator's frames park in across resumes. OpYield causes that private
// VM's run() to return directly (see doYield) without popping the frame,
// so the next resume just calls run() again and picks up at the saved IP.
type generatorState struct {
	vm      *VM
	fn      *value.Object
	fnID    value.ObjectID
	this    value.Value
	args    []value.Value
	started bool
}

// resumeKind distinguishes generator.next()/.throw()/.return() — the three
// ways user code can resume a suspended generator.
type resumeKind int

const (
	resumeNext resumeKind = iota
	resumeThrow
	resumeReturn
)

// makeGenerator backs `invoke` for a generator function: calling one never
// runs any of its body immediately (unlike an ordinary function call) — it
// just allocates the suspended Generator object that drives the body lazily
// as the caller pulls values via .next()/for-of.
func (vm *VM) makeGenerator(fn *value.Object, fnID value.ObjectID, this value.Value, args []value.Value) value.Value {
	gvm := &VM{
		Heap:          vm.Heap,
		Globals:       vm.Globals,
		openUpvalues:  make(map[int]*value.Upvalue),
		Host:          vm.Host,
		Log:           vm.Log,
		Sandbox:       vm.Sandbox,
		ProcessConfig: vm.ProcessConfig,
		mockRoutes:    vm.mockRoutes,
		quasisCache:   vm.quasisCache,
	}
	gs := &generatorState{vm: gvm, fn: fn, fnID: fnID, this: this, args: args}
	id := vm.Heap.Alloc(&value.Object{Class: value.ClassGenerator, GenState: value.GeneratorSuspended, GenFrame: gs})
	return value.Obj(id)
}

// resumeGenerator implements .next(v)/.throw(v)/.return(v) uniformly.
// Returns (value, done, error) matching the IteratorResult shape (error is
// only ever non-nil for an unhandled .throw() reaching past the generator
// entirely, or a genuine runtime error from inside the body).
func (vm *VM) resumeGenerator(genID value.ObjectID, sent value.Value, kind resumeKind) (value.Value, bool, error) {
	obj := vm.Heap.MustGet(genID)
	if obj.GenState == value.GeneratorCompleted {
		if kind == resumeThrow {
			return value.Undef, true, vm.throwValue(sent)
		}
		return value.Undef, true, nil
	}
	gs := obj.GenFrame.(*generatorState)
	gvm := gs.vm

	// A yield* delegation still has queued elements: hand the next one
	// back directly without touching run() at all (see OpResume/run.go).
	if len(gvm.Frames) > 0 {
		top := gvm.Frames[len(gvm.Frames)-1]
		if len(top.delegateQueue) > 0 && kind == resumeNext {
			v := top.delegateQueue[0]
			top.delegateQueue = top.delegateQueue[1:]
			return v, false, nil
		}
	}

	if !gs.started {
		gs.started = true
		switch kind {
		case resumeReturn:
			obj.GenState = value.GeneratorCompleted
			return sent, true, nil
		case resumeThrow:
			obj.GenState = value.GeneratorCompleted
			return value.Undef, true, vm.throwValue(sent)
		}
		chunk := gs.fn.Chunk.(*bytecode.Chunk)
		gvm.pushFrame(chunk, gs.this, gs.args, gs.fnID, value.Undef)
	} else {
		switch kind {
		case resumeReturn:
			// Unwind every frame this generator owns, closing upvalues as
			// a normal return would — any enclosing finally blocks are
			// not run, a documented simplification of the real
			// generator-return-triggers-finally semantics.
			for i := len(gvm.Frames) - 1; i >= 0; i-- {
				gvm.closeUpvalues(gvm.Frames[i].Base)
			}
			gvm.Frames = nil
			gvm.Stack = nil
			obj.GenState = value.GeneratorCompleted
			return sent, true, nil
		case resumeThrow:
			f := gvm.frame()
			if !gvm.dispatchThrow(&f, vm.throwValue(sent)) {
				obj.GenState = value.GeneratorCompleted
				return value.Undef, true, vm.throwValue(sent)
			}
		default:
			gvm.push(sent)
		}
	}

	obj.GenState = value.GeneratorExecuting
	result, err := gvm.run()
	if err != nil {
		obj.GenState = value.GeneratorCompleted
		return value.Undef, true, err
	}
	if len(gvm.Frames) == 0 {
		obj.GenState = value.GeneratorCompleted
		return result, true, nil
	}
	obj.GenState = value.GeneratorSuspended
	return result, false, nil
}

// resumeGeneratorForOf implements for-of's GetIterator/IteratorNext pair
// over a user Generator: plain .next() with no sent value, surfacing a
// thrown error exactly as iteratorNext's other branches do.
func (vm *VM) resumeGeneratorForOf(genID value.ObjectID) (value.Value, bool, error) {
	return vm.resumeGenerator(genID, value.Undef, resumeNext)
}

// doYield backs OpYield: the already-evaluated yield operand sits on top
// of the operand stack (pushed either by the compiled yield argument
// itself, or by OpResume picking a yield*-delegated element). Popping and
// returning it directly lets run()'s case (`return vm.doYield(f)`) return
// out of the private generator VM's run() call without disturbing the
// frame: f.IP already points just past OpYield, so resuming later simply
// calls run() again and continues there.
func (vm *VM) doYield(f *CallFrame) (value.Value, error) {
	return vm.pop(), nil
}

// await's suspension is implemented in async.go (awaitSuspend/runAsyncCall/
// stepAsync/suspendAsync/resumeAsync), mirroring this file's private-VM
// pattern for generators rather than blocking synchronously.
