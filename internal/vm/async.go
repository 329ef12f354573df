package vm

import (
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// awaitSuspend is the error half of run()'s (value.Value, error) result when
// OpAwait hits an unsettled value: it carries the awaited operand back out
// to whichever Go-level caller owns this particular run() invocation
// (runAsyncCall, or RunProgram for a top-level await) so that caller can
// park the frame there and resume it later — the same direct-return
// suspension OpYield already uses (see doYield), just needing its own
// sentinel since run()'s normal return path has no spare value slot to
// signal "suspended" versus "completed" through.
type awaitSuspend struct{ value value.Value }

func (a *awaitSuspend) Error() string { return "await suspended" }

// asyncState is one in-flight async function call: vm is the private VM
// (mirrors generatorState's gvm) whose Stack/Frames/openUpvalues the async
// body's frames live on across suspensions, so an awaited promise settling
// later never has to contend with whatever the caller has since pushed onto
// its own stack. Exactly one of resultID/onSettle is ever used: resultID
// for an ordinary async call, which settles a real user-visible Promise;
// onSettle for a top-level await, which instead reports back into
// RunProgram's own local result/err variables.
type asyncState struct {
	vm       *VM
	resultID value.ObjectID
	onSettle func(value.Value, error)
}

// runAsyncCall backs invoke() for chunk.IsAsync. Like makeGenerator, the
// async function's frame never runs on the caller's own shared stack: a
// suspended await point has to leave its frame parked somewhere the caller
// won't grow past. A private VM holds it instead, and this call returns the
// user-visible Promise immediately, whether the body completes
// synchronously or suspends on its first await.
func (vm *VM) runAsyncCall(fn *value.Object, fnID value.ObjectID, this value.Value, args []value.Value, newTarget value.Value) value.Value {
	avm := &VM{
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
	chunk := fn.Chunk.(*bytecode.Chunk)
	avm.pushFrame(chunk, this, args, fnID, newTarget)

	resultID, result := vm.newPromise()
	as := &asyncState{vm: avm, resultID: resultID}
	vm.stepAsync(as)
	return result
}

// stepAsync drives as.vm forward until it either finishes (settling the
// result, a real Promise or a top-level onSettle callback alike) or
// suspends again on a further await.
func (vm *VM) stepAsync(as *asyncState) {
	result, err := as.vm.run()
	if sus, ok := err.(*awaitSuspend); ok {
		vm.suspendAsync(as, sus.value)
		return
	}
	if as.onSettle != nil {
		as.onSettle(result, err)
		return
	}
	if err != nil {
		vm.rejectPromise(as.resultID, vm.errToValue(err))
		return
	}
	vm.resolvePromise(as.resultID, result)
}

// suspendAsync parks as until awaited settles, resuming through the same
// Promise reaction machinery promiseThen already drives — exactly what a
// real `await` desugars to, a `.then` continuation. The only difference
// from a user-visible `.then` callback is that resumeAsync feeds the
// settled value straight back into as.vm's operand stack instead of
// invoking a JS function.
func (vm *VM) suspendAsync(as *asyncState, awaited value.Value) {
	var srcID value.ObjectID
	if awaited.IsObject() {
		if obj, ok := vm.Heap.Get(awaited.AsObject()); ok && obj.Class == value.ClassPromise {
			srcID = awaited.AsObject()
		}
	}
	if srcID == 0 {
		srcID, _ = vm.newPromise()
		vm.resolvePromise(srcID, awaited)
	}
	vm.Heap.MustGet(srcID).Handled = true

	onFulfilled := value.Obj(vm.Heap.Alloc(&value.Object{
		Class: value.ClassNativeFunction,
		Native: func(_ value.NativeContext, _ value.Value, args []value.Value) (value.Value, error) {
			v := value.Undef
			if len(args) > 0 {
				v = args[0]
			}
			vm.resumeAsync(as, v, false)
			return value.Undef, nil
		},
	}))
	onRejected := value.Obj(vm.Heap.Alloc(&value.Object{
		Class: value.ClassNativeFunction,
		Native: func(_ value.NativeContext, _ value.Value, args []value.Value) (value.Value, error) {
			v := value.Undef
			if len(args) > 0 {
				v = args[0]
			}
			vm.resumeAsync(as, v, true)
			return value.Undef, nil
		},
	}))
	vm.promiseThen(srcID, onFulfilled, onRejected)
}

// resumeAsync feeds an awaited value's settlement back into as.vm: a
// fulfillment pushes the value where OpAwait left off, the same way a
// generator's .next(v) resume feeds a sent value back in; a rejection sets
// pendingAwaitThrow so the next run() call routes it through dispatchThrow
// exactly like any other thrown exception, letting the async body's own
// try/catch see it.
func (vm *VM) resumeAsync(as *asyncState, v value.Value, isRejection bool) {
	if isRejection {
		as.vm.pendingAwaitThrow = &RuntimeError{Value: v}
	} else {
		as.vm.push(v)
	}
	vm.stepAsync(as)
}
