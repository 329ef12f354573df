package vm

import (
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// tryTailEnter implements the one tail-call optimization this VM performs:
// when an OpCall sits immediately before an OpReturn (a real `return
// fn(...)` in source), and the callee is an ordinary synchronous bytecode
// function, the current frame is collapsed and reused in place instead of
// pushing a new one — so a self-recursive tail call never grows Go's own
// call stack (run() never recurses for it) nor vm.Frames. Returns false for
// anything else (generators, async functions, natives, classes, bound
// functions, or a call not in tail position), leaving the ordinary
// callValue path to run it.
func (vm *VM) tryTailEnter(fptr **CallFrame, callee, this value.Value, args []value.Value, stopAt int) bool {
	f := *fptr
	if f.IP >= len(f.Chunk.Code) || bytecode.Op(f.Chunk.Code[f.IP]) != bytecode.OpReturn {
		return false
	}
	if !callee.IsObject() {
		return false
	}
	obj, ok := vm.Heap.Get(callee.AsObject())
	if !ok || obj.Class != value.ClassFunction {
		return false
	}
	chunk, ok := obj.Chunk.(*bytecode.Chunk)
	if !ok || chunk.IsGenerator || chunk.IsAsync {
		return false
	}

	vm.closeUpvalues(f.Base)
	vm.Stack = vm.Stack[:f.Base]
	for i := 0; i < chunk.ParamCount; i++ {
		if i < len(args) {
			vm.push(args[i])
		} else {
			vm.push(value.Undef)
		}
	}
	for i := chunk.ParamCount; i < int(chunk.NumLocals); i++ {
		vm.push(value.Undef)
	}
	f.Chunk = chunk
	f.IP = 0
	f.FnID = callee.AsObject()
	f.This = this
	f.NewTarget = value.Undef
	f.CallArgs = args
	*fptr = f
	return true
}

// constructValue implements `new callee(...args)` for every constructible
// callee kind: a class goes through construct's instance-allocation path,
// an ordinary function is invoked with a fresh instance as `this` per
// ordinary-function [[Construct]] semantics (returning that instance
// unless the function itself returns an object), and a bound function
// construct-forwards to its target with the bound arguments prepended.
func (vm *VM) constructValue(callee value.Value, args []value.Value) (value.Value, error) {
	if !callee.IsObject() {
		return value.Undef, vm.throwError("TypeError", "%s is not a constructor", describeForError(callee))
	}
	obj, ok := vm.Heap.Get(callee.AsObject())
	if !ok {
		return value.Undef, vm.throwError("TypeError", "value is not a constructor")
	}
	switch obj.Class {
	case value.ClassClass:
		return vm.construct(callee.AsObject(), args)
	case value.ClassFunction:
		return vm.constructPlainFunction(callee.AsObject(), obj, args)
	case value.ClassNativeFunction:
		// Host constructors (TextEncoder, TextDecoder, ...) are plain native
		// functions that already return the fully-built instance; `new`
		// just needs to accept them instead of requiring a user class.
		return obj.Native(vm.Host, value.Undef, args)
	case value.ClassBoundFunction:
		boundArgs := append(append([]value.Value{}, obj.BoundArgs...), args...)
		return vm.constructValue(value.Obj(obj.BoundTarget), boundArgs)
	default:
		return value.Undef, vm.throwError("TypeError", "%s is not a constructor", describeForError(callee))
	}
}

func (vm *VM) constructPlainFunction(fnID value.ObjectID, fn *value.Object, args []value.Value) (value.Value, error) {
	instID := vm.Heap.Alloc(&value.Object{Class: value.ClassOrdinary})
	instVal := value.Obj(instID)
	result, err := vm.invoke(fn, fnID, instVal, args, instVal)
	if err != nil {
		return value.Undef, err
	}
	if result.IsObject() {
		return result, nil
	}
	return instVal, nil
}

// runSuperConstructor runs classID's own instance-field initializers then
// its constructor chunk (if any) with `this` already bound to the
// subclass's already-allocated instance — no new allocation, and the
// subclass's own fields (which construct already ran immediately after
// allocation, a documented ordering simplification vs. real JS's
// run-after-super semantics) are not re-run here.
func (vm *VM) runSuperConstructor(classID value.ObjectID, this value.Value, args []value.Value) error {
	cls, ok := vm.Heap.Get(classID)
	if !ok {
		return nil
	}
	if cls.InstanceFieldsFn != nil {
		fields := cls.InstanceFieldsFn.(*bytecode.Chunk)
		if err := vm.runFieldInitializers(fields, this); err != nil {
			return err
		}
	}
	if cls.CtorChunk == nil {
		return nil
	}
	chunk := cls.CtorChunk.(*bytecode.Chunk)
	vm.pushFrame(chunk, this, args, classID, value.Obj(classID))
	_, err := vm.run()
	return err
}
