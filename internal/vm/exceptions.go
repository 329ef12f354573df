package vm

import "github.com/qsjs/quicksilver/internal/value"

// unwindError is the panic payload dispatchThrow uses to escape run()'s
// dispatch loop once an exception has propagated past every frame the
// current run() invocation owns without finding a handler. run()'s own
// deferred recover turns it back into a normal (value.Value, error) return,
// so a Go-level caller (invoke/construct/runAsync, or RunProgram itself)
// sees an ordinary error rather than a panic.
type unwindError struct{ err error }

// dispatchThrow is the single funnel every opcode case routes a possible
// error through. It returns false when err is nil — the overwhelmingly
// common case, meaning "nothing happened, fall through to normal dispatch"
// — and true when it found an enclosing try region and rewrote *f/its IP to
// resume inside it, in which case the caller should `continue` its dispatch
// loop. A non-nil err that finds no handler anywhere in the frames this
// run() invocation owns never returns at all: it unwinds those frames and
// panics with unwindError instead, so no call site needs to separately
// handle "unhandled error" — only the nil/handled/continue cases exist from
// a caller's point of view.
func (vm *VM) dispatchThrow(f **CallFrame, err error) bool {
	if err == nil {
		return false
	}
	thrown := vm.errToValue(err)
	floor := vm.runStops[len(vm.runStops)-1]

search:
	for len(vm.Frames)-1 >= floor {
		top := len(vm.Frames) - 1
		cur := vm.Frames[top]
		h := cur.Chunk.HandlerFor(cur.IP)
		if h == nil || (h.HandlerPC < 0 && h.FinallyPC < 0) {
			// No handler here (or a structurally-impossible empty entry,
			// never emitted by the compiler but treated the same way);
			// keep unwinding outward.
			if top == floor {
				break search
			}
			vm.unwindFrame(cur)
			continue
		}

		// Found the innermost enclosing try region. Drop operand-stack
		// temporaries pushed since entering it, but keep the frame's own
		// locals (params/declared vars) intact — a catch clause can still
		// read outer-scope locals from the same frame.
		trunc := cur.Base + int(cur.Chunk.NumLocals)
		vm.closeUpvalues(trunc)
		if trunc < len(vm.Stack) {
			vm.Stack = vm.Stack[:trunc]
		}

		if h.HandlerPC >= 0 {
			vm.push(thrown)
			cur.IP = h.HandlerPC
			*f = cur
			return true
		}
		// No catch clause: run the finally block first, then let OpTryEnd
		// re-raise the same exception once it completes normally.
		vm.pendingRethrow = &RuntimeError{Value: thrown}
		cur.IP = h.FinallyPC
		*f = cur
		return true
	}

	// Unhandled anywhere this run() invocation owns: pop its floor frame
	// too and escape the dispatch loop entirely.
	floorFrame := vm.Frames[floor]
	vm.unwindFrame(floorFrame)
	panic(unwindError{err: err})
}

// unwindFrame discards a frame's locals/operands and closes any upvalues
// still open over them, then pops it off vm.Frames. Used both by OpReturn's
// sibling paths and by dispatchThrow while searching for a handler.
func (vm *VM) unwindFrame(f *CallFrame) {
	vm.closeUpvalues(f.Base)
	vm.Stack = vm.Stack[:f.Base]
	vm.Frames = vm.Frames[:len(vm.Frames)-1]
}

// errToValue recovers the JS value a Go error represents: vm.throwError and
// vm.throwValue always produce *RuntimeError, but a plain Go error reaching
// here (e.g. from a native function that didn't wrap its error) is coerced
// to a String so it can still travel through the catch binding.
func (vm *VM) errToValue(err error) value.Value {
	if re, ok := err.(*RuntimeError); ok {
		return re.Value
	}
	return value.Str(err.Error())
}
