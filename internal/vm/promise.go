package vm

import "github.com/qsjs/quicksilver/internal/value"

// newPromise allocates a fresh pending Promise, per spec.md §4.G's Promise
// state machine.
func (vm *VM) newPromise() (value.ObjectID, value.Value) {
	id := vm.Heap.Alloc(&value.Object{Class: value.ClassPromise, PromiseState: value.PromisePending})
	return id, value.Obj(id)
}

// resolvePromise settles id as fulfilled with val, except that val being
// itself a Promise adopts that promise's eventual state instead (the
// common case — `resolve(anotherPromise)` — rather than the full generic
// thenable-duck-typing protocol real JS also supports for arbitrary
// `{then}`-shaped objects, which this VM does not implement).
func (vm *VM) resolvePromise(id value.ObjectID, val value.Value) {
	obj := vm.Heap.MustGet(id)
	if obj.PromiseState != value.PromisePending {
		return
	}
	if val.IsObject() {
		if inner, ok := vm.Heap.Get(val.AsObject()); ok && inner.Class == value.ClassPromise {
			vm.subscribe(val.AsObject(), id)
			return
		}
	}
	vm.settlePromise(id, value.PromiseFulfilled, val)
}

func (vm *VM) rejectPromise(id value.ObjectID, reason value.Value) {
	vm.settlePromise(id, value.PromiseRejected, reason)
}

func (vm *VM) settlePromise(id value.ObjectID, state value.PromiseState, val value.Value) {
	obj := vm.Heap.MustGet(id)
	if obj.PromiseState != value.PromisePending {
		return
	}
	obj.PromiseState = state
	obj.PromiseValue = val
	reactions := obj.FulfillReactions
	if state == value.PromiseRejected {
		reactions = obj.RejectReactions
	}
	obj.FulfillReactions = nil
	obj.RejectReactions = nil
	for _, r := range reactions {
		vm.scheduleReaction(r, state, val)
	}
}

// subscribe chains srcID's eventual settlement into dstID: used both by
// resolvePromise's promise-adoption path and by the combinators
// (all/race/any/allSettled) watching several input promises at once.
func (vm *VM) subscribe(srcID, dstID value.ObjectID) {
	src := vm.Heap.MustGet(srcID)
	r := value.Reaction{ResultPromise: dstID}
	switch src.PromiseState {
	case value.PromisePending:
		src.FulfillReactions = append(src.FulfillReactions, r)
		src.RejectReactions = append(src.RejectReactions, r)
	default:
		vm.scheduleReaction(r, src.PromiseState, src.PromiseValue)
	}
}

// scheduleReaction enqueues a microtask that either passes val straight
// through to resultPromise (the plain-adoption / combinator case, no user
// handler attached) or invokes the attached then/catch handler and settles
// resultPromise with its outcome.
func (vm *VM) scheduleReaction(r value.Reaction, state value.PromiseState, val value.Value) {
	vm.Host.EnqueueMicrotask(func() {
		vm.runReaction(r, state, val)
	})
}

func (vm *VM) runReaction(r value.Reaction, state value.PromiseState, val value.Value) {
	var handler value.ObjectID
	var hasHandler bool
	if state == value.PromiseFulfilled {
		handler, hasHandler = r.OnFulfilled, r.HasFulfill
	} else {
		handler, hasHandler = r.OnRejected, r.HasReject
	}
	if r.ResultPromise == 0 {
		if hasHandler {
			vm.callValue(value.Obj(handler), value.Undef, []value.Value{val}, value.Undef)
		}
		return
	}
	if !hasHandler {
		vm.settlePromise(r.ResultPromise, state, val)
		return
	}
	result, err := vm.callValue(value.Obj(handler), value.Undef, []value.Value{val}, value.Undef)
	if err != nil {
		vm.rejectPromise(r.ResultPromise, vm.errToValue(err))
		return
	}
	vm.resolvePromise(r.ResultPromise, result)
}

// promiseThen implements Promise.prototype.then/catch/finally's shared
// core: a pending source defers to scheduleReaction on settlement, an
// already-settled source schedules the reaction right away (still as a
// microtask, never synchronously — settlement ordering must stay
// deterministic relative to other already-queued reactions).
func (vm *VM) promiseThen(srcID value.ObjectID, onFulfilled, onRejected value.Value) value.Value {
	resultID, result := vm.newPromise()
	r := value.Reaction{ResultPromise: resultID}
	if onFulfilled.IsObject() {
		r.OnFulfilled, r.HasFulfill = onFulfilled.AsObject(), true
	}
	if onRejected.IsObject() {
		r.OnRejected, r.HasReject = onRejected.AsObject(), true
	}
	src := vm.Heap.MustGet(srcID)
	src.Handled = true
	switch src.PromiseState {
	case value.PromisePending:
		src.FulfillReactions = append(src.FulfillReactions, r)
		src.RejectReactions = append(src.RejectReactions, r)
	default:
		vm.scheduleReaction(r, src.PromiseState, src.PromiseValue)
	}
	return result
}

// promiseAll implements Promise.all: rejects as soon as any input rejects,
// otherwise fulfills with the array of results once every input has.
func (vm *VM) promiseAll(inputs []value.Value) value.Value {
	resultID, result := vm.newPromise()
	n := len(inputs)
	if n == 0 {
		vm.resolvePromise(resultID, vm.newArrayValue(nil))
		return result
	}
	results := make([]value.Value, n)
	remaining := n
	settled := false
	for i, in := range inputs {
		i := i
		vm.watchInput(in, func(v value.Value) {
			if settled {
				return
			}
			results[i] = v
			remaining--
			if remaining == 0 {
				settled = true
				vm.resolvePromise(resultID, vm.newArrayValue(results))
			}
		}, func(reason value.Value) {
			if settled {
				return
			}
			settled = true
			vm.rejectPromise(resultID, reason)
		})
	}
	return result
}

// promiseAllSettled never short-circuits: every input's outcome becomes a
// `{status, value}` / `{status, reason}` descriptor object in the result
// array, in input order, once all inputs have settled.
func (vm *VM) promiseAllSettled(inputs []value.Value) value.Value {
	resultID, result := vm.newPromise()
	n := len(inputs)
	if n == 0 {
		vm.resolvePromise(resultID, vm.newArrayValue(nil))
		return result
	}
	results := make([]value.Value, n)
	remaining := n
	describe := func(status string, key string, v value.Value) value.Value {
		obj := &value.Object{Class: value.ClassOrdinary}
		id := vm.Heap.Alloc(obj)
		value.SetProperty(vm.Heap, id, "status", value.Str(status))
		value.SetProperty(vm.Heap, id, key, v)
		return value.Obj(id)
	}
	for i, in := range inputs {
		i := i
		vm.watchInput(in, func(v value.Value) {
			results[i] = describe("fulfilled", "value", v)
			remaining--
			if remaining == 0 {
				vm.resolvePromise(resultID, vm.newArrayValue(results))
			}
		}, func(reason value.Value) {
			results[i] = describe("rejected", "reason", reason)
			remaining--
			if remaining == 0 {
				vm.resolvePromise(resultID, vm.newArrayValue(results))
			}
		})
	}
	return result
}

// promiseRace settles with whichever input settles first, in either
// direction.
func (vm *VM) promiseRace(inputs []value.Value) value.Value {
	resultID, result := vm.newPromise()
	settled := false
	for _, in := range inputs {
		vm.watchInput(in, func(v value.Value) {
			if !settled {
				settled = true
				vm.resolvePromise(resultID, v)
			}
		}, func(reason value.Value) {
			if !settled {
				settled = true
				vm.rejectPromise(resultID, reason)
			}
		})
	}
	return result
}

// promiseAny fulfills with the first input to fulfill, or rejects with an
// AggregateError carrying every input's rejection reason (in input order)
// once all inputs have rejected, per spec.md's AggregateError semantics.
func (vm *VM) promiseAny(inputs []value.Value) value.Value {
	resultID, result := vm.newPromise()
	n := len(inputs)
	if n == 0 {
		vm.rejectPromise(resultID, vm.newAggregateError(nil))
		return result
	}
	errs := make([]value.Value, n)
	remaining := n
	settled := false
	for i, in := range inputs {
		i := i
		vm.watchInput(in, func(v value.Value) {
			if !settled {
				settled = true
				vm.resolvePromise(resultID, v)
			}
		}, func(reason value.Value) {
			if settled {
				return
			}
			errs[i] = reason
			remaining--
			if remaining == 0 {
				settled = true
				vm.rejectPromise(resultID, vm.newAggregateError(errs))
			}
		})
	}
	return result
}

func (vm *VM) newAggregateError(errs []value.Value) value.Value {
	id := vm.Heap.Alloc(&value.Object{
		Class:        value.ClassError,
		ErrorName:    "AggregateError",
		ErrorMessage: "all promises were rejected",
	})
	value.SetProperty(vm.Heap, id, "name", value.Str("AggregateError"))
	value.SetProperty(vm.Heap, id, "message", value.Str("all promises were rejected"))
	value.SetProperty(vm.Heap, id, "errors", vm.newArrayValue(errs))
	return value.Obj(id)
}

// watchInput coerces a combinator input to a promise (a non-Promise value
// fulfills immediately, matching Promise.resolve's coercion) and subscribes
// onFulfill/onReject to its eventual settlement.
func (vm *VM) watchInput(in value.Value, onFulfill, onReject func(value.Value)) {
	var srcID value.ObjectID
	if in.IsObject() {
		if obj, ok := vm.Heap.Get(in.AsObject()); ok && obj.Class == value.ClassPromise {
			srcID = in.AsObject()
		}
	}
	if srcID == 0 {
		srcID, _ = vm.newPromise()
		vm.resolvePromise(srcID, in)
	}
	onFulfilled := value.Obj(vm.Heap.Alloc(&value.Object{
		Class: value.ClassNativeFunction,
		Name:  "",
		Native: func(_ value.NativeContext, _ value.Value, args []value.Value) (value.Value, error) {
			if len(args) > 0 {
				onFulfill(args[0])
			} else {
				onFulfill(value.Undef)
			}
			return value.Undef, nil
		},
	}))
	onRejected := value.Obj(vm.Heap.Alloc(&value.Object{
		Class: value.ClassNativeFunction,
		Native: func(_ value.NativeContext, _ value.Value, args []value.Value) (value.Value, error) {
			if len(args) > 0 {
				onReject(args[0])
			} else {
				onReject(value.Undef)
			}
			return value.Undef, nil
		},
	}))
	vm.promiseThen(srcID, onFulfilled, onRejected)
}
