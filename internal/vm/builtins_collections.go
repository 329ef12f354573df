package vm

import "github.com/qsjs/quicksilver/internal/value"

// ---- Map/Set/WeakMap/WeakSet ---------------------------------------------
//
// Each constructor allocates a heap object of the dedicated Class (so
// typeof/instanceof-shaped checks elsewhere that switch on obj.Class see the
// right thing) and attaches its prototype methods as own properties at
// construction time, the same per-instance-closure convention
// TextEncoder/TextDecoder/Response already use in builtins_host.go rather
// than a shared prototype object walked through property_ops.go. `.keys()`/
// `.values()`/`.entries()` return plain arrays rather than lazy iterators —
// since this VM's for-of already snapshots an iterable up front
// (iteration.go's eagerElements), a real lazy iterator would behave
// identically from script code for every case this engine supports, so the
// array is the simpler of two observably-equivalent choices.

func (vm *VM) installCollectionGlobals() {
	vm.Globals["Map"] = vm.nativeFn("Map", vm.newMap)
	vm.Globals["Set"] = vm.nativeFn("Set", vm.newSet)
	vm.Globals["WeakMap"] = vm.nativeFn("WeakMap", vm.newWeakMap)
	vm.Globals["WeakSet"] = vm.nativeFn("WeakSet", vm.newWeakSet)
}

func mapFind(obj *value.Object, key value.Value) int {
	for i, k := range obj.MapKeys {
		if value.SameValueZero(k, key) {
			return i
		}
	}
	return -1
}

func (vm *VM) newMap(args []value.Value) (value.Value, error) {
	obj := &value.Object{Class: value.ClassMap}
	id := vm.Heap.Alloc(obj)
	if len(args) > 0 && !args[0].IsNullish() {
		entries, err := vm.iterableToSlice(args[0], -1)
		if err != nil {
			return value.Undef, err
		}
		for _, e := range entries {
			pair, err := vm.iterableToSlice(e, 2)
			if err != nil {
				return value.Undef, err
			}
			k, v := argAt(pair, 0), argAt(pair, 1)
			if i := mapFind(obj, k); i >= 0 {
				obj.MapValues[i] = v
			} else {
				obj.MapKeys = append(obj.MapKeys, k)
				obj.MapValues = append(obj.MapValues, v)
			}
		}
	}
	mapVal := value.Obj(id)
	value.SetProperty(vm.Heap, id, "get", vm.nativeFn("get", func(a []value.Value) (value.Value, error) {
		if i := mapFind(obj, argAt(a, 0)); i >= 0 {
			return obj.MapValues[i], nil
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "set", vm.nativeFn("set", func(a []value.Value) (value.Value, error) {
		k, v := argAt(a, 0), argAt(a, 1)
		if i := mapFind(obj, k); i >= 0 {
			obj.MapValues[i] = v
		} else {
			obj.MapKeys = append(obj.MapKeys, k)
			obj.MapValues = append(obj.MapValues, v)
		}
		return mapVal, nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(a []value.Value) (value.Value, error) {
		return value.Bool(mapFind(obj, argAt(a, 0)) >= 0), nil
	}))
	value.SetProperty(vm.Heap, id, "delete", vm.nativeFn("delete", func(a []value.Value) (value.Value, error) {
		i := mapFind(obj, argAt(a, 0))
		if i < 0 {
			return value.False, nil
		}
		obj.MapKeys = append(obj.MapKeys[:i], obj.MapKeys[i+1:]...)
		obj.MapValues = append(obj.MapValues[:i], obj.MapValues[i+1:]...)
		return value.True, nil
	}))
	value.SetProperty(vm.Heap, id, "clear", vm.nativeFn("clear", func(a []value.Value) (value.Value, error) {
		obj.MapKeys, obj.MapValues = nil, nil
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "forEach", vm.nativeFn("forEach", func(a []value.Value) (value.Value, error) {
		cb := argAt(a, 0)
		for i := 0; i < len(obj.MapKeys); i++ {
			if _, err := vm.callValue(cb, value.Undef, []value.Value{obj.MapValues[i], obj.MapKeys[i], mapVal}, value.Undef); err != nil {
				return value.Undef, err
			}
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "keys", vm.nativeFn("keys", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(obj.MapKeys), nil
	}))
	value.SetProperty(vm.Heap, id, "values", vm.nativeFn("values", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(obj.MapValues), nil
	}))
	value.SetProperty(vm.Heap, id, "entries", vm.nativeFn("entries", func(a []value.Value) (value.Value, error) {
		out := make([]value.Value, len(obj.MapKeys))
		for i := range obj.MapKeys {
			out[i] = vm.newArrayValue([]value.Value{obj.MapKeys[i], obj.MapValues[i]})
		}
		return vm.newArrayValue(out), nil
	}))
	return mapVal, nil
}

func setFind(obj *value.Object, v value.Value) int {
	for i, e := range obj.SetValues {
		if value.SameValueZero(e, v) {
			return i
		}
	}
	return -1
}

func (vm *VM) newSet(args []value.Value) (value.Value, error) {
	obj := &value.Object{Class: value.ClassSet}
	id := vm.Heap.Alloc(obj)
	if len(args) > 0 && !args[0].IsNullish() {
		elems, err := vm.iterableToSlice(args[0], -1)
		if err != nil {
			return value.Undef, err
		}
		for _, e := range elems {
			if setFind(obj, e) < 0 {
				obj.SetValues = append(obj.SetValues, e)
			}
		}
	}
	setVal := value.Obj(id)
	value.SetProperty(vm.Heap, id, "add", vm.nativeFn("add", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if setFind(obj, v) < 0 {
			obj.SetValues = append(obj.SetValues, v)
		}
		return setVal, nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(a []value.Value) (value.Value, error) {
		return value.Bool(setFind(obj, argAt(a, 0)) >= 0), nil
	}))
	value.SetProperty(vm.Heap, id, "delete", vm.nativeFn("delete", func(a []value.Value) (value.Value, error) {
		i := setFind(obj, argAt(a, 0))
		if i < 0 {
			return value.False, nil
		}
		obj.SetValues = append(obj.SetValues[:i], obj.SetValues[i+1:]...)
		return value.True, nil
	}))
	value.SetProperty(vm.Heap, id, "clear", vm.nativeFn("clear", func(a []value.Value) (value.Value, error) {
		obj.SetValues = nil
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "forEach", vm.nativeFn("forEach", func(a []value.Value) (value.Value, error) {
		cb := argAt(a, 0)
		for _, v := range obj.SetValues {
			if _, err := vm.callValue(cb, value.Undef, []value.Value{v, v, setVal}, value.Undef); err != nil {
				return value.Undef, err
			}
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "values", vm.nativeFn("values", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(obj.SetValues), nil
	}))
	value.SetProperty(vm.Heap, id, "keys", vm.nativeFn("keys", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(obj.SetValues), nil
	}))
	return setVal, nil
}

// weakKeyFor returns the WeakKey (ObjectID plus current generation) for an
// object value, and false for a primitive. get/has also check Heap.IsLive,
// so a WeakMap/WeakSet never resurrects a stale ObjectID reused by a later
// allocation: the reused slot's fresh generation will not match the
// captured WeakKey. Entries whose referent is gone are not pruned.
func (vm *VM) weakKeyFor(v value.Value) (value.WeakKey, bool) {
	if !v.IsObject() {
		return value.WeakKey{}, false
	}
	return vm.Heap.WeakKeyFor(v.AsObject()), true
}

func (vm *VM) newWeakMap(args []value.Value) (value.Value, error) {
	obj := &value.Object{Class: value.ClassWeakMap, WeakEntries: make(map[value.WeakKey]value.Value)}
	id := vm.Heap.Alloc(obj)
	if len(args) > 0 && !args[0].IsNullish() {
		entries, err := vm.iterableToSlice(args[0], -1)
		if err != nil {
			return value.Undef, err
		}
		for _, e := range entries {
			pair, err := vm.iterableToSlice(e, 2)
			if err != nil {
				return value.Undef, err
			}
			if wk, ok := vm.weakKeyFor(argAt(pair, 0)); ok {
				obj.WeakEntries[wk] = argAt(pair, 1)
			}
		}
	}
	weakMapVal := value.Obj(id)
	value.SetProperty(vm.Heap, id, "get", vm.nativeFn("get", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok || !vm.Heap.IsLive(wk) {
			return value.Undef, nil
		}
		if v, ok := obj.WeakEntries[wk]; ok {
			return v, nil
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "set", vm.nativeFn("set", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok {
			return value.Undef, vm.throwError("TypeError", "WeakMap key must be an object")
		}
		obj.WeakEntries[wk] = argAt(a, 1)
		return weakMapVal, nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok || !vm.Heap.IsLive(wk) {
			return value.False, nil
		}
		_, ok = obj.WeakEntries[wk]
		return value.Bool(ok), nil
	}))
	value.SetProperty(vm.Heap, id, "delete", vm.nativeFn("delete", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok {
			return value.False, nil
		}
		_, existed := obj.WeakEntries[wk]
		delete(obj.WeakEntries, wk)
		return value.Bool(existed), nil
	}))
	return weakMapVal, nil
}

func (vm *VM) newWeakSet(args []value.Value) (value.Value, error) {
	obj := &value.Object{Class: value.ClassWeakSet, WeakValues: make(map[value.WeakKey]bool)}
	id := vm.Heap.Alloc(obj)
	if len(args) > 0 && !args[0].IsNullish() {
		elems, err := vm.iterableToSlice(args[0], -1)
		if err != nil {
			return value.Undef, err
		}
		for _, e := range elems {
			if wk, ok := vm.weakKeyFor(e); ok {
				obj.WeakValues[wk] = true
			}
		}
	}
	weakSetVal := value.Obj(id)
	value.SetProperty(vm.Heap, id, "add", vm.nativeFn("add", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok {
			return value.Undef, vm.throwError("TypeError", "WeakSet value must be an object")
		}
		obj.WeakValues[wk] = true
		return weakSetVal, nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok || !vm.Heap.IsLive(wk) {
			return value.False, nil
		}
		return value.Bool(obj.WeakValues[wk]), nil
	}))
	value.SetProperty(vm.Heap, id, "delete", vm.nativeFn("delete", func(a []value.Value) (value.Value, error) {
		wk, ok := vm.weakKeyFor(argAt(a, 0))
		if !ok {
			return value.False, nil
		}
		existed := obj.WeakValues[wk]
		delete(obj.WeakValues, wk)
		return value.Bool(existed), nil
	}))
	return weakSetVal, nil
}
