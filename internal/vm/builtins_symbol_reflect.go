package vm

import "github.com/qsjs/quicksilver/internal/value"

// Symbol() yields a fresh, uniquely-identified token on every call: package
// value's SameValueZero compares symbols by Go pointer identity, not the
// unexported id field, so allocating a bare &value.Symbol{} here is already
// enough to get correct uniqueness without any exported constructor. Symbol
// values are never usable as property keys (toPropertyKey, property_ops.go,
// only implements the String/Number cases this VM's object model needs) —
// the well-known symbols below exist as inert identity tokens scripts can
// compare against, not as working Map/computed-property keys, a documented
// simplification given this engine's property storage is string-keyed.
func (vm *VM) installSymbolAndReflect() {
	ctor := vm.nativeFn("Symbol", func(args []value.Value) (value.Value, error) {
		desc := ""
		if len(args) > 0 && !args[0].IsUndefined() {
			desc = vm.toDisplayString(args[0])
		}
		return value.SymVal(&value.Symbol{Description: desc}), nil
	})
	for _, name := range []string{"iterator", "asyncIterator", "hasInstance", "toPrimitive", "toStringTag", "isConcatSpreadable"} {
		value.SetProperty(vm.Heap, ctor.AsObject(), name, value.SymVal(&value.Symbol{Description: "Symbol." + name}))
	}
	value.SetProperty(vm.Heap, ctor.AsObject(), "for", vm.nativeFn("for", func(args []value.Value) (value.Value, error) {
		key := vm.toDisplayString(argAt(args, 0))
		if s, ok := vm.symbolRegistry[key]; ok {
			return value.SymVal(s), nil
		}
		s := &value.Symbol{Description: key}
		vm.symbolRegistry[key] = s
		return value.SymVal(s), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "keyFor", vm.nativeFn("keyFor", func(args []value.Value) (value.Value, error) {
		target := argAt(args, 0)
		if target.Kind() != value.SymbolKind {
			return value.Undef, vm.throwError("TypeError", "%s is not a symbol", describeForError(target))
		}
		for k, s := range vm.symbolRegistry {
			if s == target.AsSymbol() {
				return value.Str(k), nil
			}
		}
		return value.Undef, nil
	}))
	vm.Globals["Symbol"] = ctor
	vm.Globals["Reflect"] = vm.buildReflect()
}

func (vm *VM) buildReflect() value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)

	value.SetProperty(vm.Heap, id, "get", vm.nativeFn("get", func(args []value.Value) (value.Value, error) {
		return vm.getProperty(argAt(args, 0), vm.toPropertyKey(argAt(args, 1)))
	}))
	value.SetProperty(vm.Heap, id, "set", vm.nativeFn("set", func(args []value.Value) (value.Value, error) {
		if err := vm.setProperty(argAt(args, 0), vm.toPropertyKey(argAt(args, 1)), argAt(args, 2)); err != nil {
			return value.Undef, err
		}
		return value.True, nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(args []value.Value) (value.Value, error) {
		return vm.inOperator(argAt(args, 1), argAt(args, 0))
	}))
	value.SetProperty(vm.Heap, id, "deleteProperty", vm.nativeFn("deleteProperty", func(args []value.Value) (value.Value, error) {
		return value.Bool(vm.deleteProperty(argAt(args, 0), vm.toPropertyKey(argAt(args, 1)))), nil
	}))
	value.SetProperty(vm.Heap, id, "ownKeys", vm.nativeFn("ownKeys", func(args []value.Value) (value.Value, error) {
		return vm.newArrayValue(vm.ownPropertyKeys(argAt(args, 0))), nil
	}))
	value.SetProperty(vm.Heap, id, "apply", vm.nativeFn("apply", func(args []value.Value) (value.Value, error) {
		argList, err := vm.iterableToSlice(argAt(args, 2), -1)
		if err != nil {
			argList = nil
		}
		return vm.callValue(argAt(args, 0), argAt(args, 1), argList, value.Undef)
	}))
	value.SetProperty(vm.Heap, id, "construct", vm.nativeFn("construct", func(args []value.Value) (value.Value, error) {
		argList, err := vm.iterableToSlice(argAt(args, 1), -1)
		if err != nil {
			argList = nil
		}
		return vm.constructValue(argAt(args, 0), argList)
	}))
	return value.Obj(id)
}

// ownPropertyKeys lists the keys Reflect.ownKeys/Object.keys walk: own Props
// in insertion order, plus the array index/length shorthand for ClassArray
// (mirrored from property_ops.go's own special-casing of that class).
func (vm *VM) ownPropertyKeys(v value.Value) []value.Value {
	if !v.IsObject() {
		return nil
	}
	obj, ok := vm.Heap.Get(v.AsObject())
	if !ok {
		return nil
	}
	var keys []value.Value
	if obj.Class == value.ClassArray {
		for i := range obj.Elements {
			keys = append(keys, value.Str(formatNumber(float64(i))))
		}
		keys = append(keys, value.Str("length"))
	}
	for _, k := range obj.PropOrder {
		if _, ok := obj.Props[k]; ok {
			keys = append(keys, value.Str(k))
		}
	}
	return keys
}
