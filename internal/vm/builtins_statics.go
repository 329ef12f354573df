package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/qsjs/quicksilver/internal/value"
)

// installStatics wires the Object/Array/Number/String/Boolean/BigInt
// constructor-function statics: these are the handful of global helpers
// (Object.keys, Array.isArray, Number.parseInt, ...) that aren't tied to any
// single instance, following installErrors/installPromiseGlobal's own
// pattern (builtins_global.go) of a vm.nativeFn ctor plus value.SetProperty
// calls hanging statics off it.
func (vm *VM) installStatics() {
	vm.installObjectStatics()
	vm.installArrayStatics()
	vm.installNumberStatics()
	vm.installStringStatics()
	vm.installBooleanAndBigIntStatics()
}

func (vm *VM) installObjectStatics() {
	ctor := vm.nativeFn("Object", func(args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].IsObject() {
			return args[0], nil
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassOrdinary})), nil
	})
	value.SetProperty(vm.Heap, ctor.AsObject(), "is", vm.nativeFn("is", func(a []value.Value) (value.Value, error) {
		return value.Bool(value.SameValue(argAt(a, 0), argAt(a, 1))), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "keys", vm.nativeFn("keys", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(vm.ownPropertyKeys(argAt(a, 0))), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "values", vm.nativeFn("values", func(a []value.Value) (value.Value, error) {
		keys := vm.ownPropertyKeys(argAt(a, 0))
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i], _ = vm.getProperty(argAt(a, 0), k.AsString())
		}
		return vm.newArrayValue(out), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "entries", vm.nativeFn("entries", func(a []value.Value) (value.Value, error) {
		keys := vm.ownPropertyKeys(argAt(a, 0))
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := vm.getProperty(argAt(a, 0), k.AsString())
			out[i] = vm.newArrayValue([]value.Value{k, v})
		}
		return vm.newArrayValue(out), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "assign", vm.nativeFn("assign", func(a []value.Value) (value.Value, error) {
		if len(a) == 0 || !a[0].IsObject() {
			return argAt(a, 0), nil
		}
		target := a[0]
		for _, src := range a[1:] {
			for _, k := range vm.ownPropertyKeys(src) {
				v, _ := vm.getProperty(src, k.AsString())
				if err := vm.setProperty(target, k.AsString(), v); err != nil {
					return value.Undef, err
				}
			}
		}
		return target, nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "fromEntries", vm.nativeFn("fromEntries", func(a []value.Value) (value.Value, error) {
		entries, err := vm.iterableToSlice(argAt(a, 0), -1)
		if err != nil {
			return value.Undef, err
		}
		id := vm.Heap.Alloc(&value.Object{Class: value.ClassOrdinary})
		for _, e := range entries {
			pair, err := vm.iterableToSlice(e, 2)
			if err != nil {
				return value.Undef, err
			}
			value.SetProperty(vm.Heap, id, vm.toPropertyKey(argAt(pair, 0)), argAt(pair, 1))
		}
		return value.Obj(id), nil
	}))
	// freeze/isFrozen are inert no-ops: this VM never enforces
	// non-extensibility on writes (setProperty has no frozen check), so
	// freeze just marks intent for isFrozen to read back rather than
	// actually locking the object.
	frozen := map[value.ObjectID]bool{}
	value.SetProperty(vm.Heap, ctor.AsObject(), "freeze", vm.nativeFn("freeze", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if v.IsObject() {
			frozen[v.AsObject()] = true
		}
		return v, nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "isFrozen", vm.nativeFn("isFrozen", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if !v.IsObject() {
			return value.True, nil
		}
		return value.Bool(frozen[v.AsObject()]), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "getPrototypeOf", vm.nativeFn("getPrototypeOf", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if !v.IsObject() {
			return value.Nul, nil
		}
		obj, ok := vm.Heap.Get(v.AsObject())
		if !ok || !obj.HasProto {
			return value.Nul, nil
		}
		return value.Obj(obj.Prototype), nil
	}))
	vm.Globals["Object"] = ctor
}

func (vm *VM) installArrayStatics() {
	ctor := vm.nativeFn("Array", func(args []value.Value) (value.Value, error) {
		if len(args) == 1 && args[0].Kind() == value.Number {
			n := int(args[0].AsNumber())
			return vm.newArrayValue(make([]value.Value, n)), nil
		}
		return vm.newArrayValue(args), nil
	})
	value.SetProperty(vm.Heap, ctor.AsObject(), "isArray", vm.nativeFn("isArray", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if !v.IsObject() {
			return value.False, nil
		}
		obj, ok := vm.Heap.Get(v.AsObject())
		return value.Bool(ok && obj.Class == value.ClassArray), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "of", vm.nativeFn("of", func(a []value.Value) (value.Value, error) {
		return vm.newArrayValue(a), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "from", vm.nativeFn("from", func(a []value.Value) (value.Value, error) {
		elems, err := vm.iterableToSlice(argAt(a, 0), -1)
		if err != nil {
			return value.Undef, err
		}
		if len(a) > 1 && !a[1].IsUndefined() {
			mapped := make([]value.Value, len(elems))
			for i, e := range elems {
				r, err := vm.callValue(a[1], value.Undef, []value.Value{e, value.Num(float64(i))}, value.Undef)
				if err != nil {
					return value.Undef, err
				}
				mapped[i] = r
			}
			elems = mapped
		}
		return vm.newArrayValue(elems), nil
	}))
	vm.Globals["Array"] = ctor
}

func (vm *VM) installNumberStatics() {
	ctor := vm.nativeFn("Number", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Num(0), nil
		}
		n, err := vm.toNumber(args[0])
		return value.Num(n), err
	})
	value.SetProperty(vm.Heap, ctor.AsObject(), "isInteger", vm.nativeFn("isInteger", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		if v.Kind() != value.Number {
			return value.False, nil
		}
		n := v.AsNumber()
		return value.Bool(!math.IsNaN(n) && !math.IsInf(n, 0) && n == math.Trunc(n)), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "isFinite", vm.nativeFn("isFinite", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		return value.Bool(v.Kind() == value.Number && !math.IsNaN(v.AsNumber()) && !math.IsInf(v.AsNumber(), 0)), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "isNaN", vm.nativeFn("isNaN", func(a []value.Value) (value.Value, error) {
		v := argAt(a, 0)
		return value.Bool(v.Kind() == value.Number && math.IsNaN(v.AsNumber())), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "parseFloat", vm.nativeFn("parseFloat", func(a []value.Value) (value.Value, error) {
		return value.Num(parseLeadingFloat(vm.toDisplayString(argAt(a, 0)))), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "parseInt", vm.nativeFn("parseInt", func(a []value.Value) (value.Value, error) {
		radix := 10
		if len(a) > 1 {
			if n, err := vm.toNumber(a[1]); err == nil && n != 0 {
				radix = int(n)
			}
		}
		return value.Num(parseLeadingInt(vm.toDisplayString(argAt(a, 0)), radix)), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "MAX_SAFE_INTEGER", value.Num(9007199254740991))
	value.SetProperty(vm.Heap, ctor.AsObject(), "MIN_SAFE_INTEGER", value.Num(-9007199254740991))
	value.SetProperty(vm.Heap, ctor.AsObject(), "EPSILON", value.Num(2.220446049250313e-16))
	value.SetProperty(vm.Heap, ctor.AsObject(), "POSITIVE_INFINITY", value.Num(math.Inf(1)))
	value.SetProperty(vm.Heap, ctor.AsObject(), "NEGATIVE_INFINITY", value.Num(math.Inf(-1)))
	value.SetProperty(vm.Heap, ctor.AsObject(), "NaN", value.Num(math.NaN()))
	vm.Globals["Number"] = ctor
	vm.Globals["parseFloat"] = vm.Heap.MustGet(ctor.AsObject()).Props["parseFloat"]
	vm.Globals["parseInt"] = vm.Heap.MustGet(ctor.AsObject()).Props["parseInt"]
	vm.Globals["isNaN"] = vm.nativeFn("isNaN", func(a []value.Value) (value.Value, error) {
		n, err := vm.toNumber(argAt(a, 0))
		if err != nil {
			return value.Undef, err
		}
		return value.Bool(math.IsNaN(n)), nil
	})
	vm.Globals["isFinite"] = vm.nativeFn("isFinite", func(a []value.Value) (value.Value, error) {
		n, err := vm.toNumber(argAt(a, 0))
		if err != nil {
			return value.Undef, err
		}
		return value.Bool(!math.IsNaN(n) && !math.IsInf(n, 0)), nil
	})
}

func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenDigit, seenExp := false, false, false
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			goto done
		}
		end++
	}
done:
	if !seenDigit {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseLeadingInt(s string, radix int) float64 {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if radix == 16 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s = s[2:]
	}
	end := 0
	for end < len(s) {
		if _, err := strconv.ParseInt(s[:end+1], radix, 64); err != nil {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return math.NaN()
	}
	if neg {
		return -float64(n)
	}
	return float64(n)
}

func (vm *VM) installStringStatics() {
	ctor := vm.nativeFn("String", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Str(""), nil
		}
		return value.Str(vm.toDisplayString(args[0])), nil
	})
	value.SetProperty(vm.Heap, ctor.AsObject(), "fromCharCode", vm.nativeFn("fromCharCode", func(a []value.Value) (value.Value, error) {
		var b strings.Builder
		for _, v := range a {
			n, err := vm.toNumber(v)
			if err != nil {
				return value.Undef, err
			}
			b.WriteRune(rune(int(n)))
		}
		return value.Str(b.String()), nil
	}))
	vm.Globals["String"] = ctor
}

func (vm *VM) installBooleanAndBigIntStatics() {
	vm.Globals["Boolean"] = vm.nativeFn("Boolean", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.False, nil
		}
		return value.Bool(args[0].Truthy()), nil
	})
	vm.Globals["BigInt"] = vm.nativeFn("BigInt", func(args []value.Value) (value.Value, error) {
		v := argAt(args, 0)
		switch v.Kind() {
		case value.BigIntKind:
			return v, nil
		case value.Number:
			n := v.AsNumber()
			if n != math.Trunc(n) {
				return value.Undef, vm.throwError("RangeError", "The number %v cannot be converted to a BigInt because it is not an integer", n)
			}
			return value.BigIntVal(big.NewInt(int64(n))), nil
		case value.String:
			b, ok := new(big.Int).SetString(strings.TrimSpace(v.AsString()), 10)
			if !ok {
				return value.Undef, vm.throwError("SyntaxError", "Cannot convert %s to a BigInt", v.AsString())
			}
			return value.BigIntVal(b), nil
		default:
			return value.Undef, vm.throwError("TypeError", "Cannot convert value to a BigInt")
		}
	})
}
