package vm

import "github.com/qsjs/quicksilver/internal/value"

// Inspect renders v the way a REPL echoes an expression result: this is
// the one exported entry point into the package's otherwise-private
// display formatting, since cmd/qsjs has no other way to turn a returned
// value.Value into text worth printing.
func (vm *VM) Inspect(v value.Value) string {
	if v.Kind() == value.String {
		return "'" + v.AsString() + "'"
	}
	return vm.toDisplayString(v)
}

// newArrayValue allocates a fresh heap Array from elems, copying the slice
// so later mutation of the caller's backing array (e.g. a reused scratch
// slice) can never alias the new object's Elements.
func (vm *VM) newArrayValue(elems []value.Value) value.Value {
	cp := make([]value.Value, len(elems))
	copy(cp, elems)
	return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: cp}))
}

// toDisplayString implements the ToString abstract operation closely
// enough for Array.prototype.join/String concatenation/template literal
// interpolation: primitives format directly, objects fall back to a
// fixed per-class rendering rather than invoking a user toString (no
// OrdinaryToPrimitive call is made, so Date, RegExp and user-defined
// toString methods are not consulted).
func (vm *VM) toDisplayString(v value.Value) string {
	switch v.Kind() {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "null"
	case value.Boolean:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case value.Number:
		return formatNumber(v.AsNumber())
	case value.String:
		return v.AsString()
	case value.BigIntKind:
		return v.AsBigInt().String()
	case value.SymbolKind:
		return "Symbol(" + v.AsSymbol().Description + ")"
	case value.ObjectKind:
		return vm.objectToDisplayString(v.AsObject())
	}
	return ""
}

func (vm *VM) objectToDisplayString(id value.ObjectID) string {
	obj, ok := vm.Heap.Get(id)
	if !ok {
		return "null"
	}
	switch obj.Class {
	case value.ClassArray:
		parts := make([]string, len(obj.Elements))
		for i, e := range obj.Elements {
			if e.IsNullish() {
				parts[i] = ""
				continue
			}
			parts[i] = vm.toDisplayString(e)
		}
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += ","
			}
			out += p
		}
		return out
	case value.ClassFunction, value.ClassNativeFunction:
		return "function " + obj.Name + "() { [native code] }"
	case value.ClassClass:
		return "class " + obj.Name
	case value.ClassError:
		if obj.ErrorMessage == "" {
			return obj.ErrorName
		}
		return obj.ErrorName + ": " + obj.ErrorMessage
	default:
		return "[object Object]"
	}
}
