package vm

import (
	"math"
	"strings"

	"github.com/qsjs/quicksilver/internal/value"
)

// stringProtoMethods enumerates the String.prototype member names this VM
// recognizes; any other property name on a string primitive reads as
// Undefined rather than falling through to a generic Object.prototype
// (strings have no user-extensible prototype in this runtime).
var stringProtoMethods = map[string]bool{
	"charAt": true, "charCodeAt": true, "codePointAt": true, "at": true,
	"slice": true, "substring": true, "indexOf": true, "lastIndexOf": true,
	"includes": true, "startsWith": true, "endsWith": true,
	"toUpperCase": true, "toLowerCase": true,
	"trim": true, "trimStart": true, "trimEnd": true,
	"split": true, "replace": true, "replaceAll": true, "repeat": true,
	"padStart": true, "padEnd": true, "concat": true, "toString": true, "valueOf": true,
}

// stringMethod returns a bound-method value for a recognized method name,
// or Undefined otherwise. The receiver string travels inside the bound
// object (BoundReceiver) rather than being re-looked-up at call time,
// since a string primitive has no ObjectID to dereference.
func (vm *VM) stringMethod(s, name string) (value.Value, error) {
	if !stringProtoMethods[name] {
		return value.Undef, nil
	}
	obj := &value.Object{
		Class:         value.ClassBoundStringMethod,
		BoundReceiver: value.Str(s),
		BoundName:     name,
	}
	return value.Obj(vm.Heap.Alloc(obj)), nil
}

// callBoundStringMethod implements the actual String.prototype behavior,
// invoked from callValue when a ClassBoundStringMethod value is called.
func (vm *VM) callBoundStringMethod(obj *value.Object, args []value.Value) (value.Value, error) {
	s := obj.BoundReceiver.AsString()
	r := []rune(s)
	arg := func(i int) value.Value {
		if i < len(args) {
			return args[i]
		}
		return value.Undef
	}
	argStr := func(i int) string {
		v := arg(i)
		if v.Kind() == value.String {
			return v.AsString()
		}
		return ""
	}
	clampIdx := func(n, length int) int {
		if n < 0 {
			n += length
		}
		if n < 0 {
			return 0
		}
		if n > length {
			return length
		}
		return n
	}

	switch obj.BoundName {
	case "charAt":
		i := int(arg(0).AsNumber())
		if i < 0 || i >= len(r) {
			return value.Str(""), nil
		}
		return value.Str(string(r[i])), nil
	case "charCodeAt", "codePointAt":
		i := int(arg(0).AsNumber())
		if i < 0 || i >= len(r) {
			return value.Num(math.NaN()), nil
		}
		return value.Num(float64(r[i])), nil
	case "at":
		i := int(arg(0).AsNumber())
		if i < 0 {
			i += len(r)
		}
		if i < 0 || i >= len(r) {
			return value.Undef, nil
		}
		return value.Str(string(r[i])), nil
	case "slice":
		start, end := 0, len(r)
		if len(args) > 0 {
			start = clampIdx(int(arg(0).AsNumber()), len(r))
		}
		if len(args) > 1 && !arg(1).IsUndefined() {
			end = clampIdx(int(arg(1).AsNumber()), len(r))
		}
		if start >= end {
			return value.Str(""), nil
		}
		return value.Str(string(r[start:end])), nil
	case "substring":
		start, end := 0, len(r)
		if len(args) > 0 {
			start = clampNonNeg(int(arg(0).AsNumber()), len(r))
		}
		if len(args) > 1 && !arg(1).IsUndefined() {
			end = clampNonNeg(int(arg(1).AsNumber()), len(r))
		}
		if start > end {
			start, end = end, start
		}
		return value.Str(string(r[start:end])), nil
	case "indexOf":
		idx := strings.Index(s, argStr(0))
		if idx < 0 {
			return value.Num(-1), nil
		}
		return value.Num(float64(len([]rune(s[:idx])))), nil
	case "lastIndexOf":
		idx := strings.LastIndex(s, argStr(0))
		if idx < 0 {
			return value.Num(-1), nil
		}
		return value.Num(float64(len([]rune(s[:idx])))), nil
	case "includes":
		return value.Bool(strings.Contains(s, argStr(0))), nil
	case "startsWith":
		return value.Bool(strings.HasPrefix(s, argStr(0))), nil
	case "endsWith":
		return value.Bool(strings.HasSuffix(s, argStr(0))), nil
	case "toUpperCase":
		return value.Str(strings.ToUpper(s)), nil
	case "toLowerCase":
		return value.Str(strings.ToLower(s)), nil
	case "trim":
		return value.Str(strings.TrimSpace(s)), nil
	case "trimStart":
		return value.Str(strings.TrimLeft(s, " \t\n\r")), nil
	case "trimEnd":
		return value.Str(strings.TrimRight(s, " \t\n\r")), nil
	case "split":
		sep := argStr(0)
		var parts []string
		if len(args) == 0 {
			parts = []string{s}
		} else if sep == "" {
			for _, c := range r {
				parts = append(parts, string(c))
			}
		} else {
			parts = strings.Split(s, sep)
		}
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.Str(p)
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: elems})), nil
	case "replace":
		return value.Str(strings.Replace(s, argStr(0), argStr(1), 1)), nil
	case "replaceAll":
		return value.Str(strings.ReplaceAll(s, argStr(0), argStr(1))), nil
	case "repeat":
		n := int(arg(0).AsNumber())
		if n < 0 {
			return value.Undef, vm.throwError("RangeError", "invalid count value")
		}
		return value.Str(strings.Repeat(s, n)), nil
	case "padStart":
		return value.Str(pad(s, int(arg(0).AsNumber()), padFiller(argStr(1)), true)), nil
	case "padEnd":
		return value.Str(pad(s, int(arg(0).AsNumber()), padFiller(argStr(1)), false)), nil
	case "concat":
		var b strings.Builder
		b.WriteString(s)
		for _, a := range args {
			b.WriteString(a.AsString())
		}
		return value.Str(b.String()), nil
	case "toString", "valueOf":
		return value.Str(s), nil
	}
	return value.Undef, nil
}

func padFiller(s string) string {
	if s == "" {
		return " "
	}
	return s
}

func pad(s string, targetLen int, filler string, start bool) string {
	cur := len([]rune(s))
	if cur >= targetLen || filler == "" {
		return s
	}
	need := targetLen - cur
	var b strings.Builder
	fr := []rune(filler)
	for b.Len() == 0 || len([]rune(b.String())) < need {
		b.WriteString(string(fr))
	}
	fill := string([]rune(b.String())[:need])
	if start {
		return fill + s
	}
	return s + fill
}

func clampNonNeg(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
