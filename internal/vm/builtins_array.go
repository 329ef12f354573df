package vm

import (
	"strings"

	"github.com/qsjs/quicksilver/internal/value"
)

var arrayProtoMethods = map[string]bool{
	"push": true, "pop": true, "shift": true, "unshift": true,
	"slice": true, "splice": true, "join": true, "concat": true,
	"indexOf": true, "lastIndexOf": true, "includes": true,
	"forEach": true, "map": true, "filter": true, "find": true, "findIndex": true,
	"reduce": true, "some": true, "every": true, "reverse": true, "sort": true,
	"flat": true, "at": true,
}

// arrayMethod mirrors stringMethod: arrays are heap objects, so the bound
// method carries the receiver's ObjectID rather than a copied Value, since
// in-place methods (push, sort, reverse) must mutate the original.
func (vm *VM) arrayMethod(id value.ObjectID, name string) (value.Value, error) {
	if !arrayProtoMethods[name] {
		return value.Undef, nil
	}
	obj := &value.Object{
		Class:       value.ClassBoundArrayMethod,
		BoundTarget: id,
		BoundName:   name,
	}
	return value.Obj(vm.Heap.Alloc(obj)), nil
}

func (vm *VM) callBoundArrayMethod(obj *value.Object, args []value.Value) (value.Value, error) {
	id := obj.BoundTarget
	arr, ok := vm.Heap.Get(id)
	if !ok {
		return value.Undef, vm.throwError("TypeError", "array method called on a collected receiver")
	}
	arg := func(i int) value.Value {
		if i < len(args) {
			return args[i]
		}
		return value.Undef
	}
	call := func(cb value.Value, item value.Value, i int) (value.Value, error) {
		return vm.callValue(cb, value.Undef, []value.Value{item, value.Num(float64(i)), value.Obj(id)}, value.Undef)
	}

	switch obj.BoundName {
	case "push":
		arr.Elements = append(arr.Elements, args...)
		return value.Num(float64(len(arr.Elements))), nil
	case "pop":
		if len(arr.Elements) == 0 {
			return value.Undef, nil
		}
		last := arr.Elements[len(arr.Elements)-1]
		arr.Elements = arr.Elements[:len(arr.Elements)-1]
		return last, nil
	case "shift":
		if len(arr.Elements) == 0 {
			return value.Undef, nil
		}
		first := arr.Elements[0]
		arr.Elements = arr.Elements[1:]
		return first, nil
	case "unshift":
		arr.Elements = append(append([]value.Value{}, args...), arr.Elements...)
		return value.Num(float64(len(arr.Elements))), nil
	case "slice":
		start, end := sliceBounds(args, len(arr.Elements))
		out := append([]value.Value{}, arr.Elements[start:end]...)
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: out})), nil
	case "splice":
		return vm.arraySplice(arr, args)
	case "join":
		sep := ","
		if len(args) > 0 && !arg(0).IsUndefined() {
			sep = arg(0).AsString()
		}
		parts := make([]string, len(arr.Elements))
		for i, e := range arr.Elements {
			parts[i] = vm.toDisplayString(e)
		}
		return value.Str(strings.Join(parts, sep)), nil
	case "concat":
		out := append([]value.Value{}, arr.Elements...)
		for _, a := range args {
			if a.IsObject() {
				if other, ok := vm.Heap.Get(a.AsObject()); ok && other.Class == value.ClassArray {
					out = append(out, other.Elements...)
					continue
				}
			}
			out = append(out, a)
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: out})), nil
	case "indexOf":
		for i, e := range arr.Elements {
			if value.SameValueZero(e, arg(0)) {
				return value.Num(float64(i)), nil
			}
		}
		return value.Num(-1), nil
	case "lastIndexOf":
		for i := len(arr.Elements) - 1; i >= 0; i-- {
			if value.SameValueZero(arr.Elements[i], arg(0)) {
				return value.Num(float64(i)), nil
			}
		}
		return value.Num(-1), nil
	case "includes":
		for _, e := range arr.Elements {
			if value.SameValueZero(e, arg(0)) {
				return value.True, nil
			}
		}
		return value.False, nil
	case "at":
		i := int(arg(0).AsNumber())
		if i < 0 {
			i += len(arr.Elements)
		}
		if i < 0 || i >= len(arr.Elements) {
			return value.Undef, nil
		}
		return arr.Elements[i], nil
	case "reverse":
		for i, j := 0, len(arr.Elements)-1; i < j; i, j = i+1, j-1 {
			arr.Elements[i], arr.Elements[j] = arr.Elements[j], arr.Elements[i]
		}
		return value.Obj(id), nil
	case "flat":
		depth := 1
		if len(args) > 0 {
			depth = int(arg(0).AsNumber())
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: vm.flatten(arr.Elements, depth)})), nil
	case "forEach":
		for i, e := range append([]value.Value{}, arr.Elements...) {
			if _, err := call(arg(0), e, i); err != nil {
				return value.Undef, err
			}
		}
		return value.Undef, nil
	case "map":
		out := make([]value.Value, len(arr.Elements))
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			out[i] = r
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: out})), nil
	case "filter":
		var out []value.Value
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			if r.Truthy() {
				out = append(out, e)
			}
		}
		return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: out})), nil
	case "find":
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			if r.Truthy() {
				return e, nil
			}
		}
		return value.Undef, nil
	case "findIndex":
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			if r.Truthy() {
				return value.Num(float64(i)), nil
			}
		}
		return value.Num(-1), nil
	case "some":
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			if r.Truthy() {
				return value.True, nil
			}
		}
		return value.False, nil
	case "every":
		for i, e := range append([]value.Value{}, arr.Elements...) {
			r, err := call(arg(0), e, i)
			if err != nil {
				return value.Undef, err
			}
			if !r.Truthy() {
				return value.False, nil
			}
		}
		return value.True, nil
	case "reduce":
		return vm.arrayReduce(arr, args)
	case "sort":
		return vm.arraySort(id, arr, args)
	}
	return value.Undef, nil
}

func sliceBounds(args []value.Value, length int) (int, int) {
	start, end := 0, length
	if len(args) > 0 {
		start = clampIdxSigned(int(args[0].AsNumber()), length)
	}
	if len(args) > 1 && !args[1].IsUndefined() {
		end = clampIdxSigned(int(args[1].AsNumber()), length)
	}
	if start > end {
		start = end
	}
	return start, end
}

func clampIdxSigned(n, length int) int {
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

func (vm *VM) arraySplice(arr *value.Object, args []value.Value) (value.Value, error) {
	length := len(arr.Elements)
	start := 0
	if len(args) > 0 {
		start = clampIdxSigned(int(args[0].AsNumber()), length)
	}
	deleteCount := length - start
	if len(args) > 1 {
		deleteCount = int(args[1].AsNumber())
		if deleteCount < 0 {
			deleteCount = 0
		}
		if start+deleteCount > length {
			deleteCount = length - start
		}
	}
	removed := append([]value.Value{}, arr.Elements[start:start+deleteCount]...)
	var inserted []value.Value
	if len(args) > 2 {
		inserted = args[2:]
	}
	out := append([]value.Value{}, arr.Elements[:start]...)
	out = append(out, inserted...)
	out = append(out, arr.Elements[start+deleteCount:]...)
	arr.Elements = out
	return value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: removed})), nil
}

func (vm *VM) arrayReduce(arr *value.Object, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Undef, vm.throwError("TypeError", "Reduce of empty array with no initial value")
	}
	cb := args[0]
	elems := arr.Elements
	var acc value.Value
	start := 0
	if len(args) > 1 {
		acc = args[1]
	} else {
		if len(elems) == 0 {
			return value.Undef, vm.throwError("TypeError", "Reduce of empty array with no initial value")
		}
		acc = elems[0]
		start = 1
	}
	for i := start; i < len(elems); i++ {
		r, err := vm.callValue(cb, value.Undef, []value.Value{acc, elems[i], value.Num(float64(i))}, value.Undef)
		if err != nil {
			return value.Undef, err
		}
		acc = r
	}
	return acc, nil
}

func (vm *VM) arraySort(id value.ObjectID, arr *value.Object, args []value.Value) (value.Value, error) {
	var cb value.Value
	hasCb := len(args) > 0 && !args[0].IsUndefined()
	if hasCb {
		cb = args[0]
	}
	var sortErr error
	els := arr.Elements
	// insertion sort: stable, small-N friendly, and keeps the comparator
	// call count low enough that a thrown error can abort cleanly mid-sort.
	for i := 1; i < len(els) && sortErr == nil; i++ {
		for j := i; j > 0; j-- {
			var less bool
			if hasCb {
				r, err := vm.callValue(cb, value.Undef, []value.Value{els[j], els[j-1]}, value.Undef)
				if err != nil {
					sortErr = err
					break
				}
				less = r.AsNumber() < 0
			} else {
				less = vm.toDisplayString(els[j]) < vm.toDisplayString(els[j-1])
			}
			if !less {
				break
			}
			els[j], els[j-1] = els[j-1], els[j]
		}
	}
	if sortErr != nil {
		return value.Undef, sortErr
	}
	return value.Obj(id), nil
}

func (vm *VM) flatten(elems []value.Value, depth int) []value.Value {
	var out []value.Value
	for _, e := range elems {
		if depth > 0 && e.IsObject() {
			if arr, ok := vm.Heap.Get(e.AsObject()); ok && arr.Class == value.ClassArray {
				out = append(out, vm.flatten(arr.Elements, depth-1)...)
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
