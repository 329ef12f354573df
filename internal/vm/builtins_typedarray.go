package vm

import (
	"math"

	"github.com/qsjs/quicksilver/internal/value"
)

// ArrayBuffer/DataView/the nine TypedArray views all share one underlying
// []byte slab (Object.Bytes on the ClassArrayBuffer object); a TypedArray or
// DataView never owns bytes itself, only a Buffer ObjectID/ByteOffset/
// ByteLength window into one, exactly like the real spec's separation of
// storage from view. Indexed TypedArray access and DataView's get/set
// methods both funnel through internal/value/property.go's
// TypedArrayGet/TypedArraySet/DataViewGet/DataViewSet — the same helpers
// internal/clone already uses to copy a buffer's bytes — rather than a
// second byte-decoding implementation living here.
func (vm *VM) installBinaryGlobals() {
	vm.Globals["ArrayBuffer"] = vm.nativeFn("ArrayBuffer", func(args []value.Value) (value.Value, error) {
		n, err := vm.toNumber(argAt(args, 0))
		if err != nil {
			return value.Undef, err
		}
		if n < 0 || math.IsNaN(n) {
			return value.Undef, vm.throwError("RangeError", "invalid array buffer length")
		}
		obj := &value.Object{Class: value.ClassArrayBuffer, Bytes: make([]byte, int(n))}
		id := vm.Heap.Alloc(obj)
		value.SetProperty(vm.Heap, id, "byteLength", value.Num(n))
		value.SetProperty(vm.Heap, id, "slice", vm.nativeFn("slice", func(a []value.Value) (value.Value, error) {
			start, end := sliceBounds(a, len(obj.Bytes))
			out := append([]byte{}, obj.Bytes[start:end]...)
			nid := vm.Heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: out})
			value.SetProperty(vm.Heap, nid, "byteLength", value.Num(float64(len(out))))
			return value.Obj(nid), nil
		}))
		return value.Obj(id), nil
	})

	vm.Globals["DataView"] = vm.nativeFn("DataView", func(args []value.Value) (value.Value, error) {
		return vm.newDataView(args)
	})

	for _, k := range []value.TypedArrayKind{
		value.TAInt8, value.TAUint8, value.TAUint8Clamped, value.TAInt16, value.TAUint16,
		value.TAInt32, value.TAUint32, value.TAFloat32, value.TAFloat64,
	} {
		kind := k
		vm.Globals[typedArrayCtorName(kind)] = vm.nativeFn(typedArrayCtorName(kind), func(args []value.Value) (value.Value, error) {
			return vm.newTypedArray(kind, args)
		})
	}
}

func typedArrayCtorName(k value.TypedArrayKind) string {
	switch k {
	case value.TAInt8:
		return "Int8Array"
	case value.TAUint8:
		return "Uint8Array"
	case value.TAUint8Clamped:
		return "Uint8ClampedArray"
	case value.TAInt16:
		return "Int16Array"
	case value.TAUint16:
		return "Uint16Array"
	case value.TAInt32:
		return "Int32Array"
	case value.TAUint32:
		return "Uint32Array"
	case value.TAFloat32:
		return "Float32Array"
	case value.TAFloat64:
		return "Float64Array"
	}
	return "TypedArray"
}

func (vm *VM) newTypedArray(kind value.TypedArrayKind, args []value.Value) (value.Value, error) {
	elemSize := kind.ByteSize()
	var bufID value.ObjectID
	var byteOffset, length int

	switch {
	case len(args) == 0:
		bufID = vm.Heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: nil})
	case args[0].IsObject():
		srcObj, ok := vm.Heap.Get(args[0].AsObject())
		if ok && srcObj.Class == value.ClassArrayBuffer {
			bufID = args[0].AsObject()
			byteOffset = 0
			if len(args) > 1 {
				n, err := vm.toNumber(args[1])
				if err != nil {
					return value.Undef, err
				}
				byteOffset = int(n)
			}
			avail := len(srcObj.Bytes) - byteOffset
			length = avail / elemSize
			if len(args) > 2 {
				n, err := vm.toNumber(args[2])
				if err != nil {
					return value.Undef, err
				}
				length = int(n)
			}
		} else {
			elems, err := vm.iterableToSlice(args[0], -1)
			if err != nil {
				return value.Undef, err
			}
			length = len(elems)
			bufID = vm.Heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: make([]byte, length*elemSize)})
			ta := &value.Object{Class: value.ClassTypedArray, Buffer: bufID, ByteLength: length * elemSize, ElemKind: kind, Length: length}
			tmpID := vm.Heap.Alloc(ta)
			for i, e := range elems {
				n, _ := vm.toNumber(e)
				value.TypedArraySet(vm.Heap, tmpID, i, value.Num(n))
			}
		}
	default:
		n, err := vm.toNumber(args[0])
		if err != nil {
			return value.Undef, err
		}
		length = int(n)
		bufID = vm.Heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: make([]byte, length*elemSize)})
	}

	obj := &value.Object{
		Class:      value.ClassTypedArray,
		Buffer:     bufID,
		ByteOffset: byteOffset,
		ByteLength: length * elemSize,
		ElemKind:   kind,
		Length:     length,
	}
	id := vm.Heap.Alloc(obj)
	taVal := value.Obj(id)

	value.SetProperty(vm.Heap, id, "set", vm.nativeFn("set", func(a []value.Value) (value.Value, error) {
		elems, err := vm.iterableToSlice(argAt(a, 0), -1)
		if err != nil {
			return value.Undef, err
		}
		offset := 0
		if len(a) > 1 {
			n, _ := vm.toNumber(a[1])
			offset = int(n)
		}
		for i, e := range elems {
			value.TypedArraySet(vm.Heap, id, offset+i, e)
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "subarray", vm.nativeFn("subarray", func(a []value.Value) (value.Value, error) {
		start, end := sliceBounds(a, obj.Length)
		sub := &value.Object{
			Class: value.ClassTypedArray, Buffer: obj.Buffer,
			ByteOffset: obj.ByteOffset + start*elemSize,
			ByteLength: (end - start) * elemSize,
			ElemKind:   kind, Length: end - start,
		}
		return value.Obj(vm.Heap.Alloc(sub)), nil
	}))
	value.SetProperty(vm.Heap, id, "fill", vm.nativeFn("fill", func(a []value.Value) (value.Value, error) {
		n := argAt(a, 0)
		start, end := 0, obj.Length
		if len(a) > 1 {
			start = clampIdxSigned(int(a[1].AsNumber()), obj.Length)
		}
		if len(a) > 2 {
			end = clampIdxSigned(int(a[2].AsNumber()), obj.Length)
		}
		for i := start; i < end; i++ {
			value.TypedArraySet(vm.Heap, id, i, n)
		}
		return taVal, nil
	}))
	value.SetProperty(vm.Heap, id, "slice", vm.nativeFn("slice", func(a []value.Value) (value.Value, error) {
		start, end := sliceBounds(a, obj.Length)
		bytes := make([]byte, (end-start)*elemSize)
		nbuf := vm.Heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: bytes})
		nid := vm.Heap.Alloc(&value.Object{
			Class: value.ClassTypedArray, Buffer: nbuf, ByteLength: len(bytes), ElemKind: kind, Length: end - start,
		})
		for i := start; i < end; i++ {
			value.TypedArraySet(vm.Heap, nid, i-start, value.TypedArrayGet(vm.Heap, id, i))
		}
		return value.Obj(nid), nil
	}))
	value.SetProperty(vm.Heap, id, "forEach", vm.nativeFn("forEach", func(a []value.Value) (value.Value, error) {
		cb := argAt(a, 0)
		for i := 0; i < obj.Length; i++ {
			v := value.TypedArrayGet(vm.Heap, id, i)
			if _, err := vm.callValue(cb, value.Undef, []value.Value{v, value.Num(float64(i)), taVal}, value.Undef); err != nil {
				return value.Undef, err
			}
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "join", vm.nativeFn("join", func(a []value.Value) (value.Value, error) {
		sep := ","
		if len(a) > 0 {
			sep = vm.toDisplayString(a[0])
		}
		out := ""
		for i := 0; i < obj.Length; i++ {
			if i > 0 {
				out += sep
			}
			out += formatNumber(value.TypedArrayGet(vm.Heap, id, i).AsNumber())
		}
		return value.Str(out), nil
	}))
	return taVal, nil
}

// typedArrayGetProperty/typedArraySetProperty are the property_ops.go
// special cases for ClassTypedArray/ClassDataView: indexed element access
// plus the fixed "length"/"byteLength"/"byteOffset"/"buffer" accessors a
// real TypedArray/DataView exposes as own properties rather than Props
// entries (their value depends on live Buffer state, so they can't be
// baked in at construction the way an ArrayBuffer's own fixed "byteLength"
// can).
func (vm *VM) typedArrayGetProperty(id value.ObjectID, obj *value.Object, key string) (value.Value, bool, error) {
	switch key {
	case "length":
		if obj.Class == value.ClassTypedArray {
			return value.Num(float64(obj.Length)), true, nil
		}
		return value.Undef, false, nil
	case "byteLength":
		return value.Num(float64(obj.ByteLength)), true, nil
	case "byteOffset":
		return value.Num(float64(obj.ByteOffset)), true, nil
	case "buffer":
		return value.Obj(obj.Buffer), true, nil
	}
	if obj.Class == value.ClassTypedArray {
		if idx, ok := arrayIndex(key); ok {
			if idx >= obj.Length {
				return value.Undef, true, nil
			}
			return value.TypedArrayGet(vm.Heap, id, idx), true, nil
		}
	}
	return value.Undef, false, nil
}

func (vm *VM) typedArraySetProperty(id value.ObjectID, obj *value.Object, key string, v value.Value) bool {
	idx, ok := arrayIndex(key)
	if !ok || obj.Class != value.ClassTypedArray || idx >= obj.Length {
		return false
	}
	value.TypedArraySet(vm.Heap, id, idx, v)
	return true
}

func (vm *VM) newDataView(args []value.Value) (value.Value, error) {
	if len(args) == 0 || !args[0].IsObject() {
		return value.Undef, vm.throwError("TypeError", "DataView requires an ArrayBuffer")
	}
	bufID := args[0].AsObject()
	buf := vm.Heap.MustGet(bufID)
	byteOffset := 0
	if len(args) > 1 {
		n, err := vm.toNumber(args[1])
		if err != nil {
			return value.Undef, err
		}
		byteOffset = int(n)
	}
	byteLength := len(buf.Bytes) - byteOffset
	if len(args) > 2 {
		n, err := vm.toNumber(args[2])
		if err != nil {
			return value.Undef, err
		}
		byteLength = int(n)
	}
	obj := &value.Object{Class: value.ClassDataView, Buffer: bufID, ByteOffset: byteOffset, ByteLength: byteLength}
	id := vm.Heap.Alloc(obj)

	kinds := map[string]value.TypedArrayKind{
		"Int8": value.TAInt8, "Uint8": value.TAUint8, "Int16": value.TAInt16, "Uint16": value.TAUint16,
		"Int32": value.TAInt32, "Uint32": value.TAUint32, "Float32": value.TAFloat32, "Float64": value.TAFloat64,
	}
	for name, kind := range kinds {
		k := kind
		value.SetProperty(vm.Heap, id, "get"+name, vm.nativeFn("get"+name, func(a []value.Value) (value.Value, error) {
			off, err := vm.toNumber(argAt(a, 0))
			if err != nil {
				return value.Undef, err
			}
			littleEndian := len(a) > 1 && a[1].Truthy()
			v, ok := value.DataViewGet(vm.Heap, id, int(off), k, littleEndian)
			if !ok {
				return value.Undef, vm.throwError("RangeError", "offset is outside the bounds of the DataView")
			}
			return v, nil
		}))
		value.SetProperty(vm.Heap, id, "set"+name, vm.nativeFn("set"+name, func(a []value.Value) (value.Value, error) {
			off, err := vm.toNumber(argAt(a, 0))
			if err != nil {
				return value.Undef, err
			}
			n, err := vm.toNumber(argAt(a, 1))
			if err != nil {
				return value.Undef, err
			}
			littleEndian := len(a) > 2 && a[2].Truthy()
			if !value.DataViewSet(vm.Heap, id, int(off), k, value.Num(n), littleEndian) {
				return value.Undef, vm.throwError("RangeError", "offset is outside the bounds of the DataView")
			}
			return value.Undef, nil
		}))
	}
	return value.Obj(id), nil
}
