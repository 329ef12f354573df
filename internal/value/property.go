package value

import "math"

// GetProperty implements spec.md §4.F's get_property: own properties
// first, then, for ordinary, array and error objects, the Prototype chain.
// Class method/getter maps are not consulted, and objects of any other
// class stop at their own properties.
func GetProperty(h *Heap, id ObjectID, key string) (Value, bool) {
	obj, ok := h.Get(id)
	if !ok {
		return Undef, false
	}
	if v, ok := obj.Props[key]; ok {
		return v, true
	}
	if obj.Class == ClassOrdinary || obj.Class == ClassArray || obj.Class == ClassError {
		if obj.HasProto {
			return GetProperty(h, obj.Prototype, key)
		}
		return Undef, false
	}
	return Undef, false
}

// SetProperty sets an own property, preserving first-insertion order in
// PropOrder (needed by Object.keys / JSON.stringify / for-in).
func SetProperty(h *Heap, id ObjectID, key string, v Value) {
	obj, ok := h.Get(id)
	if !ok {
		return
	}
	if obj.Props == nil {
		obj.Props = make(map[string]Value)
	}
	if _, existed := obj.Props[key]; !existed {
		obj.PropOrder = append(obj.PropOrder, key)
	}
	obj.Props[key] = v
}

// DeleteProperty removes an own property and its PropOrder entry.
func DeleteProperty(h *Heap, id ObjectID, key string) bool {
	obj, ok := h.Get(id)
	if !ok {
		return false
	}
	if _, existed := obj.Props[key]; !existed {
		return false
	}
	delete(obj.Props, key)
	for i, k := range obj.PropOrder {
		if k == key {
			obj.PropOrder = append(obj.PropOrder[:i], obj.PropOrder[i+1:]...)
			break
		}
	}
	return true
}

// ArrayLength returns an Array object's element count.
func ArrayLength(h *Heap, id ObjectID) int {
	obj, ok := h.Get(id)
	if !ok {
		return 0
	}
	return len(obj.Elements)
}

// SetArrayLength implements the spec's array-length truncate/grow-with-
// holes semantics.
func SetArrayLength(h *Heap, id ObjectID, n int) {
	obj, ok := h.Get(id)
	if !ok || n < 0 {
		return
	}
	if n <= len(obj.Elements) {
		obj.Elements = obj.Elements[:n]
		return
	}
	grown := make([]Value, n)
	copy(grown, obj.Elements)
	for i := len(obj.Elements); i < n; i++ {
		grown[i] = Undef
	}
	obj.Elements = grown
}

// ArrayGet returns element i, Undefined if out of range (a "hole").
func ArrayGet(h *Heap, id ObjectID, i int) Value {
	obj, ok := h.Get(id)
	if !ok || i < 0 || i >= len(obj.Elements) {
		return Undef
	}
	return obj.Elements[i]
}

// ArraySet writes element i, growing with Undefined holes if i >= length,
// per spec.md §4.F.
func ArraySet(h *Heap, id ObjectID, i int, v Value) {
	obj, ok := h.Get(id)
	if !ok || i < 0 {
		return
	}
	if i >= len(obj.Elements) {
		SetArrayLength(h, id, i+1)
		obj, _ = h.Get(id)
	}
	obj.Elements[i] = v
}

// ClampUint8 implements Uint8ClampedArray's write-time clamping:
// <0 -> 0, >255 -> 255, else round-half-to-even.
func ClampUint8(f float64) byte {
	if isNaN(f) {
		return 0
	}
	if f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return byte(math.RoundToEven(f))
}

// TypedArrayGet decodes the element at logical index i from the backing
// ArrayBuffer, little-endian (per spec.md §4.F — all TypedArray access is
// little-endian; only DataView exposes an explicit endianness flag).
// Out-of-range reads return Undefined.
func TypedArrayGet(h *Heap, taID ObjectID, i int) Value {
	ta, ok := h.Get(taID)
	if !ok {
		return Undef
	}
	if i < 0 || i >= ta.Length {
		return Undef
	}
	buf, ok := h.Get(ta.Buffer)
	if !ok || buf.Detached {
		return Undef
	}
	size := ta.ElemKind.ByteSize()
	off := ta.ByteOffset + i*size
	if off+size > len(buf.Bytes) {
		return Undef
	}
	return decodeElement(buf.Bytes[off:off+size], ta.ElemKind, true)
}

// TypedArraySet encodes v into the backing buffer at logical index i.
// Out-of-range writes are silently ignored per spec.md §4.F.
func TypedArraySet(h *Heap, taID ObjectID, i int, v Value) {
	ta, ok := h.Get(taID)
	if !ok || i < 0 || i >= ta.Length {
		return
	}
	buf, ok := h.Get(ta.Buffer)
	if !ok || buf.Detached {
		return
	}
	size := ta.ElemKind.ByteSize()
	off := ta.ByteOffset + i*size
	if off+size > len(buf.Bytes) {
		return
	}
	encodeElement(buf.Bytes[off:off+size], ta.ElemKind, v, true)
}

func decodeElement(b []byte, kind TypedArrayKind, little bool) Value {
	get16 := func() uint16 {
		if little {
			return uint16(b[0]) | uint16(b[1])<<8
		}
		return uint16(b[1]) | uint16(b[0])<<8
	}
	get32 := func() uint32 {
		if little {
			return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		}
		return uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24
	}
	get64 := func() uint64 {
		var v uint64
		for i := 0; i < 8; i++ {
			idx := i
			if !little {
				idx = 7 - i
			}
			v |= uint64(b[idx]) << (8 * i)
		}
		return v
	}
	switch kind {
	case TAInt8:
		return Num(float64(int8(b[0])))
	case TAUint8, TAUint8Clamped:
		return Num(float64(b[0]))
	case TAInt16:
		return Num(float64(int16(get16())))
	case TAUint16:
		return Num(float64(get16()))
	case TAInt32:
		return Num(float64(int32(get32())))
	case TAUint32:
		return Num(float64(get32()))
	case TAFloat32:
		return Num(float64(math.Float32frombits(get32())))
	case TAFloat64:
		return Num(math.Float64frombits(get64()))
	}
	return Undef
}

func encodeElement(b []byte, kind TypedArrayKind, v Value, little bool) {
	f := v.AsNumber()
	put16 := func(u uint16) {
		if little {
			b[0], b[1] = byte(u), byte(u>>8)
		} else {
			b[1], b[0] = byte(u), byte(u>>8)
		}
	}
	put32 := func(u uint32) {
		if little {
			b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
		} else {
			b[3], b[2], b[1], b[0] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
		}
	}
	put64 := func(u uint64) {
		for i := 0; i < 8; i++ {
			idx := i
			if !little {
				idx = 7 - i
			}
			b[idx] = byte(u >> (8 * i))
		}
	}
	switch kind {
	case TAInt8, TAUint8:
		b[0] = byte(int64(f))
	case TAUint8Clamped:
		b[0] = ClampUint8(f)
	case TAInt16, TAUint16:
		put16(uint16(int64(f)))
	case TAInt32, TAUint32:
		put32(uint32(int64(f)))
	case TAFloat32:
		put32(math.Float32bits(float32(f)))
	case TAFloat64:
		put64(math.Float64bits(f))
	}
}

// DataViewGet decodes count bytes at byteOffset as kind, honoring the
// caller-supplied littleEndian flag (DataView defaults to big-endian per
// spec.md §6, unlike every other TypedArray which is always little-endian).
func DataViewGet(h *Heap, dvID ObjectID, byteOffset int, kind TypedArrayKind, littleEndian bool) (Value, bool) {
	dv, ok := h.Get(dvID)
	if !ok {
		return Undef, false
	}
	buf, ok := h.Get(dv.Buffer)
	if !ok || buf.Detached {
		return Undef, false
	}
	size := kind.ByteSize()
	off := dv.ByteOffset + byteOffset
	if off < 0 || off+size > dv.ByteOffset+dv.ByteLength || off+size > len(buf.Bytes) {
		return Undef, false
	}
	return decodeElement(buf.Bytes[off:off+size], kind, littleEndian), true
}

// DataViewSet encodes v at byteOffset, honoring littleEndian.
func DataViewSet(h *Heap, dvID ObjectID, byteOffset int, kind TypedArrayKind, v Value, littleEndian bool) bool {
	dv, ok := h.Get(dvID)
	if !ok {
		return false
	}
	buf, ok := h.Get(dv.Buffer)
	if !ok || buf.Detached {
		return false
	}
	size := kind.ByteSize()
	off := dv.ByteOffset + byteOffset
	if off < 0 || off+size > dv.ByteOffset+dv.ByteLength || off+size > len(buf.Bytes) {
		return false
	}
	encodeElement(buf.Bytes[off:off+size], kind, v, littleEndian)
	return true
}
