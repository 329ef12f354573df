package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameValueZeroNaN(t *testing.T) {
	nan := Num(nanValue())
	assert.True(t, SameValueZero(nan, nan))
	assert.False(t, SameValue(Num(0), Num(negZero())))
	assert.True(t, SameValueZero(Num(0), Num(negZero())))
}

func nanValue() float64 { var z float64; return z / z }
func negZero() float64  { return -0.0 }

func TestHeapAllocAndFree(t *testing.T) {
	h := NewHeap()
	obj := &Object{Class: ClassOrdinary}
	id := h.Alloc(obj)
	require.NotEqual(t, NullObjectID, id)

	got, ok := h.Get(id)
	require.True(t, ok)
	assert.Same(t, obj, got)

	gen := h.Generation(id)
	h.Free(id)
	_, ok = h.Get(id)
	assert.False(t, ok)
	assert.NotEqual(t, gen, h.Generation(id))
}

func TestWeakKeyDetectsCollection(t *testing.T) {
	h := NewHeap()
	id := h.Alloc(&Object{Class: ClassOrdinary})
	key := h.WeakKeyFor(id)
	assert.True(t, h.IsLive(key))

	h.Free(id)
	assert.False(t, h.IsLive(key))
}

func TestArrayLengthTruncateAndGrow(t *testing.T) {
	h := NewHeap()
	id := h.Alloc(&Object{Class: ClassArray, Elements: []Value{Num(1), Num(2), Num(3)}})

	SetArrayLength(h, id, 1)
	assert.Equal(t, 1, ArrayLength(h, id))

	SetArrayLength(h, id, 3)
	assert.Equal(t, 3, ArrayLength(h, id))
	assert.True(t, ArrayGet(h, id, 2).IsUndefined())
}

func TestUint8ClampedArrayClamping(t *testing.T) {
	assert.Equal(t, byte(0), ClampUint8(-5))
	assert.Equal(t, byte(255), ClampUint8(300))
	assert.Equal(t, byte(2), ClampUint8(2.5))
	assert.Equal(t, byte(4), ClampUint8(3.5))
}

func TestGCCollectsUnreachable(t *testing.T) {
	h := NewHeap()
	root := h.Alloc(&Object{Class: ClassOrdinary, Props: map[string]Value{}})
	child := h.Alloc(&Object{Class: ClassOrdinary})
	SetProperty(h, root, "child", Obj(child))
	garbage := h.Alloc(&Object{Class: ClassOrdinary})

	h.Collect(GCRoots{Values: []Value{Obj(root)}})

	assert.True(t, h.Live(root))
	assert.True(t, h.Live(child))
	assert.False(t, h.Live(garbage))
}

func TestTypedArrayRoundTrip(t *testing.T) {
	h := NewHeap()
	buf := h.Alloc(&Object{Class: ClassArrayBuffer, Bytes: make([]byte, 8)})
	ta := h.Alloc(&Object{
		Class: ClassTypedArray, Buffer: buf, ByteOffset: 0, Length: 2, ElemKind: TAInt32,
	})
	TypedArraySet(h, ta, 0, Num(42))
	TypedArraySet(h, ta, 1, Num(-7))
	assert.Equal(t, float64(42), TypedArrayGet(h, ta, 0).AsNumber())
	assert.Equal(t, float64(-7), TypedArrayGet(h, ta, 1).AsNumber())
	assert.True(t, TypedArrayGet(h, ta, 5).IsUndefined())
}

func TestDataViewEndianness(t *testing.T) {
	h := NewHeap()
	buf := h.Alloc(&Object{Class: ClassArrayBuffer, Bytes: make([]byte, 4)})
	dv := h.Alloc(&Object{Class: ClassDataView, Buffer: buf, ByteOffset: 0, ByteLength: 4})

	DataViewSet(h, dv, 0, TAUint32, Num(1), false) // big-endian default
	v, ok := DataViewGet(h, dv, 0, TAUint32, false)
	require.True(t, ok)
	assert.Equal(t, float64(1), v.AsNumber())

	vLE, ok := DataViewGet(h, dv, 0, TAUint32, true)
	require.True(t, ok)
	assert.NotEqual(t, float64(1), vLE.AsNumber())
}
