package clone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsjs/quicksilver/internal/value"
)

func TestClonePrimitives(t *testing.T) {
	h := value.NewHeap()
	for _, v := range []value.Value{value.Undef, value.Nul, value.True, value.Num(42.5), value.Str("hi")} {
		out, err := Value(h, v, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, v, out)
	}
}

func TestCloneSymbolRejected(t *testing.T) {
	h := value.NewHeap()
	_, err := Value(h, value.SymVal(&value.Symbol{}), DefaultOptions())
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "not-cloneable", ce.Kind)
}

func TestClonePlainObject(t *testing.T) {
	h := value.NewHeap()
	id := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	value.SetProperty(h, id, "x", value.Num(1))
	value.SetProperty(h, id, "y", value.Str("two"))

	out, err := Value(h, value.Obj(id), DefaultOptions())
	require.NoError(t, err)
	require.NotEqual(t, id, out.AsObject())

	cloned := h.MustGet(out.AsObject())
	assert.Equal(t, value.Num(1), cloned.Props["x"])
	assert.Equal(t, value.Str("two"), cloned.Props["y"])
}

func TestCloneArray(t *testing.T) {
	h := value.NewHeap()
	id := h.Alloc(&value.Object{Class: value.ClassArray, Elements: []value.Value{value.Num(1), value.Str("two"), value.True}})
	out, err := Value(h, value.Obj(id), DefaultOptions())
	require.NoError(t, err)
	cloned := h.MustGet(out.AsObject())
	require.Len(t, cloned.Elements, 3)
	assert.Equal(t, value.Num(1), cloned.Elements[0])
}

func TestCircularReferenceSelf(t *testing.T) {
	h := value.NewHeap()
	id := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	value.SetProperty(h, id, "self", value.Obj(id))

	out, err := Value(h, value.Obj(id), DefaultOptions())
	require.NoError(t, err)
	cloned := h.MustGet(out.AsObject())
	assert.Equal(t, out.AsObject(), cloned.Props["self"].AsObject())
}

func TestMutualCircularReference(t *testing.T) {
	h := value.NewHeap()
	a := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	b := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	value.SetProperty(h, a, "b", value.Obj(b))
	value.SetProperty(h, b, "a", value.Obj(a))

	out, err := Value(h, value.Obj(a), DefaultOptions())
	require.NoError(t, err)
	clonedA := h.MustGet(out.AsObject())
	clonedB := h.MustGet(clonedA.Props["b"].AsObject())
	assert.Equal(t, out.AsObject(), clonedB.Props["a"].AsObject())
}

func TestCloneFunctionRejected(t *testing.T) {
	h := value.NewHeap()
	id := h.Alloc(&value.Object{Class: value.ClassFunction})
	_, err := Value(h, value.Obj(id), DefaultOptions())
	require.Error(t, err)
}

func TestMaxDepthExceeded(t *testing.T) {
	h := value.NewHeap()
	current := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	for i := 0; i < 5; i++ {
		outer := h.Alloc(&value.Object{Class: value.ClassOrdinary})
		value.SetProperty(h, outer, "child", value.Obj(current))
		current = outer
	}

	_, err := Value(h, value.Obj(current), Options{MaxDepth: 3})
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "max-depth", ce.Kind)
	assert.Equal(t, 3, ce.Max)
}

func TestTransferArrayBufferDetachesSource(t *testing.T) {
	h := value.NewHeap()
	id := h.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: []byte{1, 2, 3}})

	out, err := Value(h, value.Obj(id), Options{MaxDepth: 1000, Transfer: []value.ObjectID{id}})
	require.NoError(t, err)

	src := h.MustGet(id)
	assert.True(t, src.Detached)
	assert.Nil(t, src.Bytes)

	dst := h.MustGet(out.AsObject())
	assert.Equal(t, []byte{1, 2, 3}, dst.Bytes)

	_, err = Value(h, value.Obj(id), Options{MaxDepth: 1000, Transfer: []value.ObjectID{id}})
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "already-transferred", ce.Kind)
}

func TestIsCloneable(t *testing.T) {
	h := value.NewHeap()
	assert.True(t, IsCloneable(h, value.Undef))
	assert.False(t, IsCloneable(h, value.SymVal(&value.Symbol{})))

	fnID := h.Alloc(&value.Object{Class: value.ClassFunction})
	assert.False(t, IsCloneable(h, value.Obj(fnID)))

	objID := h.Alloc(&value.Object{Class: value.ClassOrdinary})
	assert.True(t, IsCloneable(h, value.Obj(objID)))
}
