// Package clone implements the structured clone algorithm used to carry
// values across isolation boundaries (postMessage between engine
// instances, snapshot round-trips): a deep copy that preserves shared and
// circular object identity instead of naively re-walking a Value tree.
package clone

import (
	"fmt"
	"math/big"

	"github.com/qsjs/quicksilver/internal/value"
)

// Error reports why a value could not be structurally cloned.
type Error struct {
	Kind string // "not-cloneable", "max-depth", "not-transferable", "already-transferred"
	What string
	Max  int
}

func (e *Error) Error() string {
	switch e.Kind {
	case "not-cloneable":
		return fmt.Sprintf("could not clone: %s", e.What)
	case "max-depth":
		return fmt.Sprintf("max clone depth %d exceeded", e.Max)
	case "not-transferable":
		return fmt.Sprintf("cannot transfer: %s", e.What)
	case "already-transferred":
		return "object already transferred"
	}
	return "clone error"
}

func notCloneable(what string) error    { return &Error{Kind: "not-cloneable", What: what} }
func notTransferable(what string) error { return &Error{Kind: "not-transferable", What: what} }
func maxDepthExceeded(max int) error    { return &Error{Kind: "max-depth", Max: max} }
func alreadyTransferred() error         { return &Error{Kind: "already-transferred"} }

// Options configures a clone pass. MaxDepth guards against stack overflow
// on pathological input (default 1000, matching the original runtime's
// structured_clone.rs). Transfer lists ArrayBuffer object IDs that should
// move rather than copy: the destination takes the source's backing bytes
// directly and the source is left detached.
type Options struct {
	MaxDepth int
	Transfer []value.ObjectID
}

// DefaultOptions mirrors CloneOptions::default() from the original runtime.
func DefaultOptions() Options { return Options{MaxDepth: 1000} }

type cloner struct {
	heap     *value.Heap
	opts     Options
	transfer map[value.ObjectID]bool
	memo     map[value.ObjectID]value.ObjectID
	depth    int
}

// Value performs a structured clone of v against h, returning a new Value
// that shares no mutable state with v (except where Transfer moves an
// ArrayBuffer's bytes outright). Functions, symbols, classes, generators,
// WeakMap/WeakSet, proxies, and channels are not cloneable and produce an
// error — structured clone only ever walks data.
func Value(h *value.Heap, v value.Value, opts Options) (value.Value, error) {
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	c := &cloner{
		heap:     h,
		opts:     opts,
		transfer: make(map[value.ObjectID]bool, len(opts.Transfer)),
		memo:     make(map[value.ObjectID]value.ObjectID),
	}
	for _, id := range opts.Transfer {
		c.transfer[id] = true
	}
	return c.cloneValue(v)
}

// IsCloneable reports whether v's class of value can ever survive
// structured clone, without actually performing the copy — used by
// postMessage-style call sites to fail fast before doing any work.
func IsCloneable(h *value.Heap, v value.Value) bool {
	switch v.Kind() {
	case value.SymbolKind:
		return false
	case value.ObjectKind:
		obj, ok := h.Get(v.AsObject())
		if !ok {
			return true
		}
		switch obj.Class {
		case value.ClassFunction, value.ClassNativeFunction, value.ClassBoundFunction,
			value.ClassBoundArrayMethod, value.ClassBoundStringMethod, value.ClassClass,
			value.ClassWeakMap, value.ClassWeakSet, value.ClassGenerator, value.ClassChannel,
			value.ClassProxy:
			return false
		}
	}
	return true
}

func (c *cloner) cloneValue(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.Undefined, value.Null, value.Boolean, value.Number, value.String:
		return v, nil
	case value.BigIntKind:
		return value.BigIntVal(new(big.Int).Set(v.AsBigInt())), nil
	case value.SymbolKind:
		return value.Undef, notCloneable("symbol")
	case value.ObjectKind:
		return c.cloneObject(v.AsObject())
	}
	return value.Undef, notCloneable("unknown value")
}

func (c *cloner) cloneObject(id value.ObjectID) (value.Value, error) {
	if c.depth >= c.opts.MaxDepth {
		return value.Undef, maxDepthExceeded(c.opts.MaxDepth)
	}
	if dstID, ok := c.memo[id]; ok {
		return value.Obj(dstID), nil
	}
	obj, ok := c.heap.Get(id)
	if !ok {
		return value.Obj(id), nil
	}

	switch obj.Class {
	case value.ClassFunction, value.ClassNativeFunction, value.ClassBoundFunction,
		value.ClassBoundArrayMethod, value.ClassBoundStringMethod:
		return value.Undef, notCloneable("function")
	case value.ClassClass:
		return value.Undef, notCloneable("class")
	case value.ClassWeakMap:
		return value.Undef, notCloneable("WeakMap")
	case value.ClassWeakSet:
		return value.Undef, notCloneable("WeakSet")
	case value.ClassGenerator:
		return value.Undef, notCloneable("generator")
	case value.ClassChannel:
		return value.Undef, notCloneable("channel")
	case value.ClassProxy:
		return value.Undef, notCloneable("proxy")

	case value.ClassArray:
		return c.cloneArray(id, obj)
	case value.ClassDate:
		return c.cloneLeaf(id, &value.Object{Class: value.ClassDate, EpochMillis: obj.EpochMillis})
	case value.ClassMap:
		return c.cloneMap(id, obj)
	case value.ClassSet:
		return c.cloneSet(id, obj)
	case value.ClassError:
		dst := &value.Object{Class: value.ClassError, ErrorName: obj.ErrorName, ErrorMessage: obj.ErrorMessage, Stack: obj.Stack}
		if obj.HasCause {
			cause, err := c.cloneValue(obj.Cause)
			if err != nil {
				return value.Undef, err
			}
			dst.Cause, dst.HasCause = cause, true
		}
		return c.cloneLeaf(id, dst)
	case value.ClassRegExp:
		return c.cloneLeaf(id, &value.Object{Class: value.ClassRegExp, Pattern: obj.Pattern, Flags: obj.Flags})
	case value.ClassArrayBuffer:
		return c.cloneArrayBuffer(id, obj)
	case value.ClassTypedArray:
		return c.cloneTypedArray(id, obj)
	case value.ClassDataView:
		return c.cloneDataView(id, obj)

	default:
		return c.cloneOrdinary(id, obj)
	}
}

// cloneLeaf allocates dst, registers it against id before any further
// recursion (not needed here since leaves have no nested Values of their
// own beyond what callers already resolved), then copies own properties.
func (c *cloner) cloneLeaf(id value.ObjectID, dst *value.Object) (value.Value, error) {
	dstID := c.heap.Alloc(dst)
	c.memo[id] = dstID
	obj, _ := c.heap.Get(id)
	if err := c.copyProperties(obj, dstID); err != nil {
		return value.Undef, err
	}
	return value.Obj(dstID), nil
}

func (c *cloner) cloneOrdinary(id value.ObjectID, obj *value.Object) (value.Value, error) {
	dstID := c.heap.Alloc(&value.Object{Class: value.ClassOrdinary})
	c.memo[id] = dstID
	if err := c.copyProperties(obj, dstID); err != nil {
		return value.Undef, err
	}
	return value.Obj(dstID), nil
}

func (c *cloner) cloneArray(id value.ObjectID, obj *value.Object) (value.Value, error) {
	dstID := c.heap.Alloc(&value.Object{Class: value.ClassArray})
	c.memo[id] = dstID
	elems := obj.Elements
	c.depth++
	cloned := make([]value.Value, len(elems))
	for i, e := range elems {
		v, err := c.cloneValue(e)
		if err != nil {
			c.depth--
			return value.Undef, err
		}
		cloned[i] = v
	}
	c.depth--
	dst := c.heap.MustGet(dstID)
	dst.Elements = cloned
	if err := c.copyProperties(obj, dstID); err != nil {
		return value.Undef, err
	}
	return value.Obj(dstID), nil
}

func (c *cloner) cloneMap(id value.ObjectID, obj *value.Object) (value.Value, error) {
	dstID := c.heap.Alloc(&value.Object{Class: value.ClassMap})
	c.memo[id] = dstID
	c.depth++
	keys := make([]value.Value, len(obj.MapKeys))
	vals := make([]value.Value, len(obj.MapValues))
	for i := range obj.MapKeys {
		k, err := c.cloneValue(obj.MapKeys[i])
		if err != nil {
			c.depth--
			return value.Undef, err
		}
		v, err := c.cloneValue(obj.MapValues[i])
		if err != nil {
			c.depth--
			return value.Undef, err
		}
		keys[i], vals[i] = k, v
	}
	c.depth--
	dst := c.heap.MustGet(dstID)
	dst.MapKeys, dst.MapValues = keys, vals
	if err := c.copyProperties(obj, dstID); err != nil {
		return value.Undef, err
	}
	return value.Obj(dstID), nil
}

func (c *cloner) cloneSet(id value.ObjectID, obj *value.Object) (value.Value, error) {
	dstID := c.heap.Alloc(&value.Object{Class: value.ClassSet})
	c.memo[id] = dstID
	c.depth++
	elems := make([]value.Value, len(obj.SetValues))
	for i, e := range obj.SetValues {
		v, err := c.cloneValue(e)
		if err != nil {
			c.depth--
			return value.Undef, err
		}
		elems[i] = v
	}
	c.depth--
	dst := c.heap.MustGet(dstID)
	dst.SetValues = elems
	if err := c.copyProperties(obj, dstID); err != nil {
		return value.Undef, err
	}
	return value.Obj(dstID), nil
}

// cloneArrayBuffer copies the backing bytes, unless id is in the transfer
// list — in which case the destination takes the slice directly and the
// source is marked Detached, matching postMessage's transfer semantics
// (the sender can no longer use a transferred buffer afterward).
func (c *cloner) cloneArrayBuffer(id value.ObjectID, obj *value.Object) (value.Value, error) {
	if c.transfer[id] {
		if obj.Detached {
			return value.Undef, alreadyTransferred()
		}
		dstID := c.heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: obj.Bytes})
		c.memo[id] = dstID
		obj.Bytes = nil
		obj.Detached = true
		return value.Obj(dstID), nil
	}
	cp := make([]byte, len(obj.Bytes))
	copy(cp, obj.Bytes)
	dstID := c.heap.Alloc(&value.Object{Class: value.ClassArrayBuffer, Bytes: cp})
	c.memo[id] = dstID
	return value.Obj(dstID), nil
}

// cloneTypedArray and cloneDataView clone their backing ArrayBuffer (via
// cloneObject, so a buffer shared by two typed array views keeps that
// sharing in the clone through the memo table) and copy the view fields.
func (c *cloner) cloneTypedArray(id value.ObjectID, obj *value.Object) (value.Value, error) {
	if c.transfer[obj.Buffer] {
		bufObj, ok := c.heap.Get(obj.Buffer)
		if !ok || bufObj.Class != value.ClassArrayBuffer {
			return value.Undef, notTransferable("typed array buffer")
		}
	}
	bufVal, err := c.cloneObject(obj.Buffer)
	if err != nil {
		return value.Undef, err
	}
	dstID := c.heap.Alloc(&value.Object{
		Class: value.ClassTypedArray, Buffer: bufVal.AsObject(),
		ByteOffset: obj.ByteOffset, ByteLength: obj.ByteLength, ElemKind: obj.ElemKind, Length: obj.Length,
	})
	c.memo[id] = dstID
	return value.Obj(dstID), nil
}

func (c *cloner) cloneDataView(id value.ObjectID, obj *value.Object) (value.Value, error) {
	bufVal, err := c.cloneObject(obj.Buffer)
	if err != nil {
		return value.Undef, err
	}
	dstID := c.heap.Alloc(&value.Object{
		Class: value.ClassDataView, Buffer: bufVal.AsObject(),
		ByteOffset: obj.ByteOffset, ByteLength: obj.ByteLength,
	})
	c.memo[id] = dstID
	return value.Obj(dstID), nil
}

// copyProperties deep-clones src's own enumerable properties into dstID,
// preserving PropOrder — called after dstID is already memoized against
// src's identity so a property cycling back to src resolves correctly.
func (c *cloner) copyProperties(src *value.Object, dstID value.ObjectID) error {
	c.depth++
	defer func() { c.depth-- }()
	for _, k := range src.PropOrder {
		v, err := c.cloneValue(src.Props[k])
		if err != nil {
			return err
		}
		value.SetProperty(c.heap, dstID, k, v)
	}
	return nil
}
