package value

import "fmt"

// ObjectID is an index into a Heap arena plus an implicit generation
// check (the generation itself lives in the Heap slot, not the ID) —
// callers that need staleness detection (WeakMap/WeakSet/
// FinalizationRegistry) pair an ObjectID with the Generation observed at
// capture time and compare it against Heap.Generation(id) later.
type ObjectID uint32

// ObjectClass is the closed set of object kinds from spec.md §3.
type ObjectClass int

const (
	ClassOrdinary ObjectClass = iota
	ClassArray
	ClassFunction
	ClassNativeFunction
	ClassClass
	ClassError
	ClassPromise
	ClassIterator
	ClassDate
	ClassMap
	ClassSet
	ClassWeakMap
	ClassWeakSet
	ClassRegExp
	ClassGenerator
	ClassProxy
	ClassArrayBuffer
	ClassTypedArray
	ClassDataView
	ClassBoundArrayMethod
	ClassBoundStringMethod
	ClassBoundFunction
	ClassURL
	ClassURLSearchParams
	ClassChannel
	ClassSpreadMarker
)

// PromiseState is Pending/Fulfilled/Rejected.
type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// GeneratorState tracks a Generator object's suspend/resume lifecycle.
type GeneratorState int

const (
	GeneratorSuspended GeneratorState = iota
	GeneratorExecuting
	GeneratorCompleted
)

// WeakKey pairs an ObjectID with the generation it was captured at, so
// WeakMap/WeakSet lookups can detect a collected referent.
type WeakKey struct {
	ID         ObjectID
	Generation uint32
}

// Object is the payload every Heap slot holds. Only the fields relevant to
// Class are populated; this mirrors the teacher's preference for plain
// structs over many small allocations.
type Object struct {
	Class     ObjectClass
	Props     map[string]Value
	PropOrder []string // insertion order, needed by Object.keys/JSON.stringify
	Private   map[string]Value
	Prototype ObjectID // 0 (NullObjectID) means no prototype
	HasProto  bool

	// Array
	Elements []Value

	// Function / Closure
	Chunk       any // *bytecode.Chunk; any to avoid an import cycle
	Upvalues    []*Upvalue
	Name        string
	ThisUpvalue bool

	// HomeObject is the object (class prototype, or the class itself for
	// static methods) a method/getter/setter was defined on, used to
	// resolve `super.x`/`super(...)` without threading a hidden binding
	// through every closure: HomeObject.Prototype is the super lookup
	// target, and (for HomeObject's own Class object) SuperClass is the
	// super constructor.
	HomeObject    ObjectID
	HasHomeObject bool

	// NativeFunction
	Native func(ctx NativeContext, this Value, args []Value) (Value, error)

	// Class
	CtorChunk        any
	SuperClass       ObjectID
	HasSuper         bool
	Methods          map[string]ObjectID
	Getters          map[string]ObjectID
	Setters          map[string]ObjectID
	StaticMethods    map[string]ObjectID
	StaticGetters    map[string]ObjectID
	StaticSetters    map[string]ObjectID
	InstanceFieldsFn any // *bytecode.Chunk run with `this` bound to the fresh instance, set by OpNewClass's handler

	// Error
	ErrorName    string
	ErrorMessage string
	Stack        string
	Cause        Value
	HasCause     bool

	// Promise
	PromiseState    PromiseState
	PromiseValue    Value
	FulfillReactions []Reaction
	RejectReactions  []Reaction
	Handled          bool

	// Iterator / Generator
	IterValues []Value
	IterIndex  int
	IterNextFn func() (Value, bool, error)

	GenState   GeneratorState
	GenFrame   any // *vm.Frame snapshot; any to avoid import cycle

	// Date
	EpochMillis float64

	// Map / Set preserve insertion order via parallel slices.
	MapKeys   []Value
	MapValues []Value

	SetValues []Value

	// WeakMap / WeakSet
	WeakEntries map[WeakKey]Value
	WeakValues  map[WeakKey]bool

	// RegExp
	Pattern   string
	Flags     string
	LastIndex int

	// Proxy
	ProxyTarget  ObjectID
	ProxyHandler ObjectID
	Revoked      bool

	// ArrayBuffer
	Bytes     []byte
	Detached  bool

	// TypedArray / DataView
	Buffer     ObjectID
	ByteOffset int
	ByteLength int
	ElemKind   TypedArrayKind
	Length     int

	// BoundStringMethod / BoundArrayMethod (an array method keeps its
	// receiver in BoundTarget instead of BoundReceiver)
	BoundReceiver Value
	BoundName     string

	// BoundFunction
	BoundTarget ObjectID
	BoundThis   Value
	BoundArgs   []Value

	// URL / URLSearchParams
	URLParts  map[string]string
	URLQuery  [][2]string

	// Channel
	ChanCapacity int
}

// Reaction is a pending then/catch callback subscribed to a Promise.
type Reaction struct {
	OnFulfilled ObjectID // 0 if absent
	HasFulfill  bool
	OnRejected  ObjectID
	HasReject   bool
	ResultPromise ObjectID
}

// TypedArrayKind enumerates the nine TypedArray element kinds.
type TypedArrayKind int

const (
	TAInt8 TypedArrayKind = iota
	TAUint8
	TAUint8Clamped
	TAInt16
	TAUint16
	TAInt32
	TAUint32
	TAFloat32
	TAFloat64
)

func (k TypedArrayKind) ByteSize() int {
	switch k {
	case TAInt8, TAUint8, TAUint8Clamped:
		return 1
	case TAInt16, TAUint16:
		return 2
	case TAInt32, TAUint32, TAFloat32:
		return 4
	case TAFloat64:
		return 8
	}
	return 1
}

// Upvalue is a mutable cell shared between a stack frame's local slot
// (while open) and every closure that captured it. CloseUpvalues (in
// internal/vm) copies the stack value in and flips Open to false so the
// cell survives frame exit.
type Upvalue struct {
	Open     bool
	StackIdx int // valid while Open
	Closed   Value
}

// NativeContext is implemented by internal/vm.HostContext; declared here
// as an interface to avoid an import cycle between value and vm/host.
type NativeContext interface {
	EnqueueMicrotask(fn func())
	RegisterTimer(delayMillis float64, repeat bool, fn func()) uint32
	CancelTimer(id uint32)
}

const NullObjectID ObjectID = 0

// slot is one Heap arena entry: a live object, or (once freed) a tombstone
// that bumps Generation so stale ObjectIDs are detectable.
type slot struct {
	obj        *Object
	generation uint32
	live       bool
}

// Heap is the ObjectID-indexed arena backing every mutable object. Slot 0
// is permanently reserved (NullObjectID) so zero-valued ObjectIDs are
// never confused with a real allocation.
type Heap struct {
	slots []slot
	free  []ObjectID
}

// NewHeap returns an empty arena with slot 0 reserved.
func NewHeap() *Heap {
	h := &Heap{}
	h.slots = append(h.slots, slot{})
	return h
}

// Alloc stores obj in a fresh or recycled slot and returns its ObjectID.
func (h *Heap) Alloc(obj *Object) ObjectID {
	if n := len(h.free); n > 0 {
		id := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[id].obj = obj
		h.slots[id].live = true
		return id
	}
	id := ObjectID(len(h.slots))
	h.slots = append(h.slots, slot{obj: obj, live: true})
	return id
}

// Get returns the object at id, or (nil, false) if id is stale or freed.
func (h *Heap) Get(id ObjectID) (*Object, bool) {
	if int(id) <= 0 || int(id) >= len(h.slots) {
		return nil, false
	}
	s := &h.slots[id]
	if !s.live {
		return nil, false
	}
	return s.obj, true
}

// MustGet panics if id does not reference a live object — used in VM paths
// where the compiler has already guaranteed validity.
func (h *Heap) MustGet(id ObjectID) *Object {
	obj, ok := h.Get(id)
	if !ok {
		panic(fmt.Sprintf("value: dangling ObjectID %d", id))
	}
	return obj
}

// Generation returns the current generation counter for id's slot, used by
// WeakMap/WeakSet to detect a since-collected referent.
func (h *Heap) Generation(id ObjectID) uint32 {
	if int(id) <= 0 || int(id) >= len(h.slots) {
		return 0
	}
	return h.slots[id].generation
}

// WeakKeyFor captures id's current generation into a WeakKey.
func (h *Heap) WeakKeyFor(id ObjectID) WeakKey {
	return WeakKey{ID: id, Generation: h.Generation(id)}
}

// IsLive reports whether key's generation still matches the slot's
// current generation (i.e. the referent has not been collected since).
func (h *Heap) IsLive(key WeakKey) bool {
	return h.Generation(key.ID) == key.Generation
}

// free marks id's slot dead, bumps its generation, and returns it to the
// free list. Its callers are Collect's sweep phase and Free.
func (h *Heap) free_(id ObjectID) {
	s := &h.slots[id]
	s.obj = nil
	s.live = false
	s.generation++
	h.free = append(h.free, id)
}

// Free is the exported form of free_: it frees id's slot at once,
// whether or not anything still refers to it.
func (h *Heap) Free(id ObjectID) { h.free_(id) }

// Len returns the number of allocated slots (including freed ones still
// awaiting reuse).
func (h *Heap) Len() int { return len(h.slots) }

// Live reports whether slot id currently holds a live object — used by
// Collect's mark phase to skip stale or freed IDs.
func (h *Heap) Live(id ObjectID) bool {
	if int(id) <= 0 || int(id) >= len(h.slots) {
		return false
	}
	return h.slots[id].live
}

// Each calls fn for every currently live ObjectID, in slot order.
func (h *Heap) Each(fn func(ObjectID, *Object)) {
	for i := 1; i < len(h.slots); i++ {
		if h.slots[i].live {
			fn(ObjectID(i), h.slots[i].obj)
		}
	}
}
