// Package value implements the tagged Value union and the ObjectID-indexed
// Heap arena that backs every mutable JavaScript object. This departs from
// the spec's literal "reference-counted shared-mutable Object" description
// per the REDESIGN FLAG in spec.md §9: objects live in a Heap slab indexed
// by ObjectID, each slot carrying a generation counter so a stale ObjectID
// from a freed slot is detectable instead of silently aliasing a reused
// slot. Heap.Collect implements a stop-the-world mark-sweep pass;
// internal/vm never invokes it, so objects are not freed during a run.
package value

import (
	"math"
	"math/big"
)

// Kind tags a Value's variant.
type Kind byte

const (
	Undefined Kind = iota
	Null
	Boolean
	Number
	BigIntKind
	String
	SymbolKind
	ObjectKind
)

// Symbol is a unique, possibly-named identity. Two Symbols are equal only
// by identity (pointer equality on *Symbol), except those returned by
// Symbol.for, which are interned by key.
type Symbol struct {
	Description string
	id          uint64
}

// Value is the tagged union every JS expression evaluates to. Exactly one
// of the typed fields is meaningful, selected by Kind; this mirrors the
// teacher's style of small plain structs over interface{}-heavy designs
// where performance and GC pressure matter.
type Value struct {
	kind Kind
	num  float64
	str  string
	bi   *big.Int
	sym  *Symbol
	obj  ObjectID
}

func (v Value) Kind() Kind { return v.kind }

var (
	Undef = Value{kind: Undefined}
	Nul   = Value{kind: Null}
	True  = Value{kind: Boolean, num: 1}
	False = Value{kind: Boolean, num: 0}
)

func Num(n float64) Value    { return Value{kind: Number, num: n} }
func Str(s string) Value     { return Value{kind: String, str: s} }
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}
func BigIntVal(b *big.Int) Value { return Value{kind: BigIntKind, bi: b} }
func SymVal(s *Symbol) Value     { return Value{kind: SymbolKind, sym: s} }
func Obj(id ObjectID) Value      { return Value{kind: ObjectKind, obj: id} }

func (v Value) IsUndefined() bool { return v.kind == Undefined }
func (v Value) IsNull() bool      { return v.kind == Null }
func (v Value) IsNullish() bool   { return v.kind == Undefined || v.kind == Null }
func (v Value) IsObject() bool    { return v.kind == ObjectKind }

func (v Value) AsNumber() float64  { return v.num }
func (v Value) AsBool() bool       { return v.num != 0 }
func (v Value) AsString() string   { return v.str }
func (v Value) AsBigInt() *big.Int { return v.bi }
func (v Value) AsSymbol() *Symbol  { return v.sym }
func (v Value) AsObject() ObjectID { return v.obj }

// Truthy implements JS ToBoolean.
func (v Value) Truthy() bool {
	switch v.kind {
	case Undefined, Null:
		return false
	case Boolean:
		return v.num != 0
	case Number:
		return v.num != 0 && !isNaN(v.num)
	case String:
		return v.str != ""
	case BigIntKind:
		return v.bi.Sign() != 0
	default:
		return true
	}
}

func isNaN(f float64) bool { return f != f }

// SameValueZero implements the equality used by Map/Set key comparison and
// Array.prototype.includes: like ===, but NaN equals NaN.
func SameValueZero(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Undefined, Null:
		return true
	case Boolean, Number:
		if isNaN(a.num) && isNaN(b.num) {
			return true
		}
		return a.num == b.num
	case String:
		return a.str == b.str
	case BigIntKind:
		return a.bi.Cmp(b.bi) == 0
	case SymbolKind:
		return a.sym == b.sym
	case ObjectKind:
		return a.obj == b.obj
	}
	return false
}

// SameValue implements Object.is: like SameValueZero but distinguishes +0
// from -0.
func SameValue(a, b Value) bool {
	if a.kind == Number && b.kind == Number {
		if a.num == 0 && b.num == 0 {
			return isNegZero(a.num) == isNegZero(b.num)
		}
	}
	return SameValueZero(a, b)
}

func isNegZero(f float64) bool {
	return f == 0 && math.Signbit(f)
}
