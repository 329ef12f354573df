package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// toNumericUnary implements the ToNumeric operand coercion OpNeg needs:
// BigInt operands stay BigInt (negate works on either representation
// directly), everything else coerces through toNumber.
func (vm *VM) toNumericUnary(v value.Value) (value.Value, error) {
	if v.Kind() == value.BigIntKind {
		return v, nil
	}
	n, err := vm.toNumber(v)
	if err != nil {
		return value.Undef, err
	}
	return value.Num(n), nil
}

// toNumber implements JS's ToNumber abstract operation for the primitive
// kinds reachable from bytecode. Objects are not converted to a primitive
// first (no valueOf or toString call): every object, Date included,
// becomes NaN.
func (vm *VM) toNumber(v value.Value) (float64, error) {
	switch v.Kind() {
	case value.Number:
		return v.AsNumber(), nil
	case value.Undefined:
		return math.NaN(), nil
	case value.Null:
		return 0, nil
	case value.Boolean:
		if v.AsBool() {
			return 1, nil
		}
		return 0, nil
	case value.String:
		return stringToNumber(v.AsString()), nil
	case value.BigIntKind:
		return 0, vm.throwError("TypeError", "cannot convert a BigInt value to a number")
	case value.ObjectKind:
		return math.NaN(), nil
	default:
		return math.NaN(), nil
	}
}

func stringToNumber(s string) float64 {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0
	}
	switch t {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// toInt32 implements ToInt32 (OpBitNot, and any future shift/bitwise host
// call sites): NaN/Infinity coerce to 0, otherwise wraps modulo 2^32.
func (vm *VM) toInt32(v value.Value) (int32, error) {
	n, err := vm.toNumber(v)
	if err != nil {
		return 0, err
	}
	return toInt32(n), nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	u := uint32(int64(math.Trunc(f)))
	return int32(u)
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Trunc(f)))
}

// typeofValue implements the `typeof` operator; never throws (an
// undeclared identifier arrives here as undefined, since OpLoadGlobal
// pushes undefined for a missing global when OpTypeof follows).
func (vm *VM) typeofValue(v value.Value) string {
	switch v.Kind() {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "object"
	case value.Boolean:
		return "boolean"
	case value.Number:
		return "number"
	case value.BigIntKind:
		return "bigint"
	case value.String:
		return "string"
	case value.SymbolKind:
		return "symbol"
	case value.ObjectKind:
		obj, ok := vm.Heap.Get(v.AsObject())
		if !ok {
			return "object"
		}
		switch obj.Class {
		case value.ClassFunction, value.ClassNativeFunction, value.ClassClass,
			value.ClassBoundFunction, value.ClassBoundStringMethod, value.ClassBoundArrayMethod:
			return "function"
		default:
			return "object"
		}
	}
	return "undefined"
}

// deleteProperty implements the `delete` operator: true on success or when
// the receiver has no such own property (matching the non-strict-mode
// spec.md semantics used throughout this VM), false only for a
// non-configurable case this implementation doesn't model separately.
func (vm *VM) deleteProperty(receiver value.Value, key string) bool {
	if !receiver.IsObject() {
		return true
	}
	id := receiver.AsObject()
	obj, ok := vm.Heap.Get(id)
	if !ok {
		return true
	}
	if obj.Class == value.ClassProxy {
		return vm.proxyDelete(obj, key)
	}
	if obj.Class == value.ClassArray {
		if idx, ok := arrayIndex(key); ok && idx < len(obj.Elements) {
			obj.Elements[idx] = value.Undef
			return true
		}
	}
	value.DeleteProperty(vm.Heap, id, key)
	return true
}

// binaryOp dispatches every OpAdd..OpInstanceof opcode. Arithmetic/bitwise
// ops coerce through ToNumber (or stay BigInt when both operands already
// are, per spec.md's "BigInt never silently widens to Number" invariant);
// OpAdd alone special-cases string concatenation, per ToPrimitive's
// string-preferring behavior when either operand is already a string.
func (vm *VM) binaryOp(op bytecode.Op, lhs, rhs value.Value) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return vm.add(lhs, rhs)
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpExp:
		return vm.arith(op, lhs, rhs)
	case bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr, bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor:
		return vm.bitwise(op, lhs, rhs)
	case bytecode.OpLess, bytecode.OpLessEq, bytecode.OpGreater, bytecode.OpGreaterEq:
		return vm.relational(op, lhs, rhs)
	case bytecode.OpEqual:
		return value.Bool(vm.looseEqual(lhs, rhs)), nil
	case bytecode.OpNotEqual:
		return value.Bool(!vm.looseEqual(lhs, rhs)), nil
	case bytecode.OpStrictEqual:
		return value.Bool(value.SameValueZero(lhs, rhs) && !(lhs.Kind() == value.Number && math.IsNaN(lhs.AsNumber()))), nil
	case bytecode.OpStrictNotEqual:
		return value.Bool(!value.SameValueZero(lhs, rhs) || (lhs.Kind() == value.Number && math.IsNaN(lhs.AsNumber()))), nil
	case bytecode.OpIn:
		return vm.inOperator(lhs, rhs)
	case bytecode.OpInstanceof:
		return vm.instanceofOperator(lhs, rhs)
	default:
		return value.Undef, vm.throwError("SyntaxError", "unsupported binary operator")
	}
}

func (vm *VM) add(lhs, rhs value.Value) (value.Value, error) {
	if lhs.Kind() == value.BigIntKind && rhs.Kind() == value.BigIntKind {
		return value.BigIntVal(new(big.Int).Add(lhs.AsBigInt(), rhs.AsBigInt())), nil
	}
	if lhs.Kind() == value.String || rhs.Kind() == value.String ||
		(lhs.Kind() == value.ObjectKind) || (rhs.Kind() == value.ObjectKind) {
		if lhs.Kind() == value.String || rhs.Kind() == value.String ||
			(lhs.Kind() != value.BigIntKind && rhs.Kind() != value.BigIntKind) {
			return value.Str(vm.toDisplayString(lhs) + vm.toDisplayString(rhs)), nil
		}
	}
	ln, err := vm.toNumber(lhs)
	if err != nil {
		return value.Undef, err
	}
	rn, err := vm.toNumber(rhs)
	if err != nil {
		return value.Undef, err
	}
	return value.Num(ln + rn), nil
}

func (vm *VM) arith(op bytecode.Op, lhs, rhs value.Value) (value.Value, error) {
	if lhs.Kind() == value.BigIntKind && rhs.Kind() == value.BigIntKind {
		a, b := lhs.AsBigInt(), rhs.AsBigInt()
		switch op {
		case bytecode.OpSub:
			return value.BigIntVal(new(big.Int).Sub(a, b)), nil
		case bytecode.OpMul:
			return value.BigIntVal(new(big.Int).Mul(a, b)), nil
		case bytecode.OpDiv:
			if b.Sign() == 0 {
				return value.Undef, vm.throwError("RangeError", "division by zero")
			}
			return value.BigIntVal(new(big.Int).Quo(a, b)), nil
		case bytecode.OpMod:
			if b.Sign() == 0 {
				return value.Undef, vm.throwError("RangeError", "division by zero")
			}
			return value.BigIntVal(new(big.Int).Rem(a, b)), nil
		case bytecode.OpExp:
			return value.BigIntVal(new(big.Int).Exp(a, b, nil)), nil
		}
	}
	ln, err := vm.toNumber(lhs)
	if err != nil {
		return value.Undef, err
	}
	rn, err := vm.toNumber(rhs)
	if err != nil {
		return value.Undef, err
	}
	switch op {
	case bytecode.OpSub:
		return value.Num(ln - rn), nil
	case bytecode.OpMul:
		return value.Num(ln * rn), nil
	case bytecode.OpDiv:
		return value.Num(ln / rn), nil
	case bytecode.OpMod:
		return value.Num(math.Mod(ln, rn)), nil
	case bytecode.OpExp:
		return value.Num(math.Pow(ln, rn)), nil
	}
	return value.Undef, nil
}

func (vm *VM) bitwise(op bytecode.Op, lhs, rhs value.Value) (value.Value, error) {
	if lhs.Kind() == value.BigIntKind && rhs.Kind() == value.BigIntKind {
		a, b := lhs.AsBigInt(), rhs.AsBigInt()
		switch op {
		case bytecode.OpBitAnd:
			return value.BigIntVal(new(big.Int).And(a, b)), nil
		case bytecode.OpBitOr:
			return value.BigIntVal(new(big.Int).Or(a, b)), nil
		case bytecode.OpBitXor:
			return value.BigIntVal(new(big.Int).Xor(a, b)), nil
		case bytecode.OpShl:
			return value.BigIntVal(new(big.Int).Lsh(a, uint(b.Int64()))), nil
		case bytecode.OpShr:
			return value.BigIntVal(new(big.Int).Rsh(a, uint(b.Int64()))), nil
		}
	}
	switch op {
	case bytecode.OpUShr:
		l, err := vm.toNumber(lhs)
		if err != nil {
			return value.Undef, err
		}
		r, err := vm.toNumber(rhs)
		if err != nil {
			return value.Undef, err
		}
		shift := toUint32(r) & 31
		return value.Num(float64(toUint32(l) >> shift)), nil
	}
	li, err := vm.toInt32(lhs)
	if err != nil {
		return value.Undef, err
	}
	ri, err := vm.toInt32(rhs)
	if err != nil {
		return value.Undef, err
	}
	switch op {
	case bytecode.OpShl:
		return value.Num(float64(li << (uint32(ri) & 31))), nil
	case bytecode.OpShr:
		return value.Num(float64(li >> (uint32(ri) & 31))), nil
	case bytecode.OpBitAnd:
		return value.Num(float64(li & ri)), nil
	case bytecode.OpBitOr:
		return value.Num(float64(li | ri)), nil
	case bytecode.OpBitXor:
		return value.Num(float64(li ^ ri)), nil
	}
	return value.Undef, nil
}

func (vm *VM) relational(op bytecode.Op, lhs, rhs value.Value) (value.Value, error) {
	if lhs.Kind() == value.String && rhs.Kind() == value.String {
		a, b := lhs.AsString(), rhs.AsString()
		switch op {
		case bytecode.OpLess:
			return value.Bool(a < b), nil
		case bytecode.OpLessEq:
			return value.Bool(a <= b), nil
		case bytecode.OpGreater:
			return value.Bool(a > b), nil
		case bytecode.OpGreaterEq:
			return value.Bool(a >= b), nil
		}
	}
	if lhs.Kind() == value.BigIntKind && rhs.Kind() == value.BigIntKind {
		c := lhs.AsBigInt().Cmp(rhs.AsBigInt())
		switch op {
		case bytecode.OpLess:
			return value.Bool(c < 0), nil
		case bytecode.OpLessEq:
			return value.Bool(c <= 0), nil
		case bytecode.OpGreater:
			return value.Bool(c > 0), nil
		case bytecode.OpGreaterEq:
			return value.Bool(c >= 0), nil
		}
	}
	// A BigInt compared against a Number is permitted relationally (only
	// the arithmetic operators forbid implicit BigInt/Number mixing) —
	// compare mathematical values via big.Float rather than routing
	// through toNumber, which would reject the BigInt operand outright.
	if lhs.Kind() == value.BigIntKind || rhs.Kind() == value.BigIntKind {
		var bigSide *big.Int
		var numSide float64
		bigIsLeft := lhs.Kind() == value.BigIntKind
		if bigIsLeft {
			bigSide = lhs.AsBigInt()
			n, err := vm.toNumber(rhs)
			if err != nil {
				return value.Undef, err
			}
			numSide = n
		} else {
			bigSide = rhs.AsBigInt()
			n, err := vm.toNumber(lhs)
			if err != nil {
				return value.Undef, err
			}
			numSide = n
		}
		if math.IsNaN(numSide) {
			return value.False, nil
		}
		c := new(big.Float).SetInt(bigSide).Cmp(big.NewFloat(numSide))
		if !bigIsLeft {
			c = -c
		}
		switch op {
		case bytecode.OpLess:
			return value.Bool(c < 0), nil
		case bytecode.OpLessEq:
			return value.Bool(c <= 0), nil
		case bytecode.OpGreater:
			return value.Bool(c > 0), nil
		case bytecode.OpGreaterEq:
			return value.Bool(c >= 0), nil
		}
	}
	ln, err := vm.toNumber(lhs)
	if err != nil {
		return value.Undef, err
	}
	rn, err := vm.toNumber(rhs)
	if err != nil {
		return value.Undef, err
	}
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return value.False, nil
	}
	switch op {
	case bytecode.OpLess:
		return value.Bool(ln < rn), nil
	case bytecode.OpLessEq:
		return value.Bool(ln <= rn), nil
	case bytecode.OpGreater:
		return value.Bool(ln > rn), nil
	case bytecode.OpGreaterEq:
		return value.Bool(ln >= rn), nil
	}
	return value.Undef, nil
}

// looseEqual implements the `==` abstract equality comparison for the
// kind-pairs reachable at this VM layer: same-kind falls back to strict
// equality, Null/Undefined are mutually (and only self-) equal, and the
// remaining numeric-ish cross-kind pairs coerce through ToNumber.
func (vm *VM) looseEqual(lhs, rhs value.Value) bool {
	if lhs.Kind() == rhs.Kind() {
		return value.SameValueZero(lhs, rhs) && !(lhs.Kind() == value.Number && math.IsNaN(lhs.AsNumber()))
	}
	if lhs.IsNullish() && rhs.IsNullish() {
		return true
	}
	if lhs.IsNullish() || rhs.IsNullish() {
		return false
	}
	if lhs.Kind() == value.BigIntKind || rhs.Kind() == value.BigIntKind {
		var bigSide *big.Int
		other := rhs
		if lhs.Kind() == value.BigIntKind {
			bigSide = lhs.AsBigInt()
		} else {
			bigSide = rhs.AsBigInt()
			other = lhs
		}
		n, err := vm.toNumber(other)
		if err != nil || math.IsNaN(n) {
			return false
		}
		return new(big.Float).SetInt(bigSide).Cmp(big.NewFloat(n)) == 0
	}
	ln, errL := vm.toNumber(lhs)
	rn, errR := vm.toNumber(rhs)
	if errL != nil || errR != nil {
		return false
	}
	return ln == rn
}

func (vm *VM) inOperator(lhs, rhs value.Value) (value.Value, error) {
	if !rhs.IsObject() {
		return value.Undef, vm.throwError("TypeError", "cannot use 'in' operator on a non-object")
	}
	key := vm.toPropertyKey(lhs)
	id := rhs.AsObject()
	obj, ok := vm.Heap.Get(id)
	if !ok {
		return value.False, nil
	}
	if _, ok := obj.Props[key]; ok {
		return value.True, nil
	}
	if obj.Class == value.ClassArray {
		if key == "length" {
			return value.True, nil
		}
		if idx, ok := arrayIndex(key); ok && idx < len(obj.Elements) {
			return value.True, nil
		}
	}
	if obj.Class == value.ClassClass {
		if _, ok := obj.StaticMethods[key]; ok {
			return value.True, nil
		}
		if _, ok := obj.StaticGetters[key]; ok {
			return value.True, nil
		}
	}
	if obj.HasProto {
		if proto, ok := vm.Heap.Get(obj.Prototype); ok && proto.Class == value.ClassClass {
			for cur := obj.Prototype; ; {
				cls, ok := vm.Heap.Get(cur)
				if !ok {
					break
				}
				if _, ok := cls.Methods[key]; ok {
					return value.True, nil
				}
				if _, ok := cls.Getters[key]; ok {
					return value.True, nil
				}
				if !cls.HasSuper {
					break
				}
				cur = cls.SuperClass
			}
			return value.False, nil
		}
		return vm.inOperator(lhs, value.Obj(obj.Prototype))
	}
	return value.False, nil
}

func (vm *VM) instanceofOperator(lhs, rhs value.Value) (value.Value, error) {
	if !rhs.IsObject() {
		return value.Undef, vm.throwError("TypeError", "right-hand side of 'instanceof' is not callable")
	}
	ctor, ok := vm.Heap.Get(rhs.AsObject())
	if !ok || ctor.Class != value.ClassClass {
		return value.Undef, vm.throwError("TypeError", "right-hand side of 'instanceof' is not a class constructor")
	}
	if !lhs.IsObject() {
		return value.False, nil
	}
	inst, ok := vm.Heap.Get(lhs.AsObject())
	if !ok || !inst.HasProto {
		return value.False, nil
	}
	for cur := inst.Prototype; ; {
		if cur == rhs.AsObject() {
			return value.True, nil
		}
		cls, ok := vm.Heap.Get(cur)
		if !ok || !cls.HasSuper {
			return value.False, nil
		}
		cur = cls.SuperClass
	}
}
