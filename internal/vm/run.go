package vm

import (
	"math/big"

	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// run executes frames until the frame that was on top when run was called
// returns, then yields that return value. Only a tail call (tryTailEnter)
// collapses its frame in place and `continue`s this same loop without
// recursing; an ordinary call goes through callValue/invoke, which pushes a
// frame and recurses into a nested run() call — vm.runStops tracks one
// floor per such nesting level so dispatchThrow never reaches past an
// outer, still-suspended run()'s own frames.
func (vm *VM) run() (retVal value.Value, retErr error) {
	stopAt := len(vm.Frames) - 1
	f := vm.frame()
	vm.runStops = append(vm.runStops, stopAt)
	defer func() { vm.runStops = vm.runStops[:len(vm.runStops)-1] }()
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(unwindError)
			if !ok {
				panic(r)
			}
			retVal, retErr = value.Undef, u.err
		}
	}()

	// A resumed async call whose awaited promise rejected: dispatchThrow is
	// safe here (unlike the generator .throw() resume path) because
	// runStops already has this exact call's own floor pushed just above.
	if vm.pendingAwaitThrow != nil {
		pending := vm.pendingAwaitThrow
		vm.pendingAwaitThrow = nil
		vm.dispatchThrow(&f, pending)
	}

dispatch:
	for {
		op := bytecode.Op(vm.readByte(f))
		switch op {
		case bytecode.OpConstant:
			idx := vm.readUint16(f)
			vm.push(vm.resolveConstant(f, idx))

		case bytecode.OpUndefined:
			vm.push(value.Undef)
		case bytecode.OpNull:
			vm.push(value.Nul)
		case bytecode.OpTrue:
			vm.push(value.True)
		case bytecode.OpFalse:
			vm.push(value.False)
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			vm.push(vm.peek(0))
		case bytecode.OpSwapPop:
			top := vm.pop()
			vm.pop()
			vm.push(top)

		case bytecode.OpLoadLocal:
			idx := vm.readUint16(f)
			vm.push(vm.Stack[f.Base+int(idx)])
		case bytecode.OpStoreLocal:
			idx := vm.readUint16(f)
			vm.Stack[f.Base+int(idx)] = vm.peek(0)
		case bytecode.OpLoadUpvalue:
			idx := vm.readUint16(f)
			fn := vm.Heap.MustGet(f.FnID)
			vm.push(vm.upvalueGet(fn.Upvalues[idx]))
		case bytecode.OpStoreUpvalue:
			idx := vm.readUint16(f)
			fn := vm.Heap.MustGet(f.FnID)
			vm.upvalueSet(fn.Upvalues[idx], vm.peek(0))
		case bytecode.OpLoadGlobal:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			v, ok := vm.Globals[name]
			if !ok {
				// `typeof name` on an undeclared global yields "undefined"
				// instead of throwing.
				if f.IP < len(f.Chunk.Code) && bytecode.Op(f.Chunk.Code[f.IP]) == bytecode.OpTypeof {
					vm.push(value.Undef)
					break
				}
				if vm.dispatchThrow(&f, vm.throwError("ReferenceError", "%s is not defined", name)) {
					continue
				}
				return value.Undef, vm.throwError("ReferenceError", "%s is not defined", name)
			}
			vm.push(v)
		case bytecode.OpStoreGlobal:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			if _, ok := vm.Globals[name]; !ok {
				if vm.dispatchThrow(&f, vm.throwError("ReferenceError", "%s is not defined", name)) {
					continue
				}
				return value.Undef, vm.throwError("ReferenceError", "%s is not defined", name)
			}
			vm.Globals[name] = vm.peek(0)
		case bytecode.OpDefineGlobal:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			vm.Globals[name] = vm.pop()
		case bytecode.OpLoadThis:
			vm.push(f.This)

		case bytecode.OpGetProperty, bytecode.OpGetPropertyOptional:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			recv := vm.pop()
			if op == bytecode.OpGetPropertyOptional && recv.IsNullish() {
				vm.push(value.Undef)
				break
			}
			v, err := vm.getProperty(recv, name)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(v)
		case bytecode.OpSetProperty:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			v := vm.pop()
			recv := vm.pop()
			err := vm.setProperty(recv, name, v)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(v)
		case bytecode.OpGetIndex:
			key := vm.pop()
			recv := vm.pop()
			v, err := vm.getIndex(recv, key)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(v)
		case bytecode.OpSetIndex:
			v := vm.pop()
			key := vm.pop()
			recv := vm.pop()
			err := vm.setIndex(recv, key, v)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(v)

		case bytecode.OpGetSuperProperty:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			home := vm.Heap.MustGet(f.FnID)
			v, err := vm.getSuperProperty(home.HomeObject, f.This, name)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(v)

		case bytecode.OpSuperCall:
			argc := vm.readUint16(f)
			args := vm.readCallArgs(f, int(argc))
			home := vm.Heap.MustGet(f.FnID)
			superCls := vm.Heap.MustGet(home.HomeObject)
			if !superCls.HasSuper {
				if vm.dispatchThrow(&f, vm.throwError("SyntaxError", "'super' keyword is only valid inside a derived class constructor")) {
					continue
				}
			}
			if err := vm.runSuperConstructor(superCls.SuperClass, f.This, args); vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(value.Undef)

		case bytecode.OpCall:
			argc := vm.readUint16(f)
			args := vm.readCallArgs(f, int(argc))
			callee := vm.pop()
			if vm.tryTailEnter(&f, callee, value.Undef, args, stopAt) {
				continue
			}
			result, err := vm.callValue(callee, value.Undef, args, value.Undef)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(result)

		case bytecode.OpTailCall:
			argc := vm.readUint16(f)
			args := vm.readCallArgs(f, int(argc))
			callee := vm.pop()
			result, err := vm.callValue(callee, value.Undef, args, value.Undef)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(result)

		case bytecode.OpCallMethod:
			argc := vm.readUint16(f)
			args := vm.readCallArgs(f, int(argc))
			method := vm.pop()
			receiver := vm.pop()
			result, err := vm.callValue(method, receiver, args, value.Undef)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(result)

		case bytecode.OpConstruct:
			argc := vm.readUint16(f)
			args := vm.readCallArgs(f, int(argc))
			callee := vm.pop()
			result, err := vm.constructValue(callee, args)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(result)

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.Base)
			vm.Stack = vm.Stack[:f.Base]
			vm.Frames = vm.Frames[:len(vm.Frames)-1]
			if len(vm.Frames) <= stopAt {
				return result, nil
			}
			f = vm.frame()
			vm.push(result)

		case bytecode.OpJump:
			target := vm.readUint16(f)
			f.IP = int(target)
		case bytecode.OpJumpIfFalse:
			target := vm.readUint16(f)
			if !vm.peek(0).Truthy() {
				f.IP = int(target)
			}
		case bytecode.OpJumpIfTrue:
			target := vm.readUint16(f)
			if vm.peek(0).Truthy() {
				f.IP = int(target)
			}
		case bytecode.OpJumpIfNullish:
			target := vm.readUint16(f)
			if vm.peek(0).IsNullish() {
				f.IP = int(target)
			}
		case bytecode.OpLoop:
			target := vm.readUint16(f)
			f.IP = int(target)

		case bytecode.OpAnd:
			target := vm.readUint16(f)
			if !vm.peek(0).Truthy() {
				f.IP = int(target)
			} else {
				vm.pop()
			}
		case bytecode.OpOr:
			target := vm.readUint16(f)
			if vm.peek(0).Truthy() {
				f.IP = int(target)
			} else {
				vm.pop()
			}
		case bytecode.OpNullishCoalesce:
			target := vm.readUint16(f)
			if !vm.peek(0).IsNullish() {
				f.IP = int(target)
			} else {
				vm.pop()
			}

		case bytecode.OpNeg:
			v, err := vm.toNumericUnary(vm.pop())
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(negate(v))
		case bytecode.OpPos:
			v, err := vm.toNumber(vm.pop())
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(value.Num(v))
		case bytecode.OpNot:
			vm.push(value.Bool(!vm.pop().Truthy()))
		case bytecode.OpBitNot:
			n, err := vm.toInt32(vm.pop())
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(value.Num(float64(^n)))
		case bytecode.OpTypeof:
			vm.push(value.Str(vm.typeofValue(vm.pop())))
		case bytecode.OpVoid:
			vm.pop()
			vm.push(value.Undef)
		case bytecode.OpDelete:
			key := vm.pop()
			recv := vm.pop()
			vm.push(value.Bool(vm.deleteProperty(recv, vm.toPropertyKey(key))))

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpExp,
			bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr, bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor,
			bytecode.OpLess, bytecode.OpLessEq, bytecode.OpGreater, bytecode.OpGreaterEq,
			bytecode.OpEqual, bytecode.OpNotEqual, bytecode.OpStrictEqual, bytecode.OpStrictNotEqual,
			bytecode.OpIn, bytecode.OpInstanceof:
			rhs := vm.pop()
			lhs := vm.pop()
			result, err := vm.binaryOp(op, lhs, rhs)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(result)

		case bytecode.OpNewArray:
			vm.push(value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassArray})))
		case bytecode.OpArrayPush:
			v := vm.pop()
			arrID := vm.peek(0).AsObject()
			arr := vm.Heap.MustGet(arrID)
			arr.Elements = append(arr.Elements, v)
		case bytecode.OpNewObject:
			vm.push(value.Obj(vm.Heap.Alloc(&value.Object{Class: value.ClassOrdinary})))
		case bytecode.OpDefineGetter, bytecode.OpDefineSetter:
			closure := vm.pop()
			key := vm.pop()
			objID := vm.peek(0).AsObject()
			obj := vm.Heap.MustGet(objID)
			name := vm.toPropertyKey(key)
			if op == bytecode.OpDefineGetter {
				if obj.Getters == nil {
					obj.Getters = make(map[string]value.ObjectID)
				}
				obj.Getters[name] = closure.AsObject()
			} else {
				if obj.Setters == nil {
					obj.Setters = make(map[string]value.ObjectID)
				}
				obj.Setters[name] = closure.AsObject()
			}
		case bytecode.OpNewRegexp:
			idx := vm.readUint16(f)
			lit := vm.resolveConstant(f, idx)
			vm.push(vm.newRegexpFromLiteral(lit))
		case bytecode.OpNewClass:
			idx := vm.readUint16(f)
			tmpl := f.Chunk.Constants[idx].(*bytecode.ClassTemplate)
			classID, err := vm.realizeClass(f, tmpl)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(value.Obj(classID))
		case bytecode.OpSpread:
			src := vm.pop()
			err := vm.spreadInto(vm.peek(0), src)
			if vm.dispatchThrow(&f, err) {
				continue
			}

		case bytecode.OpDestructureArray:
			// Operands are two raw bytes (element count, has-rest flag),
			// not a uint16 — compiler/pattern.go's bindArrayPattern emits
			// them individually since neither needs more than a byte's
			// range.
			count := int(vm.readByte(f))
			hasRest := vm.readByte(f) != 0
			src := vm.pop()
			elems, err := vm.iterableToSlice(src, count)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			for i := 0; i < count; i++ {
				if i < len(elems) {
					vm.push(elems[i])
				} else {
					vm.push(value.Undef)
				}
			}
			if hasRest {
				var rest []value.Value
				if count < len(elems) {
					rest = elems[count:]
				}
				vm.push(vm.newArrayValue(rest))
			}
		case bytecode.OpDestructureObject:
			idx := vm.readUint16(f)
			keys := vm.constStrings(f, idx)
			hasRest := vm.readByte(f) != 0
			src := vm.pop()
			for _, k := range keys {
				v, err := vm.getProperty(src, k)
				if vm.dispatchThrow(&f, err) {
					continue dispatch
				}
				vm.push(v)
			}
			if hasRest {
				vm.push(vm.restObject(src, keys))
			}
		case bytecode.OpDestructureRest:
			// Rest *parameters*, not object-pattern rest: collects every
			// call argument from index i onward into one array and writes
			// it straight into that parameter's already-reserved local
			// slot — parameters never go through an explicit store, so
			// this opcode doesn't touch the operand stack at all.
			i := int(vm.readByte(f))
			var rest []value.Value
			if i < len(f.CallArgs) {
				rest = append(rest, f.CallArgs[i:]...)
			}
			vm.Stack[f.Base+i] = vm.newArrayValue(rest)

		case bytecode.OpForOfInit:
			src := vm.pop()
			iter, err := vm.newIterator(src)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(iter)
		case bytecode.OpForOfNext:
			val, done, err := vm.iteratorNext(vm.peek(0))
			if vm.dispatchThrow(&f, err) {
				continue
			}
			vm.push(val)
			vm.push(value.Bool(done))
		case bytecode.OpForInInit:
			src := vm.pop()
			vm.push(vm.newKeyEnumerator(src))
		case bytecode.OpForInNext:
			val, done := vm.keyEnumeratorNext(vm.peek(0))
			vm.push(val)
			vm.push(value.Bool(done))

		case bytecode.OpThrow:
			v := vm.pop()
			if vm.dispatchThrow(&f, vm.throwValue(v)) {
				continue
			}
			return value.Undef, &RuntimeError{Value: v}
		case bytecode.OpTryEnd:
			// marks a protected region's normal exit; no effect unless a
			// finally-only handler (no catch) diverted execution here
			// mid-unwind, in which case the original exception must now
			// continue propagating past this point.
			if vm.pendingRethrow != nil {
				pending := vm.pendingRethrow
				vm.pendingRethrow = nil
				if vm.dispatchThrow(&f, pending) {
					continue
				}
			}

		case bytecode.OpClosure:
			idx := vm.readUint16(f)
			chunk := f.Chunk.Constants[idx].(*bytecode.Chunk)
			fn := &value.Object{
				Class:    value.ClassFunction,
				Chunk:    chunk,
				Name:     chunk.Name,
				Upvalues: vm.captureUpvalues(f, chunk.Upvalues),
			}
			vm.push(value.Obj(vm.Heap.Alloc(fn)))
		case bytecode.OpCloseUpvalues:
			vm.closeUpvalues(f.Base + int(vm.readUint16Peek(f)))
			vm.pop()

		case bytecode.OpYield:
			return vm.doYield(f)
		case bytecode.OpResume:
			// Backs `yield*`: materialize the delegate's elements now and
			// leave the first on the stack for the OpYield that always
			// follows; resumeGenerator drains the rest (delegateQueue)
			// without re-entering run() until it empties.
			src := vm.pop()
			elems, err := vm.iterableToSlice(src, -1)
			if vm.dispatchThrow(&f, err) {
				continue
			}
			if len(elems) > 0 {
				vm.push(elems[0])
				f.delegateQueue = elems[1:]
			} else {
				vm.push(value.Undef)
			}
		case bytecode.OpAwait:
			// Always suspends, even for an already-fulfilled or non-promise
			// operand: real `await` is a genuine turn boundary (at least
			// one microtask), never a synchronous pass-through. The caller
			// that owns this run() invocation (runAsyncCall or RunProgram)
			// resumes it via stepAsync once the operand settles.
			return value.Undef, &awaitSuspend{value: vm.pop()}

		case bytecode.OpExportSet:
			idx := vm.readUint16(f)
			name := vm.resolveConstant(f, idx).AsString()
			vm.Globals[name] = vm.peek(0)

		case bytecode.OpDebuggerNop:
			// intentionally does nothing; a real debugger hook attaches via
			// HostContext rather than this opcode carrying behavior itself.

		default:
			panic("vm: unimplemented opcode")
		}
	}
}

// resolveConstant unwraps a chunk constant-pool entry back into a
// value.Value. Most entries already are one; a *bytecode.TaggedTemplateQuasis
// is lazily materialized into a real (cached, so repeated calls to the same
// call site observe reference equality) strings array the first time it's
// read.
func (vm *VM) resolveConstant(f *CallFrame, idx uint16) value.Value {
	c := f.Chunk.Constants[idx]
	switch cv := c.(type) {
	case value.Value:
		return cv
	case *bytecode.TaggedTemplateQuasis:
		return vm.materializeQuasis(f.Chunk, idx, cv)
	default:
		return value.Undef
	}
}

func (vm *VM) materializeQuasis(chunk *bytecode.Chunk, idx uint16, q *bytecode.TaggedTemplateQuasis) value.Value {
	if vm.quasisCache == nil {
		vm.quasisCache = make(map[quasisKey]value.Value)
	}
	key := quasisKey{chunk: chunk, idx: idx}
	if v, ok := vm.quasisCache[key]; ok {
		return v
	}
	cooked := make([]value.Value, len(q.Cooked))
	for i, s := range q.Cooked {
		cooked[i] = value.Str(s)
	}
	raw := make([]value.Value, len(q.Raw))
	for i, s := range q.Raw {
		raw[i] = value.Str(s)
	}
	rawID := vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: raw})
	arrID := vm.Heap.Alloc(&value.Object{Class: value.ClassArray, Elements: cooked})
	value.SetProperty(vm.Heap, arrID, "raw", value.Obj(rawID))
	v := value.Obj(arrID)
	vm.quasisCache[key] = v
	return v
}

// readUint16Peek reads a uint16 operand without advancing past it being
// needed again — OpCloseUpvalues carries the scope-exit stack-index
// offset as its sole operand, consumed immediately after by the pop
// restoring the instruction-stream cursor; kept as a separate helper
// purely so the call site at OpCloseUpvalues reads clearly.
func (vm *VM) readUint16Peek(f *CallFrame) uint16 { return vm.readUint16(f) }

// readCallArgs pops argCount argument values (pushed in source order) plus
// their trailing marker bytes, flattening any marked-spread argument's
// iterable contents into the final argument slice.
func (vm *VM) readCallArgs(f *CallFrame, argCount int) []value.Value {
	markers := make([]byte, argCount)
	for i := 0; i < argCount; i++ {
		markers[i] = vm.readByte(f)
	}
	raw := vm.popN(argCount)
	hasSpread := false
	for _, m := range markers {
		if m == 1 {
			hasSpread = true
			break
		}
	}
	if !hasSpread {
		return raw
	}
	var out []value.Value
	for i, v := range raw {
		if markers[i] == 1 {
			elems, _ := vm.iterableToSlice(v, -1)
			out = append(out, elems...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func negate(v value.Value) value.Value {
	if v.Kind() == value.BigIntKind {
		return value.BigIntVal(new(big.Int).Neg(v.AsBigInt()))
	}
	return value.Num(-v.AsNumber())
}
