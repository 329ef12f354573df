package vm

import (
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// callValue implements the spec.md §4.G calling convention: the callee's
// frame starts at stack_top - argCount. fn may be a bytecode closure, a
// native function, a bound function, or a class (construct-only); calling
// a class directly without `new` is a TypeError, mirrored here rather than
// in the opcode handler so OpCall and OpCallMethod share one path.
func (vm *VM) callValue(fnVal value.Value, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	if !fnVal.IsObject() {
		return value.Undef, vm.throwError("TypeError", "%s is not a function", describeForError(fnVal))
	}
	obj, ok := vm.Heap.Get(fnVal.AsObject())
	if !ok {
		return value.Undef, vm.throwError("TypeError", "value is not a function")
	}
	switch obj.Class {
	case value.ClassNativeFunction:
		return obj.Native(vm.Host, this, args)
	case value.ClassBoundFunction:
		boundArgs := append(append([]value.Value{}, obj.BoundArgs...), args...)
		target := value.Obj(obj.BoundTarget)
		if newTarget.IsUndefined() {
			return vm.callValue(target, obj.BoundThis, boundArgs, newTarget)
		}
		return vm.callValue(target, this, boundArgs, newTarget)
	case value.ClassFunction:
		return vm.invoke(obj, fnVal.AsObject(), this, args, newTarget)
	case value.ClassBoundStringMethod:
		return vm.callBoundStringMethod(obj, args)
	case value.ClassBoundArrayMethod:
		return vm.callBoundArrayMethod(obj, args)
	case value.ClassClass:
		if newTarget.IsUndefined() {
			return value.Undef, vm.throwError("TypeError", "class constructor %s cannot be invoked without 'new'", obj.Name)
		}
		return vm.construct(fnVal.AsObject(), args)
	default:
		return value.Undef, vm.throwError("TypeError", "%s is not a function", describeForError(fnVal))
	}
}

// pushFrame lays out a new frame's argument/local slots over the shared
// operand stack (args, then Undefined-filled padding out to NumLocals —
// destructured params and function-scope vars are reserved here but
// initialized by the chunk's own prologue) and pushes the frame.
func (vm *VM) pushFrame(chunk *bytecode.Chunk, this value.Value, args []value.Value, fnID value.ObjectID, newTarget value.Value) *CallFrame {
	base := len(vm.Stack)
	for i := 0; i < chunk.ParamCount; i++ {
		if i < len(args) {
			vm.push(args[i])
		} else {
			vm.push(value.Undef)
		}
	}
	for i := chunk.ParamCount; i < int(chunk.NumLocals); i++ {
		vm.push(value.Undef)
	}
	f := &CallFrame{Chunk: chunk, Base: base, This: this, FnID: fnID, NewTarget: newTarget, CallArgs: args}
	vm.Frames = append(vm.Frames, f)
	return f
}

// invoke runs fn's chunk as a new frame and returns its completion value.
// Neither a generator nor an async chunk's frame ever goes on the caller's
// own shared operand stack: OpCall on a generator function allocates a
// suspended Generator object (see generator.go), and an async function's
// frame lives on its own private VM (see async.go's runAsyncCall) so a
// suspended `await` has somewhere to park across turns without the caller
// growing the same stack out from under it.
func (vm *VM) invoke(fn *value.Object, fnID value.ObjectID, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	chunk := fn.Chunk.(*bytecode.Chunk)
	if chunk.IsGenerator {
		return vm.makeGenerator(fn, fnID, this, args), nil
	}
	if chunk.IsAsync {
		return vm.runAsyncCall(fn, fnID, this, args, newTarget), nil
	}
	vm.pushFrame(chunk, this, args, fnID, newTarget)
	return vm.run()
}

// construct implements `new`: allocates a fresh instance whose prototype
// is the class's own "prototype" property convention (HomeObject linkage
// for method resolution lives on the class object itself, per
// value.Object's Methods/Getters maps — see property_ops.go), runs field
// initializers, then the constructor chunk with `this` bound to the
// instance. If the class HasSuper and its constructor is the synthesized
// default, the super call inside it runs the superclass's own construct
// path recursively via OpSuperCall.
func (vm *VM) construct(classID value.ObjectID, args []value.Value) (value.Value, error) {
	cls := vm.Heap.MustGet(classID)
	inst := &value.Object{Class: value.ClassOrdinary, HasProto: true, Prototype: classID}
	instID := vm.Heap.Alloc(inst)
	instVal := value.Obj(instID)

	if cls.InstanceFieldsFn != nil {
		fields := cls.InstanceFieldsFn.(*bytecode.Chunk)
		if err := vm.runFieldInitializers(fields, instVal); err != nil {
			return value.Undef, err
		}
	}

	if cls.CtorChunk == nil {
		return instVal, nil
	}
	chunk := cls.CtorChunk.(*bytecode.Chunk)
	vm.pushFrame(chunk, instVal, args, classID, value.Obj(classID))
	if _, err := vm.run(); err != nil {
		return value.Undef, err
	}
	return instVal, nil
}

// captureUpvalues builds the Upvalues slice for a freshly OpClosure'd
// function, opening a new cell over the enclosing frame's stack slot (or
// reusing an already-open one, per openUpvalues) for IsLocal descriptors,
// and aliasing the enclosing closure's own upvalue cell otherwise.
func (vm *VM) captureUpvalues(enclosing *CallFrame, descriptors []bytecode.UpvalueDescriptor) []*value.Upvalue {
	ups := make([]*value.Upvalue, len(descriptors))
	for i, d := range descriptors {
		if d.IsLocal {
			absIdx := enclosing.Base + int(d.Index)
			ups[i] = vm.captureLocal(absIdx)
		} else {
			enclosingFn := vm.Heap.MustGet(enclosing.FnID)
			ups[i] = enclosingFn.Upvalues[d.Index]
		}
	}
	return ups
}

func (vm *VM) captureLocal(absIdx int) *value.Upvalue {
	if up, ok := vm.openUpvalues[absIdx]; ok {
		return up
	}
	up := &value.Upvalue{Open: true, StackIdx: absIdx}
	vm.openUpvalues[absIdx] = up
	return up
}

// closeUpvalues promotes every open upvalue at or above fromIdx off the
// stack into its own Closed value, called on scope exit (OpCloseUpvalues)
// and on frame return.
func (vm *VM) closeUpvalues(fromIdx int) {
	for idx, up := range vm.openUpvalues {
		if idx >= fromIdx {
			up.Closed = vm.Stack[idx]
			up.Open = false
			delete(vm.openUpvalues, idx)
		}
	}
}

func (vm *VM) upvalueGet(up *value.Upvalue) value.Value {
	if up.Open {
		return vm.Stack[up.StackIdx]
	}
	return up.Closed
}

func (vm *VM) upvalueSet(up *value.Upvalue, v value.Value) {
	if up.Open {
		vm.Stack[up.StackIdx] = v
		return
	}
	up.Closed = v
}

// realizeClass turns a compile-time bytecode.ClassTemplate constant into a
// heap Class object: method/getter/setter chunks become real closures
// (capturing upvalues exactly as OpClosure does, since a method body can
// close over the enclosing scope just like any function literal) with
// HomeObject set to the class object itself, so super lookups inside a
// method find SuperClass via their HomeObject.
func (vm *VM) realizeClass(f *CallFrame, tmpl *bytecode.ClassTemplate) (value.ObjectID, error) {
	cls := &value.Object{
		Class:         value.ClassClass,
		Name:          tmpl.Name,
		Methods:       make(map[string]value.ObjectID),
		Getters:       make(map[string]value.ObjectID),
		Setters:       make(map[string]value.ObjectID),
		StaticMethods: make(map[string]value.ObjectID),
		StaticGetters: make(map[string]value.ObjectID),
		StaticSetters: make(map[string]value.ObjectID),
	}
	classID := vm.Heap.Alloc(cls)

	// The superclass expression result (or Undefined, if no extends
	// clause) was pushed by the compiler right before OpNewClass.
	superVal := vm.pop()
	if tmpl.HasSuper && superVal.IsObject() {
		cls.SuperClass = superVal.AsObject()
		cls.HasSuper = true
	}

	makeClosure := func(chunk *bytecode.Chunk) value.ObjectID {
		fn := &value.Object{
			Class:         value.ClassFunction,
			Chunk:         chunk,
			Name:          chunk.Name,
			HomeObject:    classID,
			HasHomeObject: true,
			Upvalues:      vm.captureUpvalues(f, chunk.Upvalues),
		}
		return vm.Heap.Alloc(fn)
	}

	cls.CtorChunk = tmpl.Ctor
	for name, chunk := range tmpl.Methods {
		cls.Methods[name] = makeClosure(chunk)
	}
	for name, chunk := range tmpl.Getters {
		cls.Getters[name] = makeClosure(chunk)
	}
	for name, chunk := range tmpl.Setters {
		cls.Setters[name] = makeClosure(chunk)
	}
	for name, chunk := range tmpl.StaticMethods {
		cls.StaticMethods[name] = makeClosure(chunk)
	}
	for name, chunk := range tmpl.StaticGetters {
		cls.StaticGetters[name] = makeClosure(chunk)
	}
	for name, chunk := range tmpl.StaticSetters {
		cls.StaticSetters[name] = makeClosure(chunk)
	}
	if tmpl.Fields != nil {
		cls.InstanceFieldsFn = tmpl.Fields
	}
	if tmpl.StaticFields != nil {
		if err := vm.runFieldInitializers(tmpl.StaticFields, value.Obj(classID)); err != nil {
			return 0, err
		}
	}
	return classID, nil
}

// runFieldInitializers executes a class's field-initializer chunk (an
// ordinary chunk of OpLoadThis/key/value/OpSetProperty sequences emitted
// by compiler/class.go's emitFieldAssign) with `this` bound to target.
func (vm *VM) runFieldInitializers(chunk *bytecode.Chunk, target value.Value) error {
	vm.pushFrame(chunk, target, nil, 0, value.Undef)
	_, err := vm.run()
	return err
}
