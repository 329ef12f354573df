package vm

import (
	"fmt"
	"strconv"

	"github.com/qsjs/quicksilver/internal/value"
)

// getProperty is the accessor-aware property read OpGetProperty/OpGetIndex
// delegate to. value.GetProperty (internal/value/property.go) stays a
// plain-data helper for non-VM callers (structured clone, JSON.stringify)
// that cannot invoke a getter; this is the one place that actually walks a
// class's Methods/Getters maps and the SuperClass chain, since doing so
// means re-entering the call machinery only the VM owns.
func (vm *VM) getProperty(receiver value.Value, key string) (value.Value, error) {
	switch receiver.Kind() {
	case value.String:
		return vm.getStringProperty(receiver.AsString(), key)
	case value.Undefined, value.Null:
		return value.Undef, vm.throwError("TypeError", "cannot read properties of %s (reading '%s')", describeForError(receiver), key)
	case value.ObjectKind:
	default:
		return value.Undef, nil
	}

	obj, ok := vm.Heap.Get(receiver.AsObject())
	if !ok {
		return value.Undef, nil
	}

	// Proxy traps intercept before any own-property lookup: a proxy with
	// no "get" handler falls through to its target rather than its own
	// (normally empty) Props map, so this has to come first, not after.
	if obj.Class == value.ClassProxy {
		return vm.proxyGet(obj, receiver, key)
	}

	if v, ok := obj.Props[key]; ok {
		return v, nil
	}
	if obj.Class == value.ClassArray {
		if key == "length" {
			return value.Num(float64(len(obj.Elements))), nil
		}
		if idx, ok := arrayIndex(key); ok {
			return value.ArrayGet(vm.Heap, receiver.AsObject(), idx), nil
		}
		return vm.arrayMethod(receiver.AsObject(), key)
	}
	if (obj.Class == value.ClassMap || obj.Class == value.ClassSet) && key == "size" {
		if obj.Class == value.ClassSet {
			return value.Num(float64(len(obj.SetValues))), nil
		}
		return value.Num(float64(len(obj.MapKeys))), nil
	}
	if obj.Class == value.ClassTypedArray || obj.Class == value.ClassDataView {
		if v, ok, err := vm.typedArrayGetProperty(receiver.AsObject(), obj, key); ok || err != nil {
			return v, err
		}
	}

	if obj.Class == value.ClassClass {
		return vm.getStaticProperty(receiver.AsObject(), key, receiver)
	}

	if obj.HasProto {
		proto, ok := vm.Heap.Get(obj.Prototype)
		if ok && proto.Class == value.ClassClass {
			return vm.getInstanceMember(obj.Prototype, key, receiver)
		}
		return vm.getProperty(value.Obj(obj.Prototype), key)
	}
	return value.Undef, nil
}

// getInstanceMember walks classID's Methods/Getters maps, then its
// SuperClass chain, invoking a found getter with `this` bound to
// instance. Returns Undefined, no error if the chain is exhausted.
func (vm *VM) getInstanceMember(classID value.ObjectID, key string, instance value.Value) (value.Value, error) {
	for {
		cls, ok := vm.Heap.Get(classID)
		if !ok {
			return value.Undef, nil
		}
		if getterID, ok := cls.Getters[key]; ok {
			return vm.callValue(value.Obj(getterID), instance, nil, value.Undef)
		}
		if methodID, ok := cls.Methods[key]; ok {
			return value.Obj(methodID), nil
		}
		if !cls.HasSuper {
			return value.Undef, nil
		}
		classID = cls.SuperClass
	}
}

// getStaticProperty resolves Foo.member: own Props (class fields written
// via emitFieldAssign's OpSetProperty with `this` bound to the class
// object) first, then StaticGetters/StaticMethods, then the SuperClass
// chain for inherited statics.
func (vm *VM) getStaticProperty(classID value.ObjectID, key string, classVal value.Value) (value.Value, error) {
	for {
		cls, ok := vm.Heap.Get(classID)
		if !ok {
			return value.Undef, nil
		}
		if v, ok := cls.Props[key]; ok {
			return v, nil
		}
		if getterID, ok := cls.StaticGetters[key]; ok {
			return vm.callValue(value.Obj(getterID), classVal, nil, value.Undef)
		}
		if methodID, ok := cls.StaticMethods[key]; ok {
			return value.Obj(methodID), nil
		}
		if !cls.HasSuper {
			return value.Undef, nil
		}
		classID = cls.SuperClass
	}
}

// setProperty is the accessor-aware property write counterpart: an own
// property write always wins for ordinary objects, but a class instance
// whose prototype chain declares `key` as a setter routes the write
// through that setter instead of shadowing it with an own property,
// matching JS assignment semantics.
func (vm *VM) setProperty(receiver value.Value, key string, v value.Value) error {
	if !receiver.IsObject() {
		return nil // silently ignored for primitives outside strict mode, matching spec.md's documented looseness elsewhere
	}
	obj, ok := vm.Heap.Get(receiver.AsObject())
	if !ok {
		return nil
	}
	if obj.Class == value.ClassProxy {
		return vm.proxySet(obj, receiver, key, v)
	}
	if (obj.Class == value.ClassTypedArray) && vm.typedArraySetProperty(receiver.AsObject(), obj, key, v) {
		return nil
	}
	if obj.Class == value.ClassArray {
		if key == "length" {
			n, _ := strconv.Atoi(fmt.Sprint(int(v.AsNumber())))
			value.SetArrayLength(vm.Heap, receiver.AsObject(), n)
			return nil
		}
		if idx, ok := arrayIndex(key); ok {
			value.ArraySet(vm.Heap, receiver.AsObject(), idx, v)
			return nil
		}
	}
	if obj.Class == value.ClassClass {
		if setterID, found := vm.findStaticSetter(receiver.AsObject(), key); found {
			_, err := vm.callValue(value.Obj(setterID), receiver, []value.Value{v}, value.Undef)
			return err
		}
		value.SetProperty(vm.Heap, receiver.AsObject(), key, v)
		return nil
	}
	if obj.HasProto {
		if proto, ok := vm.Heap.Get(obj.Prototype); ok && proto.Class == value.ClassClass {
			if setterID, found := vm.findInstanceSetter(obj.Prototype, key); found {
				_, err := vm.callValue(value.Obj(setterID), receiver, []value.Value{v}, value.Undef)
				return err
			}
		}
	}
	value.SetProperty(vm.Heap, receiver.AsObject(), key, v)
	return nil
}

func (vm *VM) findInstanceSetter(classID value.ObjectID, key string) (value.ObjectID, bool) {
	for {
		cls, ok := vm.Heap.Get(classID)
		if !ok {
			return 0, false
		}
		if id, ok := cls.Setters[key]; ok {
			return id, true
		}
		if !cls.HasSuper {
			return 0, false
		}
		classID = cls.SuperClass
	}
}

func (vm *VM) findStaticSetter(classID value.ObjectID, key string) (value.ObjectID, bool) {
	for {
		cls, ok := vm.Heap.Get(classID)
		if !ok {
			return 0, false
		}
		if id, ok := cls.StaticSetters[key]; ok {
			return id, true
		}
		if !cls.HasSuper {
			return 0, false
		}
		classID = cls.SuperClass
	}
}

// getSuperProperty resolves `super.key` from inside a method whose
// HomeObject is homeClassID: search starts one class up the chain
// (SuperClass), never the home class itself, since `super` always means
// "my parent's version", with `this` still bound to the executing
// instance (the ordinary polymorphic-dispatch JS semantics).
func (vm *VM) getSuperProperty(homeClassID value.ObjectID, this value.Value, key string) (value.Value, error) {
	home, ok := vm.Heap.Get(homeClassID)
	if !ok || !home.HasSuper {
		return value.Undef, nil
	}
	return vm.getInstanceMember(home.SuperClass, key, this)
}

func (vm *VM) getIndex(receiver, keyVal value.Value) (value.Value, error) {
	return vm.getProperty(receiver, vm.toPropertyKey(keyVal))
}

func (vm *VM) setIndex(receiver, keyVal, v value.Value) error {
	return vm.setProperty(receiver, vm.toPropertyKey(keyVal), v)
}

// toPropertyKey implements JS's ToPropertyKey for the String/Number cases
// this VM exposes via OpGetIndex/OpSetIndex (Symbol keys are handled
// separately by internal/host's well-known-symbol machinery, not through
// the plain string-keyed Props map).
func (vm *VM) toPropertyKey(v value.Value) string {
	switch v.Kind() {
	case value.String:
		return v.AsString()
	case value.Number:
		return formatNumber(v.AsNumber())
	default:
		return fmt.Sprint(v.AsNumber())
	}
}

func arrayIndex(key string) (int, bool) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (vm *VM) getStringProperty(s string, key string) (value.Value, error) {
	if key == "length" {
		return value.Num(float64(len([]rune(s)))), nil
	}
	if idx, ok := arrayIndex(key); ok {
		runes := []rune(s)
		if idx >= 0 && idx < len(runes) {
			return value.Str(string(runes[idx])), nil
		}
		return value.Undef, nil
	}
	return vm.stringMethod(s, key)
}
