package vm

import "github.com/qsjs/quicksilver/internal/value"

// Proxy and Proxy.revocable wrap a target behind a trap handler. Trap
// dispatch itself lives in property_ops.go/arith.go (proxyGet/proxySet/
// proxyDelete are called from getProperty/setProperty/deleteProperty before
// any own-Props lookup); this file only builds the constructors.

func (vm *VM) installProxyGlobal() {
	vm.Globals["Proxy"] = vm.nativeFn("Proxy", func(args []value.Value) (value.Value, error) {
		return vm.newProxy(argAt(args, 0), argAt(args, 1))
	})

	revocable := vm.nativeFn("revocable", func(args []value.Value) (value.Value, error) {
		p, err := vm.newProxy(argAt(args, 0), argAt(args, 1))
		if err != nil {
			return value.Undef, err
		}
		pid := p.AsObject()
		revoke := vm.nativeFn("revoke", func(_ []value.Value) (value.Value, error) {
			vm.Heap.MustGet(pid).Revoked = true
			return value.Undef, nil
		})
		result := &value.Object{Class: value.ClassOrdinary}
		rid := vm.Heap.Alloc(result)
		value.SetProperty(vm.Heap, rid, "proxy", p)
		value.SetProperty(vm.Heap, rid, "revoke", revoke)
		return value.Obj(rid), nil
	})
	value.SetProperty(vm.Heap, vm.Globals["Proxy"].AsObject(), "revocable", revocable)
}

func (vm *VM) newProxy(target, handler value.Value) (value.Value, error) {
	if !target.IsObject() || !handler.IsObject() {
		return value.Undef, vm.throwError("TypeError", "Cannot create proxy with a non-object as target or handler")
	}
	obj := &value.Object{Class: value.ClassProxy, ProxyTarget: target.AsObject(), ProxyHandler: handler.AsObject()}
	id := vm.Heap.Alloc(obj)
	return value.Obj(id), nil
}

func (vm *VM) checkRevoked(obj *value.Object) error {
	if obj.Revoked {
		return vm.throwError("TypeError", "Cannot perform operation on a proxy that has been revoked")
	}
	return nil
}

func (vm *VM) proxyTrap(obj *value.Object, name string) (value.Value, bool, error) {
	if err := vm.checkRevoked(obj); err != nil {
		return value.Undef, false, err
	}
	trap, err := vm.getProperty(value.Obj(obj.ProxyHandler), name)
	if err != nil {
		return value.Undef, false, err
	}
	if trap.IsNullish() {
		return value.Undef, false, nil
	}
	return trap, true, nil
}

func (vm *VM) proxyGet(obj *value.Object, receiver value.Value, key string) (value.Value, error) {
	trap, has, err := vm.proxyTrap(obj, "get")
	if err != nil {
		return value.Undef, err
	}
	if !has {
		return vm.getProperty(value.Obj(obj.ProxyTarget), key)
	}
	return vm.callValue(trap, value.Obj(obj.ProxyHandler), []value.Value{value.Obj(obj.ProxyTarget), value.Str(key), receiver}, value.Undef)
}

func (vm *VM) proxySet(obj *value.Object, receiver value.Value, key string, v value.Value) error {
	trap, has, err := vm.proxyTrap(obj, "set")
	if err != nil {
		return err
	}
	if !has {
		return vm.setProperty(value.Obj(obj.ProxyTarget), key, v)
	}
	_, err = vm.callValue(trap, value.Obj(obj.ProxyHandler), []value.Value{value.Obj(obj.ProxyTarget), value.Str(key), v, receiver}, value.Undef)
	return err
}

func (vm *VM) proxyDelete(obj *value.Object, key string) bool {
	trap, has, err := vm.proxyTrap(obj, "deleteProperty")
	if err != nil || obj.Revoked {
		return false
	}
	if !has {
		return vm.deleteProperty(value.Obj(obj.ProxyTarget), key)
	}
	result, err := vm.callValue(trap, value.Obj(obj.ProxyHandler), []value.Value{value.Obj(obj.ProxyTarget), value.Str(key)}, value.Undef)
	if err != nil {
		return false
	}
	return result.Truthy()
}
