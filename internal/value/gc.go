package value

// GCRoots is the root set handed to Heap.Collect: every Value listed here,
// and everything reachable from it, survives the pass. value itself has no
// notion of frames or modules, so the caller assembles the list, keeping
// the dependency direction value -> (nothing) rather than value -> vm.
// internal/vm never builds a root set or calls Collect, so objects
// allocated during a run stay in the heap for as long as the Heap lives.
type GCRoots struct {
	Values []Value
}

// Collect runs a stop-the-world mark-sweep pass: every Value reachable
// from roots (transitively, through object properties/elements/prototype
// chains/upvalues) is marked; any heap slot left unmarked is freed and its
// generation bumped. The VM does not call it (see GCRoots).
func (h *Heap) Collect(roots GCRoots) {
	marked := make([]bool, len(h.slots))
	var stack []ObjectID
	push := func(v Value) {
		if v.Kind() == ObjectKind {
			id := v.AsObject()
			if h.Live(id) && !marked[id] {
				marked[id] = true
				stack = append(stack, id)
			}
		}
	}

	for _, v := range roots.Values {
		push(v)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj, ok := h.Get(id)
		if !ok {
			continue
		}
		markChildren(obj, push)
	}

	for i := 1; i < len(h.slots); i++ {
		if h.slots[i].live && !marked[i] {
			h.free_(ObjectID(i))
		}
	}
}

func markChildren(obj *Object, push func(Value)) {
	for _, v := range obj.Props {
		push(v)
	}
	for _, v := range obj.Elements {
		push(v)
	}
	if obj.HasProto {
		push(Obj(obj.Prototype))
	}
	for _, uv := range obj.Upvalues {
		if uv != nil {
			if uv.Open {
				continue // stack-resident; the frame's stack slice is a separate GC root
			}
			push(uv.Closed)
		}
	}
	push(obj.PromiseValue)
	for i := range obj.MapKeys {
		push(obj.MapKeys[i])
	}
	for i := range obj.MapValues {
		push(obj.MapValues[i])
	}
	for i := range obj.SetValues {
		push(obj.SetValues[i])
	}
	for _, v := range obj.WeakEntries {
		push(v)
	}
	if obj.HasSuper {
		push(Obj(obj.SuperClass))
	}
	for _, id := range obj.Methods {
		push(Obj(id))
	}
	for _, id := range obj.Getters {
		push(Obj(id))
	}
	for _, id := range obj.Setters {
		push(Obj(id))
	}
	for _, id := range obj.StaticMethods {
		push(Obj(id))
	}
	if obj.Class == ClassProxy {
		push(Obj(obj.ProxyTarget))
		push(Obj(obj.ProxyHandler))
	}
	if obj.Class == ClassTypedArray || obj.Class == ClassDataView {
		push(Obj(obj.Buffer))
	}
	if obj.Class == ClassBoundFunction {
		push(Obj(obj.BoundTarget))
		push(obj.BoundThis)
		for _, a := range obj.BoundArgs {
			push(a)
		}
	}
	if obj.HasCause {
		push(obj.Cause)
	}
}
