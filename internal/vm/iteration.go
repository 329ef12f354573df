package vm

import "github.com/qsjs/quicksilver/internal/value"

// constStrings fetches a []string constant-pool entry directly (bypassing
// resolveConstant, which only unwraps value.Value/TaggedTemplateQuasis
// entries) — compiler/pattern.go's bindObjectPattern interns an object
// pattern's key list this way since the keys never need to be boxed as JS
// values themselves.
func (vm *VM) constStrings(f *CallFrame, idx uint16) []string {
	if keys, ok := f.Chunk.Constants[idx].([]string); ok {
		return keys
	}
	return nil
}

// restObject builds the `{...rest}` object left over after an object
// pattern binds its named keys: every own enumerable property of src not
// named in exclude, insertion-order preserved.
func (vm *VM) restObject(src value.Value, exclude []string) value.Value {
	obj := &value.Object{Class: value.ClassOrdinary}
	id := vm.Heap.Alloc(obj)
	if !src.IsObject() {
		return value.Obj(id)
	}
	srcObj, ok := vm.Heap.Get(src.AsObject())
	if !ok {
		return value.Obj(id)
	}
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	for _, k := range srcObj.PropOrder {
		if skip[k] {
			continue
		}
		value.SetProperty(vm.Heap, id, k, srcObj.Props[k])
	}
	return value.Obj(id)
}

// iterableToSlice materializes an iterable's elements eagerly — used both
// by array-destructuring (limit is the fixed-element count, purely
// informational here) and by spread-argument flattening (limit -1, meaning
// "take them all"). Arrays and strings are read directly; anything else
// goes through the general iterator protocol.
func (vm *VM) iterableToSlice(src value.Value, limit int) ([]value.Value, error) {
	if elems, err := vm.eagerElements(src); err == nil {
		return elems, nil
	}
	// Not one of the eagerly-snapshottable kinds (Array/Set/Map/string):
	// drive it through the general protocol instead — a user Generator,
	// or any other ClassIterator-shaped object.
	iterVal, err := vm.newIterator(src)
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for {
		v, done, err := vm.iteratorNext(iterVal)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out = append(out, v)
	}
}

// spreadInto merges src's elements/own-enumerable-keys into dst in place:
// an array spread (`[...a]`/call-argument spread) appends elements, an
// object spread (`{...o}`) copies own properties, matching which
// composite literal the compiler is still building on the stack beneath it
// (OpSpread leaves dst in place for further OpArrayPush/property writes).
func (vm *VM) spreadInto(dst, src value.Value) error {
	if !dst.IsObject() {
		return vm.throwError("TypeError", "spread target is not an object")
	}
	dstObj, ok := vm.Heap.Get(dst.AsObject())
	if !ok {
		return nil
	}
	if dstObj.Class == value.ClassArray {
		elems, err := vm.iterableToSlice(src, -1)
		if err != nil {
			return err
		}
		dstObj.Elements = append(dstObj.Elements, elems...)
		return nil
	}
	if !src.IsObject() {
		return nil
	}
	srcObj, ok := vm.Heap.Get(src.AsObject())
	if !ok {
		return nil
	}
	for _, k := range srcObj.PropOrder {
		value.SetProperty(vm.Heap, dst.AsObject(), k, srcObj.Props[k])
	}
	if srcObj.Class == value.ClassArray {
		for i, v := range srcObj.Elements {
			value.SetProperty(vm.Heap, dst.AsObject(), formatNumber(float64(i)), v)
		}
	}
	return nil
}

// newIterator implements GetIterator for for-of: Arrays/Sets/Maps/strings
// get an eager snapshot (mutation mid-loop never affects an in-flight
// for-of, matching the spec's "iterator captured once at loop entry"
// semantics closely enough for this VM's scope); a Generator object is
// iterated by resuming it; anything already a ClassIterator is returned
// unchanged so nested for-of-over-an-iterator-result works.
func (vm *VM) newIterator(src value.Value) (value.Value, error) {
	if src.IsObject() {
		if obj, ok := vm.Heap.Get(src.AsObject()); ok {
			switch obj.Class {
			case value.ClassIterator, value.ClassGenerator:
				return src, nil
			}
		}
	}
	elems, err := vm.eagerElements(src)
	if err != nil {
		return value.Undef, err
	}
	id := vm.Heap.Alloc(&value.Object{Class: value.ClassIterator, IterValues: elems})
	return value.Obj(id), nil
}

// eagerElements is iterableToSlice without the generic-iterator fallback,
// so newIterator can build its own snapshot without recursing into itself
// through iterableToSlice's generic branch.
func (vm *VM) eagerElements(src value.Value) ([]value.Value, error) {
	if src.Kind() == value.String {
		runes := []rune(src.AsString())
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.Str(string(r))
		}
		return out, nil
	}
	if !src.IsObject() {
		return nil, vm.throwError("TypeError", "%s is not iterable", describeForError(src))
	}
	obj, ok := vm.Heap.Get(src.AsObject())
	if !ok {
		return nil, vm.throwError("TypeError", "value is not iterable")
	}
	switch obj.Class {
	case value.ClassArray:
		out := make([]value.Value, len(obj.Elements))
		copy(out, obj.Elements)
		return out, nil
	case value.ClassSet:
		out := make([]value.Value, len(obj.SetValues))
		copy(out, obj.SetValues)
		return out, nil
	case value.ClassMap:
		out := make([]value.Value, len(obj.MapKeys))
		for i, k := range obj.MapKeys {
			out[i] = vm.newArrayValue([]value.Value{k, obj.MapValues[i]})
		}
		return out, nil
	}
	return nil, vm.throwError("TypeError", "value is not iterable")
}

// iteratorNext advances iterVal, peeked (not popped) on the operand stack
// by OpForOfNext's caller.
func (vm *VM) iteratorNext(iterVal value.Value) (value.Value, bool, error) {
	obj, ok := vm.Heap.Get(iterVal.AsObject())
	if !ok {
		return value.Undef, true, nil
	}
	if obj.Class == value.ClassGenerator {
		return vm.resumeGeneratorForOf(iterVal.AsObject())
	}
	if obj.IterNextFn != nil {
		return obj.IterNextFn()
	}
	if obj.IterIndex >= len(obj.IterValues) {
		return value.Undef, true, nil
	}
	v := obj.IterValues[obj.IterIndex]
	obj.IterIndex++
	return v, false, nil
}

// newKeyEnumerator builds a for-in enumerator: own enumerable keys (plus,
// for ordinary objects, inherited-class member names — matching JS's
// for-in walking the prototype chain), snapshotted at loop entry.
func (vm *VM) newKeyEnumerator(src value.Value) value.Value {
	var keys []string
	if src.IsObject() {
		if obj, ok := vm.Heap.Get(src.AsObject()); ok {
			if obj.Class == value.ClassArray {
				for i := range obj.Elements {
					keys = append(keys, formatNumber(float64(i)))
				}
			}
			keys = append(keys, obj.PropOrder...)
		}
	}
	elems := make([]value.Value, len(keys))
	for i, k := range keys {
		elems[i] = value.Str(k)
	}
	id := vm.Heap.Alloc(&value.Object{Class: value.ClassIterator, IterValues: elems})
	return value.Obj(id)
}

func (vm *VM) keyEnumeratorNext(enumVal value.Value) (value.Value, bool) {
	obj, ok := vm.Heap.Get(enumVal.AsObject())
	if !ok || obj.IterIndex >= len(obj.IterValues) {
		return value.Undef, true
	}
	v := obj.IterValues[obj.IterIndex]
	obj.IterIndex++
	return v, false
}
