package vm

import "github.com/qsjs/quicksilver/internal/value"

// newRegexpFromLiteral backs OpNewRegexp. internal/parser does not lex
// regex-literal syntax yet (see DESIGN.md's VM section), so no compiled
// chunk ever actually reaches this case today — RegExp objects are only
// constructible via a future host-provided `new RegExp(pattern, flags)`.
// Kept as a defensive fallback rather than a panic so a hand-assembled
// chunk exercising the opcode still gets a real (if pattern-less) RegExp
// object instead of crashing the VM.
func (vm *VM) newRegexpFromLiteral(lit value.Value) value.Value {
	pattern := ""
	if lit.Kind() == value.String {
		pattern = lit.AsString()
	}
	id := vm.Heap.Alloc(&value.Object{Class: value.ClassRegExp, Pattern: pattern})
	return value.Obj(id)
}
