package vm

import (
	"math"
	"time"

	"github.com/qsjs/quicksilver/internal/value"
)

// Date models every instant as a float64 millisecond count (Object.
// EpochMillis) and always renders components in UTC: the teacher's
// environment (internal/agent's scheduling, internal/cron) is itself
// UTC-only, so a local-timezone Date would be the outlier here, not the
// simplification.
func (vm *VM) installDateGlobal() {
	ctor := vm.nativeFn("Date", func(args []value.Value) (value.Value, error) {
		return vm.newDate(args)
	})
	value.SetProperty(vm.Heap, ctor.AsObject(), "now", vm.nativeFn("now", func(_ []value.Value) (value.Value, error) {
		return value.Num(float64(time.Now().UnixMilli())), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "parse", vm.nativeFn("parse", func(args []value.Value) (value.Value, error) {
		t, ok := parseDateString(argAt(args, 0).AsString())
		if !ok {
			return value.Num(math.NaN()), nil
		}
		return value.Num(float64(t.UnixMilli())), nil
	}))
	value.SetProperty(vm.Heap, ctor.AsObject(), "UTC", vm.nativeFn("UTC", func(args []value.Value) (value.Value, error) {
		ms, err := vm.dateComponentsToMillis(args)
		if err != nil {
			return value.Undef, err
		}
		return value.Num(ms), nil
	}))
	vm.Globals["Date"] = ctor
}

func parseDateString(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (vm *VM) dateComponentsToMillis(args []value.Value) (float64, error) {
	get := func(i int, def float64) (float64, error) {
		if i >= len(args) {
			return def, nil
		}
		return vm.toNumber(args[i])
	}
	year, err := get(0, 1970)
	if err != nil {
		return 0, err
	}
	month, err := get(1, 0)
	if err != nil {
		return 0, err
	}
	day, err := get(2, 1)
	if err != nil {
		return 0, err
	}
	hour, err := get(3, 0)
	if err != nil {
		return 0, err
	}
	min, err := get(4, 0)
	if err != nil {
		return 0, err
	}
	sec, err := get(5, 0)
	if err != nil {
		return 0, err
	}
	ms, err := get(6, 0)
	if err != nil {
		return 0, err
	}
	if year >= 0 && year <= 99 {
		year += 1900
	}
	t := time.Date(int(year), time.Month(int(month))+1, int(day), int(hour), int(min), int(sec), int(ms)*int(time.Millisecond), time.UTC)
	return float64(t.UnixMilli()), nil
}

func (vm *VM) newDate(args []value.Value) (value.Value, error) {
	var ms float64
	switch len(args) {
	case 0:
		ms = float64(time.Now().UnixMilli())
	case 1:
		if args[0].Kind() == value.String {
			t, ok := parseDateString(args[0].AsString())
			if !ok {
				ms = math.NaN()
			} else {
				ms = float64(t.UnixMilli())
			}
		} else {
			n, err := vm.toNumber(args[0])
			if err != nil {
				return value.Undef, err
			}
			ms = n
		}
	default:
		n, err := vm.dateComponentsToMillis(args)
		if err != nil {
			return value.Undef, err
		}
		ms = n
	}

	obj := &value.Object{Class: value.ClassDate, EpochMillis: ms}
	id := vm.Heap.Alloc(obj)
	dateVal := value.Obj(id)

	asTime := func() time.Time { return time.UnixMilli(int64(obj.EpochMillis)).UTC() }
	numMethod := func(name string, f func(t time.Time) float64) {
		value.SetProperty(vm.Heap, id, name, vm.nativeFn(name, func(_ []value.Value) (value.Value, error) {
			if math.IsNaN(obj.EpochMillis) {
				return value.Num(math.NaN()), nil
			}
			return value.Num(f(asTime())), nil
		}))
	}
	numMethod("getFullYear", func(t time.Time) float64 { return float64(t.Year()) })
	numMethod("getUTCFullYear", func(t time.Time) float64 { return float64(t.Year()) })
	numMethod("getMonth", func(t time.Time) float64 { return float64(t.Month() - 1) })
	numMethod("getUTCMonth", func(t time.Time) float64 { return float64(t.Month() - 1) })
	numMethod("getDate", func(t time.Time) float64 { return float64(t.Day()) })
	numMethod("getUTCDate", func(t time.Time) float64 { return float64(t.Day()) })
	numMethod("getDay", func(t time.Time) float64 { return float64(t.Weekday()) })
	numMethod("getUTCDay", func(t time.Time) float64 { return float64(t.Weekday()) })
	numMethod("getHours", func(t time.Time) float64 { return float64(t.Hour()) })
	numMethod("getUTCHours", func(t time.Time) float64 { return float64(t.Hour()) })
	numMethod("getMinutes", func(t time.Time) float64 { return float64(t.Minute()) })
	numMethod("getUTCMinutes", func(t time.Time) float64 { return float64(t.Minute()) })
	numMethod("getSeconds", func(t time.Time) float64 { return float64(t.Second()) })
	numMethod("getUTCSeconds", func(t time.Time) float64 { return float64(t.Second()) })
	numMethod("getMilliseconds", func(t time.Time) float64 { return float64(t.Nanosecond() / int(time.Millisecond)) })
	numMethod("getUTCMilliseconds", func(t time.Time) float64 { return float64(t.Nanosecond() / int(time.Millisecond)) })
	value.SetProperty(vm.Heap, id, "getTimezoneOffset", vm.nativeFn("getTimezoneOffset", func(_ []value.Value) (value.Value, error) {
		return value.Num(0), nil
	}))
	value.SetProperty(vm.Heap, id, "getTime", vm.nativeFn("getTime", func(_ []value.Value) (value.Value, error) {
		return value.Num(obj.EpochMillis), nil
	}))
	value.SetProperty(vm.Heap, id, "valueOf", vm.nativeFn("valueOf", func(_ []value.Value) (value.Value, error) {
		return value.Num(obj.EpochMillis), nil
	}))
	value.SetProperty(vm.Heap, id, "setTime", vm.nativeFn("setTime", func(a []value.Value) (value.Value, error) {
		n, err := vm.toNumber(argAt(a, 0))
		if err != nil {
			return value.Undef, err
		}
		obj.EpochMillis = n
		return value.Num(n), nil
	}))
	value.SetProperty(vm.Heap, id, "toISOString", vm.nativeFn("toISOString", func(_ []value.Value) (value.Value, error) {
		if math.IsNaN(obj.EpochMillis) {
			return value.Undef, vm.throwError("RangeError", "Invalid time value")
		}
		return value.Str(asTime().Format("2006-01-02T15:04:05.000Z")), nil
	}))
	toStr := vm.nativeFn("toString", func(_ []value.Value) (value.Value, error) {
		if math.IsNaN(obj.EpochMillis) {
			return value.Str("Invalid Date"), nil
		}
		return value.Str(asTime().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")), nil
	})
	value.SetProperty(vm.Heap, id, "toString", toStr)
	value.SetProperty(vm.Heap, id, "toDateString", vm.nativeFn("toDateString", func(_ []value.Value) (value.Value, error) {
		return value.Str(asTime().Format("Mon Jan 02 2006")), nil
	}))
	value.SetProperty(vm.Heap, id, "toJSON", vm.nativeFn("toJSON", func(_ []value.Value) (value.Value, error) {
		if math.IsNaN(obj.EpochMillis) {
			return value.Nul, nil
		}
		return value.Str(asTime().Format("2006-01-02T15:04:05.000Z")), nil
	}))
	value.SetProperty(vm.Heap, id, "toLocaleDateString", vm.nativeFn("toLocaleDateString", func(_ []value.Value) (value.Value, error) {
		return value.Str(asTime().Format("1/2/2006")), nil
	}))
	return dateVal, nil
}
