package ruby

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/michaelsabo/RubyGateway/interp"
	"github.com/michaelsabo/RubyGateway/interptest"
)

func TestProtectedCallCapturesException(t *testing.T) {
	g, fake := newTestGateway(t)

	cls := fake.DefineClass("Boomer", interp.None)
	fake.DefineMethod(cls, "boom", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		vm.Raise("TypeError", "no boom today")
		return interp.None
	})
	obj := wrap(g, fake.NewInstance(cls))

	_, err := obj.Call("boom")
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("error = %v, want Exception", err)
	}
	if exc.Class != "TypeError" || exc.Message != "no boom today" {
		t.Errorf("Exception = %+v", exc)
	}

	hist := g.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if hist[0].Class != "TypeError" || hist[0].Message != "no boom today" {
		t.Errorf("history entry = %+v", hist[0])
	}
}

func TestProtectedCallNormalCompletion(t *testing.T) {
	g, fake := newTestGateway(t)

	cls := fake.DefineClass("Quiet", interp.None)
	fake.DefineMethod(cls, "answer", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.IntValue(42)
	})
	obj := wrap(g, fake.NewInstance(cls))

	res, err := obj.Call("answer")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	n, ok, err := res.AsInt64()
	if err != nil || !ok || n != 42 {
		t.Errorf("AsInt64 = (%d, %v, %v), want (42, true, nil)", n, ok, err)
	}
	if g.HistoryLen() != 0 {
		t.Errorf("history length = %d, want 0", g.HistoryLen())
	}
}

func TestHistoryBounded(t *testing.T) {
	fake := interptest.New()
	cfg := DefaultConfig()
	cfg.History.Capacity = 3
	g, err := NewWithConfig(fake, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer g.Close()

	cls := fake.DefineClass("Grumpy", interp.None)
	fake.DefineMethod(cls, "complain", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		msg, _ := vm.StringBytes(args[0])
		vm.Raise("RuntimeError", string(msg))
		return interp.None
	})
	obj := wrap(g, fake.NewInstance(cls))

	for i := 0; i < 5; i++ {
		if _, err := obj.Call("complain", fmt.Sprintf("gripe %d", i)); err == nil {
			t.Fatal("Call succeeded, want exception")
		}
	}

	hist := g.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[0].Message != "gripe 2" || hist[2].Message != "gripe 4" {
		t.Errorf("history = %+v, want gripes 2..4", hist)
	}
}

func TestHistoryCBORRoundTrip(t *testing.T) {
	g, fake := newTestGateway(t)

	cls := fake.DefineClass("Flaky", interp.None)
	fake.DefineMethod(cls, "go", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		vm.Raise("NameError", "flaked out")
		return interp.None
	})
	obj := wrap(g, fake.NewInstance(cls))
	obj.Call("go")

	data, err := g.ExportHistoryCBOR()
	if err != nil {
		t.Fatalf("ExportHistoryCBOR failed: %v", err)
	}
	snap, err := UnmarshalHistorySnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalHistorySnapshot failed: %v", err)
	}

	want := &HistorySnapshot{
		Capacity: defaultHistoryCapacity,
		Entries:  []Exception{{Class: "NameError", Message: "flaked out"}},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

// wrap boxes a raw fake-interpreter handle through the gateway. The test
// fixture hands raw handles straight from the fake; production code receives
// them from interpreter operations instead.
func wrap(g *Gateway, raw interp.Value) *Object {
	obj, err := g.runObject(func(vm interp.VM) (interp.Value, error) {
		return raw, nil
	})
	if err != nil {
		panic(err)
	}
	return obj
}
