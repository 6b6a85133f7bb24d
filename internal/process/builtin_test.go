package process

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	m := newTestManager()
	d := Delay("wait", 50*time.Millisecond)
	mustAttach(t, m, d)

	for i := 0; i < 3; i++ {
		m.Update(16 * time.Millisecond)
		if d.IsDead() {
			t.Fatalf("delay finished early after %d ticks", i+1)
		}
	}
	m.Update(16 * time.Millisecond)
	if !d.IsDead() || m.NumSucceeded() != 1 {
		t.Errorf("delay state = %s, succeeded = %d; want finished after 64ms", d.State(), m.NumSucceeded())
	}
}

func TestFunc(t *testing.T) {
	m := newTestManager()
	ran := 0
	ok := Func("ok", func() error { ran++; return nil })
	bad := Func("bad", func() error { return errors.New("nope") })
	mustAttach(t, m, ok)
	mustAttach(t, m, bad)

	m.Update(frame)

	if ran != 1 {
		t.Errorf("fn ran %d times, want 1", ran)
	}
	if m.NumSucceeded() != 1 || m.NumFailed() != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1/1", m.NumSucceeded(), m.NumFailed())
	}
}

func TestChain_RunsSequentially(t *testing.T) {
	m := newTestManager()
	var order []string
	step := func(name string) *Process {
		return Func(name, func() error { order = append(order, name); return nil })
	}
	head, err := Chain(step("wait"), step("fade"), step("load"))
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	mustAttach(t, m, head)

	for i := 0; i < 3; i++ {
		m.Update(frame)
		if len(order) != i+1 {
			t.Fatalf("tick %d: order = %v, want one step per tick", i+1, order)
		}
	}
	if got := strings.Join(order, ","); got != "wait,fade,load" {
		t.Errorf("order = %s", got)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
	if m.Totals().Succeeded != 3 {
		t.Errorf("Totals.Succeeded = %d, want 3", m.Totals().Succeeded)
	}
}

func TestChain_Errors(t *testing.T) {
	if _, err := Chain(); !errors.Is(err, ErrInvalidProcess) {
		t.Errorf("Chain() = %v, want ErrInvalidProcess", err)
	}
	if _, err := Chain(nil); !errors.Is(err, ErrInvalidProcess) {
		t.Errorf("Chain(nil) = %v, want ErrInvalidProcess", err)
	}
	a := New("a", Hooks{})
	if _, err := Chain(a, a); !errors.Is(err, ErrInvalidProcess) {
		t.Errorf("Chain(a, a) = %v, want ErrInvalidProcess", err)
	}
}
