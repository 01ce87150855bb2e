package timeevent

import (
	"testing"
	"time"
)

func TestFireOrdersByTimeThenInsertion(t *testing.T) {
	clk := NewVirtualClock(time.Unix(0, 0))
	q := New(clk)

	var order []string

	q.Schedule(clk.Now().Add(2*time.Second), func(time.Time) { order = append(order, "b") })
	q.Schedule(clk.Now().Add(1*time.Second), func(time.Time) { order = append(order, "a") })
	q.Schedule(clk.Now().Add(1*time.Second), func(time.Time) { order = append(order, "a2") })

	clk.Advance(2 * time.Second)
	q.Fire(clk.Now())

	want := []string{"a", "a2", "b"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestCancelRemovesEvent(t *testing.T) {
	clk := NewVirtualClock(time.Unix(0, 0))
	q := New(clk)

	fired := false
	h := q.Schedule(clk.Now().Add(time.Second), func(time.Time) { fired = true })
	q.Cancel(h)

	clk.Advance(time.Second)
	q.Fire(clk.Now())

	if fired {
		t.Fatal("canceled event fired")
	}
}

func TestCallbackMayRescheduleItself(t *testing.T) {
	clk := NewVirtualClock(time.Unix(0, 0))
	q := New(clk)

	count := 0
	var h *Handle
	var cb Callback
	cb = func(now time.Time) {
		count++
		if count < 3 {
			h = q.Schedule(now.Add(time.Second), cb)
		}
	}
	h = q.Schedule(clk.Now().Add(time.Second), cb)
	_ = h

	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		q.Fire(clk.Now())
	}

	if count != 3 {
		t.Fatalf("got %d callbacks, want 3", count)
	}
}

func TestUpdateReordersEvent(t *testing.T) {
	clk := NewVirtualClock(time.Unix(0, 0))
	q := New(clk)

	var order []string
	a := q.Schedule(clk.Now().Add(1*time.Second), func(time.Time) { order = append(order, "a") })
	q.Schedule(clk.Now().Add(2*time.Second), func(time.Time) { order = append(order, "b") })

	q.Update(a, clk.Now().Add(3*time.Second))

	clk.Advance(3 * time.Second)
	q.Fire(clk.Now())

	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("got %v, want [b a]", order)
	}
}
