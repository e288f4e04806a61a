package host

import (
	"testing"

	"github.com/me/docsched/pkg/model"
)

func TestReserve_LeastLoaded(t *testing.T) {
	r := NewRegistry()
	r.Insert(&model.Host{Name: "alpha", Max: 4, Running: 2})
	r.Insert(&model.Host{Name: "beta", Max: 4, Running: 1})

	h := r.Reserve()
	if h == nil || h.Name != "beta" {
		t.Fatalf("Reserve = %+v, want beta", h)
	}
	if h.Running != 2 {
		t.Errorf("beta.Running = %d, want 2 after reserve", h.Running)
	}
}

func TestReserve_TieBreaksByName(t *testing.T) {
	r := NewRegistry()
	r.Insert(&model.Host{Name: "zeta", Max: 2})
	r.Insert(&model.Host{Name: "alpha", Max: 2})

	if h := r.Reserve(); h == nil || h.Name != "alpha" {
		t.Fatalf("Reserve = %+v, want alpha on tie", h)
	}
}

func TestReserve_CapacityNeverExceeded(t *testing.T) {
	r := NewRegistry()
	r.Insert(&model.Host{Name: "solo", Max: 2})

	if h := r.Reserve(); h == nil {
		t.Fatal("first Reserve failed")
	}
	if h := r.Reserve(); h == nil {
		t.Fatal("second Reserve failed")
	}
	if h := r.Reserve(); h != nil {
		t.Fatalf("Reserve over capacity returned %+v", h)
	}
	if got := r.Get("solo").Running; got != 2 {
		t.Errorf("solo.Running = %d, want 2", got)
	}
}

func TestRelease(t *testing.T) {
	r := NewRegistry()
	r.Insert(&model.Host{Name: "solo", Max: 1})

	r.Reserve()
	r.Release("solo")
	if got := r.Get("solo").Running; got != 0 {
		t.Errorf("Running = %d, want 0 after release", got)
	}

	// Releasing an unknown or idle host is a no-op.
	r.Release("ghost")
	r.Release("solo")
	if got := r.Get("solo").Running; got != 0 {
		t.Errorf("Running = %d, want 0 after extra release", got)
	}
}

func TestListSortedAndClear(t *testing.T) {
	r := NewRegistry()
	r.Insert(&model.Host{Name: "c", Max: 1})
	r.Insert(&model.Host{Name: "a", Max: 1})
	r.Insert(&model.Host{Name: "b", Max: 1})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List len = %d, want 3", len(list))
	}
	if list[0].Name != "a" || list[1].Name != "b" || list[2].Name != "c" {
		t.Errorf("List not sorted: %v", []string{list[0].Name, list[1].Name, list[2].Name})
	}

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("Count = %d after Clear, want 0", r.Count())
	}
}
