package engine

import "testing"

func TestShouldAutoScrollNearBottom(t *testing.T) {
	p := NewScrollPolicy()

	cases := []struct {
		name string
		m    Metrics
		want bool
	}{
		{"pinned to bottom", Metrics{ScrollHeight: 1000, ScrollTop: 500, ClientHeight: 500}, true},
		{"within threshold", Metrics{ScrollHeight: 1000, ScrollTop: 492, ClientHeight: 500}, true},
		{"at threshold", Metrics{ScrollHeight: 1000, ScrollTop: 490, ClientHeight: 500}, true},
		{"scrolled up", Metrics{ScrollHeight: 1000, ScrollTop: 200, ClientHeight: 500}, false},
		{"just past threshold", Metrics{ScrollHeight: 1000, ScrollTop: 489, ClientHeight: 500}, false},
	}

	for _, tc := range cases {
		if got := p.ShouldAutoScroll(tc.m); got != tc.want {
			t.Errorf("%s: ShouldAutoScroll = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestForcedAppendAlwaysScrolls(t *testing.T) {
	p := NewScrollPolicy()
	p.UpdateMetrics(Metrics{ScrollHeight: 1000, ScrollTop: 0, ClientHeight: 500})

	if p.OnContentAppended(false) {
		t.Fatalf("scrolled a viewer who is reading history")
	}
	if !p.OnContentAppended(true) {
		t.Fatalf("forced append did not scroll")
	}
}

func TestNoMetricsDefaultsToScroll(t *testing.T) {
	p := NewScrollPolicy()
	if !p.OnContentAppended(false) {
		t.Fatalf("expected scroll before any metrics are reported")
	}
}
