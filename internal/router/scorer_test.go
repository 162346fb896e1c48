package router

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		route Route
		pref  Preference
		want  int64
	}{
		{"cheapest", Route{FeeBps: 10, Latency: 60}, PreferCheapest, 9990},
		{"fastest", Route{FeeBps: 10, Latency: 60}, PreferFastest, 86340},
		{"balanced", Route{FeeBps: 10, Latency: 60}, PreferBalanced, 4995 + 43170},
		{"unknown falls back to balanced", Route{FeeBps: 10, Latency: 60}, Preference("whatever"), 4995 + 43170},
		{"latency clamped", Route{FeeBps: 10, Latency: 200000}, PreferFastest, 0},
		{"latency at ceiling", Route{FeeBps: 10, Latency: TimeCeiling}, PreferFastest, 0},
		{"balanced latency clamped", Route{FeeBps: 0, Latency: 1 << 62}, PreferBalanced, 5000},
		{"fee at ceiling", Route{FeeBps: FeeCeiling, Latency: 0}, PreferCheapest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.route, tt.pref); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_MonotonicInFee(t *testing.T) {
	prev := Score(Route{FeeBps: 0, Latency: 60}, PreferCheapest)
	for fee := uint32(1); fee <= FeeCeiling; fee += 7 {
		s := Score(Route{FeeBps: fee, Latency: 60}, PreferCheapest)
		if s >= prev {
			t.Fatalf("Score(fee=%d) = %d, not below %d", fee, s, prev)
		}
		prev = s
	}
}

func TestScore_MonotonicInLatency(t *testing.T) {
	prev := Score(Route{FeeBps: 10, Latency: 0}, PreferFastest)
	for latency := uint64(1); latency <= TimeCeiling; latency += 97 {
		s := Score(Route{FeeBps: 10, Latency: latency}, PreferFastest)
		if s >= prev {
			t.Fatalf("Score(latency=%d) = %d, not below %d", latency, s, prev)
		}
		prev = s
	}
}

func TestScore_NeverNegative(t *testing.T) {
	prefs := []Preference{PreferCheapest, PreferFastest, PreferBalanced}
	routes := []Route{
		{FeeBps: FeeCeiling * 3, Latency: TimeCeiling * 3},
		{FeeBps: 0, Latency: ^uint64(0)},
	}
	for _, p := range prefs {
		for _, r := range routes {
			if s := Score(r, p); s < 0 {
				t.Errorf("Score(%+v, %s) = %d", r, p, s)
			}
		}
	}
}

func TestParsePreference(t *testing.T) {
	if ParsePreference("fastest") != PreferFastest {
		t.Error("fastest should parse as PreferFastest")
	}
	if ParsePreference("") != Preference("") {
		t.Error("empty preference should stay empty")
	}

	route := Route{Name: "r", FeeBps: 10, Latency: 60}
	for _, s := range []string{"CHEAPEST", " fastest ", "Fastest"} {
		if got, want := Score(route, ParsePreference(s)), Score(route, PreferBalanced); got != want {
			t.Errorf("Score with %q = %d, want balanced score %d", s, got, want)
		}
	}
}
