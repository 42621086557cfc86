package memx

import "testing"

func TestUnderPressure(t *testing.T) {
	for _, c := range []struct {
		used, free uint64
		want       bool
	}{
		{300, 100, false},
		{301, 100, true},
		{10, 0, true},
		{0, 0, false},
	} {
		if got := UnderPressure(c.used, c.free); got != c.want {
			t.Fatalf("UnderPressure(%d, %d) = %v, want %v", c.used, c.free, got, c.want)
		}
	}
}

func TestRuntimeStats(t *testing.T) {
	var r Runtime
	used, _ := r.Stats()
	if used == 0 {
		t.Fatal("heap in use should be non-zero in a running test binary")
	}
	r.Collect()
}
