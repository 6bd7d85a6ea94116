package pace

import (
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	for _, interval := range []time.Duration{0, 15 * time.Nanosecond, time.Hour} {
		f := NewFixed(interval)
		for i := 0; i < 3; i++ {
			if next := f.NextInterval(); next != interval {
				t.Errorf("Expected %v, got: %v", interval, next)
			}
		}
		f.Reset()
		if next := f.NextInterval(); next != interval {
			t.Errorf("Expected %v after reset, got: %v", interval, next)
		}
	}
}
