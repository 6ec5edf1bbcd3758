package clock

import (
	"testing"
	"time"
)

func TestSystem_ReturnsUTC(t *testing.T) {
	now := System{}.Now()
	if now.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", now.Location())
	}
}

func TestFixed(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := Fixed(ts)
	if !c.Now().Equal(ts) {
		t.Errorf("Now() = %v, want %v", c.Now(), ts)
	}
	if !c.Now().Equal(c.Now()) {
		t.Error("Fixed clock should not move")
	}
}

func TestManual_Advance(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManual(ts)
	m.Advance(90 * time.Second)
	if got, want := m.Now(), ts.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	later := ts.Add(48 * time.Hour)
	m.Set(later)
	if !m.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", m.Now(), later)
	}
}
