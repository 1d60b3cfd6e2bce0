package models

import (
	"testing"
	"time"
)

func simulateTicks(c Cadence, start time.Time, until time.Duration) []int {
	var sentAt []int
	state := CadenceState{}
	for offset := time.Duration(0); offset <= until; offset += time.Minute {
		now := start.Add(offset)
		if c.Due(state, start, now) {
			sentAt = append(sentAt, int(offset.Minutes()))
			state = state.Advance(c, now)
		}
	}
	return sentAt
}

func TestCadenceLadderThenRepeat(t *testing.T) {
	c := Cadence{
		InitialDelaysMin: []int{15, 30},
		RepeatEveryMin:   45,
		AfterClockMin:    -1,
	}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	got := simulateTicks(c, start, 3*time.Hour)
	expected := []int{15, 30, 75, 120, 165}
	if len(got) != len(expected) {
		t.Fatalf("expected sends at %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("send %d expected at minute %d, got %d (all: %v)", i, expected[i], got[i], got)
		}
	}
}

func TestCadenceNothingBeforeFirstDelay(t *testing.T) {
	c := Cadence{InitialDelaysMin: []int{15, 30}, RepeatEveryMin: 45, AfterClockMin: -1}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	state := CadenceState{}

	for offset := time.Duration(0); offset < 15*time.Minute; offset += time.Minute {
		if c.Due(state, start, start.Add(offset)) {
			t.Fatalf("reminder due at minute %v, before the first delay", offset.Minutes())
		}
	}
}

func TestCadenceSameTickDoesNotDoubleSend(t *testing.T) {
	c := Cadence{InitialDelaysMin: []int{15, 30}, RepeatEveryMin: 45, AfterClockMin: -1}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start.Add(16 * time.Minute)

	state := CadenceState{}
	if !c.Due(state, start, now) {
		t.Fatal("expected the first reminder to be due")
	}
	state = state.Advance(c, now)
	if c.Due(state, start, now) {
		t.Fatal("the same tick fired twice after Advance was persisted")
	}
}

func TestCadenceAfterClockSwitchesInterval(t *testing.T) {
	// After 18:00 local the repeat tightens from 45 to 20 minutes.
	c := Cadence{
		InitialDelaysMin: []int{15},
		RepeatEveryMin:   45,
		AfterClockMin:    18 * 60,
		AfterRepeatMin:   20,
	}
	start := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)

	got := simulateTicks(c, start, 2*time.Hour)
	// 17:15 ladder, 18:00 repeat already under the switched 20min interval
	// (45 since start not needed once past the clock), then every 20min.
	expected := []int{15, 60, 80, 100, 120}
	if len(got) != len(expected) {
		t.Fatalf("expected sends at %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("send %d expected at minute %d, got %d (all: %v)", i, expected[i], got[i], got)
		}
	}
}

func TestCadenceStateSaturates(t *testing.T) {
	c := Cadence{InitialDelaysMin: []int{15, 30}, RepeatEveryMin: 45, AfterClockMin: -1}
	now := time.Now()
	state := CadenceState{}
	for i := 0; i < 10; i++ {
		state = state.Advance(c, now)
	}
	if state.Sent != len(c.InitialDelaysMin) {
		t.Fatalf("Sent should saturate at %d, got %d", len(c.InitialDelaysMin), state.Sent)
	}
}

func TestCadenceSlotKeyPattern(t *testing.T) {
	key := CadenceSlotKey("run-1", "shop-1", "open")
	if key != "cadence:run-1:shop-1:open" {
		t.Fatalf("unexpected slot key: %s", key)
	}
	if CadenceKeyPattern("run-1") != "cadence:run-1:*" {
		t.Fatalf("unexpected pattern: %s", CadenceKeyPattern("run-1"))
	}
}
