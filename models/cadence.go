package models

import (
	"fmt"
	"time"
)

// Cadence is the reminder schedule for one role slot: a ladder of initial
// delays measured from the actor's start time, then a steady repeat
// interval, with an optional switch to a different interval once the shop's
// local clock passes AfterClockMin.
type Cadence struct {
	InitialDelaysMin []int
	RepeatEveryMin   int
	AfterClockMin    int // minutes since local midnight; negative disables the switch
	AfterRepeatMin   int
}

// CadenceState is the externally persisted progress of one slot. The zero
// value means "never sent". Phase is derived, not stored: Sent below the
// number of initial delays is the initial phase, anything else the repeat
// phase. Sent saturates at the ladder length, which makes the repeat phase
// sticky even if the after-clock switch flips back overnight.
type CadenceState struct {
	LastSentAt time.Time `json:"last_sent_at"`
	Sent       int       `json:"sent"`
}

// CadenceSlotKey names the persisted state of one (run, shop, slot).
func CadenceSlotKey(runId, shopId, slot string) string {
	return fmt.Sprintf("cadence:%s:%s:%s", runId, shopId, slot)
}

// CadenceKeyPattern matches every slot of a run, for clearing on close/return.
func CadenceKeyPattern(runId string) string {
	return fmt.Sprintf("cadence:%s:*", runId)
}

func (c Cadence) afterSwitchActive(now time.Time) bool {
	if c.AfterClockMin < 0 {
		return false
	}
	return now.Hour()*60+now.Minute() >= c.AfterClockMin
}

// Due decides whether a reminder should go out. start is the actor's start
// timestamp, now the current shop-local time. The comparison is monotonic
// in now, so evaluating the same tick twice cannot double-send as long as
// Advance's result is persisted between ticks.
func (c Cadence) Due(state CadenceState, start, now time.Time) bool {
	elapsed := now.Sub(start)
	if len(c.InitialDelaysMin) > 0 && elapsed < minutes(c.InitialDelaysMin[0]) {
		return false
	}
	if state.Sent < len(c.InitialDelaysMin) && !c.afterSwitchActive(now) {
		return elapsed >= minutes(c.InitialDelaysMin[state.Sent])
	}
	interval := c.RepeatEveryMin
	if c.afterSwitchActive(now) && c.AfterRepeatMin > 0 {
		interval = c.AfterRepeatMin
	}
	if interval <= 0 {
		return false
	}
	since := state.LastSentAt
	if since.IsZero() {
		since = start
	}
	return now.Sub(since) >= minutes(interval)
}

// Advance is the single transition function: stamp the send, bump the
// counter, saturate at the ladder length.
func (s CadenceState) Advance(c Cadence, now time.Time) CadenceState {
	sent := s.Sent + 1
	if sent > len(c.InitialDelaysMin) {
		sent = len(c.InitialDelaysMin)
	}
	return CadenceState{LastSentAt: now, Sent: sent}
}

func minutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}
