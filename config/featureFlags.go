package config

import (
	"os"
	"strings"
)

// RemindersEnabled gates the whole cadence engine. Useful when running a
// second instance against the same spreadsheet (only one should remind).
//
// Set via env:
// - REMINDERS_ENABLED=false
func RemindersEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REMINDERS_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DeltaAlertsEnabled gates the manager delta alerts independently of
// reminders.
func DeltaAlertsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DELTA_ALERTS_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ReminderFanoutViaPubSub switches the scheduler from inline evaluation to
// publishing one tick message per shop on the reminder topic.
func ReminderFanoutViaPubSub() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REMINDER_FANOUT_PUBSUB")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
