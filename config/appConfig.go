package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RunSettings controls the lifecycle manager's locking behaviour and the
// default checklist templates seeded into new runs.
type RunSettings struct {
	LockTTL     time.Duration
	LockWait    time.Duration
	Scope       string // "shop_id_date" (default) or "shop_id_only"
	TemplateMap map[string]string
}

// CadenceSettings are the process-wide reminder defaults; per-shop slot
// overrides in the Shops sheet take precedence.
type CadenceSettings struct {
	InitialDelaysMin []int
	RepeatEveryMin   int
	AfterClock       string // "HH:MM" local shop time, empty disables the switch
	AfterRepeatMin   int
	StateTTL         time.Duration
}

type NotificationSettings struct {
	ManagerChatIds []int64
}

type AlertSettings struct {
	DeltaThreshold string // parsed by callers with utils.ParseDecimal
	DeltaCooldown  time.Duration
}

func GetRunSettings() RunSettings {
	return RunSettings{
		LockTTL:     time.Duration(envInt("REDIS_RUN_LOCK_TTL_SEC", 10)) * time.Second,
		LockWait:    time.Duration(envInt("RUN_LOCK_WAIT_SEC", 5)) * time.Second,
		Scope:       envString("RUN_SCOPE", "shop_id_date"),
		TemplateMap: defaultTemplateMap(),
	}
}

func defaultTemplateMap() map[string]string {
	opening := envString("DEFAULT_TEMPLATE_OPEN_ID", envString("DEFAULT_TEMPLATE_ID", "opening_v1"))
	closing := envString("DEFAULT_TEMPLATE_CLOSE_ID", "closing_v1")
	check1100 := envString("DEFAULT_TEMPLATE_CHECK_1100_ID", closing)
	check1600 := envString("DEFAULT_TEMPLATE_CHECK_1600_ID", check1100)
	check1900 := envString("DEFAULT_TEMPLATE_CHECK_1900_ID", check1600)
	finance := envString("DEFAULT_TEMPLATE_FINANCE_ID", closing)
	return map[string]string{
		"open":       opening,
		"check_1100": check1100,
		"check_1600": check1600,
		"check_1900": check1900,
		"close":      closing,
		"finance":    finance,
	}
}

func GetCadenceSettings() CadenceSettings {
	return CadenceSettings{
		InitialDelaysMin: envIntList("REMINDER_INITIAL_DELAYS_MIN", []int{15, 30}),
		RepeatEveryMin:   envInt("REMINDER_REPEAT_MIN", 45),
		AfterClock:       envString("REMINDER_AFTER_CLOCK", ""),
		AfterRepeatMin:   envInt("REMINDER_AFTER_REPEAT_MIN", 0),
		StateTTL:         time.Duration(envInt("REMINDER_STATE_TTL_HOURS", 36)) * time.Hour,
	}
}

func GetNotificationSettings() NotificationSettings {
	return NotificationSettings{
		ManagerChatIds: envInt64List("MANAGER_NOTIFY_CHAT_IDS"),
	}
}

func GetAlertSettings() AlertSettings {
	return AlertSettings{
		DeltaThreshold: envString("DELTA_THRESHOLD", "300"),
		DeltaCooldown:  time.Duration(envInt("DELTA_ALERT_COOLDOWN_SEC", 3600)) * time.Second,
	}
}

func GetTelegramBotToken() string {
	return os.Getenv("TELEGRAM_BOT_TOKEN")
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return fallback
	}
	return v
}

func envIntList(name string, fallback []int) []int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envInt64List(name string) []int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
