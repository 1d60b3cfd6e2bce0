package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

var ShopHeaders = []string{
	"shop_id",
	"name",
	"timezone",
	"open_time",
	"close_time",
	"manager_usernames",
	"employee_usernames",
	"reminder_slots",
	"allow_anyone",
	"dual_cash_mode",
	"is_active",
}

// ShopInfo is a row of the Shops sheet. Read-mostly configuration.
type ShopInfo struct {
	ShopId            string
	Name              string
	Timezone          string
	OpenTime          string // "HH:MM" local
	CloseTime         string
	ManagerUsernames  []string
	EmployeeUsernames []string
	ReminderSlots     map[string][]string
	AllowAnyone       bool
	DualCashMode      bool
	IsActive          bool
}

func ShopInfoFromRow(row []string) ShopInfo {
	padded := make([]string, len(ShopHeaders))
	copy(padded, row)
	return ShopInfo{
		ShopId:            padded[0],
		Name:              padded[1],
		Timezone:          cellOr(padded[2], "UTC"),
		OpenTime:          normalizeClock(padded[3], "09:00"),
		CloseTime:         normalizeClock(padded[4], "21:00"),
		ManagerUsernames:  parseUsernames(padded[5]),
		EmployeeUsernames: parseUsernames(padded[6]),
		ReminderSlots:     parseSlots(padded[7]),
		AllowAnyone:       parseSheetBool(padded[8]),
		DualCashMode:      parseSheetBool(padded[9]),
		IsActive:          padded[10] == "" || parseSheetBool(padded[10]),
	}
}

func (s *ShopInfo) ToRow() []string {
	slots := ""
	if len(s.ReminderSlots) > 0 {
		if raw, err := json.Marshal(s.ReminderSlots); err == nil {
			slots = string(raw)
		}
	}
	return []string{
		s.ShopId,
		s.Name,
		s.Timezone,
		s.OpenTime,
		s.CloseTime,
		strings.Join(s.ManagerUsernames, " "),
		strings.Join(s.EmployeeUsernames, " "),
		slots,
		sheetBool(s.AllowAnyone),
		sheetBool(s.DualCashMode),
		sheetBool(s.IsActive),
	}
}

// Location resolves the shop's time zone, falling back to UTC on bad data
// rather than failing the whole reminder pass.
func (s *ShopInfo) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseUsernames(raw string) []string {
	cleaned := strings.ReplaceAll(raw, ",", " ")
	var out []string
	for _, token := range strings.Fields(cleaned) {
		token = strings.TrimPrefix(strings.TrimSpace(token), "@")
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

// parseSlots accepts either a JSON object ({"open": ["11:00"]}), a JSON
// array, or a bare comma list; the last two land under the "custom" slot.
func parseSlots(raw string) map[string][]string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return map[string][]string{}
	}
	if strings.HasPrefix(cleaned, "{") {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
			out := map[string][]string{}
			for key, value := range payload {
				out[key] = normalizeSlotList(value)
			}
			return out
		}
	}
	if strings.HasPrefix(cleaned, "[") {
		var payload []interface{}
		if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
			return map[string][]string{"custom": normalizeSlotList(payload)}
		}
	}
	var slots []string
	for _, part := range strings.Split(cleaned, ",") {
		if part = strings.TrimSpace(part); part != "" {
			slots = append(slots, part)
		}
	}
	if len(slots) == 0 {
		return map[string][]string{}
	}
	return map[string][]string{"custom": slots}
}

func normalizeSlotList(value interface{}) []string {
	var items []interface{}
	switch v := value.(type) {
	case string:
		items = []interface{}{v}
	case []interface{}:
		items = v
	default:
		return nil
	}
	var out []string
	for _, item := range items {
		text := strings.TrimSpace(stringify(item))
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func normalizeClock(raw, fallback string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return fallback
	}
	parts := strings.SplitN(candidate, ":", 2)
	if len(parts) != 2 {
		return fallback
	}
	hour, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	minute, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return fallback
	}
	hour = clamp(hour, 0, 23)
	minute = clamp(minute, 0, 59)
	return padTwo(hour) + ":" + padTwo(minute)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padTwo(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

func parseSheetBool(raw string) bool {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRUE", "1", "YES", "Y":
		return true
	}
	return false
}

func sheetBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
