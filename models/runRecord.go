package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusOpened       RunStatus = "opened"
	RunStatusInProgress   RunStatus = "in_progress"
	RunStatusReadyToClose RunStatus = "ready_to_close"
	RunStatusClosed       RunStatus = "closed"
	RunStatusReturned     RunStatus = "returned"
)

// RunHeaders is the column layout of the Runs sheet. Order matters:
// ToRow/RunRecordFromRow are positional.
var RunHeaders = []string{
	"run_id",
	"date",
	"shop_id",
	"status",
	"opener_user_id",
	"opener_username",
	"opener_at",
	"closer_user_id",
	"closer_username",
	"closer_at",
	"current_active_user_id",
	"template_open_id",
	"template_close_id",
	"template_phase_map",
	"delta_total",
	"comment",
	"version",
	"created_at",
	"finished_at",
}

// RunRecord is one shift for one shop on one calendar date.
type RunRecord struct {
	RunId               string
	Date                string // YYYY-MM-DD
	ShopId              string
	Status              RunStatus
	OpenerUserId        string
	OpenerUsername      string
	OpenerAt            string
	CloserUserId        string
	CloserUsername      string
	CloserAt            string
	CurrentActiveUserId string
	TemplateOpenId      string
	TemplateCloseId     string
	TemplatePhaseMap    map[string]string
	DeltaTotal          string // formatted with 2 decimal places once finalized
	Comment             string
	Version             int
	CreatedAt           string
	FinishedAt          string
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r *RunRecord) ToRow() []string {
	phaseMap := ""
	if len(r.TemplatePhaseMap) > 0 {
		if raw, err := json.Marshal(r.TemplatePhaseMap); err == nil {
			phaseMap = string(raw)
		}
	}
	return []string{
		r.RunId,
		r.Date,
		r.ShopId,
		string(r.Status),
		r.OpenerUserId,
		r.OpenerUsername,
		r.OpenerAt,
		r.CloserUserId,
		r.CloserUsername,
		r.CloserAt,
		r.CurrentActiveUserId,
		r.TemplateOpenId,
		r.TemplateCloseId,
		phaseMap,
		r.DeltaTotal,
		r.Comment,
		strconv.Itoa(r.Version),
		r.CreatedAt,
		r.FinishedAt,
	}
}

// RunRecordFromRow tolerates short rows: sheets drop trailing empty cells,
// and rows written before the current_active_user_id column was added are
// one cell shorter. The heuristic matches what long-lived spreadsheets
// actually contain.
func RunRecordFromRow(row []string) RunRecord {
	expected := len(RunHeaders)
	padded := make([]string, expected)
	copy(padded, row)

	currentActiveIdx := 10
	templateOpenIdx := 11
	templateCloseIdx := 12
	phaseMapIdx := 13
	deltaIdx := 14
	commentIdx := 15
	versionIdx := 16
	createdIdx := 17
	finishedIdx := 18
	hasCurrentActive := true

	switch {
	case len(row) >= expected || len(row) == expected-1:
		if len(row) == expected-1 {
			// Column 11 holding a template id (not a numeric user id) means
			// the row predates current_active_user_id; otherwise only
			// finished_at is missing.
			if padded[10] != "" && !isDigits(padded[10]) {
				hasCurrentActive = false
				templateOpenIdx, templateCloseIdx, phaseMapIdx = 10, 11, 12
				deltaIdx, commentIdx, versionIdx, createdIdx, finishedIdx = 13, 14, 15, 16, 17
			}
		}
	default:
		hasCurrentActive = false
		templateOpenIdx, templateCloseIdx = 10, 11
		phaseMapIdx = -1
		deltaIdx, commentIdx, versionIdx, createdIdx, finishedIdx = 12, 13, 14, 15, 16
	}

	record := RunRecord{
		RunId:           padded[0],
		Date:            padded[1],
		ShopId:          padded[2],
		Status:          RunStatus(cellOr(padded[3], string(RunStatusOpened))),
		OpenerUserId:    padded[4],
		OpenerUsername:  padded[5],
		OpenerAt:        padded[6],
		CloserUserId:    padded[7],
		CloserUsername:  padded[8],
		CloserAt:        padded[9],
		TemplateOpenId:  padded[templateOpenIdx],
		TemplateCloseId: padded[templateCloseIdx],
		DeltaTotal:      padded[deltaIdx],
		Comment:         padded[commentIdx],
		Version:         parseIntOr(padded[versionIdx], 1),
		CreatedAt:       cellOr(padded[createdIdx], nowISO()),
		FinishedAt:      padded[finishedIdx],
	}
	if hasCurrentActive {
		record.CurrentActiveUserId = padded[currentActiveIdx]
	}
	if phaseMapIdx >= 0 {
		record.TemplatePhaseMap = parsePhaseMap(padded[phaseMapIdx])
	}
	record.reconcileTemplateFields()
	return record
}

// reconcileTemplateFields keeps the flat template columns and the phase map
// in sync regardless of which one the row carried.
func (r *RunRecord) reconcileTemplateFields() {
	if r.TemplatePhaseMap == nil {
		r.TemplatePhaseMap = map[string]string{}
	}
	if r.TemplateOpenId != "" {
		if _, ok := r.TemplatePhaseMap["open"]; !ok {
			r.TemplatePhaseMap["open"] = r.TemplateOpenId
		}
	} else {
		r.TemplateOpenId = r.TemplatePhaseMap["open"]
	}
	if r.TemplateCloseId != "" {
		if _, ok := r.TemplatePhaseMap["close"]; !ok {
			r.TemplatePhaseMap["close"] = r.TemplateCloseId
		}
	} else {
		r.TemplateCloseId = r.TemplatePhaseMap["close"]
	}
}

// TemplateForPhase resolves which checklist template governs a phase.
// "continue" falls back to the closing template like the run sheet always did.
func (r *RunRecord) TemplateForPhase(phase string) string {
	if id := r.TemplatePhaseMap[phase]; id != "" {
		return id
	}
	switch phase {
	case "open":
		return r.TemplateOpenId
	case "continue", "close":
		return r.TemplateCloseId
	}
	return ""
}

// WithOpener stamps the opener slot. Status moves to in_progress unless the
// run is closed or the caller asked to preserve it (manager handover).
func (r *RunRecord) WithOpener(userId, username string, preserveStatus bool) {
	r.OpenerUserId = userId
	r.OpenerUsername = username
	r.OpenerAt = nowISO()
	if !preserveStatus && r.Status != RunStatusClosed {
		r.Status = RunStatusInProgress
	}
}

func (r *RunRecord) WithCloser(userId, username string, preserveStatus bool) {
	r.CloserUserId = userId
	r.CloserUsername = username
	r.CloserAt = nowISO()
	if !preserveStatus && r.Status != RunStatusClosed {
		r.Status = RunStatusInProgress
	}
}

func parsePhaseMap(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]string{}
	}
	cleaned := map[string]string{}
	for key, value := range parsed {
		if key != "" && value != "" {
			cleaned[key] = value
		}
	}
	return cleaned
}

func cellOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func parseIntOr(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
