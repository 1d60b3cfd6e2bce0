package models

import "strings"

type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusOk      StepStatus = "ok"
	StepStatusSkipped StepStatus = "skipped"
)

// OwnerRole tags which side of the shift a checklist step belongs to.
// "shared" steps count for either role.
type OwnerRole string

const (
	OwnerRoleOpener OwnerRole = "opener"
	OwnerRoleCloser OwnerRole = "closer"
	OwnerRoleShared OwnerRole = "shared"
)

// NormalizeOwnerRole is applied before any keying or comparison so two rows
// differing only by role casing never fork into separate ledger entries.
func NormalizeOwnerRole(raw string) OwnerRole {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "opener":
		return OwnerRoleOpener
	case "closer":
		return OwnerRoleCloser
	default:
		return OwnerRoleShared
	}
}

// MatchesRole reports whether a step owned by r counts against the given
// shift role. Shared steps match both.
func (r OwnerRole) MatchesRole(role OwnerRole) bool {
	return r == OwnerRoleShared || r == role
}

type StepValueKind string

const (
	StepValueNumber StepValueKind = "number"
	StepValueText   StepValueKind = "text"
	StepValueCheck  StepValueKind = "check"
	StepValuePhoto  StepValueKind = "photo"
)

// StepValue is the captured value of a step: exactly one of the variants is
// meaningful, selected by Kind. The sheet stores them in separate columns,
// so the codec below maps Kind to the populated column.
type StepValue struct {
	Kind   StepValueKind
	Number string // decimal as written by the performer
	Text   string
	Check  bool
	Photo  string // attachment object key
}

func (v StepValue) IsZero() bool {
	return v.Kind == ""
}

var RunStepHeaders = []string{
	"run_id",
	"phase",
	"step_code",
	"owner_role",
	"value_number",
	"value_text",
	"value_check",
	"value_photo",
	"delta_number",
	"comment",
	"performer_user_id",
	"status",
	"started_at",
	"updated_at",
	"idempotency_key",
}

// RunStepRecord is one checklist entry of one run. Identity within the
// ledger is the composite key (run, phase, step code, normalized owner
// role); a later write for the same key supersedes the earlier one.
type RunStepRecord struct {
	RunId           string
	Phase           string
	StepCode        string
	OwnerRole       OwnerRole
	Value           StepValue
	DeltaNumber     string
	Comment         string
	PerformerUserId string
	Status          StepStatus
	StartedAt       string
	UpdatedAt       string
	IdempotencyKey  string
}

// StepKey is the ledger's composite natural key.
type StepKey struct {
	RunId     string
	Phase     string
	StepCode  string
	OwnerRole OwnerRole
}

func (s *RunStepRecord) Key() StepKey {
	return StepKey{
		RunId:     s.RunId,
		Phase:     s.Phase,
		StepCode:  s.StepCode,
		OwnerRole: NormalizeOwnerRole(string(s.OwnerRole)),
	}
}

func (s *RunStepRecord) ToRow() []string {
	valueNumber, valueText, valueCheck, valuePhoto := "", "", "", ""
	switch s.Value.Kind {
	case StepValueNumber:
		valueNumber = s.Value.Number
	case StepValueText:
		valueText = s.Value.Text
	case StepValueCheck:
		if s.Value.Check {
			valueCheck = "TRUE"
		} else {
			valueCheck = "FALSE"
		}
	case StepValuePhoto:
		valuePhoto = s.Value.Photo
	}
	return []string{
		s.RunId,
		s.Phase,
		s.StepCode,
		string(NormalizeOwnerRole(string(s.OwnerRole))),
		valueNumber,
		valueText,
		valueCheck,
		valuePhoto,
		s.DeltaNumber,
		s.Comment,
		s.PerformerUserId,
		string(s.Status),
		s.StartedAt,
		s.UpdatedAt,
		s.IdempotencyKey,
	}
}

func RunStepRecordFromRow(row []string) RunStepRecord {
	padded := make([]string, len(RunStepHeaders))
	copy(padded, row)
	record := RunStepRecord{
		RunId:           padded[0],
		Phase:           padded[1],
		StepCode:        padded[2],
		OwnerRole:       NormalizeOwnerRole(padded[3]),
		DeltaNumber:     padded[8],
		Comment:         padded[9],
		PerformerUserId: padded[10],
		Status:          StepStatus(cellOr(padded[11], string(StepStatusPending))),
		StartedAt:       cellOr(padded[12], nowISO()),
		UpdatedAt:       cellOr(padded[13], nowISO()),
		IdempotencyKey:  padded[14],
	}
	switch {
	case padded[4] != "":
		record.Value = StepValue{Kind: StepValueNumber, Number: padded[4]}
	case padded[5] != "":
		record.Value = StepValue{Kind: StepValueText, Text: padded[5]}
	case padded[6] != "":
		record.Value = StepValue{Kind: StepValueCheck, Check: strings.EqualFold(padded[6], "TRUE")}
	case padded[7] != "":
		record.Value = StepValue{Kind: StepValuePhoto, Photo: padded[7]}
	}
	return record
}

// IsDone is the gating view of a step: ok and skipped both stop reminding.
func (s *RunStepRecord) IsDone() bool {
	return s.Status == StepStatusOk || s.Status == StepStatusSkipped
}
