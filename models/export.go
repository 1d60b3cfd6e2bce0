package models

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ExportHeaders = []string{
	"export_id",
	"period_start",
	"period_end",
	"shop_id",
	"shop_name",
	"run_id",
	"run_date",
	"status",
	"opener_user_id",
	"opener_username",
	"opener_at",
	"closer_user_id",
	"closer_username",
	"closer_at",
	"totals_json",
	"delta_total",
	"comment",
	"attachments_summary",
	"generated_at",
}

// ExportRecord is a denormalized per-run summary appended to the Export
// sheet after finalize. Consumed by reporting tooling, carries no
// lifecycle logic.
type ExportRecord struct {
	ExportId           string
	PeriodStart        string
	PeriodEnd          string
	ShopId             string
	ShopName           string
	RunId              string
	RunDate            string
	Status             string
	OpenerUserId       string
	OpenerUsername     string
	OpenerAt           string
	CloserUserId       string
	CloserUsername     string
	CloserAt           string
	TotalsJSON         string
	DeltaTotal         string
	Comment            string
	AttachmentsSummary string
	GeneratedAt        string
}

// NewExportRecord summarizes one run. Totals are grouped per owner role
// and sorted for stable diffs between exports.
func NewExportRecord(run RunRecord, steps []RunStepRecord, attachments []AttachmentRecord, shopName string) ExportRecord {
	return ExportRecord{
		ExportId:           uuid.NewString(),
		PeriodStart:        run.Date,
		PeriodEnd:          run.Date,
		ShopId:             run.ShopId,
		ShopName:           shopName,
		RunId:              run.RunId,
		RunDate:            run.Date,
		Status:             string(run.Status),
		OpenerUserId:       run.OpenerUserId,
		OpenerUsername:     run.OpenerUsername,
		OpenerAt:           run.OpenerAt,
		CloserUserId:       run.CloserUserId,
		CloserUsername:     run.CloserUsername,
		CloserAt:           run.CloserAt,
		TotalsJSON:         serializeTotals(steps),
		DeltaTotal:         run.DeltaTotal,
		Comment:            run.Comment,
		AttachmentsSummary: formatAttachmentsSummary(attachments, steps),
		GeneratedAt:        nowISO(),
	}
}

func (e *ExportRecord) ToRow() []string {
	return []string{
		e.ExportId,
		e.PeriodStart,
		e.PeriodEnd,
		e.ShopId,
		e.ShopName,
		e.RunId,
		e.RunDate,
		e.Status,
		e.OpenerUserId,
		e.OpenerUsername,
		e.OpenerAt,
		e.CloserUserId,
		e.CloserUsername,
		e.CloserAt,
		e.TotalsJSON,
		e.DeltaTotal,
		e.Comment,
		e.AttachmentsSummary,
		e.GeneratedAt,
	}
}

func ExportRecordFromRow(row []string) ExportRecord {
	padded := make([]string, len(ExportHeaders))
	copy(padded, row)
	return ExportRecord{
		ExportId:           padded[0],
		PeriodStart:        padded[1],
		PeriodEnd:          padded[2],
		ShopId:             padded[3],
		ShopName:           padded[4],
		RunId:              padded[5],
		RunDate:            padded[6],
		Status:             padded[7],
		OpenerUserId:       padded[8],
		OpenerUsername:     padded[9],
		OpenerAt:           padded[10],
		CloserUserId:       padded[11],
		CloserUsername:     padded[12],
		CloserAt:           padded[13],
		TotalsJSON:         padded[14],
		DeltaTotal:         padded[15],
		Comment:            padded[16],
		AttachmentsSummary: padded[17],
		GeneratedAt:        padded[18],
	}
}

func serializeTotals(steps []RunStepRecord) string {
	totals := map[OwnerRole]map[string]string{}
	for i := range steps {
		step := &steps[i]
		if step.Value.IsZero() {
			continue
		}
		var value string
		switch step.Value.Kind {
		case StepValueNumber:
			value = step.Value.Number
		case StepValueText:
			value = step.Value.Text
		case StepValueCheck:
			value = sheetBool(step.Value.Check)
		case StepValuePhoto:
			value = step.Value.Photo
		}
		role := NormalizeOwnerRole(string(step.OwnerRole))
		if totals[role] == nil {
			totals[role] = map[string]string{}
		}
		totals[role][step.StepCode] = value
	}
	raw, err := json.Marshal(totals)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func formatAttachmentsSummary(attachments []AttachmentRecord, steps []RunStepRecord) string {
	if len(attachments) == 0 {
		return ""
	}
	roleByStep := map[string]OwnerRole{}
	for i := range steps {
		roleByStep[steps[i].StepCode] = NormalizeOwnerRole(string(steps[i].OwnerRole))
	}
	entries := make([]string, 0, len(attachments))
	for i := range attachments {
		att := &attachments[i]
		descriptor := att.StepCode
		if kind := strings.TrimSpace(att.Kind); kind != "" {
			descriptor += ":" + kind
		}
		role := OwnerRoleShared
		if r, ok := roleByStep[att.StepCode]; ok {
			role = r
		}
		entries = append(entries, string(role)+":"+descriptor+"="+att.ObjectKey)
	}
	sort.Strings(entries)
	return strings.Join(entries, ", ")
}
