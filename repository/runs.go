// Package repository holds the Sheets-backed data access layer. Every
// repository follows the same full-rewrite contract: bulk mutations clear
// the logical table and write header + all rows, because the store has no
// partial-row update primitive.
package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	runsSheet     = "Runs"
	runsDataRange = "Runs!A2:S"
	runsFullRange = "Runs!A1"
)

type RunsRepository struct {
	client *sheets.Client
}

func NewRunsRepository(client *sheets.Client) *RunsRepository {
	return &RunsRepository{client: client}
}

func (r *RunsRepository) ListRuns(ctx context.Context) ([]models.RunRecord, error) {
	rows, err := r.client.Read(ctx, runsDataRange)
	if err != nil {
		return nil, err
	}
	records := make([]models.RunRecord, 0, len(rows))
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		records = append(records, models.RunRecordFromRow(row))
	}
	return records, nil
}

// GetRun returns nil when no run exists for (shop, date); absence is a
// normal condition for the lifecycle manager, not an error.
func (r *RunsRepository) GetRun(ctx context.Context, shopId, date string) (*models.RunRecord, error) {
	records, err := r.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ShopId == shopId && records[i].Date == date {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (r *RunsRepository) GetRunById(ctx context.Context, runId string) (*models.RunRecord, error) {
	records, err := r.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].RunId == runId {
			return &records[i], nil
		}
	}
	return nil, nil
}

// SaveRun upserts by run_id and rewrites the whole sheet. Callers that need
// serialization against concurrent savers must hold the run lock; the
// repository itself does not lock.
func (r *RunsRepository) SaveRun(ctx context.Context, record models.RunRecord) error {
	records, err := r.ListRuns(ctx)
	if err != nil {
		return err
	}
	updated := false
	for i := range records {
		if records[i].RunId == record.RunId {
			records[i] = record
			updated = true
			break
		}
	}
	if !updated {
		records = append(records, record)
	}
	return r.writeAll(ctx, records)
}

func (r *RunsRepository) writeAll(ctx context.Context, records []models.RunRecord) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, models.RunHeaders)
	for i := range records {
		rows = append(rows, records[i].ToRow())
	}
	if err := r.client.Clear(ctx, runsSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, runsFullRange, rows)
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
