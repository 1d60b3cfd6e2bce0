package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	exportDataRange = "Export!A2:S"
	exportFullRange = "Export!A1"
	exportSheet     = "Export"
)

type ExportRepository struct {
	client *sheets.Client
}

func NewExportRepository(client *sheets.Client) *ExportRepository {
	return &ExportRepository{client: client}
}

func (r *ExportRepository) Append(ctx context.Context, record models.ExportRecord) error {
	rows, err := r.client.Read(ctx, exportDataRange)
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(rows)+2)
	out = append(out, models.ExportHeaders)
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, row)
	}
	out = append(out, record.ToRow())
	if err := r.client.Clear(ctx, exportSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, exportFullRange, out)
}

func (r *ExportRepository) ListAll(ctx context.Context) ([]models.ExportRecord, error) {
	rows, err := r.client.Read(ctx, exportDataRange)
	if err != nil {
		return nil, err
	}
	var out []models.ExportRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, models.ExportRecordFromRow(row))
	}
	return out, nil
}
