package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	attachmentsDataRange = "Attachments!A2:F"
	attachmentsFullRange = "Attachments!A1"
	attachmentsSheet     = "Attachments"
)

type AttachmentsRepository struct {
	client *sheets.Client
}

func NewAttachmentsRepository(client *sheets.Client) *AttachmentsRepository {
	return &AttachmentsRepository{client: client}
}

func (r *AttachmentsRepository) ListForRun(ctx context.Context, runId string) ([]models.AttachmentRecord, error) {
	rows, err := r.client.Read(ctx, attachmentsDataRange)
	if err != nil {
		return nil, err
	}
	var out []models.AttachmentRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if row[0] == runId {
			out = append(out, models.AttachmentRecordFromRow(row))
		}
	}
	return out, nil
}

func (r *AttachmentsRepository) Add(ctx context.Context, record models.AttachmentRecord) error {
	rows, err := r.client.Read(ctx, attachmentsDataRange)
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(rows)+2)
	out = append(out, models.AttachmentHeaders)
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, row)
	}
	out = append(out, record.ToRow())
	if err := r.client.Clear(ctx, attachmentsSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, attachmentsFullRange, out)
}
