package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	auditDataRange = "Audit!A2:F"
	auditFullRange = "Audit!A1"
	auditSheet     = "Audit"
)

// AuditRepository appends trail rows. Append is implemented as read +
// rewrite like every other bulk write; the trail is small enough that this
// stays cheap, and ordering within the sheet is preserved.
type AuditRepository struct {
	client *sheets.Client
}

func NewAuditRepository(client *sheets.Client) *AuditRepository {
	return &AuditRepository{client: client}
}

func (r *AuditRepository) Append(ctx context.Context, record models.AuditRecord) error {
	rows, err := r.client.Read(ctx, auditDataRange)
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(rows)+2)
	out = append(out, models.AuditHeaders)
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, row)
	}
	out = append(out, record.ToRow())
	if err := r.client.Clear(ctx, auditSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, auditFullRange, out)
}

func (r *AuditRepository) ListForEntity(ctx context.Context, entity, entityId string) ([]models.AuditRecord, error) {
	rows, err := r.client.Read(ctx, auditDataRange)
	if err != nil {
		return nil, err
	}
	var out []models.AuditRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		record := models.AuditRecordFromRow(row)
		if record.Entity == entity && record.EntityId == entityId {
			out = append(out, record)
		}
	}
	return out, nil
}
