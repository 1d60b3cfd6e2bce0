package repository

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"github.com/ttacon/libphonenumber"
)

const (
	usersDataRange = "Users!A2:H"
	usersFullRange = "Users!A1"
	usersSheet     = "Users"
)

type UsersRepository struct {
	client        *sheets.Client
	defaultRegion string
}

func NewUsersRepository(client *sheets.Client) *UsersRepository {
	return &UsersRepository{client: client, defaultRegion: "RU"}
}

func (r *UsersRepository) ListActive(ctx context.Context) ([]models.UserRecord, error) {
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var active []models.UserRecord
	for i := range all {
		if all[i].IsActive {
			active = append(active, all[i])
		}
	}
	return active, nil
}

func (r *UsersRepository) GetByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	username = strings.ToLower(strings.TrimPrefix(username, "@"))
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].NormalizedUsername() == username {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *UsersRepository) GetByTgId(ctx context.Context, tgId int64) (*models.UserRecord, error) {
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].TgId == tgId {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *UsersRepository) SaveAll(ctx context.Context, users []models.UserRecord) error {
	rows := make([][]string, 0, len(users)+1)
	rows = append(rows, models.UserHeaders)
	for i := range users {
		rows = append(rows, users[i].ToRow())
	}
	if err := r.client.Clear(ctx, usersSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, usersFullRange, rows)
}

func (r *UsersRepository) listAll(ctx context.Context) ([]models.UserRecord, error) {
	rows, err := r.client.Read(ctx, usersDataRange)
	if err != nil {
		return nil, err
	}
	var users []models.UserRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		record := models.UserRecordFromRow(row)
		record.Phone = r.normalizePhone(record.Phone)
		users = append(users, record)
	}
	return users, nil
}

// normalizePhone rewrites whatever the sheet holds into E.164. Bad numbers
// stay as typed: the phone column is informational, not an invariant.
func (r *UsersRepository) normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, r.defaultRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		config.GetLogger().WithField("module", "repository").
			Debug("keeping unparseable phone as-is")
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
