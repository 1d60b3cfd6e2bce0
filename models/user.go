package models

import (
	"strconv"
	"strings"
)

var UserHeaders = []string{
	"user_id",
	"tg_id",
	"username",
	"full_name",
	"phone",
	"role",
	"shops",
	"is_active",
}

// UserRecord is a staff directory row. TgId is the numeric platform chat id
// reminders are delivered to.
type UserRecord struct {
	UserId   string
	TgId     int64
	Username string
	FullName string
	Phone    string // E.164, normalized on load
	Role     string
	Shops    []string
	IsActive bool
}

func UserRecordFromRow(row []string) UserRecord {
	padded := make([]string, len(UserHeaders))
	copy(padded, row)
	tgId, _ := strconv.ParseInt(strings.TrimSpace(padded[1]), 10, 64)
	return UserRecord{
		UserId:   padded[0],
		TgId:     tgId,
		Username: strings.TrimPrefix(strings.TrimSpace(padded[2]), "@"),
		FullName: padded[3],
		Phone:    padded[4],
		Role:     cellOr(padded[5], "employee"),
		Shops:    parseUsernames(padded[6]),
		IsActive: padded[7] == "" || parseSheetBool(padded[7]),
	}
}

func (u *UserRecord) ToRow() []string {
	return []string{
		u.UserId,
		strconv.FormatInt(u.TgId, 10),
		u.Username,
		u.FullName,
		u.Phone,
		u.Role,
		strings.Join(u.Shops, " "),
		sheetBool(u.IsActive),
	}
}

func (u *UserRecord) CanWorkInShop(shopId string) bool {
	for _, s := range u.Shops {
		if s == shopId {
			return true
		}
	}
	return false
}

// NormalizedUsername is the index key for recipient resolution.
func (u *UserRecord) NormalizedUsername() string {
	return strings.ToLower(strings.TrimPrefix(u.Username, "@"))
}
