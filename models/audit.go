package models

var AuditHeaders = []string{
	"ts",
	"user_id",
	"action",
	"entity",
	"entity_id",
	"details",
}

// AuditRecord is an append-only trail row. Never rewritten, only appended.
type AuditRecord struct {
	Ts       string
	UserId   string
	Action   string
	Entity   string
	EntityId string
	Details  string
}

func NewAuditRecord(action, entity, entityId, details, userId string) AuditRecord {
	return AuditRecord{
		Ts:       nowISO(),
		UserId:   userId,
		Action:   action,
		Entity:   entity,
		EntityId: entityId,
		Details:  details,
	}
}

func (a *AuditRecord) ToRow() []string {
	return []string{a.Ts, a.UserId, a.Action, a.Entity, a.EntityId, a.Details}
}

func AuditRecordFromRow(row []string) AuditRecord {
	padded := make([]string, len(AuditHeaders))
	copy(padded, row)
	return AuditRecord{
		Ts:       padded[0],
		UserId:   padded[1],
		Action:   padded[2],
		Entity:   padded[3],
		EntityId: padded[4],
		Details:  padded[5],
	}
}
