package models

var AttachmentHeaders = []string{
	"run_id",
	"step_code",
	"object_key",
	"thumbnail_key",
	"kind",
	"created_at",
}

// AttachmentRecord references a photo stored in the object bucket.
// Kind is "photo" or "photo:<role>" when the step fans out per role.
type AttachmentRecord struct {
	RunId        string
	StepCode     string
	ObjectKey    string
	ThumbnailKey string
	Kind         string
	CreatedAt    string
}

func NewAttachmentRecord(runId, stepCode, objectKey, thumbnailKey, kind string) AttachmentRecord {
	if kind == "" {
		kind = "photo"
	}
	return AttachmentRecord{
		RunId:        runId,
		StepCode:     stepCode,
		ObjectKey:    objectKey,
		ThumbnailKey: thumbnailKey,
		Kind:         kind,
		CreatedAt:    nowISO(),
	}
}

func (a *AttachmentRecord) ToRow() []string {
	return []string{a.RunId, a.StepCode, a.ObjectKey, a.ThumbnailKey, a.Kind, a.CreatedAt}
}

func AttachmentRecordFromRow(row []string) AttachmentRecord {
	padded := make([]string, len(AttachmentHeaders))
	copy(padded, row)
	return AttachmentRecord{
		RunId:        padded[0],
		StepCode:     padded[1],
		ObjectKey:    padded[2],
		ThumbnailKey: padded[3],
		Kind:         cellOr(padded[4], "photo"),
		CreatedAt:    cellOr(padded[5], nowISO()),
	}
}
