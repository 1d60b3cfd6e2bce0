package models

import "testing"

func TestRunRecordRowRoundtrip(t *testing.T) {
	record := RunRecord{
		RunId:               "run-1",
		Date:                "2025-03-10",
		ShopId:              "shop-1",
		Status:              RunStatusInProgress,
		OpenerUserId:        "100001",
		OpenerUsername:      "opener",
		OpenerAt:            "2025-03-10T09:05:00Z",
		CurrentActiveUserId: "100001",
		TemplateOpenId:      "opening_v1",
		TemplateCloseId:     "closing_v1",
		TemplatePhaseMap:    map[string]string{"open": "opening_v1", "close": "closing_v1"},
		DeltaTotal:          "12.50",
		Comment:             "left a note",
		Version:             2,
		CreatedAt:           "2025-03-10T09:00:00Z",
		FinishedAt:          "",
	}

	row := record.ToRow()
	if len(row) != len(RunHeaders) {
		t.Fatalf("row has %d cells, headers list %d", len(row), len(RunHeaders))
	}

	decoded := RunRecordFromRow(row)
	if decoded.RunId != record.RunId || decoded.Status != record.Status {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	if decoded.CurrentActiveUserId != "100001" {
		t.Fatalf("current active user lost: %+v", decoded)
	}
	if decoded.TemplatePhaseMap["close"] != "closing_v1" {
		t.Fatalf("phase map lost: %v", decoded.TemplatePhaseMap)
	}
	if decoded.DeltaTotal != "12.50" || decoded.Version != 2 {
		t.Fatalf("tail columns shifted: %+v", decoded)
	}
}

func TestRunRecordFromLegacyRowWithoutActiveColumn(t *testing.T) {
	// Rows written before current_active_user_id existed are one cell short
	// and carry the template id directly at index 10.
	row := []string{
		"run-1", "2025-03-10", "shop-1", "in_progress",
		"100001", "opener", "2025-03-10T09:05:00Z",
		"", "", "",
		"opening_v1", "closing_v1", `{"open":"opening_v1"}`,
		"0.00", "", "1", "2025-03-10T09:00:00Z", "",
	}
	decoded := RunRecordFromRow(row)
	if decoded.CurrentActiveUserId != "" {
		t.Fatalf("legacy row should have no active user, got %q", decoded.CurrentActiveUserId)
	}
	if decoded.TemplateOpenId != "opening_v1" || decoded.TemplateCloseId != "closing_v1" {
		t.Fatalf("template columns misaligned: %+v", decoded)
	}
	if decoded.Version != 1 {
		t.Fatalf("version misaligned: %+v", decoded)
	}
}

func TestRunRecordReconcilesTemplateFields(t *testing.T) {
	row := []string{"run-1", "2025-03-10", "shop-1", "opened",
		"", "", "", "", "", "", "",
		"", "", `{"open":"opening_v2","close":"closing_v2"}`,
		"", "", "1", "2025-03-10T09:00:00Z", ""}
	decoded := RunRecordFromRow(row)
	if decoded.TemplateOpenId != "opening_v2" || decoded.TemplateCloseId != "closing_v2" {
		t.Fatalf("flat columns not backfilled from the phase map: %+v", decoded)
	}
	if decoded.TemplateForPhase("continue") != "closing_v2" {
		t.Fatalf("continue phase should fall back to the closing template")
	}
}

func TestWithOpenerMovesStatus(t *testing.T) {
	run := RunRecord{Status: RunStatusOpened}
	run.WithOpener("100001", "opener", false)
	if run.Status != RunStatusInProgress {
		t.Fatalf("expected in_progress, got %s", run.Status)
	}

	preserved := RunRecord{Status: RunStatusReadyToClose}
	preserved.WithOpener("100002", "replacement", true)
	if preserved.Status != RunStatusReadyToClose {
		t.Fatalf("preserveStatus handover must not change status, got %s", preserved.Status)
	}

	closed := RunRecord{Status: RunStatusClosed}
	closed.WithCloser("100003", "late", false)
	if closed.Status != RunStatusClosed {
		t.Fatalf("a closed run must stay closed, got %s", closed.Status)
	}
}
