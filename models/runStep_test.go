package models

import "testing"

func TestNormalizeOwnerRole(t *testing.T) {
	cases := []struct {
		in       string
		expected OwnerRole
	}{
		{"opener", OwnerRoleOpener},
		{"OPENER", OwnerRoleOpener},
		{" Closer ", OwnerRoleCloser},
		{"", OwnerRoleShared},
		{"anything-else", OwnerRoleShared},
	}
	for _, tc := range cases {
		if got := NormalizeOwnerRole(tc.in); got != tc.expected {
			t.Fatalf("NormalizeOwnerRole(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestStepKeyCasingDoesNotFork(t *testing.T) {
	a := RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: "Closer"}
	b := RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: "closer"}
	if a.Key() != b.Key() {
		t.Fatalf("casing forked the ledger key: %+v vs %+v", a.Key(), b.Key())
	}
}

func TestStepValueColumnSelection(t *testing.T) {
	record := RunStepRecord{
		RunId:     "run-1",
		Phase:     "close",
		StepCode:  "cash_end",
		OwnerRole: OwnerRoleCloser,
		Value:     StepValue{Kind: StepValueNumber, Number: "4700.50"},
		Status:    StepStatusOk,
	}
	row := record.ToRow()
	if row[4] != "4700.50" {
		t.Fatalf("number value should land in value_number, row: %v", row)
	}
	if row[5] != "" || row[6] != "" || row[7] != "" {
		t.Fatalf("other value columns must stay empty, row: %v", row)
	}

	decoded := RunStepRecordFromRow(row)
	if decoded.Value.Kind != StepValueNumber || decoded.Value.Number != "4700.50" {
		t.Fatalf("value variant lost on decode: %+v", decoded.Value)
	}
}

func TestStepValueCheckRoundtrip(t *testing.T) {
	record := RunStepRecord{
		RunId:    "run-1",
		Phase:    "open",
		StepCode: "lights_on",
		Value:    StepValue{Kind: StepValueCheck, Check: true},
		Status:   StepStatusOk,
	}
	decoded := RunStepRecordFromRow(record.ToRow())
	if decoded.Value.Kind != StepValueCheck || !decoded.Value.Check {
		t.Fatalf("check value lost: %+v", decoded.Value)
	}
}

func TestIsDone(t *testing.T) {
	ok := RunStepRecord{Status: StepStatusOk}
	skipped := RunStepRecord{Status: StepStatusSkipped}
	pending := RunStepRecord{Status: StepStatusPending}
	if !ok.IsDone() || !skipped.IsDone() {
		t.Fatal("ok and skipped both count as done")
	}
	if pending.IsDone() {
		t.Fatal("pending must not count as done")
	}
}

func TestMatchesRole(t *testing.T) {
	if !OwnerRoleShared.MatchesRole(OwnerRoleOpener) {
		t.Fatal("shared steps count for the opener")
	}
	if OwnerRoleCloser.MatchesRole(OwnerRoleOpener) {
		t.Fatal("closer steps must not count for the opener")
	}
}
