package repository

import (
	"context"
	"strings"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

// memoryAPI is an in-memory stand-in for the spreadsheet backend. It keeps
// one [][]string per tab and mimics the A1/A2 range convention the
// repositories use.
type memoryAPI struct {
	mu   sync.Mutex
	tabs map[string][][]string
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{tabs: map[string][][]string{}}
}

func splitRange(rangeSpec string) (tab string, skipHeader bool) {
	parts := strings.SplitN(rangeSpec, "!", 2)
	tab = parts[0]
	skipHeader = len(parts) == 2 && strings.HasPrefix(parts[1], "A2")
	return
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func (m *memoryAPI) Get(ctx context.Context, spreadsheetId, readRange string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, skipHeader := splitRange(readRange)
	rows := m.tabs[tab]
	if skipHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	return cloneRows(rows), nil
}

func (m *memoryAPI) Update(ctx context.Context, spreadsheetId, writeRange string, values [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, _ := splitRange(writeRange)
	m.tabs[tab] = cloneRows(values)
	return nil
}

func (m *memoryAPI) Clear(ctx context.Context, spreadsheetId, clearRange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, _ := splitRange(clearRange)
	delete(m.tabs, tab)
	return nil
}

func newTestClient() (*sheets.Client, *memoryAPI) {
	api := newMemoryAPI()
	return sheets.NewClientWithAPI("test-sheet", api), api
}

func numberStep(runId, phase, code string, role models.OwnerRole, value string) models.RunStepRecord {
	return models.RunStepRecord{
		RunId:     runId,
		Phase:     phase,
		StepCode:  code,
		OwnerRole: role,
		Value:     models.StepValue{Kind: models.StepValueNumber, Number: value},
		Status:    models.StepStatusOk,
		StartedAt: "2025-03-10T09:00:00Z",
		UpdatedAt: "2025-03-10T09:00:00Z",
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	client, _ := newTestClient()
	repo := NewRunStepsRepository(client)
	ctx := context.Background()

	first := numberStep("run-1", "close", "cash_end", models.OwnerRoleCloser, "4700")
	if err := repo.Upsert(ctx, []models.RunStepRecord{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := numberStep("run-1", "close", "cash_end", models.OwnerRoleCloser, "4800")
	if err := repo.Upsert(ctx, []models.RunStepRecord{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	steps, err := repo.ListForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("same key must merge into one row, got %d", len(steps))
	}
	if steps[0].Value.Number != "4800" {
		t.Fatalf("later write must win, got %s", steps[0].Value.Number)
	}
}

func TestUpsertDifferentRolesStaySeparate(t *testing.T) {
	client, _ := newTestClient()
	repo := NewRunStepsRepository(client)
	ctx := context.Background()

	opener := numberStep("run-1", "open", "cash_start", models.OwnerRoleOpener, "5000")
	closer := numberStep("run-1", "open", "cash_start", models.OwnerRoleCloser, "5100")
	if err := repo.Upsert(ctx, []models.RunStepRecord{opener, closer}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	steps, err := repo.ListForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("distinct roles must keep distinct rows, got %d", len(steps))
	}
}

func TestUpsertPreservesOtherRuns(t *testing.T) {
	client, _ := newTestClient()
	repo := NewRunStepsRepository(client)
	ctx := context.Background()

	if err := repo.Upsert(ctx, []models.RunStepRecord{
		numberStep("run-1", "open", "cash_start", models.OwnerRoleOpener, "5000"),
		numberStep("run-2", "open", "cash_start", models.OwnerRoleOpener, "6000"),
	}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := repo.Upsert(ctx, []models.RunStepRecord{
		numberStep("run-1", "close", "cash_end", models.OwnerRoleCloser, "4800"),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	other, err := repo.ListForRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("list run-2: %v", err)
	}
	if len(other) != 1 || other[0].Value.Number != "6000" {
		t.Fatalf("the rewrite dropped another run's rows: %+v", other)
	}
}

func TestUpsertKeepsInsertionOrder(t *testing.T) {
	client, _ := newTestClient()
	repo := NewRunStepsRepository(client)
	ctx := context.Background()

	if err := repo.Upsert(ctx, []models.RunStepRecord{
		numberStep("run-1", "open", "a_first", models.OwnerRoleOpener, "1"),
		numberStep("run-1", "open", "b_second", models.OwnerRoleOpener, "2"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Updating the first row must not move it behind the second.
	if err := repo.Upsert(ctx, []models.RunStepRecord{
		numberStep("run-1", "open", "a_first", models.OwnerRoleOpener, "10"),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	steps, err := repo.ListForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if steps[0].StepCode != "a_first" || steps[0].Value.Number != "10" {
		t.Fatalf("row order not stable across updates: %+v", steps)
	}
}
