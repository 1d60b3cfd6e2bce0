package workflow

// Shared in-memory fixtures: a spreadsheet fake, a process-local lock
// provider, a cadence store and a recording notifier. Everything here is
// deterministic so the lifecycle and cadence tests never touch the network.

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
)

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

// memoryLocker honors the Locker contract with a process-local mutex map.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
	wait time.Duration
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: map[string]bool{}, wait: 2 * time.Second}
}

type memoryLockHandle struct {
	locker *memoryLocker
	key    string
}

func (h *memoryLockHandle) Release(ctx context.Context) error {
	h.locker.mu.Lock()
	delete(h.locker.held, h.key)
	h.locker.mu.Unlock()
	return nil
}

func (l *memoryLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	deadline := time.Now().Add(l.wait)
	for {
		l.mu.Lock()
		if !l.held[key] {
			l.held[key] = true
			l.mu.Unlock()
			return &memoryLockHandle{locker: l, key: key}, nil
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, utils.ErrLockTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

type memoryCadenceStore struct {
	mu     sync.Mutex
	states map[string]models.CadenceState
}

func newMemoryCadenceStore() *memoryCadenceStore {
	return &memoryCadenceStore{states: map[string]models.CadenceState{}}
}

func (s *memoryCadenceStore) Load(ctx context.Context, key string) (models.CadenceState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	return state, ok, nil
}

func (s *memoryCadenceStore) Save(ctx context.Context, key string, state models.CadenceState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

type sentMessage struct {
	ChatId int64
	Text   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	reject map[int64]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{reject: map[int64]bool{}}
}

func (n *recordingNotifier) Send(ctx context.Context, chatId int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reject[chatId] {
		return context.DeadlineExceeded
	}
	n.sent = append(n.sent, sentMessage{ChatId: chatId, Text: text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) chatIds() []int64 {
	var out []int64
	for _, m := range n.messages() {
		out = append(out, m.ChatId)
	}
	return out
}

// testEnv wires every repository against one in-memory sheet.
type testEnv struct {
	client      *sheets.Client
	runs        *repository.RunsRepository
	steps       *repository.RunStepsRepository
	shops       *repository.ShopsRepository
	users       *repository.UsersRepository
	templates   *repository.TemplatesRepository
	audit       *repository.AuditRepository
	attachments *repository.AttachmentsRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := sheets.NewClientWithAPI("test-sheet", newMemoryAPI())
	return &testEnv{
		client:      client,
		runs:        repository.NewRunsRepository(client),
		steps:       repository.NewRunStepsRepository(client),
		shops:       repository.NewShopsRepository(client),
		users:       repository.NewUsersRepository(client),
		templates:   repository.NewTemplatesRepository(client),
		audit:       repository.NewAuditRepository(client),
		attachments: repository.NewAttachmentsRepository(client),
	}
}

func testRunSettings() config.RunSettings {
	return config.RunSettings{
		LockTTL:  10 * time.Second,
		LockWait: 2 * time.Second,
		Scope:    "shop_id_date",
		TemplateMap: map[string]string{
			"open":  "opening_v1",
			"close": "closing_v1",
		},
	}
}
