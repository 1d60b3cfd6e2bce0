package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
)

func testCadenceSettings() config.CadenceSettings {
	return config.CadenceSettings{
		InitialDelaysMin: []int{15, 30},
		RepeatEveryMin:   45,
		StateTTL:         time.Hour,
	}
}

func newReminderEngine(env *testEnv, store CadenceStore, notifier *recordingNotifier, managerIds []int64) *ReminderEngine {
	gate := NewGateService(env.templates, env.steps, env.attachments, config.AlertSettings{DeltaThreshold: "300"})
	return NewReminderEngine(env.runs, env.shops, env.users, gate, store, notifier,
		testCadenceSettings(), config.NotificationSettings{ManagerChatIds: managerIds})
}

func seedReminderFixtures(t *testing.T, env *testEnv) models.ShopInfo {
	t.Helper()
	ctx := context.Background()
	shop := models.ShopInfo{
		ShopId:    "shop-1",
		Name:      "Demo Shop",
		Timezone:  "UTC",
		OpenTime:  "09:00",
		CloseTime: "21:00",
		ManagerUsernames:  []string{"boss"},
		EmployeeUsernames: []string{"opener"},
		IsActive:          true,
	}
	if err := env.shops.SaveAll(ctx, []models.ShopInfo{shop}); err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	users := []models.UserRecord{
		{UserId: "u-boss", TgId: 100001, Username: "boss", Role: "manager", Shops: []string{"shop-1"}, IsActive: true},
		{UserId: "u-open", TgId: 100002, Username: "opener", Role: "employee", Shops: []string{"shop-1"}, IsActive: true},
	}
	if err := env.users.SaveAll(ctx, users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return shop
}

func seedOpeningTemplate(t *testing.T, env *testEnv) {
	t.Helper()
	template := models.TemplateDefinition{
		TemplateId: "opening_v1",
		Name:       "Opening checklist",
		Version:    1,
		Phase:      "open",
		IsActive:   true,
		Steps: []models.TemplateStepDefinition{
			{StepOrder: 1, Code: "cash_start", Title: "Count the float", Type: models.StepValueNumber, Required: true, NormRule: "5000", OwnerRole: models.OwnerRoleOpener},
		},
	}
	if err := env.templates.SaveTemplate(context.Background(), template); err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

func openRunAt(shop models.ShopInfo, openedAt time.Time) models.RunRecord {
	return models.RunRecord{
		RunId:            "run-1",
		Date:             openedAt.Format("2006-01-02"),
		ShopId:           shop.ShopId,
		Status:           models.RunStatusInProgress,
		OpenerUserId:     "100002",
		OpenerUsername:   "opener",
		OpenerAt:         openedAt.Format(time.RFC3339),
		TemplatePhaseMap: map[string]string{"open": "opening_v1", "close": "closing_v1"},
		Version:          1,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestReminderBeforeFirstDelayStaysQuiet(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 10) }

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifier.messages()) != 0 {
		t.Fatalf("nothing is due 10 minutes after open, got %v", notifier.messages())
	}
}

func TestReminderNoRunBroadcastsToRoster(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 20) }

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got := map[int64]bool{}
	for _, id := range notifier.chatIds() {
		got[id] = true
	}
	if !got[100001] || !got[100002] {
		t.Fatalf("unopened shift must fall back to the roster, got %v", notifier.chatIds())
	}
	if got[900] {
		t.Fatalf("a pre-open nudge that reached the roster must not page the managers, got %v", notifier.chatIds())
	}
}

func TestReminderNoRunUnreachableRosterMirrors(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	notifier.reject[100001] = true
	notifier.reject[100002] = true
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 20) }

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	messages := notifier.messages()
	if len(messages) != 1 || messages[0].ChatId != 900 {
		t.Fatalf("a fully unreachable roster must escalate to the managers, got %v", messages)
	}
	if !strings.Contains(messages[0].Text, "no direct recipient") {
		t.Fatalf("mirror must explain the fallback, got %q", messages[0].Text)
	}
}

func TestReminderFailedDeliveryRetriesNextTick(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	notifier.reject[100001] = true
	notifier.reject[100002] = true
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, nil)
	engine.now = func() time.Time { return at(9, 20) }

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifier.messages()) != 0 {
		t.Fatalf("nobody was reachable, got %v", notifier.messages())
	}

	// Recipients come back one minute later: the unsent ladder step must
	// still be owed, not consumed by the failed attempt.
	delete(notifier.reject, 100001)
	delete(notifier.reject, 100002)
	engine.now = func() time.Time { return at(9, 21) }
	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("retry evaluate: %v", err)
	}
	if len(notifier.messages()) == 0 {
		t.Fatal("a failed delivery must not advance the cadence; the next tick has to resend")
	}
}

func TestReminderSameTickDoesNotDoubleSend(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, nil)
	engine.now = func() time.Time { return at(9, 20) }

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	first := len(notifier.messages())
	if first == 0 {
		t.Fatalf("the 15-minute ladder step must send")
	}
	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("repeat evaluate: %v", err)
	}
	if len(notifier.messages()) != first {
		t.Fatalf("re-running the same tick must not double-send, got %d then %d", first, len(notifier.messages()))
	}

	// The second ladder step fires 30 minutes after open.
	engine.now = func() time.Time { return at(9, 35) }
	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate at 09:35: %v", err)
	}
	if len(notifier.messages()) <= first {
		t.Fatalf("the 30-minute ladder step must send again")
	}
}

func TestReminderGoesToHolderAndMirrorsManagers(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	seedOpeningTemplate(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 20) }

	run := openRunAt(shop, at(9, 0))
	if err := env.runs.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	byChat := map[int64]string{}
	for _, m := range notifier.messages() {
		byChat[m.ChatId] = m.Text
	}
	if _, ok := byChat[100002]; !ok {
		t.Fatalf("an assigned opener gets the reminder directly, got %v", notifier.chatIds())
	}
	if !strings.Contains(byChat[100002], "unfinished") {
		t.Fatalf("holder reminder must name the pending work, got %q", byChat[100002])
	}
	if _, ok := byChat[100001]; ok {
		t.Fatalf("a reachable holder must spare the rest of the roster, got %v", notifier.chatIds())
	}
	// Pending steps page the managers even when the holder is reachable.
	mirror, ok := byChat[900]
	if !ok {
		t.Fatalf("pending-step reminders must mirror to the managers, got %v", notifier.chatIds())
	}
	if strings.Contains(mirror, "no direct recipient") {
		t.Fatalf("mirror with a reachable holder must not claim a fallback, got %q", mirror)
	}
}

func TestReminderFallsBackWhenHolderUnreachable(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	seedOpeningTemplate(t, env)
	notifier := newRecordingNotifier()
	notifier.reject[100002] = true
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 20) }

	if err := env.runs.SaveRun(context.Background(), openRunAt(shop, at(9, 0))); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got := map[int64]bool{}
	for _, id := range notifier.chatIds() {
		got[id] = true
	}
	if !got[100001] {
		t.Fatalf("unreachable holder must trigger the roster fallback, got %v", notifier.chatIds())
	}
	if !got[900] {
		t.Fatalf("managers must be mirrored on fallback, got %v", notifier.chatIds())
	}
}

func TestReminderSkipsCompletedPhase(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	seedOpeningTemplate(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(9, 20) }

	ctx := context.Background()
	if err := env.runs.SaveRun(ctx, openRunAt(shop, at(9, 0))); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if err := env.steps.Upsert(ctx, []models.RunStepRecord{{
		RunId: "run-1", Phase: "open", StepCode: "cash_start", OwnerRole: models.OwnerRoleOpener,
		Value: models.StepValue{Kind: models.StepValueNumber, Number: "5000"}, Status: models.StepStatusOk,
	}}); err != nil {
		t.Fatalf("seed steps: %v", err)
	}

	if err := engine.EvaluateShop(ctx, shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifier.messages()) != 0 {
		t.Fatalf("a completed phase owes no reminder, got %v", notifier.messages())
	}
}

func TestReminderSkipsClosedRun(t *testing.T) {
	env := newTestEnv(t)
	shop := seedReminderFixtures(t, env)
	notifier := newRecordingNotifier()
	engine := newReminderEngine(env, newMemoryCadenceStore(), notifier, []int64{900})
	engine.now = func() time.Time { return at(21, 30) }

	run := openRunAt(shop, at(9, 0))
	run.Status = models.RunStatusClosed
	if err := env.runs.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	if err := engine.EvaluateShop(context.Background(), shop); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifier.messages()) != 0 {
		t.Fatalf("closed runs are out of scope for reminders, got %v", notifier.messages())
	}
}
