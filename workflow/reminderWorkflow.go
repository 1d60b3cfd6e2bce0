package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/notify"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"github.com/sirupsen/logrus"
)

// CadenceStore persists per-slot reminder progress between ticks. The
// production store is Redis; tests plug in an in-memory map.
type CadenceStore interface {
	Load(ctx context.Context, key string) (models.CadenceState, bool, error)
	Save(ctx context.Context, key string, state models.CadenceState, ttl time.Duration) error
}

type redisCadenceStore struct{}

func NewRedisCadenceStore() CadenceStore {
	return redisCadenceStore{}
}

func (redisCadenceStore) Load(_ context.Context, key string) (models.CadenceState, bool, error) {
	var state models.CadenceState
	found, err := config.GetRedisObject(key, &state)
	return state, found, err
}

func (redisCadenceStore) Save(_ context.Context, key string, state models.CadenceState, ttl time.Duration) error {
	return config.SetRedisObject(key, state, ttl)
}

// ReminderEngine walks every active shop on each tick and decides, per
// reminder slot, whether another nudge is owed. Delivery is at-least-once:
// the cadence state is advanced only after somebody accepted the message, so
// a crashed tick or an unreachable audience resends rather than drops.
type ReminderEngine struct {
	runs          *repository.RunsRepository
	shops         *repository.ShopsRepository
	users         *repository.UsersRepository
	gate          *GateService
	store         CadenceStore
	notifier      notify.Notifier
	cadence       config.CadenceSettings
	notifications config.NotificationSettings
	now           func() time.Time
}

func NewReminderEngine(
	runs *repository.RunsRepository,
	shops *repository.ShopsRepository,
	users *repository.UsersRepository,
	gate *GateService,
	store CadenceStore,
	notifier notify.Notifier,
	cadence config.CadenceSettings,
	notifications config.NotificationSettings,
) *ReminderEngine {
	return &ReminderEngine{
		runs:          runs,
		shops:         shops,
		users:         users,
		gate:          gate,
		store:         store,
		notifier:      notifier,
		cadence:       cadence,
		notifications: notifications,
		now:           time.Now,
	}
}

// slotPlan is one reminder slot scheduled for evaluation on this tick.
type slotPlan struct {
	Slot  string
	Phase string
	Role  models.OwnerRole
	Start time.Time
}

// EvaluateAll runs one reminder tick over every active shop. Per-shop errors
// are logged and skipped so one broken shop row cannot silence the rest.
func (e *ReminderEngine) EvaluateAll(ctx context.Context) error {
	if !config.RemindersEnabled() {
		return nil
	}
	shops, err := e.shops.ListActive(ctx)
	if err != nil {
		return err
	}
	for i := range shops {
		if err := e.EvaluateShop(ctx, shops[i]); err != nil {
			config.LogError(config.GetLogger(), "workflow", "EvaluateAll", "EvaluateShop", shops[i].ShopId, err)
		}
	}
	return nil
}

// EvaluateShop evaluates every slot of one shop at the current shop-local
// time.
func (e *ReminderEngine) EvaluateShop(ctx context.Context, shop models.ShopInfo) error {
	localNow := e.now().In(shop.Location())
	date := localNow.Format("2006-01-02")

	run, err := e.runs.GetRun(ctx, shop.ShopId, date)
	if err != nil {
		return err
	}
	if run != nil && run.Status == models.RunStatusClosed {
		return nil
	}

	runId := ""
	if run != nil {
		runId = run.RunId
	} else {
		// No run yet: the opening reminder still needs a stable key.
		runId = fmt.Sprintf("pending:%s:%s", shop.ShopId, date)
	}

	for _, plan := range e.slotPlans(shop, run, localNow) {
		if localNow.Before(plan.Start) {
			continue
		}
		if err := e.evaluateSlot(ctx, shop, run, runId, plan, localNow); err != nil {
			config.LogError(config.GetLogger(), "workflow", "EvaluateShop", "evaluateSlot", plan.Slot, err)
		}
	}
	return nil
}

// slotPlans lays out the slots of this shop: the open and close role slots
// plus any mid-day check slots configured in the Shops sheet.
func (e *ReminderEngine) slotPlans(shop models.ShopInfo, run *models.RunRecord, localNow time.Time) []slotPlan {
	plans := []slotPlan{
		{
			Slot:  "open",
			Phase: "open",
			Role:  models.OwnerRoleOpener,
			Start: e.slotStart(shop, localNow, shop.OpenTime, openerStartedAt(run)),
		},
	}
	if run != nil {
		plans = append(plans, slotPlan{
			Slot:  "close",
			Phase: "close",
			Role:  models.OwnerRoleCloser,
			Start: e.slotStart(shop, localNow, shop.CloseTime, closerStartedAt(run)),
		})
		for slot, clocks := range shop.ReminderSlots {
			if slot == "open" || slot == "close" || len(clocks) == 0 {
				continue
			}
			plans = append(plans, slotPlan{
				Slot:  slot,
				Phase: slot,
				Role:  models.OwnerRoleCloser,
				Start: clockToday(localNow, clocks[0], shop.Location()),
			})
		}
	}
	return plans
}

func (e *ReminderEngine) evaluateSlot(ctx context.Context, shop models.ShopInfo, run *models.RunRecord, runId string, plan slotPlan, localNow time.Time) error {
	pendingCount := 1
	if run != nil {
		violations, err := e.gate.CheckPhase(ctx, run, plan.Phase, plan.Role)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			return nil
		}
		pendingCount = len(violations)
	}

	key := models.CadenceSlotKey(runId, shop.ShopId, plan.Slot)
	state, _, err := e.store.Load(ctx, key)
	if err != nil {
		return err
	}
	cadence := e.cadenceRules()
	if !cadence.Due(state, plan.Start, localNow) {
		return nil
	}

	text := e.reminderText(shop, run, plan, pendingCount)
	delivered, mirrored := e.deliver(ctx, shop, run, plan, text, run != nil)
	if !delivered && !mirrored {
		config.GetLogger().WithFields(logrus.Fields{
			"module": "workflow",
			"shop":   shop.ShopId,
			"slot":   plan.Slot,
		}).Warn("reminder had no reachable recipients")
		// Leave the cadence state untouched so the next tick retries.
		return nil
	}

	return e.store.Save(ctx, key, state.Advance(cadence, localNow), e.cadence.StateTTL)
}

// deliver resolves primary recipients in order: the role holder, then the
// shop roster. Pending-step reminders mirror to the managers on every send;
// pre-open nudges only when the primary path reached nobody. Returns whether
// anyone on the primary path got the message and whether managers were
// mirrored.
func (e *ReminderEngine) deliver(ctx context.Context, shop models.ShopInfo, run *models.RunRecord, plan slotPlan, text string, pendingSteps bool) (delivered, mirrored bool) {
	holder := holderChatId(run, plan.Role)
	if holder != 0 {
		delivered = notify.SendToMany(ctx, e.notifier, []int64{holder}, text)
	}
	if !delivered {
		// Holder unknown or unreachable: fall back to everyone on the
		// shop's roster.
		delivered = notify.SendToMany(ctx, e.notifier, e.shopChatIds(ctx, shop), text)
	}

	if len(e.notifications.ManagerChatIds) == 0 || (delivered && !pendingSteps) {
		return delivered, false
	}
	mirror := fmt.Sprintf("⚠️ %s", text)
	if !delivered {
		mirror = fmt.Sprintf("⚠️ %s\n(no direct recipient for slot %q in shop %s)", text, plan.Slot, shop.Name)
	}
	mirrored = notify.SendToMany(ctx, e.notifier, e.notifications.ManagerChatIds, mirror)
	return delivered, mirrored
}

// shopChatIds collects the chat ids of every active staff member listed on
// the shop row, managers included.
func (e *ReminderEngine) shopChatIds(ctx context.Context, shop models.ShopInfo) []int64 {
	users, err := e.users.ListActive(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "shopChatIds", "ListActive", shop.ShopId, err)
		return nil
	}
	roster := map[string]bool{}
	for _, name := range append(append([]string{}, shop.EmployeeUsernames...), shop.ManagerUsernames...) {
		roster[normalizeUsername(name)] = true
	}
	var out []int64
	for i := range users {
		if users[i].TgId == 0 {
			continue
		}
		if roster[users[i].NormalizedUsername()] || users[i].CanWorkInShop(shop.ShopId) {
			out = append(out, users[i].TgId)
		}
	}
	return utils.Dedupe(out)
}

func (e *ReminderEngine) reminderText(shop models.ShopInfo, run *models.RunRecord, plan slotPlan, pendingCount int) string {
	if run == nil {
		return fmt.Sprintf("⏰ %s: the shift has not been opened yet. Please start the opening checklist.", shop.Name)
	}
	return fmt.Sprintf("⏰ %s: checklist %q has %d unfinished item(s). Please complete it.", shop.Name, plan.Phase, pendingCount)
}

// cadenceRules maps the env-driven settings onto the schedule model.
func (e *ReminderEngine) cadenceRules() models.Cadence {
	afterClock := -1
	if minutesSinceMidnight, ok := utils.ParseClock(e.cadence.AfterClock); ok {
		afterClock = minutesSinceMidnight
	}
	return models.Cadence{
		InitialDelaysMin: e.cadence.InitialDelaysMin,
		RepeatEveryMin:   e.cadence.RepeatEveryMin,
		AfterClockMin:    afterClock,
		AfterRepeatMin:   e.cadence.AfterRepeatMin,
	}
}

// slotStart prefers the actor's actual start stamp; before anyone picked up
// the role, the shop's scheduled clock anchors the cadence.
func (e *ReminderEngine) slotStart(shop models.ShopInfo, localNow time.Time, clock, startedAt string) time.Time {
	if startedAt != "" {
		if t, ok := utils.ParseISOTime(startedAt); ok {
			return t.In(shop.Location())
		}
	}
	return clockToday(localNow, clock, shop.Location())
}

func clockToday(localNow time.Time, clock string, loc *time.Location) time.Time {
	minutesSinceMidnight, ok := utils.ParseClock(clock)
	if !ok {
		return localNow
	}
	year, month, day := localNow.Date()
	return time.Date(year, month, day, minutesSinceMidnight/60, minutesSinceMidnight%60, 0, 0, loc)
}

func openerStartedAt(run *models.RunRecord) string {
	if run == nil {
		return ""
	}
	return run.OpenerAt
}

func closerStartedAt(run *models.RunRecord) string {
	if run == nil {
		return ""
	}
	return run.CloserAt
}

// holderChatId extracts the numeric chat id of the role holder; zero means
// the slot is vacant or the stored id predates numeric ids.
func holderChatId(run *models.RunRecord, role models.OwnerRole) int64 {
	if run == nil {
		return 0
	}
	raw := run.CloserUserId
	if role == models.OwnerRoleOpener {
		raw = run.OpenerUserId
	}
	if raw == "" {
		raw = run.CurrentActiveUserId
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}
