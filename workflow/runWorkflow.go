// Package workflow holds the shift-run core: the lifecycle state machine,
// the close-out gating check, the reminder cadence engine and the delta
// alerts. Repositories do the storage plumbing; this package owns the
// rules.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("shiftcheck-workflow")

const (
	RoleOpen  = "open"
	RoleClose = "close"

	lockRetryInterval = 200 * time.Millisecond
)

type AssignmentState string

const (
	StateAssigned      AssignmentState = "assigned"
	StateAlreadyHolder AssignmentState = "already_holder"
)

// RunUser identifies the acting employee: numeric platform id plus the
// optional human handle used in messages.
type RunUser struct {
	UserId   int64
	Username string
	FullName string
}

func (u RunUser) idString() string {
	return fmt.Sprintf("%d", u.UserId)
}

func (u RunUser) displayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FullName
}

type RoleAssignmentResult struct {
	Run   models.RunRecord
	Role  string
	State AssignmentState
}

// LockHandle is what Obtain returns; release on scope exit.
type LockHandle interface {
	Release(ctx context.Context) error
}

// Locker is the named, TTL-bounded mutual-exclusion lock provider. The
// production implementation wraps redislock; tests use an in-process one.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// RedisLocker adapts bsm/redislock with a bounded linear retry so callers
// wait up to the configured window instead of failing on first contention.
type RedisLocker struct {
	client *redislock.Client
	wait   time.Duration
}

func NewRedisLocker(client *redislock.Client, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, wait: wait}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	retries := int(l.wait / lockRetryInterval)
	if retries < 1 {
		retries = 1
	}
	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), retries),
	})
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("%s: %w", key, utils.ErrLockTimeout)
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// RunService is the Run Lifecycle Manager.
type RunService struct {
	runs     *repository.RunsRepository
	audit    *repository.AuditRepository
	locker   Locker
	settings config.RunSettings
	now      func() time.Time
}

func NewRunService(runs *repository.RunsRepository, audit *repository.AuditRepository, locker Locker, settings config.RunSettings) *RunService {
	return &RunService{
		runs:     runs,
		audit:    audit,
		locker:   locker,
		settings: settings,
		now:      time.Now,
	}
}

// AssignRole takes the opener or closer slot for today's run, creating the
// run when the opener arrives first. Serialized per (shop, date, role) via
// the lock provider; a lock timeout is retryable by the caller.
func (s *RunService) AssignRole(ctx context.Context, shopId, role string, user RunUser) (*RoleAssignmentResult, error) {
	ctx, span := tracer.Start(ctx, "RunService.AssignRole")
	defer span.End()

	if role != RoleOpen && role != RoleClose {
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	today := s.today()
	lock, err := s.obtainLock(ctx, shopId, today, role)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lock)

	run, err := s.runs.GetRun(ctx, shopId, today)
	if err != nil {
		return nil, err
	}
	if role == RoleOpen {
		return s.assignOpener(ctx, run, shopId, today, user)
	}
	return s.assignCloser(ctx, run, shopId, user)
}

func (s *RunService) assignOpener(ctx context.Context, run *models.RunRecord, shopId, today string, user RunUser) (*RoleAssignmentResult, error) {
	if run == nil {
		created := s.newRun(shopId, today)
		created.WithOpener(user.idString(), user.Username, false)
		created.CurrentActiveUserId = user.idString()
		if err := s.runs.SaveRun(ctx, created); err != nil {
			return nil, err
		}
		s.appendAudit(ctx, "start_open", created, fmt.Sprintf("start_open by %s", user.displayName()), user.idString())
		return &RoleAssignmentResult{Run: created, Role: RoleOpen, State: StateAssigned}, nil
	}

	s.ensurePhaseMap(run)
	if run.OpenerUserId == user.idString() {
		run.CurrentActiveUserId = user.idString()
		if run.Status == models.RunStatusReturned {
			run.Status = models.RunStatusInProgress
		}
		if err := s.runs.SaveRun(ctx, *run); err != nil {
			return nil, err
		}
		return &RoleAssignmentResult{Run: *run, Role: RoleOpen, State: StateAlreadyHolder}, nil
	}
	if run.OpenerUserId != "" {
		return nil, &utils.RoleAlreadyTakenError{Role: RoleOpen, Holder: run.OpenerUsername}
	}

	run.WithOpener(user.idString(), user.Username, false)
	run.CurrentActiveUserId = user.idString()
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, "start_open", *run, fmt.Sprintf("start_open by %s", user.displayName()), user.idString())
	return &RoleAssignmentResult{Run: *run, Role: RoleOpen, State: StateAssigned}, nil
}

func (s *RunService) assignCloser(ctx context.Context, run *models.RunRecord, shopId string, user RunUser) (*RoleAssignmentResult, error) {
	if run == nil {
		return nil, fmt.Errorf("no run for shop %s today: %w", shopId, utils.ErrRunNotFound)
	}

	s.ensurePhaseMap(run)
	if run.CloserUserId == user.idString() {
		run.CurrentActiveUserId = user.idString()
		if run.Status == models.RunStatusReturned {
			run.Status = models.RunStatusInProgress
		}
		if err := s.runs.SaveRun(ctx, *run); err != nil {
			return nil, err
		}
		return &RoleAssignmentResult{Run: *run, Role: RoleClose, State: StateAlreadyHolder}, nil
	}
	if run.CloserUserId != "" {
		return nil, &utils.RoleAlreadyTakenError{Role: RoleClose, Holder: run.CloserUsername}
	}

	run.WithCloser(user.idString(), user.Username, false)
	run.CurrentActiveUserId = user.idString()
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, "start_close", *run, fmt.Sprintf("start_close by %s", user.displayName()), user.idString())
	return &RoleAssignmentResult{Run: *run, Role: RoleClose, State: StateAssigned}, nil
}

// HandoverRole is the manager-forced reassignment: it overwrites the slot
// whether or not it is vacant. Run status is preserved so a handover during
// ready_to_close does not bounce the run back to in_progress.
func (s *RunService) HandoverRole(ctx context.Context, shopId, role string, user RunUser) (*models.RunRecord, error) {
	ctx, span := tracer.Start(ctx, "RunService.HandoverRole")
	defer span.End()

	if role != RoleOpen && role != RoleClose {
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	today := s.today()
	lock, err := s.obtainLock(ctx, shopId, today, role)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lock)

	run, err := s.runs.GetRun(ctx, shopId, today)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no run for shop %s today: %w", shopId, utils.ErrRunNotFound)
	}
	s.ensurePhaseMap(run)
	if role == RoleOpen {
		run.WithOpener(user.idString(), user.Username, true)
	} else {
		run.WithCloser(user.idString(), user.Username, true)
	}
	run.CurrentActiveUserId = user.idString()
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, "handover_"+role, *run, fmt.Sprintf("handover %s to %s", role, user.displayName()), user.idString())
	return run, nil
}

// CreateRun makes an empty run without assigning any role.
func (s *RunService) CreateRun(ctx context.Context, shopId, runDate string) (*models.RunRecord, error) {
	ctx, span := tracer.Start(ctx, "RunService.CreateRun")
	defer span.End()

	if runDate == "" {
		runDate = s.today()
	}
	lock, err := s.obtainLock(ctx, shopId, runDate, "create")
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lock)

	existing, err := s.runs.GetRun(ctx, shopId, runDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("run for %s on %s: %w", shopId, runDate, utils.ErrRunAlreadyExists)
	}
	run := s.newRun(shopId, runDate)
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ReturnRun reopens a shift for a fresh assignment cycle on the same date.
// Deliberately not lock-guarded: a return is a rare manual manager action
// and the read-then-write window is accepted.
func (s *RunService) ReturnRun(ctx context.Context, shopId string, actor RunUser, reason, runDate string) (*models.RunRecord, error) {
	ctx, span := tracer.Start(ctx, "RunService.ReturnRun")
	defer span.End()

	if runDate == "" {
		runDate = s.today()
	}
	run, err := s.runs.GetRun(ctx, shopId, runDate)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no run for shop %s at %s: %w", shopId, runDate, utils.ErrRunNotFound)
	}
	s.ensurePhaseMap(run)
	run.Status = models.RunStatusReturned
	run.CurrentActiveUserId = ""
	run.DeltaTotal = ""
	run.FinishedAt = ""
	if reason != "" {
		run.Comment = reason
	}
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	s.clearCadenceState(ctx, run.RunId)
	s.appendAudit(ctx, "return_run", *run, fmt.Sprintf("returned by %s: %s", actor.displayName(), reason), actor.idString())
	return run, nil
}

// FinalizeRun persists the terminal transition. Gating (required steps,
// photo, deviation comments) is the caller's responsibility; the manager
// only records the outcome.
func (s *RunService) FinalizeRun(ctx context.Context, runId string, totalDelta decimal.Decimal) (*models.RunRecord, error) {
	ctx, span := tracer.Start(ctx, "RunService.FinalizeRun")
	defer span.End()

	run, err := s.runs.GetRunById(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runId, utils.ErrRunNotFound)
	}
	s.ensurePhaseMap(run)
	run.Status = models.RunStatusClosed
	run.DeltaTotal = totalDelta.StringFixed(2)
	run.FinishedAt = utils.NowISO()
	run.CurrentActiveUserId = ""
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	s.clearCadenceState(ctx, run.RunId)
	s.appendAudit(ctx, "finalize_run", *run, fmt.Sprintf("closed with delta %s", run.DeltaTotal), "")
	return run, nil
}

// MarkReadyToClose flips an in_progress run once the gating check passed.
func (s *RunService) MarkReadyToClose(ctx context.Context, runId string) (*models.RunRecord, error) {
	run, err := s.runs.GetRunById(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runId, utils.ErrRunNotFound)
	}
	if run.Status == models.RunStatusClosed {
		return run, nil
	}
	run.Status = models.RunStatusReadyToClose
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *RunService) GetTodayRun(ctx context.Context, shopId string) (*models.RunRecord, error) {
	return s.runs.GetRun(ctx, shopId, s.today())
}

func (s *RunService) newRun(shopId, date string) models.RunRecord {
	phaseMap := make(map[string]string, len(s.settings.TemplateMap))
	for phase, templateId := range s.settings.TemplateMap {
		phaseMap[phase] = templateId
	}
	run := models.RunRecord{
		RunId:            uuid.NewString(),
		Date:             date,
		ShopId:           shopId,
		Status:           models.RunStatusOpened,
		TemplatePhaseMap: phaseMap,
		Version:          1,
		CreatedAt:        utils.NowISO(),
	}
	run.TemplateOpenId = phaseMap["open"]
	run.TemplateCloseId = phaseMap["close"]
	return run
}

// ensurePhaseMap backfills template defaults on runs created before a new
// phase was configured.
func (s *RunService) ensurePhaseMap(run *models.RunRecord) {
	if run.TemplatePhaseMap == nil {
		run.TemplatePhaseMap = map[string]string{}
	}
	for phase, templateId := range s.settings.TemplateMap {
		if _, ok := run.TemplatePhaseMap[phase]; !ok {
			run.TemplatePhaseMap[phase] = templateId
		}
	}
	if id := run.TemplatePhaseMap["open"]; id != "" {
		run.TemplateOpenId = id
	}
	if id := run.TemplatePhaseMap["close"]; id != "" {
		run.TemplateCloseId = id
	}
}

func (s *RunService) today() string {
	return s.now().UTC().Format("2006-01-02")
}

func (s *RunService) lockKey(shopId, date, suffix string) string {
	if s.settings.Scope == "shop_id_only" {
		return fmt.Sprintf("lock:run:%s:%s", shopId, suffix)
	}
	return fmt.Sprintf("lock:run:%s:%s:%s", shopId, date, suffix)
}

func (s *RunService) obtainLock(ctx context.Context, shopId, date, suffix string) (LockHandle, error) {
	key := s.lockKey(shopId, date, suffix)
	lock, err := s.locker.Obtain(ctx, key, s.settings.LockTTL)
	if err != nil {
		if errors.Is(err, utils.ErrLockTimeout) {
			config.GetLogger().WithFields(logrus.Fields{
				"module": "workflow",
				"lock":   key,
			}).Warn("run lock not obtained within wait window")
		}
		return nil, err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module": "workflow",
		"lock":   key,
		"ttl":    s.settings.LockTTL.String(),
	}).Info("run lock acquired")
	return lock, nil
}

func (s *RunService) releaseLock(ctx context.Context, lock LockHandle) {
	if lock == nil {
		return
	}
	if err := lock.Release(ctx); err != nil {
		config.GetLogger().WithField("module", "workflow").
			Warn("failed to release run lock: " + err.Error())
	}
}

// clearCadenceState drops every reminder slot of the run so a reopened run
// starts its cadences from zero.
func (s *RunService) clearCadenceState(ctx context.Context, runId string) {
	if err := config.RemoveRedisKeysByPattern(ctx, models.CadenceKeyPattern(runId)); err != nil {
		config.LogError(config.GetLogger(), "workflow", "clearCadenceState", "RemoveRedisKeysByPattern", runId, err)
	}
}

func (s *RunService) appendAudit(ctx context.Context, action string, run models.RunRecord, details, userId string) {
	if s.audit == nil {
		return
	}
	record := models.NewAuditRecord(action, "run", run.RunId, details, userId)
	if err := s.audit.Append(ctx, record); err != nil {
		// The trail is best-effort; a failed append must not fail the
		// lifecycle operation itself.
		config.LogError(config.GetLogger(), "workflow", "appendAudit", action, run.RunId, err)
	}
}
