package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/notify"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DeltaAlertService watches the running cash deviation of open runs and
// pings the managers once it crosses the threshold. A per-run cooldown key
// in Redis keeps repeated ticks from spamming the same alert.
type DeltaAlertService struct {
	runs          *repository.RunsRepository
	steps         *repository.RunStepsRepository
	notifier      notify.Notifier
	settings      config.AlertSettings
	notifications config.NotificationSettings
}

func NewDeltaAlertService(runs *repository.RunsRepository, steps *repository.RunStepsRepository, notifier notify.Notifier, settings config.AlertSettings, notifications config.NotificationSettings) *DeltaAlertService {
	return &DeltaAlertService{
		runs:          runs,
		steps:         steps,
		notifier:      notifier,
		settings:      settings,
		notifications: notifications,
	}
}

// TotalDelta sums the recorded per-step deviations of a run. Blank and
// malformed cells count as zero.
func TotalDelta(steps []models.RunStepRecord) decimal.Decimal {
	total := decimal.Zero
	for i := range steps {
		total = total.Add(utils.ParseDecimalOrZero(steps[i].DeltaNumber))
	}
	return total
}

func deltaAlertKey(runId string) string {
	return "delta_alert:" + runId
}

// CheckRun evaluates one run. Crossing the threshold upward fires at most
// one alert per cooldown window; dropping back below (or closing the run)
// resets the window so a later re-cross alerts again.
func (s *DeltaAlertService) CheckRun(ctx context.Context, run *models.RunRecord) error {
	if !config.DeltaAlertsEnabled() {
		return nil
	}
	steps, err := s.steps.ListForRun(ctx, run.RunId)
	if err != nil {
		return err
	}
	total := TotalDelta(steps)
	threshold := utils.ParseDecimalOrZero(s.settings.DeltaThreshold)
	key := deltaAlertKey(run.RunId)

	if run.Status == models.RunStatusClosed || total.Abs().LessThan(threshold) {
		return config.RemoveRedisKey(key)
	}

	_, alreadyAlerted, err := config.GetRedisValue(key)
	if err != nil {
		return err
	}
	if alreadyAlerted {
		return nil
	}

	text := fmt.Sprintf("🚨 Shop %s: cash deviation is %s (threshold %s), run %s on %s.",
		run.ShopId, total.StringFixed(2), threshold.StringFixed(2), run.RunId, run.Date)
	if !notify.SendToMany(ctx, s.notifier, s.notifications.ManagerChatIds, text) {
		config.GetLogger().WithFields(logrus.Fields{
			"module": "workflow",
			"run_id": run.RunId,
		}).Warn("delta alert could not be delivered to any manager")
		// Leave the cooldown unset so the next tick retries delivery.
		return nil
	}
	return config.SetRedisValue(key, total.StringFixed(2), s.settings.DeltaCooldown)
}

// CheckAllOpen is the tick entrypoint: every non-closed run gets checked.
func (s *DeltaAlertService) CheckAllOpen(ctx context.Context) error {
	if !config.DeltaAlertsEnabled() {
		return nil
	}
	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return err
	}
	for i := range runs {
		if runs[i].Status == models.RunStatusClosed {
			continue
		}
		if err := s.CheckRun(ctx, &runs[i]); err != nil {
			config.LogError(config.GetLogger(), "workflow", "CheckAllOpen", "CheckRun", runs[i].RunId, err)
		}
	}
	return nil
}
