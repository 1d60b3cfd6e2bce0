package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
)

// StepSubmission is one incoming checklist answer.
type StepSubmission struct {
	RunId          string
	Phase          string
	StepCode       string
	OwnerRole      string
	Value          models.StepValue
	Comment        string
	PerformerId    string
	Skip           bool
	IdempotencyKey string
}

// StepService turns submissions into ledger rows: it validates the run,
// computes the deviation for number steps against the template norm, and
// merges the row into the ledger.
type StepService struct {
	runs      *repository.RunsRepository
	steps     *repository.RunStepsRepository
	templates *repository.TemplatesRepository
}

func NewStepService(runs *repository.RunsRepository, steps *repository.RunStepsRepository, templates *repository.TemplatesRepository) *StepService {
	return &StepService{runs: runs, steps: steps, templates: templates}
}

// Submit records one answer. Resubmitting the same idempotency key is a
// no-op returning the already stored row; any other write for the same
// composite key supersedes the previous one.
func (s *StepService) Submit(ctx context.Context, sub StepSubmission) (*models.RunStepRecord, error) {
	run, err := s.runs.GetRunById(ctx, sub.RunId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", sub.RunId, utils.ErrRunNotFound)
	}
	if run.Status == models.RunStatusClosed {
		return nil, fmt.Errorf("run %s is closed", sub.RunId)
	}

	record := models.RunStepRecord{
		RunId:           sub.RunId,
		Phase:           sub.Phase,
		StepCode:        sub.StepCode,
		OwnerRole:       models.NormalizeOwnerRole(sub.OwnerRole),
		Value:           sub.Value,
		Comment:         sub.Comment,
		PerformerUserId: sub.PerformerId,
		Status:          models.StepStatusOk,
		StartedAt:       utils.NowISO(),
		UpdatedAt:       utils.NowISO(),
		IdempotencyKey:  sub.IdempotencyKey,
	}
	if sub.Skip {
		record.Status = models.StepStatusSkipped
	}

	existing, err := s.steps.ListForRun(ctx, sub.RunId)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if sub.IdempotencyKey != "" && existing[i].IdempotencyKey == sub.IdempotencyKey {
			return &existing[i], nil
		}
		if existing[i].Key() == record.Key() {
			record.StartedAt = existing[i].StartedAt
		}
	}

	if record.Value.Kind == models.StepValueNumber {
		record.DeltaNumber = s.computeDelta(ctx, run, record)
	}

	if err := s.steps.Upsert(ctx, []models.RunStepRecord{record}); err != nil {
		return nil, err
	}
	return &record, nil
}

// computeDelta is value minus the template norm. Steps without a numeric
// norm carry no deviation.
func (s *StepService) computeDelta(ctx context.Context, run *models.RunRecord, record models.RunStepRecord) string {
	templateId := run.TemplateForPhase(record.Phase)
	if templateId == "" {
		return ""
	}
	template, err := s.templates.Get(ctx, templateId)
	if err != nil {
		return ""
	}
	for _, def := range template.Steps {
		if def.Code != record.StepCode {
			continue
		}
		norm, err := utils.ParseDecimal(def.NormRule)
		if err != nil {
			if raw, ok := def.ParsedValidators()["norm"]; ok {
				norm, err = utils.ParseDecimal(raw)
			}
			if err != nil {
				return ""
			}
		}
		value, err := utils.ParseDecimal(record.Value.Number)
		if err != nil {
			return ""
		}
		return value.Sub(norm).StringFixed(2)
	}
	return ""
}

// ListForRun exposes the ledger view of one run.
func (s *StepService) ListForRun(ctx context.Context, runId string) ([]models.RunStepRecord, error) {
	return s.steps.ListForRun(ctx, runId)
}
