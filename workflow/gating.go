package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	ViolationMissingStep    = "missing_step"
	ViolationMissingPhoto   = "missing_photo"
	ViolationMissingComment = "missing_comment"
)

// GateViolation is one reason a phase cannot be signed off yet. The list is
// what gets rendered back to the performer, so Title carries the human name.
type GateViolation struct {
	Code     string
	Phase    string
	StepCode string
	Title    string
}

func (v GateViolation) String() string {
	return fmt.Sprintf("%s: %s/%s (%s)", v.Code, v.Phase, v.StepCode, v.Title)
}

// GateService decides whether a run phase is complete enough to close.
// It never mutates anything; callers act on the violation list.
type GateService struct {
	templates   *repository.TemplatesRepository
	steps       *repository.RunStepsRepository
	attachments *repository.AttachmentsRepository
	alerts      config.AlertSettings
}

func NewGateService(templates *repository.TemplatesRepository, steps *repository.RunStepsRepository, attachments *repository.AttachmentsRepository, alerts config.AlertSettings) *GateService {
	return &GateService{
		templates:   templates,
		steps:       steps,
		attachments: attachments,
		alerts:      alerts,
	}
}

// CheckPhase evaluates one phase of the run for the given shift role.
// Violations come back in template order; an empty list means the phase may
// be signed off.
func (g *GateService) CheckPhase(ctx context.Context, run *models.RunRecord, phase string, role models.OwnerRole) ([]GateViolation, error) {
	templateId := run.TemplateForPhase(phase)
	if templateId == "" {
		return nil, nil
	}
	template, err := g.templates.Get(ctx, templateId)
	if err != nil {
		return nil, err
	}
	steps, err := g.steps.ListForRun(ctx, run.RunId)
	if err != nil {
		return nil, err
	}
	attachments, err := g.attachments.ListForRun(ctx, run.RunId)
	if err != nil {
		return nil, err
	}
	return g.evaluate(template, steps, attachments, phase, role), nil
}

// CheckClose is the closer's gate before finalization.
func (g *GateService) CheckClose(ctx context.Context, run *models.RunRecord) ([]GateViolation, error) {
	return g.CheckPhase(ctx, run, "close", models.OwnerRoleCloser)
}

func (g *GateService) evaluate(template models.TemplateDefinition, steps []models.RunStepRecord, attachments []models.AttachmentRecord, phase string, role models.OwnerRole) []GateViolation {
	recorded := map[string][]models.RunStepRecord{}
	for i := range steps {
		if steps[i].Phase != phase {
			continue
		}
		recorded[steps[i].StepCode] = append(recorded[steps[i].StepCode], steps[i])
	}
	attached := map[string]bool{}
	for i := range attachments {
		attached[attachments[i].StepCode] = true
	}

	var violations []GateViolation
	for _, def := range template.Steps {
		if !def.OwnerRole.MatchesRole(role) {
			continue
		}
		record, found := pickRecord(recorded[def.Code], def.OwnerRole, role)
		if def.Required && (!found || !record.IsDone()) {
			violations = append(violations, GateViolation{
				Code:     ViolationMissingStep,
				Phase:    phase,
				StepCode: def.Code,
				Title:    def.Title,
			})
			continue
		}
		if !found || record.Status != models.StepStatusOk {
			continue
		}
		if def.Type == models.StepValuePhoto && record.Value.Photo == "" && !attached[def.Code] {
			violations = append(violations, GateViolation{
				Code:     ViolationMissingPhoto,
				Phase:    phase,
				StepCode: def.Code,
				Title:    def.Title,
			})
			continue
		}
		if def.Type == models.StepValueNumber && g.deviationExceeded(def, record) {
			if record.Comment == "" && !attached[def.Code] {
				violations = append(violations, GateViolation{
					Code:     ViolationMissingComment,
					Phase:    phase,
					StepCode: def.Code,
					Title:    def.Title,
				})
			}
		}
	}
	return violations
}

// deviationExceeded checks the recorded delta against the step's own
// threshold, falling back to the process-wide one.
func (g *GateService) deviationExceeded(def models.TemplateStepDefinition, record models.RunStepRecord) bool {
	delta, err := utils.ParseDecimal(record.DeltaNumber)
	if err != nil {
		return false
	}
	threshold := g.threshold(def)
	return delta.Abs().GreaterThanOrEqual(threshold)
}

func (g *GateService) threshold(def models.TemplateStepDefinition) decimal.Decimal {
	if raw, ok := def.ParsedValidators()["delta_threshold"]; ok {
		if parsed, err := utils.ParseDecimal(raw); err == nil {
			return parsed
		}
	}
	return utils.ParseDecimalOrZero(g.alerts.DeltaThreshold)
}

// pickRecord resolves which ledger entry satisfies a template step when
// several roles recorded the same code. Exact role match wins over shared.
func pickRecord(candidates []models.RunStepRecord, stepRole, shiftRole models.OwnerRole) (models.RunStepRecord, bool) {
	var shared models.RunStepRecord
	sharedFound := false
	for i := range candidates {
		switch candidates[i].OwnerRole {
		case stepRole:
			return candidates[i], true
		case models.OwnerRoleShared:
			shared = candidates[i]
			sharedFound = true
		default:
			if candidates[i].OwnerRole == shiftRole {
				return candidates[i], true
			}
		}
	}
	return shared, sharedFound
}
