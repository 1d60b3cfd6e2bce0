package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
)

func seedClosingTemplate(t *testing.T, env *testEnv) {
	t.Helper()
	template := models.TemplateDefinition{
		TemplateId: "closing_v1",
		Name:       "Closing checklist",
		Version:    1,
		Phase:      "close",
		IsActive:   true,
		Steps: []models.TemplateStepDefinition{
			{StepOrder: 1, Code: "cash_end", Title: "Count the cash drawer", Type: models.StepValueNumber, Required: true, NormRule: "5000", OwnerRole: models.OwnerRoleCloser},
			{StepOrder: 2, Code: "doors_locked", Title: "Lock doors", Type: models.StepValueCheck, Required: true, OwnerRole: models.OwnerRoleCloser},
			{StepOrder: 3, Code: "closing_photo", Title: "Register photo", Type: models.StepValuePhoto, Required: true, OwnerRole: models.OwnerRoleCloser},
		},
	}
	if err := env.templates.SaveTemplate(context.Background(), template); err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

func closingRun() *models.RunRecord {
	return &models.RunRecord{
		RunId:            "run-1",
		Date:             "2025-03-10",
		ShopId:           "shop-1",
		Status:           models.RunStatusInProgress,
		TemplatePhaseMap: map[string]string{"close": "closing_v1"},
	}
}

func newGate(env *testEnv) *GateService {
	return NewGateService(env.templates, env.steps, env.attachments, config.AlertSettings{DeltaThreshold: "300"})
}

func submitClosingSteps(t *testing.T, env *testEnv, records ...models.RunStepRecord) {
	t.Helper()
	if err := env.steps.Upsert(context.Background(), records); err != nil {
		t.Fatalf("seed steps: %v", err)
	}
}

func TestGateReportsMissingRequiredStep(t *testing.T) {
	env := newTestEnv(t)
	seedClosingTemplate(t, env)
	gate := newGate(env)

	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "5000"}, Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "closing_photo", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValuePhoto, Photo: "runs/run-1/closing_photo/p.jpg"}, Status: models.StepStatusOk},
	)

	violations, err := gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected exactly one violation, got %v", violations)
	}
	if violations[0].Code != ViolationMissingStep || violations[0].StepCode != "doors_locked" {
		t.Fatalf("wrong violation: %+v", violations[0])
	}
}

func TestGateSkippedStepSatisfiesRequirement(t *testing.T) {
	env := newTestEnv(t)
	seedClosingTemplate(t, env)
	gate := newGate(env)

	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "5000"}, Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "doors_locked", OwnerRole: models.OwnerRoleCloser, Status: models.StepStatusSkipped},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "closing_photo", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValuePhoto, Photo: "runs/run-1/closing_photo/p.jpg"}, Status: models.StepStatusOk},
	)

	violations, err := gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("skipped steps stop the gate from failing, got %v", violations)
	}
}

func TestGateRequiresPhotoEvidence(t *testing.T) {
	env := newTestEnv(t)
	seedClosingTemplate(t, env)
	gate := newGate(env)

	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "5000"}, Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "doors_locked", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueCheck, Check: true}, Status: models.StepStatusOk},
		// Photo step marked ok but with no object key and no attachment row.
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "closing_photo", OwnerRole: models.OwnerRoleCloser, Status: models.StepStatusOk},
	)

	violations, err := gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 1 || violations[0].Code != ViolationMissingPhoto {
		t.Fatalf("expected missing_photo, got %v", violations)
	}

	// An attachment row for the step satisfies the requirement.
	if err := env.attachments.Add(context.Background(),
		models.NewAttachmentRecord("run-1", "closing_photo", "runs/run-1/closing_photo/p.jpg", "", "photo")); err != nil {
		t.Fatalf("add attachment: %v", err)
	}
	violations, err = gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("attachment should satisfy the photo step, got %v", violations)
	}
}

func TestGateRequiresCommentOnLargeDeviation(t *testing.T) {
	env := newTestEnv(t)
	seedClosingTemplate(t, env)
	gate := newGate(env)

	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "4500"}, DeltaNumber: "-500", Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "doors_locked", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueCheck, Check: true}, Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "closing_photo", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValuePhoto, Photo: "runs/run-1/closing_photo/p.jpg"}, Status: models.StepStatusOk},
	)

	violations, err := gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 1 || violations[0].Code != ViolationMissingComment {
		t.Fatalf("expected missing_comment for the -500 deviation, got %v", violations)
	}

	// Same deviation with a comment passes.
	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "4500"}, DeltaNumber: "-500",
			Comment: "supplier paid in cash", Status: models.StepStatusOk},
	)
	violations, err = gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("comment should clear the violation, got %v", violations)
	}
}

func TestGateSmallDeviationNeedsNoComment(t *testing.T) {
	env := newTestEnv(t)
	seedClosingTemplate(t, env)
	gate := newGate(env)

	submitClosingSteps(t, env,
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "cash_end", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueNumber, Number: "4900"}, DeltaNumber: "-100", Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "doors_locked", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValueCheck, Check: true}, Status: models.StepStatusOk},
		models.RunStepRecord{RunId: "run-1", Phase: "close", StepCode: "closing_photo", OwnerRole: models.OwnerRoleCloser,
			Value: models.StepValue{Kind: models.StepValuePhoto, Photo: "runs/run-1/closing_photo/p.jpg"}, Status: models.StepStatusOk},
	)

	violations, err := gate.CheckClose(context.Background(), closingRun())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("a deviation under the threshold needs no comment, got %v", violations)
	}
}
