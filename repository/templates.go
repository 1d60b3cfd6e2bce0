package repository

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
)

const (
	templatesDataRange     = "Templates!A2:F"
	templatesFullRange     = "Templates!A1"
	templatesSheet         = "Templates"
	templateStepsDataRange = "TemplateSteps!A2:J"
	templateStepsFullRange = "TemplateSteps!A1"
	templateStepsSheet     = "TemplateSteps"
)

// TemplatesRepository caches the whole checklist catalog in memory:
// templates are read on every step submission and reminder pass but change
// only on explicit import, so the cache lives until Refresh.
type TemplatesRepository struct {
	client *sheets.Client

	mu    sync.Mutex
	cache map[string]models.TemplateDefinition
}

func NewTemplatesRepository(client *sheets.Client) *TemplatesRepository {
	return &TemplatesRepository{client: client}
}

func (r *TemplatesRepository) Get(ctx context.Context, templateId string) (models.TemplateDefinition, error) {
	cache, err := r.ensureCache(ctx)
	if err != nil {
		return models.TemplateDefinition{}, err
	}
	template, ok := cache[templateId]
	if !ok {
		return models.TemplateDefinition{}, fmt.Errorf("template %s: %w", templateId, utils.ErrorRecordNotFound)
	}
	return template, nil
}

func (r *TemplatesRepository) ListByPhase(ctx context.Context, phase string) ([]models.TemplateDefinition, error) {
	cache, err := r.ensureCache(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.TemplateDefinition
	for _, template := range cache {
		if template.Phase == phase && template.IsActive {
			out = append(out, template)
		}
	}
	return out, nil
}

// Refresh drops the cache; the next read reloads from the sheet.
func (r *TemplatesRepository) Refresh() {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
}

// SaveTemplate writes a template and its steps, replacing any previous
// version with the same id, then invalidates the cache.
func (r *TemplatesRepository) SaveTemplate(ctx context.Context, template models.TemplateDefinition) error {
	cache, err := r.loadAll(ctx)
	if err != nil {
		return err
	}
	cache[template.TemplateId] = template

	templateRows := [][]string{models.TemplateHeaders}
	stepRows := [][]string{models.TemplateStepHeaders}
	for _, def := range cache {
		def.SortSteps()
		templateRows = append(templateRows, def.ToRow())
		for i := range def.Steps {
			stepRows = append(stepRows, def.Steps[i].ToRow(def.TemplateId))
		}
	}

	if err := r.client.Clear(ctx, templatesSheet); err != nil {
		return err
	}
	if err := r.client.Write(ctx, templatesFullRange, templateRows); err != nil {
		return err
	}
	if err := r.client.Clear(ctx, templateStepsSheet); err != nil {
		return err
	}
	if err := r.client.Write(ctx, templateStepsFullRange, stepRows); err != nil {
		return err
	}
	r.Refresh()
	return nil
}

func (r *TemplatesRepository) ensureCache(ctx context.Context) (map[string]models.TemplateDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		return r.cache, nil
	}
	cache, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r.cache, nil
}

func (r *TemplatesRepository) loadAll(ctx context.Context) (map[string]models.TemplateDefinition, error) {
	templateRows, err := r.client.Read(ctx, templatesDataRange)
	if err != nil {
		return nil, err
	}
	stepRows, err := r.client.Read(ctx, templateStepsDataRange)
	if err != nil {
		return nil, err
	}

	cache := map[string]models.TemplateDefinition{}
	for _, row := range templateRows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		template := models.TemplateFromRow(row)
		cache[template.TemplateId] = template
	}
	for _, row := range stepRows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		templateId, step := models.TemplateStepFromRow(row)
		template, ok := cache[templateId]
		if !ok {
			continue
		}
		template.Steps = append(template.Steps, step)
		cache[templateId] = template
	}
	for id, template := range cache {
		template.SortSteps()
		cache[id] = template
	}
	return cache, nil
}

