// import-templates loads checklist templates from a JSON file into the
// Templates and TemplateSteps tabs, replacing templates with matching ids.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

type stepPayload struct {
	Order      int               `json:"order"`
	Code       string            `json:"code"`
	Title      string            `json:"title"`
	Type       string            `json:"type"`
	Required   bool              `json:"required"`
	Validators map[string]string `json:"validators,omitempty"`
	NormRule   string            `json:"norm_rule,omitempty"`
	Hint       string            `json:"hint,omitempty"`
	OwnerRole  string            `json:"owner_role,omitempty"`
}

type templatePayload struct {
	TemplateId  string        `json:"template_id"`
	Name        string        `json:"name"`
	Version     int           `json:"version"`
	Phase       string        `json:"phase"`
	Description string        `json:"description,omitempty"`
	Steps       []stepPayload `json:"steps"`
}

func main() {
	file := flag.String("file", "", "Required: path to the templates JSON file")
	dryRun := flag.Bool("dry-run", false, "Parse and print without writing")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var payloads []templatePayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", *file, err)
		os.Exit(1)
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "no templates in file")
		os.Exit(1)
	}

	templates := make([]models.TemplateDefinition, 0, len(payloads))
	for _, p := range payloads {
		if p.TemplateId == "" || p.Phase == "" {
			fmt.Fprintf(os.Stderr, "template %q: template_id and phase are required\n", p.Name)
			os.Exit(1)
		}
		def := models.TemplateDefinition{
			TemplateId:  p.TemplateId,
			Name:        p.Name,
			Version:     p.Version,
			Phase:       p.Phase,
			IsActive:    true,
			Description: p.Description,
		}
		if def.Version == 0 {
			def.Version = 1
		}
		for _, s := range p.Steps {
			validators := ""
			if len(s.Validators) > 0 {
				if encoded, err := json.Marshal(s.Validators); err == nil {
					validators = string(encoded)
				}
			}
			def.Steps = append(def.Steps, models.TemplateStepDefinition{
				StepOrder:      s.Order,
				Code:           s.Code,
				Title:          s.Title,
				Type:           models.StepValueKind(s.Type),
				Required:       s.Required,
				ValidatorsJSON: validators,
				NormRule:       s.NormRule,
				Hint:           s.Hint,
				OwnerRole:      models.NormalizeOwnerRole(s.OwnerRole),
			})
		}
		def.SortSteps()
		templates = append(templates, def)
	}

	if *dryRun {
		for _, def := range templates {
			fmt.Printf("%s (%s): %d steps\n", def.TemplateId, def.Phase, len(def.Steps))
		}
		return
	}

	ctx := context.Background()
	client, err := sheets.NewClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize sheets client: %v\n", err)
		os.Exit(1)
	}
	repo := repository.NewTemplatesRepository(client)
	for _, def := range templates {
		if err := repo.SaveTemplate(ctx, def); err != nil {
			fmt.Fprintf(os.Stderr, "save %s: %v\n", def.TemplateId, err)
			os.Exit(1)
		}
		fmt.Printf("imported %s (%d steps)\n", def.TemplateId, len(def.Steps))
	}
}
