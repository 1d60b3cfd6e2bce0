// seed-sheets initializes a fresh spreadsheet: header rows for every
// logical table, and optionally a demo shop, staff and checklist template
// for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

var headerByTab = map[string][]string{
	"Runs":          models.RunHeaders,
	"RunSteps":      models.RunStepHeaders,
	"Shops":         models.ShopHeaders,
	"Users":         models.UserHeaders,
	"Templates":     models.TemplateHeaders,
	"TemplateSteps": models.TemplateStepHeaders,
	"Audit":         models.AuditHeaders,
	"Attachments":   models.AttachmentHeaders,
	"Export":        models.ExportHeaders,
}

func main() {
	demo := flag.Bool("demo", false, "Also seed a demo shop, users and template")
	confirm := flag.String("confirm", "", "Type SEED to proceed (clears all tabs)")
	flag.Parse()

	if *confirm != "SEED" {
		fmt.Fprintln(os.Stderr, "set --confirm=SEED to proceed; this clears every tab")
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := sheets.NewClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize sheets client: %v\n", err)
		os.Exit(1)
	}

	for tab, header := range headerByTab {
		if err := client.Clear(ctx, tab); err != nil {
			fmt.Fprintf(os.Stderr, "clear %s: %v\n", tab, err)
			os.Exit(1)
		}
		if err := client.Write(ctx, tab+"!A1", [][]string{header}); err != nil {
			fmt.Fprintf(os.Stderr, "write %s header: %v\n", tab, err)
			os.Exit(1)
		}
		fmt.Printf("seeded %s\n", tab)
	}

	if !*demo {
		return
	}
	if err := seedDemo(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "seed demo data: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("seeded demo data")
}

func seedDemo(ctx context.Context, client *sheets.Client) error {
	shops := repository.NewShopsRepository(client)
	if err := shops.SaveAll(ctx, []models.ShopInfo{{
		ShopId:            "demo",
		Name:              "Demo Shop",
		Timezone:          "Europe/Moscow",
		OpenTime:          "09:00",
		CloseTime:         "21:00",
		ManagerUsernames:  []string{"demo_manager"},
		EmployeeUsernames: []string{"demo_opener", "demo_closer"},
		ReminderSlots:     map[string][]string{"check_1100": {"11:00"}},
		IsActive:          true,
	}}); err != nil {
		return err
	}

	users := repository.NewUsersRepository(client)
	if err := users.SaveAll(ctx, []models.UserRecord{
		{UserId: "1", TgId: 100001, Username: "demo_manager", FullName: "Demo Manager", Role: "manager", Shops: []string{"demo"}, IsActive: true},
		{UserId: "2", TgId: 100002, Username: "demo_opener", FullName: "Demo Opener", Role: "employee", Shops: []string{"demo"}, IsActive: true},
		{UserId: "3", TgId: 100003, Username: "demo_closer", FullName: "Demo Closer", Role: "employee", Shops: []string{"demo"}, IsActive: true},
	}); err != nil {
		return err
	}

	templates := repository.NewTemplatesRepository(client)
	opening := models.TemplateDefinition{
		TemplateId: "opening_v1",
		Name:       "Opening checklist",
		Version:    1,
		Phase:      "open",
		IsActive:   true,
		Steps: []models.TemplateStepDefinition{
			{StepOrder: 1, Code: "cash_start", Title: "Count the cash drawer", Type: models.StepValueNumber, Required: true, NormRule: "5000", OwnerRole: models.OwnerRoleOpener},
			{StepOrder: 2, Code: "lights_on", Title: "Turn on the lights and signage", Type: models.StepValueCheck, Required: true, OwnerRole: models.OwnerRoleOpener},
			{StepOrder: 3, Code: "front_photo", Title: "Photo of the storefront", Type: models.StepValuePhoto, Required: true, OwnerRole: models.OwnerRoleOpener},
		},
	}
	closing := models.TemplateDefinition{
		TemplateId: "closing_v1",
		Name:       "Closing checklist",
		Version:    1,
		Phase:      "close",
		IsActive:   true,
		Steps: []models.TemplateStepDefinition{
			{StepOrder: 1, Code: "cash_end", Title: "Count the cash drawer", Type: models.StepValueNumber, Required: true, NormRule: "5000", ValidatorsJSON: `{"delta_threshold": "300"}`, OwnerRole: models.OwnerRoleCloser},
			{StepOrder: 2, Code: "doors_locked", Title: "Lock doors and storage", Type: models.StepValueCheck, Required: true, OwnerRole: models.OwnerRoleCloser},
			{StepOrder: 3, Code: "closing_photo", Title: "Photo of the closed register", Type: models.StepValuePhoto, Required: true, OwnerRole: models.OwnerRoleCloser},
		},
	}
	if err := templates.SaveTemplate(ctx, opening); err != nil {
		return err
	}
	return templates.SaveTemplate(ctx, closing)
}
