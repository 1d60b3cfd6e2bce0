package config

import (
	"context"
	"errors"
	"os"
	"sync"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

var (
	sheetsService   *sheetsapi.Service
	sheetsServiceMu sync.Mutex
)

func GetSpreadsheetId() string {
	return os.Getenv("GOOGLE_SHEETS_ID")
}

// GetSheetsService returns the Sheets API service, initializing it lazily.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON (inline JSON or a file
// path) and fall back to Application Default Credentials.
func GetSheetsService(ctx context.Context) (*sheetsapi.Service, error) {
	sheetsServiceMu.Lock()
	defer sheetsServiceMu.Unlock()
	if sheetsService != nil {
		return sheetsService, nil
	}
	if GetSpreadsheetId() == "" {
		return nil, errors.New("GOOGLE_SHEETS_ID not set")
	}

	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if cred := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"); cred != "" {
		if _, err := os.Stat(cred); err == nil {
			opts = append(opts, option.WithCredentialsFile(cred))
		} else {
			opts = append(opts, option.WithCredentialsJSON([]byte(cred)))
		}
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	sheetsService = svc
	return sheetsService, nil
}
