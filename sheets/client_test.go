package sheets

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"
)

type scriptedAPI struct {
	errs  []error
	calls int
	rows  [][]string
}

func (s *scriptedAPI) next() error {
	if s.calls < len(s.errs) {
		err := s.errs[s.calls]
		s.calls++
		return err
	}
	s.calls++
	return nil
}

func (s *scriptedAPI) Get(ctx context.Context, spreadsheetId, readRange string) ([][]string, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return s.rows, nil
}

func (s *scriptedAPI) Update(ctx context.Context, spreadsheetId, writeRange string, values [][]string) error {
	return s.next()
}

func (s *scriptedAPI) Clear(ctx context.Context, spreadsheetId, clearRange string) error {
	return s.next()
}

func TestReadRetriesOnServerError(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{
			&googleapi.Error{Code: 500},
			&googleapi.Error{Code: 429},
		},
		rows: [][]string{{"a", "b"}},
	}
	client := NewClientWithAPI("sheet", api)

	rows, err := client.Read(context.Background(), "Runs!A2:S")
	if err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "a" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", api.calls)
	}
	if client.ErrorStats()["http_error"] != 2 {
		t.Fatalf("error stats should count both failures: %v", client.ErrorStats())
	}
}

func TestReadDoesNotRetryClientError(t *testing.T) {
	api := &scriptedAPI{errs: []error{&googleapi.Error{Code: 400}}}
	client := NewClientWithAPI("sheet", api)

	_, err := client.Read(context.Background(), "Runs!A2:S")
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("expected the 400 to surface, got %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", api.calls)
	}
}

func TestWriteGivesUpAfterMaxRetries(t *testing.T) {
	api := &scriptedAPI{errs: []error{
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 503},
	}}
	client := NewClientWithAPI("sheet", api)

	if err := client.Write(context.Background(), "Runs!A1", [][]string{{"x"}}); err == nil {
		t.Fatal("expected the write to fail after exhausting retries")
	}
	if api.calls != maxRetries {
		t.Fatalf("expected %d attempts, got %d", maxRetries, api.calls)
	}
}
