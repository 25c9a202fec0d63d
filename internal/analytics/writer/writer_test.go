package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
)

type insertCall struct {
	table     string
	insertIDs []string
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []cbigquery.ValueSaver) error {
	call := insertCall{table: table}
	for _, row := range rows {
		_, insertID, err := row.Save()
		if err != nil {
			return err
		}
		call.insertIDs = append(call.insertIDs, insertID)
	}
	f.calls = append(f.calls, call)
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newTestWriter(t *testing.T, batch int, responses ...error) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{responses: responses}
	w, err := New(fake, Config{
		SalesTable:  " sales_facts ",
		BatchSize:   batch,
		RetryPolicy: RetryPolicy{InitialBackoff: 1, MaximumBackoff: 1},
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return w, fake
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{SalesTable: "sales_facts"}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&fakeInserter{}, Config{SalesTable: " "}); err == nil {
		t.Fatal("expected error when sales table missing")
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 5 * time.Second}.withDefaults()
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.MaxAttempts)
	}
	if p.MaximumBackoff != p.InitialBackoff {
		t.Fatalf("expected cap raised to the initial backoff, got %s", p.MaximumBackoff)
	}
}

func TestEventIDBecomesInsertID(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	row := types.SalesFactRow{EventID: "evt-1", EventType: "order_paid", RevenueVND: 45000}
	if err := w.InsertSalesFact(context.Background(), row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one insert, got %d", len(fake.calls))
	}
	if fake.calls[0].table != "sales_facts" {
		t.Fatalf("expected trimmed table name, got %q", fake.calls[0].table)
	}
	if got := fake.calls[0].insertIDs; len(got) != 1 || got[0] != "evt-1" {
		t.Fatalf("expected insert id evt-1, got %v", got)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	w, fake := newTestWriter(t, 1,
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try later"),
		nil,
	)
	if err := w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(fake.calls))
	}
	if len(w.pending) != 0 {
		t.Fatal("expected queue drained after success")
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	w, fake := newTestWriter(t, 1, unavailable, unavailable, unavailable, unavailable)
	if err := w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(fake.calls))
	}
	if len(w.pending) != 1 {
		t.Fatal("failed rows stay queued")
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	w, fake := newTestWriter(t, 1, &googleapi.Error{Code: http.StatusBadRequest})
	err := w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "1"})
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestTransientRowErrors(t *testing.T) {
	rowErrs := func(reasons ...string) error {
		var errs cbigquery.MultiError
		for _, reason := range reasons {
			errs = append(errs, &cbigquery.Error{Reason: reason})
		}
		return cbigquery.PutMultiError{{InsertID: "1", Errors: errs}}
	}
	if !transient(rowErrs("backendError", "stopped")) {
		t.Fatal("backend errors should be retried")
	}
	if transient(rowErrs("invalid", "stopped")) {
		t.Fatal("invalid rows should not be retried")
	}
	if transient(cbigquery.PutMultiError{}) {
		t.Fatal("empty multi error is not transient")
	}
	if transient(errors.New("boom")) {
		t.Fatal("unknown errors are permanent")
	}
}

func TestBatching(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	ctx := context.Background()
	if err := w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "1"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected nothing written before the batch fills, got %d", len(fake.calls))
	}
	if err := w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "2"}); err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if len(fake.calls) != 1 || len(fake.calls[0].insertIDs) != 2 {
		t.Fatalf("expected one call with two rows, got %+v", fake.calls)
	}

	if err := w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "3"}); err != nil {
		t.Fatalf("third insert: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(fake.calls) != 2 || len(w.pending) != 0 {
		t.Fatalf("expected flush to write the partial batch, got %d calls", len(fake.calls))
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"order_id": "abc"})
	if err != nil || !nj.Valid {
		t.Fatalf("expected valid json, got %+v %v", nj, err)
	}
	for _, empty := range []any{nil, json.RawMessage(nil), []byte{}} {
		nj, err = EncodeJSON(empty)
		if err != nil || nj.Valid {
			t.Fatalf("expected null json for %#v, got %+v %v", empty, nj, err)
		}
	}
	raw := json.RawMessage(`{"total":"45000"}`)
	nj, err = EncodeJSON(raw)
	if err != nil || nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %+v %v", nj, err)
	}
	if _, err := EncodeJSON(func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}
