package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/tablepos-backend/internal/analytics/writer"
)

func baseRow(envelope types.Envelope, occurred time.Time, loc *time.Location, payload any) (types.SalesFactRow, error) {
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}
	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return types.SalesFactRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	row := types.SalesFactRow{
		EventID:      envelope.EventID,
		EventType:    string(envelope.EventType),
		OccurredAt:   occurred.UTC(),
		BusinessDate: occurred.In(loc).Format("2006-01-02"),
		TableIDs:     []string{},
		Payload:      payloadJSON,
	}
	if envelope.Actor != nil {
		row.ActorRole = stringPtr(envelope.Actor.Role)
	}
	return row, nil
}

func vnd(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func int64Ptr(value int64) *int64 {
	return &value
}
