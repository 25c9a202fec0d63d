package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

var _ processedTracker = (*idempotency.Manager)(nil)

type alertRepo struct {
	tables    map[uuid.UUID]string
	created   []models.KitchenNotification
	createErr error
}

func (r *alertRepo) Create(_ context.Context, n *models.KitchenNotification) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, *n)
	return nil
}

func (r *alertRepo) TableNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if name, ok := r.tables[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type memoryProcessed struct {
	seen    map[string]bool
	deleted int
}

func (m *memoryProcessed) Claim(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key := consumer + ":" + eventID.String()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memoryProcessed) Release(_ context.Context, consumer string, eventID uuid.UUID) error {
	delete(m.seen, consumer+":"+eventID.String())
	m.deleted++
	return nil
}

func newTestConsumer(repo *alertRepo) (*Consumer, *memoryProcessed) {
	processed := &memoryProcessed{seen: map[string]bool{}}
	return &Consumer{
		repo:        repo,
		idempotency: processed,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}, processed
}

func envelope(t *testing.T, data any) (uuid.UUID, []byte) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id := uuid.New()
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: id.String(), Data: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return id, body
}

func TestConsumerCreatesReturnAlertOnce(t *testing.T) {
	tableID := uuid.New()
	repo := &alertRepo{tables: map[uuid.UUID]string{tableID: "Bàn 5"}}
	consumer, _ := newTestConsumer(repo)

	_, body := envelope(t, payloads.ReturnSlipEvent{
		SlipID:      uuid.New(),
		OrderID:     uuid.New(),
		TableIDs:    []uuid.UUID{tableID},
		Status:      enums.ReviewStatusPending,
		Reason:      "khách đổi ý",
		Items:       []payloads.ReturnedLine{{LineItemID: uuid.New(), Quantity: 2}, {LineItemID: uuid.New(), Quantity: 1}},
		ReturnValue: decimal.NewFromInt(90000),
	})

	for i := 0; i < 2; i++ {
		res := consumer.process(context.Background(), "m1", string(enums.EventReturnRequested), body)
		if !res.ack {
			t.Fatalf("delivery %d should be acked", i)
		}
	}
	if len(repo.created) != 1 {
		t.Fatalf("duplicate deliveries must create one alert, got %d", len(repo.created))
	}
	got := repo.created[0]
	if got.Message != "Bàn 5: yêu cầu trả 3 món (lý do: khách đổi ý)" || got.TableID == nil || *got.TableID != tableID {
		t.Fatalf("unexpected alert %+v", got)
	}
}

func TestConsumerCreatesCancellationAlert(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	repo := &alertRepo{tables: map[uuid.UUID]string{a: "Bàn 2", b: "Bàn 1"}}
	consumer, _ := newTestConsumer(repo)

	_, body := envelope(t, payloads.CancellationEvent{RequestID: uuid.New(), OrderID: uuid.New(), TableIDs: []uuid.UUID{a, b}})
	if res := consumer.process(context.Background(), "m2", string(enums.EventCancellationRequested), body); !res.ack {
		t.Fatalf("expected ack")
	}
	if len(repo.created) != 1 || repo.created[0].Message != "Bàn 1, Bàn 2: yêu cầu huỷ đơn" {
		t.Fatalf("unexpected alerts %+v", repo.created)
	}
}

func TestConsumerSkipsOtherEvents(t *testing.T) {
	repo := &alertRepo{}
	consumer, _ := newTestConsumer(repo)
	if res := consumer.process(context.Background(), "m3", string(enums.EventOrderPaid), []byte("{}")); !res.ack {
		t.Fatalf("unrelated events should be acked")
	}
	if res := consumer.process(context.Background(), "m4", string(enums.EventReturnRequested), []byte("not json")); !res.ack {
		t.Fatalf("undecodable envelopes are dropped")
	}
	if len(repo.created) != 0 {
		t.Fatalf("no alerts expected")
	}
}

func TestConsumerNacksAndForgetsOnFailure(t *testing.T) {
	repo := &alertRepo{createErr: errors.New("db down")}
	consumer, processed := newTestConsumer(repo)

	eventID, body := envelope(t, payloads.CancellationEvent{RequestID: uuid.New(), OrderID: uuid.New()})
	if res := consumer.process(context.Background(), "m5", string(enums.EventCancellationRequested), body); !res.nack {
		t.Fatalf("expected nack")
	}
	if processed.deleted != 1 || processed.seen[staffAlertConsumer+":"+eventID.String()] {
		t.Fatalf("failed events must be released for redelivery")
	}

	repo.createErr = nil
	if res := consumer.process(context.Background(), "m5", string(enums.EventCancellationRequested), body); !res.ack {
		t.Fatalf("redelivery should succeed")
	}
	if len(repo.created) != 1 || repo.created[0].TableLabel != "Mang đi" {
		t.Fatalf("unexpected alerts %+v", repo.created)
	}
}
