package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/idempotency"
)

var _ idempotencyChecker = (*idempotency.Manager)(nil)

func TestNewServiceValidation(t *testing.T) {
	logg := testLogger()
	if _, err := NewService("", &gcppubsub.Subscriber{}, &stubHandler{}, &stubManager{}, logg); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := NewService("analytics", nil, &stubHandler{}, &stubManager{}, logg); err == nil {
		t.Fatal("expected error for missing subscription")
	}
	if _, err := NewService("analytics", &gcppubsub.Subscriber{}, nil, &stubManager{}, logg); err == nil {
		t.Fatal("expected error for missing handler")
	}
	if _, err := NewService("analytics", &gcppubsub.Subscriber{}, &stubHandler{}, nil, logg); err == nil {
		t.Fatal("expected error for missing idempotency manager")
	}
}

func TestBuildEnvelope(t *testing.T) {
	actor := &outbox.ActorRef{UserID: uuid.New(), Role: "cashier"}
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:      actor,
		Data:       json.RawMessage(`{"order_id":"ord-1"}`),
	}
	msg := buildMessage(payload, map[string]string{
		"event_type":     "order_paid",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})

	env, err := buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.EventOrderPaid {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected aggregate type %v", env.AggregateType)
	}
	if env.AggregateID != "ord-1" || env.EventID != "evt-1" {
		t.Fatalf("unexpected identity %s/%s", env.AggregateID, env.EventID)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
	if env.Actor == nil || env.Actor.UserID != actor.UserID {
		t.Fatalf("actor not carried: %+v", env.Actor)
	}
}

func TestBuildEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := buildMessage(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       "evt-attr",
		"event_type":     "expense_recorded",
		"aggregate_type": "expense",
		"aggregate_id":   "exp-1",
		"created_at":     created.Format(time.RFC3339Nano),
	})

	env, err := buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventID != "evt-attr" || !env.OccurredAt.Equal(created) {
		t.Fatalf("unexpected fallback %+v", env)
	}
}

func TestBuildEnvelopeRejectsUnknownEventType(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{EventID: "evt"}, map[string]string{
		"event_type":     "license_expired",
		"aggregate_type": "order",
		"aggregate_id":   "x",
	})
	if _, err := buildEnvelope(msg); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestProcessHandlesEvent(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildOrderPaidMessage(t))
	if res.nack {
		t.Fatal("expected ack")
	}
	if !handler.called || handler.envelope.EventType != enums.EventOrderPaid {
		t.Fatalf("handler not invoked with envelope: %+v", handler.envelope)
	}
	if len(manager.consumers) != 1 || manager.consumers[0] != "analytics" {
		t.Fatalf("unexpected idempotency scope %v", manager.consumers)
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{duplicate: true}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildOrderPaidMessage(t))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected check once, got %d", len(manager.checked))
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildOrderPaidMessage(t))
	if !res.nack {
		t.Fatalf("expected nack on handler error")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete on failure")
	}
}

func TestProcessIdempotencyErrorRetries(t *testing.T) {
	manager := &stubManager{checkErr: errors.New("redis down")}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildOrderPaidMessage(t))
	if !res.nack {
		t.Fatal("expected nack when idempotency check fails")
	}
	if handler.called {
		t.Fatal("handler should not run")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := &gcppubsub.Message{Data: []byte("invalid json")}
	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func TestProcessSkipsUnsupportedEvent(t *testing.T) {
	manager := &stubManager{}
	handler := &selectiveHandler{supported: enums.EventExpenseRecorded}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildOrderPaidMessage(t))
	if res.nack {
		t.Fatalf("unsupported event should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency should not be marked for skipped events")
	}
}

func buildOrderPaidMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"abc"}`),
	}
	return buildMessage(payload, map[string]string{
		"event_type":     "order_paid",
		"aggregate_type": "order",
		"aggregate_id":   uuid.NewString(),
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func newTestServiceWithDeps(t *testing.T, handler Handler, manager *stubManager) *Service {
	t.Helper()
	return &Service{
		name:    "analytics",
		handler: handler,
		manager: manager,
		logg:    testLogger(),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type selectiveHandler struct {
	stubHandler
	supported enums.OutboxEventType
}

func (h *selectiveHandler) Supports(eventType enums.OutboxEventType) bool {
	return eventType == h.supported
}

type stubManager struct {
	duplicate   bool
	checkErr    error
	deleteErr   error
	checked     []uuid.UUID
	consumers   []string
	deleted     []uuid.UUID
}

func (s *stubManager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	s.consumers = append(s.consumers, consumer)
	return !s.duplicate, s.checkErr
}

func (s *stubManager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return s.deleteErr
}
