package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/registry"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	broadcastTimeout   = 2 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
	Ordered() bool
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// Resume unblocks an ordering key after a failed publish.
	Resume(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	// Broadcaster fans published events out to the screens. Optional.
	Broadcaster realtime.Broadcaster
}

// Service drains the outbox table into Pub/Sub. Each batch is claimed with
// SKIP LOCKED inside one transaction, so several publishers can run side by
// side without double publishing.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	dlq         dlqRepository
	publisherOf publisherFactory
	broadcaster realtime.Broadcaster
	ordered     bool

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			if p := params.PubSub.Publisher(topic); p != nil {
				return gcpPublisher{p}
			}
			return nil
		}
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		publisherOf:  factory,
		broadcaster:  params.Broadcaster,
		ordered:      params.PubSub.Ordered(),
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPoll,
	}
	if cfg.BatchSize > 0 {
		s.batchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		s.maxAttempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty batch waits one poll interval; a failed batch backs
// off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	if reader, ok := s.dlq.(backlogReader); ok {
		reportBacklog(ctx, reader, s.logg)
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(2*wait, maxBackoff)
		case busy:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// inflight is one event handed to Pub/Sub whose ack has not been read yet.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	fields   map[string]any
	pub      publisher
	result   publishResult
	err      error
}

// processBatch claims up to batchSize rows, publishes all of them before
// waiting on any ack, then records each outcome. Changes are broadcast only
// after the transaction commits.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var (
		busy bool
		sent []*inflight
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil || len(events) == 0 {
			return err
		}
		busy = true

		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		batch := make([]*inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				reason := enums.OutboxDLQReasonNonRetryable
				if errors.Is(err, registry.ErrUnknownEvent) {
					reason = enums.OutboxDLQReasonUnknownEvent
				}
				if err := s.deadLetter(ctx, tx, event, reason, err, nil); err != nil {
					return err
				}
				continue
			}
			batch = append(batch, s.dispatch(publishCtx, event, resolved))
		}

		for _, f := range batch {
			if err := s.settle(ctx, publishCtx, tx, f); err != nil {
				return err
			}
			if f.err == nil {
				sent = append(sent, f)
			}
		}
		return nil
	})
	if err != nil {
		return busy, err
	}
	for _, f := range sent {
		s.broadcast(ctx, f)
	}
	return busy, nil
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) *inflight {
	topic := resolved.Descriptor.Topic
	f := &inflight{
		event:    event,
		resolved: resolved,
		fields:   s.eventFields(event, resolved.Envelope, topic),
		pub:      s.publisherOf(topic),
	}
	if f.pub == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return f
	}
	f.result = f.pub.Publish(ctx, s.message(event, resolved))
	if f.result == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return f
}

func (s *Service) message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if s.ordered {
		msg.OrderingKey = orderingKey(event)
	}
	return msg
}

// orderingKey groups the events of one aggregate, e.g. every status change
// of an order, so subscribers see them in write order.
func orderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID.String()
}

// settle waits for the ack and writes the outcome. Only database errors are
// returned; publish failures are recorded on the row.
func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, f *inflight) error {
	if f.err == nil {
		_, f.err = f.result.Get(publishCtx)
	}
	if f.err == nil {
		if err := s.repo.MarkPublishedTx(tx, f.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", f.event.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, f.fields), "outbox event published")
		return nil
	}

	if s.ordered && f.pub != nil {
		f.pub.Resume(orderingKey(f.event))
	}

	var nonRetry registry.NonRetryableError
	if errors.As(f.err, &nonRetry) {
		return s.deadLetter(ctx, tx, f.event, enums.OutboxDLQReasonNonRetryable, f.err, f.fields)
	}

	attempt := f.event.AttemptCount + 1
	f.fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		f.fields["terminal_reason"] = "max_attempts"
		return s.deadLetter(ctx, tx, f.event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", f.err), f.fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, f.fields), "error", f.err.Error()), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, f.event.ID, f.err); err != nil {
		return fmt.Errorf("mark failure %s: %w", f.event.ID, err)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq and stops retrying it.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	if fields == nil {
		fields = s.eventFields(event, outbox.PayloadEnvelope{}, "")
	}
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// broadcast tells the screens about a committed event. Clients refetch on
// reconnect, so a failed broadcast is logged and dropped.
func (s *Service) broadcast(ctx context.Context, f *inflight) {
	if s.broadcaster == nil {
		return
	}
	change, ok := changeFor(f.event, f.resolved)
	if !ok {
		return
	}
	bctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()
	if err := s.broadcaster.Broadcast(bctx, change); err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, f.fields), "error", err.Error()), "change broadcast failed")
	}
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func (p gcpPublisher) Resume(orderingKey string) {
	p.Publisher.ResumePublish(orderingKey)
}
