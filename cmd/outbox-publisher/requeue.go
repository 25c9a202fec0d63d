package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

type requeueRepository interface {
	RequeueTx(tx *gorm.DB, id uuid.UUID) error
}

type parkedEvents interface {
	FindTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error)
	DeleteTx(tx *gorm.DB, eventID uuid.UUID) error
}

type backlogReader interface {
	Backlog(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

func parseEventIDs(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q", part)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no event ids given")
	}
	return ids, nil
}

// requeueDeadLetters moves parked events back into the outbox with a fresh
// attempt budget. Each event gets its own transaction. Events parked for a
// reason that a retry cannot fix are skipped unless force is set.
func requeueDeadLetters(ctx context.Context, db dbClient, repo requeueRepository, dlq parkedEvents, ids []uuid.UUID, force bool, logg *logger.Logger) (int, error) {
	var (
		requeued int
		errs     []error
	)
	for _, id := range ids {
		logCtx := logg.WithField(ctx, "outbox_id", id.String())
		err := db.WithTx(ctx, func(tx *gorm.DB) error {
			entry, err := dlq.FindTx(tx, id)
			if err != nil {
				return err
			}
			if !force && !entry.ErrorReason.Transient() {
				return fmt.Errorf("parked as %s, pass -force to requeue anyway", entry.ErrorReason)
			}
			if err := repo.RequeueTx(tx, id); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.New("outbox row is gone or already published")
				}
				return err
			}
			return dlq.DeleteTx(tx, id)
		})
		if err != nil {
			logg.Warn(logg.WithField(logCtx, "error", err.Error()), "requeue skipped")
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		requeued++
		logg.Info(logCtx, "dead-lettered event requeued")
	}
	return requeued, errors.Join(errs...)
}

// reportBacklog warns at startup when events are waiting in the DLQ.
func reportBacklog(ctx context.Context, reader backlogReader, logg *logger.Logger) {
	backlog, err := reader.Backlog(ctx)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "could not read outbox dlq backlog")
		return
	}
	var total int64
	fields := make(map[string]any, len(backlog)+1)
	for reason, n := range backlog {
		fields["dlq_"+reason.String()] = n
		total += n
	}
	if total == 0 {
		return
	}
	fields["dlq_total"] = total
	logg.Warn(logg.WithFields(ctx, fields), "outbox dlq has parked events")
}
