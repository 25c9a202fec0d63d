package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

type fakeParked struct {
	entries map[uuid.UUID]models.OutboxDLQ
	deleted []uuid.UUID
}

func (f *fakeParked) FindTx(_ *gorm.DB, id uuid.UUID) (*models.OutboxDLQ, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "not parked")
	}
	return &entry, nil
}

func (f *fakeParked) DeleteTx(_ *gorm.DB, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeParked) Backlog(context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	out := map[enums.OutboxDLQErrorReason]int64{}
	for _, e := range f.entries {
		out[e.ErrorReason]++
	}
	return out, nil
}

type fakeRequeueRepo struct {
	missing  map[uuid.UUID]bool
	requeued []uuid.UUID
}

func (f *fakeRequeueRepo) RequeueTx(_ *gorm.DB, id uuid.UUID) error {
	if f.missing[id] {
		return gorm.ErrRecordNotFound
	}
	f.requeued = append(f.requeued, id)
	return nil
}

func TestParseEventIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, err := parseEventIDs(" " + a.String() + ",," + b.String() + "," + a.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = parseEventIDs("nope")
	assert.Error(t, err)
	_, err = parseEventIDs(" , ")
	assert.Error(t, err)
}

func TestRequeueDeadLetters(t *testing.T) {
	transient, poison, gone, unknown := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	parked := &fakeParked{entries: map[uuid.UUID]models.OutboxDLQ{
		transient: {EventID: transient, ErrorReason: enums.OutboxDLQReasonMaxAttempts},
		poison:    {EventID: poison, ErrorReason: enums.OutboxDLQReasonNonRetryable},
		gone:      {EventID: gone, ErrorReason: enums.OutboxDLQReasonMaxAttempts},
	}}
	repo := &fakeRequeueRepo{missing: map[uuid.UUID]bool{gone: true}}
	logg := logger.New(logger.Options{ServiceName: "requeue-test", Output: &bytes.Buffer{}})

	n, err := requeueDeadLetters(context.Background(), &fakeDB{}, repo, parked, []uuid.UUID{transient, poison, gone, unknown}, false, logg)
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), poison.String())
	assert.Contains(t, err.Error(), gone.String())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, []uuid.UUID{transient}, repo.requeued)
	assert.Equal(t, []uuid.UUID{transient}, parked.deleted)

	n, err = requeueDeadLetters(context.Background(), &fakeDB{}, repo, parked, []uuid.UUID{poison}, true, logg)
	assert.Equal(t, 1, n)
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{transient, poison}, repo.requeued)
}

func TestReportBacklogWarnsOnlyWhenParked(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "requeue-test", Output: &buf})

	reportBacklog(context.Background(), &fakeParked{}, logg)
	assert.Empty(t, buf.String())

	reportBacklog(context.Background(), &fakeParked{entries: map[uuid.UUID]models.OutboxDLQ{
		uuid.New(): {ErrorReason: enums.OutboxDLQReasonUnknownEvent},
		uuid.New(): {ErrorReason: enums.OutboxDLQReasonUnknownEvent},
	}}, logg)
	assert.Contains(t, buf.String(), `"dlq_unknown_event":2`)
	assert.Contains(t, buf.String(), `"dlq_total":2`)
}

func TestReportBacklogToleratesErrors(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "requeue-test", Output: &buf})
	reportBacklog(context.Background(), backlogFunc(func(context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
		return nil, errors.New("db down")
	}), logg)
	assert.Contains(t, buf.String(), "could not read outbox dlq backlog")
}

type backlogFunc func(context.Context) (map[enums.OutboxDLQErrorReason]int64, error)

func (f backlogFunc) Backlog(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	return f(ctx)
}
