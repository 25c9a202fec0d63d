package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

const (
	defaultPurgeBatch = 500
	maxPurgeBatches   = 200
)

// PurgeFunc deletes at most limit rows that aged out before cutoff and
// reports how many went.
type PurgeFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

type RetentionJobParams struct {
	Name   string
	Logger *logger.Logger
	Purge  PurgeFunc
	// Keep is how long rows survive. Zero falls back to DefaultKeep.
	Keep        time.Duration
	DefaultKeep time.Duration
	BatchSize   int
}

// NewRetentionJob builds a job that purges in batches until a short batch
// comes back, so one run never holds a long lock on a busy table.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, errors.New("job name required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Purge == nil:
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	}
	keep := params.Keep
	if keep <= 0 {
		keep = params.DefaultKeep
	}
	if keep <= 0 {
		return nil, fmt.Errorf("%s: retention window required", params.Name)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPurgeBatch
	}
	return &retentionJob{
		name:  params.Name,
		logg:  params.Logger,
		purge: params.Purge,
		keep:  keep,
		batch: batch,
		now:   time.Now,
	}, nil
}

// Days converts a day count from config into a retention window.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

type retentionJob struct {
	name  string
	logg  *logger.Logger
	purge PurgeFunc
	keep  time.Duration
	batch int
	now   func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var (
		deleted int64
		rounds  int
	)
	for rounds < maxPurgeBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.purge(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		rounds++
		deleted += n
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff,
		"keep_hours":   j.keep.Hours(),
		"batches":      rounds,
		"rows_deleted": deleted,
	}), "retention purge complete")
	return nil
}
