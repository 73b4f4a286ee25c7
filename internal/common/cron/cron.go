package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewScheduler creates and starts a gocron scheduler whose job lifecycle is logged with zlog
func NewScheduler(ctx context.Context, zlog zerolog.Logger) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithEventListeners(
				gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
					zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job started")
				}),
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					zlog.Err(err).Str("job_name", jobName).Str("job_id", jobID.String()).Msg("error while running the job")
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					zlog.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("job panicked")
				}),
			),
		),
		gocron.WithLogger(logger{l: zlog}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// RegisterInterval schedules task every interval. A run still in progress when the next one
// is due is rescheduled rather than overlapped.
func RegisterInterval(s gocron.Scheduler, name string, interval time.Duration, task func(ctx context.Context) error) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}

type logger struct {
	l zerolog.Logger
}

func (l logger) Debug(msg string, args ...any) {
	l.l.Debug().Fields(args).Msg(msg)
}

func (l logger) Error(msg string, args ...any) {
	l.l.Error().Fields(args).Msg(msg)
}

func (l logger) Info(msg string, args ...any) {
	l.l.Info().Fields(args).Msg(msg)
}

func (l logger) Warn(msg string, args ...any) {
	l.l.Warn().Fields(args).Msg(msg)
}
