package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/eemfit/internal/chemio"
	"github.com/cwbudde/eemfit/internal/config"
	"github.com/cwbudde/eemfit/internal/eem"
	"github.com/cwbudde/eemfit/internal/fit"
	"github.com/cwbudde/eemfit/internal/store"
)

// runJob executes a guided minimization job.
// If runs is not nil the finished run is saved to it; if dataDir is not
// empty the phase trace is written to <dataDir>/runs/<jobID>/trace.jsonl.
func runJob(ctx context.Context, jm *JobManager, runs store.Store, dataDir string, cfg config.Config, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	broadcastJob(jm, jobID)

	slog.Info("Starting job", "job_id", jobID, "sdf", job.Config.SDFPath, "chg", job.Config.CHGPath)

	cls, err := cfg.Classification()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	ts, err := chemio.LoadTrainingSet(job.Config.SDFPath, job.Config.CHGPath, cls)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load training set: %w", err))
		return err
	}
	solver, err := eem.NewSolver(ts)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	engine, err := fit.NewEngine(ts, solver, opts)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Phase trace disabled", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	var populationID string
	engine.OnPhase(func(ev fit.PhaseEvent) {
		populationID = ev.PopulationID
		jm.UpdateJob(jobID, func(j *Job) {
			j.Phase = ev.Phase
			j.PopulationID = ev.PopulationID
			j.Stats = ev.Best
			j.Minimized = ev.Minimized
		})
		broadcastJob(jm, jobID)
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(ev)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	})

	start := time.Now()
	best, err := engine.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	ps := store.NewParameterSet(ts, best.Params)
	endTime := time.Now()
	var minimized int
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Stats = best.Stats
		j.Parameters = &ps
		j.ts = ts
		j.params = best.Params.Clone()
		j.EndTime = &endTime
		j.release()
		minimized = j.Minimized
	})
	if err != nil {
		return err
	}

	if runs != nil {
		rec := store.NewRunRecord(jobID, populationID, ts, best, minimized, job.Config, start)
		if err := runs.SaveRun(rec); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"r2", best.Stats.R2,
		"rmsd", best.Stats.RMSD,
		"minimized", minimized,
	)

	broadcastJob(jm, jobID)
	return nil
}

// broadcastJob sends the current job state to stream clients
func broadcastJob(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(newProgressEvent(job))
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
		j.release()
	})
	if errors.Is(err, fit.ErrConfig) {
		slog.Warn("Job rejected", "job_id", jobID, "error", err)
	} else {
		slog.Error("Job failed", "job_id", jobID, "error", err)
	}
	broadcastJob(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
		j.release()
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastJob(jm, jobID)
}
