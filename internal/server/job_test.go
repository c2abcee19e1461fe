package server

import (
	"sync"
	"testing"
	"time"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{
		SDFPath:        "set.sdf",
		CHGPath:        "set.chg",
		PopulationSize: 30,
		Seed:           42,
	}

	job, ctx := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.Config.SDFPath != "set.sdf" {
		t.Errorf("Config not set correctly")
	}
	if ctx.Err() != nil {
		t.Error("Job context should not be cancelled yet")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(JobConfig{SDFPath: "set.sdf"})

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	// Snapshots are detached from the managed job
	retrieved.State = StateFailed
	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Errorf("Modifying a snapshot changed the job state to %s", again.State)
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first, _ := jm.CreateJob(JobConfig{SDFPath: "a.sdf"})
	time.Sleep(2 * time.Millisecond)
	second, _ := jm.CreateJob(JobConfig{SDFPath: "b.sdf"})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(JobConfig{SDFPath: "set.sdf"})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Minimized = 7
		j.Stats.R2 = 0.75
	})
	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.Minimized != 7 {
		t.Error("Minimized should be updated")
	}
	if updated.Stats.R2 != 0.75 {
		t.Error("Stats should be updated")
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()

	job, ctx := jm.CreateJob(JobConfig{SDFPath: "set.sdf"})
	if err := jm.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("Job context should be cancelled")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if err := jm.CancelJob(job.ID); err == nil {
		t.Error("Cancelling a finished job should fail")
	}
	if err := jm.CancelJob("nonexistent"); err == nil {
		t.Error("Cancelling a nonexistent job should fail")
	}
}

func TestJobManager_CancelAll(t *testing.T) {
	jm := NewJobManager()

	_, running := jm.CreateJob(JobConfig{SDFPath: "a.sdf"})
	done, doneCtx := jm.CreateJob(JobConfig{SDFPath: "b.sdf"})
	jm.UpdateJob(done.ID, func(j *Job) { j.State = StateCompleted })

	jm.CancelAll()

	if running.Err() == nil {
		t.Error("Unfinished job should be cancelled")
	}
	if doneCtx.Err() != nil {
		t.Error("Finished job context should be left alone")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(JobConfig{SDFPath: "set.sdf"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(iteration int) {
			defer wg.Done()
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Minimized = iteration
			})
		}(i)
		go func() {
			defer wg.Done()
			jm.GetJob(job.ID)
			jm.ListJobs()
		}()
	}
	wg.Wait()

	if _, exists := jm.GetJob(job.ID); !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}
