package cron

import (
	"context"
	"slices"
)

// Job is one unit of scheduled work. Run must be safe to repeat: a tick can
// overlap a previous one on another worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry runs jobs in registration order. Names are unique since they
// label metrics and log lines.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job and reports whether it was accepted. Nil jobs and
// duplicate names are dropped.
func (r *Registry) Register(job Job) bool {
	if job == nil || slices.Contains(r.Names(), job.Name()) {
		return false
	}
	r.jobs = append(r.jobs, job)
	return true
}

func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
