// Package jobs tracks in-flight upload and download transfers by token.
//
// A job is created when a transfer starts and leaves the registry exactly
// once, through Cancel or through Finish, whichever reaches the registry
// first. The loser, and any later call, gets ErrNoSuchJob.
package jobs

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittostorage/internal/logger"
)

// ErrNoSuchJob is returned for tokens that are unknown, already finished,
// already cancelled, or owned by another client.
var ErrNoSuchJob = errors.New("no such job")

// Kind is the transfer direction.
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
)

func (k Kind) String() string {
	if k == KindDownload {
		return "download"
	}
	return "upload"
}

// Status is the lifecycle state of a job.
type Status int

const (
	StatusOpen Status = iota
	StatusFinalizing
	StatusCancelled
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFinalizing:
		return "finalizing"
	case StatusCancelled:
		return "cancelled"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Canceller releases a transfer's data channel and discards partial data.
type Canceller interface {
	Cancel() error
}

// PendingJob is one registered transfer. Job holds the provider's upload or
// download job.
type PendingJob struct {
	Token  string
	Owner  string
	Kind   Kind
	ItemID string
	Job    Canceller

	mu     sync.Mutex
	status Status
}

// Status returns the current lifecycle state.
func (j *PendingJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *PendingJob) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// MarkDone records that a finishing job was committed (or failed to commit).
func (j *PendingJob) MarkDone() {
	j.setStatus(StatusDone)
}

// Registry holds the pending jobs.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*PendingJob
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*PendingJob)}
}

// Add registers job on behalf of owner and returns the new pending entry.
func (r *Registry) Add(owner string, kind Kind, itemID string, job Canceller) *PendingJob {
	pj := &PendingJob{
		Token:  uuid.NewString(),
		Owner:  owner,
		Kind:   kind,
		ItemID: itemID,
		Job:    job,
		status: StatusOpen,
	}

	r.mu.Lock()
	r.jobs[pj.Token] = pj
	r.mu.Unlock()

	logger.Debug("Registered %s job %s for %s (owner %s)", kind, pj.Token, itemID, owner)
	return pj
}

// take removes and returns the job if owner may act on it.
func (r *Registry) take(owner, token string, kind Kind) (*PendingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pj, ok := r.jobs[token]
	if !ok || pj.Owner != owner || pj.Kind != kind {
		return nil, ErrNoSuchJob
	}
	delete(r.jobs, token)
	return pj, nil
}

// Finish claims the job for committing. The entry leaves the registry and
// its status becomes finalizing; the caller commits the transfer and then
// calls MarkDone.
func (r *Registry) Finish(owner, token string, kind Kind) (*PendingJob, error) {
	pj, err := r.take(owner, token, kind)
	if err != nil {
		return nil, err
	}
	pj.setStatus(StatusFinalizing)
	return pj, nil
}

// Cancel removes the job and cancels its transfer.
func (r *Registry) Cancel(owner, token string, kind Kind) error {
	pj, err := r.take(owner, token, kind)
	if err != nil {
		return err
	}
	return cancel(pj)
}

func cancel(pj *PendingJob) error {
	pj.setStatus(StatusCancelled)
	if err := pj.Job.Cancel(); err != nil {
		logger.Warn("Cancel %s job %s: %v", pj.Kind, pj.Token, err)
		return err
	}
	logger.Debug("Cancelled %s job %s", pj.Kind, pj.Token)
	return nil
}

// CancelOwner cancels every job created by owner. It is called when a client
// disconnects and returns the number of jobs cancelled.
func (r *Registry) CancelOwner(owner string) int {
	r.mu.Lock()
	var victims []*PendingJob
	for token, pj := range r.jobs {
		if pj.Owner == owner {
			victims = append(victims, pj)
			delete(r.jobs, token)
		}
	}
	r.mu.Unlock()

	for _, pj := range victims {
		_ = cancel(pj)
	}
	return len(victims)
}

// CancelAll cancels every pending job. Used at shutdown.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	victims := make([]*PendingJob, 0, len(r.jobs))
	for _, pj := range r.jobs {
		victims = append(victims, pj)
	}
	r.jobs = make(map[string]*PendingJob)
	r.mu.Unlock()

	for _, pj := range victims {
		_ = cancel(pj)
	}
	return len(victims)
}

// Len returns the number of pending jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
