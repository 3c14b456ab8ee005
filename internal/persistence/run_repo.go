package persistence

import (
	"fmt"
	"sync"

	"github.com/felixbrock/promptopt/internal/domain"
)

type RunReadFilter struct {
	SessionId string
}

// RunRepo keeps the stage log of the current process in memory. Nothing is
// written to disk.
type RunRepo struct {
	mu   sync.Mutex
	runs []domain.Run
}

func NewRunRepo() *RunRepo {
	return &RunRepo{}
}

func (r *RunRepo) Insert(run domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.runs {
		if existing.Id == run.Id {
			return fmt.Errorf("run %s already exists", run.Id)
		}
	}

	r.runs = append(r.runs, run)

	return nil
}

func (r *RunRepo) Update(id string, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.runs {
		if r.runs[i].Id == id {
			r.runs[i].State = state
			return nil
		}
	}

	return fmt.Errorf("run %s not found", id)
}

func (r *RunRepo) Read(filter RunReadFilter) ([]domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.SessionId == "" || run.SessionId == filter.SessionId {
			records = append(records, run)
		}
	}

	return records, nil
}
