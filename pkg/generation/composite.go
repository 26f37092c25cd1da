package generation

import (
	"fmt"
	"sync"
	"time"
)

// composite accumulates one request's artifacts. Optional steps write
// concurrently; once completed the map is frozen.
type composite struct {
	mutex     sync.Mutex
	id        string
	status    Status
	artifacts map[string]ArtifactEntry
	createdAt time.Time
	doneAt    time.Time
}

func newComposite(id string, now time.Time) *composite {
	return &composite{
		id:        id,
		status:    StatusProcessing,
		artifacts: make(map[string]ArtifactEntry),
		createdAt: now,
	}
}

func (c *composite) set(step string, entry ArtifactEntry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status == StatusCompleted {
		return fmt.Errorf("composite %s already completed, cannot set %s", c.id, step)
	}
	c.artifacts[step] = entry
	return nil
}

func (c *composite) complete(now time.Time) Result {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusCompleted {
		c.status = StatusCompleted
		c.doneAt = now
	}

	artifacts := make(map[string]ArtifactEntry, len(c.artifacts))
	for step, entry := range c.artifacts {
		artifacts[step] = entry
	}
	return Result{
		ID:          c.id,
		Status:      c.status,
		Artifacts:   artifacts,
		CreatedAt:   c.createdAt,
		CompletedAt: c.doneAt,
	}
}
