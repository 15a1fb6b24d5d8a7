package domain

import "time"

// SyncOp is the secondary write a sync task replays.
type SyncOp string

// Sync operations.
const (
	SyncInsert      SyncOp = "insert"
	SyncUpdate      SyncOp = "update"
	SyncDelete      SyncOp = "delete"
	SyncBatchDelete SyncOp = "batch_delete"
)

// Valid reports whether op is a known operation.
func (op SyncOp) Valid() bool {
	switch op {
	case SyncInsert, SyncUpdate, SyncDelete, SyncBatchDelete:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a sync task. Completed tasks are removed
// from the outbox rather than kept with a status.
type TaskStatus string

// Task statuses.
const (
	TaskPending TaskStatus = "pending"
	TaskDead    TaskStatus = "dead"
)

// SyncTask is one secondary write waiting in the outbox.
type SyncTask struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Op   SyncOp `json:"op"`
	// PrimaryID is empty for batch deletes, whose ids travel in Payload.
	PrimaryID  string `json:"primaryId"`
	NaturalKey string `json:"naturalKey,omitempty"`
	// Payload is the JSON encoded row for inserts and updates, or the JSON
	// encoded id list for batch deletes.
	Payload       []byte     `json:"payload,omitempty"`
	Attempts      int        `json:"attempts"`
	Status        TaskStatus `json:"status"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	LastError     string     `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
