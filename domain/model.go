package domain

// Column is an ordered lane on a project board.
type Column struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
}

// Item is a ticket placed in a column. It always points back at the task it was created from.
type Item struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	ColumnID  string `json:"columnId"`
	Order     int    `json:"order"`
	TaskID    string `json:"taskId"`
	Priority  string `json:"priority,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
}

// TaskType classifies a node of the work breakdown tree.
type TaskType string

const (
	TaskHeading    TaskType = "heading"
	TaskSubHeading TaskType = "subheading"
	TaskLeaf       TaskType = "leaf"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskHeading, TaskSubHeading, TaskLeaf:
		return true
	}
	return false
}

// TaskStatus is the self-reported state of a task that is not tracked on the board.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a node of a project's work breakdown tree.
type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	ParentID  string     `json:"parentId,omitempty"`
	Type      TaskType   `json:"type"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	IsOnBoard bool       `json:"isOnBoard"`
	ItemID    string     `json:"itemId,omitempty"`
}

// Unlink clears the board placement of the task.
func (t *Task) Unlink() {
	t.IsOnBoard = false
	t.ItemID = ""
}

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority accepts the known priorities and the empty (unset) value.
func ValidPriority(p string) bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Board is the canonical state returned by the board endpoint.
type Board struct {
	Columns []Column `json:"columns"`
	Items   []Item   `json:"items"`
}
