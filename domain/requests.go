package domain

// Persistence request bodies shared by the board API and its clients.

type CreateColumnRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

type PlaceItemRequest struct {
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
	ColumnID  string `json:"columnId,omitempty"`
}

type MoveItemRequest struct {
	ItemID      string `json:"itemId"`
	NewColumnID string `json:"newColumnId"`
	NewOrder    int    `json:"newOrder"`
	IntentID    string `json:"intentId,omitempty"`
}

type MoveColumnRequest struct {
	ColumnID string `json:"columnId"`
	NewOrder int    `json:"newOrder"`
	IntentID string `json:"intentId,omitempty"`
}

type UpdateItemRequest struct {
	Priority *string `json:"priority,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
}

type CreateTaskRequest struct {
	ProjectID string     `json:"projectId"`
	ParentID  string     `json:"parentId,omitempty"`
	Type      TaskType   `json:"type"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status,omitempty"`
}

type UpdateTaskRequest struct {
	Title  *string     `json:"title,omitempty"`
	Status *TaskStatus `json:"status,omitempty"`
	Type   *TaskType   `json:"type,omitempty"`
}

// TasksResponse is the body of the task list endpoint.
type TasksResponse struct {
	Tasks []Task `json:"tasks"`
}
