package domain

import "strings"

const (
	ColumnCreated      = "column_created"
	ColumnDeleted      = "column_deleted"
	ColumnsReordered   = "columns_reordered"
	ItemCreated        = "item_created"
	ItemUpdated        = "item_updated"
	ItemDeleted        = "item_deleted"
	TaskCreated        = "task_created"
	TaskUpdated        = "task_updated"
	TaskDeleted        = "task_deleted"
	BoardRefetchNeeded = "board_refetch_needed"
)

const roomPrefix = "project_"

// Event is a board change broadcast to every observer of a project room.
// ProjectID is the discriminator receivers validate before applying it.
type Event struct {
	Type      string   `json:"type"`
	ProjectID string   `json:"projectId"`
	IntentID  string   `json:"intentId,omitempty"`
	Column    *Column  `json:"column,omitempty"`
	Columns   []Column `json:"columns,omitempty"`
	Item      *Item    `json:"item,omitempty"`
	Task      *Task    `json:"task,omitempty"`
	ColumnID  string   `json:"columnId,omitempty"`
	ItemID    string   `json:"itemId,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
}

// Room returns the channel name scoping all events of a project.
func Room(projectID string) string {
	return roomPrefix + projectID
}

// ProjectFromRoom extracts the project id of a room name.
func ProjectFromRoom(room string) (string, bool) {
	if !strings.HasPrefix(room, roomPrefix) || len(room) == len(roomPrefix) {
		return "", false
	}
	return room[len(roomPrefix):], true
}

// Envelope is the frame the stream service delivers to WebSocket clients.
type Envelope struct {
	Room  string `json:"room"`
	Event Event  `json:"event"`
}

// Control actions sent by WebSocket clients.
const (
	ActionJoin  = "join_entity"
	ActionLeave = "leave_entity"
)

// ControlMessage joins or leaves a room on the real-time channel.
type ControlMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}
