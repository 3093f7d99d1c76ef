package api

import (
	"context"

	"prism-board/domain"
)

// BoardService is the canonical board state the handlers operate on.
type BoardService interface {
	Board(ctx context.Context, projectID string) (domain.Board, error)
	Tasks(ctx context.Context, projectID string) ([]domain.Task, error)
	CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (domain.Column, error)
	MoveColumn(ctx context.Context, req domain.MoveColumnRequest) ([]domain.Column, error)
	DeleteColumn(ctx context.Context, columnID string) error
	PlaceItem(ctx context.Context, req domain.PlaceItemRequest) (domain.Item, error)
	MoveItem(ctx context.Context, req domain.MoveItemRequest) (domain.Item, error)
	UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) (domain.Item, error)
	DeleteItem(ctx context.Context, itemID string) error
	CreateTask(ctx context.Context, req domain.CreateTaskRequest) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, req domain.UpdateTaskRequest) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type columnsResponse struct {
	Columns []domain.Column `json:"columns"`
}
