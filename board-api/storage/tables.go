package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"prism-board/domain"
)

// maxBatch is the Table service limit of operations per entity group transaction.
const maxBatch = 100

// Tables stores board state in Azure Table storage. Every entity is partitioned by project.
type Tables struct {
	columns *aztables.Client
	items   *aztables.Client
	tasks   *aztables.Client
}

// NewTables creates a Tables backend from the given connection string.
func NewTables(connStr, columnsTable, itemsTable, tasksTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		columns: svc.NewClient(columnsTable),
		items:   svc.NewClient(itemsTable),
		tasks:   svc.NewClient(tasksTable),
	}, nil
}

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type columnEntity struct {
	entity
	Name  string `json:"Name"`
	Order int    `json:"Order"`
}

type itemEntity struct {
	entity
	ColumnID string `json:"ColumnId"`
	Order    int    `json:"Order"`
	TaskID   string `json:"TaskId"`
	Priority string `json:"Priority"`
	Assignee string `json:"Assignee"`
}

type taskEntity struct {
	entity
	ParentID  string `json:"ParentId"`
	Type      string `json:"Type"`
	Title     string `json:"Title"`
	Status    string `json:"Status"`
	IsOnBoard bool   `json:"IsOnBoard"`
	ItemID    string `json:"ItemId"`
}

func encodeColumn(c domain.Column) ([]byte, error) {
	return json.Marshal(columnEntity{entity: entity{c.ProjectID, c.ID}, Name: c.Name, Order: c.Order})
}

func decodeColumn(data []byte) (domain.Column, error) {
	var e columnEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Column{}, err
	}
	return domain.Column{ID: e.RowKey, ProjectID: e.PartitionKey, Name: e.Name, Order: e.Order}, nil
}

func encodeItem(it domain.Item) ([]byte, error) {
	return json.Marshal(itemEntity{
		entity:   entity{it.ProjectID, it.ID},
		ColumnID: it.ColumnID,
		Order:    it.Order,
		TaskID:   it.TaskID,
		Priority: it.Priority,
		Assignee: it.Assignee,
	})
}

func decodeItem(data []byte) (domain.Item, error) {
	var e itemEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Item{}, err
	}
	return domain.Item{
		ID:        e.RowKey,
		ProjectID: e.PartitionKey,
		ColumnID:  e.ColumnID,
		Order:     e.Order,
		TaskID:    e.TaskID,
		Priority:  e.Priority,
		Assignee:  e.Assignee,
	}, nil
}

func encodeTask(t domain.Task) ([]byte, error) {
	return json.Marshal(taskEntity{
		entity:    entity{t.ProjectID, t.ID},
		ParentID:  t.ParentID,
		Type:      string(t.Type),
		Title:     t.Title,
		Status:    string(t.Status),
		IsOnBoard: t.IsOnBoard,
		ItemID:    t.ItemID,
	})
}

func decodeTask(data []byte) (domain.Task, error) {
	var e taskEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:        e.RowKey,
		ProjectID: e.PartitionKey,
		ParentID:  e.ParentID,
		Type:      domain.TaskType(e.Type),
		Title:     e.Title,
		Status:    domain.TaskStatus(e.Status),
		IsOnBoard: e.IsOnBoard,
		ItemID:    e.ItemID,
	}, nil
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func list[T any](ctx context.Context, c *aztables.Client, filter string, decode func([]byte) (T, error)) ([]T, error) {
	pager := c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			v, err := decode(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func find[T any](ctx context.Context, c *aztables.Client, kind, id string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	found, err := list(ctx, c, "RowKey eq "+odataString(id), decode)
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return found[0], nil
}

func (t *Tables) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	filter := "PartitionKey eq " + odataString(projectID)
	cols, err := list(ctx, t.columns, filter, decodeColumn)
	if err != nil {
		return domain.Board{}, err
	}
	items, err := list(ctx, t.items, filter, decodeItem)
	if err != nil {
		return domain.Board{}, err
	}
	return domain.Board{Columns: cols, Items: items}, nil
}

func (t *Tables) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return list(ctx, t.tasks, "PartitionKey eq "+odataString(projectID), decodeTask)
}

func (t *Tables) FindColumn(ctx context.Context, id string) (domain.Column, error) {
	return find(ctx, t.columns, "column", id, decodeColumn)
}

func (t *Tables) FindItem(ctx context.Context, id string) (domain.Item, error) {
	return find(ctx, t.items, "item", id, decodeItem)
}

func (t *Tables) FindTask(ctx context.Context, id string) (domain.Task, error) {
	return find(ctx, t.tasks, "task", id, decodeTask)
}

// Apply writes puts as insert-or-replace batches per table and deletes entity by entity.
// Table storage offers no cross-table transaction, so a failure may leave a partial write;
// the next mutation of the project renumbers from whatever was stored.
func (t *Tables) Apply(ctx context.Context, projectID string, cs domain.Changeset) error {
	var (
		cols  = make([][]byte, 0, len(cs.PutColumns))
		items = make([][]byte, 0, len(cs.PutItems))
		tasks = make([][]byte, 0, len(cs.PutTasks))
	)
	for _, c := range cs.PutColumns {
		c.ProjectID = projectID
		b, err := encodeColumn(c)
		if err != nil {
			return err
		}
		cols = append(cols, b)
	}
	for _, it := range cs.PutItems {
		it.ProjectID = projectID
		b, err := encodeItem(it)
		if err != nil {
			return err
		}
		items = append(items, b)
	}
	for _, tk := range cs.PutTasks {
		tk.ProjectID = projectID
		b, err := encodeTask(tk)
		if err != nil {
			return err
		}
		tasks = append(tasks, b)
	}

	if err := upsertBatch(ctx, t.tasks, tasks); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	if err := upsertBatch(ctx, t.columns, cols); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	if err := upsertBatch(ctx, t.items, items); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	if err := deleteAll(ctx, t.items, projectID, cs.DeleteItems); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	if err := deleteAll(ctx, t.columns, projectID, cs.DeleteColumns); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	if err := deleteAll(ctx, t.tasks, projectID, cs.DeleteTasks); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	return nil
}

func upsertBatch(ctx context.Context, c *aztables.Client, entities [][]byte) error {
	for _, chunk := range chunks(entities, maxBatch) {
		actions := make([]aztables.TransactionAction, len(chunk))
		for i, e := range chunk {
			actions[i] = aztables.TransactionAction{ActionType: aztables.TransactionTypeInsertReplace, Entity: e}
		}
		if _, err := c.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

func deleteAll(ctx context.Context, c *aztables.Client, projectID string, ids []string) error {
	for _, id := range ids {
		if _, err := c.DeleteEntity(ctx, projectID, id, nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == 404 {
				continue
			}
			return err
		}
	}
	return nil
}

func chunks[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
