package board

import (
	"context"
	"fmt"
	"strings"

	"prism-board/domain"
)

// CreateTask adds a task under an optional parent of the same project.
func (s *Service) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (domain.Task, error) {
	title := strings.TrimSpace(req.Title)
	if req.ProjectID == "" || title == "" {
		return domain.Task{}, fmt.Errorf("%w: project id and title required", domain.ErrInvalid)
	}
	if req.Type == "" {
		req.Type = domain.TaskLeaf
	}
	if !req.Type.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalid, req.Type)
	}
	if req.Status == "" {
		req.Status = domain.StatusPending
	}
	if !req.Status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task status %q", domain.ErrInvalid, req.Status)
	}
	unlock := s.locks.Lock(req.ProjectID)
	defer unlock()

	if req.ParentID != "" {
		parent, err := s.store.FindTask(ctx, req.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		if parent.ProjectID != req.ProjectID {
			return domain.Task{}, fmt.Errorf("%w: parent %s belongs to another project", domain.ErrInvalid, req.ParentID)
		}
	}
	task := domain.Task{
		ID:        s.newID(),
		ProjectID: req.ProjectID,
		ParentID:  req.ParentID,
		Type:      req.Type,
		Title:     title,
		Status:    req.Status,
	}
	if err := s.store.Apply(ctx, req.ProjectID, domain.Changeset{PutTasks: []domain.Task{task}}); err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.TaskCreated, ProjectID: req.ProjectID, Task: &task})
	return task, nil
}

// UpdateTask edits a task in place. Board placement is not editable here.
func (s *Service) UpdateTask(ctx context.Context, taskID string, req domain.UpdateTaskRequest) (domain.Task, error) {
	if req.Type != nil && !req.Type.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalid, *req.Type)
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task status %q", domain.ErrInvalid, *req.Status)
	}
	task, err := s.store.FindTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	unlock := s.locks.Lock(task.ProjectID)
	defer unlock()

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.Task{}, fmt.Errorf("%w: title must not be empty", domain.ErrInvalid)
		}
		task.Title = title
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Type != nil {
		task.Type = *req.Type
	}
	if err := s.store.Apply(ctx, task.ProjectID, domain.Changeset{PutTasks: []domain.Task{task}}); err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.TaskUpdated, ProjectID: task.ProjectID, Task: &task})
	return task, nil
}

// DeleteTask removes a task with its whole subtree and every item linked to it.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	root, err := s.store.FindTask(ctx, taskID)
	if err != nil {
		return err
	}
	projectID := root.ProjectID
	unlock := s.locks.Lock(projectID)
	defer unlock()

	tasks, err := s.store.FetchTasks(ctx, projectID)
	if err != nil {
		return err
	}
	b, err := s.Board(ctx, projectID)
	if err != nil {
		return err
	}

	subtree := Subtree(tasks, taskID)
	doomed := make(map[string]struct{}, len(subtree))
	for _, id := range subtree {
		doomed[id] = struct{}{}
	}
	cs := domain.Changeset{DeleteTasks: subtree}
	touched := make(map[string]struct{})
	remaining := make([]domain.Item, 0, len(b.Items))
	for _, it := range b.Items {
		if _, ok := doomed[it.TaskID]; ok {
			cs.DeleteItems = append(cs.DeleteItems, it.ID)
			touched[it.ColumnID] = struct{}{}
			continue
		}
		remaining = append(remaining, it)
	}
	for _, c := range b.Columns {
		if _, ok := touched[c.ID]; !ok {
			continue
		}
		cs.PutItems = append(cs.PutItems, domain.RenumberItems(domain.ItemsInColumn(remaining, c.ID))...)
	}

	if err := s.store.Apply(ctx, projectID, cs); err != nil {
		return err
	}
	for _, id := range cs.DeleteItems {
		s.publish(ctx, domain.Event{Type: domain.ItemDeleted, ProjectID: projectID, ItemID: id})
	}
	for i := range cs.PutItems {
		s.publish(ctx, domain.Event{Type: domain.ItemUpdated, ProjectID: projectID, Item: &cs.PutItems[i]})
	}
	for _, id := range subtree {
		s.publish(ctx, domain.Event{Type: domain.TaskDeleted, ProjectID: projectID, TaskID: id})
	}
	return nil
}

// Subtree returns rootID followed by every descendant, deepest last.
// Cycles in corrupt data are cut rather than followed.
func Subtree(tasks []domain.Task, rootID string) []string {
	children := make(map[string][]string)
	for _, t := range tasks {
		if t.ParentID != "" {
			children[t.ParentID] = append(children[t.ParentID], t.ID)
		}
	}
	seen := map[string]struct{}{rootID: {}}
	out := []string{rootID}
	for i := 0; i < len(out); i++ {
		for _, child := range children[out[i]] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
		}
	}
	return out
}
