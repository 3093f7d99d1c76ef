package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"prism-board/domain"
)

// SQLite keeps board state in a single database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc connections do not share an in-process lock; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate creates the board tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS columns (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ord INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_columns_project ON columns(project_id);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			column_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			task_id TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT '',
			assignee TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_project ON items(project_id);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			is_on_board INTEGER NOT NULL DEFAULT 0,
			item_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// FetchBoard returns the columns and items of a project in storage order.
func (s *SQLite) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	b := domain.Board{Columns: []domain.Column{}, Items: []domain.Item{}}
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, name, ord FROM columns WHERE project_id = ? ORDER BY ord, id`, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Order); err != nil {
			rows.Close()
			return domain.Board{}, err
		}
		b.Columns = append(b.Columns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Board{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+itemFields+` FROM items WHERE project_id = ? ORDER BY column_id, ord, id`, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return domain.Board{}, err
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

// FetchTasks returns every task of a project.
func (s *SQLite) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskFields+` FROM tasks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) FindColumn(ctx context.Context, id string) (domain.Column, error) {
	var c domain.Column
	err := s.db.QueryRowContext(ctx, `SELECT id, project_id, name, ord FROM columns WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Name, &c.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Column{}, fmt.Errorf("column %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (s *SQLite) FindItem(ctx context.Context, id string) (domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemFields+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return it, err
}

func (s *SQLite) FindTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskFields+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, err
}

// Apply writes a changeset in one transaction.
func (s *SQLite) Apply(ctx context.Context, projectID string, cs domain.Changeset) error {
	if cs.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range cs.DeleteItems {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND project_id = ?`, id, projectID); err != nil {
			return err
		}
	}
	for _, id := range cs.DeleteColumns {
		if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE id = ? AND project_id = ?`, id, projectID); err != nil {
			return err
		}
	}
	for _, id := range cs.DeleteTasks {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND project_id = ?`, id, projectID); err != nil {
			return err
		}
	}
	for _, c := range cs.PutColumns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO columns(id, project_id, name, ord) VALUES(?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, ord = excluded.ord`,
			c.ID, projectID, c.Name, c.Order); err != nil {
			return err
		}
	}
	for _, it := range cs.PutItems {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items(id, project_id, column_id, ord, task_id, priority, assignee) VALUES(?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET column_id = excluded.column_id, ord = excluded.ord, task_id = excluded.task_id,
			priority = excluded.priority, assignee = excluded.assignee`,
			it.ID, projectID, it.ColumnID, it.Order, it.TaskID, it.Priority, it.Assignee); err != nil {
			return err
		}
	}
	for _, t := range cs.PutTasks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(id, project_id, parent_id, type, title, status, is_on_board, item_id) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET parent_id = excluded.parent_id, type = excluded.type, title = excluded.title,
			status = excluded.status, is_on_board = excluded.is_on_board, item_id = excluded.item_id`,
			t.ID, projectID, t.ParentID, string(t.Type), t.Title, string(t.Status), boolToInt(t.IsOnBoard), t.ItemID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const (
	itemFields = `id, project_id, column_id, ord, task_id, priority, assignee`
	taskFields = `id, project_id, parent_id, type, title, status, is_on_board, item_id`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(r scanner) (domain.Item, error) {
	var it domain.Item
	err := r.Scan(&it.ID, &it.ProjectID, &it.ColumnID, &it.Order, &it.TaskID, &it.Priority, &it.Assignee)
	return it, err
}

func scanTask(r scanner) (domain.Task, error) {
	var (
		t       domain.Task
		typ, st string
		onBoard int
	)
	if err := r.Scan(&t.ID, &t.ProjectID, &t.ParentID, &typ, &t.Title, &st, &onBoard, &t.ItemID); err != nil {
		return domain.Task{}, err
	}
	t.Type = domain.TaskType(typ)
	t.Status = domain.TaskStatus(st)
	t.IsOnBoard = onBoard != 0
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
