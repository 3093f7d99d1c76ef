// Package httpclient talks JSON to the board API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"prism-board/domain"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("board api: %d %s", e.Code, e.Body)
}

// Unwrap maps statuses onto the domain sentinels so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return domain.ErrInvalid
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// Client wraps http.Client with the board API calls.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

func New(baseURL, bearer string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Bearer: bearer, HTTP: &http.Client{}}
}

func (c *Client) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/board", nil, &b)
	return b, err
}

func (c *Client) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var resp domain.TasksResponse
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/tasks", nil, &resp)
	return resp.Tasks, err
}

func (c *Client) CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (domain.Column, error) {
	var col domain.Column
	err := c.do(ctx, http.MethodPost, "/api/columns", req, &col)
	return col, err
}

func (c *Client) PlaceItem(ctx context.Context, req domain.PlaceItemRequest) (domain.Item, error) {
	var it domain.Item
	err := c.do(ctx, http.MethodPost, "/api/items", req, &it)
	return it, err
}

func (c *Client) MoveItem(ctx context.Context, req domain.MoveItemRequest) error {
	return c.do(ctx, http.MethodPatch, "/api/items/move", req, nil)
}

func (c *Client) MoveColumn(ctx context.Context, req domain.MoveColumnRequest) error {
	return c.do(ctx, http.MethodPatch, "/api/columns/move", req, nil)
}

func (c *Client) UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) (domain.Item, error) {
	var it domain.Item
	err := c.do(ctx, http.MethodPatch, "/api/items/"+url.PathEscape(itemID), req, &it)
	return it, err
}

func (c *Client) DeleteColumn(ctx context.Context, columnID string) error {
	return c.do(ctx, http.MethodDelete, "/api/columns/"+url.PathEscape(columnID), nil, nil)
}

func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(itemID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		rd = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
