package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/convert"
)

// apiError is a non-2xx reply decoded from the server's error body.
type apiError struct {
	Status int
	Kind   string   `json:"kind"`
	Msg    string   `json:"error"`
	Fields []string `json:"fields"`
}

func (e *apiError) Error() string {
	s := fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Msg)
	if len(e.Fields) > 0 {
		s += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	return s
}

// client is a thin JSON client for the task tracker API.
type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(ae); err != nil || ae.Msg == "" {
			ae.Kind, ae.Msg = "http", http.StatusText(resp.StatusCode)
		}
		return ae
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) Register(ctx context.Context, username, email, password string) (convert.AuthView, error) {
	var out convert.AuthView
	err := c.do(ctx, http.MethodPost, "/api/auth/register",
		convert.RegisterRequest{Username: username, Email: email, Password: password}, &out)
	return out, err
}

func (c *client) Login(ctx context.Context, email, password string) (convert.AuthView, error) {
	var out convert.AuthView
	err := c.do(ctx, http.MethodPost, "/api/auth/login", convert.LoginRequest{Email: email, Password: password}, &out)
	return out, err
}

func (c *client) Me(ctx context.Context) (convert.UserView, error) {
	var out struct {
		User convert.UserView `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out.User, err
}

func (c *client) CreateTask(ctx context.Context, in convert.CreateTaskRequest) (convert.TaskView, error) {
	var out convert.TaskView
	err := c.do(ctx, http.MethodPost, "/api/tasks", in, &out)
	return out, err
}

func (c *client) ListTasks(ctx context.Context) ([]convert.TaskView, error) {
	var out []convert.TaskView
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out)
	return out, err
}

func (c *client) UpdateTask(ctx context.Context, id uuid.UUID, in convert.UpdateTaskRequest) (convert.TaskView, error) {
	var out convert.TaskView
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+id.String(), in, &out)
	return out, err
}

func (c *client) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id.String(), nil, nil)
}

func (c *client) Stats(ctx context.Context) (convert.StatsView, error) {
	var out convert.StatsView
	err := c.do(ctx, http.MethodGet, "/api/tasks/stats", nil, &out)
	return out, err
}
