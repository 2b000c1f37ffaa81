package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/defectscan/defectscan-go/internal/model"
)

// ProjectAPI is the project CRUD surface consumed by the store.
type ProjectAPI interface {
	ListProjects(ctx context.Context) []model.BackendProject
	CreateProject(ctx context.Context, name, address string) *model.BackendProject
	DeleteProject(ctx context.Context, id int64) bool
}

type createProjectRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// ListProjects fetches all projects. Any failure degrades to an empty list.
func (c *Client) ListProjects(ctx context.Context) []model.BackendProject {
	requestURL := c.endpoint("/projects")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		logger.Error("Failed to create project list request", "url", requestURL, "error", err)
		return []model.BackendProject{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return []model.BackendProject{}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read project list response", "url", requestURL, "error", err)
		return []model.BackendProject{}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("Project list request failed", "url", requestURL, "status_code", resp.StatusCode)
		return []model.BackendProject{}
	}

	var projects []model.BackendProject
	if err := json.Unmarshal(body, &projects); err != nil {
		logger.Error("Failed to decode project list response", "url", requestURL, "error", err)
		return []model.BackendProject{}
	}

	logger.Debug("Fetched projects", "count", len(projects))
	return projects
}

// CreateProject creates a project and returns it, or nil on any failure.
func (c *Client) CreateProject(ctx context.Context, name, address string) *model.BackendProject {
	payload, err := json.Marshal(createProjectRequest{Name: name, Address: address})
	if err != nil {
		logger.Error("Failed to encode project create request", "name", name, "error", err)
		return nil
	}

	requestURL := c.endpoint("/projects")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		logger.Error("Failed to create project create request", "url", requestURL, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read project create response", "url", requestURL, "error", err)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("Project create failed", "name", name, "status_code", resp.StatusCode)
		return nil
	}

	var project model.BackendProject
	if err := json.Unmarshal(body, &project); err != nil {
		logger.Error("Failed to decode project create response", "url", requestURL, "error", err)
		return nil
	}

	logger.Info("Project created", "id", project.ID, "name", project.Name)
	return &project
}

// DeleteProject removes a project. Returns false on any failure.
func (c *Client) DeleteProject(ctx context.Context, id int64) bool {
	requestURL := c.endpoint(fmt.Sprintf("/projects/%d", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, requestURL, nil)
	if err != nil {
		logger.Error("Failed to create project delete request", "url", requestURL, "error", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return false
	}
	defer drainAndClose(resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok {
		logger.Info("Project deleted", "id", id)
	} else {
		logger.Error("Project delete failed", "id", id, "status_code", resp.StatusCode)
	}
	return ok
}
