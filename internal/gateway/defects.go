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

// DefectAPI is the defect CRUD surface consumed by the store. All failures
// are absorbed into empty-list or false outcomes.
type DefectAPI interface {
	ListByProject(ctx context.Context, projectID int64) []model.BackendRecord
	UpdateDefect(ctx context.Context, id int64, update DefectUpdate) bool
	DeleteDefect(ctx context.Context, id int64) bool
}

// DefectUpdate is a partial update of the backend-relevant defect fields. Nil
// fields are omitted from the request body.
type DefectUpdate struct {
	Caption  *string `json:"caption,omitempty"`
	Room     *string `json:"room,omitempty"`
	Severity *string `json:"severity,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u DefectUpdate) IsEmpty() bool {
	return u.Caption == nil && u.Room == nil && u.Severity == nil
}

// ListByProject fetches the defect records of a project, newest first. A zero
// project id fetches the unfiltered list; callers above the store always pass
// a project. Any failure degrades to an empty list.
func (c *Client) ListByProject(ctx context.Context, projectID int64) []model.BackendRecord {
	requestURL := c.endpoint("/defects")
	if projectID != 0 {
		requestURL = fmt.Sprintf("%s?project_id=%d", requestURL, projectID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		logger.Error("Failed to create defect list request", "url", requestURL, "error", err)
		return []model.BackendRecord{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return []model.BackendRecord{}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read defect list response", "url", requestURL, "error", err)
		return []model.BackendRecord{}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("Defect list request failed", "url", requestURL, "status_code", resp.StatusCode)
		return []model.BackendRecord{}
	}

	var records []model.BackendRecord
	if err := json.Unmarshal(body, &records); err != nil {
		logger.Error("Failed to decode defect list response", "url", requestURL, "error", err)
		return []model.BackendRecord{}
	}

	logger.Debug("Fetched defect records", "project_id", projectID, "count", len(records))
	return records
}

// UpdateDefect applies a partial update to a defect record. Returns false on
// any failure; never blocks the caller's local state.
func (c *Client) UpdateDefect(ctx context.Context, id int64, update DefectUpdate) bool {
	if update.IsEmpty() {
		logger.Debug("Skipping empty defect update", "id", id)
		return true
	}

	payload, err := json.Marshal(update)
	if err != nil {
		logger.Error("Failed to encode defect update", "id", id, "error", err)
		return false
	}

	requestURL := c.endpoint(fmt.Sprintf("/defects/%d", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, requestURL, bytes.NewReader(payload))
	if err != nil {
		logger.Error("Failed to create defect update request", "url", requestURL, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = handleNetworkError(err, requestURL)
		return false
	}
	defer drainAndClose(resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok {
		logger.Info("Defect updated", "id", id)
	} else {
		logger.Error("Defect update failed", "id", id, "status_code", resp.StatusCode)
	}
	return ok
}

// DeleteDefect removes a defect record. Returns false on any failure.
func (c *Client) DeleteDefect(ctx context.Context, id int64) bool {
	requestURL := c.endpoint(fmt.Sprintf("/defects/%d", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, requestURL, nil)
	if err != nil {
		logger.Error("Failed to create defect delete request", "url", requestURL, "error", err)
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
		logger.Info("Defect deleted", "id", id)
	} else {
		logger.Error("Defect delete failed", "id", id, "status_code", resp.StatusCode)
	}
	return ok
}
