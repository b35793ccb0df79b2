package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gridnote/gridnote/internal/model"
)

// HTTPClient implements Client against the production backend's REST
// routes. Transient failures (connection errors, 429, 5xx) are retried with
// exponential backoff, honoring Retry-After when present.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

type tablePayload struct {
	model.TableItem
	WorkspaceID string `json:"workspaceId"`
}

type notePayload struct {
	model.NoteItem
	WorkspaceID string `json:"workspaceId"`
}

type movePayload struct {
	TargetWorkspaceID string `json:"targetWorkspaceId"`
}

type visibilityPayload struct {
	Visibility model.Visibility `json:"visibility"`
}

func (c *HTTPClient) FetchAllWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error) {
	var out []model.Workspace
	err := c.doJSON(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/workspaces", nil, &out)
	return out, err
}

func (c *HTTPClient) CreateWorkspace(ctx context.Context, ws model.Workspace) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/workspaces", ws, nil)
}

func (c *HTTPClient) UpdateWorkspace(ctx context.Context, ws model.Workspace) error {
	return c.doJSON(ctx, http.MethodPut, "/v1/workspaces/"+url.PathEscape(ws.ID), ws, nil)
}

func (c *HTTPClient) DeleteWorkspace(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/workspaces/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) CreateTable(ctx context.Context, workspaceID string, table model.TableItem) error {
	body := tablePayload{TableItem: table, WorkspaceID: workspaceID}
	return c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+url.PathEscape(workspaceID)+"/tables", body, nil)
}

func (c *HTTPClient) UpdateTable(ctx context.Context, workspaceID string, table model.TableItem) error {
	body := tablePayload{TableItem: table, WorkspaceID: workspaceID}
	return c.doJSON(ctx, http.MethodPut, "/v1/tables/"+url.PathEscape(table.ID), body, nil)
}

func (c *HTTPClient) DeleteTable(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/tables/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) CreateNote(ctx context.Context, workspaceID string, note model.NoteItem) error {
	body := notePayload{NoteItem: note, WorkspaceID: workspaceID}
	return c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+url.PathEscape(workspaceID)+"/notes", body, nil)
}

func (c *HTTPClient) UpdateNote(ctx context.Context, workspaceID string, note model.NoteItem) error {
	body := notePayload{NoteItem: note, WorkspaceID: workspaceID}
	return c.doJSON(ctx, http.MethodPut, "/v1/notes/"+url.PathEscape(note.ID), body, nil)
}

func (c *HTTPClient) DeleteNote(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/notes/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) MoveTable(ctx context.Context, id, targetWorkspaceID string) error {
	body := movePayload{TargetWorkspaceID: targetWorkspaceID}
	return c.doJSON(ctx, http.MethodPost, "/v1/tables/"+url.PathEscape(id)+"/move", body, nil)
}

func (c *HTTPClient) MoveNote(ctx context.Context, id, targetWorkspaceID string) error {
	body := movePayload{TargetWorkspaceID: targetWorkspaceID}
	return c.doJSON(ctx, http.MethodPost, "/v1/notes/"+url.PathEscape(id)+"/move", body, nil)
}

func (c *HTTPClient) SetWorkspaceVisibility(ctx context.Context, workspaceID string, visibility model.Visibility) error {
	body := visibilityPayload{Visibility: visibility}
	return c.doJSON(ctx, http.MethodPut, "/v1/workspaces/"+url.PathEscape(workspaceID)+"/visibility", body, nil)
}

func (c *HTTPClient) ValidateShareLink(ctx context.Context, token string) (ShareLinkInfo, error) {
	var out ShareLinkInfo
	err := c.doJSON(ctx, http.MethodGet, "/v1/share-links/"+url.PathEscape(token), nil, &out)
	return out, err
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
