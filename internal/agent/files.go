package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/samsaffron/term-agent/internal/auth"
)

// File processing states reported by the backend while it indexes an
// upload for retrieval.
const (
	FileProcessing = "processing"
	FileCompleted  = "completed"
	FileFailed     = "failed"
)

// UploadedFile is the backend's record of one uploaded attachment.
type UploadedFile struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	SessionID        string `json:"session_id,omitempty"`
	Filename         string `json:"filename"`
	FileType         string `json:"file_type,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
	ProcessingStatus string `json:"processing_status"`
	UploadedAt       string `json:"uploaded_at"`
}

// UploadFile sends one file to the backend, optionally attached to a chat
// session. The whole body is buffered so the request can be replayed after
// a 401 refresh.
func (c *Client) UploadFile(ctx context.Context, sessionID, filename string, content io.Reader) (*UploadedFile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	path := "/files/upload"
	if sessionID != "" {
		path += "?session_id=" + url.QueryEscape(sessionID)
	}

	data, err := c.uploadRoundTrip(ctx, path, buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse response envelope: %w", err)
	}
	if !env.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: env.Message}
	}
	var out UploadedFile
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("parse response data: %w", err)
	}
	return &out, nil
}

// uploadRoundTrip is roundTrip for multipart payloads: same auth and same
// one-retry 401 rule, different content type.
func (c *Client) uploadRoundTrip(ctx context.Context, path string, payload []byte, contentType string) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	retried := false
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)

		data, err := c.send(req)
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			if retried {
				return nil, fmt.Errorf("%w: server rejected refreshed token", auth.ErrUnauthenticated)
			}
			token, err = c.tokens.Refresh(ctx)
			if err != nil {
				return nil, err
			}
			retried = true
			continue
		}
		return data, err
	}
}

// ListFiles returns uploads, newest first, optionally for one session.
func (c *Client) ListFiles(ctx context.Context, sessionID string, limit, offset int) ([]UploadedFile, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}
	path := "/files"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []UploadedFile
	if err := c.doData(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFile fetches one upload's record, including its processing status.
func (c *Client) GetFile(ctx context.Context, fileID string) (*UploadedFile, error) {
	var out UploadedFile
	if err := c.doData(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileContent downloads an upload's raw bytes. The reported content type
// comes from the response header so callers can pick a preview path.
func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, string, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, "", err
	}

	endpoint := c.baseURL + "/files/" + url.PathEscape(fileID) + "/content"
	retried := false
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("request failed: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if retried {
				return nil, "", fmt.Errorf("%w: server rejected refreshed token", auth.ErrUnauthenticated)
			}
			token, err = c.tokens.Refresh(ctx)
			if err != nil {
				return nil, "", err
			}
			retried = true
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, "", newAPIError(resp.StatusCode, data)
		}
		return data, resp.Header.Get("Content-Type"), nil
	}
}

// DeleteFile removes an upload and its indexed chunks.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.doData(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil)
}
