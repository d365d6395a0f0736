package blobhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pixel-chat/contract"
	"pixel-chat/errors"
)

var _ contract.BlobStore = (*Client)(nil)

// Client is the remote BlobStore used by the upload pipeline.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

func (c *Client) BeginUpload(ctx context.Context, objectPath, contentType string, size int64) (string, error) {
	payload, err := json.Marshal(beginRequest{Path: objectPath, ContentType: contentType, Size: size})
	if err != nil {
		return "", err
	}
	var body beginResponse
	if err = c.do(ctx, http.MethodPost, "/uploads", bytes.NewReader(payload), http.StatusCreated, &body); err != nil {
		return "", err
	}
	return body.UploadID, nil
}

func (c *Client) UploadChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) error {
	target := fmt.Sprintf("/uploads/%s?offset=%d", url.PathEscape(uploadID), offset)
	return c.do(ctx, http.MethodPut, target, bytes.NewReader(chunk), http.StatusNoContent, nil)
}

func (c *Client) CommitUpload(ctx context.Context, uploadID string) (string, error) {
	var body commitResponse
	target := fmt.Sprintf("/uploads/%s/commit", url.PathEscape(uploadID))
	if err := c.do(ctx, http.MethodPost, target, nil, http.StatusOK, &body); err != nil {
		return "", err
	}
	return body.Locator, nil
}

func (c *Client) AbortUpload(ctx context.Context, uploadID string) error {
	target := "/uploads/" + url.PathEscape(uploadID)
	return c.do(ctx, http.MethodDelete, target, nil, http.StatusNoContent, nil)
}

// Offset asks the server how many bytes of the upload it holds.
func (c *Client) Offset(ctx context.Context, uploadID string) (int64, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/uploads/"+url.PathEscape(uploadID), nil)
	if err != nil {
		return 0, err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusNoContent {
		return 0, errorFor(response.StatusCode, response.Status)
	}
	return strconv.ParseInt(response.Header.Get(offsetHeader), 10, 64)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, expected int, out any) error {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, body)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/octet-stream")
	}
	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expected {
		var failure errorResponse
		_ = json.NewDecoder(io.LimitReader(response.Body, 64<<10)).Decode(&failure)
		message := failure.Error
		if message == "" {
			message = response.Status
		}
		return errorFor(response.StatusCode, message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

func errorFor(code int, message string) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errors.ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", errors.ErrOffsetMismatch, message)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", errors.ErrIncompleteUpload, message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", errors.ErrInvalidUpload, message)
	default:
		return fmt.Errorf("blob server answered %d: %s", code, message)
	}
}
