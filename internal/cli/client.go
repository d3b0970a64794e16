package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
)

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// TypeStatus is the per-record-type part of the status response.
type TypeStatus struct {
	Records  int64  `json:"records"`
	Provider string `json:"provider"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Types          map[string]TypeStatus  `json:"types"`
	Config         map[string]interface{} `json:"config,omitempty"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
}

// Client talks to a running ruiji server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

func (c *Client) typeURL(recordType, suffix string) string {
	return c.BaseURL + "/api/v1/types/" + url.PathEscape(recordType) + suffix
}

func (c *Client) do(ctx context.Context, method, u string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return nil, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, method, u string, body, out interface{}) error {
	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// Save creates or updates a record.
func (c *Client) Save(ctx context.Context, recordType string, input models.RecordInput) (*models.Record, error) {
	var rec models.Record
	if err := c.call(ctx, http.MethodPost, c.typeURL(recordType, "/records"), input, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Search runs a similarity search.
func (c *Client) Search(ctx context.Context, recordType string, req models.SearchRequest) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.call(ctx, http.MethodPost, c.typeURL(recordType, "/search"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ask asks a question and returns the complete answer.
func (c *Client) Ask(ctx context.Context, recordType string, req models.AskRequest) (*models.AskResponse, error) {
	req.Stream = false
	var resp models.AskResponse
	if err := c.call(ctx, http.MethodPost, c.typeURL(recordType, "/ask"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AskStream asks a question and copies the answer to w as it is generated.
func (c *Client) AskStream(ctx context.Context, recordType string, req models.AskRequest, w io.Writer) error {
	req.Stream = true
	resp, err := c.do(ctx, http.MethodPost, c.typeURL(recordType, "/ask"), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	buf := make([]byte, 512)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Reembed re-embeds every record of the type.
func (c *Client) Reembed(ctx context.Context, recordType string) (map[string]interface{}, error) {
	var report map[string]interface{}
	if err := c.call(ctx, http.MethodPost, c.typeURL(recordType, "/reembed"), nil, &report); err != nil {
		return nil, err
	}
	return report, nil
}

// Import imports a directory of record files on the server host.
func (c *Client) Import(ctx context.Context, dir string, recursive bool) (map[string]interface{}, error) {
	var report map[string]interface{}
	body := map[string]interface{}{"path": dir, "recursive": recursive}
	if err := c.call(ctx, http.MethodPost, c.BaseURL+"/api/v1/import", body, &report); err != nil {
		return nil, err
	}
	return report, nil
}

// Status returns record counts and provider names per declared type.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.call(ctx, http.MethodGet, c.BaseURL+"/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
