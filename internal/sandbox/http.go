package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/crev/internal/models"
)

// HTTPExecutor talks to a remote sandbox service:
//
//	POST   {base}/sandboxes              -> {"id": "..."}
//	POST   {base}/sandboxes/{id}/execute  {"code": "..."} -> {"stdout","stderr","error"}
//	DELETE {base}/sandboxes/{id}
type HTTPExecutor struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	// CloseTimeout bounds the DELETE that releases a sandbox.
	CloseTimeout time.Duration
}

// DefaultCloseTimeout bounds sandbox release when CloseTimeout is unset.
const DefaultCloseTimeout = 5 * time.Second

// NewHTTPExecutor returns an executor for the sandbox service at baseURL.
func NewHTTPExecutor(baseURL, apiKey string) *HTTPExecutor {
	return &HTTPExecutor{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Client:       http.DefaultClient,
		CloseTimeout: DefaultCloseTimeout,
	}
}

// Open creates a remote sandbox.
func (e *HTTPExecutor) Open(ctx context.Context) (Session, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := e.do(ctx, http.MethodPost, "/sandboxes", nil, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create sandbox: %w: empty sandbox id", models.ErrSandboxUnavailable)
	}
	return &httpSession{exec: e, id: created.ID}, nil
}

type httpSession struct {
	exec *HTTPExecutor
	id   string
}

func (s *httpSession) Run(ctx context.Context, code string) (*Result, error) {
	var res Result
	body := map[string]string{"code": code}
	if err := s.exec.do(ctx, http.MethodPost, "/sandboxes/"+s.id+"/execute", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close kills the remote sandbox. It uses a fresh, bounded context so a
// timed-out run still releases the sandbox without hanging on a stalled service.
func (s *httpSession) Close() error {
	timeout := s.exec.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.exec.do(ctx, http.MethodDelete, "/sandboxes/"+s.id, nil, nil)
}

func (e *HTTPExecutor) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, models.ErrSandboxUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w: status %d: %s", method, path, models.ErrSandboxUnavailable,
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %v", method, path, models.ErrSandboxUnavailable, err)
	}
	return nil
}
