// Package clearml talks to a ClearML API server over its JSON-over-HTTP interface.
package clearml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	APIHost   string
	AccessKey string
	SecretKey string
	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL   string
	accessKey string
	secretKey string
	http      *http.Client
	log       *zap.Logger

	mu    sync.Mutex
	token string
}

// APIError is returned when the server answers with a non-2xx status or a
// non-200 result code in the response envelope.
type APIError struct {
	Endpoint   string
	StatusCode int
	ResultCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clearml %s: http=%d result_code=%d: %s", e.Endpoint, e.StatusCode, e.ResultCode, e.Message)
}

type envelope struct {
	Meta struct {
		ID         string `json:"id"`
		ResultCode int    `json:"result_code"`
		ResultMsg  string `json:"result_msg"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.APIHost), "/"),
		accessKey: opts.AccessKey,
		secretKey: opts.SecretKey,
		http:      httpClient,
		log:       log,
	}
}

// login exchanges the access/secret key pair for a bearer token, once per client.
func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth.login", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.accessKey, c.secretKey)

	var data struct {
		Token string `json:"token"`
	}
	if err := c.do(req, "auth.login", &data); err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	if data.Token == "" {
		return "", fmt.Errorf("logging in: empty token in response")
	}
	c.token = data.Token
	return c.token, nil
}

// call POSTs body to the given endpoint (e.g. "tasks.get_all") and decodes the
// envelope's data field into out.
func (c *Client) call(ctx context.Context, endpoint string, body, out any) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Debug("clearml request", zap.String("endpoint", endpoint), zap.ByteString("body", b))
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clearml %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Meta.ResultMsg
		if decodeErr != nil || msg == "" {
			msg = truncate(string(raw), 300)
		}
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, ResultCode: env.Meta.ResultCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("parsing %s response: %w", endpoint, decodeErr)
	}
	if env.Meta.ResultCode != 0 && env.Meta.ResultCode != http.StatusOK {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, ResultCode: env.Meta.ResultCode, Message: env.Meta.ResultMsg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("parsing %s data: %w", endpoint, err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
