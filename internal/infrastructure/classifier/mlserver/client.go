package mlserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/resilience"
)

// Client calls the external document-classification service. The model is
// a black box behind one endpoint: text in, label and confidence out.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *Client) Classify(ctx context.Context, text string) (domain.Classification, float64, error) {
	var resp classifyResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/classify", classifyRequest{Text: text}, &resp)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "mlserver.classify", call, classifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", 0, err
	}

	label, err := domain.ParseClassification(resp.Label)
	if err != nil {
		return "", 0, fmt.Errorf("model returned unusable label: %w", err)
	}
	if label == domain.ClassNotSelected {
		return "", 0, domain.WrapError(domain.ErrInvalidArgument, "classify",
			fmt.Errorf("model returned the UI sentinel %q", resp.Label))
	}
	score := resp.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return label, score, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mlserver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode classify response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	msg  string
}

func newStatusError(resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{code: resp.StatusCode, msg: strings.TrimSpace(string(body))}
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("mlserver status %d", e.code)
	}
	return fmt.Sprintf("mlserver status %d: %s", e.code, e.msg)
}
