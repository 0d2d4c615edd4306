package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	helpers "go-pulse/pkg/shared"
	"go-pulse/pkg/shared/defs"
)

// ErrUnexpectedStatus is returned when the coordinator answers with a non-2xx code
var ErrUnexpectedStatus = errors.New("unexpected coordinator response")

// CoordinatorClient talks to the coordinator's /register and /pulse endpoints
type CoordinatorClient struct {
	baseURL   string
	id        uuid.UUID
	publicURL string
	timeout   time.Duration
	http      *http.Client
}

func NewCoordinatorClient(baseURL string, id uuid.UUID, publicURL string, timeout time.Duration) *CoordinatorClient {
	return &CoordinatorClient{
		baseURL:   baseURL,
		id:        id,
		publicURL: publicURL,
		timeout:   timeout,
		http:      &http.Client{},
	}
}

// Register announces this worker to the coordinator
func (c *CoordinatorClient) Register(ctx context.Context) error {
	return c.post(ctx, "/register", defs.RegisterBody{Id: c.id.String(), Url: c.publicURL})
}

// Pulse sends one liveness signal
func (c *CoordinatorClient) Pulse(ctx context.Context) error {
	return c.post(ctx, "/pulse", defs.PulseBody{Id: c.id.String()})
}

func (c *CoordinatorClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s body: %w", path, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", path, err)
	}
	defer helpers.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: POST %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	return nil
}
