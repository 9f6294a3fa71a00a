package drill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
)

// HTTPClient wraps http.Client with a base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// Get performs a GET request and decodes a JSON response into out.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Post performs a POST request with a JSON body and returns status and body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	respBody, err := readResponseBody(resp)
	return resp.StatusCode, respBody, err
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type commandBody struct {
	ID string `json:"id"`
	CommandSpec
}

// submitCommand sends the same command copies times concurrently under one
// id. Exactly one copy must be accepted; the rest must be duplicates.
func submitCommand(ctx context.Context, client *HTTPClient, spec CommandSpec, copies int, stats *Stats, log logger.Logger) error {
	body := commandBody{ID: uuid.NewString(), CommandSpec: spec}

	var accepted, duplicate, failed int64
	var wg sync.WaitGroup
	for range max(copies, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, resp, err := client.Post(ctx, "/commands", body)
			switch {
			case err != nil:
				log.Warn(ctx, "command failed", logger.String("id", body.ID), logger.Error(err))
				atomic.AddInt64(&failed, 1)
			case status == http.StatusAccepted:
				atomic.AddInt64(&accepted, 1)
			case status == http.StatusOK:
				var ack AckResponse
				if json.Unmarshal(resp, &ack) == nil && ack.Duplicate {
					atomic.AddInt64(&duplicate, 1)
					return
				}
				atomic.AddInt64(&failed, 1)
			default:
				log.Warn(ctx, "command rejected", logger.String("id", body.ID),
					logger.Int("status", status), logger.String("body", string(bytes.TrimSpace(resp))))
				atomic.AddInt64(&failed, 1)
			}
		}()
	}
	wg.Wait()

	stats.CommandsSent += int(accepted + duplicate + failed)
	stats.CommandsAccepted += int(accepted)
	stats.CommandsDuplicate += int(duplicate)
	stats.CommandsFailed += int(failed)
	log.Debug(ctx, "command submitted", logger.String("id", body.ID), logger.String("kind", spec.Kind),
		logger.Int("accepted", int(accepted)), logger.Int("duplicate", int(duplicate)))

	if accepted != 1 || failed != 0 {
		return fmt.Errorf("%w: %s %s accepted %d times, %d failed", ErrDuplicateApplied, spec.Kind, body.ID, accepted, failed)
	}
	return nil
}

func postSignal(ctx context.Context, client *HTTPClient, spec SignalSpec, stats *Stats) error {
	status, resp, err := client.Post(ctx, "/signals", spec)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return fmt.Errorf("signal %s: status %d: %s", spec.Kind, status, bytes.TrimSpace(resp))
	}
	stats.SignalsSent++
	return nil
}

type eventsPage struct {
	Events []model.Event `json:"events"`
	Next   uint64        `json:"next"`
}

func fetchEvents(ctx context.Context, client *HTTPClient, after uint64) (eventsPage, error) {
	var page eventsPage
	err := client.Get(ctx, "/events?after="+strconv.FormatUint(after, 10), &page)
	return page, err
}

type statusView struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	State         string `json:"state"`
	Active        string `json:"active_procedure"`
	RecordCount   int    `json:"record_count"`
}

func fetchStatus(ctx context.Context, client *HTTPClient) (statusView, error) {
	var st statusView
	err := client.Get(ctx, "/status", &st)
	return st, err
}

func fetchEvaluations(ctx context.Context, client *HTTPClient, sessionID string) ([]model.EvaluationRecord, error) {
	var out struct {
		Records []model.EvaluationRecord `json:"records"`
	}
	q := url.Values{"session_id": {sessionID}, "limit": {"10000"}}
	err := client.Get(ctx, "/evaluations?"+q.Encode(), &out)
	return out.Records, err
}
