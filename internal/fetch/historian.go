package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var log = logging.Component("fetch")

// HistorianClient fetches recorded values from a REST historian.
// One HTTP request is issued per tag against the recorded-values endpoint.
type HistorianClient struct {
	baseURL string
	client  *http.Client
}

// NewHistorianClient creates a client for the historian at baseURL.
// requestTimeout bounds each per-tag HTTP request; the overall unit fetch
// is bounded by the caller's context.
func NewHistorianClient(baseURL string, requestTimeout time.Duration) *HistorianClient {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &HistorianClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// recordedValue is the historian's wire format for one reading.
type recordedValue struct {
	Timestamp int64   `json:"t"` // epoch milliseconds
	Value     float64 `json:"v"`
}

// Fetch retrieves recorded values for every tag in the request.
// Individual tag failures fail the whole fetch; a unit file must never be
// refreshed from a partial tag set, or the freshness fraction would lie.
func (c *HistorianClient) Fetch(ctx context.Context, req Request) ([]types.ReadingRecord, error) {
	if len(req.Tags) == 0 {
		return nil, errors.NewValidation("tags", "fetch request has no tags")
	}

	var records []types.ReadingRecord
	for _, tag := range req.Tags {
		values, err := c.fetchTag(ctx, req, tag)
		if err != nil {
			return nil, err
		}

		for _, v := range values {
			records = append(records, types.ReadingRecord{
				Plant: req.Plant,
				Unit:  req.Unit,
				Tag:   tag,
				Time:  time.UnixMilli(v.Timestamp).UTC(),
				Value: v.Value,
			})
		}
	}

	log.Debug("fetch complete", "unit", req.Unit, "tags", len(req.Tags), "records", len(records))
	return records, nil
}

// fetchTag retrieves one tag's recorded values.
func (c *HistorianClient) fetchTag(ctx context.Context, req Request, tag string) ([]recordedValue, error) {
	q := url.Values{}
	q.Set("plant", req.Plant)
	q.Set("tag", tag)
	q.Set("start", req.Window.Start.UTC().Format(time.RFC3339))
	q.Set("end", req.Window.End.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/api/v1/recorded?%s", c.baseURL, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("tag '%s': %w", tag, errors.ErrTagNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tag '%s': status %d: %s: %w",
			tag, resp.StatusCode, string(body), errors.ErrFetchFailed)
	}

	var values []recordedValue
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return nil, fmt.Errorf("tag '%s': decode: %v: %w", tag, err, errors.ErrFetchFailed)
	}

	return values, nil
}

// classifyTransportError maps transport failures onto the fetch error
// taxonomy.
func classifyTransportError(tag string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("tag '%s': %v: %w", tag, err, errors.ErrFetchTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("tag '%s': %v: %w", tag, err, errors.ErrFetchTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("tag '%s': %v: %w", tag, err, errors.ErrConnectionFailed)
}
