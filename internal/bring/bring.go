// Package bring provides delivery-date sources: the Bring postal-code
// API and a local JSON file with the same document shape.
//
// See https://developer.bring.com/api/postal-code/ for the upstream API.
package bring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	appLog "postgang/internal/log"
	"postgang/internal/postal"
)

const (
	headerUID = "X-Mybring-API-Uid"
	headerKey = "X-Mybring-API-Key"

	// Mailbox delivery dates for Norwegian postal codes.
	defaultBaseURL = "https://api.bring.com/address/api/no/postal-codes"
)

// Source produces the ordered delivery dates for one postal code.
type Source interface {
	DeliveryDates(ctx context.Context, code postal.Code) ([]postal.DeliveryDate, error)
}

// apiResponse is the JSON document returned by the API and accepted
// from file sources: {"delivery_dates": ["2006-01-02", ...]}.
type apiResponse struct {
	DeliveryDates []string `json:"delivery_dates"`
}

func (r apiResponse) toDeliveryDates(code postal.Code) ([]postal.DeliveryDate, error) {
	out := make([]postal.DeliveryDate, 0, len(r.DeliveryDates))
	for _, raw := range r.DeliveryDates {
		date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bring: invalid delivery date %q: %w", raw, err)
		}
		out = append(out, postal.NewDeliveryDate(code, date))
	}
	return out, nil
}

// APIClient fetches delivery dates from the Bring API. The API key is
// held privately and never written to log output.
type APIClient struct {
	client  *http.Client
	baseURL string
	uid     string
	key     string
}

// NewAPIClient constructs an APIClient authenticating with the given
// Mybring API uid and key.
func NewAPIClient(uid, key string) *APIClient {
	return &APIClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		uid:     uid,
		key:     key,
	}
}

// DeliveryDates fetches the upcoming mailbox delivery dates for code.
func (c *APIClient) DeliveryDates(ctx context.Context, code postal.Code) ([]postal.DeliveryDate, error) {
	url := fmt.Sprintf("%s/%s/mailbox-delivery-dates", c.baseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerUID, c.uid)
	req.Header.Set(headerKey, c.key)

	appLog.Debug("bring fetch start", "url", url, "uid", c.uid)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bring: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	appLog.Debug("bring fetch response", "url", url, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body so the connection can be reused,
		// but surface only the status to the caller.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("bring: fetch %s: unexpected status %s", url, resp.Status)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("bring: decode response from %s: %w", url, err)
	}

	dates, err := body.toDeliveryDates(code)
	if err != nil {
		return nil, err
	}
	appLog.Debug("bring fetch success", "url", url, "date_count", len(dates))
	return dates, nil
}

// FileSource reads the same JSON document from a local file instead of
// the network.
type FileSource struct {
	Path string
}

// DeliveryDates reads and decodes the delivery dates for code from the
// file. The postal code is taken from the caller; the document itself
// carries only dates.
func (f FileSource) DeliveryDates(_ context.Context, code postal.Code) ([]postal.DeliveryDate, error) {
	if f.Path == "" {
		return nil, errors.New("bring: file source path is empty")
	}

	appLog.Debug("reading delivery dates from file", "path", f.Path)

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("bring: read %s: %w", f.Path, err)
	}
	var body apiResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("bring: decode %s: %w", f.Path, err)
	}
	return body.toDeliveryDates(code)
}
