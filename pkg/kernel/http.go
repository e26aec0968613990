package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpTransport posts one jsonrpc envelope per call. Request and response
// correlate over the connection, the envelope id is informational here.
// Failures are surfaced to the caller, never retried.
type httpTransport struct {
	client *resty.Client
	url    string
	nextID uint64
}

func newHTTPTransport(rpcURL string, timeout time.Duration) *httpTransport {
	return &httpTransport{
		client: resty.New().SetTimeout(timeout),
		url:    rpcURL,
	}
}

func (t *httpTransport) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := request{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&t.nextID, 1),
		Method:  method,
		Params:  params,
	}
	r, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(t.url)
	if err != nil {
		var uerr *url.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
			return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("%s: kernel returned http %s", method, r.Status())
	}
	var resp response
	if err := json.Unmarshal(r.Body(), &resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, resp.Error)
	}
	return resp.Result, nil
}

func (t *httpTransport) close() error {
	return nil
}
