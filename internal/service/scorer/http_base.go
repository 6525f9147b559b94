package scorer

import (
	"context"
	"fmt"
	"time"

	xhttp "sentioracle/pkg/http"
)

// httpServiceBase is the DRY foundation the teacher's analytics clients
// used for POST-JSON-and-decode calls to an external model service;
// adapted here as the transport for the primary transformer classifier.
type httpServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func newHTTPServiceBase(baseURL string, timeout time.Duration) *httpServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &httpServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (b *httpServiceBase) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("scorer http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with a short linear backoff,
// matching the teacher's PostJSONWithRetry.
func (b *httpServiceBase) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
