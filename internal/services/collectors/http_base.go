package collectors

import (
	"context"
	"fmt"
	"time"

	xhttp "sentioracle/pkg/http"
)

// httpServiceBase is the same generic-HTTP-client-plus-baseURL shape the
// scorer's primary classifier client uses, repeated here since each
// service package owns its own thin base rather than sharing one across
// unrelated domains.
type httpServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func newHTTPServiceBase(baseURL string, timeout time.Duration) *httpServiceBase {
	return &httpServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (b *httpServiceBase) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("collector http: %w", err)
	}
	return nil
}
