package publish

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// sourceFetcher reads finished artifacts from the export service's status URLs.
type sourceFetcher struct {
	client *resty.Client
}

func newSourceFetcher(timeout time.Duration) *sourceFetcher {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &sourceFetcher{client: client}
}

// length asks for the artifact size with HEAD. -1 means the server did not say.
func (f *sourceFetcher) length(ctx context.Context, url string) (int64, error) {
	resp, err := f.client.R().SetContext(ctx).Head(url)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", url, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("HEAD %s returned HTTP %d", url, resp.StatusCode())
	}
	raw := resp.Header().Get("Content-Length")
	if raw == "" {
		return -1, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: bad Content-Length %q", url, raw)
	}
	return n, nil
}

type artifact struct {
	body        io.ReadCloser
	contentType string
}

// open starts a streamed GET. The caller closes the body.
func (f *sourceFetcher) open(ctx context.Context, url string) (*artifact, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		body.Close()
		return nil, fmt.Errorf("GET %s returned HTTP %d: %s", url, resp.StatusCode(), string(snippet))
	}
	return &artifact{body: body, contentType: resp.Header().Get("Content-Type")}, nil
}
