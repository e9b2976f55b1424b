package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/oauth2"
)

// GraphError is a non-2xx answer from the Graph API.
type GraphError struct {
	StatusCode int
	Code       int
	Message    string
	FbtraceID  string
}

func (e *GraphError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph api status %d: %s (code %d, fbtrace_id %s)", e.StatusCode, e.Message, e.Code, e.FbtraceID)
}

// graphClient talks to one versioned Graph API root with a fixed access token.
type graphClient struct {
	http *resty.Client
}

func newGraphClient(baseURL, version, accessToken string, timeout time.Duration) *graphClient {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)

	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/") + "/" + version).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &graphClient{http: client}
}

func (c *graphClient) post(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, params, out)
}

func (c *graphClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, params, out)
}

func (c *graphClient) do(ctx context.Context, method, path string, params map[string]string, out interface{}) error {
	var apiErr transfer.GraphErrorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Execute(method, path)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return &GraphError{
			StatusCode: resp.StatusCode(),
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
			FbtraceID:  apiErr.Error.FbtraceID,
		}
	}
	return nil
}
