package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// apiClient is a thin JSON client of the daemon's HTTP API
type apiClient struct {
	base string
	r    *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	base = strings.TrimRight(base, "/")
	r := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "restrictctl/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &apiClient{base: base, r: r}
}

// do sends body (if any) and decodes a 2xx response into out (if any).
// Error responses surface the server's error message.
func (a *apiClient) do(method, path string, body, out any) error {
	req := a.r.R().SetError(&apiError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status(), e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status())
	}
	return nil
}

// raw fetches path and returns the body unparsed
func (a *apiClient) raw(path string) ([]byte, error) {
	resp, err := a.r.R().Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, errors.New(resp.Status())
	}
	return resp.Body(), nil
}
