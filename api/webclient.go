package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/codearena/arena/backend"
)

// TokenSource returns the bearer token to attach to a request, or "" for none.
type TokenSource func() string

type webClient struct {
	client         *resty.Client
	tokens         TokenSource
	onUnauthorized func()
}

func newWebClient(httpClient *http.Client, baseURL string, id backend.Identity) *webClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := resty.NewWithClient(httpClient)
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	wc := &webClient{client: client}

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		switch req.Body.(type) {
		case nil, []byte, string:
		default:
			data, err := json.Marshal(req.Body)
			if err != nil {
				return err
			}
			req.Body = data
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		backend.SetHeaders(req.Header, id)
		if wc.tokens != nil && req.Header.Get(backend.AuthHeader) == "" {
			backend.SetBearer(req.Header, wc.tokens())
		}
		return nil
	})
	return wc
}

func (wc *webClient) NewRequest(queryParams, pathParams map[string]string, body any) *resty.Request {
	return wc.client.NewRequest().SetQueryParams(queryParams).SetPathParams(pathParams).SetBody(body)
}

func (wc *webClient) Get(ctx context.Context, path string, req *resty.Request, res any) error {
	return wc.send(ctx, resty.MethodGet, path, req, res)
}

func (wc *webClient) Post(ctx context.Context, path string, req *resty.Request, res any) error {
	return wc.send(ctx, resty.MethodPost, path, req, res)
}

// send executes req and decodes a 2xx body into res. A *string res receives the raw body.
func (wc *webClient) send(ctx context.Context, method, path string, req *resty.Request, res any) error {
	if req == nil {
		req = wc.client.NewRequest()
	}
	req.SetContext(ctx)

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	body := resp.Body()
	if resp.StatusCode() == http.StatusUnauthorized && wc.onUnauthorized != nil {
		wc.onUnauthorized()
	}
	if !resp.IsSuccess() {
		slog.Debug("unexpected response", "method", method, "path", path, "status", resp.StatusCode(), "body", string(body))
		return &StatusError{Code: resp.StatusCode(), Message: responseMessage(body)}
	}
	if res == nil || len(body) == 0 {
		return nil
	}
	if s, ok := res.(*string); ok {
		*s = string(body)
		return nil
	}
	if err := json.Unmarshal(body, res); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	return nil
}
