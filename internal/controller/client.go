package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bilal/clashstat/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 32 << 20

// Client talks to the REST API of a Clash compatible proxy controller.
// It holds no state besides its connection settings and is safe for
// concurrent use.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// New creates a client for the controller described by cfg.
func New(cfg config.ControllerConfig) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid controller url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           nil, // the controller is local, never go through a proxy
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		},
	}, nil
}

// do issues an authenticated GET and returns the response on 2xx status.
// The caller must close the body.
func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}

	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}

	log.Debug().
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("controller request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("api request failed with status: %s", resp.Status),
		}
	}
	return resp, nil
}

// getObject fetches endpoint and decodes the body as a JSON object.
func (c *Client) getObject(ctx context.Context, endpoint string) (map[string]json.RawMessage, error) {
	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	return decodeBody(endpoint, body)
}

// decodeBody decodes a complete response body, which must hold exactly one
// JSON object and nothing after it.
func decodeBody(endpoint string, body []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("empty body")}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	if obj == nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("body is null, want a JSON object")}
	}
	return obj, nil
}

// decodeObject reads the first JSON object from a stream and leaves the rest unread.
func decodeObject(endpoint string, dec *json.Decoder) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("empty body")}
		case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, &DecodeError{Endpoint: endpoint, Err: err}
		default:
			// the stream broke while reading, e.g. the client timeout fired
			return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
		}
	}
	if obj == nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("body is null, want a JSON object")}
	}
	return obj, nil
}

// Traffic returns the current transfer rates and totals.
//
// The controller keeps /traffic open and writes one JSON object per second;
// only the first object is read before the connection is closed.
func (c *Client) Traffic(ctx context.Context) (*Traffic, error) {
	const endpoint = "/traffic"

	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	obj, err := decodeObject(endpoint, json.NewDecoder(resp.Body))
	if err != nil {
		return nil, err
	}

	return &Traffic{
		Up:        numberField(endpoint, obj, "up"),
		Down:      numberField(endpoint, obj, "down"),
		UpTotal:   numberField(endpoint, obj, "upTotal"),
		DownTotal: numberField(endpoint, obj, "downTotal"),
	}, nil
}

// Proxies returns every proxy and proxy group known to the controller.
// A missing or malformed "proxies" member yields an empty result.
func (c *Client) Proxies(ctx context.Context) (Proxies, error) {
	const endpoint = "/proxies"

	obj, err := c.getObject(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	out := make(Proxies)
	raw, ok := obj["proxies"]
	if !ok {
		log.Warn().Str("endpoint", endpoint).Msg("response has no proxies member")
		return out, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Str("endpoint", endpoint).Err(err).Msg("proxies member is not an object")
		return out, nil
	}

	for name, e := range entries {
		p := Proxy{Name: name}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(e, &fields); err == nil {
			p.Type = stringField(fields, "type")
			p.Now = stringField(fields, "now")
			p.All = stringsField(endpoint, fields, "all")
		}
		out[name] = p
	}
	return out, nil
}

// Connections returns the active connections and the cumulative totals.
func (c *Client) Connections(ctx context.Context) (*Connections, error) {
	const endpoint = "/connections"

	obj, err := c.getObject(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var conns Connections
	if err := remarshal(obj, &conns); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return &conns, nil
}

// Version returns the controller's version information.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	const endpoint = "/version"

	obj, err := c.getObject(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var v Version
	if err := remarshal(obj, &v); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return &v, nil
}

// Configs returns the controller's running configuration, most notably the
// routing mode.
func (c *Client) Configs(ctx context.Context) (*Configs, error) {
	const endpoint = "/configs"

	obj, err := c.getObject(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var cfg Configs
	if err := remarshal(obj, &cfg); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return &cfg, nil
}

func remarshal(obj map[string]json.RawMessage, target any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

func numberField(endpoint string, obj map[string]json.RawMessage, key string) *json.Number {
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		log.Warn().Str("endpoint", endpoint).Str("field", key).Msg("field is not a number")
		return nil
	}
	return &n
}

func stringField(obj map[string]json.RawMessage, key string) *string {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || string(raw) == "null" {
		return nil
	}
	return &s
}

func stringsField(endpoint string, obj map[string]json.RawMessage, key string) []string {
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Str("endpoint", endpoint).Str("field", key).Msg("field is not a list of names")
		return nil
	}
	return out
}
