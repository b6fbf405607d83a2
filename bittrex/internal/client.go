// Copyright (c) 2026 BVK Chaitanya

package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/nonce"
	"golang.org/x/time/rate"
)

// Credentials are the api key and secret of one account.
type Credentials struct {
	Key    string
	Secret string
}

// Client is a REST client for Bittrex v3 api. Credentials are passed with
// every private call so that a single client serves all accounts.
type Client struct {
	opts Options

	baseURL *url.URL

	client *http.Client

	limiter *rate.Limiter

	nonces nonce.Source
}

// HTTPError is returned for unsuccessful responses.
type HTTPError struct {
	StatusCode int
	Code       string
}

func (e *HTTPError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Code)
}

func New(nonces nonce.Source, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(opts.RestURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:    *opts,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		nonces:  nonces,
	}, nil
}

func (c *Client) endpoint(p string, values url.Values) *url.URL {
	u := &url.URL{
		Scheme: c.baseURL.Scheme,
		Host:   c.baseURL.Host,
		Path:   path.Join(c.baseURL.Path, p),
	}
	if len(values) != 0 {
		u.RawQuery = values.Encode()
	}
	return u
}

func (c *Client) GetTickers(ctx context.Context) ([]*Ticker, error) {
	var resp []*Ticker
	if err := doJSON(ctx, c, http.MethodGet, c.endpoint("/markets/tickers", nil), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetBalances(ctx context.Context, creds *Credentials) ([]*Balance, error) {
	var resp []*Balance
	if err := doJSON(ctx, c, http.MethodGet, c.endpoint("/balances", nil), creds, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetClosedOrders returns the most recent closed orders, newest first.
func (c *Client) GetClosedOrders(ctx context.Context, creds *Credentials, pageSize int) ([]*Order, error) {
	values := make(url.Values)
	values.Set("pageSize", strconv.Itoa(pageSize))
	var resp []*Order
	if err := doJSON(ctx, c, http.MethodGet, c.endpoint("/orders/closed", values), creds, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetOpenOrders(ctx context.Context, creds *Credentials) ([]*Order, error) {
	var resp []*Order
	if err := doJSON(ctx, c, http.MethodGet, c.endpoint("/orders/open", nil), creds, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateOrder(ctx context.Context, creds *Credentials, req *CreateOrderRequest) (*Order, error) {
	resp := new(Order)
	if err := doJSON(ctx, c, http.MethodPost, c.endpoint("/orders", nil), creds, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CancelOrder(ctx context.Context, creds *Credentials, orderID string) (*Order, error) {
	resp := new(Order)
	if err := doJSON(ctx, c, http.MethodDelete, c.endpoint(path.Join("/orders", url.PathEscape(orderID)), nil), creds, nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Sign returns the content hash and the signature headers for a request.
func Sign(secret, timestamp, uri, method, body string) (contentHash, signature string) {
	sum := sha512.Sum512([]byte(body))
	contentHash = hex.EncodeToString(sum[:])

	mac := hmac.New(sha512.New, []byte(secret))
	io.WriteString(mac, timestamp)
	io.WriteString(mac, uri)
	io.WriteString(mac, method)
	io.WriteString(mac, contentHash)
	return contentHash, hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method string, addrURL *url.URL, creds *Credentials, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), strings.NewReader(body))
	if err != nil {
		slog.Error("could not create http request object with context", "method", method, "url", addrURL, "err", err)
		return nil, err
	}
	if body != "" {
		req.Header.Add("Content-Type", "application/json")
	}
	req.Header.Add("Accept", "application/json")

	if creds != nil {
		ts, err := c.nonces.Next(ctx)
		if err != nil {
			return nil, err
		}
		timestamp := strconv.FormatInt(ts, 10)
		contentHash, signature := Sign(creds.Secret, timestamp, addrURL.String(), method, body)
		req.Header.Add("Api-Key", creds.Key)
		req.Header.Add("Api-Timestamp", timestamp)
		req.Header.Add("Api-Content-Hash", contentHash)
		req.Header.Add("Api-Signature", signature)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s := time.Now()
	resp, err := c.client.Do(req)
	if d := time.Since(s); d > c.opts.HttpClientTimeout {
		slog.Warn(fmt.Sprintf("%s request took %s which is more than the http client timeout %s", method, d, c.opts.HttpClientTimeout))
	}
	return resp, err
}

func doJSON[PT *T, T any](ctx context.Context, c *Client, method string, addrURL *url.URL, creds *Credentials, request any, response PT) error {
	var sb strings.Builder
	if request != nil {
		if err := json.NewEncoder(&sb).Encode(request); err != nil {
			return err
		}
	}

	for retry := 0; ; retry++ {
		resp, err := c.do(ctx, method, addrURL, creds, sb.String())
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("could not perform http request", "method", method, "url", addrURL, "err", err)
			}
			return err
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("could not read response body: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(data, response); err != nil {
				slog.Error("could not decode response to json", "url", addrURL, "err", err)
				return err
			}
			return nil
		}

		slog.Warn("http request returned unsuccessful status code", "method", method, "url", addrURL, "status-code", resp.StatusCode, "response", string(data))
		if retry < c.opts.MaxRetries {
			if resp.StatusCode == http.StatusBadGateway {
				ctxutil.Sleep(ctx, time.Second)
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				continue
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
				timeout := time.Second
				if x := resp.Header.Get("Retry-After"); len(x) != 0 {
					if v, err := strconv.Atoi(x); err == nil {
						timeout = time.Duration(v) * time.Second
					}
				}
				ctxutil.Sleep(ctx, timeout)
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				continue
			}
		}

		herr := &HTTPError{StatusCode: resp.StatusCode}
		var eresp ErrorResponse
		if err := json.Unmarshal(data, &eresp); err == nil {
			herr.Code = eresp.Code
		}
		return herr
	}
}
