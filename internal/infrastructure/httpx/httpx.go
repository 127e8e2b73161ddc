package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"price-aggregator/internal/infrastructure/logx"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StatusError is a non-200 response that was not retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Client struct {
	HTTP  *http.Client
	Token string
	// Header is applied to every request before sending.
	Header http.Header
	// MaxElapsed bounds the whole retry loop. Zero keeps the default.
	MaxElapsed time.Duration
}

// DoJSON sends req and decodes a 2xx JSON body into out. A nil out discards the body.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if out == nil {
		return c.Do(ctx, req, nil)
	}
	return c.Do(ctx, req, func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
		return nil
	})
}

// Do sends req with retries on network errors and 5xx, then hands a 2xx body to read.
// Errors from read are not retried.
func (c *Client) Do(ctx context.Context, req *http.Request, read func(io.Reader) error) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	req = req.WithContext(ctx)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 1 * time.Second
	exp.MaxElapsedTime = 3 * time.Second
	if c.MaxElapsed > 0 {
		exp.MaxElapsedTime = c.MaxElapsed
	}

	attempt := 0
	op := func() error {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Body = body
		}
		attempt++
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: string(msg)})
		}
		if read == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := read(resp.Body); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logx.WithFields(ctx).Debug("httpx.retry",
			zap.String("host", req.URL.Host),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
}
