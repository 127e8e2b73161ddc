package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"price-aggregator/internal/infrastructure/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestContent(t *testing.T) {
	got := notify.Content("abc", "[History]", "alphavantage.co IBM: fetch failed", errors.New("Error: boom"))
	require.Equal(t, ">>> **IncidentID:** abc\n**Error:** [History] alphavantage.co IBM: fetch failed:  boom", got)
}

func TestDiscord_Report(t *testing.T) {
	var got map[string]string
	hc := &http.Client{Timeout: 2 * time.Second, Transport: rtFunc(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/webhooks/1/abc", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader("")), Header: make(http.Header), Request: r}, nil
	})}
	sink := notify.NewDiscord("http://discord.test/api/webhooks/1/abc", "", "http://img.test/a.png", hc)

	id := sink.Report(context.Background(), "[Driver]", "pass aborted", errors.New("db down"))

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(1), parsed.Version())
	require.Equal(t, notify.DefaultUsername, got["username"])
	require.Equal(t, "http://img.test/a.png", got["avatar_url"])
	require.Contains(t, got["content"], "**IncidentID:** "+id)
	require.Contains(t, got["content"], "db down")
}

func TestDiscord_ReportNeverFails(t *testing.T) {
	hc := &http.Client{Transport: rtFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	sink := notify.NewDiscord("http://discord.test/hook", "bot", "", hc)

	id := sink.Report(context.Background(), "[Batcher]", "window failed", errors.New("x"))
	require.NotEmpty(t, id)
}

func TestLogSink(t *testing.T) {
	a := notify.LogSink{}.Report(context.Background(), "[History]", "m", nil)
	b := notify.LogSink{}.Report(context.Background(), "[History]", "m", nil)
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
