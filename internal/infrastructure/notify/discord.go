package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultUsername = "Price Aggregator Logger"
	sendTimeout     = 30 * time.Second
)

// NewIncidentID returns a time-based UUID so incident IDs sort by creation time.
func NewIncidentID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Discord posts incidents to a webhook. Delivery failures are logged and swallowed.
type Discord struct {
	client    *resty.Client
	url       string
	username  string
	avatarURL string
}

var _ application.IncidentSink = (*Discord)(nil)

// NewDiscord builds the webhook sink. A nil hc uses resty's default transport.
func NewDiscord(webhookURL, username, avatarURL string, hc *http.Client) *Discord {
	client := resty.New()
	if hc != nil {
		client = resty.NewWithClient(hc)
	}
	client.SetTimeout(sendTimeout)
	if username == "" {
		username = DefaultUsername
	}
	return &Discord{client: client, url: webhookURL, username: username, avatarURL: avatarURL}
}

type discordMessage struct {
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Content renders the webhook body for one incident.
func Content(id, tag, message string, err error) string {
	text := strings.TrimSpace(tag + " " + message)
	if err != nil {
		text += ": " + err.Error()
	}
	text = strings.TrimSpace(strings.Replace(text, "Error:", "", 1))
	return fmt.Sprintf(">>> **IncidentID:** %s\n**Error:** %s", id, text)
}

func (d *Discord) Report(ctx context.Context, tag, message string, err error) string {
	id := NewIncidentID()
	log := logx.WithFields(ctx).With(zap.String("incident_id", id))

	resp, sendErr := d.client.R().
		SetContext(context.WithoutCancel(ctx)).
		SetHeader("Content-Type", "application/json").
		SetBody(discordMessage{
			Content:   Content(id, tag, message, err),
			Username:  d.username,
			AvatarURL: d.avatarURL,
		}).
		Post(d.url)
	switch {
	case sendErr != nil:
		log.Warn("incident.send_failed", zap.Error(sendErr))
	case resp.IsError():
		log.Warn("incident.send_failed", zap.Int("status", resp.StatusCode()))
	default:
		log.Debug("incident.sent", zap.String("tag", tag))
	}
	return id
}

// LogSink only assigns incident IDs; the caller's log line is the record.
type LogSink struct{}

var _ application.IncidentSink = LogSink{}

func (LogSink) Report(ctx context.Context, tag, message string, err error) string {
	id := NewIncidentID()
	logx.WithFields(ctx).Debug("incident.recorded",
		zap.String("incident_id", id),
		zap.String("tag", tag),
		zap.String("message", message),
		zap.Error(err),
	)
	return id
}
