// Package channels adapts the coach to its messaging transports: Twilio SMS
// for delivery, an inbound SMS webhook and a Telegram bot.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

const smsRequestTimeout = 15 * time.Second

var _ coach.Sender = (*SMS)(nil)

// SMS sends messages through the Twilio Messages API.
type SMS struct {
	from string
	to   string
	api  *openapi.ApiService
}

// NewSMS builds a Twilio sender bound to one from/to pair. A nil client uses
// a default client with a request timeout. cfg.APIBaseURL, when set, routes
// every API request to that origin instead of api.twilio.com.
func NewSMS(cfg config.SMSConfig, httpClient *http.Client) (*SMS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: smsRequestTimeout}
	}
	if base := strings.TrimSpace(cfg.APIBaseURL); base != "" {
		origin, err := url.Parse(strings.TrimRight(base, "/"))
		if err != nil || origin.Scheme == "" || origin.Host == "" {
			return nil, fmt.Errorf("invalid channels.sms.api_base_url %q", base)
		}
		routed := *httpClient
		routed.Transport = originTransport{origin: origin, next: httpClient.Transport}
		httpClient = &routed
	}

	accountSID := strings.TrimSpace(cfg.AccountSID)
	restClient := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(accountSID, strings.TrimSpace(cfg.AuthToken)),
		HTTPClient:  httpClient,
	}
	restClient.SetAccountSid(accountSID)

	tw := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSID,
		AccountSid: accountSID,
		Client:     restClient,
	})
	return &SMS{
		from: strings.TrimSpace(cfg.From),
		to:   strings.TrimSpace(cfg.To),
		api:  tw.Api,
	}, nil
}

// Send delivers body to the configured recipient.
func (s *SMS) Send(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("sms body is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		var apiErr *twilioclient.TwilioRestError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("send sms: status %d: twilio error %d: %s", apiErr.Status, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("send sms: %w", err)
	}

	var sid, status string
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	if msg != nil && msg.Status != nil {
		status = *msg.Status
	}
	logging.Logger().Info("sms sent", "sid", sid, "status", status, "chars", len([]rune(body)))
	return nil
}

// originTransport rewrites request origins, keeping path and query.
type originTransport struct {
	origin *url.URL
	next   http.RoundTripper
}

func (t originTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.origin.Scheme
	out.URL.Host = t.origin.Host
	out.Host = t.origin.Host
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(out)
}
