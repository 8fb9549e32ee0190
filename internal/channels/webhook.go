package channels

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "X-Twilio-Signature"
)

// Replier records one inbound reply for a calendar date.
type Replier interface {
	Today() string
	HandleReply(ctx context.Context, sender, body, date string) (coach.ReplyResult, error)
}

// WebhookHandler accepts Twilio inbound SMS posts and answers with TwiML.
// Only requests signed with the account auth token reach the replier.
type WebhookHandler struct {
	replier   Replier
	authToken string
	publicURL string
	validator twilioclient.RequestValidator
}

// NewWebhookHandler returns an http.Handler for the inbound SMS endpoint.
// publicURL is the URL Twilio posts to; when empty it is rebuilt from the
// request. An empty authToken rejects every request.
func NewWebhookHandler(replier Replier, authToken, publicURL string) *WebhookHandler {
	authToken = strings.TrimSpace(authToken)
	return &WebhookHandler{
		replier:   replier,
		authToken: authToken,
		publicURL: strings.TrimSpace(publicURL),
		validator: twilioclient.NewRequestValidator(authToken),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if !h.validSignature(r) {
		logging.Logger().Warn("sms webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	}

	from := strings.TrimSpace(r.PostFormValue("From"))
	body := strings.TrimSpace(r.PostFormValue("Body"))
	logging.Logger().Info("sms inbound message", "from", from, "text", messagePreview(body, 100))

	res, err := h.replier.HandleReply(r.Context(), from, body, h.replier.Today())
	switch {
	case errors.Is(err, coach.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	case err != nil:
		logging.Logger().Error("handle sms reply", "from", from, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(twiml(res.Ack)); err != nil {
		logging.Logger().Warn("write twiml response", "err", err)
	}
}

func (h *WebhookHandler) validSignature(r *http.Request) bool {
	signature := strings.TrimSpace(r.Header.Get(signatureHeader))
	if h.authToken == "" || signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return h.validator.Validate(h.requestURL(r), params, signature)
}

func (h *WebhookHandler) requestURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// twiml renders a messaging response that replies with message. An empty
// message renders an empty response.
func twiml(message string) []byte {
	var b strings.Builder
	b.WriteString(xml.Header)
	if strings.TrimSpace(message) == "" {
		b.WriteString("<Response></Response>")
		return []byte(b.String())
	}
	b.WriteString("<Response><Message>")
	_ = xml.EscapeText(&b, []byte(message))
	b.WriteString("</Message></Response>")
	return []byte(b.String())
}

func messagePreview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
