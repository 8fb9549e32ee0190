package cli

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/neoclaw-ai/repcoach/internal/channels"
	"github.com/neoclaw-ai/repcoach/internal/coach"
)

type stubReplier struct{}

func (stubReplier) Today() string { return "2024-01-01" }

func (stubReplier) HandleReply(_ context.Context, sender, _ string, _ string) (coach.ReplyResult, error) {
	if sender != "+15550102000" {
		return coach.ReplyResult{}, coach.ErrUnauthorized
	}
	return coach.ReplyResult{Outcome: coach.OutcomeAnswered, Ack: "Logged."}, nil
}

func postSigned(t *testing.T, endpoint, authToken string, form url.Values) *http.Response {
	t.Helper()
	// Twilio signs the URL followed by each key and value in key order.
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(endpoint + "Body" + form.Get("Body") + "From" + form.Get("From")))

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post reply: %v", err)
	}
	return resp
}

func TestServerMuxRoutesReplyAndHealth(t *testing.T) {
	server := httptest.NewServer(newServerMux("/sms", channels.NewWebhookHandler(stubReplier{}, "secret", "")))
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}

	resp = postSigned(t, server.URL+"/sms", "secret", url.Values{"From": {"+15550102000"}, "Body": {"Done 15"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected reply 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}

	resp = postSigned(t, server.URL+"/sms", "secret", url.Values{"From": {"+15550109999"}, "Body": {"Done 15"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown sender, got %d", resp.StatusCode)
	}

	resp = postSigned(t, server.URL+"/sms", "wrong", url.Values{"From": {"+15550102000"}, "Body": {"Done 15"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unsigned request, got %d", resp.StatusCode)
	}
}

func TestServerMuxWithoutReplyHandler(t *testing.T) {
	server := httptest.NewServer(newServerMux("/sms", nil))
	defer server.Close()

	resp, err := http.PostForm(server.URL+"/sms", url.Values{"From": {"+15550102000"}})
	if err != nil {
		t.Fatalf("post reply: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without reply handler, got %d", resp.StatusCode)
	}
}
