package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neoclaw-ai/repcoach/internal/config"
)

func testSMSConfig(baseURL string) config.SMSConfig {
	return config.SMSConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550100000",
		To:         "+15550102000",
		APIBaseURL: baseURL,
	}
}

func TestSMSSendPostsTwilioForm(t *testing.T) {
	t.Parallel()

	var gotPath, gotUser, gotPass, gotTo, gotFrom, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotBody = r.PostFormValue("Body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer server.Close()

	sms, err := NewSMS(testSMSConfig(server.URL+"/"), server.Client())
	if err != nil {
		t.Fatalf("new sms: %v", err)
	}
	body := "Push-up Coach Day 1\nDo 10 push-ups.\nReply to log."
	if err := sms.Send(context.Background(), body); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth %q:%q", gotUser, gotPass)
	}
	if gotTo != "+15550102000" || gotFrom != "+15550100000" || gotBody != body {
		t.Fatalf("unexpected form To=%q From=%q Body=%q", gotTo, gotFrom, gotBody)
	}
}

func TestSMSSendReturnsTwilioError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer server.Close()

	sms, err := NewSMS(testSMSConfig(server.URL), server.Client())
	if err != nil {
		t.Fatalf("new sms: %v", err)
	}
	err = sms.Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected send error")
	}
	if !strings.Contains(err.Error(), "21211") || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected twilio error details, got %v", err)
	}
}

func TestNewSMSRequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := testSMSConfig("")
	cfg.AuthToken = ""
	if _, err := NewSMS(cfg, nil); err == nil {
		t.Fatal("expected missing credential error")
	}
}

func TestNewSMSRejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewSMS(testSMSConfig("not a url"), nil); err == nil {
		t.Fatal("expected invalid base url error")
	}
}

func TestSMSSendRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	sms, err := NewSMS(testSMSConfig(""), nil)
	if err != nil {
		t.Fatalf("new sms: %v", err)
	}
	if err := sms.Send(context.Background(), "  "); err == nil {
		t.Fatal("expected empty body error")
	}
}
