package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/pihlajus/bday-wisher/pkg/features/composer"
	"github.com/pihlajus/bday-wisher/pkg/features/notifier"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
	"github.com/pihlajus/bday-wisher/pkg/handlers/replier"
)

type stubComposer struct{}

func (stubComposer) ComposeReply(context.Context, composer.Inbound, *records.Record) (string, error) {
	return "hi back", nil
}

type stubSender struct {
	to string
}

func (s *stubSender) SendOnce(ctx context.Context, key, to, body string) (notifier.DeliveryResult, error) {
	s.to = to
	return notifier.DeliveryResult{MessageID: "SM1"}, nil
}

func TestWebhook(t *testing.T) {
	sender := &stubSender{}
	srv := httptest.NewServer(webhook(&replier.Handler{Composer: stubComposer{}, Sender: sender, Log: zaptest.NewLogger(t)}))
	defer srv.Close()

	form := url.Values{"From": {"+15559998888"}, "Body": {"thanks!"}}
	res, err := http.Post(srv.URL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("Received status code: %v is different than expected one: 200", res.StatusCode)
	}
	if res.Header.Get("Content-Type") != "text/xml" {
		t.Errorf("Received content type: %v", res.Header.Get("Content-Type"))
	}
	if sender.to != "+15559998888" {
		t.Errorf("Received recipient: %v", sender.to)
	}

	res, err = http.Post(srv.URL, "application/x-www-form-urlencoded", strings.NewReader("Body=only"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("Received status code: %v is different than expected one: 400", res.StatusCode)
	}
}
