package birthday_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/pihlajus/bday-wisher/pkg/features/dedup"
	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
	"github.com/pihlajus/bday-wisher/pkg/features/notifier"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
	"github.com/pihlajus/bday-wisher/pkg/handlers/birthday"
)

type mockLoader struct {
	recs []records.Record
	err  error
}

func (m *mockLoader) LoadAll(context.Context) ([]records.Record, error) {
	return m.recs, m.err
}

type mockComposer struct {
	err error
}

func (m *mockComposer) ComposeBirthday(ctx context.Context, r records.Record) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "Happy birthday " + r.Name + "!", nil
}

type sentMessage struct {
	Key, To, Body string
}

type mockSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]bool
}

func (m *mockSender) SendOnce(ctx context.Context, key, to, body string) (notifier.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{Key: key, To: to, Body: body})
	if m.failTo[to] {
		return notifier.DeliveryResult{}, &pkgerrors.DeliveryError{Provider: "fake", Code: 30003, Detail: "unreachable handset"}
	}
	return notifier.DeliveryResult{MessageID: "SM-" + to}, nil
}

func (m *mockSender) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var to []string
	for _, s := range m.sent {
		to = append(to, s.To)
	}
	sort.Strings(to)
	return to
}

var dataset = []records.Record{
	{Name: "Alice", PhoneNumber: "+15551112222", Month: time.March, Day: 14},
	{Name: "Bob", PhoneNumber: "+15553334444", Month: time.July, Day: 1},
}

func at(month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(2026, month, day, 1, 1, 0, 0, time.UTC) }
}

func newHandler(t *testing.T, loader birthday.RecordLoader, c birthday.MessageComposer, s birthday.OnceSender, now func() time.Time) *birthday.Handler {
	return &birthday.Handler{
		Records:        loader,
		Composer:       c,
		Sender:         s,
		Location:       time.UTC,
		MaxConcurrency: 4,
		Log:            zaptest.NewLogger(t),
		Now:            now,
	}
}

func TestHandler(t *testing.T) {
	testCases := []struct {
		name               string
		recs               []records.Record
		now                func() time.Time
		trigger            birthday.Trigger
		composeErr         error
		failTo             map[string]bool
		expectedRecipients []string
		expectedSent       int
		expectedFailed     int
		expectedSkipped    int
		expectFallback     bool
	}{
		{
			name:               "one match",
			recs:               dataset,
			now:                at(time.March, 14),
			expectedRecipients: []string{"+15551112222"},
			expectedSent:       1,
		},
		{
			name: "no match",
			recs: dataset,
			now:  at(time.December, 25),
		},
		{
			name: "empty dataset",
			now:  at(time.March, 14),
		},
		{
			name:               "generation unavailable uses fallback",
			recs:               dataset,
			now:                at(time.March, 14),
			composeErr:         fmt.Errorf("%w: timeout", pkgerrors.ErrGenerationFailed),
			expectedRecipients: []string{"+15551112222"},
			expectedSent:       1,
			expectFallback:     true,
		},
		{
			name: "one delivery failure does not stop the rest",
			recs: []records.Record{
				{Name: "Alice", PhoneNumber: "+15551112222", Month: time.March, Day: 14},
				{Name: "Carol", PhoneNumber: "+15555556666", Month: time.March, Day: 14},
				{Name: "Dave", PhoneNumber: "+15557778888", Month: time.March, Day: 14},
			},
			now:                at(time.March, 14),
			failTo:             map[string]bool{"+15551112222": true},
			expectedRecipients: []string{"+15551112222", "+15555556666", "+15557778888"},
			expectedSent:       2,
			expectedFailed:     1,
		},
		{
			name:               "trigger date overrides today",
			recs:               dataset,
			now:                at(time.December, 25),
			trigger:            birthday.Trigger{Date: "2026-07-01"},
			expectedRecipients: []string{"+15553334444"},
			expectedSent:       1,
		},
		{
			name:            "dry run sends nothing",
			recs:            dataset,
			now:             at(time.March, 14),
			trigger:         birthday.Trigger{DryRun: true},
			expectedSkipped: 1,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			sender := &mockSender{failTo: tC.failTo}
			handler := newHandler(t, &mockLoader{recs: tC.recs}, &mockComposer{err: tC.composeErr}, sender, tC.now)

			report, err := handler.Handle(context.Background(), tC.trigger)
			if err != nil {
				t.Fatalf("Error occured when running job: %v", err)
			}

			if got := sender.recipients(); !reflect.DeepEqual(got, tC.expectedRecipients) {
				t.Errorf("Received recipients: %v are different than expected ones: %v", got, tC.expectedRecipients)
			}
			if report.Sent != tC.expectedSent || report.Failed != tC.expectedFailed || report.Skipped != tC.expectedSkipped {
				t.Errorf("Received sent/failed/skipped: %d/%d/%d, expected %d/%d/%d",
					report.Sent, report.Failed, report.Skipped, tC.expectedSent, tC.expectedFailed, tC.expectedSkipped)
			}
			if report.Total != len(tC.recs) {
				t.Errorf("Received total: %d is different than expected one: %d", report.Total, len(tC.recs))
			}
			if report.Matched != len(report.Attempts) {
				t.Errorf("Matched %d but %d attempts", report.Matched, len(report.Attempts))
			}
			for _, a := range report.Attempts {
				if a.Message == "" {
					t.Errorf("Attempt for %s has an empty message", a.Name)
				}
				if a.Fallback != tC.expectFallback {
					t.Errorf("Received fallback: %v is different than expected one: %v", a.Fallback, tC.expectFallback)
				}
				if a.Outcome == birthday.Failed && !errors.Is(a.Err, pkgerrors.ErrDeliveryFailed) {
					t.Errorf("Failed attempt carries %v", a.Err)
				}
			}
		})
	}
}

func TestHandlerAliceScenario(t *testing.T) {
	sender := &mockSender{}
	handler := newHandler(t, &mockLoader{recs: dataset}, &mockComposer{}, sender, at(time.March, 14))

	report, err := handler.Run(context.Background(), birthday.Trigger{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected exactly one notification attempt, got %d", len(sender.sent))
	}
	sent := sender.sent[0]
	if sent.To != "+15551112222" || sent.Body == "" {
		t.Errorf("Unexpected message: %+v", sent)
	}
	if sent.Key != "birthday:+15551112222:2026-03-14" {
		t.Errorf("Received idempotency key: %v", sent.Key)
	}
	if report.Date != "2026-03-14" || report.RunID == "" {
		t.Errorf("Unexpected report header: %+v", report)
	}
}

func TestHandlerStorageUnavailable(t *testing.T) {
	sender := &mockSender{}
	loader := &mockLoader{err: fmt.Errorf("%w: NoSuchBucket", pkgerrors.ErrStorageUnavailable)}
	handler := newHandler(t, loader, &mockComposer{}, sender, at(time.March, 14))

	_, err := handler.Run(context.Background(), birthday.Trigger{})
	if !errors.Is(err, pkgerrors.ErrStorageUnavailable) {
		t.Fatalf("Error received: %v is different than expected: %v", err, pkgerrors.ErrStorageUnavailable)
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected nothing sent, got %d", len(sender.sent))
	}
}

func TestHandlerInvalidTriggerDate(t *testing.T) {
	handler := newHandler(t, &mockLoader{recs: dataset}, &mockComposer{}, &mockSender{}, at(time.March, 14))

	if _, err := handler.Run(context.Background(), birthday.Trigger{Date: "14.03.2026"}); err == nil {
		t.Errorf("Expected error for malformed trigger date")
	}
}

type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSender) Send(context.Context, string, string) (notifier.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return notifier.DeliveryResult{MessageID: "SM1"}, nil
}

func TestHandlerRerunSameDay(t *testing.T) {
	gateway := &countingSender{}
	guarded := &notifier.Guarded{Sender: gateway, Store: dedup.NewMemoryStore(72 * time.Hour)}
	handler := newHandler(t, &mockLoader{recs: dataset}, &mockComposer{}, guarded, at(time.March, 14))

	first, err := handler.Run(context.Background(), birthday.Trigger{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := handler.Run(context.Background(), birthday.Trigger{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first.Matched != second.Matched || first.Attempts[0].PhoneNumber != second.Attempts[0].PhoneNumber {
		t.Errorf("Matched sets differ between runs: %+v vs %+v", first.Attempts, second.Attempts)
	}
	if first.Sent != 1 || second.Skipped != 1 {
		t.Errorf("Expected first run to send and second to skip, got %+v and %+v", first, second)
	}
	if gateway.calls != 1 {
		t.Errorf("Expected one gateway call across runs, got %d", gateway.calls)
	}
}

func TestHandlerManyMatchesBounded(t *testing.T) {
	var recs []records.Record
	for i := 0; i < 25; i++ {
		recs = append(recs, records.Record{Name: fmt.Sprint("P", i), PhoneNumber: fmt.Sprintf("+1555000%04d", i), Month: time.March, Day: 14})
	}

	sender := &mockSender{}
	handler := newHandler(t, &mockLoader{recs: recs}, &mockComposer{}, sender, at(time.March, 14))
	handler.MaxConcurrency = 3

	report, err := handler.Run(context.Background(), birthday.Trigger{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Sent != 25 || len(sender.recipients()) != 25 {
		t.Errorf("Expected 25 sends, got report %d and %d calls", report.Sent, len(sender.recipients()))
	}
}
