package birthday

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pihlajus/bday-wisher/pkg/features/composer"
	"github.com/pihlajus/bday-wisher/pkg/features/dedup"
	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
	"github.com/pihlajus/bday-wisher/pkg/features/notifier"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
)

type RecordLoader interface {
	LoadAll(context.Context) ([]records.Record, error)
}

type MessageComposer interface {
	ComposeBirthday(context.Context, records.Record) (string, error)
}

type OnceSender interface {
	SendOnce(ctx context.Context, key, to, body string) (notifier.DeliveryResult, error)
}

// Trigger is the invocation payload. Scheduled events carry neither field.
type Trigger struct {
	// Date re-runs a given day (YYYY-MM-DD) instead of today.
	Date string `json:"date"`
	// DryRun composes messages without sending them.
	DryRun bool `json:"dryRun"`
}

type Outcome string

const (
	Sent    Outcome = "sent"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// Attempt is the result of notifying one matched record during a run.
type Attempt struct {
	Name            string  `json:"name"`
	PhoneNumber     string  `json:"phoneNumber"`
	Message         string  `json:"message"`
	Fallback        bool    `json:"fallback"`
	Outcome         Outcome `json:"outcome"`
	MessageID       string  `json:"messageId,omitempty"`
	GenerationError string  `json:"generationError,omitempty"`
	Error           string  `json:"error,omitempty"`

	Record records.Record `json:"-"`
	Err    error          `json:"-"`
}

type Report struct {
	RunID    string    `json:"runId"`
	Date     string    `json:"date"`
	DryRun   bool      `json:"dryRun,omitempty"`
	Total    int       `json:"total"`
	Matched  int       `json:"matched"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Attempts []Attempt `json:"attempts"`
}

type Handler struct {
	Records  RecordLoader
	Composer MessageComposer
	Sender   OnceSender
	// Location is the single reference zone in which "today" is evaluated.
	Location       *time.Location
	MaxConcurrency int
	Log            *zap.Logger
	Now            func() time.Time
}

// Handle is the Lambda entry point.
func (h *Handler) Handle(ctx context.Context, trigger Trigger) (Report, error) {
	return h.Run(ctx, trigger)
}

// Run loads the dataset once, then composes and sends a message to every
// record whose birthday is today. Only a failure to load the dataset is
// returned; per-record failures are reported in the Report.
func (h *Handler) Run(ctx context.Context, trigger Trigger) (Report, error) {
	report := Report{RunID: uuid.NewString(), DryRun: trigger.DryRun, Attempts: []Attempt{}}
	log := logger.WithRequest(ctx, h.Log).With(zap.String("runID", report.RunID))

	today, err := h.today(trigger)
	if err != nil {
		log.Error("birthday job failed", zap.String("state", "failed"), zap.Error(err))
		return report, err
	}
	report.Date = today.Format(time.DateOnly)
	log = log.With(zap.String("date", report.Date))

	log.Info("birthday job", zap.String("state", "loading"))
	recs, err := h.Records.LoadAll(ctx)
	if err != nil {
		log.Error("birthday job failed", zap.String("state", "failed"), zap.Error(err))
		return report, fmt.Errorf("loading birthdays: %w", err)
	}
	report.Total = len(recs)

	log.Info("birthday job", zap.String("state", "evaluating"), zap.Int("records", len(recs)))
	var matched []records.Record
	for _, r := range recs {
		if records.Matches(today, r) {
			matched = append(matched, r)
		}
	}
	report.Matched = len(matched)

	log.Info("birthday job", zap.String("state", "dispatching"), zap.Int("matched", len(matched)))
	attempts := make([]Attempt, len(matched))

	var g errgroup.Group
	g.SetLimit(max(h.MaxConcurrency, 1))
	for i, r := range matched {
		g.Go(func() error {
			attempts[i] = h.dispatch(ctx, log, today, r, trigger.DryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range attempts {
		switch a.Outcome {
		case Sent:
			report.Sent++
		case Failed:
			report.Failed++
		case Skipped:
			report.Skipped++
		}
	}
	report.Attempts = append(report.Attempts, attempts...)

	log.Info("birthday job",
		zap.String("state", "done"),
		zap.Int("matched", report.Matched),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (h *Handler) today(trigger Trigger) (time.Time, error) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	if trigger.Date != "" {
		d, err := time.ParseInLocation(time.DateOnly, trigger.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid trigger date %q: %w", trigger.Date, err)
		}
		return d, nil
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return records.Today(now(), loc), nil
}

func (h *Handler) dispatch(ctx context.Context, log *zap.Logger, today time.Time, r records.Record, dryRun bool) Attempt {
	a := Attempt{Name: r.Name, PhoneNumber: r.PhoneNumber, Record: r}
	log = log.With(zap.String("name", r.Name), logger.Phone("phone", r.PhoneNumber))

	msg, err := h.Composer.ComposeBirthday(ctx, r)
	if err != nil {
		log.Warn("generation failed, using fallback", zap.Error(err))
		msg = composer.FallbackBirthday(r)
		a.Fallback = true
		a.GenerationError = err.Error()
	}
	a.Message = msg

	if dryRun {
		a.Outcome = Skipped
		log.Info("dry run, not sending", zap.String("message", msg))
		return a
	}

	res, err := h.Sender.SendOnce(ctx, dedup.BirthdayKey(r.PhoneNumber, today), r.PhoneNumber, msg)
	switch {
	case pkgerrors.Is(err, pkgerrors.ErrDuplicate):
		a.Outcome = Skipped
		a.Err = err
		a.Error = err.Error()
		log.Info("already sent today", zap.String("outcome", string(a.Outcome)))
	case err != nil:
		a.Outcome = Failed
		a.Err = err
		a.Error = err.Error()
		log.Error("sending failed", zap.String("outcome", string(a.Outcome)), zap.Error(err))
	default:
		a.Outcome = Sent
		a.MessageID = res.MessageID
		log.Info("birthday message sent", zap.String("outcome", string(a.Outcome)), zap.String("messageID", res.MessageID), zap.Bool("fallback", a.Fallback))
	}
	return a
}
