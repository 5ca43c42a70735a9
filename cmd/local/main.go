// Command local runs the birthday job and the reply webhook on a workstation,
// reading the dataset from a file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pihlajus/bday-wisher/pkg/features/config"
	"github.com/pihlajus/bday-wisher/pkg/features/deps"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
	"github.com/pihlajus/bday-wisher/pkg/handlers/birthday"
	"github.com/pihlajus/bday-wisher/pkg/handlers/replier"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "dotenv file to load")
		addr    = flag.String("addr", ":8080", "webhook listen address")
		once    = flag.Bool("once", false, "run the birthday job once and exit")
		date    = flag.String("date", "", "run for this date (YYYY-MM-DD) instead of today")
		dryRun  = flag.Bool("dry-run", false, "compose messages without sending them")
	)
	flag.Parse()

	if err := run(*envFile, *addr, *once, birthday.Trigger{Date: *date, DryRun: *dryRun}); err != nil {
		log.Fatal(err)
	}
}

func run(envFile, addr string, once bool, trigger birthday.Trigger) error {
	os.Setenv("IS_LOCAL", "true")

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := deps.Build(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer d.Close()

	refLoc, _ := cfg.ReferenceLocation()
	job := &birthday.Handler{
		Records:        d.Records,
		Composer:       d.Composer,
		Sender:         d.Sender,
		Location:       refLoc,
		MaxConcurrency: cfg.MaxConcurrency,
		Log:            zl,
	}

	if once {
		report, err := job.Run(ctx, trigger)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	localLoc, _ := cfg.LocalLocation()
	c := cron.New(cron.WithLocation(localLoc))
	expr := fmt.Sprintf("%d %d * * *", cfg.LocalMinute, cfg.LocalHour)
	if _, err := c.AddFunc(expr, func() {
		if _, err := job.Run(ctx, birthday.Trigger{}); err != nil {
			zl.Error("scheduled run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduling %q: %w", expr, err)
	}
	c.Start()
	defer c.Stop()

	replies := &replier.Handler{
		Records:    d.Records,
		Composer:   d.Composer,
		Sender:     d.Sender,
		WebhookURL: cfg.WebhookURL,
		Log:        zl,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /messages", webhook(replies))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zl.Info("local runner started", zap.String("addr", addr), zap.String("schedule", expr), zap.String("timezone", localLoc.String()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// webhook adapts a plain HTTP request to the API Gateway proxy shape the reply
// handler expects.
func webhook(h *replier.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}

		res, err := h.Handle(r.Context(), events.APIGatewayProxyRequest{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Headers:    headers,
			Body:       string(body),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for k, v := range res.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(res.StatusCode)
		io.WriteString(w, res.Body)
	})
}
