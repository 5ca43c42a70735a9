package main

import (
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/aws/jsii-runtime-go"

	"github.com/pihlajus/bday-wisher/pkg/features/schedule"
)

type settings struct {
	Bucket        string
	Key           string
	SMSProvider   string
	DedupBackend  string
	DedupTable    string
	UseScheduler  bool
	LocalTimezone string
	Hour          int
	Minute        int
}

// stackSettings reads the values that shape the stack itself from the same
// environment the functions receive.
func stackSettings(env map[string]string) settings {
	s := settings{
		Bucket:        lookup(env, "DATA_BUCKET", "birthday-wisher"),
		Key:           lookup(env, "DATA_KEY", "friends.csv"),
		SMSProvider:   lookup(env, "SMS_PROVIDER", "twilio"),
		DedupBackend:  lookup(env, "DEDUP_BACKEND", "none"),
		DedupTable:    lookup(env, "DEDUP_TABLE", "BirthdayWisherSentMessages"),
		UseScheduler:  lookup(env, "SCHEDULE_MODE", "rules") == "scheduler",
		LocalTimezone: lookup(env, "LOCAL_TIMEZONE", "Europe/Helsinki"),
		Hour:          4,
		Minute:        1,
	}
	if h, err := strconv.Atoi(env["LOCAL_HOUR"]); err == nil {
		s.Hour = h
	}
	if m, err := strconv.Atoi(env["LOCAL_MINUTE"]); err == nil {
		s.Minute = m
	}
	return s
}

// rules returns the fixed-UTC EventBridge rules that keep the daily run at
// Hour:Minute on LocalTimezone's wall clock during year.
func (s settings) rules(year int) ([]schedule.Rule, error) {
	loc, err := time.LoadLocation(s.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}
	return schedule.TableFor(loc, year).Rules(s.Hour, s.Minute), nil
}

// extraEnv is what the stack adds to every function's environment, so that the
// functions see the same values the stack was built from.
func (s settings) extraEnv() map[string]string {
	extra := map[string]string{
		"DATA_BUCKET":    s.Bucket,
		"DATA_KEY":       s.Key,
		"LOCAL_TIMEZONE": s.LocalTimezone,
		"LOCAL_HOUR":     strconv.Itoa(s.Hour),
		"LOCAL_MINUTE":   strconv.Itoa(s.Minute),
	}
	if s.DedupBackend == "dynamodb" {
		extra["DEDUP_TABLE"] = s.DedupTable
	}
	return extra
}

// functionEnv merges extra over base. Local-only keys are dropped.
func functionEnv(base, extra map[string]string) *map[string]*string {
	out := make(map[string]*string, len(base)+len(extra))
	for k, v := range base {
		switch k {
		case "IS_LOCAL", "LOCAL_DATA_PATH", "SCHEDULE_MODE":
			continue
		}
		out[k] = jsii.String(v)
	}
	for k, v := range extra {
		out[k] = jsii.String(v)
	}
	return &out
}

func lookup(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return fallback
}
