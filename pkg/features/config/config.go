package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings shared by every function. It is loaded once in main
// and handed to constructors; nothing below main reads the environment.
type Config struct {
	OpenAIKey         string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel       string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"10s"`

	SMSProvider       string `envconfig:"SMS_PROVIDER" default:"twilio"` // twilio|sns
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER"`

	SNSSenderID          string `envconfig:"SNS_SENDER_ID"`
	SNSOriginationNumber string `envconfig:"SNS_ORIGINATION_NUMBER"`

	DataBucket    string `envconfig:"DATA_BUCKET" default:"birthday-wisher"`
	DataKey       string `envconfig:"DATA_KEY" default:"friends.csv"`
	IsLocal       bool   `envconfig:"IS_LOCAL" default:"false"`
	LocalDataPath string `envconfig:"LOCAL_DATA_PATH" default:"data/friends.csv"`

	FailOnEmptyDataset bool   `envconfig:"FAIL_ON_EMPTY_DATASET" default:"false"`
	ReferenceTimezone  string `envconfig:"REFERENCE_TIMEZONE"` // defaults to LOCAL_TIMEZONE
	MaxConcurrency     int    `envconfig:"MAX_CONCURRENCY" default:"4"`

	LocalTimezone string `envconfig:"LOCAL_TIMEZONE" default:"Europe/Helsinki"`
	LocalHour     int    `envconfig:"LOCAL_HOUR" default:"4"`
	LocalMinute   int    `envconfig:"LOCAL_MINUTE" default:"1"`

	DedupBackend string        `envconfig:"DEDUP_BACKEND" default:"none"` // none|memory|dynamodb|redis
	DedupTable   string        `envconfig:"DEDUP_TABLE"`
	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	DedupTTL     time.Duration `envconfig:"DEDUP_TTL" default:"72h"`

	ValidateSignature bool   `envconfig:"VALIDATE_SIGNATURE" default:"false"`
	WebhookURL        string `envconfig:"WEBHOOK_URL"`

	ScheduleName        string `envconfig:"SCHEDULE_NAME" default:"birthday-daily"`
	BirthdayFunctionARN string `envconfig:"BIRTHDAY_FUNCTION_ARN"`
	SchedulerRoleARN    string `envconfig:"SCHEDULER_ROLE_ARN"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
}

// Load reads environment variables into Config for the functions that send
// messages. Files in dotenv are loaded first when given; missing files are
// ignored and never override the environment.
func Load(dotenv ...string) (Config, error) {
	return load(Config.Validate, dotenv)
}

// LoadSchedule is Load for the schedule-sync function, which needs no
// generation or SMS credentials.
func LoadSchedule(dotenv ...string) (Config, error) {
	return load(Config.ValidateSchedule, dotenv)
}

func load(validate func(Config) error, dotenv []string) (Config, error) {
	if len(dotenv) > 0 {
		_ = godotenv.Load(dotenv...)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks everything the birthday and reply functions use.
func (c Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.OpenAIKey == "" {
		return fmt.Errorf("required key OPENAI_API_KEY missing value")
	}

	switch c.SMSProvider {
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioPhoneNumber == "" {
			return fmt.Errorf("twilio provider needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER")
		}
	case "sns":
	default:
		return fmt.Errorf("unknown SMS_PROVIDER %q", c.SMSProvider)
	}

	switch c.DedupBackend {
	case "none", "memory", "redis":
	case "dynamodb":
		if c.DedupTable == "" {
			return fmt.Errorf("dynamodb dedup backend needs DEDUP_TABLE")
		}
	default:
		return fmt.Errorf("unknown DEDUP_BACKEND %q", c.DedupBackend)
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.ValidateSignature && c.WebhookURL == "" {
		return fmt.Errorf("VALIDATE_SIGNATURE needs WEBHOOK_URL")
	}
	return nil
}

// ValidateSchedule checks what the schedule-sync function uses.
func (c Config) ValidateSchedule() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.BirthdayFunctionARN == "" || c.SchedulerRoleARN == "" {
		return fmt.Errorf("schedule sync needs BIRTHDAY_FUNCTION_ARN and SCHEDULER_ROLE_ARN")
	}
	return nil
}

func (c Config) validateCommon() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	if c.LocalHour < 0 || c.LocalHour > 23 || c.LocalMinute < 0 || c.LocalMinute > 59 {
		return fmt.Errorf("invalid run time %02d:%02d", c.LocalHour, c.LocalMinute)
	}

	local, err := c.LocalLocation()
	if err != nil {
		return err
	}
	ref, err := c.ReferenceLocation()
	if err != nil {
		return err
	}
	return sameDay(local, ref, c.LocalHour, c.LocalMinute, time.Now().Year())
}

// sameDay reports an error when the daily run at hour:minute in local falls on
// a different calendar date in ref in any month of year. The job would then
// greet the previous or the next day's birthdays.
func sameDay(local, ref *time.Location, hour, minute, year int) error {
	for m := time.January; m <= time.December; m++ {
		run := time.Date(year, m, 15, hour, minute, 0, 0, local)
		if run.In(ref).Day() != run.Day() {
			return fmt.Errorf("run time %02d:%02d %s is on a different day in REFERENCE_TIMEZONE %s in %s",
				hour, minute, local, ref, m)
		}
	}
	return nil
}

// ReferenceLocation is the zone in which "today" is evaluated.
func (c Config) ReferenceLocation() (*time.Location, error) {
	name := c.ReferenceTimezone
	if name == "" {
		name = c.LocalTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE: %w", err)
	}
	return loc, nil
}

// LocalLocation is the zone whose wall clock the daily run should follow.
func (c Config) LocalLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}
	return loc, nil
}
