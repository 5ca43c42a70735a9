// Package deps builds the shared components of every function from Config.
package deps

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pihlajus/bday-wisher/pkg/features/composer"
	"github.com/pihlajus/bday-wisher/pkg/features/config"
	"github.com/pihlajus/bday-wisher/pkg/features/dedup"
	"github.com/pihlajus/bday-wisher/pkg/features/notifier"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
)

type Deps struct {
	Records  *records.Store
	Composer *composer.Composer
	Sender   *notifier.Guarded

	closers []func() error
}

// Build wires the record store, composer and guarded sender. AWS clients share
// a single aws.Config loaded from the default chain.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*Deps, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return BuildWith(cfg, awsCfg, log)
}

func BuildWith(cfg config.Config, awsCfg aws.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{
		Records:  RecordStore(cfg, awsCfg, log),
		Composer: composer.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.GenerationTimeout),
	}

	sender, err := Sender(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	store, err := d.dedupStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	d.Sender = &notifier.Guarded{Sender: sender, Store: store}

	log.Debug("dependencies built",
		zap.Bool("local", cfg.IsLocal),
		zap.String("smsProvider", cfg.SMSProvider),
		zap.String("dedupBackend", cfg.DedupBackend),
	)
	return d, nil
}

func RecordStore(cfg config.Config, awsCfg aws.Config, log *zap.Logger) *records.Store {
	var source records.Source = &records.S3Source{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.DataBucket,
		Key:    cfg.DataKey,
	}
	if cfg.IsLocal {
		source = &records.FileSource{Path: cfg.LocalDataPath}
	}
	return &records.Store{Source: source, Log: log, FailOnEmpty: cfg.FailOnEmptyDataset}
}

func Sender(cfg config.Config, awsCfg aws.Config) (notifier.Sender, error) {
	switch cfg.SMSProvider {
	case "twilio":
		return notifier.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber), nil
	case "sns":
		return &notifier.SNSSender{
			Client:            sns.NewFromConfig(awsCfg),
			OriginationNumber: cfg.SNSOriginationNumber,
			SenderID:          cfg.SNSSenderID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown SMS_PROVIDER %q", cfg.SMSProvider)
	}
}

func (d *Deps) dedupStore(cfg config.Config, awsCfg aws.Config) (dedup.Store, error) {
	switch cfg.DedupBackend {
	case "none":
		return dedup.Nop{}, nil
	case "memory":
		return dedup.NewMemoryStore(cfg.DedupTTL), nil
	case "dynamodb":
		return &dedup.DynamoStore{Client: dynamodb.NewFromConfig(awsCfg), Table: cfg.DedupTable, TTL: cfg.DedupTTL}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, rdb.Close)
		return dedup.NewRedisStore(rdb, cfg.DedupTTL), nil
	default:
		return nil, fmt.Errorf("unknown DEDUP_BACKEND %q", cfg.DedupBackend)
	}
}

// Close releases connections opened by Build.
func (d *Deps) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
