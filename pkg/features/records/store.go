package records

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
)

// Source fetches the raw dataset.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type S3ApiClient interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the dataset object from a bucket.
type S3Source struct {
	Client S3ApiClient
	Bucket string
	Key    string
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	result, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", pkgerrors.ErrStorageUnavailable, s.Bucket, s.Key, err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3://%s/%s: %w", pkgerrors.ErrStorageUnavailable, s.Bucket, s.Key, err)
	}
	return content, nil
}

// FileSource reads the dataset from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrStorageUnavailable, err)
	}
	return content, nil
}

// Store loads and parses the dataset on every call.
type Store struct {
	Source Source
	Log    *zap.Logger
	// FailOnEmpty turns a load that yields no valid records into ErrEmptyDataset.
	FailOnEmpty bool
}

func (s *Store) LoadAll(ctx context.Context) ([]Record, error) {
	data, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	recs, skipped := Parse(data)
	for _, perr := range skipped {
		s.Log.Warn("skipping dataset line", zap.Int("line", perr.Line), zap.String("reason", perr.Reason))
	}
	s.Log.Debug("dataset loaded", zap.Int("records", len(recs)), zap.Int("skipped", len(skipped)))

	if len(recs) == 0 && s.FailOnEmpty {
		return nil, pkgerrors.ErrEmptyDataset
	}
	return recs, nil
}
