package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used for transcripts.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Transcripts stores transcripts as objects under a key prefix.
type S3Transcripts struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Transcripts loads the default AWS configuration for region and
// returns a store writing to bucket.
func NewS3Transcripts(ctx context.Context, bucket, prefix, region string) (*S3Transcripts, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing transcript bucket")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3TranscriptsWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3TranscriptsWithClient wraps an existing client.
func NewS3TranscriptsWithClient(client S3API, bucket, prefix string) *S3Transcripts {
	return &S3Transcripts{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Transcripts) key(callID string) string {
	if s.prefix == "" {
		return transcriptName(callID)
	}
	return path.Join(s.prefix, transcriptName(callID))
}

// WriteTranscript uploads the transcript and returns its s3:// URI.
func (s *S3Transcripts) WriteTranscript(ctx context.Context, callID, text string) (string, error) {
	if err := validCallID(callID); err != nil {
		return "", err
	}
	key := s.key(callID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading transcript %s: %w", callID, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// ReadTranscript downloads the transcript for callID.
func (s *S3Transcripts) ReadTranscript(ctx context.Context, callID string) (string, error) {
	if err := validCallID(callID); err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(callID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("downloading transcript %s: %w", callID, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("reading transcript %s: %w", callID, err)
	}
	return string(data), nil
}
