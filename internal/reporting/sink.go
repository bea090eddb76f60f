package reporting

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Sink stores an encoded report.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	String() string
}

// FileSink writes reports to a local path.
type FileSink struct {
	Path string
}

func (s *FileSink) Write(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) String() string { return s.Path }

// ObjectPutter is the part of the S3 client the sink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports to a bucket.
type S3Sink struct {
	Bucket string
	Key    string
	client ObjectPutter
}

// S3Options configure the S3 client.
type S3Options struct {
	Region    string
	Endpoint  string // S3-compatible endpoint, empty for AWS
	AccessKey string // static credentials, empty for the default chain
	SecretKey string
}

// NewS3Sink creates an S3 sink for bucket and key.
func NewS3Sink(ctx context.Context, bucket, key string, opts S3Options) (*S3Sink, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{Bucket: bucket, Key: key, client: client}, nil
}

func (s *S3Sink) Write(ctx context.Context, data []byte) error {
	contentType := "application/json"
	if FormatFor(s.Key) == FormatCSV {
		contentType = "text/csv"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", s.Bucket, s.Key, err)
	}
	return nil
}

func (s *S3Sink) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// ParseS3 splits an s3://bucket/key destination.
func ParseS3(destination string) (bucket, key string, err error) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", "", fmt.Errorf("parse destination: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 destination: %s", destination)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 destination needs bucket and key: %s", destination)
	}
	return bucket, key, nil
}

// OpenSink returns the sink for destination: s3://bucket/key or a file path.
func OpenSink(ctx context.Context, destination string, opts S3Options) (Sink, error) {
	if strings.HasPrefix(destination, "s3://") {
		bucket, key, err := ParseS3(destination)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(ctx, bucket, key, opts)
	}
	if destination == "" {
		return nil, fmt.Errorf("report destination is empty")
	}
	return &FileSink{Path: destination}, nil
}

// Publish encodes report for destination and writes it there.
func Publish(ctx context.Context, report *Report, destination string, opts S3Options, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink, err := OpenSink(ctx, destination, opts)
	if err != nil {
		return err
	}
	data, err := Export(report, FormatFor(destination))
	if err != nil {
		return err
	}
	if err := sink.Write(ctx, data); err != nil {
		return err
	}
	logger.Info("report written", zap.String("destination", sink.String()), zap.String("report_id", report.ID))
	return nil
}
