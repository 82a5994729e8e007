package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "optionflow/config"
	"optionflow/logger"
)

// ObjectPutter is the part of *s3.Client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Target encodes parquet in memory and uploads it with PutObject.
type s3Target struct {
	bucket      string
	compression string
	version     string
	client      ObjectPutter
}

// newS3Target builds the S3 client from the storage config. Static
// credentials are used when both keys are set, otherwise the default chain.
func newS3Target(cfg *appconfig.Config) (*s3Target, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 writer initialized")

	return &s3Target{
		bucket:      cfg.Storage.S3.Bucket,
		compression: cfg.Writer.Archive.Compression,
		version:     cfg.Optionflow.Version,
		client:      client,
	}, nil
}

func (t *s3Target) Name() string { return "s3" }

func (t *s3Target) Write(ctx context.Context, key string, rows []ParquetRecord) (int64, error) {
	data, err := EncodeParquet(rows, t.compression)
	if err != nil {
		return 0, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"compression":        t.compression,
			"optionflow-version": t.version,
		},
	}
	if _, err := t.client.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("failed to upload to S3 bucket %s: %w", t.bucket, err)
	}
	return int64(len(data)), nil
}
