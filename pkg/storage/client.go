// Package storage uploads exported CSV documents to S3.
package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/roivol/roivol/pkg/errors"
)

// CSVContentType matches the type browsers use for the downloaded document.
const CSVContentType = "text/csv;charset=utf-8"

// objectPutter is the part of the S3 API uploads need.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client provides S3 storage operations
type Client struct {
	s3Client objectPutter
	bucket   string
	prefix   string
}

// NewClient creates a new S3 client using the default credential chain
func NewClient(ctx context.Context, bucket, region, prefix string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region, "prefix", prefix)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg)

	slog.Info("s3_client_created", "bucket", bucket)

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// ObjectKey joins the configured prefix and a file name into an object key.
func ObjectKey(prefix, fileName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fileName
	}
	return path.Join(prefix, fileName)
}

// Upload stores body under the prefixed file name and returns its s3:// location.
func (c *Client) Upload(ctx context.Context, fileName string, body []byte, contentType string) (string, error) {
	key := ObjectKey(c.prefix, fileName)
	slog.Info("s3_upload_start", "bucket", c.bucket, "s3_key", key, "bytes", len(body))

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return "", errors.Wrap(err, "failed to upload to S3")
	}

	location := "s3://" + c.bucket + "/" + key
	slog.Info("s3_upload_complete", "location", location)
	return location, nil
}
