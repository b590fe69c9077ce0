package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
)

type S3Config struct {
	Profile string
	Region  string
}

// S3Client serves s3://bucket/key mirror URLs.
type S3Client struct {
	client *s3.Client
}

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	log.Debug().Str("op", "transport/s3").Msgf("s3 client ready (profile %q, region %q)", cfg.Profile, awsCfg.Region)
	return &S3Client{client: s3.NewFromConfig(awsCfg)}, nil
}

func (c *S3Client) Open(ctx context.Context, rawURL string, offset int64) (*Stream, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, &utils.TransferError{URL: rawURL, Err: err}
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, s3TransferError(rawURL, err)
	}
	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return &Stream{
		Body:          out.Body,
		ContentLength: length,
		Partial:       offset > 0 && out.ContentRange != nil,
	}, nil
}

func s3TransferError(rawURL string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return &utils.TransferError{URL: rawURL, StatusCode: http.StatusRequestedRangeNotSatisfiable, Err: utils.ErrRangeNotSatisfiable}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return &utils.TransferError{URL: rawURL, StatusCode: statusErr.HTTPStatusCode(), Err: err}
	}
	return &utils.TransferError{URL: rawURL, Err: err}
}

func parseS3URL(rawURL string) (string, string, error) {
	rest, ok := strings.CutPrefix(rawURL, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URL format: %s", rawURL)
	}
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" || len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format: %s", rawURL)
	}
	return parts[0], parts[1], nil
}
