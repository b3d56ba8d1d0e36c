package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when neither the shared config nor AWS_REGION
// names one. The shop runs out of Sydney.
const DefaultRegion = "ap-southeast-2"

// LoadAWSConfig resolves credentials the usual SDK way. AWS_ENDPOINT points
// every client at LocalStack during development; explicit
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY pairs are used as static
// credentials.
func LoadAWSConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (sdkaws.Config, error) {
	opts := append([]func(*config.LoadOptions) error{}, optFns...)
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN")),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return sdkaws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if endpoint := os.Getenv("AWS_ENDPOINT"); endpoint != "" {
		cfg.BaseEndpoint = sdkaws.String(endpoint)
	}
	return cfg, nil
}
