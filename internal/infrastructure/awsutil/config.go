// Package awsutil loads the shared AWS configuration for SQS, S3 and DynamoDB clients.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
)

// Load resolves credentials and region through the default chain. A non-empty
// endpoint (e.g. http://localstack:4566) overrides every service endpoint.
func Load(ctx context.Context, region, endpoint string) (aws.Config, error) {
	opts := []func(*awsCfg.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsCfg.WithRegion(region))
	}
	if endpoint != "" {
		opts = append(opts, awsCfg.WithBaseEndpoint(endpoint))
	}
	cfg, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
