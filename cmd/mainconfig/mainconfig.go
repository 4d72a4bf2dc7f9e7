package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
)

// LoadAWSConfig builds the AWS SDK config shared by the memory queue, SES and
// Bedrock clients. AWS_ENDPOINT_OVERRIDE points SQS and SES at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				if !overridden(service) {
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
				return aws.Endpoint{
					URL:           endpoint,
					PartitionID:   "aws",
					SigningRegion: cfg.AWSRegion,
				}, nil
			},
		)
	}

	return awsCfg, nil
}

func overridden(service string) bool {
	switch service {
	case sqs.ServiceID, sesv2.ServiceID:
		return true
	}
	return false
}
