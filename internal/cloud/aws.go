// Package cloud holds the AWS clients and the read-only lookups the
// provisioning units run before touching any stack.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/edvin/frontstack/internal/config"
)

// LoadAWSConfig resolves region and credentials. Static keys from the config
// take precedence over the default credential chain.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Clients bundles one client per AWS service frontstack talks to.
type Clients struct {
	CloudFormation *cloudformation.Client
	S3             *s3.Client
	Route53        *route53.Client
	ECR            *ecr.Client
	STS            *sts.Client
	SecretsManager *secretsmanager.Client
	ECS            *ecs.Client
	CodePipeline   *codepipeline.Client
}

func NewClients(awsCfg aws.Config) *Clients {
	return &Clients{
		CloudFormation: cloudformation.NewFromConfig(awsCfg),
		S3:             s3.NewFromConfig(awsCfg),
		Route53:        route53.NewFromConfig(awsCfg),
		ECR:            ecr.NewFromConfig(awsCfg),
		STS:            sts.NewFromConfig(awsCfg),
		SecretsManager: secretsmanager.NewFromConfig(awsCfg),
		ECS:            ecs.NewFromConfig(awsCfg),
		CodePipeline:   codepipeline.NewFromConfig(awsCfg),
	}
}

// Inspector returns the lookups backed by these clients.
func (c *Clients) Inspector() *Inspector {
	return NewInspector(c.Route53, c.ECR, c.STS, c.SecretsManager, c.ECS, c.CodePipeline)
}
