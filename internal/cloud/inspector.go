package cloud

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/edvin/frontstack/internal/deployer"
)

var (
	ErrZoneNotFound    = errors.New("hosted zone not found")
	ErrSecretNotFound  = errors.New("secret not found")
	ErrAccountMismatch = errors.New("credentials belong to a different account")
)

type Route53API interface {
	ListHostedZonesByName(ctx context.Context, in *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
}

type ECRAPI interface {
	DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, in *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	GetAuthorizationToken(ctx context.Context, in *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type SecretsAPI interface {
	DescribeSecret(ctx context.Context, in *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

type ECSAPI interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
}

type PipelineAPI interface {
	GetPipelineState(ctx context.Context, in *codepipeline.GetPipelineStateInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
	GetPipelineExecution(ctx context.Context, in *codepipeline.GetPipelineExecutionInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineExecutionOutput, error)
	StartPipelineExecution(ctx context.Context, in *codepipeline.StartPipelineExecutionInput, optFns ...func(*codepipeline.Options)) (*codepipeline.StartPipelineExecutionOutput, error)
}

// Zone is a public Route 53 hosted zone.
type Zone struct {
	ID   string
	Name string
}

// ServiceStatus is a summary of an ECS service.
type ServiceStatus struct {
	Name         string
	Status       string
	Desired      int32
	Running      int32
	Pending      int32
	RolloutState string
}

// StageStatus is the latest execution state of one pipeline stage.
type StageStatus struct {
	Name        string
	Status      string
	ExecutionID string
}

// Inspector runs read-only lookups against AWS.
type Inspector struct {
	route53  Route53API
	ecr      ECRAPI
	sts      STSAPI
	secrets  SecretsAPI
	ecs      ECSAPI
	pipeline PipelineAPI

	pollInterval time.Duration
}

func NewInspector(r Route53API, e ECRAPI, s STSAPI, sm SecretsAPI, c ECSAPI, p PipelineAPI) *Inspector {
	return &Inspector{
		route53:      r,
		ecr:          e,
		sts:          s,
		secrets:      sm,
		ecs:          c,
		pipeline:     p,
		pollInterval: 15 * time.Second,
	}
}

// HostedZone finds the public hosted zone whose name is exactly domain.
func (i *Inspector) HostedZone(ctx context.Context, domain string) (*Zone, error) {
	want := strings.TrimSuffix(strings.ToLower(domain), ".") + "."
	out, err := i.route53.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(want),
		MaxItems: aws.Int32(10),
	})
	if err != nil {
		return nil, fmt.Errorf("list hosted zones for %s: %w", domain, err)
	}
	for _, z := range out.HostedZones {
		if strings.ToLower(aws.ToString(z.Name)) != want {
			continue
		}
		if z.Config != nil && z.Config.PrivateZone {
			continue
		}
		return &Zone{
			ID:   strings.TrimPrefix(aws.ToString(z.Id), "/hostedzone/"),
			Name: strings.TrimSuffix(aws.ToString(z.Name), "."),
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", domain, ErrZoneNotFound)
}

// RepositoryExists reports whether an ECR repository with this name exists.
func (i *Inspector) RepositoryExists(ctx context.Context, name string) (bool, error) {
	_, err := i.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}})
	if err != nil {
		if hasCode(err, "RepositoryNotFoundException") {
			return false, nil
		}
		return false, fmt.Errorf("describe repository %s: %w", name, err)
	}
	return true, nil
}

// ImageExists reports whether the repository holds an image with this tag.
func (i *Inspector) ImageExists(ctx context.Context, repository, tag string) (bool, error) {
	out, err := i.ecr.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repository),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		if hasCode(err, "ImageNotFoundException", "RepositoryNotFoundException") {
			return false, nil
		}
		return false, fmt.Errorf("describe images %s:%s: %w", repository, tag, err)
	}
	return len(out.ImageDetails) > 0, nil
}

// RegistryAuth exchanges the caller's credentials for a registry login.
func (i *Inspector) RegistryAuth(ctx context.Context) (deployer.RegistryAuth, error) {
	out, err := i.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return deployer.RegistryAuth{}, fmt.Errorf("get ecr authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return deployer.RegistryAuth{}, fmt.Errorf("get ecr authorization token: empty response")
	}
	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return deployer.RegistryAuth{}, fmt.Errorf("decode ecr authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return deployer.RegistryAuth{}, fmt.Errorf("decode ecr authorization token: malformed token")
	}
	return deployer.RegistryAuth{
		Username: user,
		Password: pass,
		Server:   aws.ToString(data.ProxyEndpoint),
	}, nil
}

// CheckAccount verifies the credentials belong to the expected account.
func (i *Inspector) CheckAccount(ctx context.Context, account string) error {
	out, err := i.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("get caller identity: %w", err)
	}
	if got := aws.ToString(out.Account); got != account {
		return fmt.Errorf("%w: expected %s, got %s (%s)", ErrAccountMismatch, account, got, aws.ToString(out.Arn))
	}
	return nil
}

// SecretExists checks the secret's metadata. The secret value is never read.
func (i *Inspector) SecretExists(ctx context.Context, arn string) error {
	out, err := i.secrets.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(arn)})
	if err != nil {
		if hasCode(err, "ResourceNotFoundException") {
			return fmt.Errorf("%s: %w", arn, ErrSecretNotFound)
		}
		return fmt.Errorf("describe secret %s: %w", arn, err)
	}
	if out.DeletedDate != nil {
		return fmt.Errorf("%s is scheduled for deletion: %w", arn, ErrSecretNotFound)
	}
	return nil
}

// ServiceStatus describes an ECS service.
func (i *Inspector) ServiceStatus(ctx context.Context, cluster, service string) (*ServiceStatus, error) {
	out, err := i.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		return nil, fmt.Errorf("describe service %s/%s: %w", cluster, service, err)
	}
	if len(out.Services) == 0 {
		reason := "not found"
		if len(out.Failures) > 0 {
			reason = aws.ToString(out.Failures[0].Reason)
		}
		return nil, fmt.Errorf("describe service %s/%s: %s", cluster, service, reason)
	}

	svc := out.Services[0]
	st := &ServiceStatus{
		Name:    aws.ToString(svc.ServiceName),
		Status:  aws.ToString(svc.Status),
		Desired: svc.DesiredCount,
		Running: svc.RunningCount,
		Pending: svc.PendingCount,
	}
	for _, d := range svc.Deployments {
		if aws.ToString(d.Status) == "PRIMARY" {
			st.RolloutState = string(d.RolloutState)
		}
	}
	return st, nil
}

// PipelineStages returns the latest execution state of every stage.
func (i *Inspector) PipelineStages(ctx context.Context, name string) ([]StageStatus, error) {
	out, err := i.pipeline.GetPipelineState(ctx, &codepipeline.GetPipelineStateInput{Name: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("get pipeline state %s: %w", name, err)
	}
	stages := make([]StageStatus, 0, len(out.StageStates))
	for _, s := range out.StageStates {
		st := StageStatus{Name: aws.ToString(s.StageName)}
		if s.LatestExecution != nil {
			st.Status = string(s.LatestExecution.Status)
			st.ExecutionID = aws.ToString(s.LatestExecution.PipelineExecutionId)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// StartRelease starts a pipeline run and returns its execution ID.
func (i *Inspector) StartRelease(ctx context.Context, name string) (string, error) {
	out, err := i.pipeline.StartPipelineExecution(ctx, &codepipeline.StartPipelineExecutionInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("start pipeline %s: %w", name, err)
	}
	return aws.ToString(out.PipelineExecutionId), nil
}

// WaitRelease polls an execution until it finishes. A failed run returns
// ErrStageFailed naming the stage that failed. Nothing is retried.
func (i *Inspector) WaitRelease(ctx context.Context, name, executionID string) error {
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		out, err := i.pipeline.GetPipelineExecution(ctx, &codepipeline.GetPipelineExecutionInput{
			PipelineName:        aws.String(name),
			PipelineExecutionId: aws.String(executionID),
		})
		if err != nil {
			return fmt.Errorf("get pipeline execution %s: %w", executionID, err)
		}

		var status cptypes.PipelineExecutionStatus
		if out.PipelineExecution != nil {
			status = out.PipelineExecution.Status
		}
		switch status {
		case cptypes.PipelineExecutionStatusSucceeded:
			return nil
		case cptypes.PipelineExecutionStatusFailed,
			cptypes.PipelineExecutionStatusStopped,
			cptypes.PipelineExecutionStatusSuperseded:
			return i.stageFailure(ctx, name, executionID, string(status))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (i *Inspector) stageFailure(ctx context.Context, name, executionID, status string) error {
	stages, err := i.PipelineStages(ctx, name)
	if err == nil {
		for _, s := range stages {
			if s.ExecutionID == executionID && s.Status == string(cptypes.StageExecutionStatusFailed) {
				return fmt.Errorf("%w: pipeline %s stage %s (execution %s)", deployer.ErrStageFailed, name, s.Name, executionID)
			}
		}
	}
	return fmt.Errorf("%w: pipeline %s execution %s %s", deployer.ErrStageFailed, name, executionID, strings.ToLower(status))
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
