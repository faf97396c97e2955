package stack

import (
	"context"
	"fmt"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
)

const (
	sourceAction   = "GitHub_Source"
	sourceArtifact = "SourceOutput"
	buildArtifact  = "BuildOutput"
)

// Pipeline provisions the Source, Build and Deploy release pipeline.
type Pipeline struct {
	prefix          string
	desc            model.Pipeline
	container       model.Container
	backendEndpoint string
	checker         Checker
}

func NewPipeline(prefix string, desc model.Pipeline, container model.Container, backendEndpoint string, checker Checker) *Pipeline {
	return &Pipeline{
		prefix:          prefix,
		desc:            desc,
		container:       container,
		backendEndpoint: backendEndpoint,
		checker:         checker,
	}
}

func (p *Pipeline) Name() string      { return PipelineUnit }
func (p *Pipeline) StackName() string { return StackName(p.prefix, PipelineUnit) }

func (p *Pipeline) Requires() []provision.Key {
	return []provision.Key{RepositoryURI, RepositoryARN, ClusterName, ServiceName, ContainerName, ExecutionRoleARN}
}

func (p *Pipeline) Produces() []provision.Key {
	return provision.OutputKeys(PipelineUnit, OutputPipelineName, OutputArtifactBucket, OutputBuildProject)
}

func (p *Pipeline) Validate() error {
	if err := p.desc.Validate(); err != nil {
		return err
	}
	return p.container.Validate()
}

func (p *Pipeline) Resolve(context.Context, provision.Outputs) (provision.Outputs, error) {
	return nil, nil
}

// Preflight checks that the source credential exists and that the deployed
// service runs the container the manifest will name.
func (p *Pipeline) Preflight(ctx context.Context, in provision.Outputs, _ bool) error {
	deployed, err := in.Get(ContainerName)
	if err != nil {
		return err
	}
	if deployed != p.container.Name {
		return fmt.Errorf("%w: service runs %q, pipeline would deploy %q", ErrContainerMismatch, deployed, p.container.Name)
	}
	return p.checker.SecretExists(ctx, p.desc.Source.CredentialARN)
}

func (p *Pipeline) Template(in provision.Outputs) (*cfn.Template, error) {
	vals := make(map[provision.Key]string, len(p.Requires()))
	for _, k := range p.Requires() {
		v, err := in.Get(k)
		if err != nil {
			return nil, err
		}
		vals[k] = v
	}

	spec, err := renderBuildspec(p.desc, p.container, p.backendEndpoint)
	if err != nil {
		return nil, err
	}

	t := cfn.New("Release pipeline for the web front end")
	t.Add("ArtifactBucket", cfn.S3Bucket, cfn.Props{
		"BucketEncryption": map[string]any{
			"ServerSideEncryptionConfiguration": []any{map[string]any{
				"ServerSideEncryptionByDefault": map[string]any{"SSEAlgorithm": "AES256"},
			}},
		},
		"PublicAccessBlockConfiguration": map[string]any{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	}).WithRemoval(cfn.PolicyRetain)

	bucketARN := cfn.GetAtt("ArtifactBucket", "Arn")
	bucketObjects := cfn.Join("", bucketARN, "/*")

	t.Add("BuildRole", cfn.IAMRole, cfn.Props{
		"AssumeRolePolicyDocument": assumeRolePolicy("codebuild.amazonaws.com"),
		"Policies": []any{inlinePolicy("BuildAndPush",
			allow([]string{"ecr:GetAuthorizationToken"}, allResources),
			allow(ecrPushActions, vals[RepositoryARN]),
			allow([]string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
				cfn.Sub("arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/${AWS::StackName}-build"),
				cfn.Sub("arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/${AWS::StackName}-build:*"),
			),
			allow(artifactActions, bucketARN, bucketObjects),
		)},
	})

	t.Add("BuildProject", cfn.CodeBuildProject, cfn.Props{
		"Name":        cfn.Sub("${AWS::StackName}-build"),
		"ServiceRole": cfn.GetAtt("BuildRole", "Arn"),
		"Artifacts":   map[string]any{"Type": "CODEPIPELINE"},
		"Source": map[string]any{
			"Type":      "CODEPIPELINE",
			"BuildSpec": spec,
		},
		"Environment": map[string]any{
			"Type":           "LINUX_CONTAINER",
			"ComputeType":    "BUILD_GENERAL1_SMALL",
			"Image":          p.desc.BuildImage,
			"PrivilegedMode": true,
			"EnvironmentVariables": []any{map[string]any{
				"Name":  repoURIVar,
				"Type":  "PLAINTEXT",
				"Value": vals[RepositoryURI],
			}},
		},
	})

	t.Add("PipelineRole", cfn.IAMRole, cfn.Props{
		"AssumeRolePolicyDocument": assumeRolePolicy("codepipeline.amazonaws.com"),
		"Policies": []any{inlinePolicy("ReleaseStages",
			allow([]string{"secretsmanager:GetSecretValue"}, p.desc.Source.CredentialARN),
			allow([]string{"sts:AssumeRole"}, cfn.GetAtt("BuildRole", "Arn")),
			allow([]string{"codebuild:StartBuild", "codebuild:BatchGetBuilds", "codebuild:StopBuild"}, cfn.GetAtt("BuildProject", "Arn")),
			allow(artifactActions, bucketARN, bucketObjects),
			allow([]string{"iam:PassRole"}, vals[ExecutionRoleARN]),
			allow([]string{
				"ecs:DescribeServices",
				"ecs:DescribeTaskDefinition",
				"ecs:DescribeTasks",
				"ecs:ListTasks",
				"ecs:RegisterTaskDefinition",
				"ecs:UpdateService",
				"elasticloadbalancing:DescribeTargetGroups",
				"elasticloadbalancing:DescribeTargetHealth",
			}, allResources),
		)},
	})

	oauth := cfn.SecretsManagerReference(p.desc.Source.CredentialARN)
	t.Add("Pipeline", cfn.CodePipelinePipeline, cfn.Props{
		"Name":    p.desc.Name,
		"RoleArn": cfn.GetAtt("PipelineRole", "Arn"),
		"ArtifactStore": map[string]any{
			"Type":     "S3",
			"Location": cfn.Ref("ArtifactBucket"),
		},
		"Stages": []any{
			stage("Source", map[string]any{
				"Name":         sourceAction,
				"ActionTypeId": actionType("Source", "ThirdParty", "GitHub"),
				"Configuration": map[string]any{
					"Owner":                p.desc.Source.Owner,
					"Repo":                 p.desc.Source.Repo,
					"Branch":               p.desc.Source.Branch,
					"OAuthToken":           oauth,
					"PollForSourceChanges": false,
				},
				"OutputArtifacts": artifacts(sourceArtifact),
				"RunOrder":        1,
			}),
			stage("Build", map[string]any{
				"Name":            "CodeBuild",
				"ActionTypeId":    actionType("Build", "AWS", "CodeBuild"),
				"Configuration":   map[string]any{"ProjectName": cfn.Ref("BuildProject")},
				"InputArtifacts":  artifacts(sourceArtifact),
				"OutputArtifacts": artifacts(buildArtifact),
				"RunOrder":        1,
			}),
			stage("Deploy", map[string]any{
				"Name":         "ECS_Deploy",
				"ActionTypeId": actionType("Deploy", "AWS", "ECS"),
				"Configuration": map[string]any{
					"ClusterName": vals[ClusterName],
					"ServiceName": vals[ServiceName],
					"FileName":    p.desc.ManifestFile,
				},
				"InputArtifacts": artifacts(buildArtifact),
				"RunOrder":       1,
			}),
		},
	})

	t.Add("SourceWebhook", cfn.CodePipelineWebhook, cfn.Props{
		"Authentication":              "GITHUB_HMAC",
		"AuthenticationConfiguration": map[string]any{"SecretToken": oauth},
		"Filters": []any{map[string]any{
			"JsonPath":    "$.ref",
			"MatchEquals": "refs/heads/" + p.desc.Source.Branch,
		}},
		"TargetPipeline":         cfn.Ref("Pipeline"),
		"TargetPipelineVersion":  cfn.GetAtt("Pipeline", "Version"),
		"TargetAction":           sourceAction,
		"RegisterWithThirdParty": true,
	})

	t.Output(OutputPipelineName, cfn.Ref("Pipeline"), "", "")
	t.Output(OutputArtifactBucket, cfn.Ref("ArtifactBucket"), "", "")
	t.Output(OutputBuildProject, cfn.Ref("BuildProject"), "", "")
	return t, nil
}

func stage(name string, action map[string]any) map[string]any {
	return map[string]any{
		"Name":    name,
		"Actions": []any{action},
	}
}

func actionType(category, owner, provider string) map[string]any {
	return map[string]any{
		"Category": category,
		"Owner":    owner,
		"Provider": provider,
		"Version":  "1",
	}
}

func artifacts(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = map[string]any{"Name": n}
	}
	return out
}
