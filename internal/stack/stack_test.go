package stack

import (
	"context"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/cloud"
	"github.com/edvin/frontstack/internal/deployer"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) RepositoryExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockChecker) ImageExists(ctx context.Context, repository, tag string) (bool, error) {
	args := m.Called(ctx, repository, tag)
	return args.Bool(0), args.Error(1)
}

func (m *mockChecker) HostedZone(ctx context.Context, domain string) (*cloud.Zone, error) {
	args := m.Called(ctx, domain)
	if z := args.Get(0); z != nil {
		return z.(*cloud.Zone), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockChecker) SecretExists(ctx context.Context, arn string) error {
	return m.Called(ctx, arn).Error(0)
}

var _ Checker = (*cloud.Inspector)(nil)

const secretARN = "arn:aws:secretsmanager:eu-west-1:123456789012:secret:github-token-AbCdEf"

func testDescriptors() *model.Descriptors {
	d := model.Defaults()
	d.Compute.Edge.Domain = "app.example.com"
	d.Compute.BackendEndpoint = "http://backend.internal:80"
	d.Pipeline.Source = model.Source{Owner: "acme", Repo: "web", Branch: "main", CredentialARN: secretARN}
	return d
}

func registryOutputs() provision.Outputs {
	return provision.Outputs{
		RepositoryURI:  "123456789012.dkr.ecr.eu-west-1.amazonaws.com/nextjs-app",
		RepositoryARN:  "arn:aws:ecr:eu-west-1:123456789012:repository/nextjs-app",
		RepositoryName: "nextjs-app",
	}
}

func computeInputs() provision.Outputs {
	in := registryOutputs()
	in[hostedZoneID] = "Z123"
	return in
}

func pipelineInputs() provision.Outputs {
	in := registryOutputs()
	in[ClusterName] = "NextJsEcsStack-Cluster"
	in[ServiceName] = "NextJsEcsStack-Service"
	in[ContainerName] = "NextJsContainer"
	in[ExecutionRoleARN] = "arn:aws:iam::123456789012:role/exec"
	return in
}

func props(t *testing.T, tpl *cfn.Template, id string) cfn.Props {
	t.Helper()
	r, ok := tpl.Resource(id)
	require.True(t, ok, "resource %s", id)
	return r.Properties
}

func TestUnits_FormAValidGraph(t *testing.T) {
	units := Units("NextJs", testDescriptors(), new(mockChecker))

	g, err := provision.NewGraph(units...)
	require.NoError(t, err)

	var names, stacks []string
	for _, u := range g.Order() {
		names = append(names, u.Name())
		stacks = append(stacks, u.StackName())
		assert.NoError(t, u.Validate())
	}
	assert.Equal(t, []string{"registry", "compute", "pipeline"}, names)
	assert.Equal(t, []string{"NextJsEcrStack", "NextJsEcsStack", "NextJsPipelineStack"}, stacks)
}

func TestRegistry_Template(t *testing.T) {
	r := NewRegistry("NextJs", model.Defaults().Registry, new(mockChecker))

	tpl, err := r.Template(nil)
	require.NoError(t, err)

	p := props(t, tpl, "Repository")
	assert.Equal(t, "nextjs-app", p["RepositoryName"])
	assert.Equal(t, true, p["EmptyOnDelete"])

	var policy struct {
		Rules []struct {
			Selection struct {
				CountType   string `json:"countType"`
				CountUnit   string `json:"countUnit"`
				CountNumber int    `json:"countNumber"`
			} `json:"selection"`
			Action struct {
				Type string `json:"type"`
			} `json:"action"`
		} `json:"rules"`
	}
	text := p["LifecyclePolicy"].(map[string]any)["LifecyclePolicyText"].(string)
	require.NoError(t, json.Unmarshal([]byte(text), &policy))
	require.Len(t, policy.Rules, 1)
	assert.Equal(t, "sinceImagePushed", policy.Rules[0].Selection.CountType)
	assert.Equal(t, "days", policy.Rules[0].Selection.CountUnit)
	assert.Equal(t, 30, policy.Rules[0].Selection.CountNumber)
	assert.Equal(t, "expire", policy.Rules[0].Action.Type)

	res, _ := tpl.Resource("Repository")
	assert.Equal(t, cfn.PolicyDelete, res.DeletionPolicy)

	outputs := tpl.Outputs()
	assert.Contains(t, outputs, OutputRepositoryURI)
	assert.Contains(t, outputs, OutputRepositoryARN)
	assert.Contains(t, outputs, OutputRepositoryName)
}

func TestRegistry_RetainPolicy(t *testing.T) {
	repo := model.Defaults().Registry
	repo.RemovalPolicy = model.RemovalRetain
	tpl, err := NewRegistry("NextJs", repo, new(mockChecker)).Template(nil)
	require.NoError(t, err)

	res, _ := tpl.Resource("Repository")
	assert.Equal(t, cfn.PolicyRetain, res.DeletionPolicy)
	assert.Equal(t, false, res.Properties["EmptyOnDelete"])
}

func TestRegistry_PreflightConflict(t *testing.T) {
	checker := new(mockChecker)
	checker.On("RepositoryExists", mock.Anything, "nextjs-app").Return(true, nil)
	r := NewRegistry("NextJs", model.Defaults().Registry, checker)

	err := r.Preflight(context.Background(), nil, false)
	assert.ErrorIs(t, err, deployer.ErrConflict)

	// Once the stack owns the repository there is nothing to check.
	require.NoError(t, r.Preflight(context.Background(), nil, true))
	checker.AssertNumberOfCalls(t, "RepositoryExists", 1)
}

func TestRegistry_PreflightFreshName(t *testing.T) {
	checker := new(mockChecker)
	checker.On("RepositoryExists", mock.Anything, "nextjs-app").Return(false, nil)

	err := NewRegistry("NextJs", model.Defaults().Registry, checker).Preflight(context.Background(), nil, false)
	assert.NoError(t, err)
}

func TestCarve(t *testing.T) {
	cidr := netip.MustParsePrefix("10.0.0.0/16")

	tests := []struct {
		index int
		want  string
	}{
		{0, "10.0.0.0/24"},
		{1, "10.0.1.0/24"},
		{3, "10.0.3.0/24"},
		{255, "10.0.255.0/24"},
	}
	for _, tt := range tests {
		got, err := carve(cidr, 8, tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String())
	}

	_, err := carve(cidr, 8, 256)
	assert.Error(t, err)
	_, err = carve(netip.MustParsePrefix("10.0.0.0/24"), 8, 0)
	assert.Error(t, err)
	_, err = carve(netip.MustParsePrefix("fd00::/48"), 8, 0)
	assert.Error(t, err)
}

func TestCompute_NetworkSpansZones(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	subnets := tpl.ResourcesOfType(cfn.EC2Subnet)
	assert.Equal(t, []string{"PrivateSubnet1", "PrivateSubnet2", "PublicSubnet1", "PublicSubnet2"}, subnets)
	assert.Equal(t, "10.0.0.0/24", props(t, tpl, "PublicSubnet1")["CidrBlock"])
	assert.Equal(t, "10.0.2.0/24", props(t, tpl, "PrivateSubnet1")["CidrBlock"])
	assert.Len(t, tpl.ResourcesOfType(cfn.EC2NatGateway), 2)
}

func TestCompute_HTTPListenerAlwaysRedirects(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	listeners := tpl.ResourcesOfType(cfn.ElasticLoadBalancingListener)
	require.Equal(t, []string{"HttpListener", "HttpsListener"}, listeners)

	http := props(t, tpl, "HttpListener")
	assert.Equal(t, 80, http["Port"])
	actions := http["DefaultActions"].([]any)
	require.Len(t, actions, 1)
	action := actions[0].(map[string]any)
	assert.Equal(t, "redirect", action["Type"])
	redirect := action["RedirectConfig"].(map[string]any)
	assert.Equal(t, "HTTPS", redirect["Protocol"])
	assert.Equal(t, "443", redirect["Port"])
	assert.Equal(t, "HTTP_301", redirect["StatusCode"])

	https := props(t, tpl, "HttpsListener")
	assert.Equal(t, 443, https["Port"])
	assert.Equal(t, "HTTPS", https["Protocol"])
	fwd := https["DefaultActions"].([]any)[0].(map[string]any)
	assert.Equal(t, "forward", fwd["Type"])
}

func TestCompute_TargetGroupHealthCheck(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	tg := props(t, tpl, "TargetGroup")
	assert.Equal(t, "/api/health", tg["HealthCheckPath"])
	assert.Equal(t, 2, tg["HealthyThresholdCount"])
	assert.Equal(t, 2, tg["UnhealthyThresholdCount"])
	assert.Equal(t, 30, tg["HealthCheckIntervalSeconds"])
	assert.Equal(t, 5, tg["HealthCheckTimeoutSeconds"])
	assert.Equal(t, "ip", tg["TargetType"])
	assert.Equal(t, 3000, tg["Port"])
	assert.Equal(t, map[string]any{"HttpCode": "200"}, tg["Matcher"])
	attrs := tg["TargetGroupAttributes"].([]any)
	assert.Equal(t, "30", attrs[0].(map[string]any)["Value"])
}

func TestCompute_ServiceAndScaling(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	svc, _ := tpl.Resource("Service")
	assert.Equal(t, []string{"HttpsListener"}, svc.DependsOn)
	assert.Equal(t, 1, svc.Properties["DesiredCount"])
	assert.Equal(t, 60, svc.Properties["HealthCheckGracePeriodSeconds"])
	net := svc.Properties["NetworkConfiguration"].(map[string]any)["AwsvpcConfiguration"].(map[string]any)
	assert.Equal(t, "DISABLED", net["AssignPublicIp"])

	target := props(t, tpl, "ScalableTarget")
	assert.Equal(t, 1, target["MinCapacity"])
	assert.Equal(t, 2, target["MaxCapacity"])

	policy := props(t, tpl, "CpuScalingPolicy")["TargetTrackingScalingPolicyConfiguration"].(map[string]any)
	assert.Equal(t, 70.0, policy["TargetValue"])
	assert.Equal(t, 60, policy["ScaleInCooldown"])
	assert.Equal(t, 60, policy["ScaleOutCooldown"])
}

func TestCompute_TaskDefinition(t *testing.T) {
	desc := testDescriptors().Compute
	desc.Service.Environment = map[string]string{"NODE_ENV": "production", backendEnv: "http://ignored"}
	c := NewCompute("NextJs", desc, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	task := props(t, tpl, "TaskDefinition")
	assert.Equal(t, "256", task["Cpu"])
	assert.Equal(t, "512", task["Memory"])

	def := task["ContainerDefinitions"].([]any)[0].(map[string]any)
	assert.Equal(t, "NextJsContainer", def["Name"])
	assert.Equal(t, "123456789012.dkr.ecr.eu-west-1.amazonaws.com/nextjs-app:latest", def["Image"])
	assert.Equal(t, []any{
		map[string]any{"Name": "NEXT_PUBLIC_API_ENDPOINT", "Value": "http://backend.internal:80"},
		map[string]any{"Name": "NODE_ENV", "Value": "production"},
	}, def["Environment"])

	logs := def["LogConfiguration"].(map[string]any)
	assert.Equal(t, "awslogs", logs["LogDriver"])
	assert.Equal(t, "NextJsLogs", logs["Options"].(map[string]any)["awslogs-stream-prefix"])

	// The execution role pulls only from the repository and writes only to
	// the service log group.
	body, err := json.Marshal(props(t, tpl, "ExecutionRole")["Policies"])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"arn:aws:ecr:eu-west-1:123456789012:repository/nextjs-app"`)
	assert.Contains(t, string(body), `"Fn::GetAtt":["LogGroup","Arn"]`)
	assert.NotContains(t, string(body), "ecr:PutImage")
}

func TestCompute_CertificateAndDNS(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	cert := props(t, tpl, "Certificate")
	assert.Equal(t, "app.example.com", cert["DomainName"])
	assert.Equal(t, "DNS", cert["ValidationMethod"])
	opts := cert["DomainValidationOptions"].([]any)[0].(map[string]any)
	assert.Equal(t, "Z123", opts["HostedZoneId"])

	rec := props(t, tpl, "AliasRecord")
	assert.Equal(t, "app.example.com.", rec["Name"])
	assert.Equal(t, "A", rec["Type"])

	outputs := tpl.Outputs()
	assert.Equal(t, "https://app.example.com", outputs[OutputServiceURL].Value)
	assert.Equal(t, "NextJsContainer", outputs[OutputContainerName].Value)
	assert.True(t, c.HasCertificate())
}

func TestCompute_RetainNetwork(t *testing.T) {
	desc := testDescriptors().Compute
	desc.Network.RetainOnDestroy = true
	c := NewCompute("NextJs", desc, model.Defaults().Container, new(mockChecker))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)

	vpc, _ := tpl.Resource("Vpc")
	assert.Equal(t, cfn.PolicyRetain, vpc.DeletionPolicy)
}

func TestCompute_RenderIsDeterministic(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))

	first, err := c.Template(computeInputs())
	require.NoError(t, err)
	second, err := c.Template(computeInputs())
	require.NoError(t, err)

	a, err := first.Render()
	require.NoError(t, err)
	b, err := second.Render()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompute_TemplateNeedsUpstream(t *testing.T) {
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, new(mockChecker))
	in := computeInputs()
	delete(in, RepositoryARN)

	_, err := c.Template(in)
	assert.ErrorIs(t, err, provision.ErrMissingUpstream)
}

func TestCompute_ValidateScalingBounds(t *testing.T) {
	desc := testDescriptors().Compute
	desc.Service.Scaling.MinCapacity = 3
	desc.Service.Scaling.MaxCapacity = 2

	err := NewCompute("NextJs", desc, model.Defaults().Container, new(mockChecker)).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_capacity")
}

func TestCompute_Resolve(t *testing.T) {
	checker := new(mockChecker)
	checker.On("HostedZone", mock.Anything, "app.example.com").Return(&cloud.Zone{ID: "Z9", Name: "app.example.com"}, nil)
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, checker)

	out, err := c.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Z9", out[hostedZoneID])
}

func TestCompute_ResolveMissingZone(t *testing.T) {
	checker := new(mockChecker)
	checker.On("HostedZone", mock.Anything, "app.example.com").Return(nil, cloud.ErrZoneNotFound)
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, checker)

	_, err := c.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, cloud.ErrZoneNotFound)
}

func TestCompute_ResolveRejectsParentZone(t *testing.T) {
	checker := new(mockChecker)
	checker.On("HostedZone", mock.Anything, "app.example.com").Return(&cloud.Zone{ID: "Z1", Name: "example.com"}, nil)
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, checker)

	out, err := c.Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "hosted zone example.com does not serve app.example.com")
}

func TestCompute_PreflightNeedsImage(t *testing.T) {
	checker := new(mockChecker)
	checker.On("ImageExists", mock.Anything, "nextjs-app", "latest").Return(false, nil).Once()
	c := NewCompute("NextJs", testDescriptors().Compute, model.Defaults().Container, checker)

	err := c.Preflight(context.Background(), computeInputs(), false)
	assert.ErrorIs(t, err, ErrNoImage)

	checker.On("ImageExists", mock.Anything, "nextjs-app", "latest").Return(true, nil).Once()
	assert.NoError(t, c.Preflight(context.Background(), computeInputs(), false))
}

func TestPipeline_Stages(t *testing.T) {
	d := testDescriptors()
	p := NewPipeline("NextJs", d.Pipeline, d.Container, d.Compute.BackendEndpoint, new(mockChecker))
	tpl, err := p.Template(pipelineInputs())
	require.NoError(t, err)

	pipe := props(t, tpl, "Pipeline")
	stages := pipe["Stages"].([]any)
	require.Len(t, stages, 3)

	var names []string
	for _, s := range stages {
		names = append(names, s.(map[string]any)["Name"].(string))
	}
	assert.Equal(t, []string{"Source", "Build", "Deploy"}, names)

	source := stages[0].(map[string]any)["Actions"].([]any)[0].(map[string]any)
	cfg := source["Configuration"].(map[string]any)
	assert.Equal(t, "{{resolve:secretsmanager:"+secretARN+":SecretString:::}}", cfg["OAuthToken"])
	assert.Equal(t, "main", cfg["Branch"])

	deploy := stages[2].(map[string]any)["Actions"].([]any)[0].(map[string]any)
	dcfg := deploy["Configuration"].(map[string]any)
	assert.Equal(t, "NextJsEcsStack-Cluster", dcfg["ClusterName"])
	assert.Equal(t, "imagedefinitions.json", dcfg["FileName"])

	hook := props(t, tpl, "SourceWebhook")
	filter := hook["Filters"].([]any)[0].(map[string]any)
	assert.Equal(t, "refs/heads/main", filter["MatchEquals"])

	bucket, _ := tpl.Resource("ArtifactBucket")
	assert.Equal(t, cfn.PolicyRetain, bucket.DeletionPolicy)

	build := props(t, tpl, "BuildProject")["Environment"].(map[string]any)
	assert.Equal(t, true, build["PrivilegedMode"])
	assert.Equal(t, "aws/codebuild/standard:5.0", build["Image"])
}

func TestPipeline_NeverEmbedsTheToken(t *testing.T) {
	d := testDescriptors()
	p := NewPipeline("NextJs", d.Pipeline, d.Container, d.Compute.BackendEndpoint, new(mockChecker))
	tpl, err := p.Template(pipelineInputs())
	require.NoError(t, err)

	body, err := tpl.Render()
	require.NoError(t, err)
	for _, line := range strings.Split(string(body), "\n") {
		if strings.Contains(line, secretARN) {
			assert.True(t, strings.Contains(line, "resolve:secretsmanager") || strings.Contains(line, `"`+secretARN+`"`), line)
		}
	}
}

func TestPipeline_RolesAreScoped(t *testing.T) {
	d := testDescriptors()
	p := NewPipeline("NextJs", d.Pipeline, d.Container, d.Compute.BackendEndpoint, new(mockChecker))
	tpl, err := p.Template(pipelineInputs())
	require.NoError(t, err)

	role, err := json.Marshal(props(t, tpl, "PipelineRole")["Policies"])
	require.NoError(t, err)
	assert.Contains(t, string(role), `"Action":["iam:PassRole"],"Effect":"Allow","Resource":["arn:aws:iam::123456789012:role/exec"]`)
	assert.Contains(t, string(role), `"Action":["secretsmanager:GetSecretValue"],"Effect":"Allow","Resource":["`+secretARN+`"]`)

	build, err := json.Marshal(props(t, tpl, "BuildRole")["Policies"])
	require.NoError(t, err)
	assert.Contains(t, string(build), `"Action":["ecr:GetAuthorizationToken"],"Effect":"Allow","Resource":["*"]`)
	assert.Contains(t, string(build), "ecr:PutImage")
}

func TestBuildspec_ManifestNamesSharedContainer(t *testing.T) {
	d := testDescriptors()
	spec, err := renderBuildspec(d.Pipeline, d.Container, d.Compute.BackendEndpoint)
	require.NoError(t, err)

	var parsed struct {
		Version string `yaml:"version"`
		Phases  map[string]struct {
			Commands []string `yaml:"commands"`
		} `yaml:"phases"`
		Artifacts struct {
			Files []string `yaml:"files"`
		} `yaml:"artifacts"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(spec), &parsed))
	assert.Equal(t, "0.2", parsed.Version)
	assert.Equal(t, []string{"imagedefinitions.json"}, parsed.Artifacts.Files)

	build := parsed.Phases["build"].Commands
	assert.Contains(t, build, "docker build -t $ECR_REPO_URI:latest --build-arg NEXT_PUBLIC_API_ENDPOINT='http://backend.internal:80' .")

	post := parsed.Phases["post_build"].Commands
	require.Len(t, post, 3)
	assert.Equal(t, "docker push $ECR_REPO_URI:latest", post[1])

	// Expand the printf the way the build shell would and check the result
	// is the one-element manifest for the shared container.
	cmd := post[2]
	format := cmd[strings.Index(cmd, "'")+1 : strings.LastIndex(cmd, "'")]
	doc := strings.Replace(format, "%s", "repo:latest", 1)

	var m model.Manifest
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	assert.Equal(t, model.NewManifest(d.Container, "repo:latest"), m)
	assert.True(t, strings.HasSuffix(cmd, `"$ECR_REPO_URI:latest" > imagedefinitions.json`))
}

func TestUnits_ShareImageTag(t *testing.T) {
	d := testDescriptors()
	d.Container.ImageTag = "v2"
	checker := new(mockChecker)
	checker.On("ImageExists", mock.Anything, "nextjs-app", "v2").Return(true, nil)

	c := NewCompute("NextJs", d.Compute, d.Container, checker)
	require.NoError(t, c.Preflight(context.Background(), computeInputs(), false))
	tpl, err := c.Template(computeInputs())
	require.NoError(t, err)
	def := props(t, tpl, "TaskDefinition")["ContainerDefinitions"].([]any)[0].(map[string]any)
	assert.Equal(t, "123456789012.dkr.ecr.eu-west-1.amazonaws.com/nextjs-app:v2", def["Image"])

	spec, err := renderBuildspec(d.Pipeline, d.Container, d.Compute.BackendEndpoint)
	require.NoError(t, err)
	var parsed struct {
		Phases map[string]struct {
			Commands []string `yaml:"commands"`
		} `yaml:"phases"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(spec), &parsed))
	post := parsed.Phases["post_build"].Commands
	require.Len(t, post, 3)
	assert.Equal(t, "docker push $ECR_REPO_URI:v2", post[1])
	assert.True(t, strings.HasSuffix(post[2], `"$ECR_REPO_URI:v2" > imagedefinitions.json`))
	checker.AssertExpectations(t)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestPipeline_PreflightContainerMismatch(t *testing.T) {
	d := testDescriptors()
	checker := new(mockChecker)
	p := NewPipeline("NextJs", d.Pipeline, d.Container, d.Compute.BackendEndpoint, checker)

	in := pipelineInputs()
	in[ContainerName] = "OtherContainer"
	err := p.Preflight(context.Background(), in, false)
	assert.ErrorIs(t, err, ErrContainerMismatch)
	checker.AssertNotCalled(t, "SecretExists", mock.Anything, mock.Anything)
}

func TestPipeline_PreflightSecret(t *testing.T) {
	d := testDescriptors()
	checker := new(mockChecker)
	checker.On("SecretExists", mock.Anything, secretARN).Return(cloud.ErrSecretNotFound)
	p := NewPipeline("NextJs", d.Pipeline, d.Container, d.Compute.BackendEndpoint, checker)

	err := p.Preflight(context.Background(), pipelineInputs(), false)
	assert.ErrorIs(t, err, cloud.ErrSecretNotFound)
}

func TestPipeline_ValidateRequiresSource(t *testing.T) {
	d := model.Defaults()
	p := NewPipeline("NextJs", d.Pipeline, d.Container, "http://backend", new(mockChecker))

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.owner")
}
