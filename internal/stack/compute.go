package stack

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
)

// backendEnv is the variable the container reads the backend endpoint from.
const backendEnv = "NEXT_PUBLIC_API_ENDPOINT"

// Compute provisions the network, the Fargate service and its public entry
// point.
type Compute struct {
	prefix    string
	desc      model.Compute
	container model.Container
	checker   Checker
}

func NewCompute(prefix string, desc model.Compute, container model.Container, checker Checker) *Compute {
	return &Compute{prefix: prefix, desc: desc, container: container, checker: checker}
}

func (c *Compute) Name() string      { return ComputeUnit }
func (c *Compute) StackName() string { return StackName(c.prefix, ComputeUnit) }

// HasCertificate marks the stack as one whose deploy waits on certificate
// validation.
func (c *Compute) HasCertificate() bool { return true }

func (c *Compute) Requires() []provision.Key {
	return []provision.Key{RepositoryURI, RepositoryARN, RepositoryName}
}

func (c *Compute) Produces() []provision.Key {
	return provision.OutputKeys(ComputeUnit,
		OutputClusterName,
		OutputServiceName,
		OutputServiceARN,
		OutputContainerName,
		OutputExecutionRoleARN,
		OutputLoadBalancerDNS,
		OutputServiceURL,
	)
}

func (c *Compute) Validate() error {
	if err := c.desc.Validate(); err != nil {
		return err
	}
	return c.container.Validate()
}

// Resolve looks up the public hosted zone that serves the domain. The
// lookup is exact, so the certificate domain always equals the zone domain.
func (c *Compute) Resolve(ctx context.Context, _ provision.Outputs) (provision.Outputs, error) {
	zone, err := c.checker.HostedZone(ctx, c.desc.Edge.Domain)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(zone.Name, strings.TrimSuffix(c.desc.Edge.Domain, ".")) {
		return nil, fmt.Errorf("hosted zone %s does not serve %s", zone.Name, c.desc.Edge.Domain)
	}
	return provision.Outputs{hostedZoneID: zone.ID}, nil
}

// Preflight requires at least one image under the deployed tag, otherwise
// the service would never reach a steady state.
func (c *Compute) Preflight(ctx context.Context, in provision.Outputs, _ bool) error {
	repo, err := in.Get(RepositoryName)
	if err != nil {
		return err
	}
	ok, err := c.checker.ImageExists(ctx, repo, c.container.ImageTag)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s:%s (run frontctl push-image first)", ErrNoImage, repo, c.container.ImageTag)
	}
	return nil
}

func (c *Compute) Template(in provision.Outputs) (*cfn.Template, error) {
	repoURI, err := in.Get(RepositoryURI)
	if err != nil {
		return nil, err
	}
	repoARN, err := in.Get(RepositoryARN)
	if err != nil {
		return nil, err
	}
	zoneID, err := in.Get(hostedZoneID)
	if err != nil {
		return nil, err
	}

	t := cfn.New("Fargate service for the web front end behind an HTTPS load balancer")
	l, err := addNetwork(t, c.desc.Network)
	if err != nil {
		return nil, err
	}

	addEdgeSecurityGroup(t, l)
	t.Add("ServiceSecurityGroup", cfn.EC2SecurityGroup, cfn.Props{
		"GroupDescription": "Container port from the load balancer only",
		"VpcId":            cfn.Ref(l.vpc),
		"SecurityGroupIngress": []any{map[string]any{
			"IpProtocol":            "tcp",
			"FromPort":              c.container.Port,
			"ToPort":                c.container.Port,
			"SourceSecurityGroupId": cfn.GetAtt("EdgeSecurityGroup", "GroupId"),
			"Description":           "Load balancer to container",
		}},
		"SecurityGroupEgress": []any{allEgress()},
	})

	t.Add("Cluster", cfn.ECSCluster, cfn.Props{})
	c.addTask(t, repoURI, repoARN)

	domain := strings.TrimSuffix(c.desc.Edge.Domain, ".")
	addCertificate(t, domain, zoneID)
	addLoadBalancer(t, l)
	addTargetGroup(t, l, c.desc.HealthCheck, c.container.Port)
	addListeners(t)
	c.addService(t, l)
	c.addScaling(t)
	addAliasRecord(t, domain, zoneID)

	t.Output(OutputClusterName, cfn.Ref("Cluster"), "", "")
	t.Output(OutputServiceName, cfn.GetAtt("Service", "Name"), "", "")
	t.Output(OutputServiceARN, cfn.Ref("Service"), "", "")
	t.Output(OutputContainerName, c.container.Name, "Container the deploy manifest must name", "")
	t.Output(OutputExecutionRoleARN, cfn.GetAtt("ExecutionRole", "Arn"), "", "")
	t.Output(OutputLoadBalancerDNS, cfn.GetAtt("LoadBalancer", "DNSName"), "", "")
	t.Output(OutputServiceURL, "https://"+domain, "", "")
	return t, nil
}

func (c *Compute) addTask(t *cfn.Template, repoURI, repoARN string) {
	svc := c.desc.Service

	t.Add("LogGroup", cfn.LogsLogGroup, cfn.Props{
		"RetentionInDays": svc.LogRetentionDays,
	}).WithRemoval(cfn.PolicyDelete)

	t.Add("ExecutionRole", cfn.IAMRole, cfn.Props{
		"AssumeRolePolicyDocument": assumeRolePolicy("ecs-tasks.amazonaws.com"),
		"Policies": []any{inlinePolicy("ImagePullAndLogs",
			allow([]string{"ecr:GetAuthorizationToken"}, allResources),
			allow(ecrPullActions, repoARN),
			allow(logWriteActions, cfn.GetAtt("LogGroup", "Arn")),
		)},
	})

	t.Add("TaskDefinition", cfn.ECSTaskDefinition, cfn.Props{
		"Cpu":                     fmt.Sprint(svc.CPU),
		"Memory":                  fmt.Sprint(svc.MemoryMiB),
		"NetworkMode":             "awsvpc",
		"RequiresCompatibilities": []any{"FARGATE"},
		"ExecutionRoleArn":        cfn.GetAtt("ExecutionRole", "Arn"),
		"ContainerDefinitions": []any{map[string]any{
			"Name":         c.container.Name,
			"Image":        repoURI + ":" + c.container.ImageTag,
			"Essential":    true,
			"PortMappings": []any{map[string]any{"ContainerPort": c.container.Port, "Protocol": "tcp"}},
			"Environment":  c.environment(),
			"LogConfiguration": map[string]any{
				"LogDriver": "awslogs",
				"Options": map[string]any{
					"awslogs-group":         cfn.Ref("LogGroup"),
					"awslogs-region":        cfn.Ref(cfn.Region),
					"awslogs-stream-prefix": svc.LogStreamPrefix,
				},
			},
		}},
	})
}

// environment returns the container variables sorted by name. The backend
// endpoint always wins over a same-named extra variable.
func (c *Compute) environment() []any {
	vars := map[string]string{}
	for k, v := range c.desc.Service.Environment {
		vars[k] = v
	}
	vars[backendEnv] = c.desc.BackendEndpoint

	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]any, len(names))
	for i, k := range names {
		out[i] = map[string]any{"Name": k, "Value": vars[k]}
	}
	return out
}

func (c *Compute) addService(t *cfn.Template, l *vpcLayout) {
	svc := c.desc.Service
	t.Add("Service", cfn.ECSService, cfn.Props{
		"Cluster":                       cfn.Ref("Cluster"),
		"LaunchType":                    "FARGATE",
		"TaskDefinition":                cfn.Ref("TaskDefinition"),
		"DesiredCount":                  svc.DesiredCount,
		"HealthCheckGracePeriodSeconds": int(svc.HealthCheckGracePeriod.Seconds()),
		"DeploymentConfiguration": map[string]any{
			"MinimumHealthyPercent": 50,
			"MaximumPercent":        200,
		},
		"NetworkConfiguration": map[string]any{
			"AwsvpcConfiguration": map[string]any{
				"AssignPublicIp": "DISABLED",
				"Subnets":        l.privateRefs(),
				"SecurityGroups": cfn.Refs("ServiceSecurityGroup"),
			},
		},
		"LoadBalancers": []any{map[string]any{
			"ContainerName":  c.container.Name,
			"ContainerPort":  c.container.Port,
			"TargetGroupArn": cfn.Ref("TargetGroup"),
		}},
	}).DependOn("HttpsListener")
}

func (c *Compute) addScaling(t *cfn.Template) {
	s := c.desc.Service.Scaling
	t.Add("ScalableTarget", cfn.AutoScalingScalableTarget, cfn.Props{
		"MinCapacity":       s.MinCapacity,
		"MaxCapacity":       s.MaxCapacity,
		"ResourceId":        cfn.Join("/", "service", cfn.Ref("Cluster"), cfn.GetAtt("Service", "Name")),
		"ScalableDimension": "ecs:service:DesiredCount",
		"ServiceNamespace":  "ecs",
		"RoleARN": cfn.Sub("arn:${AWS::Partition}:iam::${AWS::AccountId}:role/aws-service-role/" +
			"ecs.application-autoscaling.amazonaws.com/AWSServiceRoleForApplicationAutoScaling_ECSService"),
	})
	t.Add("CpuScalingPolicy", cfn.AutoScalingScalingPolicy, cfn.Props{
		"PolicyName":      cfn.Sub("${AWS::StackName}-cpu"),
		"PolicyType":      "TargetTrackingScaling",
		"ScalingTargetId": cfn.Ref("ScalableTarget"),
		"TargetTrackingScalingPolicyConfiguration": map[string]any{
			"PredefinedMetricSpecification": map[string]any{
				"PredefinedMetricType": "ECSServiceAverageCPUUtilization",
			},
			"TargetValue":      s.TargetCPUPercent,
			"ScaleInCooldown":  int(s.ScaleInCooldown.Seconds()),
			"ScaleOutCooldown": int(s.ScaleOutCooldown.Seconds()),
		},
	})
}
