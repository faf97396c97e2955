// Package stack holds the three provisioning units: the image registry, the
// compute service behind its load balancer, and the release pipeline. Each
// unit renders one CloudFormation stack and declares the outputs it consumes
// and exports.
package stack

import (
	"context"
	"errors"

	"github.com/edvin/frontstack/internal/cloud"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
)

// Unit names.
const (
	RegistryUnit = "registry"
	ComputeUnit  = "compute"
	PipelineUnit = "pipeline"
)

// Stack outputs.
const (
	OutputRepositoryURI  = "RepositoryUri"
	OutputRepositoryARN  = "RepositoryArn"
	OutputRepositoryName = "RepositoryName"

	OutputClusterName      = "ClusterName"
	OutputServiceName      = "ServiceName"
	OutputServiceARN       = "ServiceArn"
	OutputContainerName    = "ContainerName"
	OutputExecutionRoleARN = "ExecutionRoleArn"
	OutputLoadBalancerDNS  = "LoadBalancerDNS"
	OutputServiceURL       = "ServiceURL"

	OutputPipelineName   = "PipelineName"
	OutputArtifactBucket = "ArtifactBucketName"
	OutputBuildProject   = "BuildProjectName"
)

var (
	RepositoryURI  = provision.NewKey(RegistryUnit, OutputRepositoryURI)
	RepositoryARN  = provision.NewKey(RegistryUnit, OutputRepositoryARN)
	RepositoryName = provision.NewKey(RegistryUnit, OutputRepositoryName)

	ClusterName      = provision.NewKey(ComputeUnit, OutputClusterName)
	ServiceName      = provision.NewKey(ComputeUnit, OutputServiceName)
	ContainerName    = provision.NewKey(ComputeUnit, OutputContainerName)
	ExecutionRoleARN = provision.NewKey(ComputeUnit, OutputExecutionRoleARN)

	PipelineName = provision.NewKey(PipelineUnit, OutputPipelineName)

	// hostedZoneID is resolved by the compute unit before rendering and is
	// never a stack output.
	hostedZoneID = provision.NewKey(ComputeUnit, "HostedZoneId")
)

var (
	ErrNoImage           = errors.New("repository has no image")
	ErrContainerMismatch = errors.New("container name differs from the deployed service")
)

// Checker is the read-only AWS surface the units need. *cloud.Inspector
// implements it.
type Checker interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)
	ImageExists(ctx context.Context, repository, tag string) (bool, error)
	HostedZone(ctx context.Context, domain string) (*cloud.Zone, error)
	SecretExists(ctx context.Context, arn string) error
}

// StackName returns the stack name of a unit for a stack prefix.
func StackName(prefix, unit string) string {
	switch unit {
	case RegistryUnit:
		return prefix + "EcrStack"
	case ComputeUnit:
		return prefix + "EcsStack"
	case PipelineUnit:
		return prefix + "PipelineStack"
	}
	return prefix + unit + "Stack"
}

// Units builds the three units from one descriptor set. The container
// descriptor is shared by the compute and pipeline units.
func Units(prefix string, d *model.Descriptors, checker Checker) []provision.Unit {
	return []provision.Unit{
		NewRegistry(prefix, d.Registry, checker),
		NewCompute(prefix, d.Compute, d.Container, checker),
		NewPipeline(prefix, d.Pipeline, d.Container, d.Compute.BackendEndpoint, checker),
	}
}
