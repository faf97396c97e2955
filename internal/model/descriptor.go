// Package model holds the provisioning descriptors: the input records each
// unit turns into cloud resources.
package model

import (
	"time"
)

// RemovalPolicy says what happens to a resource when its stack is destroyed.
type RemovalPolicy string

const (
	RemovalDestroy RemovalPolicy = "destroy"
	RemovalRetain  RemovalPolicy = "retain"
)

// Repository describes the image registry.
type Repository struct {
	Name            string        `yaml:"name" validate:"required,ecr_repo"`
	MaxImageAgeDays int           `yaml:"max_image_age_days" validate:"gte=1,lte=3650"`
	RemovalPolicy   RemovalPolicy `yaml:"removal_policy" validate:"oneof=destroy retain"`
}

// Network describes the VPC shared by every network-attached resource.
type Network struct {
	CIDR            string `yaml:"cidr" validate:"required,cidrv4"`
	MaxAZs          int    `yaml:"max_azs" validate:"gte=2,lte=4"`
	NatGateways     int    `yaml:"nat_gateways" validate:"gte=1,ltefield=MaxAZs"`
	RetainOnDestroy bool   `yaml:"retain_on_destroy"`
}

// Scaling bounds the replica count and sets the CPU target-tracking policy.
type Scaling struct {
	MinCapacity      int           `yaml:"min_capacity" validate:"gte=1,ltefield=MaxCapacity"`
	MaxCapacity      int           `yaml:"max_capacity" validate:"gte=1"`
	TargetCPUPercent float64       `yaml:"target_cpu_percent" validate:"gt=0,lte=100"`
	ScaleInCooldown  time.Duration `yaml:"scale_in_cooldown" validate:"gte=0s"`
	ScaleOutCooldown time.Duration `yaml:"scale_out_cooldown" validate:"gte=0s"`
}

// Service describes the Fargate service and its task.
type Service struct {
	CPU                    int               `yaml:"cpu" validate:"oneof=256 512 1024 2048 4096"`
	MemoryMiB              int               `yaml:"memory_mib" validate:"gte=512,lte=30720"`
	DesiredCount           int               `yaml:"desired_count" validate:"gte=1"`
	HealthCheckGracePeriod time.Duration     `yaml:"health_check_grace_period" validate:"gte=0s"`
	LogRetentionDays       int               `yaml:"log_retention_days" validate:"oneof=1 3 5 7 14 30 60 90 120 150 180 365 400 545 731 1827 3653"`
	LogStreamPrefix        string            `yaml:"log_stream_prefix" validate:"required"`
	Environment            map[string]string `yaml:"environment"`
	Scaling                Scaling           `yaml:"scaling"`
}

// Edge describes the public entry point.
type Edge struct {
	Domain string `yaml:"domain" validate:"required,fqdn"`
}

// HealthCheck is the target group's health policy.
type HealthCheck struct {
	Path                string        `yaml:"path" validate:"required,startswith=/"`
	Interval            time.Duration `yaml:"interval" validate:"gte=5s,lte=300s"`
	Timeout             time.Duration `yaml:"timeout" validate:"gte=2s,ltfield=Interval"`
	HealthyHTTPCodes    string        `yaml:"healthy_http_codes" validate:"required"`
	HealthyThreshold    int           `yaml:"healthy_threshold" validate:"gte=1,lte=10"`
	UnhealthyThreshold  int           `yaml:"unhealthy_threshold" validate:"gte=1,lte=10"`
	DeregistrationDelay time.Duration `yaml:"deregistration_delay" validate:"gte=0s,lte=3600s"`
}

// Container identifies the single container of the task. The same value is
// handed to the compute unit (which names the container definition and
// deploys ImageTag) and the pipeline unit (which names it in the deploy
// manifest and pushes ImageTag).
type Container struct {
	Name     string `yaml:"name" validate:"required,container_name"`
	Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
	ImageTag string `yaml:"image_tag" validate:"required"`
}

// Source holds the coordinates of the repository the pipeline builds.
type Source struct {
	Owner         string `yaml:"owner" validate:"required"`
	Repo          string `yaml:"repo" validate:"required"`
	Branch        string `yaml:"branch" validate:"required"`
	CredentialARN string `yaml:"credential_arn" validate:"required,startswith=arn:"`
}

// Pipeline describes the Source -> Build -> Deploy release pipeline.
type Pipeline struct {
	Name         string `yaml:"name" validate:"required"`
	Source       Source `yaml:"source"`
	BuildImage   string `yaml:"build_image" validate:"required"`
	ManifestFile string `yaml:"manifest_file" validate:"required"`
}

// Compute groups everything the compute unit needs.
type Compute struct {
	Network         Network     `yaml:"network"`
	Service         Service     `yaml:"service"`
	Edge            Edge        `yaml:"edge"`
	HealthCheck     HealthCheck `yaml:"health_check"`
	BackendEndpoint string      `yaml:"backend_endpoint" validate:"required,url"`
}

// Descriptors is the full descriptor set for one environment.
type Descriptors struct {
	Registry  Repository `yaml:"registry"`
	Compute   Compute    `yaml:"compute"`
	Container Container  `yaml:"container"`
	Pipeline  Pipeline   `yaml:"pipeline"`
}

// Defaults returns the descriptor set of the reference deployment. Values
// that only the environment can supply (domain, endpoint, source) are empty.
func Defaults() *Descriptors {
	return &Descriptors{
		Registry: Repository{
			Name:            "nextjs-app",
			MaxImageAgeDays: 30,
			RemovalPolicy:   RemovalDestroy,
		},
		Compute: Compute{
			Network: Network{
				CIDR:        "10.0.0.0/16",
				MaxAZs:      2,
				NatGateways: 2,
			},
			Service: Service{
				CPU:                    256,
				MemoryMiB:              512,
				DesiredCount:           1,
				HealthCheckGracePeriod: 60 * time.Second,
				LogRetentionDays:       30,
				LogStreamPrefix:        "NextJsLogs",
				Scaling: Scaling{
					MinCapacity:      1,
					MaxCapacity:      2,
					TargetCPUPercent: 70,
					ScaleInCooldown:  60 * time.Second,
					ScaleOutCooldown: 60 * time.Second,
				},
			},
			HealthCheck: HealthCheck{
				Path:                "/api/health",
				Interval:            30 * time.Second,
				Timeout:             5 * time.Second,
				HealthyHTTPCodes:    "200",
				HealthyThreshold:    2,
				UnhealthyThreshold:  2,
				DeregistrationDelay: 30 * time.Second,
			},
		},
		Container: Container{
			Name:     "NextJsContainer",
			Port:     3000,
			ImageTag: "latest",
		},
		Pipeline: Pipeline{
			Name:         "NextJsPipeline",
			BuildImage:   "aws/codebuild/standard:5.0",
			ManifestFile: "imagedefinitions.json",
		},
	}
}
