// Package frontctl implements the operator commands: deploying and
// destroying units, rendering templates, reporting status, starting
// releases and seeding the registry with its first image.
package frontctl

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/cloud"
	"github.com/edvin/frontstack/internal/config"
	"github.com/edvin/frontstack/internal/deployer"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
	"github.com/edvin/frontstack/internal/stack"
)

// Inspector is the read-only AWS surface the commands use.
type Inspector interface {
	stack.Checker
	CheckEnvironment(ctx context.Context, env cloud.Environment) (*cloud.Zone, error)
	RegistryAuth(ctx context.Context) (deployer.RegistryAuth, error)
	ServiceStatus(ctx context.Context, cluster, service string) (*cloud.ServiceStatus, error)
	PipelineStages(ctx context.Context, name string) ([]cloud.StageStatus, error)
	StartRelease(ctx context.Context, name string) (string, error)
	WaitRelease(ctx context.Context, name, executionID string) error
}

// Publisher builds and pushes an image.
type Publisher interface {
	Publish(ctx context.Context, req deployer.PublishRequest) error
}

// App wires the descriptors, the dependency graph and the AWS clients
// together for one command run.
type App struct {
	cfg       *config.Config
	desc      *model.Descriptors
	driver    *provision.Driver
	inspector Inspector
	publisher Publisher
	out       io.Writer
	logger    zerolog.Logger
}

// Deps are the collaborators an App talks to.
type Deps struct {
	Deployer  deployer.Deployer
	Inspector Inspector
	Publisher Publisher
	Out       io.Writer
}

// New validates the descriptors and builds the unit graph.
func New(cfg *config.Config, desc *model.Descriptors, deps Deps, logger zerolog.Logger) (*App, error) {
	units := stack.Units(cfg.StackPrefix, desc, deps.Inspector)
	driver, err := provision.NewDriver(deps.Deployer, logger, stackTags(cfg), provision.Timeouts{
		Stack:       cfg.StackTimeout,
		Certificate: cfg.CertificateTimeout,
	}, units...)
	if err != nil {
		return nil, err
	}

	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	return &App{
		cfg:       cfg,
		desc:      desc,
		driver:    driver,
		inspector: deps.Inspector,
		publisher: deps.Publisher,
		out:       out,
		logger:    logger,
	}, nil
}

func stackTags(cfg *config.Config) map[string]string {
	return map[string]string{
		"frontstack:prefix": cfg.StackPrefix,
		"frontstack:domain": cfg.DomainName,
	}
}

// LoadDescriptors reads the optional descriptor file and applies the
// environment-specific values from the config on top.
func LoadDescriptors(cfg *config.Config, path string) (*model.Descriptors, error) {
	d, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	ApplyConfig(d, cfg)
	return d, nil
}

// ApplyConfig copies the values only the environment knows into the
// descriptors. Empty config values leave the descriptor untouched.
func ApplyConfig(d *model.Descriptors, cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.Compute.Edge.Domain, cfg.DomainName)
	set(&d.Compute.BackendEndpoint, cfg.BackendEndpoint)
	set(&d.Pipeline.Source.Owner, cfg.GitHubOwner)
	set(&d.Pipeline.Source.Repo, cfg.GitHubRepo)
	set(&d.Pipeline.Source.Branch, cfg.GitHubBranch)
	set(&d.Pipeline.Source.CredentialARN, cfg.GitHubTokenSecretARN)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// unitOutput reads one deployed output of a unit.
func (a *App) unitOutput(ctx context.Context, k provision.Key) (string, error) {
	outs, err := a.driver.Outputs(ctx, k.Unit())
	if err != nil {
		return "", err
	}
	return outs.Get(k)
}
