package frontctl

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/cloud"
	"github.com/edvin/frontstack/internal/config"
	"github.com/edvin/frontstack/internal/deployer"
)

// Open builds an App backed by real AWS clients and the local Docker
// daemon. The returned close function releases the Docker client.
func Open(ctx context.Context, cfg *config.Config, descriptorsPath string, out io.Writer, logger zerolog.Logger) (*App, func(), error) {
	desc, err := LoadDescriptors(cfg, descriptorsPath)
	if err != nil {
		return nil, nil, err
	}

	awsCfg, err := cloud.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	clients := cloud.NewClients(awsCfg)

	var opts []deployer.Option
	if cfg.TemplateBucket != "" {
		opts = append(opts, deployer.WithTemplateBucket(clients.S3, cfg.TemplateBucket, awsCfg.Region))
	}
	dep := deployer.NewCloudFormationDeployer(clients.CloudFormation, logger, opts...)

	docker, err := deployer.NewDockerClient()
	if err != nil {
		return nil, nil, err
	}

	app, err := New(cfg, desc, Deps{
		Deployer:  dep,
		Inspector: clients.Inspector(),
		Publisher: deployer.NewImagePublisher(docker, out, logger),
		Out:       out,
	}, logger)
	if err != nil {
		docker.Close()
		return nil, nil, err
	}
	return app, func() { docker.Close() }, nil
}
