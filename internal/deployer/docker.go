package deployer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog"
)

// DockerAPI is the subset of the Docker client used to publish images.
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	Close() error
}

// RegistryAuth holds push credentials for a container registry.
type RegistryAuth struct {
	Username string
	Password string
	Server   string
}

// PublishRequest describes one build-and-push of the application image.
type PublishRequest struct {
	// ContextDir is a local build context. Ignored when GitURL is set.
	ContextDir string
	// GitURL, when set, is shallow-cloned and used as the build context.
	GitURL    string
	GitBranch string
	GitToken  string

	Dockerfile string
	Image      string
	BuildArgs  map[string]string
	Auth       RegistryAuth
}

// ImagePublisher builds an image with the local Docker daemon and pushes it
// to the registry. It seeds a fresh repository with its first image.
type ImagePublisher struct {
	docker DockerAPI
	out    io.Writer
	logger zerolog.Logger
}

// NewDockerClient connects to the Docker daemon configured in the environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// NewImagePublisher creates a publisher. Build and push progress is written to out.
func NewImagePublisher(docker DockerAPI, out io.Writer, logger zerolog.Logger) *ImagePublisher {
	if out == nil {
		out = io.Discard
	}
	return &ImagePublisher{
		docker: docker,
		out:    out,
		logger: logger.With().Str("component", "image-publisher").Logger(),
	}
}

func (p *ImagePublisher) Publish(ctx context.Context, req PublishRequest) error {
	dir := req.ContextDir
	if req.GitURL != "" {
		tmp, err := os.MkdirTemp("", "frontstack-build-*")
		if err != nil {
			return fmt.Errorf("create build dir: %w", err)
		}
		defer os.RemoveAll(tmp)

		if err := p.clone(ctx, tmp, req); err != nil {
			return err
		}
		dir = tmp
	}
	if dir == "" {
		return fmt.Errorf("no build context: set a directory or a git URL")
	}

	if err := p.build(ctx, dir, req); err != nil {
		return err
	}
	return p.push(ctx, req)
}

func (p *ImagePublisher) clone(ctx context.Context, dir string, req PublishRequest) error {
	opts := &git.CloneOptions{
		URL:          req.GitURL,
		Progress:     p.out,
		Depth:        1,
		SingleBranch: true,
	}
	if req.GitBranch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.GitBranch)
	}
	if req.GitToken != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: req.GitToken}
	}

	p.logger.Info().Str("url", req.GitURL).Str("branch", req.GitBranch).Msg("cloning source")
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("clone %s: %w", req.GitURL, err)
	}
	return nil
}

func (p *ImagePublisher) build(ctx context.Context, dir string, req PublishRequest) error {
	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildCtx.Close()

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	p.logger.Info().Str("image", req.Image).Msg("building image")
	resp, err := p.docker.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{req.Image},
		Dockerfile:  dockerfile,
		BuildArgs:   buildArgs(req.BuildArgs),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", req.Image, err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, p.out, 0, false, nil); err != nil {
		return fmt.Errorf("build image %s: %w", req.Image, err)
	}
	return nil
}

func (p *ImagePublisher) push(ctx context.Context, req PublishRequest) error {
	auth, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      req.Auth.Username,
		Password:      req.Auth.Password,
		ServerAddress: req.Auth.Server,
	})
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}

	p.logger.Info().Str("image", req.Image).Msg("pushing image")
	rc, err := p.docker.ImagePush(ctx, req.Image, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("push image %s: %w", req.Image, err)
	}
	defer rc.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(rc, p.out, 0, false, nil); err != nil {
		return fmt.Errorf("push image %s: %w", req.Image, err)
	}
	return nil
}

func buildArgs(m map[string]string) map[string]*string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = &v
	}
	return out
}
