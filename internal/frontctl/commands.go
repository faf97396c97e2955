package frontctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/edvin/frontstack/internal/cloud"
	"github.com/edvin/frontstack/internal/deployer"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/stack"
)

// ErrNotConfirmed is returned by Destroy when the operator did not confirm.
var ErrNotConfirmed = errors.New("destroy not confirmed: pass -yes")

// Deploy checks the account, then the hosted zone when compute is selected
// and the source credential when the pipeline is selected, and provisions
// the named units in dependency order.
func (a *App) Deploy(ctx context.Context, units ...string) error {
	if len(units) == 0 {
		return fmt.Errorf("no unit given")
	}

	selected, err := a.driver.Graph().Select(units...)
	if err != nil {
		return err
	}
	env := cloud.Environment{Account: a.cfg.AWSAccount}
	for _, u := range selected {
		switch u.Name() {
		case stack.ComputeUnit:
			env.Domain = a.desc.Compute.Edge.Domain
		case stack.PipelineUnit:
			env.SecretARN = a.desc.Pipeline.Source.CredentialARN
		}
	}
	zone, err := a.inspector.CheckEnvironment(ctx, env)
	if err != nil {
		return err
	}
	if zone != nil {
		a.logger.Info().Str("zone_id", zone.ID).Str("zone", zone.Name).Msg("environment checks passed")
	} else {
		a.logger.Info().Msg("environment checks passed")
	}

	results, err := a.driver.Deploy(ctx, units...)
	for _, r := range results {
		a.printf("%-10s %-28s %s\n", r.Unit, r.Stack, r.Action)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Unit != stack.RegistryUnit {
			continue
		}
		if uri := r.Outputs[stack.RepositoryURI]; uri != "" {
			a.printf("\nRegistry ready at %s\nPush the first image before deploying compute: frontctl push-image\n", uri)
		}
	}
	return nil
}

// Destroy deletes one unit's stack, or every stack for "all". Dependents
// must be destroyed first.
func (a *App) Destroy(ctx context.Context, unit string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := a.driver.Destroy(ctx, unit); err != nil {
		return err
	}
	a.printf("destroyed %s\n", unit)
	return nil
}

// Synth renders the templates of the named units. With an empty dir they
// are written to the output stream; otherwise one <stack>.template.json
// file per unit is written into dir.
func (a *App) Synth(ctx context.Context, dir string, units ...string) error {
	if len(units) == 0 {
		return fmt.Errorf("no unit given")
	}
	bodies, err := a.driver.Synth(ctx, units...)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(bodies))
	for name := range bodies {
		names = append(names, name)
	}
	slices.Sort(names)

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	for _, name := range names {
		u, err := a.driver.Graph().Unit(name)
		if err != nil {
			return err
		}
		if dir == "" {
			a.printf("# %s (%s)\n%s\n", name, u.StackName(), bodies[name])
			continue
		}
		path := filepath.Join(dir, u.StackName()+".template.json")
		if err := os.WriteFile(path, bodies[name], 0o644); err != nil {
			return fmt.Errorf("write template: %w", err)
		}
		a.printf("wrote %s\n", path)
	}
	return nil
}

// Status prints every stack's state, the service's task counts and the
// pipeline's stage states.
func (a *App) Status(ctx context.Context) error {
	states, err := a.driver.Status(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tSTACK\tSTATUS")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Unit, s.Stack, s.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range states {
		switch s.Unit {
		case stack.ComputeUnit:
			cluster, service := s.Outputs[stack.ClusterName], s.Outputs[stack.ServiceName]
			if cluster == "" || service == "" {
				continue
			}
			st, err := a.inspector.ServiceStatus(ctx, cluster, service)
			if err != nil {
				return err
			}
			a.printf("\nservice %s: %s, %d/%d running, %d pending, rollout %s\n",
				st.Name, st.Status, st.Running, st.Desired, st.Pending, rolloutOrNone(st.RolloutState))
		case stack.PipelineUnit:
			name := s.Outputs[stack.PipelineName]
			if name == "" {
				continue
			}
			stages, err := a.inspector.PipelineStages(ctx, name)
			if err != nil {
				return err
			}
			a.printf("\npipeline %s:\n", name)
			for _, st := range stages {
				a.printf("  %-8s %s\n", st.Name, rolloutOrNone(st.Status))
			}
		}
	}
	return nil
}

func rolloutOrNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Release starts a pipeline run and, with wait set, follows it until it
// finishes. A failed stage is reported and not retried.
func (a *App) Release(ctx context.Context, wait bool) error {
	name, err := a.unitOutput(ctx, stack.PipelineName)
	if err != nil {
		return err
	}
	id, err := a.inspector.StartRelease(ctx, name)
	if err != nil {
		return err
	}
	a.printf("started %s execution %s\n", name, id)
	if !wait {
		return nil
	}
	if err := a.inspector.WaitRelease(ctx, name, id); err != nil {
		return err
	}
	a.printf("execution %s succeeded\n", id)
	return nil
}

// PushOptions selects the build context for PushImage.
type PushOptions struct {
	// Dir is a local build context.
	Dir string
	// FromGit clones the configured source repository instead.
	FromGit    bool
	Dockerfile string
}

// PushImage builds the application image and pushes it to the deployed
// registry under the tag the compute unit deploys.
func (a *App) PushImage(ctx context.Context, opts PushOptions) error {
	uri, err := a.unitOutput(ctx, stack.RepositoryURI)
	if err != nil {
		return err
	}
	auth, err := a.inspector.RegistryAuth(ctx)
	if err != nil {
		return err
	}

	image := uri + ":" + a.desc.Container.ImageTag
	req := deployer.PublishRequest{
		ContextDir: opts.Dir,
		Dockerfile: opts.Dockerfile,
		Image:      image,
		BuildArgs:  map[string]string{"NEXT_PUBLIC_API_ENDPOINT": a.desc.Compute.BackendEndpoint},
		Auth:       auth,
	}
	if opts.FromGit {
		src := a.desc.Pipeline.Source
		req.GitURL = fmt.Sprintf("https://github.com/%s/%s.git", src.Owner, src.Repo)
		req.GitBranch = src.Branch
		req.GitToken = a.cfg.GitHubToken
	}

	if err := a.publisher.Publish(ctx, req); err != nil {
		return err
	}
	a.printf("pushed %s\n", image)
	return nil
}

// Manifest prints the deploy manifest the build stage writes, resolved
// against the deployed registry.
func (a *App) Manifest(ctx context.Context) error {
	uri, err := a.unitOutput(ctx, stack.RepositoryURI)
	if err != nil {
		return err
	}
	body, err := model.NewManifest(a.desc.Container, uri+":"+a.desc.Container.ImageTag).Marshal()
	if err != nil {
		return err
	}
	a.printf("%s\n", body)
	return nil
}
