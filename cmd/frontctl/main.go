package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edvin/frontstack/internal/config"
	"github.com/edvin/frontstack/internal/frontctl"
	"github.com/edvin/frontstack/internal/logging"
	"github.com/edvin/frontstack/internal/metrics"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	file := fs.String("f", "", "Path to descriptor YAML file (optional)")
	metricsFile := fs.String("metrics-file", "", "Write stack operation metrics in Prometheus text format to this file")

	var run func(ctx context.Context, app *frontctl.App) error

	switch cmd {
	case "deploy":
		fs.Parse(os.Args[2:])
		units := unitArgs(fs)
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Deploy(ctx, units...)
		}

	case "destroy":
		yes := fs.Bool("yes", false, "Confirm deletion of the stack")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Usage: frontctl destroy [-yes] <registry|compute|pipeline|all>")
			os.Exit(1)
		}
		unit := fs.Arg(0)
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Destroy(ctx, unit, *yes)
		}

	case "synth":
		dir := fs.String("o", "", "Write <stack>.template.json files into this directory instead of stdout")
		fs.Parse(os.Args[2:])
		units := unitArgs(fs)
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Synth(ctx, *dir, units...)
		}

	case "status":
		fs.Parse(os.Args[2:])
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Status(ctx)
		}

	case "release":
		wait := fs.Bool("wait", false, "Wait for the pipeline execution to finish")
		fs.Parse(os.Args[2:])
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Release(ctx, *wait)
		}

	case "push-image":
		dir := fs.String("dir", ".", "Local build context")
		fromGit := fs.Bool("git", false, "Build from the configured GitHub repository instead of -dir")
		dockerfile := fs.String("dockerfile", "Dockerfile", "Dockerfile path inside the build context")
		fs.Parse(os.Args[2:])
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.PushImage(ctx, frontctl.PushOptions{Dir: *dir, FromGit: *fromGit, Dockerfile: *dockerfile})
		}

	case "manifest":
		fs.Parse(os.Args[2:])
		run = func(ctx context.Context, app *frontctl.App) error {
			return app.Manifest(ctx)
		}

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err := execute(*file, *metricsFile, run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(descriptors, metricsFile string, run func(ctx context.Context, app *frontctl.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "frontctl"
	}
	if err := cfg.Validate("frontctl"); err != nil {
		return err
	}

	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, closeApp, err := frontctl.Open(ctx, cfg, descriptors, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer closeApp()

	runErr := run(ctx, app)

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			logger.Warn().Err(err).Str("path", metricsFile).Msg("failed to write metrics file")
		}
	}
	return runErr
}

func unitArgs(fs *flag.FlagSet) []string {
	if fs.NArg() == 0 {
		return []string{"all"}
	}
	return fs.Args()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  frontctl deploy [-f descriptors.yaml] [registry|compute|pipeline|all ...]
  frontctl destroy [-f descriptors.yaml] -yes <registry|compute|pipeline|all>
  frontctl synth [-f descriptors.yaml] [-o dir] [registry|compute|pipeline|all ...]
  frontctl status [-f descriptors.yaml]
  frontctl release [-wait]
  frontctl push-image [-dir path | -git] [-dockerfile path]
  frontctl manifest

Commands:
  deploy       Create or update the unit stacks in dependency order (default: all)
  destroy      Delete a unit stack; dependents must be destroyed first
  synth        Render the CloudFormation templates without deploying
  status       Show stack, service and pipeline state
  release      Start a pipeline execution
  push-image   Build the application image and push it to the registry
  manifest     Print the deploy manifest the build stage produces

Flags:
  -f string             Path to descriptor YAML file (defaults apply when omitted)
  -metrics-file string  Write stack operation metrics to this file after the run

Configuration is read from the environment: AWS_ACCOUNT, AWS_REGION,
DOMAIN_NAME, NEXT_PUBLIC_API_ENDPOINT, GITHUB_OWNER, GITHUB_REPO,
GITHUB_BRANCH, GITHUB_TOKEN_SECRET_ARN, STACK_PREFIX.`)
}
