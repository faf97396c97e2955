package cloud

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Check is one named read-only verification.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunChecks runs the checks concurrently. The first failure cancels the
// rest and is returned.
func RunChecks(ctx context.Context, checks ...Check) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		c := c
		g.Go(func() error {
			if err := c.Run(ctx); err != nil {
				return fmt.Errorf("preflight %s: %w", c.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Environment describes the account and external resources a deployment
// expects to find. Empty Domain or SecretARN skips that check.
type Environment struct {
	Account   string
	Domain    string
	SecretARN string
}

// CheckEnvironment verifies the account and, when requested, the hosted
// zone and the source credential in parallel. The returned zone is nil when
// no domain was given.
func (i *Inspector) CheckEnvironment(ctx context.Context, env Environment) (*Zone, error) {
	var zone *Zone
	checks := []Check{{Name: "account", Run: func(ctx context.Context) error {
		return i.CheckAccount(ctx, env.Account)
	}}}
	if env.Domain != "" {
		checks = append(checks, Check{Name: "hosted zone", Run: func(ctx context.Context) error {
			z, err := i.HostedZone(ctx, env.Domain)
			zone = z
			return err
		}})
	}
	if env.SecretARN != "" {
		checks = append(checks, Check{Name: "source credential", Run: func(ctx context.Context) error {
			return i.SecretExists(ctx, env.SecretARN)
		}})
	}
	if err := RunChecks(ctx, checks...); err != nil {
		return nil, err
	}
	return zone, nil
}
