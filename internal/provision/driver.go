package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/deployer"
	"github.com/edvin/frontstack/internal/metrics"
)

// Timeouts bounds stack operations.
type Timeouts struct {
	Stack       time.Duration
	Certificate time.Duration
}

// CertificateUnit is implemented by units whose stack contains a
// certificate that is validated during deploy.
type CertificateUnit interface {
	HasCertificate() bool
}

// Driver provisions units in dependency order through a Deployer.
type Driver struct {
	graph    *Graph
	deployer deployer.Deployer
	tags     map[string]string
	timeouts Timeouts
	logger   zerolog.Logger
}

// NewDriver builds the dependency graph and returns a driver for it.
func NewDriver(d deployer.Deployer, logger zerolog.Logger, tags map[string]string, timeouts Timeouts, units ...Unit) (*Driver, error) {
	g, err := NewGraph(units...)
	if err != nil {
		return nil, err
	}
	return &Driver{
		graph:    g,
		deployer: d,
		tags:     tags,
		timeouts: timeouts,
		logger:   logger.With().Str("component", "driver").Logger(),
	}, nil
}

// Graph returns the validated dependency graph.
func (d *Driver) Graph() *Graph {
	return d.graph
}

// UnitResult reports what happened to one unit.
type UnitResult struct {
	Unit    string
	Stack   string
	Action  deployer.Action
	Outputs Outputs
}

// Deploy provisions the named units ("all" for every unit) in dependency
// order. Every selected unit is validated and every required output is
// located before the first stack is touched. Outputs of units outside the
// selection are read from their deployed stacks.
func (d *Driver) Deploy(ctx context.Context, names ...string) ([]UnitResult, error) {
	selected, err := d.graph.Select(names...)
	if err != nil {
		return nil, err
	}

	if err := validateAll(selected); err != nil {
		return nil, err
	}

	available, err := d.upstreamOutputs(ctx, selected, false)
	if err != nil {
		return nil, err
	}

	results := make([]UnitResult, 0, len(selected))
	for _, u := range selected {
		res, err := d.deployUnit(ctx, u, available)
		if err != nil {
			return results, err
		}
		available.Merge(res.Outputs)
		results = append(results, *res)
	}
	return results, nil
}

func (d *Driver) deployUnit(ctx context.Context, u Unit, available Outputs) (*UnitResult, error) {
	logger := d.logger.With().Str("unit", u.Name()).Str("stack", u.StackName()).Logger()
	started := time.Now()
	result := "error"
	defer func() { metrics.ObserveStackOperation(u.Name(), "deploy", result, started) }()

	in := d.inputsFor(u, available)
	if missing := in.Missing(u.Requires()...); len(missing) > 0 {
		return nil, fmt.Errorf("unit %s: %w: %s", u.Name(), ErrMissingUpstream, joinKeys(missing))
	}

	exists, err := d.stackExists(ctx, u.StackName())
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
	}

	resolved, err := u.Resolve(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("unit %s: resolve: %w", u.Name(), err)
	}
	in.Merge(resolved)

	logger.Info().Bool("exists", exists).Msg("running preflight checks")
	if err := u.Preflight(ctx, in, exists); err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
	}

	body, err := render(u, in)
	if err != nil {
		return nil, err
	}

	req := deployer.StackRequest{
		Name:     u.StackName(),
		Template: body,
		Tags:     d.tagsFor(u),
		Timeout:  d.timeouts.Stack,
	}
	if cu, ok := u.(CertificateUnit); ok && cu.HasCertificate() {
		req.CertificateTimeout = d.timeouts.Certificate
	}

	logger.Info().Int("bytes", len(body)).Msg("deploying stack")
	res, err := d.deployer.Deploy(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
	}

	produced := make(Outputs, len(u.Produces()))
	for _, k := range u.Produces() {
		if v := res.Outputs[k.Output()]; v != "" {
			produced[k] = v
		}
	}
	if missing := produced.Missing(u.Produces()...); len(missing) > 0 {
		return nil, fmt.Errorf("unit %s: %w: %s", u.Name(), ErrMissingOutput, joinKeys(missing))
	}

	result = string(res.Action)
	logger.Info().Str("action", result).Dur("took", time.Since(started)).Msg("unit provisioned")
	return &UnitResult{Unit: u.Name(), Stack: u.StackName(), Action: res.Action, Outputs: produced}, nil
}

// Synth renders the templates of the named units without deploying them.
// Outputs of stacks that are not deployed yet are replaced by placeholders
// so the whole chain can be rendered before anything exists.
func (d *Driver) Synth(ctx context.Context, names ...string) (map[string][]byte, error) {
	selected, err := d.graph.Select(names...)
	if err != nil {
		return nil, err
	}
	if err := validateAll(selected); err != nil {
		return nil, err
	}

	available, err := d.upstreamOutputs(ctx, selected, true)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(selected))
	for _, u := range selected {
		in := d.inputsFor(u, available)
		for _, k := range in.Missing(u.Requires()...) {
			in[k] = placeholder(k)
		}
		resolved, err := u.Resolve(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("unit %s: resolve: %w", u.Name(), err)
		}
		in.Merge(resolved)

		body, err := render(u, in)
		if err != nil {
			return nil, err
		}
		out[u.Name()] = body
		for _, k := range u.Produces() {
			if available[k] == "" {
				available[k] = placeholder(k)
			}
		}
	}
	return out, nil
}

// Destroy deletes the named units' stacks in reverse dependency order.
// A unit whose dependents still have stacks outside the selection is
// refused.
func (d *Driver) Destroy(ctx context.Context, names ...string) error {
	selected, err := d.graph.Select(names...)
	if err != nil {
		return err
	}

	chosen := make(map[string]bool, len(selected))
	for _, u := range selected {
		chosen[u.Name()] = true
	}
	for _, u := range selected {
		var blocking []string
		for _, dep := range d.graph.Dependents(u.Name()) {
			if chosen[dep.Name()] {
				continue
			}
			exists, err := d.stackExists(ctx, dep.StackName())
			if err != nil {
				return err
			}
			if exists {
				blocking = append(blocking, dep.StackName())
			}
		}
		if len(blocking) > 0 {
			return fmt.Errorf("destroy %s: %w: %s", u.Name(), ErrDependentsExist, strings.Join(blocking, ", "))
		}
	}

	for i := len(selected) - 1; i >= 0; i-- {
		u := selected[i]
		started := time.Now()
		d.logger.Info().Str("unit", u.Name()).Str("stack", u.StackName()).Msg("destroying stack")
		if err := d.deployer.Destroy(ctx, u.StackName(), d.timeouts.Stack); err != nil {
			metrics.ObserveStackOperation(u.Name(), "destroy", "error", started)
			return fmt.Errorf("destroy %s: %w", u.Name(), err)
		}
		metrics.ObserveStackOperation(u.Name(), "destroy", string(deployer.ActionDeleted), started)
	}
	return nil
}

// UnitStatus is the observed stack state of one unit.
type UnitStatus struct {
	Unit    string
	Stack   string
	Status  string
	Reason  string
	Outputs Outputs
}

// Status describes every unit's stack. Missing stacks report NOT_DEPLOYED.
func (d *Driver) Status(ctx context.Context) ([]UnitStatus, error) {
	var out []UnitStatus
	for _, u := range d.graph.Order() {
		st := UnitStatus{Unit: u.Name(), Stack: u.StackName(), Status: "NOT_DEPLOYED", Outputs: Outputs{}}
		res, err := d.deployer.Describe(ctx, u.StackName())
		switch {
		case errors.Is(err, deployer.ErrStackNotFound):
		case err != nil:
			return nil, err
		default:
			st.Status = res.Status
			st.Reason = res.Reason
			for _, k := range u.Produces() {
				if v := res.Outputs[k.Output()]; v != "" {
					st.Outputs[k] = v
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Outputs reads the deployed outputs of one unit.
func (d *Driver) Outputs(ctx context.Context, name string) (Outputs, error) {
	u, err := d.graph.Unit(name)
	if err != nil {
		return nil, err
	}
	res, err := d.deployer.Describe(ctx, u.StackName())
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	out := make(Outputs, len(u.Produces()))
	for _, k := range u.Produces() {
		if v := res.Outputs[k.Output()]; v != "" {
			out[k] = v
		}
	}
	return out, nil
}

// upstreamOutputs reads the outputs of every producer outside the selection
// and checks that each required key will be available when its consumer
// runs. With lenient set, missing stacks are tolerated.
func (d *Driver) upstreamOutputs(ctx context.Context, selected []Unit, lenient bool) (Outputs, error) {
	chosen := make(map[string]bool, len(selected))
	for _, u := range selected {
		chosen[u.Name()] = true
	}

	available := Outputs{}
	read := map[string]bool{}
	var missing []Key
	for _, u := range selected {
		for _, k := range u.Requires() {
			p := d.graph.Producer(k)
			if chosen[p.Name()] {
				continue
			}
			if !read[p.Name()] {
				read[p.Name()] = true
				res, err := d.deployer.Describe(ctx, p.StackName())
				switch {
				case errors.Is(err, deployer.ErrStackNotFound):
				case err != nil:
					return nil, fmt.Errorf("read outputs of %s: %w", p.StackName(), err)
				default:
					for _, pk := range p.Produces() {
						if v := res.Outputs[pk.Output()]; v != "" {
							available[pk] = v
						}
					}
				}
			}
			if available[k] == "" {
				missing = append(missing, k)
			}
		}
	}

	if len(missing) > 0 && !lenient {
		return nil, fmt.Errorf("%w: %s (deploy the upstream units first)", ErrMissingUpstream, joinKeys(dedupe(missing)))
	}
	return available, nil
}

func (d *Driver) inputsFor(u Unit, available Outputs) Outputs {
	in := make(Outputs, len(u.Requires()))
	for _, k := range u.Requires() {
		if v, ok := available[k]; ok {
			in[k] = v
		}
	}
	return in
}

func (d *Driver) stackExists(ctx context.Context, stack string) (bool, error) {
	_, err := d.deployer.Describe(ctx, stack)
	switch {
	case errors.Is(err, deployer.ErrStackNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (d *Driver) tagsFor(u Unit) map[string]string {
	tags := make(map[string]string, len(d.tags)+1)
	for k, v := range d.tags {
		tags[k] = v
	}
	tags["frontstack:unit"] = u.Name()
	return tags
}

func validateAll(units []Unit) error {
	var errs []error
	for _, u := range units {
		if err := u.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("unit %s: %w", u.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func render(u Unit, in Outputs) ([]byte, error) {
	tpl, err := u.Template(in)
	if err != nil {
		return nil, fmt.Errorf("unit %s: template: %w", u.Name(), err)
	}
	body, err := tpl.Render()
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
	}
	return body, nil
}

func placeholder(k Key) string {
	return "<" + string(k) + ">"
}

func joinKeys(keys []Key) string {
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}

func dedupe(keys []Key) []Key {
	seen := make(map[Key]bool, len(keys))
	var out []Key
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
