// Package provision orders provisioning units by the outputs they consume
// and drives them through the stack deployer.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/edvin/frontstack/internal/cfn"
)

var (
	ErrCycle             = errors.New("dependency cycle")
	ErrMissingUpstream   = errors.New("missing upstream output")
	ErrDuplicateProducer = errors.New("output produced by more than one unit")
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrMissingOutput     = errors.New("unit did not produce a declared output")
	ErrDependentsExist   = errors.New("dependent stacks still exist")
)

// Key names one output of one unit, written "<unit>.<output>".
type Key string

// NewKey builds the key for an output of a unit.
func NewKey(unit, output string) Key {
	return Key(unit + "." + output)
}

// Unit returns the producing unit's name.
func (k Key) Unit() string {
	u, _, _ := strings.Cut(string(k), ".")
	return u
}

// Output returns the stack output name.
func (k Key) Output() string {
	_, o, _ := strings.Cut(string(k), ".")
	return o
}

// Outputs maps keys to resolved values.
type Outputs map[Key]string

// Get returns the value for k or an ErrMissingUpstream error.
func (o Outputs) Get(k Key) (string, error) {
	v, ok := o[k]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingUpstream, k)
	}
	return v, nil
}

// Missing returns the keys that have no value, sorted.
func (o Outputs) Missing(keys ...Key) []Key {
	var out []Key
	for _, k := range keys {
		if o[k] == "" {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge copies every value of other into o.
func (o Outputs) Merge(other Outputs) {
	for k, v := range other {
		o[k] = v
	}
}

// Unit is one provisioning step rendered as one stack.
type Unit interface {
	// Name is the short unit name used on the command line and in keys.
	Name() string
	// StackName is the name of the stack the unit owns.
	StackName() string
	// Requires lists the upstream outputs the unit consumes.
	Requires() []Key
	// Produces lists the outputs the unit's stack exports.
	Produces() []Key
	// Validate checks the unit's descriptors without any I/O.
	Validate() error
	// Resolve performs read-only lookups the template depends on.
	Resolve(ctx context.Context, in Outputs) (Outputs, error)
	// Preflight runs read-only checks before the stack is touched.
	// exists reports whether the unit's stack is already deployed.
	Preflight(ctx context.Context, in Outputs, exists bool) error
	// Template renders the unit's stack from its inputs.
	Template(in Outputs) (*cfn.Template, error)
}

// OutputKeys is a convenience for Produces implementations.
func OutputKeys(unit string, outputs ...string) []Key {
	keys := make([]Key, len(outputs))
	for i, o := range outputs {
		keys[i] = NewKey(unit, o)
	}
	return keys
}
