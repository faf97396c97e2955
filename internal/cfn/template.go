// Package cfn models CloudFormation templates as plain Go values and
// renders them to the JSON document CloudFormation accepts.
package cfn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const formatVersion = "2010-09-09"

// Props holds the Properties block of a resource.
type Props map[string]any

// Resource is one entry of the Resources section.
type Resource struct {
	Type                ResourceType `json:"Type"`
	Properties          Props        `json:"Properties,omitempty"`
	DependsOn           []string     `json:"DependsOn,omitempty"`
	DeletionPolicy      Policy       `json:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy Policy       `json:"UpdateReplacePolicy,omitempty"`
}

// DependOn adds explicit ordering dependencies.
func (r *Resource) DependOn(ids ...string) *Resource {
	r.DependsOn = append(r.DependsOn, ids...)
	return r
}

// WithRemoval sets both the deletion and the update-replace policy.
func (r *Resource) WithRemoval(p Policy) *Resource {
	r.DeletionPolicy = p
	r.UpdateReplacePolicy = p
	return r
}

// Export names a stack output for cross-stack import.
type Export struct {
	Name any `json:"Name"`
}

// Output is one entry of the Outputs section.
type Output struct {
	Value       any     `json:"Value"`
	Description string  `json:"Description,omitempty"`
	Export      *Export `json:"Export,omitempty"`
}

// Template is a CloudFormation template under construction.
type Template struct {
	Description string
	resources   map[string]*Resource
	outputs     map[string]Output
	errs        []error
}

// New returns an empty template.
func New(description string) *Template {
	return &Template{
		Description: description,
		resources:   make(map[string]*Resource),
		outputs:     make(map[string]Output),
	}
}

// Add registers a resource under a logical ID. Duplicate IDs are reported
// by Validate; the first registration wins.
func (t *Template) Add(id string, typ ResourceType, props Props) *Resource {
	r := &Resource{Type: typ, Properties: props}
	if _, exists := t.resources[id]; exists {
		t.errs = append(t.errs, fmt.Errorf("duplicate logical ID %q", id))
		return r
	}
	t.resources[id] = r
	return r
}

// Output registers a stack output. An empty exportName leaves it unexported.
func (t *Template) Output(name string, value any, description, exportName string) {
	if _, exists := t.outputs[name]; exists {
		t.errs = append(t.errs, fmt.Errorf("duplicate output %q", name))
		return
	}
	o := Output{Value: value, Description: description}
	if exportName != "" {
		o.Export = &Export{Name: exportName}
	}
	t.outputs[name] = o
}

// Resource returns the resource registered under id.
func (t *Template) Resource(id string) (*Resource, bool) {
	r, ok := t.resources[id]
	return r, ok
}

// ResourcesOfType returns the logical IDs of all resources of typ, sorted.
func (t *Template) ResourcesOfType(typ ResourceType) []string {
	var ids []string
	for id, r := range t.resources {
		if r.Type == typ {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Outputs returns a copy of the outputs section.
func (t *Template) Outputs() map[string]Output {
	out := make(map[string]Output, len(t.outputs))
	for k, v := range t.outputs {
		out[k] = v
	}
	return out
}

// Len returns the number of resources.
func (t *Template) Len() int {
	return len(t.resources)
}

// Validate reports duplicate IDs and references to logical IDs that do not
// exist in the template.
func (t *Template) Validate() error {
	errs := append([]error(nil), t.errs...)

	check := func(where string, v any) {
		for _, ref := range collectRefs(v) {
			if _, ok := t.resources[ref]; !ok {
				errs = append(errs, fmt.Errorf("%s: reference to unknown resource %q", where, ref))
			}
		}
	}

	ids := make([]string, 0, len(t.resources))
	for id := range t.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := t.resources[id]
		check("resource "+id, map[string]any(r.Properties))
		for _, dep := range r.DependsOn {
			if _, ok := t.resources[dep]; !ok {
				errs = append(errs, fmt.Errorf("resource %s: depends on unknown resource %q", id, dep))
			}
		}
	}
	for name, o := range t.outputs {
		check("output "+name, o.Value)
	}

	return errors.Join(errs...)
}

// Render validates the template and returns its JSON body. Output is
// deterministic: identical templates render to identical bytes.
func (t *Template) Render() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	doc := struct {
		AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion"`
		Description              string               `json:"Description,omitempty"`
		Resources                map[string]*Resource `json:"Resources"`
		Outputs                  map[string]Output    `json:"Outputs,omitempty"`
	}{
		AWSTemplateFormatVersion: formatVersion,
		Description:              t.Description,
		Resources:                t.resources,
		Outputs:                  t.outputs,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return body, nil
}

// collectRefs walks a property tree and returns every logical ID named by
// Ref, Fn::GetAtt or a ${...} placeholder in Fn::Sub. Pseudo parameters are
// skipped.
func collectRefs(v any) []string {
	var refs []string
	var walk func(any)
	walk = func(v any) {
		switch n := v.(type) {
		case map[string]any:
			for k, child := range n {
				switch k {
				case "Ref":
					if s, ok := child.(string); ok && !strings.HasPrefix(s, "AWS::") {
						refs = append(refs, s)
					}
					continue
				case "Fn::GetAtt":
					if parts, ok := child.([]any); ok && len(parts) > 0 {
						if s, ok := parts[0].(string); ok {
							refs = append(refs, s)
						}
					}
					continue
				case "Fn::Sub":
					if s, ok := child.(string); ok {
						refs = append(refs, subRefs(s)...)
						continue
					}
				}
				walk(child)
			}
		case Props:
			walk(map[string]any(n))
		case []any:
			for _, child := range n {
				walk(child)
			}
		case []map[string]any:
			for _, child := range n {
				walk(child)
			}
		}
	}
	walk(v)
	return refs
}

func subRefs(s string) []string {
	var refs []string
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			return refs
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return refs
		}
		name := s[start+2 : start+end]
		s = s[start+end+1:]
		if name == "" || strings.HasPrefix(name, "!") || strings.HasPrefix(name, "AWS::") {
			continue
		}
		if dot := strings.Index(name, "."); dot > 0 {
			name = name[:dot]
		}
		refs = append(refs, name)
	}
}
