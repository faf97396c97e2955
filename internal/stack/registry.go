package stack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/deployer"
	"github.com/edvin/frontstack/internal/model"
	"github.com/edvin/frontstack/internal/provision"
)

// Registry provisions the image repository.
type Registry struct {
	prefix  string
	repo    model.Repository
	checker Checker
}

func NewRegistry(prefix string, repo model.Repository, checker Checker) *Registry {
	return &Registry{prefix: prefix, repo: repo, checker: checker}
}

func (r *Registry) Name() string      { return RegistryUnit }
func (r *Registry) StackName() string { return StackName(r.prefix, RegistryUnit) }
func (r *Registry) Requires() []provision.Key {
	return nil
}

func (r *Registry) Produces() []provision.Key {
	return []provision.Key{RepositoryURI, RepositoryARN, RepositoryName}
}

func (r *Registry) Validate() error {
	return r.repo.Validate()
}

func (r *Registry) Resolve(context.Context, provision.Outputs) (provision.Outputs, error) {
	return nil, nil
}

// Preflight refuses to create the stack over a repository that already
// exists outside of it.
func (r *Registry) Preflight(ctx context.Context, _ provision.Outputs, exists bool) error {
	if exists {
		return nil
	}
	found, err := r.checker.RepositoryExists(ctx, r.repo.Name)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: repository %s already exists outside stack %s", deployer.ErrConflict, r.repo.Name, r.StackName())
	}
	return nil
}

func (r *Registry) Template(provision.Outputs) (*cfn.Template, error) {
	lifecycle, err := lifecyclePolicy(r.repo.MaxImageAgeDays)
	if err != nil {
		return nil, err
	}

	t := cfn.New("Container image repository for the web front end")
	repo := t.Add("Repository", cfn.ECRRepository, cfn.Props{
		"RepositoryName": r.repo.Name,
		"EmptyOnDelete":  r.repo.RemovalPolicy == model.RemovalDestroy,
		"LifecyclePolicy": map[string]any{
			"LifecyclePolicyText": lifecycle,
		},
	})
	if r.repo.RemovalPolicy == model.RemovalRetain {
		repo.WithRemoval(cfn.PolicyRetain)
	} else {
		repo.WithRemoval(cfn.PolicyDelete)
	}

	stack := r.StackName()
	t.Output(OutputRepositoryURI, cfn.GetAtt("Repository", "RepositoryUri"), "Push the first image here before deploying compute", stack+"-"+OutputRepositoryURI)
	t.Output(OutputRepositoryARN, cfn.GetAtt("Repository", "Arn"), "", stack+"-"+OutputRepositoryARN)
	t.Output(OutputRepositoryName, cfn.Ref("Repository"), "", stack+"-"+OutputRepositoryName)
	return t, nil
}

type lifecycleRule struct {
	RulePriority int               `json:"rulePriority"`
	Description  string            `json:"description"`
	Selection    lifecycleSelector `json:"selection"`
	Action       map[string]string `json:"action"`
}

type lifecycleSelector struct {
	TagStatus   string `json:"tagStatus"`
	CountType   string `json:"countType"`
	CountUnit   string `json:"countUnit"`
	CountNumber int    `json:"countNumber"`
}

// lifecyclePolicy expires every image pushed more than days ago.
func lifecyclePolicy(days int) (string, error) {
	doc := map[string][]lifecycleRule{
		"rules": {{
			RulePriority: 1,
			Description:  fmt.Sprintf("Expire images older than %d days", days),
			Selection: lifecycleSelector{
				TagStatus:   "any",
				CountType:   "sinceImagePushed",
				CountUnit:   "days",
				CountNumber: days,
			},
			Action: map[string]string{"type": "expire"},
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal lifecycle policy: %w", err)
	}
	return string(b), nil
}
