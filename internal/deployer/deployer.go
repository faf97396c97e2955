package deployer

import (
	"context"
	"time"
)

// Action is what a deploy did to the stack.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionDeleted   Action = "deleted"
)

// StackRequest describes one create-or-update of a stack.
type StackRequest struct {
	Name     string
	Template []byte
	Tags     map[string]string
	// Timeout bounds how long Deploy waits for the stack to settle.
	Timeout time.Duration
	// CertificateTimeout, when set, bounds how long a certificate in the
	// stack may stay pending validation before Deploy gives up.
	CertificateTimeout time.Duration
}

// StackResult is the observed state of a stack.
type StackResult struct {
	Name    string
	ID      string
	Status  string
	Reason  string
	Action  Action
	Outputs map[string]string
}

// Deployer defines the stack lifecycle operations the provisioning driver
// relies on. Deploy is idempotent: deploying an unchanged template reports
// ActionUnchanged and touches nothing.
type Deployer interface {
	Deploy(ctx context.Context, req StackRequest) (*StackResult, error)
	Destroy(ctx context.Context, name string, timeout time.Duration) error
	// Describe returns ErrStackNotFound when the stack does not exist.
	Describe(ctx context.Context, name string) (*StackResult, error)
}
