package deployer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	// ErrConflict means a resource with the requested identity already
	// exists outside this stack, or the stack is busy with another operation.
	ErrConflict = errors.New("resource conflict")
	// ErrValidationTimeout means a certificate was still waiting for DNS
	// validation when the certificate timeout elapsed.
	ErrValidationTimeout = errors.New("certificate validation timed out")
	// ErrAuthorizationDenied means the deploying identity lacks a permission.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrStageFailed means a pipeline stage reported failure.
	ErrStageFailed = errors.New("pipeline stage failed")
	// ErrStackFailed means the stack operation failed and rolled back.
	ErrStackFailed = errors.New("stack operation failed")
	// ErrStackTimeout means the stack did not settle within the stack timeout.
	ErrStackTimeout  = errors.New("stack operation timed out")
	ErrStackNotFound = errors.New("stack not found")
)

var deniedActionRe = regexp.MustCompile(`not authorized to perform:? (\S+)`)

// StackError describes why a stack operation failed. It unwraps to one of
// the sentinel errors above.
type StackError struct {
	Stack        string
	Resource     string
	ResourceType string
	Status       string
	Reason       string
	// Action is the denied IAM action, when the failure is an authorization one.
	Action string
	Err    error
}

func (e *StackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stack %s", e.Stack)
	if e.Resource != "" {
		fmt.Fprintf(&b, ": resource %s", e.Resource)
		if e.ResourceType != "" {
			fmt.Fprintf(&b, " (%s)", e.ResourceType)
		}
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " %s", e.Status)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Action != "" {
		fmt.Fprintf(&b, ": missing permission %s", e.Action)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// DeniedAction extracts the IAM action from an AWS access-denied message.
func DeniedAction(message string) string {
	m := deniedActionRe.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], ".,;")
}

// classifyReason maps a CloudFormation status reason to a sentinel error.
func classifyReason(reason string) (action string, sentinel error) {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "not authorized to perform"),
		strings.Contains(lower, "accessdenied"),
		strings.Contains(lower, "access denied"):
		return DeniedAction(reason), ErrAuthorizationDenied
	case strings.Contains(lower, "already exists"):
		return "", ErrConflict
	default:
		return "", ErrStackFailed
	}
}

// classifyAPIError wraps an error returned by an AWS API call. Errors that
// carry no recognised code are returned unchanged.
func classifyAPIError(stack string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return &StackError{
			Stack:  stack,
			Reason: apiErr.ErrorMessage(),
			Action: DeniedAction(apiErr.ErrorMessage()),
			Err:    ErrAuthorizationDenied,
		}
	case "AlreadyExistsException":
		return &StackError{Stack: stack, Reason: apiErr.ErrorMessage(), Err: ErrConflict}
	}
	return err
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

func isNoUpdate(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}
