package deployer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/platform"
)

// maxInlineTemplate is the largest TemplateBody CloudFormation accepts.
const maxInlineTemplate = 51200

const defaultTimeout = time.Hour

// CloudFormationAPI is the subset of the CloudFormation client used here.
type CloudFormationAPI interface {
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DescribeStackEvents(ctx context.Context, in *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
}

// ObjectPutter stages templates that are too large to send inline.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// CloudFormationDeployer implements Deployer on top of CloudFormation stacks.
type CloudFormationDeployer struct {
	client CloudFormationAPI
	s3     ObjectPutter
	bucket string
	region string
	logger zerolog.Logger

	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
}

// Option configures a CloudFormationDeployer.
type Option func(*CloudFormationDeployer)

// WithTemplateBucket enables staging of large templates in an S3 bucket.
func WithTemplateBucket(client ObjectPutter, bucket, region string) Option {
	return func(d *CloudFormationDeployer) {
		d.s3 = client
		d.bucket = bucket
		d.region = region
	}
}

// WithPollInterval sets the waiter backoff bounds.
func WithPollInterval(minDelay, maxDelay time.Duration) Option {
	return func(d *CloudFormationDeployer) {
		d.minDelay = minDelay
		d.maxDelay = maxDelay
	}
}

// NewCloudFormationDeployer creates a deployer around a CloudFormation client.
func NewCloudFormationDeployer(client CloudFormationAPI, logger zerolog.Logger, opts ...Option) *CloudFormationDeployer {
	d := &CloudFormationDeployer{
		client:   client,
		logger:   logger.With().Str("component", "deployer").Logger(),
		minDelay: 5 * time.Second,
		maxDelay: 30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *CloudFormationDeployer) Describe(ctx context.Context, name string) (*StackResult, error) {
	st, err := d.describe(ctx, name)
	if err != nil {
		return nil, err
	}
	return toResult(st), nil
}

func (d *CloudFormationDeployer) Deploy(ctx context.Context, req StackRequest) (*StackResult, error) {
	logger := d.logger.With().Str("stack", req.Name).Logger()
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}

	body, url, err := d.stage(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := d.describe(ctx, req.Name)
	switch {
	case errors.Is(err, ErrStackNotFound):
		existing = nil
	case err != nil:
		return nil, err
	}

	if existing != nil {
		status := existing.StackStatus
		switch {
		case status == types.StackStatusRollbackComplete:
			// A failed first create leaves a stack that can only be deleted.
			logger.Warn().Msg("stack is in ROLLBACK_COMPLETE from a failed create, deleting before retry")
			if err := d.Destroy(ctx, req.Name, req.Timeout); err != nil {
				return nil, err
			}
			existing = nil
		case strings.HasSuffix(string(status), "_IN_PROGRESS"):
			return nil, &StackError{
				Stack:  req.Name,
				Status: string(status),
				Reason: "another operation is in progress",
				Err:    ErrConflict,
			}
		}
	}

	token := platform.RequestToken("frontstack", "deploy")
	tags := toTags(req.Tags)
	capabilities := []types.Capability{types.CapabilityCapabilityIam, types.CapabilityCapabilityNamedIam}

	var action Action
	if existing == nil {
		logger.Info().Msg("creating stack")
		_, err = d.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:          aws.String(req.Name),
			TemplateBody:       body,
			TemplateURL:        url,
			Capabilities:       capabilities,
			Tags:               tags,
			ClientRequestToken: aws.String(token),
			OnFailure:          types.OnFailureRollback,
		})
		if err != nil {
			return nil, fmt.Errorf("create stack %s: %w", req.Name, classifyAPIError(req.Name, err))
		}
		action = ActionCreated
	} else {
		logger.Info().Msg("updating stack")
		_, err = d.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:          aws.String(req.Name),
			TemplateBody:       body,
			TemplateURL:        url,
			Capabilities:       capabilities,
			Tags:               tags,
			ClientRequestToken: aws.String(token),
		})
		if isNoUpdate(err) {
			logger.Info().Msg("stack is up to date")
			res := toResult(existing)
			res.Action = ActionUnchanged
			return res, nil
		}
		if err != nil {
			return nil, fmt.Errorf("update stack %s: %w", req.Name, classifyAPIError(req.Name, err))
		}
		action = ActionUpdated
	}

	st, err := d.waitSettled(ctx, req, token)
	if err != nil {
		return nil, err
	}

	res := toResult(st)
	res.Action = action
	logger.Info().Str("action", string(action)).Str("status", res.Status).Msg("stack settled")
	return res, nil
}

func (d *CloudFormationDeployer) Destroy(ctx context.Context, name string, timeout time.Duration) error {
	logger := d.logger.With().Str("stack", name).Logger()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if _, err := d.describe(ctx, name); err != nil {
		if errors.Is(err, ErrStackNotFound) {
			logger.Info().Msg("stack does not exist, nothing to delete")
			return nil
		}
		return err
	}

	token := platform.RequestToken("frontstack", "destroy")
	logger.Info().Msg("deleting stack")
	if _, err := d.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName:          aws.String(name),
		ClientRequestToken: aws.String(token),
	}); err != nil {
		return fmt.Errorf("delete stack %s: %w", name, classifyAPIError(name, err))
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(d.client, func(o *cloudformation.StackDeleteCompleteWaiterOptions) {
		o.MinDelay = d.minDelay
		o.MaxDelay = d.maxDelay
	})
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)}, timeout); err != nil {
		if failure := d.failure(ctx, name, token, "DELETE_FAILED"); failure != nil {
			return failure
		}
		return fmt.Errorf("wait for delete of %s: %w", name, err)
	}

	logger.Info().Msg("stack deleted")
	return nil
}

// stage returns either an inline body or the URL of a staged copy.
func (d *CloudFormationDeployer) stage(ctx context.Context, req StackRequest) (*string, *string, error) {
	if len(req.Template) <= maxInlineTemplate {
		return aws.String(string(req.Template)), nil, nil
	}
	if d.s3 == nil || d.bucket == "" {
		return nil, nil, fmt.Errorf("template for %s is %d bytes, over the %d byte inline limit, and no template bucket is configured",
			req.Name, len(req.Template), maxInlineTemplate)
	}

	sum := sha256.Sum256(req.Template)
	key := fmt.Sprintf("%s/%s.json", req.Name, hex.EncodeToString(sum[:]))
	if _, err := d.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(req.Template),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, nil, fmt.Errorf("stage template s3://%s/%s: %w", d.bucket, key, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", d.bucket, d.region, key)
	d.logger.Debug().Str("stack", req.Name).Str("url", url).Msg("staged template")
	return nil, aws.String(url), nil
}

func (d *CloudFormationDeployer) describe(ctx context.Context, name string) (*types.Stack, error) {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrStackNotFound)
		}
		return nil, fmt.Errorf("describe stack %s: %w", name, classifyAPIError(name, err))
	}
	if len(out.Stacks) == 0 || out.Stacks[0].StackStatus == types.StackStatusDeleteComplete {
		return nil, fmt.Errorf("%s: %w", name, ErrStackNotFound)
	}
	return &out.Stacks[0], nil
}

// waitSettled polls the stack until it leaves its in-progress state.
// Success, rollback, the certificate budget and the stack budget are all
// decided by progress.
func (d *CloudFormationDeployer) waitSettled(ctx context.Context, req StackRequest, token string) (*types.Stack, error) {
	var settled *types.Stack
	started := d.now()

	waiter := cloudformation.NewStackCreateCompleteWaiter(d.client, func(o *cloudformation.StackCreateCompleteWaiterOptions) {
		o.MinDelay = d.minDelay
		o.MaxDelay = d.maxDelay
		o.Retryable = func(ctx context.Context, _ *cloudformation.DescribeStacksInput, out *cloudformation.DescribeStacksOutput, err error) (bool, error) {
			if err != nil {
				return false, classifyAPIError(req.Name, err)
			}
			if len(out.Stacks) == 0 {
				return false, fmt.Errorf("%s: %w", req.Name, ErrStackNotFound)
			}
			st := out.Stacks[0]
			settled = &st
			return d.progress(ctx, req, token, st, started)
		}
	})

	err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(req.Name)}, req.Timeout)
	if err == nil {
		return settled, nil
	}

	var stackErr *StackError
	if errors.As(err, &stackErr) || errors.Is(err, ErrStackNotFound) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	status := ""
	if settled != nil {
		status = string(settled.StackStatus)
	}
	return nil, &StackError{Stack: req.Name, Status: status, Reason: err.Error(), Err: ErrStackTimeout}
}

func (d *CloudFormationDeployer) progress(ctx context.Context, req StackRequest, token string, st types.Stack, started time.Time) (bool, error) {
	status := string(st.StackStatus)
	switch st.StackStatus {
	case types.StackStatusCreateComplete, types.StackStatusUpdateComplete:
		return false, nil
	}

	if strings.HasSuffix(status, "_IN_PROGRESS") {
		if strings.Contains(status, "ROLLBACK") {
			return true, nil
		}
		if req.CertificateTimeout > 0 && d.now().Sub(started) > req.CertificateTimeout {
			if id, pending := d.pendingCertificate(ctx, req.Name, token); pending {
				return false, &StackError{
					Stack:        req.Name,
					Resource:     id,
					ResourceType: string(cfn.CertificateManagerCertificate),
					Status:       string(types.ResourceStatusCreateInProgress),
					Reason:       fmt.Sprintf("DNS validation not complete after %s", req.CertificateTimeout),
					Err:          ErrValidationTimeout,
				}
			}
		}
		return true, nil
	}

	if failure := d.failure(ctx, req.Name, token, status); failure != nil {
		return false, failure
	}
	return false, &StackError{Stack: req.Name, Status: status, Reason: aws.ToString(st.StackStatusReason), Err: ErrStackFailed}
}

// failure finds the first resource failure recorded for the operation
// identified by token and classifies it.
func (d *CloudFormationDeployer) failure(ctx context.Context, stack, token, status string) error {
	events, err := d.operationEvents(ctx, stack, token)
	if err != nil {
		d.logger.Warn().Err(err).Str("stack", stack).Msg("could not read stack events")
		return nil
	}
	// Events are newest first; the root cause is the oldest failure.
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !strings.HasSuffix(string(ev.ResourceStatus), "_FAILED") {
			continue
		}
		reason := aws.ToString(ev.ResourceStatusReason)
		if reason == "" || strings.Contains(reason, "Resource creation cancelled") {
			continue
		}
		action, sentinel := classifyReason(reason)
		return &StackError{
			Stack:        stack,
			Resource:     aws.ToString(ev.LogicalResourceId),
			ResourceType: aws.ToString(ev.ResourceType),
			Status:       status,
			Reason:       reason,
			Action:       action,
			Err:          sentinel,
		}
	}
	return nil
}

// pendingCertificate reports whether a certificate created by this
// operation is still waiting for validation.
func (d *CloudFormationDeployer) pendingCertificate(ctx context.Context, stack, token string) (string, bool) {
	events, err := d.operationEvents(ctx, stack, token)
	if err != nil {
		return "", false
	}
	latest := map[string]types.ResourceStatus{}
	for _, ev := range events {
		if aws.ToString(ev.ResourceType) != string(cfn.CertificateManagerCertificate) {
			continue
		}
		id := aws.ToString(ev.LogicalResourceId)
		if _, seen := latest[id]; !seen {
			latest[id] = ev.ResourceStatus
		}
	}
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if latest[id] == types.ResourceStatusCreateInProgress {
			return id, true
		}
	}
	return "", false
}

const maxEventPages = 5

func (d *CloudFormationDeployer) operationEvents(ctx context.Context, stack, token string) ([]types.StackEvent, error) {
	var events []types.StackEvent
	p := cloudformation.NewDescribeStackEventsPaginator(d.client, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stack),
	})
	for page := 0; p.HasMorePages() && page < maxEventPages; page++ {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe stack events %s: %w", stack, err)
		}
		older := false
		for _, ev := range out.StackEvents {
			if aws.ToString(ev.ClientRequestToken) != token {
				if len(events) > 0 {
					older = true
					break
				}
				continue
			}
			events = append(events, ev)
		}
		if older {
			break
		}
	}
	return events, nil
}

func toResult(st *types.Stack) *StackResult {
	res := &StackResult{
		Name:    aws.ToString(st.StackName),
		ID:      aws.ToString(st.StackId),
		Status:  string(st.StackStatus),
		Reason:  aws.ToString(st.StackStatusReason),
		Outputs: make(map[string]string, len(st.Outputs)),
	}
	for _, o := range st.Outputs {
		res.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return res
}

func toTags(m map[string]string) []types.Tag {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return tags
}
