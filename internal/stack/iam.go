package stack

// Helpers for the IAM documents embedded in templates. Every grant names its
// resources; "*" is used only for actions that have no resource-level
// scoping.

const allResources = "*"

func assumeRolePolicy(service string) map[string]any {
	return policyDocument(map[string]any{
		"Effect":    "Allow",
		"Principal": map[string]any{"Service": service},
		"Action":    "sts:AssumeRole",
	})
}

func allow(actions []string, resources ...any) map[string]any {
	return map[string]any{
		"Effect":   "Allow",
		"Action":   actions,
		"Resource": resources,
	}
}

func policyDocument(statements ...map[string]any) map[string]any {
	stmts := make([]any, len(statements))
	for i, s := range statements {
		stmts[i] = s
	}
	return map[string]any{
		"Version":   "2012-10-17",
		"Statement": stmts,
	}
}

func inlinePolicy(name string, statements ...map[string]any) map[string]any {
	return map[string]any{
		"PolicyName":     name,
		"PolicyDocument": policyDocument(statements...),
	}
}

var (
	ecrPullActions = []string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
	}
	ecrPushActions = []string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
		"ecr:InitiateLayerUpload",
		"ecr:UploadLayerPart",
		"ecr:CompleteLayerUpload",
		"ecr:PutImage",
	}
	logWriteActions = []string{
		"logs:CreateLogStream",
		"logs:PutLogEvents",
	}
	artifactActions = []string{
		"s3:GetObject",
		"s3:GetObjectVersion",
		"s3:PutObject",
		"s3:GetBucketAcl",
		"s3:GetBucketLocation",
	}
)
