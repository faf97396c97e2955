package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFrontctl() *Config {
	return &Config{
		AWSAccount:           "111122223333",
		AWSRegion:            "us-east-1",
		DomainName:           "tripiask.com",
		BackendEndpoint:      "http://api.internal:80",
		GitHubOwner:          "FeroHriadel",
		GitHubRepo:           "dockerproject",
		GitHubBranch:         "main",
		GitHubTokenSecretARN: "arn:aws:secretsmanager:us-east-1:111122223333:secret:github-token",
		StackPrefix:          "NextJs",
		CertificateTimeout:   30 * time.Minute,
		StackTimeout:         time.Hour,
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"STACK_PREFIX", "GITHUB_BRANCH", "HTTP_LISTEN_ADDR", "METRICS_LISTEN_ADDR",
		"WEB_ROOT", "LOG_LEVEL", "LOG_FORMAT", "CERTIFICATE_TIMEOUT", "STACK_TIMEOUT",
		"TEMPLATE_BUCKET",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "NextJs", cfg.StackPrefix)
	assert.Equal(t, "main", cfg.GitHubBranch)
	assert.Equal(t, ":3000", cfg.HTTPListenAddr)
	assert.Equal(t, ":9090", cfg.MetricsListenAddr)
	assert.Equal(t, "public", cfg.WebRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Minute, cfg.CertificateTimeout)
	assert.Equal(t, time.Hour, cfg.StackTimeout)
	assert.Empty(t, cfg.TemplateBucket)
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("AWS_ACCOUNT", "111122223333")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("DOMAIN_NAME", "example.org")
	t.Setenv("NEXT_PUBLIC_API_ENDPOINT", "http://10.0.0.5:8080")
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("GITHUB_REPO", "web")
	t.Setenv("GITHUB_BRANCH", "release")
	t.Setenv("GITHUB_TOKEN_SECRET_ARN", "arn:aws:secretsmanager:eu-west-1:111122223333:secret:gh")
	t.Setenv("GITHUB_TOKEN", "ghp_example")
	t.Setenv("STACK_PREFIX", "Acme")
	t.Setenv("TEMPLATE_BUCKET", "acme-templates")
	t.Setenv("CERTIFICATE_TIMEOUT", "45m")
	t.Setenv("STACK_TIMEOUT", "2h")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "111122223333", cfg.AWSAccount)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, "example.org", cfg.DomainName)
	assert.Equal(t, "http://10.0.0.5:8080", cfg.BackendEndpoint)
	assert.Equal(t, "acme", cfg.GitHubOwner)
	assert.Equal(t, "web", cfg.GitHubRepo)
	assert.Equal(t, "release", cfg.GitHubBranch)
	assert.Equal(t, "ghp_example", cfg.GitHubToken)
	assert.Equal(t, "Acme", cfg.StackPrefix)
	assert.Equal(t, "acme-templates", cfg.TemplateBucket)
	assert.Equal(t, 45*time.Minute, cfg.CertificateTimeout)
	assert.Equal(t, 2*time.Hour, cfg.StackTimeout)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("CERTIFICATE_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CERTIFICATE_TIMEOUT")
}

func TestValidate_Frontctl_MissingFields(t *testing.T) {
	cfg := &Config{CertificateTimeout: time.Minute, StackTimeout: time.Minute}
	err := cfg.Validate("frontctl")
	require.Error(t, err)
	for _, name := range []string{
		"AWS_ACCOUNT", "AWS_REGION", "DOMAIN_NAME", "NEXT_PUBLIC_API_ENDPOINT",
		"GITHUB_OWNER", "GITHUB_REPO", "GITHUB_BRANCH", "GITHUB_TOKEN_SECRET_ARN", "STACK_PREFIX",
	} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestValidate_Frontctl_Malformed(t *testing.T) {
	cfg := validFrontctl()
	cfg.AWSAccount = "12345"
	cfg.DomainName = "not a domain"
	cfg.BackendEndpoint = "api.internal"
	cfg.GitHubTokenSecretARN = "github-token"

	err := cfg.Validate("frontctl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_ACCOUNT")
	assert.Contains(t, err.Error(), "DOMAIN_NAME")
	assert.Contains(t, err.Error(), "NEXT_PUBLIC_API_ENDPOINT")
	assert.Contains(t, err.Error(), "GITHUB_TOKEN_SECRET_ARN")
}

func TestValidate_Frontctl_PartialStaticCredentials(t *testing.T) {
	cfg := validFrontctl()
	cfg.AWSAccessKeyID = "AKIAEXAMPLE"

	err := cfg.Validate("frontctl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must both be set")
}

func TestValidate_Frontend_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("frontend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEXT_PUBLIC_API_ENDPOINT")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "WEB_ROOT")
}

func TestValidate_BadLogFormat(t *testing.T) {
	cfg := validFrontctl()
	cfg.LogFormat = "xml"
	err := cfg.Validate("frontctl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestValidate_UnknownComponent(t *testing.T) {
	assert.Error(t, validFrontctl().Validate("worker"))
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validFrontctl()
	cfg.HTTPListenAddr = ":3000"
	cfg.WebRoot = "public"

	assert.NoError(t, cfg.Validate("frontctl"))
	assert.NoError(t, cfg.Validate("frontend"))
}
