package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// ServiceName is stamped on every log line.
	ServiceName string

	AWSAccount         string
	AWSRegion          string
	AWSProfile         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	DomainName      string
	BackendEndpoint string

	GitHubOwner          string
	GitHubRepo           string
	GitHubBranch         string
	GitHubTokenSecretARN string
	// GitHubToken is only used by push-image to clone a private repository.
	GitHubToken string

	// StackPrefix is prepended to every stack name, e.g. NextJsEcrStack.
	StackPrefix string
	// TemplateBucket stages templates too large to send inline. Optional.
	TemplateBucket     string
	CertificateTimeout time.Duration
	StackTimeout       time.Duration

	LogLevel  string
	LogFormat string

	HTTPListenAddr    string
	MetricsListenAddr string
	WebRoot           string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:          getEnv("SERVICE_NAME", ""),
		AWSAccount:           getEnv("AWS_ACCOUNT", ""),
		AWSRegion:            getEnv("AWS_REGION", ""),
		AWSProfile:           getEnv("AWS_PROFILE", ""),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSSessionToken:      getEnv("AWS_SESSION_TOKEN", ""),
		DomainName:           getEnv("DOMAIN_NAME", ""),
		BackendEndpoint:      getEnv("NEXT_PUBLIC_API_ENDPOINT", ""),
		GitHubOwner:          getEnv("GITHUB_OWNER", ""),
		GitHubRepo:           getEnv("GITHUB_REPO", ""),
		GitHubBranch:         getEnv("GITHUB_BRANCH", "main"),
		GitHubTokenSecretARN: getEnv("GITHUB_TOKEN_SECRET_ARN", ""),
		GitHubToken:          getEnv("GITHUB_TOKEN", ""),
		StackPrefix:          getEnv("STACK_PREFIX", "NextJs"),
		TemplateBucket:       getEnv("TEMPLATE_BUCKET", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		HTTPListenAddr:       getEnv("HTTP_LISTEN_ADDR", ":3000"),
		MetricsListenAddr:    getEnv("METRICS_LISTEN_ADDR", ":9090"),
		WebRoot:              getEnv("WEB_ROOT", "public"),
	}

	var err error
	if cfg.CertificateTimeout, err = getDuration("CERTIFICATE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StackTimeout, err = getDuration("STACK_TIMEOUT", 60*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields the named component needs are present and
// well formed. Every problem is reported, not just the first.
func (c *Config) Validate(component string) error {
	var errs []string

	require := func(name, value string) {
		if value == "" {
			errs = append(errs, name+" is required")
		}
	}
	check := func(name, value, tag string) {
		if value == "" {
			return
		}
		if err := validate.Var(value, tag); err != nil {
			errs = append(errs, fmt.Sprintf("%s %q is not a valid %s", name, value, describeTag(tag)))
		}
	}

	switch component {
	case "frontctl":
		require("AWS_ACCOUNT", c.AWSAccount)
		require("AWS_REGION", c.AWSRegion)
		require("DOMAIN_NAME", c.DomainName)
		require("NEXT_PUBLIC_API_ENDPOINT", c.BackendEndpoint)
		require("GITHUB_OWNER", c.GitHubOwner)
		require("GITHUB_REPO", c.GitHubRepo)
		require("GITHUB_BRANCH", c.GitHubBranch)
		require("GITHUB_TOKEN_SECRET_ARN", c.GitHubTokenSecretARN)
		require("STACK_PREFIX", c.StackPrefix)
		check("AWS_ACCOUNT", c.AWSAccount, "numeric,len=12")
		check("DOMAIN_NAME", c.DomainName, "fqdn")
		check("NEXT_PUBLIC_API_ENDPOINT", c.BackendEndpoint, "url")
		check("GITHUB_TOKEN_SECRET_ARN", c.GitHubTokenSecretARN, "startswith=arn:")
		check("STACK_PREFIX", c.StackPrefix, "alphanum")
		if c.CertificateTimeout <= 0 {
			errs = append(errs, "CERTIFICATE_TIMEOUT must be positive")
		}
		if c.StackTimeout <= 0 {
			errs = append(errs, "STACK_TIMEOUT must be positive")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must both be set or both be empty")
		}
	case "frontend":
		require("NEXT_PUBLIC_API_ENDPOINT", c.BackendEndpoint)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		require("WEB_ROOT", c.WebRoot)
		check("NEXT_PUBLIC_API_ENDPOINT", c.BackendEndpoint, "url")
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	switch c.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed for %s: %s", component, strings.Join(errs, "; "))
	}
	return nil
}

var validate = validator.New()

func describeTag(tag string) string {
	switch {
	case strings.HasPrefix(tag, "numeric"):
		return "12-digit account ID"
	case tag == "fqdn":
		return "domain name"
	case tag == "url":
		return "URL"
	case strings.HasPrefix(tag, "startswith=arn:"):
		return "ARN"
	default:
		return tag + " value"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
