package stack

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/frontstack/internal/model"
)

// repoURIVar is the build environment variable holding the repository URI.
const repoURIVar = "ECR_REPO_URI"

type buildspec struct {
	Version   string               `yaml:"version"`
	Phases    map[string]buildStep `yaml:"phases"`
	Artifacts buildArtifacts       `yaml:"artifacts"`
}

type buildStep struct {
	Commands []string `yaml:"commands"`
}

type buildArtifacts struct {
	Files []string `yaml:"files"`
}

// renderBuildspec builds, tags and pushes the image, then writes the deploy
// manifest naming the shared container. The manifest is the only artifact.
func renderBuildspec(p model.Pipeline, container model.Container, backendEndpoint string) (string, error) {
	image := "$" + repoURIVar + ":" + container.ImageTag

	manifest, err := manifestCommand(container, image, p.ManifestFile)
	if err != nil {
		return "", err
	}

	spec := buildspec{
		Version: "0.2",
		Phases: map[string]buildStep{
			"pre_build": {Commands: []string{
				"echo Logging in to Amazon ECR...",
				"aws ecr get-login-password --region $AWS_DEFAULT_REGION | docker login --username AWS --password-stdin $" + repoURIVar,
			}},
			"build": {Commands: []string{
				"echo Building the Docker image...",
				fmt.Sprintf("docker build -t %s --build-arg %s=%s .", image, backendEnv, shellQuote(backendEndpoint)),
			}},
			"post_build": {Commands: []string{
				"echo Pushing the Docker image...",
				"docker push " + image,
				manifest,
			}},
		},
		Artifacts: buildArtifacts{Files: []string{p.ManifestFile}},
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return "", fmt.Errorf("encode buildspec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode buildspec: %w", err)
	}
	return b.String(), nil
}

// manifestCommand prints the one-element manifest with the image reference
// expanded by the build shell.
func manifestCommand(container model.Container, image, file string) (string, error) {
	doc, err := model.NewManifest(container, "%s").Marshal()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("printf '%s' %q > %s", doc, image, file), nil
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
