package deployer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDocker struct {
	mock.Mock
}

func (m *mockDocker) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	_, _ = io.Copy(io.Discard, buildContext)
	args := m.Called(ctx, options)
	return args.Get(0).(types.ImageBuildResponse), args.Error(1)
}

func (m *mockDocker) ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, ref, options)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockDocker) Close() error {
	return nil
}

func stream(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func buildContextDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM node:20-alpine\n"), 0o644))
	return dir
}

const testImage = "111122223333.dkr.ecr.us-east-1.amazonaws.com/nextjs-app:latest"

func TestPublish_BuildsWithBackendArgAndPushes(t *testing.T) {
	docker := &mockDocker{}
	docker.On("ImageBuild", mock.Anything, mock.MatchedBy(func(o types.ImageBuildOptions) bool {
		arg := o.BuildArgs["NEXT_PUBLIC_API_ENDPOINT"]
		return len(o.Tags) == 1 && o.Tags[0] == testImage &&
			o.Dockerfile == "Dockerfile" &&
			arg != nil && *arg == "http://api.internal:80"
	})).Return(types.ImageBuildResponse{Body: stream(`{"stream":"Step 1/1 : FROM node:20-alpine"}`)}, nil)
	docker.On("ImagePush", mock.Anything, testImage, mock.MatchedBy(func(o image.PushOptions) bool {
		raw, err := base64.URLEncoding.DecodeString(o.RegistryAuth)
		if err != nil {
			return false
		}
		var auth registry.AuthConfig
		if err := json.Unmarshal(raw, &auth); err != nil {
			return false
		}
		return auth.Username == "AWS" && auth.Password == "secret" &&
			auth.ServerAddress == "https://111122223333.dkr.ecr.us-east-1.amazonaws.com"
	})).Return(stream(`{"status":"Pushed","id":"abc"}`), nil)

	var out bytes.Buffer
	p := NewImagePublisher(docker, &out, zerolog.Nop())
	err := p.Publish(context.Background(), PublishRequest{
		ContextDir: buildContextDir(t),
		Image:      testImage,
		BuildArgs:  map[string]string{"NEXT_PUBLIC_API_ENDPOINT": "http://api.internal:80"},
		Auth: RegistryAuth{
			Username: "AWS",
			Password: "secret",
			Server:   "https://111122223333.dkr.ecr.us-east-1.amazonaws.com",
		},
	})
	require.NoError(t, err)

	docker.AssertExpectations(t)
	assert.Contains(t, out.String(), "Step 1/1")
}

func TestPublish_BuildErrorStopsBeforePush(t *testing.T) {
	docker := &mockDocker{}
	docker.On("ImageBuild", mock.Anything, mock.Anything).Return(types.ImageBuildResponse{
		Body: stream(`{"errorDetail":{"message":"npm ci failed"},"error":"npm ci failed"}`),
	}, nil)

	p := NewImagePublisher(docker, nil, zerolog.Nop())
	err := p.Publish(context.Background(), PublishRequest{ContextDir: buildContextDir(t), Image: testImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npm ci failed")
	docker.AssertNotCalled(t, "ImagePush", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublish_PushError(t *testing.T) {
	docker := &mockDocker{}
	docker.On("ImageBuild", mock.Anything, mock.Anything).Return(types.ImageBuildResponse{Body: stream(`{"stream":"ok"}`)}, nil)
	docker.On("ImagePush", mock.Anything, testImage, mock.Anything).Return(
		stream(`{"errorDetail":{"message":"denied: not authorized"},"error":"denied: not authorized"}`), nil)

	p := NewImagePublisher(docker, nil, zerolog.Nop())
	err := p.Publish(context.Background(), PublishRequest{ContextDir: buildContextDir(t), Image: testImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push image")
}

func TestPublish_RequiresContext(t *testing.T) {
	p := NewImagePublisher(&mockDocker{}, nil, zerolog.Nop())
	err := p.Publish(context.Background(), PublishRequest{Image: testImage})
	assert.ErrorContains(t, err, "no build context")
}
