package imageauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func TestAuthenticate_NilImageReturnsNil(t *testing.T) {
	creds, err := Authenticate(context.Background(), &specmodel.StepRunContext{}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestAuthenticate_PlainCredentials(t *testing.T) {
	image := &specmodel.Image{Username: "bob", Password: "secret"}
	creds, err := Authenticate(context.Background(), &specmodel.StepRunContext{}, nil, image)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "bob", creds.Username)
	assert.Equal(t, "secret", creds.Password)
}

func TestAuthenticate_NoCredentialsReturnsNil(t *testing.T) {
	image := &specmodel.Image{Name: "node:18"}
	creds, err := Authenticate(context.Background(), &specmodel.StepRunContext{}, nil, image)
	require.NoError(t, err)
	assert.Nil(t, creds)
}
