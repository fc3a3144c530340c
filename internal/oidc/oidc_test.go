package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func newTestContext(t *testing.T, deployment string) *specmodel.StepRunContext {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	run := &specmodel.PipelineRunContext{
		PipelineUUID: uuid.New(),
		Workspace: &specmodel.WorkspaceMetadata{
			OwnerUUID:         uuid.New(),
			WorkspaceUUID:     uuid.New(),
			OIDCPrivateKeyPEM: pemBytes,
		},
		Project: &specmodel.ProjectMetadata{RepoUUID: uuid.New()},
		Repository: &specmodel.Repository{Branch: "main"},
	}
	return &specmodel.StepRunContext{
		Step:     &specmodel.Step{Deployment: deployment},
		Run:      run,
		StepUUID: uuid.New(),
	}
}

func TestMint_ProducesValidRS256Token(t *testing.T) {
	ctx := newTestContext(t, "")
	cfg := Config{Issuer: "https://api.bitbucket.org", Audience: "ari:cloud:bitbucket::workspace"}
	now := time.Unix(1_700_000_000, 0)

	tokenStr, err := Mint(cfg, ctx, now)
	require.NoError(t, err)

	block, _ := pem.Decode(ctx.Run.Workspace.OIDCPrivateKeyPEM)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	rsaKey := key.(*rsa.PrivateKey)

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return &rsaKey.PublicKey, nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*Claims)

	assert.Equal(t, "https://api.bitbucket.org", claims.Issuer)
	assert.Equal(t, now.Unix()+3600, claims.ExpiresAt.Unix())
	assert.Contains(t, claims.Subject, "{"+ctx.Run.PipelineUUID.String()+"}")
	assert.Empty(t, claims.DeploymentEnvironmentUUID)
	kid, ok := parsed.Header["kid"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, kid)
}

func TestMint_WithDeploymentIncludesEnvironmentUUID(t *testing.T) {
	ctx := newTestContext(t, "production")
	cfg := Config{Issuer: "iss", Audience: "aud"}

	tokenStr, err := Mint(cfg, ctx, time.Now())
	require.NoError(t, err)

	block, _ := pem.Decode(ctx.Run.Workspace.OIDCPrivateKeyPEM)
	key, _ := x509.ParsePKCS8PrivateKey(block.Bytes)
	rsaKey := key.(*rsa.PrivateKey)

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return &rsaKey.PublicKey, nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*Claims)
	assert.NotEmpty(t, claims.DeploymentEnvironmentUUID)

	expected := uuid.NewSHA1(uuid.NameSpaceOID, []byte("production")).String()
	assert.Equal(t, "{"+expected+"}", claims.DeploymentEnvironmentUUID)
}
