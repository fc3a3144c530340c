// Package oidc mints the RS256 JWTs the runner hands to step containers as
// BITBUCKET_STEP_OIDC_TOKEN and uses to assume AWS roles.
package oidc

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Config supplies the issuer/audience claims, which come from the
// runner's global config rather than the pipeline spec.
type Config struct {
	Issuer   string
	Audience string
}

// Claims is exported so callers (and tests) can inspect a minted token's
// payload without redecoding it.
type Claims struct {
	jwt.RegisteredClaims
	AccountUUID               string `json:"account_uuid"`
	WorkspaceUUID             string `json:"workspace_uuid"`
	RepositoryUUID            string `json:"repository_uuid"`
	PipelineUUID              string `json:"pipeline_uuid"`
	StepUUID                  string `json:"step_uuid"`
	DeploymentEnvironmentUUID string `json:"deployment_environment_uuid,omitempty"`
	BranchName                string `json:"branch_name"`
}

// Mint builds and signs an OIDC token for the given step context. now is
// injected so callers/tests control iat/exp deterministically.
func Mint(cfg Config, ctx *specmodel.StepRunContext, now time.Time) (string, error) {
	run := ctx.Run

	privKey, err := parsePrivateKey(run.Workspace.OIDCPrivateKeyPEM)
	if err != nil {
		return "", err
	}

	pubKeyPEM, err := publicKeyPEM(privKey)
	if err != nil {
		return "", err
	}
	kid := uuid.NewSHA1(uuid.NameSpaceOID, pubKeyPEM).String()

	sub := fmt.Sprintf("{%s}:{%s}", run.PipelineUUID.String(), ctx.StepUUID.String())
	var deploymentEnvUUID string
	if ctx.Step.Deployment != "" {
		deploymentEnvUUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(ctx.Step.Deployment)).String()
		sub = fmt.Sprintf("{%s}:{%s}:{%s}", run.PipelineUUID.String(), deploymentEnvUUID, ctx.StepUUID.String())
	}

	iat := now.Unix()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(time.Unix(iat+3600, 0)),
			Subject:   sub,
		},
		AccountUUID:               wrapUUID(run.Workspace.OwnerUUID.String()),
		WorkspaceUUID:             wrapUUID(run.Workspace.WorkspaceUUID.String()),
		RepositoryUUID:            wrapUUID(run.Project.RepoUUID.String()),
		PipelineUUID:              wrapUUID(run.PipelineUUID.String()),
		StepUUID:                  wrapUUID(ctx.StepUUID.String()),
		DeploymentEnvironmentUUID: wrapUUIDIfSet(deploymentEnvUUID),
		BranchName:                run.Repository.Branch,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(privKey)
	if err != nil {
		return "", fmt.Errorf("signing OIDC token: %w", err)
	}
	return signed, nil
}

func wrapUUID(id string) string { return "{" + id + "}" }

func wrapUUIDIfSet(id string) string {
	if id == "" {
		return ""
	}
	return wrapUUID(id)
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("decoding PEM block: no block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("OIDC signing key is not RSA")
	}
	return rsaKey, nil
}

func publicKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
