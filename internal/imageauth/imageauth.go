// Package imageauth resolves registry credentials for a build or service
// image: plain username/password (returned as given), or static AWS keys
// or an OIDC-assumed AWS web identity (each turned into ECR's
// GetAuthorizationToken call).
package imageauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/localci/pipeline-runner/internal/oidc"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Credentials is what the Container Runner feeds into the Docker SDK's
// registry auth header.
type Credentials struct {
	Username string
	Password string
}

// OIDCMinter is the narrow contract the authenticator needs from the
// OIDC Token Issuer, broken out so tests can substitute a stub without
// generating real RSA keys.
type OIDCMinter interface {
	Mint(ctx *specmodel.StepRunContext) (string, error)
}

type oidcMinterFunc struct {
	cfg oidc.Config
}

func (m oidcMinterFunc) Mint(ctx *specmodel.StepRunContext) (string, error) {
	return oidc.Mint(m.cfg, ctx, time.Now())
}

// NewOIDCMinter adapts internal/oidc.Mint to the OIDCMinter interface
// using the runner's issuer/audience configuration.
func NewOIDCMinter(cfg oidc.Config) OIDCMinter { return oidcMinterFunc{cfg: cfg} }

// Authenticate implements the image-credential precedence rules: AWS OIDC
// role, then static AWS keys, then plain credentials, else nil.
func Authenticate(ctx context.Context, stepCtx *specmodel.StepRunContext, minter OIDCMinter, image *specmodel.Image) (*Credentials, error) {
	if image == nil {
		return nil, nil
	}

	if image.AWS.IsOIDC() {
		return authenticateViaOIDCRole(ctx, stepCtx, minter, image.AWS.OIDCRole)
	}
	if image.AWS.IsStatic() {
		return authenticateViaStaticKeys(ctx, image.AWS.AccessKeyID, image.AWS.SecretAccessKey)
	}
	if image.Username != "" && image.Password != "" {
		return &Credentials{Username: image.Username, Password: image.Password}, nil
	}
	return nil, nil
}

func authenticateViaOIDCRole(ctx context.Context, stepCtx *specmodel.StepRunContext, minter OIDCMinter, roleArn string) (*Credentials, error) {
	token, err := minter.Mint(stepCtx)
	if err != nil {
		return nil, fmt.Errorf("minting OIDC token for AWS role assumption: %w", err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	stsClient := sts.NewFromConfig(cfg)

	sessionName := fmt.Sprintf("pipeline-runner-step-%s", stepCtx.StepUUID.String())
	duration := int32(3600)
	resp, err := stsClient.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(roleArn),
		RoleSessionName:  aws.String(sessionName),
		WebIdentityToken: aws.String(token),
		DurationSeconds:  aws.Int32(duration),
	})
	if err != nil {
		return nil, fmt.Errorf("assuming role %s via web identity: %w", roleArn, err)
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(resp.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(resp.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(resp.Credentials.SessionToken),
	}

	ecrCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{Value: creds}),
		awsconfig.WithRegion(regionFromEnv()),
	)
	if err != nil {
		return nil, fmt.Errorf("building ECR config from assumed role: %w", err)
	}
	return getECRAuthorizationToken(ctx, ecrCfg)
}

func authenticateViaStaticKeys(ctx context.Context, accessKeyID, secretAccessKey string) (*Credentials, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, os.Getenv("AWS_SESSION_TOKEN"))),
		awsconfig.WithRegion(regionFromEnv()),
	)
	if err != nil {
		return nil, fmt.Errorf("building ECR config from static AWS credentials: %w", err)
	}
	return getECRAuthorizationToken(ctx, cfg)
}

func getECRAuthorizationToken(ctx context.Context, cfg aws.Config) (*Credentials, error) {
	client := ecr.NewFromConfig(cfg)
	resp, err := client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, fmt.Errorf("fetching ECR authorization token: %w", err)
	}
	if len(resp.AuthorizationData) == 0 {
		return nil, fmt.Errorf("ECR returned no authorization data")
	}

	token := aws.ToString(resp.AuthorizationData[0].AuthorizationToken)
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decoding ECR authorization token: %w", err)
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, fmt.Errorf("malformed ECR authorization token")
	}
	return &Credentials{Username: user, Password: pass}, nil
}

func regionFromEnv() string {
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return os.Getenv("AWS_REGION")
}
