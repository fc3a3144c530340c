package metadata

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

const rsaKeyBits = 2048

// LoadWorkspace reads <dataDir>/workspace.json, generating a fresh
// 2048-bit RSA key pair and UUIDs on first use and persisting them so
// they survive across runs (the OIDC Token Issuer's signing key must be
// stable for a given workspace).
func LoadWorkspace(dataDir string) (*specmodel.WorkspaceMetadata, error) {
	path := filepath.Join(dataDir, "workspace.json")

	data, err := os.ReadFile(path)
	if err == nil {
		var ws specmodel.WorkspaceMetadata
		if err := json.Unmarshal(data, &ws); err != nil {
			return nil, fmt.Errorf("parsing workspace metadata %s: %w", path, err)
		}
		return &ws, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading workspace metadata: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating OIDC signing key: %w", err)
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling OIDC signing key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})

	ws := &specmodel.WorkspaceMetadata{
		OwnerUUID:         uuid.New(),
		WorkspaceUUID:     uuid.New(),
		OIDCPrivateKeyPEM: pemBytes,
	}

	out, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding workspace metadata: %w", err)
	}
	if err := writeFileAtomic(path, out, 0o600); err != nil {
		return nil, err
	}

	return ws, nil
}
