package containerrt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// registryAuth is the JSON shape Docker's registry-auth header expects,
// base64-encoded, per the ImagePullOptions.RegistryAuth contract.
type registryAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func encodeAuthJSON(username, password string) (string, error) {
	data, err := json.Marshal(registryAuth{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("encoding registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}
