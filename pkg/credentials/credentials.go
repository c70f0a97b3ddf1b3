// Package credentials stores and resolves gateway auth tokens.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Manager manages reading and writing credentials.toml in the .chatstream/
// directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .chatstream/ directory; otherwise the standard dotdir resolution
// applies. When no .chatstream/ directory is found, ~/.chatstream/ is created.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		target, err = mgr.ddm.HomeDir()
		if err != nil {
			return nil, err
		}
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Gateways: make(map[string]GatewayCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	return parseCredentials(data)
}

func parseCredentials(data []byte) (*Credentials, error) {
	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Gateways == nil {
		creds.Gateways = make(map[string]GatewayCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetToken stores the auth token for the given gateway.
func (m *Manager) SetToken(gateway, token string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Gateways[NormalizeGateway(gateway)] = GatewayCredential{Token: token}

	return m.Save(creds)
}

// GetToken returns the stored token for the given gateway.
// Returns an empty string if no token is stored.
func (m *Manager) GetToken(gateway string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Gateways[NormalizeGateway(gateway)].Token, nil
}

// RemoveToken deletes the stored token for a gateway.
func (m *Manager) RemoveToken(gateway string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Gateways, NormalizeGateway(gateway))

	return m.Save(creds)
}

// ListGateways returns the gateways that have stored tokens.
func (m *Manager) ListGateways() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	gateways := make([]string, 0, len(creds.Gateways))
	for name := range creds.Gateways {
		gateways = append(gateways, name)
	}

	sort.Strings(gateways)

	return gateways, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// NormalizeGateway turns a gateway URL into its credentials key.
func NormalizeGateway(gateway string) string {
	return strings.TrimRight(strings.TrimSpace(gateway), "/")
}

// MaskToken hides all but the last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
