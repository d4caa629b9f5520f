// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Secret sources reported by ResolveSecret.
const (
	SourceConfig    = "config"
	SourceFile      = "file"
	SourceGenerated = "generated"
	SourceEphemeral = "ephemeral"
)

const generatedSecretBytes = 32

// ResolveSecret picks the signing secret. An explicit secret wins. Otherwise
// the secret file is read, or created with a random secret when missing.
// Without either, a random per-process secret is returned and every grant
// becomes invalid on restart.
func ResolveSecret(explicit, file string) ([]byte, string, error) {
	if explicit != "" {
		return []byte(explicit), SourceConfig, nil
	}
	if file == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, "", err
		}
		return secret, SourceEphemeral, nil
	}

	// #nosec G304 -- path is operator-provided configuration
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		secret := bytes.TrimSpace(data)
		if len(secret) == 0 {
			return nil, "", fmt.Errorf("token: secret file %s is empty", file)
		}
		return secret, SourceFile, nil
	case errors.Is(err, os.ErrNotExist):
		secret, err := randomSecret()
		if err != nil {
			return nil, "", err
		}
		if err := writeSecretFile(file, secret); err != nil {
			return nil, "", err
		}
		return secret, SourceGenerated, nil
	default:
		return nil, "", fmt.Errorf("token: read secret file: %w", err)
	}
}

func randomSecret() ([]byte, error) {
	raw := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("token: generate secret: %w", err)
	}
	return []byte(hex.EncodeToString(raw)), nil
}

func writeSecretFile(path string, secret []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("token: create secret dir: %w", err)
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("token: create pending secret file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(append(secret, '\n')); err != nil {
		return fmt.Errorf("token: write secret file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("token: replace secret file: %w", err)
	}
	return nil
}
