// Package credentials resolves collector API keys and the signer private
// key from a mounted secret volume, the file-based equivalent of the
// reference implementation's secret-provider client. Config-inlined
// values remain the fallback for sources the volume doesn't cover, the
// same split pkg/config keeps between versioned YAML and
// environment-injected secrets.
package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sentioracle/internal/domain/models"
)

// FileStore implements domain/repository.CredentialStore by reading one
// file per collector source plus a signer key file from dir, re-read on
// Reload so rotating a mounted secret doesn't require a restart. Sources
// with no corresponding file fall back to the value baked in at
// construction (typically the YAML-inlined api_key for dev/test).
type FileStore struct {
	dir           string
	signerKeyFile string

	mu        sync.RWMutex
	fallback  map[models.Source]string
	overrides map[models.Source]string
	signerKey []byte
	signerHex string
}

// NewFileStore builds a store rooted at dir. dir and signerKeyFile may be
// empty, in which case every lookup falls back to fallbackKeys/fallbackSigner.
func NewFileStore(dir, signerKeyFile string, fallbackKeys map[models.Source]string, fallbackSigner string) *FileStore {
	fb := make(map[models.Source]string, len(fallbackKeys))
	for k, v := range fallbackKeys {
		fb[k] = v
	}
	return &FileStore{
		dir:           dir,
		signerKeyFile: signerKeyFile,
		fallback:      fb,
		overrides:     make(map[models.Source]string),
		signerHex:     fallbackSigner,
	}
}

// Load reads every *.key file under dir and the signer key file once,
// populating the in-memory maps Reload later refreshes. A missing dir is
// not an error: the store simply serves fallback values.
func (s *FileStore) Load(ctx context.Context) error {
	return s.reload()
}

// Reload re-reads dir and the signer key file, replacing the in-memory
// overrides atomically. Wired to a SIGHUP-style reload signal by the
// caller; see pkg/server.App.
func (s *FileStore) Reload(ctx context.Context) error {
	return s.reload()
}

func (s *FileStore) reload() error {
	overrides := make(map[models.Source]string)
	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("credentials: read dir: %w", err)
			}
		} else {
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
					continue
				}
				source := models.Source(strings.TrimSuffix(e.Name(), ".key"))
				b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
				if err != nil {
					return fmt.Errorf("credentials: read %s: %w", e.Name(), err)
				}
				overrides[source] = strings.TrimSpace(string(b))
			}
		}
	}

	var signerKey []byte
	signerHex := ""
	if s.signerKeyFile != "" {
		b, err := os.ReadFile(s.signerKeyFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("credentials: read signer key: %w", err)
			}
		} else {
			signerHex = strings.TrimSpace(string(b))
			signerKey = []byte(signerHex)
		}
	}

	s.mu.Lock()
	s.overrides = overrides
	if signerHex != "" {
		s.signerHex = signerHex
		s.signerKey = signerKey
	}
	s.mu.Unlock()
	return nil
}

// CollectorCredential implements domain/repository.CredentialStore.
func (s *FileStore) CollectorCredential(_ context.Context, source models.Source) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overrides[source]; ok {
		return v, nil
	}
	if v, ok := s.fallback[source]; ok {
		return v, nil
	}
	return "", fmt.Errorf("credentials: no credential for source %q", source)
}

// SignerKey implements domain/repository.CredentialStore, returning the
// hex-encoded private key (with or without 0x prefix) as raw bytes; the
// caller decodes it with the same hex parsing signer.NewLocal already does.
func (s *FileStore) SignerKey(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signerHex == "" {
		return nil, fmt.Errorf("credentials: no signer key configured")
	}
	return []byte(s.signerHex), nil
}
