package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const (
	envelopeVersion = 2
	keyLen          = 32
)

var ErrInvalidMasterKey = errors.New("invalid master key length")

// Store holds provider API keys sealed with AES-GCM. The master key is a raw
// 32-byte file beside the envelope, generated on first use.
type Store struct {
	path    string
	keyPath string
	mu      sync.Mutex
}

// envelope is the on-disk form: a nonce and the sealed JSON of keyring.
type envelope struct {
	Version    int    `json:"schema_version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type keyring struct {
	Version  int               `json:"schema_version"`
	Provider map[string]string `json:"provider_keys,omitempty"`
}

func NewStore(path, keyPath string) *Store {
	return &Store{path: path, keyPath: keyPath}
}

func (s *Store) ProviderKey(providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, err := s.read()
	if err != nil {
		return "", err
	}
	return ring.Provider[canonical(providerID)], nil
}

// SetProviderKey stores key for providerID. A blank key removes the entry.
func (s *Store) SetProviderKey(providerID, key string) error {
	id := canonical(providerID)
	if id == "" {
		return errors.New("provider id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, err := s.read()
	if err != nil {
		return err
	}
	if key = strings.TrimSpace(key); key != "" {
		ring.Provider[id] = key
	} else {
		delete(ring.Provider, id)
	}
	return s.write(ring)
}

func (s *Store) ClearProviderKey(providerID string) error {
	return s.SetProviderKey(providerID, "")
}

// ConfiguredProviders returns the sorted ids that hold a key.
func (s *Store) ConfiguredProviders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, err := s.read()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ring.Provider))
	for id := range ring.Provider {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func canonical(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

func (s *Store) read() (*keyring, error) {
	ring := &keyring{Version: envelopeVersion, Provider: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ring, nil
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode secrets envelope: %w", err)
	}
	aead, err := s.gcm()
	if err != nil {
		return nil, err
	}
	plain, err := open(aead, env)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plain, ring); err != nil {
		return nil, fmt.Errorf("decode secrets: %w", err)
	}
	ring.Version = envelopeVersion
	if ring.Provider == nil {
		ring.Provider = map[string]string{}
	}
	return ring, nil
}

func (s *Store) write(ring *keyring) error {
	aead, err := s.gcm()
	if err != nil {
		return err
	}
	plain, err := json.Marshal(ring)
	if err != nil {
		return err
	}
	env, err := seal(aead, plain)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func seal(aead cipher.AEAD, plain []byte) (envelope, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return envelope{}, err
	}
	return envelope{
		Version:    envelopeVersion,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, nil)),
	}, nil
}

func open(aead cipher.AEAD, env envelope) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return aead.Open(nil, nonce, sealed, nil)
}

func (s *Store) gcm() (cipher.AEAD, error) {
	key, err := s.masterKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Store) masterKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil && len(key) != keyLen:
		return nil, ErrInvalidMasterKey
	case err == nil:
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	key = make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
