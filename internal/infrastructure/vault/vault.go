// Package vault is the encrypted secret store backing provider API keys:
// AES-256-GCM at rest behind ~/.ngoclaw/vault.json, with a vault-then-
// environment-variable resolution order for secret lookup.
package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/infrastructure/config"
)

// Entry is one stored secret.
type Entry struct {
	Name        string     `json:"name"`
	Provider    string     `json:"provider"`
	Value       string     `json:"value"`
	MaskedValue string     `json:"masked_value"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	IsValid     *bool      `json:"is_valid,omitempty"`
}

// Response is the list/get view of an Entry: everything but the raw value.
type Response struct {
	Name        string     `json:"name"`
	Provider    string     `json:"provider"`
	MaskedValue string     `json:"masked_value"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	IsValid     *bool      `json:"is_valid,omitempty"`
}

func toResponse(e Entry) Response {
	return Response{
		Name:        e.Name,
		Provider:    e.Provider,
		MaskedValue: e.MaskedValue,
		CreatedAt:   e.CreatedAt,
		LastUsed:    e.LastUsed,
		IsValid:     e.IsValid,
	}
}

// Provider is a well-known LLM provider: its secret's env var name, a
// label, and (when non-empty) a base URL the Vault can probe for
// connectivity/validity.
type Provider struct {
	EnvVar  string
	Name    string
	TestURL string
}

// KnownProviders mirrors the provider table used to populate ProviderStatus
// and the validity-check URL per provider.
var KnownProviders = []Provider{
	{EnvVar: "ANTHROPIC_API_KEY", Name: "anthropic", TestURL: "https://api.anthropic.com"},
	{EnvVar: "OPENAI_API_KEY", Name: "openai", TestURL: "https://api.openai.com"},
	{EnvVar: "GOOGLE_API_KEY", Name: "google", TestURL: "https://generativelanguage.googleapis.com"},
	{EnvVar: "DATABRICKS_TOKEN", Name: "databricks", TestURL: ""},
	{EnvVar: "OLLAMA_HOST", Name: "ollama", TestURL: ""},
}

// ProviderStatus summarizes one provider's key availability.
type ProviderStatus struct {
	Name      string `json:"name"`
	EnvVar    string `json:"env_var"`
	HasKey    bool   `json:"has_key"`
	KeySource string `json:"key_source,omitempty"`
	IsValid   *bool  `json:"is_valid,omitempty"`
}

// store is the on-disk schema, versioned for future migrations.
type store struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Vault is a process-wide, mutex-guarded view over the on-disk encrypted
// store. Every mutating call reloads from disk first and saves back
// immediately, so concurrent goosed/goosectl processes never silently
// clobber each other's last write for long.
type Vault struct {
	mu     sync.Mutex
	path   string
	cipher *aeadCipher
	logger *zap.Logger
}

// New opens the vault at the default location (~/.ngoclaw/vault.json),
// deriving its encryption key from machine/user-specific material.
func New(logger *zap.Logger) (*Vault, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := newCipher()
	if err != nil {
		return nil, fmt.Errorf("vault: derive encryption key: %w", err)
	}
	return &Vault{
		path:   filepath.Join(config.HomeDir(), "vault.json"),
		cipher: c,
		logger: logger,
	}, nil
}

func (v *Vault) load() (*store, error) {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &store{Version: 1, Entries: map[string]Entry{}}, nil
		}
		return nil, fmt.Errorf("read vault file: %w", err)
	}

	plaintext, err := v.cipher.decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt vault file: %w", err)
	}

	var s store
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("parse vault JSON: %w", err)
	}
	if s.Entries == nil {
		s.Entries = map[string]Entry{}
	}
	return &s, nil
}

func (v *Vault) save(s *store) error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	plaintext, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize vault: %w", err)
	}

	ciphertext, err := v.cipher.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt vault: %w", err)
	}

	return os.WriteFile(v.path, ciphertext, 0600)
}

// List returns every stored entry (masked) plus any KnownProviders key
// found only in the environment, sorted by name.
func (v *Vault) List() ([]Response, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil {
		return nil, err
	}

	out := make([]Response, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, toResponse(e))
	}

	for _, p := range KnownProviders {
		if _, known := s.Entries[p.EnvVar]; known {
			continue
		}
		if val := os.Getenv(p.EnvVar); val != "" {
			out = append(out, Response{
				Name:        p.EnvVar,
				Provider:    p.Name,
				MaskedValue: MaskKey(val),
				CreatedAt:   time.Now(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Store saves a new or replacement key.
func (v *Vault) Store(name, value, provider string) (Response, error) {
	if name == "" || value == "" || provider == "" {
		return Response{}, fmt.Errorf("vault: name, value and provider are all required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil {
		return Response{}, err
	}

	entry := Entry{
		Name:        name,
		Provider:    provider,
		Value:       value,
		MaskedValue: MaskKey(value),
		CreatedAt:   time.Now(),
	}
	s.Entries[name] = entry

	if err := v.save(s); err != nil {
		return Response{}, err
	}
	v.logger.Info("vault: key stored", zap.String("name", name), zap.String("provider", provider))
	return toResponse(entry), nil
}

// Delete removes a stored key. Returns an error if the key is not present.
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil {
		return err
	}
	if _, ok := s.Entries[name]; !ok {
		return fmt.Errorf("vault: key %q not found", name)
	}
	delete(s.Entries, name)

	if err := v.save(s); err != nil {
		return err
	}
	v.logger.Info("vault: key removed", zap.String("name", name))
	return nil
}

// Rotate replaces an existing key's value, resetting its validity flag.
func (v *Vault) Rotate(name, newValue string) (Response, error) {
	if name == "" || newValue == "" {
		return Response{}, fmt.Errorf("vault: name and new value are both required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil {
		return Response{}, err
	}
	entry, ok := s.Entries[name]
	if !ok {
		return Response{}, fmt.Errorf("vault: key %q not found", name)
	}

	entry.Value = newValue
	entry.MaskedValue = MaskKey(newValue)
	entry.IsValid = nil
	s.Entries[name] = entry

	if err := v.save(s); err != nil {
		return Response{}, err
	}
	v.logger.Info("vault: key rotated", zap.String("name", name))
	return toResponse(entry), nil
}

// Resolve looks up a secret's current value, checking the vault before
// falling back to the environment variable of the same name. Returns the
// value and a source tag ("vault" or "environment").
func (v *Vault) Resolve(name string) (value string, source string, found bool) {
	v.mu.Lock()
	s, err := v.load()
	v.mu.Unlock()

	if err == nil {
		if entry, ok := s.Entries[name]; ok {
			return entry.Value, "vault", true
		}
	}

	if val := os.Getenv(name); val != "" {
		return val, "environment", true
	}
	return "", "", false
}

// RecordValidity updates an entry's last-known validity, a no-op if the
// key is only present via environment variable.
func (v *Vault) RecordValidity(name string, valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil {
		return
	}
	entry, ok := s.Entries[name]
	if !ok {
		return
	}
	now := time.Now()
	entry.IsValid = &valid
	entry.LastUsed = &now
	s.Entries[name] = entry
	_ = v.save(s)
}

// ListProviders reports key availability for every KnownProviders entry,
// vault taking precedence over environment.
func (v *Vault) ListProviders() ([]ProviderStatus, error) {
	v.mu.Lock()
	s, err := v.load()
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]ProviderStatus, 0, len(KnownProviders))
	for _, p := range KnownProviders {
		status := ProviderStatus{Name: p.Name, EnvVar: p.EnvVar}
		if entry, ok := s.Entries[p.EnvVar]; ok {
			status.HasKey = true
			status.KeySource = "vault"
			status.IsValid = entry.IsValid
		} else if os.Getenv(p.EnvVar) != "" {
			status.HasKey = true
			status.KeySource = "environment"
		}
		out = append(out, status)
	}
	return out, nil
}

// MaskKey masks a secret value for display: keys shorter than 8 characters
// collapse to "***"; keys with a recognized provider prefix show the
// prefix plus the last 6 characters; everything else shows its first 4
// and last 6 characters.
func MaskKey(value string) string {
	if len(value) < 8 {
		return "***"
	}

	prefixes := []string{"sk-", "pk-", "key-", "dapi-", "gsk_", "xai-"}
	for _, prefix := range prefixes {
		if len(value) >= len(prefix) && value[:len(prefix)] == prefix {
			suffixStart := len(value) - 6
			if suffixStart < 0 {
				suffixStart = 0
			}
			return fmt.Sprintf("%s...%s", prefix, value[suffixStart:])
		}
	}

	suffixStart := len(value) - 6
	if suffixStart < 0 {
		suffixStart = 0
	}
	return fmt.Sprintf("%s...%s", value[:4], value[suffixStart:])
}
