package vault

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(zap.NewNop())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	v.path = filepath.Join(t.TempDir(), "vault.json")
	return v
}

func TestMaskKey_ShortValuesCollapseToStars(t *testing.T) {
	for _, value := range []string{"", "abc", "1234567"} {
		if got := MaskKey(value); got != "***" {
			t.Errorf("MaskKey(%q) = %q, want ***", value, got)
		}
	}
}

func TestMaskKey_KnownPrefixesKeepPrefixAndSuffix(t *testing.T) {
	cases := map[string]string{
		"sk-ant-REDACTED": "sk-",
		"dapi-somethinglong123456":     "dapi-",
		"key-abcdefghijklmnop":         "key-",
		"gsk_abcdefghijklmnopqrstuv":   "gsk_",
		"xai-abcdefghijklmnopqrstuv":   "xai-",
	}
	for value, prefix := range cases {
		masked := MaskKey(value)
		if len(masked) < len(prefix) || masked[:len(prefix)] != prefix {
			t.Errorf("MaskKey(%q) = %q, want prefix %q", value, masked, prefix)
		}
		suffix := value[len(value)-6:]
		if masked[len(masked)-len(suffix):] != suffix {
			t.Errorf("MaskKey(%q) = %q, want suffix %q", value, masked, suffix)
		}
		if contains(masked, value[len(prefix):len(value)-6]) {
			t.Errorf("MaskKey(%q) = %q leaks middle characters", value, masked)
		}
	}
}

func TestMaskKey_GenericValueShowsFirstFourAndLastSix(t *testing.T) {
	masked := MaskKey("abcdefghijklmnopqrstuvwxyz")
	if masked != "abcd...uvwxyz" {
		t.Errorf("got %q, want abcd...uvwxyz", masked)
	}
}

func TestMaskKey_EightCharKeyNoPrefix(t *testing.T) {
	masked := MaskKey("12345678")
	if masked != "1234...345678" {
		t.Errorf("got %q, want 1234...345678", masked)
	}
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestVault_StoreListDelete_RoundTrips(t *testing.T) {
	v := newTestVault(t)

	resp, err := v.Store("OPENAI_API_KEY", "sk-live-abcdefghijklmnop", "openai")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if resp.MaskedValue == "" || resp.Name != "OPENAI_API_KEY" {
		t.Fatalf("unexpected store response: %+v", resp)
	}

	entries, err := v.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "OPENAI_API_KEY" {
		t.Fatalf("expected one entry, got %+v", entries)
	}

	if err := v.Delete("OPENAI_API_KEY"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err = v.List()
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %+v", entries)
	}
}

func TestVault_Delete_UnknownKeyErrors(t *testing.T) {
	v := newTestVault(t)
	if err := v.Delete("NEVER_STORED"); err == nil {
		t.Fatalf("expected an error deleting an unknown key")
	}
}

func TestVault_Store_RejectsEmptyFields(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Store("", "value", "provider"); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := v.Store("name", "", "provider"); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := v.Store("name", "value", ""); err == nil {
		t.Fatalf("expected error for empty provider")
	}
}

func TestVault_Rotate_ReplacesValueAndResetsValidity(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Store("ANTHROPIC_API_KEY", "sk-ant-original-value-here", "anthropic"); err != nil {
		t.Fatalf("store: %v", err)
	}
	v.RecordValidity("ANTHROPIC_API_KEY", true)

	resp, err := v.Rotate("ANTHROPIC_API_KEY", "sk-ant-new-value-here-too")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if resp.IsValid != nil {
		t.Fatalf("expected validity to reset after rotation, got %v", *resp.IsValid)
	}

	value, source, found := v.Resolve("ANTHROPIC_API_KEY")
	if !found || source != "vault" {
		t.Fatalf("expected resolve to find vault entry, found=%v source=%s", found, source)
	}
	if value != "sk-ant-new-value-here-too" {
		t.Errorf("expected rotated value, got %q", value)
	}
}

func TestVault_Rotate_UnknownKeyErrors(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Rotate("NEVER_STORED", "value"); err == nil {
		t.Fatalf("expected an error rotating an unknown key")
	}
}

func TestVault_Resolve_FallsBackToEnvironment(t *testing.T) {
	v := newTestVault(t)
	const envVar = "GOOSE_TEST_VAULT_FALLBACK_KEY"
	os.Setenv(envVar, "env-value-123456")
	defer os.Unsetenv(envVar)

	value, source, found := v.Resolve(envVar)
	if !found || source != "environment" {
		t.Fatalf("expected environment fallback, found=%v source=%s", found, source)
	}
	if value != "env-value-123456" {
		t.Errorf("got %q", value)
	}
}

func TestVault_Resolve_PrefersVaultOverEnvironment(t *testing.T) {
	v := newTestVault(t)
	const envVar = "GOOSE_TEST_VAULT_PRECEDENCE_KEY"
	os.Setenv(envVar, "env-value")
	defer os.Unsetenv(envVar)

	if _, err := v.Store(envVar, "vault-value-123456", "custom"); err != nil {
		t.Fatalf("store: %v", err)
	}

	value, source, found := v.Resolve(envVar)
	if !found || source != "vault" || value != "vault-value-123456" {
		t.Fatalf("expected vault to win, got value=%q source=%q found=%v", value, source, found)
	}
}

func TestVault_ListProviders_ReflectsVaultAndEnvironmentSources(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Store("OPENAI_API_KEY", "sk-live-abcdefghijklmnop", "openai"); err != nil {
		t.Fatalf("store: %v", err)
	}
	os.Setenv("GOOGLE_API_KEY", "env-google-key")
	defer os.Unsetenv("GOOGLE_API_KEY")

	statuses, err := v.ListProviders()
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(statuses) != len(KnownProviders) {
		t.Fatalf("expected %d provider statuses, got %d", len(KnownProviders), len(statuses))
	}

	var openai, google, databricks *ProviderStatus
	for i := range statuses {
		switch statuses[i].Name {
		case "openai":
			openai = &statuses[i]
		case "google":
			google = &statuses[i]
		case "databricks":
			databricks = &statuses[i]
		}
	}
	if openai == nil || !openai.HasKey || openai.KeySource != "vault" {
		t.Fatalf("expected openai to be sourced from vault, got %+v", openai)
	}
	if google == nil || !google.HasKey || google.KeySource != "environment" {
		t.Fatalf("expected google to be sourced from environment, got %+v", google)
	}
	if databricks == nil || databricks.HasKey {
		t.Fatalf("expected databricks to have no key configured, got %+v", databricks)
	}
}

func TestCipher_EncryptDecrypt_RoundTrips(t *testing.T) {
	c, err := newCipher()
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	plaintext := []byte(`{"version":1,"entries":{}}`)
	ciphertext, err := c.encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	decrypted, err := c.decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestCipher_Decrypt_RejectsShortCiphertext(t *testing.T) {
	c, err := newCipher()
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	if _, err := c.decrypt([]byte("short")); err == nil {
		t.Fatalf("expected an error decrypting a too-short ciphertext")
	}
}

func TestVault_Store_PersistsAcrossReopen(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Store("OPENAI_API_KEY", "sk-live-abcdefghijklmnop", "openai"); err != nil {
		t.Fatalf("store: %v", err)
	}

	reopened, err := New(zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.path = v.path

	entries, err := reopened.List()
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "OPENAI_API_KEY" {
		t.Fatalf("expected persisted entry to survive reopen, got %+v", entries)
	}
}
