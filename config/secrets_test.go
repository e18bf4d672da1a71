package config

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSecretManager map[string]string

func (s stubSecretManager) GetSecret(key string) (string, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return "", errors.New("missing " + key)
}

func TestEnvSecretManager_GetSecret(t *testing.T) {
	t.Setenv("TFTPWATCH_SMTP_PASSWORD", "hunter2")

	manager := &EnvSecretManager{}
	value, err := manager.GetSecret(SecretSMTPPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)

	_, err = manager.GetSecret("does_not_exist")
	assert.Error(t, err)
}

func TestNewSecretManager_Providers(t *testing.T) {
	cfg := &Config{}

	manager, err := NewSecretManager(cfg)
	require.NoError(t, err)
	assert.Nil(t, manager, "config provider keeps file credentials")

	cfg.Secrets.Provider = "env"
	manager, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretManager{}, manager)

	cfg.Secrets.Provider = "aws"
	cfg.Secrets.AWS.Region = "eu-west-3"
	manager, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &AWSSecretManager{}, manager)

	cfg.Secrets.Provider = "gcp"
	_, err = NewSecretManager(cfg)
	assert.Error(t, err)
}

func TestLoadSecrets_EnabledSinksOnly(t *testing.T) {
	cfg := &Config{}
	cfg.Email.Enabled = true
	cfg.Redis.Enabled = false

	manager := stubSecretManager{SecretSMTPPassword: "smtp-secret", SecretRedisPassword: "redis-secret"}
	require.NoError(t, loadSecretsFrom(manager, cfg))

	assert.Equal(t, "smtp-secret", cfg.Email.SenderPassword)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoadSecrets_MissingSMTPPassword(t *testing.T) {
	cfg := &Config{}
	cfg.Email.Enabled = true

	err := loadSecretsFrom(stubSecretManager{}, cfg)
	assert.Error(t, err)
}

func TestLoadSecrets_RedisPasswordOptional(t *testing.T) {
	cfg := &Config{}
	cfg.Redis.Enabled = true
	cfg.Redis.Password = "from-file"

	require.NoError(t, loadSecretsFrom(stubSecretManager{}, cfg))
	assert.Equal(t, "from-file", cfg.Redis.Password)
}

func TestLoadSecrets_FromEnv(t *testing.T) {
	t.Setenv("TFTPWATCH_SMTP_PASSWORD", "env-secret")

	cfg := &Config{}
	cfg.Secrets.Provider = "env"
	cfg.Email.Enabled = true

	require.NoError(t, LoadSecrets(cfg))
	assert.Equal(t, "env-secret", cfg.Email.SenderPassword)
}

func TestVaultSecretManager_GetSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/tftpwatch" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{SecretSMTPPassword: "vault-secret"},
		})
	}))
	defer server.Close()

	cfg := &Config{}
	cfg.Secrets.Vault.Address = server.URL
	cfg.Secrets.Vault.Token = "test-token"

	manager, err := NewVaultSecretManager(cfg)
	require.NoError(t, err)

	value, err := manager.GetSecret(SecretSMTPPassword)
	require.NoError(t, err)
	assert.Equal(t, "vault-secret", value)

	_, err = manager.GetSecret(SecretRedisPassword)
	assert.Error(t, err)
}
