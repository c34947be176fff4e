package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleProfile() ConnectionProfile {
	return ConnectionProfile{
		Name:           "staging",
		Host:           "db.internal",
		User:           User{Username: "admin"},
		Password:       "s3cret!",
		Database:       "orders",
		Port:           5432,
		SaveToKeychain: true,
	}
}

func assertSpecFieldsEqual(t *testing.T, expected, actual ConnectionProfile) {
	t.Helper()
	assert.Equal(t, expected.Name, actual.Name)
	assert.Equal(t, expected.Host, actual.Host)
	assert.Equal(t, expected.User, actual.User)
	assert.Equal(t, expected.Password, actual.Password)
	assert.Equal(t, expected.Database, actual.Database)
	assert.Equal(t, expected.Port, actual.Port)
	assert.Equal(t, expected.SaveToKeychain, actual.SaveToKeychain)
}

func TestConnectionProfileSerialization(t *testing.T) {
	t.Run("Should use the persisted key names", func(t *testing.T) {
		p := sampleProfile()
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &raw))

		for _, key := range []string{"name", "host", "user", "password", "database", "port", "saveToKeychain"} {
			assert.Contains(t, raw, key)
		}
		assert.NotContains(t, raw, "PasswordEnc")
		assert.Equal(t, map[string]interface{}{"username": "admin"}, raw["user"])
	})

	t.Run("Should round-trip through JSON", func(t *testing.T) {
		p := sampleProfile()
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var decoded ConnectionProfile
		require.NoError(t, json.Unmarshal(data, &decoded))
		assertSpecFieldsEqual(t, p, decoded)
	})

	t.Run("Should round-trip through YAML", func(t *testing.T) {
		p := sampleProfile()
		p.Driver = DriverMySQL
		data, err := yaml.Marshal(p)
		require.NoError(t, err)

		var decoded ConnectionProfile
		require.NoError(t, yaml.Unmarshal(data, &decoded))
		assertSpecFieldsEqual(t, p, decoded)
		assert.Equal(t, DriverMySQL, decoded.Driver)
	})

	t.Run("Should round-trip through key-value map", func(t *testing.T) {
		p := sampleProfile()
		p.ID = "abc"
		p.SSLMode = "require"

		decoded, err := ProfileFromMap(p.ToMap())
		require.NoError(t, err)
		assertSpecFieldsEqual(t, p, *decoded)
		assert.Equal(t, "abc", decoded.ID)
		assert.Equal(t, "require", decoded.SSLMode)
	})

	t.Run("Should never serialize the encrypted password", func(t *testing.T) {
		p := sampleProfile()
		p.PasswordEnc = "ciphertext"
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "ciphertext")

		out, err := yaml.Marshal(p)
		require.NoError(t, err)
		assert.NotContains(t, string(out), "ciphertext")
	})
}

func TestProfileFromMap(t *testing.T) {
	t.Run("Should accept weakly typed values", func(t *testing.T) {
		p, err := ProfileFromMap(map[string]interface{}{
			"name":           "local",
			"host":           "localhost",
			"port":           "3306",
			"saveToKeychain": "true",
			"user":           map[string]interface{}{"username": "root"},
		})
		require.NoError(t, err)
		assert.Equal(t, 3306, p.Port)
		assert.True(t, p.SaveToKeychain)
		assert.Equal(t, "root", p.User.Username)
	})

	t.Run("Should ignore unknown keys", func(t *testing.T) {
		p, err := ProfileFromMap(map[string]interface{}{
			"name":    "local",
			"comment": "not a profile field",
		})
		require.NoError(t, err)
		assert.Equal(t, "local", p.Name)
	})

	t.Run("Should fail on values that cannot convert", func(t *testing.T) {
		_, err := ProfileFromMap(map[string]interface{}{
			"port": "not-a-number",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode profile")
	})
}

func TestConnectionProfileHelpers(t *testing.T) {
	t.Run("Should format address", func(t *testing.T) {
		p := sampleProfile()
		assert.Equal(t, "db.internal:5432", p.Address())

		p.Driver = DriverSQLite
		p.Database = "/tmp/local.db"
		assert.Equal(t, "/tmp/local.db", p.Address())
	})

	t.Run("Should redact secrets", func(t *testing.T) {
		p := sampleProfile()
		p.PasswordEnc = "enc"
		r := p.Redacted()
		assert.Equal(t, "********", r.Password)
		assert.Empty(t, r.PasswordEnc)
		assert.Equal(t, "s3cret!", p.Password)
	})
}
