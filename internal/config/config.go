// Package config loads jwthelper CLI settings from flags, environment
// variables and an optional config file.
package config

import (
	"crypto/rsa"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/bionicotaku/lingo-utils-jwthelper"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. JWTHELPER_PASSPHRASE.
const EnvPrefix = "JWTHELPER"

// Config holds CLI configuration. Secret fields are redacted by String.
type Config struct {
	PrivateKeyFile string `mapstructure:"private_key_file" validate:"required,file"`
	Passphrase     string `mapstructure:"passphrase" secret:"true" validate:"required"`
	PublicKeyFile  string `mapstructure:"public_key_file" validate:"required,file"`
	ExpirySeconds  uint64 `mapstructure:"expiry_seconds" default:"3600"`
	LeewaySeconds  uint64 `mapstructure:"leeway_seconds" default:"0"`
	Debug          bool   `mapstructure:"debug"`
}

// Default returns a Config with struct defaults applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}
	return cfg
}

// Load merges defaults, the optional config file (YAML, JSON or .env by
// extension) and JWTHELPER_* environment variables into a Config. Flags bound
// to v beforehand take precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := Default()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range keys() {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "bind env %q", key)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %q", configFile)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// ValidateIssuer checks the fields needed to issue tokens.
func (c *Config) ValidateIssuer() error {
	return validatePartial(c, "PrivateKeyFile", "Passphrase")
}

// ValidateVerifier checks the fields needed to verify tokens.
func (c *Config) ValidateVerifier() error {
	return validatePartial(c, "PublicKeyFile")
}

func validatePartial(c *Config, fields ...string) error {
	if err := validator.New().StructPartial(c, fields...); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", toSnakeCase(fe.Field()), fe.Tag()))
			}
			return errors.Newf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Builder returns a jwthelper.Builder populated with every configured field.
// Key files that are not configured are skipped.
func (c *Config) Builder() (*jwthelper.Builder, error) {
	b := jwthelper.NewBuilder().
		ExpirySeconds(c.ExpirySeconds).
		LeewaySeconds(c.LeewaySeconds)

	if c.Passphrase != "" {
		b = b.PrivateKeyPassphrase([]byte(c.Passphrase))
	}
	if c.PrivateKeyFile != "" {
		raw, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "read private key file")
		}
		b = b.EncryptedPrivateKeyPEM(string(raw))
	}
	if c.PublicKeyFile != "" {
		pub, err := c.PublicKey()
		if err != nil {
			return nil, err
		}
		b = b.PublicKey(pub)
	}
	return b, nil
}

// PublicKey reads and parses PublicKeyFile.
func (c *Config) PublicKey() (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(c.PublicKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "read public key file")
	}
	return jwthelper.ParsePublicKeyPEM(raw)
}

// String returns a representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := v.Type()
	parts := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprintf("%v", v.Field(i).Interface())
		if field.Tag.Get("secret") == "true" && value != "" {
			value = "***REDACTED***"
		}
		parts = append(parts, field.Name+": "+value)
	}
	return "Config{" + strings.Join(parts, ", ") + "}"
}

// keys lists the mapstructure key of every Config field.
func keys() []string {
	t := reflect.TypeOf(Config{})
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		out = append(out, key)
	}
	return out
}

func toSnakeCase(str string) string {
	var sb strings.Builder
	runes := []rune(str)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if !(prev >= 'A' && prev <= 'Z') || nextLower {
				sb.WriteByte('_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
