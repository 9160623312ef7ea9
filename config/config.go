package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bridge.
type Config struct {
	Auth    AuthConfig    `yaml:"auth"`
	API     APIConfig     `yaml:"api"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// AuthConfig controla la identidad del signer y las credenciales.
// Los secretos (clave privada, API creds) vienen SOLO de variables de
// entorno o del .env — nunca del YAML, que suele acabar en git.
type AuthConfig struct {
	PrivateKey        string `yaml:"-"` // env: PK
	ConfiguredAddress string `yaml:"-"` // env: BROWSER_ADDRESS
	APIKey            string `yaml:"-"` // env: CLOB_API_KEY
	Secret            string `yaml:"-"` // env: CLOB_SECRET
	Passphrase        string `yaml:"-"` // env: CLOB_PASS_PHRASE

	SignatureType   string `yaml:"signature_type"` // EOA | POLY_PROXY | POLY_GNOSIS_SAFE | 0 | 1 | 2
	FunderAddress   string `yaml:"funder"`
	OverrideAddress string `yaml:"-"` // env: POLY_ADDRESS_OVERRIDE
	ForceMismatch   bool   `yaml:"-"` // env: FORCE_ADDRESS_MISMATCH
	MatrixProbe     bool   `yaml:"matrix_probe"`
	Debug           bool   `yaml:"debug"`

	// Candidatos del matrix probe; vacío = defaults del prober.
	MatrixSignatureTypes []string `yaml:"matrix_signature_types"`
	MatrixSecretModes    []string `yaml:"matrix_secret_modes"`
	MatrixSigEncodings   []string `yaml:"matrix_sig_encodings"`

	// Backoff del preflight en segundos.
	PreflightBackoffBaseSeconds int `yaml:"preflight_backoff_base_seconds"`
	PreflightBackoffMaxSeconds  int `yaml:"preflight_backoff_max_seconds"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// BridgeConfig controla los defaults del protocolo de comandos.
type BridgeConfig struct {
	StoriesLimit int `yaml:"stories_limit"`
	MarketsLimit int `yaml:"markets_limit"`
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Con path vacío se salta el YAML y usa solo entorno + defaults.
// Los valores del entorno sobreescriben los del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// HasExplicitCreds dice si el operador aportó credenciales API completas.
func (c *Config) HasExplicitCreds() bool {
	return c.Auth.APIKey != "" && c.Auth.Secret != "" && c.Auth.Passphrase != ""
}

// PreflightBackoffBase devuelve el backoff inicial del preflight.
func (c *Config) PreflightBackoffBase() time.Duration {
	return time.Duration(c.Auth.PreflightBackoffBaseSeconds) * time.Second
}

// PreflightBackoffMax devuelve el techo del backoff del preflight.
func (c *Config) PreflightBackoffMax() time.Duration {
	return time.Duration(c.Auth.PreflightBackoffMaxSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PK"); v != "" {
		cfg.Auth.PrivateKey = v
	}
	if v := os.Getenv("BROWSER_ADDRESS"); v != "" {
		cfg.Auth.ConfiguredAddress = v
	}
	if v := os.Getenv("CLOB_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("CLOB_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("CLOB_PASS_PHRASE"); v != "" {
		cfg.Auth.Passphrase = v
	}
	if v := os.Getenv("POLY_SIGNATURE_TYPE"); v != "" {
		cfg.Auth.SignatureType = v
	}
	if v := os.Getenv("POLY_FUNDER"); v != "" {
		cfg.Auth.FunderAddress = v
	}
	if v := os.Getenv("POLY_ADDRESS_OVERRIDE"); v != "" {
		cfg.Auth.OverrideAddress = v
	}
	if v := os.Getenv("FORCE_ADDRESS_MISMATCH"); v != "" {
		cfg.Auth.ForceMismatch = envBool(v)
	}
	if v := os.Getenv("AUTH_MATRIX_PROBE"); v != "" {
		cfg.Auth.MatrixProbe = envBool(v)
	}
	if v := os.Getenv("AUTH_DEBUG"); v != "" {
		cfg.Auth.Debug = envBool(v)
	}
	if v := os.Getenv("PREFLIGHT_BACKOFF_BASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.PreflightBackoffBaseSeconds = n
		}
	}
	if v := os.Getenv("PREFLIGHT_BACKOFF_MAX_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.PreflightBackoffMaxSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Auth.SignatureType == "" {
		cfg.Auth.SignatureType = "EOA"
	}
	if cfg.Auth.PreflightBackoffBaseSeconds <= 0 {
		cfg.Auth.PreflightBackoffBaseSeconds = 1
	}
	if cfg.Auth.PreflightBackoffMaxSeconds <= 0 {
		cfg.Auth.PreflightBackoffMaxSeconds = 300
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Bridge.StoriesLimit <= 0 {
		cfg.Bridge.StoriesLimit = 10
	}
	if cfg.Bridge.MarketsLimit <= 0 {
		cfg.Bridge.MarketsLimit = 20
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polybridge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// envBool interpreta flags de entorno estilo "1"/"true"/"yes".
func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
