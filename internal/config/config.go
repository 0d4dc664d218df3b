package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	DB          struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Auth struct {
		// Provider selects the identity provider implementation:
		// "oidc" (discovery against IssuerURL) or "workos".
		Provider  string `mapstructure:"provider"`
		IssuerURL string `mapstructure:"issuer_url"`
		ClientID  string `mapstructure:"client_id"`
		APIURL    string `mapstructure:"api_url"`
	} `mapstructure:"auth"`
	Centrifugo struct {
		Host   string `mapstructure:"host"`
		Port   int    `mapstructure:"port"`
		APIKey string `mapstructure:"api_key"`
		// TokenHMACSecret signs per-client channel tokens. It is distinct
		// from APIKey, which authenticates backend-to-broker publishes.
		TokenHMACSecret string   `mapstructure:"token_hmac_secret"`
		AllowAnonymous  bool     `mapstructure:"allow_anonymous"`
		AllowedOrigins  []string `mapstructure:"allowed_origins"`
	} `mapstructure:"centrifugo"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("environment", "dev")
	viper.SetDefault("auth.provider", "oidc")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("centrifugo.port", 8000)
	// Anonymous access must stay opt-in: never enable it by default.
	viper.SetDefault("centrifugo.allow_anonymous", false)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize issuer url (strip trailing slash if any)
	config.Auth.IssuerURL = normalizeIssuer(config.Auth.IssuerURL)
	config.Auth.APIURL = normalizeIssuer(config.Auth.APIURL)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Auth.Provider {
	case "oidc":
		if c.Auth.IssuerURL == "" {
			return errors.New("auth.issuer_url is required for the oidc provider")
		}
	case "workos":
		if c.Auth.APIURL == "" || c.Auth.ClientID == "" {
			return errors.New("auth.api_url and auth.client_id are required for the workos provider")
		}
	default:
		return errors.New("auth.provider must be one of: oidc, workos")
	}
	if c.Centrifugo.APIKey == "" {
		return errors.New("centrifugo.api_key is required")
	}
	if c.Centrifugo.TokenHMACSecret == "" {
		return errors.New("centrifugo.token_hmac_secret is required")
	}
	return nil
}

// normalizeIssuer ensures the provided issuer string is in a predictable
// form. It removes any trailing slash and leaves the scheme and path intact,
// so a URL pasted from the provider's console works as-is.
func normalizeIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
