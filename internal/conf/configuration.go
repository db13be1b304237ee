package conf

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultHTTPTimeout = 30 * time.Second

// NintendoConfiguration holds the Nintendo Account and Coral (NSO app) settings.
type NintendoConfiguration struct {
	ClientID    string `json:"client_id" split_words:"true" default:"71b963c1b7b6d119"`
	RedirectURI string `json:"redirect_uri" split_words:"true" default:"npf71b963c1b7b6d119://auth"`
	Scopes      string `json:"scopes" default:"openid user user.birthday user.mii user.screenName"`

	AccountsURL    string `json:"accounts_url" split_words:"true" default:"https://accounts.nintendo.com"`
	AccountsAPIURL string `json:"accounts_api_url" split_words:"true" default:"https://api.accounts.nintendo.com"`
	CoralURL       string `json:"coral_url" split_words:"true" default:"https://api-lp1.znc.srv.nintendo.net"`

	// AppVersion is the NSO app version reported to Coral. It is used as-is
	// when discovery is disabled or fails.
	AppVersion         string `json:"app_version" split_words:"true" default:"2.6.0"`
	DiscoverAppVersion bool   `json:"discover_app_version" split_words:"true" default:"true"`
	AppStoreURL        string `json:"app_store_url" split_words:"true" default:"https://apps.apple.com/us/app/nintendo-switch-online/id1234806557"`

	BrowserUserAgent string `json:"browser_user_agent" split_words:"true" default:"Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/94.0.4606.61 Mobile Safari/537.36"`
	OSVersion        string `json:"os_version" split_words:"true" default:"Android/7.1.2"`
}

func (c *NintendoConfiguration) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("conf: nintendo client id is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("conf: nintendo redirect uri is required")
	}
	for name, raw := range map[string]string{
		"accounts_url":     c.AccountsURL,
		"accounts_api_url": c.AccountsAPIURL,
		"coral_url":        c.CoralURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("conf: nintendo %s: %w", name, err)
		}
	}
	return nil
}

// AttestationConfiguration describes the external f-token generation service.
type AttestationConfiguration struct {
	URL       string `json:"url" default:"https://api.imink.app/f"`
	UserAgent string `json:"user_agent" split_words:"true" default:"nsoauth"`

	// RateLimit caps outbound attestation calls, either per second or as
	// "N/duration". Zero disables it.
	RateLimit Rate `json:"rate_limit" split_words:"true" default:"0"`
}

func (c *AttestationConfiguration) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("conf: attestation url is required")
	}
	if err := validateHTTPURL(c.URL); err != nil {
		return fmt.Errorf("conf: attestation url: %w", err)
	}
	if c.RateLimit.Events < 0 {
		return fmt.Errorf("conf: attestation rate limit must not be negative")
	}
	return nil
}

// SplatNetConfiguration holds settings for the SplatNet 3 web service.
type SplatNetConfiguration struct {
	URL    string `json:"url" default:"https://api.lp1.av5ja.srv.nintendo.net"`
	GameID int64  `json:"game_id" split_words:"true" default:"4834290508791808"`

	WebViewVersion         string `json:"web_view_version" split_words:"true" default:"4.0.0-22ddb0fd"`
	DiscoverWebViewVersion bool   `json:"discover_web_view_version" split_words:"true" default:"true"`

	AppUserAgent string `json:"app_user_agent" split_words:"true" default:"Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/94.0.4606.61 Mobile Safari/537.36"`
}

func (c *SplatNetConfiguration) Validate() error {
	if err := validateHTTPURL(c.URL); err != nil {
		return fmt.Errorf("conf: splatnet url: %w", err)
	}
	if c.GameID <= 0 {
		return fmt.Errorf("conf: splatnet game id must be positive")
	}
	return nil
}

// HTTPConfiguration controls the outbound HTTP clients.
type HTTPConfiguration struct {
	Timeout time.Duration `json:"timeout"`
}

// GlobalConfiguration holds all the configuration that applies to a pipeline run.
type GlobalConfiguration struct {
	Nintendo    NintendoConfiguration    `json:"nintendo"`
	Attestation AttestationConfiguration `json:"attestation"`
	SplatNet    SplatNetConfiguration    `json:"splatnet" envconfig:"SPLATNET"`
	HTTP        HTTPConfiguration        `json:"http" envconfig:"HTTP"`
	Logging     LoggingConfig            `json:"logging" envconfig:"LOG"`
	Tracing     TracingConfig            `json:"tracing"`
	Metrics     MetricsConfig            `json:"metrics"`
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// handle if .env file does not exist, this is OK
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// LoadGlobal loads configuration from the environment, optionally seeded from
// a dotenv file.
func LoadGlobal(filename string) (*GlobalConfiguration, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, err
	}

	config := new(GlobalConfiguration)
	if err := envconfig.Process("nsoauth", config); err != nil {
		return nil, err
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyDefaults sets defaults for a GlobalConfiguration
func (config *GlobalConfiguration) ApplyDefaults() error {
	if config.HTTP.Timeout <= 0 {
		config.HTTP.Timeout = defaultHTTPTimeout
	}

	config.Nintendo.AccountsURL = strings.TrimSuffix(config.Nintendo.AccountsURL, "/")
	config.Nintendo.AccountsAPIURL = strings.TrimSuffix(config.Nintendo.AccountsAPIURL, "/")
	config.Nintendo.CoralURL = strings.TrimSuffix(config.Nintendo.CoralURL, "/")
	config.SplatNet.URL = strings.TrimSuffix(config.SplatNet.URL, "/")

	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = "nsoauth"
	}

	return nil
}

// Validate validates all of configuration.
func (c *GlobalConfiguration) Validate() error {
	validatables := []interface {
		Validate() error
	}{
		&c.Nintendo,
		&c.Attestation,
		&c.SplatNet,
		&c.Logging,
		&c.Tracing,
		&c.Metrics,
	}

	for _, validatable := range validatables {
		if err := validatable.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
