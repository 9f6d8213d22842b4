package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	defaultName           = "WEBSESSID"
	defaultExpiration     = 10800 // seconds
	defaultGCMaxLifetime  = 1440  // seconds
	defaultGCProbability  = 1
	defaultGCDivisor      = 100
	defaultCacheLimiter   = CacheLimiterNoCache
	defaultCookiePath     = "/"
	defaultSerializerName = SerializerGob
)

// Cache limiter values.
const (
	CacheLimiterNone            = "none"
	CacheLimiterNoCache         = "nocache"
	CacheLimiterPrivate         = "private"
	CacheLimiterPrivateNoExpire = "private_no_expire"
	CacheLimiterPublic          = "public"
)

// ID generator names.
const (
	IDGeneratorRandom = "random"
	IDGeneratorUUID   = "uuid"
)

// Config configures the session subsystem.
type Config struct {
	// Handler names the session driver (e.g. "model").
	Handler string `yaml:"handler"`

	// DriverModel configures the "model" driver.
	DriverModel DriverModelConfig `yaml:"driver_model"`

	// Expiration is the cache expiration in seconds used by the
	// private and public cache limiters.
	Expiration int `yaml:"expiration"`

	// CacheLimiter selects the cache-control headers sent with the session.
	CacheLimiter string `yaml:"cache_limiter"`

	// SavePath is passed to SaveHandler.Open.
	SavePath string `yaml:"savepath"`

	// Regenerate issues a fresh id for every resumed session.
	Regenerate bool `yaml:"regenerate"`

	// DeleteOldSession destroys the previous id's data when regenerating.
	DeleteOldSession bool `yaml:"delete_old_session"`

	// Name is the session name, used as cookie name.
	Name string `yaml:"name"`

	// CookieParams configures the session cookie.
	CookieParams *CookieParams `yaml:"cookie_params"`

	// GCMaxLifetime is the idle lifetime in seconds after which data is garbage.
	GCMaxLifetime int `yaml:"gc_maxlifetime"`

	// GCProbability / GCDivisor is the chance GC runs at session start.
	// Nil means the default of 1; 0 disables probabilistic GC.
	GCProbability *int `yaml:"gc_probability"`
	GCDivisor     int  `yaml:"gc_divisor"`

	// GCInterval runs GC periodically in the background when positive.
	GCInterval time.Duration `yaml:"gc_interval"`

	// SerializeHandler selects the data encoding: gob (default), json or yaml.
	SerializeHandler string `yaml:"serialize_handler"`

	// IDGenerator selects the id format: random (hex) or uuid.
	IDGenerator string `yaml:"id_generator"`
}

// DriverModelConfig configures the model driver.
type DriverModelConfig struct {
	// Model names the storage model resolved through the ModelLoader.
	Model string `yaml:"model"`

	// Settings holds driver specific settings.
	Settings map[string]any `yaml:",inline"`
}

// CookieParams configures the session cookie.
type CookieParams struct {
	// Lifetime in seconds; 0 means until the browser is closed.
	Lifetime int    `yaml:"lifetime"`
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	HTTPOnly bool   `yaml:"httponly"`
	// SameSite is one of lax, strict, none. Empty leaves the attribute unset.
	SameSite string `yaml:"samesite"`
}

// withDefaults returns a copy of cfg with defaults applied.
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Expiration == 0 {
		c.Expiration = defaultExpiration
	}
	if c.CacheLimiter == "" {
		c.CacheLimiter = defaultCacheLimiter
	}
	if c.GCMaxLifetime == 0 {
		c.GCMaxLifetime = defaultGCMaxLifetime
	}
	probability := defaultGCProbability
	if c.GCProbability != nil {
		probability = *c.GCProbability
	}
	c.GCProbability = &probability
	if c.GCDivisor == 0 {
		c.GCDivisor = defaultGCDivisor
	}
	if c.SerializeHandler == "" {
		c.SerializeHandler = defaultSerializerName
	}
	if c.IDGenerator == "" {
		c.IDGenerator = IDGeneratorRandom
	}
	if c.CookieParams == nil {
		c.CookieParams = &CookieParams{HTTPOnly: true}
	} else {
		params := *c.CookieParams
		c.CookieParams = &params
	}
	if c.CookieParams.Path == "" {
		c.CookieParams.Path = defaultCookiePath
	}
	return c
}

// validate checks the optional settings once defaults are applied.
func (c Config) validate() error {
	switch c.CacheLimiter {
	case CacheLimiterNone, CacheLimiterNoCache, CacheLimiterPrivate,
		CacheLimiterPrivateNoExpire, CacheLimiterPublic:
	default:
		return configError("unknown cache limiter %q", c.CacheLimiter)
	}
	if c.Expiration < 0 {
		return configError("expiration must not be negative")
	}
	if c.GCMaxLifetime < 0 {
		return configError("gc_maxlifetime must not be negative")
	}
	if c.gcProbability() < 0 || c.GCDivisor <= 0 {
		return configError("gc_probability must be >= 0 and gc_divisor > 0")
	}
	if c.CookieParams.Lifetime < 0 {
		return configError("cookie_params.lifetime must not be negative")
	}
	if _, ok := parseSameSite(c.CookieParams.SameSite); !ok {
		return configError("unknown cookie_params.samesite %q", c.CookieParams.SameSite)
	}
	switch c.IDGenerator {
	case IDGeneratorRandom, IDGeneratorUUID:
	default:
		return configError("unknown id generator %q", c.IDGenerator)
	}
	return nil
}

// gcProbability returns the configured probability, or the default when unset.
func (c Config) gcProbability() int {
	if c.GCProbability == nil {
		return defaultGCProbability
	}
	return *c.GCProbability
}

// gcMaxLifetime returns GCMaxLifetime as a duration.
func (c Config) gcMaxLifetime() time.Duration {
	return time.Duration(c.GCMaxLifetime) * time.Second
}

func parseSameSite(s string) (http.SameSite, bool) {
	switch strings.ToLower(s) {
	case "":
		return 0, true
	case "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return 0, false
	}
}
