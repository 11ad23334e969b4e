package blogvault

import "time"

// Storage backend names accepted by Config.Backend.
const (
	BackendBlob  = "blob"
	BackendLocal = "local"
)

// BlobConfig holds the connection settings for the S3-compatible object store
// used by the blob backend.
type BlobConfig struct {
	Endpoint  string // host:port of the object store
	Region    string
	AccessKey string
	SecretKey string // also the signing key for image access URLs
	UseSSL    bool

	DataBucket  string // collection documents (default "blog-data")
	ImageBucket string // image derivatives (default "blog-images")
}

// Config holds all configuration for a blogvault instance.
type Config struct {
	Addr      string // Listen address (default ":3000")
	PublicURL string // Canonical base URL (default "http://localhost:3000")

	Backend string     // "blob" or "local" (default "local"), resolved once at startup
	DataDir string     // Local backend data directory (default "data")
	Blob    BlobConfig // Blob backend settings

	RedisURL string // Cache backend, e.g. "redis://localhost:6379"; empty disables caching

	AdminPassword string // Required: admin login password
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	CacheTTL       time.Duration // Redis entry TTL (default 1h)
	AboutCacheTTL  time.Duration // Redis TTL for the about document (default 10min)
	AboutMemoryTTL time.Duration // In-process about cache TTL (default 60s)
	SignedURLTTL   time.Duration // Image URL validity (default 10 years)

	LogLevel  string // debug|info|warn|error (default "info")
	LogFormat string // "console" or "json" (default "console")
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:3000"
	}
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Blob.DataBucket == "" {
		c.Blob.DataBucket = "blog-data"
	}
	if c.Blob.ImageBucket == "" {
		c.Blob.ImageBucket = "blog-images"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.AboutCacheTTL == 0 {
		c.AboutCacheTTL = 10 * time.Minute
	}
	if c.AboutMemoryTTL == 0 {
		c.AboutMemoryTTL = 60 * time.Second
	}
	if c.SignedURLTTL == 0 {
		// Stored image URLs are embedded in documents and must outlive any
		// session, so these are access-convenience tokens with a very long
		// validity, not short-lived security tokens.
		c.SignedURLTTL = 10 * 365 * 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered, before the
// server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithDocumentStore overrides the configured storage backend with a
// caller-supplied DocumentStore. Mainly useful in tests.
func WithDocumentStore(ds DocumentStore) Option {
	return func(a *App) {
		a.docs = ds
	}
}
