package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aprilandsea/blogvault"
)

func main() {
	cfg := blogvault.Config{
		Addr:      blogvault.EnvOr("ADDR", ":3000"),
		PublicURL: blogvault.EnvOr("PUBLIC_URL", "http://localhost:3000"),

		Backend: blogvault.EnvOr("STORAGE_BACKEND", "local"),
		DataDir: blogvault.EnvOr("DATA_DIR", "data"),
		Blob: blogvault.BlobConfig{
			Endpoint:    os.Getenv("BLOB_ENDPOINT"),
			Region:      os.Getenv("BLOB_REGION"),
			AccessKey:   os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey:   os.Getenv("BLOB_SECRET_KEY"),
			UseSSL:      os.Getenv("BLOB_USE_SSL") == "true",
			DataBucket:  blogvault.EnvOr("BLOB_DATA_BUCKET", "blog-data"),
			ImageBucket: blogvault.EnvOr("BLOB_IMAGE_BUCKET", "blog-images"),
		},

		RedisURL: os.Getenv("REDIS_URL"),

		AdminPassword: blogvault.MustEnv("ADMIN_PASSWORD"),
		SessionSecret: blogvault.MustEnv("SESSION_SECRET"),
		CookieSecure:  os.Getenv("COOKIE_SECURE") == "true",

		LogLevel:  blogvault.EnvOr("LOG_LEVEL", "info"),
		LogFormat: blogvault.EnvOr("LOG_FORMAT", "console"),
	}

	if ttl := os.Getenv("CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid CACHE_TTL %q: %v\n", ttl, err)
			os.Exit(1)
		}
		cfg.CacheTTL = d
	}

	app := blogvault.New(cfg)
	defer app.Close()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "blogvault: %v\n", err)
		os.Exit(1)
	}
}
