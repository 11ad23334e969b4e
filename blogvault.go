// Package blogvault is the content engine behind a personal blog: posts, a
// photo gallery, and an about page, persisted as whole JSON documents in
// blob storage with a Redis read-through cache in front and an image
// derivative pipeline for uploads.
//
// Collections are stored one-document-per-collection (posts.json,
// gallery.json, about.json) and mutated via read-modify-write cycles with
// optimistic concurrency. Uploaded images become a thumbnail/original
// derivative pair addressed by long-lived signed URLs.
package blogvault

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
)

// App is the central blogvault application. It wires the document store,
// cache, image pipeline, and collection managers together and exposes them
// over a JSON API.
type App struct {
	Config  Config
	Echo    *echo.Echo
	Log     *slog.Logger
	Cache   *Cache
	Images  *ImageStore
	Posts   *Posts
	Gallery *Gallery
	About   *About

	docs         DocumentStore
	signer       *URLSigner
	localImages  *localObjectStore
	loginLimiter *LoginLimiter
	customRoutes []func(*App)
}

// New creates a blogvault App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start initializes storage, cache, managers, middleware, and routes, then
// starts the server. It blocks until the server stops.
func (a *App) Start() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("blogvault: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("blogvault: SessionSecret is required")
	}

	a.Log = newLogger(a.Config.LogLevel, a.Config.LogFormat)

	ctx := context.Background()
	objects, err := a.initStorage(ctx)
	if err != nil {
		return fmt.Errorf("blogvault: init storage: %w", err)
	}

	a.Cache = NewCache(a.Config.RedisURL, a.Config.CacheTTL, a.Log)
	a.Images = NewImageStore(objects, a.signer, a.Log)
	a.Posts = NewPosts(a.docs, a.Images, a.Cache, a.Log)
	a.Gallery = NewGallery(a.docs, a.Images, a.Cache, a.Log)
	a.About = NewAbout(a.docs, a.Cache, a.Config.AboutMemoryTTL, a.Config.AboutCacheTTL, a.Log)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}

	a.Log.Info("starting", "addr", a.Config.Addr, "backend", a.Config.Backend)
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// initStorage builds the document store and the image container for the
// configured backend. The choice is made exactly once, here.
func (a *App) initStorage(ctx context.Context) (objectStore, error) {
	switch a.Config.Backend {
	case BackendBlob:
		cl, err := NewBlobClient(a.Config.Blob)
		if err != nil {
			return nil, err
		}
		if a.docs == nil {
			docs, err := NewBlobDocumentStore(ctx, cl, a.Config.Blob.DataBucket)
			if err != nil {
				return nil, err
			}
			a.docs = docs
		}
		objects, err := newMinioObjectStore(ctx, cl, a.Config.Blob.ImageBucket)
		if err != nil {
			return nil, err
		}
		a.signer = NewURLSigner(a.Config.Blob.ImageBucket, a.Config.Blob.SecretKey, a.Config.SignedURLTTL)
		return objects, nil

	case BackendLocal:
		if a.docs == nil {
			docs, err := NewLocalDocumentStore(a.Config.DataDir)
			if err != nil {
				return nil, err
			}
			a.docs = docs
		}
		objects, err := newLocalObjectStore(a.Config.DataDir, a.Config.PublicURL)
		if err != nil {
			return nil, err
		}
		a.localImages = objects
		a.signer = NewURLSigner("images", a.Config.Blob.SecretKey, a.Config.SignedURLTTL)
		return objects, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", a.Config.Backend)
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.POST("/api/auth/login", a.handleLogin)
	e.POST("/api/auth/logout", handleLogout)

	e.GET("/api/posts", a.handleListPosts)
	e.POST("/api/posts", a.handleCreatePost, requireAuth)
	e.GET("/api/posts/:id", a.handleGetPost)
	e.PUT("/api/posts/:id", a.handleUpdatePost, requireAuth)
	e.DELETE("/api/posts/:id", a.handleDeletePost, requireAuth)

	e.GET("/api/gallery", a.handleListFolders)
	e.POST("/api/gallery", a.handleCreateFolder, requireAuth)
	e.DELETE("/api/gallery", a.handleDeleteFolder, requireAuth)
	e.GET("/api/gallery/download", a.handleDownload, requireAuth)
	e.GET("/api/gallery/:folderId", a.handleGetFolder)
	e.POST("/api/gallery/:folderId", a.handleUploadToFolder, requireAuth)
	e.PUT("/api/gallery/:folderId", a.handleUpdateFolder, requireAuth)
	e.DELETE("/api/gallery/:folderId", a.handleDeleteImage, requireAuth)

	e.GET("/api/about", a.handleGetAbout)
	e.PUT("/api/about", a.handleUpdateAbout, requireAuth)

	e.POST("/api/upload", a.handleUpload, requireAuth)
	e.GET("/api/images", a.handleListImages, requireAuth)

	// The blob backend serves images straight from the object store; the
	// local backend serves them here, behind the same token check.
	if a.localImages != nil {
		e.GET("/images/:name", a.handleServeImage)
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		a.Log.Error("unhandled error", "error", err)
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	_ = c.JSON(he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)})
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "blogvault: required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}
