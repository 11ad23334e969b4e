package blogvault

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AboutContent is the singleton about-page document.
type AboutContent struct {
	Content   string `json:"content"`
	UpdatedAt string `json:"updatedAt"`
}

const defaultAboutBody = `## Welcome

This is a place for sharing technical notes, photos, and the occasional
longer write-up.

## Contact

- GitHub: github.com/your-username
- Email: your.email@example.com`

// About manages the about singleton. Reads go through a short-TTL in-process
// cache layered in front of the shared cache layer, so bursts of reads don't
// even leave the process.
type About struct {
	docs     DocumentStore
	cache    *Cache
	log      *slog.Logger
	redisTTL time.Duration

	mu     sync.RWMutex
	mem    *AboutContent
	memAt  time.Time
	memTTL time.Duration
}

func NewAbout(docs DocumentStore, cache *Cache, memTTL, redisTTL time.Duration, log *slog.Logger) *About {
	return &About{docs: docs, cache: cache, memTTL: memTTL, redisTTL: redisTTL, log: log}
}

// Read returns the about document: memory cache, then shared cache, then the
// store. It tries a read lock first and only takes the write lock when a
// reload is needed.
func (a *About) Read(ctx context.Context, skipCache bool) (AboutContent, error) {
	if !skipCache {
		a.mu.RLock()
		if a.memFresh() {
			content := *a.mem
			a.mu.RUnlock()
			return content, nil
		}
		a.mu.RUnlock()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !skipCache && a.memFresh() {
		return *a.mem, nil
	}

	if !skipCache {
		var cached AboutContent
		if a.cache.Get(ctx, cacheKeyAbout, &cached) {
			a.remember(cached)
			return cached, nil
		}
	}

	content, err := a.loadFromStore(ctx)
	if err != nil {
		return AboutContent{}, err
	}
	if !skipCache {
		a.cache.Set(ctx, cacheKeyAbout, content, a.redisTTL)
		a.remember(content)
	}
	return content, nil
}

// Update replaces the singleton and clears both cache layers before
// returning, so no subsequent read can observe the pre-write value.
func (a *About) Update(ctx context.Context, content string) (AboutContent, error) {
	about := AboutContent{
		Content:   content,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := encodeDocument(about)
	if err != nil {
		return AboutContent{}, err
	}
	// Whole-document replace with last-write-wins: the singleton has no
	// merge semantics a revision check would protect.
	if _, err := a.docs.Save(ctx, aboutDocument, data, AnyRevision); err != nil {
		return AboutContent{}, err
	}

	a.mu.Lock()
	a.mem = nil
	a.mu.Unlock()
	a.cache.Delete(ctx, cacheKeyAbout)

	return about, nil
}

func (a *About) loadFromStore(ctx context.Context) (AboutContent, error) {
	def, err := encodeDocument(defaultAbout())
	if err != nil {
		return AboutContent{}, err
	}
	raw, _, err := a.docs.Load(ctx, aboutDocument, def)
	if err != nil {
		return AboutContent{}, err
	}
	var content AboutContent
	if err := decodeDocument(aboutDocument, raw, &content); err != nil {
		// Read path: serve the default rather than fail the page, but make
		// the corruption impossible to miss.
		a.log.Error("about document corrupt, serving default", "error", err)
		return defaultAbout(), nil
	}
	return content, nil
}

// memFresh must be called with at least the read lock held.
func (a *About) memFresh() bool {
	return a.mem != nil && time.Since(a.memAt) < a.memTTL
}

// remember must be called with the write lock held.
func (a *About) remember(content AboutContent) {
	a.mem = &content
	a.memAt = time.Now()
}

func defaultAbout() AboutContent {
	return AboutContent{
		Content:   defaultAboutBody,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
