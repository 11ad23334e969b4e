package blogvault

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Post is a blog entry stored in the posts collection document.
type Post struct {
	ID         string   `json:"id"`
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	Excerpt    string   `json:"excerpt"`
	Content    string   `json:"content"`
	Date       string   `json:"date"`
	Author     string   `json:"author"`
	Tags       []string `json:"tags"`
	CoverImage string   `json:"coverImage,omitempty"`
	ReadTime   string   `json:"readTime,omitempty"`
	IsDraft    bool     `json:"isDraft"`
}

// PostPatch is a partial update; nil fields keep the stored value. The id is
// never updatable.
type PostPatch struct {
	Slug       *string   `json:"slug"`
	Title      *string   `json:"title"`
	Excerpt    *string   `json:"excerpt"`
	Content    *string   `json:"content"`
	Date       *string   `json:"date"`
	Author     *string   `json:"author"`
	Tags       *[]string `json:"tags"`
	CoverImage *string   `json:"coverImage"`
	ReadTime   *string   `json:"readTime"`
	IsDraft    *bool     `json:"isDraft"`
}

func (p *Post) apply(patch PostPatch) {
	if patch.Slug != nil {
		p.Slug = *patch.Slug
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Excerpt != nil {
		p.Excerpt = *patch.Excerpt
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Date != nil {
		p.Date = *patch.Date
	}
	if patch.Author != nil {
		p.Author = *patch.Author
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	if patch.CoverImage != nil {
		p.CoverImage = *patch.CoverImage
	}
	if patch.ReadTime != nil {
		p.ReadTime = *patch.ReadTime
	}
	if patch.IsDraft != nil {
		p.IsDraft = *patch.IsDraft
	}
}

// Posts manages the posts collection: whole-document read-modify-write
// cycles against the document store, cascading image cleanup on delete, and
// cache invalidation after every mutation.
type Posts struct {
	docs   DocumentStore
	images *ImageStore
	cache  *Cache
	log    *slog.Logger
}

func NewPosts(docs DocumentStore, images *ImageStore, cache *Cache, log *slog.Logger) *Posts {
	return &Posts{docs: docs, images: images, cache: cache, log: log}
}

// load reads the whole collection. A corrupt document is returned as
// ErrCorruptDocument; mutation paths propagate it so they never overwrite
// data they could not read.
func (p *Posts) load(ctx context.Context) ([]Post, Revision, error) {
	data, rev, err := p.docs.Load(ctx, postsDocument, []byte("[]"))
	if err != nil {
		return nil, rev, err
	}
	var posts []Post
	if err := decodeDocument(postsDocument, data, &posts); err != nil {
		return nil, rev, err
	}
	return posts, rev, nil
}

func (p *Posts) save(ctx context.Context, posts []Post, rev Revision) error {
	if posts == nil {
		posts = []Post{}
	}
	data, err := encodeDocument(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	_, err = p.docs.Save(ctx, postsDocument, data, rev)
	return err
}

// List returns every post, through the cache unless the caller opted out.
func (p *Posts) List(ctx context.Context, skipCache bool) ([]Post, error) {
	if !skipCache {
		var cached []Post
		if p.cache.Get(ctx, cacheKeyPostsList, &cached) {
			return cached, nil
		}
	}
	posts, _, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if !skipCache {
		p.cache.Set(ctx, cacheKeyPostsList, posts, 0)
	}
	return posts, nil
}

// GetByID returns one post or ErrNotFound.
func (p *Posts) GetByID(ctx context.Context, id string, skipCache bool) (Post, error) {
	if !skipCache {
		var cached Post
		if p.cache.Get(ctx, cacheKeyPost(id), &cached) {
			return cached, nil
		}
	}
	posts, _, err := p.load(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, post := range posts {
		if post.ID == id {
			if !skipCache {
				p.cache.Set(ctx, cacheKeyPost(id), post, 0)
			}
			return post, nil
		}
	}
	return Post{}, fmt.Errorf("%w: post %s", ErrNotFound, id)
}

// GetBySlug returns one post or ErrNotFound. Slug uniqueness is the
// caller's responsibility; the first match wins.
func (p *Posts) GetBySlug(ctx context.Context, slug string, skipCache bool) (Post, error) {
	if !skipCache {
		var cached Post
		if p.cache.Get(ctx, cacheKeyPostSlug(slug), &cached) {
			return cached, nil
		}
	}
	posts, _, err := p.load(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, post := range posts {
		if post.Slug == slug {
			if !skipCache {
				p.cache.Set(ctx, cacheKeyPostSlug(slug), post, 0)
			}
			return post, nil
		}
	}
	return Post{}, fmt.Errorf("%w: post slug %s", ErrNotFound, slug)
}

// Create assigns the next monotonically increasing id and appends the post.
func (p *Posts) Create(ctx context.Context, post Post) (Post, error) {
	err := withConflictRetry(func() error {
		posts, rev, err := p.load(ctx)
		if err != nil {
			return err
		}
		post.ID = nextPostID(posts)
		if post.Date == "" {
			post.Date = time.Now().Format("2006-01-02")
		}
		post.Tags = normalizeTags(post.Tags)
		post.Slug = sanitizeSlug(post.Slug, post.Title, post.ID)
		return p.save(ctx, append(posts, post), rev)
	})
	if err != nil {
		return Post{}, err
	}
	p.cache.Delete(ctx, cacheKeyPostsList)
	return post, nil
}

// Update merges a partial patch into the stored post.
func (p *Posts) Update(ctx context.Context, id string, patch PostPatch) (Post, error) {
	var updated Post
	var staleSlug string
	err := withConflictRetry(func() error {
		posts, rev, err := p.load(ctx)
		if err != nil {
			return err
		}
		i := findPost(posts, id)
		if i < 0 {
			return fmt.Errorf("%w: post %s", ErrNotFound, id)
		}
		staleSlug = posts[i].Slug
		posts[i].apply(patch)
		posts[i].ID = id
		if patch.Tags != nil {
			posts[i].Tags = normalizeTags(posts[i].Tags)
		}
		updated = posts[i]
		return p.save(ctx, posts, rev)
	})
	if err != nil {
		return Post{}, err
	}
	keys := []string{cacheKeyPostsList, cacheKeyPost(id), cacheKeyPostSlug(updated.Slug)}
	if staleSlug != updated.Slug {
		keys = append(keys, cacheKeyPostSlug(staleSlug))
	}
	p.cache.Delete(ctx, keys...)
	return updated, nil
}

// Delete removes the post and reclaims every image it owns: the cover plus
// any image embedded in the content via Markdown or HTML syntax. Image
// cleanup is best effort and never blocks the deletion; a second delete of
// the same id returns ErrNotFound.
func (p *Posts) Delete(ctx context.Context, id string) (Post, error) {
	var deleted Post
	err := withConflictRetry(func() error {
		posts, rev, err := p.load(ctx)
		if err != nil {
			return err
		}
		i := findPost(posts, id)
		if i < 0 {
			return fmt.Errorf("%w: post %s", ErrNotFound, id)
		}
		deleted = posts[i]
		p.reclaimImages(ctx, deleted)
		return p.save(ctx, append(posts[:i], posts[i+1:]...), rev)
	})
	if err != nil {
		return Post{}, err
	}
	p.cache.Delete(ctx, cacheKeyPostsList, cacheKeyPost(id), cacheKeyPostSlug(deleted.Slug))
	return deleted, nil
}

func (p *Posts) reclaimImages(ctx context.Context, post Post) {
	urls := extractImageURLs(post.Content)
	if post.CoverImage != "" {
		urls = append([]string{post.CoverImage}, urls...)
	}
	for _, u := range urls {
		if !p.images.Owns(u) {
			continue
		}
		if err := p.images.Remove(ctx, u); err != nil {
			p.log.Warn("orphan image cleanup failed", "post", post.ID, "url", u, "error", err)
		}
	}
}

// normalizeTags drops blank tags and guarantees a non-nil slice, so the
// stored document never carries null or empty-string tags.
func normalizeTags(tags []string) []string {
	out := FilterEmpty(tags)
	if out == nil {
		out = []string{}
	}
	return out
}

func findPost(posts []Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

// nextPostID keeps the original ordering-friendly decimal ids: one more
// than the highest numeric id in the collection.
func nextPostID(posts []Post) string {
	maxID := 0
	for _, p := range posts {
		if n, err := strconv.Atoi(p.ID); err == nil && n > maxID {
			maxID = n
		}
	}
	return strconv.Itoa(maxID + 1)
}
