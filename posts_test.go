package blogvault

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func setupPosts(t *testing.T) (*Posts, *fakeObjectStore) {
	t.Helper()
	docs := setupTestDocs(t)
	objects := newFakeObjectStore()
	images := NewImageStore(objects, NewURLSigner("blog-images", "test-key", time.Hour), testLogger())
	cache := NewCache("", time.Hour, testLogger())
	return NewPosts(docs, images, cache, testLogger()), objects
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	first, err := p.Create(ctx, Post{Title: "First Post"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := p.Create(ctx, Post{Title: "Second Post"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if first.ID != "1" || second.ID != "2" {
		t.Errorf("ids = %q, %q, want 1, 2", first.ID, second.ID)
	}
}

func TestCreateIDsSurviveDeletion(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	p.Create(ctx, Post{Title: "One"})
	two, _ := p.Create(ctx, Post{Title: "Two"})
	three, _ := p.Create(ctx, Post{Title: "Three"})

	if _, err := p.Delete(ctx, three.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	next, err := p.Create(ctx, Post{Title: "Four"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Highest-plus-one on the remaining set; ids may be reused after the
	// tail is deleted, but never collide with a live post.
	if next.ID == two.ID {
		t.Errorf("new id %q collides with a live post", next.ID)
	}
}

func TestCreateDefaults(t *testing.T) {
	p, _ := setupPosts(t)

	post, err := p.Create(context.Background(), Post{Title: "Hello World"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if post.Date != time.Now().Format("2006-01-02") {
		t.Errorf("Date = %q, want today", post.Date)
	}
	if post.Tags == nil {
		t.Error("Tags should default to an empty slice")
	}
	if post.Slug != "hello-world" {
		t.Errorf("Slug = %q, want derived from title", post.Slug)
	}
}

func TestTagsAreNormalized(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	created, err := p.Create(ctx, Post{Title: "Tagged", Tags: []string{"go", "", "  ", "blog"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !reflect.DeepEqual(created.Tags, []string{"go", "blog"}) {
		t.Errorf("Tags = %v, blank entries should be dropped", created.Tags)
	}

	tags := []string{"\t", ""}
	updated, err := p.Update(ctx, created.ID, PostPatch{Tags: &tags})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Tags == nil || len(updated.Tags) != 0 {
		t.Errorf("Tags = %#v, want an empty non-nil slice", updated.Tags)
	}
}

func TestCreateKeepsValidSlug(t *testing.T) {
	p, _ := setupPosts(t)

	post, err := p.Create(context.Background(), Post{Title: "Hello", Slug: "custom-slug"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if post.Slug != "custom-slug" {
		t.Errorf("Slug = %q, want custom-slug", post.Slug)
	}
}

func TestGetByIDAndBySlug(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	created, _ := p.Create(ctx, Post{Title: "Findable", Content: "body"})

	byID, err := p.GetByID(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Title != "Findable" {
		t.Errorf("Title = %q", byID.Title)
	}

	bySlug, err := p.GetBySlug(ctx, "findable", false)
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if bySlug.ID != created.ID {
		t.Errorf("GetBySlug returned id %q, want %q", bySlug.ID, created.ID)
	}

	if _, err := p.GetByID(ctx, "999", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID unknown: err = %v, want ErrNotFound", err)
	}
	if _, err := p.GetBySlug(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBySlug unknown: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAppliesPartialPatch(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	created, _ := p.Create(ctx, Post{Title: "Original", Content: "keep me", Author: "april"})

	newTitle := "Changed"
	updated, err := p.Update(ctx, created.ID, PostPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Title != "Changed" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.Content != "keep me" || updated.Author != "april" {
		t.Error("unpatched fields must keep their stored values")
	}
	if updated.ID != created.ID {
		t.Errorf("ID changed to %q", updated.ID)
	}
}

func TestUpdateUnknownPost(t *testing.T) {
	p, _ := setupPosts(t)

	title := "x"
	if _, err := p.Update(context.Background(), "999", PostPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteReclaimsOwnedImages(t *testing.T) {
	p, objects := setupPosts(t)
	ctx := context.Background()

	cover, err := p.images.Ingest(ctx, makeJPEG(t, 100, 100), "cover.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	inline, err := p.images.Ingest(ctx, makeJPEG(t, 100, 100), "inline.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	content := fmt.Sprintf("intro\n\n![shot](%s)\n\n<img src=\"https://elsewhere.example.com/keep.jpg\">", inline.OriginalURL)
	created, err := p.Create(ctx, Post{Title: "Illustrated", Content: content, CoverImage: cover.ThumbnailURL})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := p.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if objects.count() != 0 {
		t.Errorf("expected all owned derivatives reclaimed, %d remain", objects.count())
	}
	for _, name := range objects.removed {
		if name == "keep.jpg" {
			t.Error("foreign image must not be touched")
		}
	}
}

func TestDeleteTwiceReturnsNotFound(t *testing.T) {
	p, _ := setupPosts(t)
	ctx := context.Background()

	created, _ := p.Create(ctx, Post{Title: "Ephemeral"})

	if _, err := p.Delete(ctx, created.ID); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if _, err := p.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: err = %v, want ErrNotFound", err)
	}
}

func TestMutationsRefuseCorruptDocument(t *testing.T) {
	docs := setupTestDocs(t)
	ctx := context.Background()
	if _, err := docs.Save(ctx, postsDocument, []byte("{corrupt"), AnyRevision); err != nil {
		t.Fatalf("seed corrupt document: %v", err)
	}

	objects := newFakeObjectStore()
	images := NewImageStore(objects, NewURLSigner("blog-images", "k", time.Hour), testLogger())
	p := NewPosts(docs, images, NewCache("", time.Hour, testLogger()), testLogger())

	if _, err := p.Create(ctx, Post{Title: "x"}); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("Create on corrupt document: err = %v, want ErrCorruptDocument", err)
	}

	// The unreadable document must not be overwritten.
	data, _, err := docs.Load(ctx, postsDocument, []byte("[]"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "{corrupt" {
		t.Errorf("document = %q, corrupt content must be preserved for inspection", data)
	}
}

func TestListReadsThroughCacheAndMutationsInvalidate(t *testing.T) {
	docs := setupTestDocs(t)
	cache, mr := setupTestCache(t)
	objects := newFakeObjectStore()
	images := NewImageStore(objects, NewURLSigner("blog-images", "k", time.Hour), testLogger())
	p := NewPosts(docs, images, cache, testLogger())
	ctx := context.Background()

	created, err := p.Create(ctx, Post{Title: "Cached"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := p.List(ctx, false); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !mr.Exists("blog:posts:list") {
		t.Fatal("List should populate the cache")
	}

	// A stale entry must be served until something invalidates it.
	if err := mr.Set("blog:posts:list", `[{"id":"planted","title":"from cache"}]`); err != nil {
		t.Fatalf("plant cache entry: %v", err)
	}
	fromCache, err := p.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(fromCache) != 1 || fromCache[0].ID != "planted" {
		t.Fatalf("List = %+v, want the planted cache entry", fromCache)
	}

	// skipCache bypasses the planted entry.
	fresh, err := p.List(ctx, true)
	if err != nil {
		t.Fatalf("List(skipCache) failed: %v", err)
	}
	if len(fresh) != 1 || fresh[0].ID != created.ID {
		t.Fatalf("List(skipCache) = %+v, want the stored post", fresh)
	}

	// Any mutation drops the list entry.
	title := "renamed"
	if _, err := p.Update(ctx, created.ID, PostPatch{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if mr.Exists("blog:posts:list") {
		t.Error("mutation should invalidate the list entry")
	}
}

func TestUpdateInvalidatesStaleSlug(t *testing.T) {
	docs := setupTestDocs(t)
	cache, mr := setupTestCache(t)
	objects := newFakeObjectStore()
	images := NewImageStore(objects, NewURLSigner("blog-images", "k", time.Hour), testLogger())
	p := NewPosts(docs, images, cache, testLogger())
	ctx := context.Background()

	created, _ := p.Create(ctx, Post{Title: "Old Name"})
	if _, err := p.GetBySlug(ctx, "old-name", false); err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if !mr.Exists("blog:posts:slug:old-name") {
		t.Fatal("GetBySlug should populate the slug entry")
	}

	slug := "new-name"
	if _, err := p.Update(ctx, created.ID, PostPatch{Slug: &slug}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if mr.Exists("blog:posts:slug:old-name") {
		t.Error("the old slug entry must be invalidated after a rename")
	}
	if _, err := p.GetBySlug(ctx, "old-name", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("old slug lookup: err = %v, want ErrNotFound", err)
	}
}
