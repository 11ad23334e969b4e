package blogvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// GalleryImage is one uploaded photo inside a folder. Both derivative URLs
// are stored so the progressive loader can show the thumbnail while the
// original downloads.
type GalleryImage struct {
	ID           string `json:"id"`
	ThumbnailURL string `json:"thumbnailUrl"`
	OriginalURL  string `json:"originalUrl"`
	FileName     string `json:"fileName"`
	Timestamp    int64  `json:"timestamp"`
}

// GalleryFolder owns an ordered sequence of images. Cover, when set, is the
// id of one of them.
type GalleryFolder struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Cover     string         `json:"cover,omitempty"`
	Images    []GalleryImage `json:"images"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// FolderWithCover decorates a folder with its resolved cover image for list
// views.
type FolderWithCover struct {
	GalleryFolder
	CoverImage *GalleryImage `json:"coverImage,omitempty"`
}

type galleryData struct {
	Folders []GalleryFolder `json:"folders"`
}

const emptyGalleryDocument = `{"folders": []}`

// Gallery manages the gallery collection document and the folder/cover
// semantics around the image pipeline.
type Gallery struct {
	docs   DocumentStore
	images *ImageStore
	cache  *Cache
	log    *slog.Logger
}

func NewGallery(docs DocumentStore, images *ImageStore, cache *Cache, log *slog.Logger) *Gallery {
	return &Gallery{docs: docs, images: images, cache: cache, log: log}
}

func (g *Gallery) load(ctx context.Context) (galleryData, Revision, error) {
	raw, rev, err := g.docs.Load(ctx, galleryDocument, []byte(emptyGalleryDocument))
	if err != nil {
		return galleryData{}, rev, err
	}
	var data galleryData
	if err := decodeDocument(galleryDocument, raw, &data); err != nil {
		return galleryData{}, rev, err
	}
	return data, rev, nil
}

func (g *Gallery) save(ctx context.Context, data galleryData, rev Revision) error {
	if data.Folders == nil {
		data.Folders = []GalleryFolder{}
	}
	raw, err := encodeDocument(data)
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	_, err = g.docs.Save(ctx, galleryDocument, raw, rev)
	return err
}

// Folders lists every folder with its resolved cover image.
func (g *Gallery) Folders(ctx context.Context, skipCache bool) ([]FolderWithCover, error) {
	if !skipCache {
		var cached []FolderWithCover
		if g.cache.Get(ctx, cacheKeyGalleryFolders, &cached) {
			return cached, nil
		}
	}
	data, _, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FolderWithCover, len(data.Folders))
	for i, f := range data.Folders {
		out[i] = FolderWithCover{GalleryFolder: f, CoverImage: resolveCover(f)}
	}
	if !skipCache {
		g.cache.Set(ctx, cacheKeyGalleryFolders, out, 0)
	}
	return out, nil
}

// Folder returns one folder or ErrNotFound.
func (g *Gallery) Folder(ctx context.Context, folderID string, skipCache bool) (GalleryFolder, error) {
	if !skipCache {
		var cached GalleryFolder
		if g.cache.Get(ctx, cacheKeyGalleryFolder(folderID), &cached) {
			return cached, nil
		}
	}
	data, _, err := g.load(ctx)
	if err != nil {
		return GalleryFolder{}, err
	}
	i := findFolder(data.Folders, folderID)
	if i < 0 {
		return GalleryFolder{}, fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
	}
	if !skipCache {
		g.cache.Set(ctx, cacheKeyGalleryFolder(folderID), data.Folders[i], 0)
	}
	return data.Folders[i], nil
}

// CreateFolder appends an empty folder.
func (g *Gallery) CreateFolder(ctx context.Context, name string) (GalleryFolder, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	folder := GalleryFolder{
		ID:        fmt.Sprintf("folder-%d", time.Now().UnixMilli()),
		Name:      name,
		Images:    []GalleryImage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := withConflictRetry(func() error {
		data, rev, err := g.load(ctx)
		if err != nil {
			return err
		}
		data.Folders = append(data.Folders, folder)
		return g.save(ctx, data, rev)
	})
	if err != nil {
		return GalleryFolder{}, err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders)
	return folder, nil
}

// RenameFolder updates the folder name.
func (g *Gallery) RenameFolder(ctx context.Context, folderID, newName string) error {
	err := g.mutateFolder(ctx, folderID, func(f *GalleryFolder) error {
		f.Name = newName
		return nil
	})
	if err != nil {
		return err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders, cacheKeyGalleryFolder(folderID))
	return nil
}

// DeleteFolder removes the folder and, best effort, every derivative pair
// its images own. Cache cleanup uses a pattern delete because the set of
// folder sub-keys is not known in advance.
func (g *Gallery) DeleteFolder(ctx context.Context, folderID string) error {
	err := withConflictRetry(func() error {
		data, rev, err := g.load(ctx)
		if err != nil {
			return err
		}
		i := findFolder(data.Folders, folderID)
		if i < 0 {
			return fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
		}
		for _, img := range data.Folders[i].Images {
			if err := g.images.Remove(ctx, img.OriginalURL); err != nil {
				g.log.Warn("folder image cleanup failed", "folder", folderID, "image", img.ID, "error", err)
			}
		}
		data.Folders = append(data.Folders[:i], data.Folders[i+1:]...)
		return g.save(ctx, data, rev)
	})
	if err != nil {
		return err
	}
	g.cache.DeleteByPattern(ctx, "gallery:*")
	return nil
}

// UploadImage runs the derivative pipeline and appends the result to the
// folder. The first image uploaded into a coverless folder becomes its
// cover.
func (g *Gallery) UploadImage(ctx context.Context, folderID string, raw []byte, fileName, contentType string) (GalleryImage, error) {
	pair, err := g.images.Ingest(ctx, raw, fileName, contentType)
	if err != nil {
		return GalleryImage{}, err
	}
	image := GalleryImage{
		ID:           fmt.Sprintf("img-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:6]),
		ThumbnailURL: pair.ThumbnailURL,
		OriginalURL:  pair.OriginalURL,
		FileName:     fileName,
		Timestamp:    time.Now().UnixMilli(),
	}
	err = g.mutateFolder(ctx, folderID, func(f *GalleryFolder) error {
		f.Images = append(f.Images, image)
		if f.Cover == "" {
			f.Cover = image.ID
		}
		return nil
	})
	if err != nil {
		// The derivatives were already stored; don't leave orphans behind a
		// folder that no longer exists.
		if rerr := g.images.Remove(ctx, pair.OriginalURL); rerr != nil {
			g.log.Warn("uploaded image cleanup failed", "image", pair.OriginalName, "error", rerr)
		}
		return GalleryImage{}, err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders, cacheKeyGalleryFolder(folderID))
	return image, nil
}

// DeleteImage removes the entry and both physical objects. Deleting the
// cover promotes the next remaining image, or clears the cover when the
// folder empties.
func (g *Gallery) DeleteImage(ctx context.Context, folderID, imageID string) error {
	err := g.mutateFolder(ctx, folderID, func(f *GalleryFolder) error {
		i := -1
		for j := range f.Images {
			if f.Images[j].ID == imageID {
				i = j
				break
			}
		}
		if i < 0 {
			return fmt.Errorf("%w: image %s in folder %s", ErrNotFound, imageID, folderID)
		}
		if err := g.images.Remove(ctx, f.Images[i].OriginalURL); err != nil {
			g.log.Warn("image object cleanup failed", "folder", folderID, "image", imageID, "error", err)
		}
		f.Images = append(f.Images[:i], f.Images[i+1:]...)
		if f.Cover == imageID {
			if len(f.Images) > 0 {
				f.Cover = f.Images[0].ID
			} else {
				f.Cover = ""
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders, cacheKeyGalleryFolder(folderID))
	return nil
}

// SetCover points the folder cover at an existing image.
func (g *Gallery) SetCover(ctx context.Context, folderID, imageID string) error {
	err := g.mutateFolder(ctx, folderID, func(f *GalleryFolder) error {
		for _, img := range f.Images {
			if img.ID == imageID {
				f.Cover = imageID
				return nil
			}
		}
		return fmt.Errorf("%w: image %s in folder %s", ErrNotFound, imageID, folderID)
	})
	if err != nil {
		return err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders, cacheKeyGalleryFolder(folderID))
	return nil
}

// Reorder resequences the folder's images to match orderedIDs. The id set
// must be exactly the folder's current set — anything added, missing, or
// duplicated fails with ErrInvalidReorder and leaves the stored order
// untouched.
func (g *Gallery) Reorder(ctx context.Context, folderID string, orderedIDs []string) error {
	err := g.mutateFolder(ctx, folderID, func(f *GalleryFolder) error {
		if len(orderedIDs) != len(f.Images) {
			return fmt.Errorf("%w: got %d ids, folder has %d images", ErrInvalidReorder, len(orderedIDs), len(f.Images))
		}
		byID := make(map[string]GalleryImage, len(f.Images))
		for _, img := range f.Images {
			byID[img.ID] = img
		}
		seen := make(map[string]bool, len(orderedIDs))
		reordered := make([]GalleryImage, 0, len(orderedIDs))
		for _, id := range orderedIDs {
			img, ok := byID[id]
			if !ok || seen[id] {
				return fmt.Errorf("%w: id %s", ErrInvalidReorder, id)
			}
			seen[id] = true
			reordered = append(reordered, img)
		}
		f.Images = reordered
		return nil
	})
	if err != nil {
		return err
	}
	g.cache.Delete(ctx, cacheKeyGalleryFolders, cacheKeyGalleryFolder(folderID))
	return nil
}

// mutateFolder runs one read-modify-write cycle against a single folder,
// updating its timestamp on success.
func (g *Gallery) mutateFolder(ctx context.Context, folderID string, fn func(*GalleryFolder) error) error {
	return withConflictRetry(func() error {
		data, rev, err := g.load(ctx)
		if err != nil {
			return err
		}
		i := findFolder(data.Folders, folderID)
		if i < 0 {
			return fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
		}
		if err := fn(&data.Folders[i]); err != nil {
			return err
		}
		data.Folders[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return g.save(ctx, data, rev)
	})
}

func findFolder(folders []GalleryFolder, id string) int {
	for i := range folders {
		if folders[i].ID == id {
			return i
		}
	}
	return -1
}

func resolveCover(f GalleryFolder) *GalleryImage {
	if f.Cover != "" {
		for i := range f.Images {
			if f.Images[i].ID == f.Cover {
				return &f.Images[i]
			}
		}
	}
	if len(f.Images) > 0 {
		return &f.Images[0]
	}
	return nil
}
