package blogvault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	_ "image/gif"
)

const (
	thumbWidth   = 800 // thumbnails are downscaled to at most this width
	thumbQuality = 80

	originalWidth   = 1920 // "full resolution" derivative cap
	originalQuality = 100

	// thumbInfix links the two derivative names: {base}-thumb.{ext} is the
	// thumbnail of {base}.{ext}. Deletion and progressive loading both
	// derive one name from the other through it.
	thumbInfix = "-thumb."

	imageCacheControl = "public, max-age=31536000"
)

// allowedImageTypes is the ingestion allow-list. The boundary validator
// rejects everything else before bytes reach the pipeline; Ingest checks
// again because it is the last line before storage.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// objectStore abstracts the physical image container so the pipeline works
// the same against blob storage, the local data directory, or a test fake.
type objectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType, cacheControl string) error
	Get(ctx context.Context, name string) ([]byte, string, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	URL(name string) string
}

// ImagePair carries both derivative identities of one logical upload. Both
// names and both URLs travel together so consumers never have to reconstruct
// one from the other.
type ImagePair struct {
	OriginalName  string `json:"originalName"`
	ThumbnailName string `json:"thumbnailName"`
	OriginalURL   string `json:"originalUrl"`
	ThumbnailURL  string `json:"thumbnailUrl"`
}

// ImageStore ingests uploads, produces the thumbnail and original
// derivatives, and manages their paired lifecycle.
type ImageStore struct {
	objects objectStore
	signer  *URLSigner
	log     *slog.Logger
}

func NewImageStore(objects objectStore, signer *URLSigner, log *slog.Logger) *ImageStore {
	return &ImageStore{objects: objects, signer: signer, log: log}
}

// Ingest validates the upload, produces both derivatives, stores them, and
// returns their signed access URLs.
func (s *ImageStore) Ingest(ctx context.Context, raw []byte, originalName, contentType string) (ImagePair, error) {
	if !allowedImageTypes[contentType] {
		return ImagePair{}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}

	thumbData, thumbType := s.derive(raw, contentType, thumbWidth, thumbQuality)
	origData, origType := s.derive(raw, contentType, originalWidth, originalQuality)

	origName, thumbName := newObjectNames(originalName, origType)

	if err := s.objects.Put(ctx, thumbName, thumbData, thumbType, imageCacheControl); err != nil {
		return ImagePair{}, fmt.Errorf("store thumbnail: %w", err)
	}
	if err := s.objects.Put(ctx, origName, origData, origType, imageCacheControl); err != nil {
		return ImagePair{}, fmt.Errorf("store original: %w", err)
	}

	return ImagePair{
		OriginalName:  origName,
		ThumbnailName: thumbName,
		OriginalURL:   s.signer.Sign(s.objects.URL(origName), origName),
		ThumbnailURL:  s.signer.Sign(s.objects.URL(thumbName), thumbName),
	}, nil
}

// derive produces one storage-ready variant plus the content type it was
// actually encoded as. Re-encoding can cross formats (webp comes back as
// jpeg), so the declared upload type is not trusted for the stored object.
// GIFs pass through unmodified to preserve animation; any compression
// failure falls back to the untouched upload bytes under their declared
// type — the upload must succeed even when optimization cannot.
func (s *ImageStore) derive(raw []byte, contentType string, maxWidth, quality int) ([]byte, string) {
	if contentType == "image/gif" {
		return raw, contentType
	}
	out, encodedType, err := compressImage(raw, maxWidth, quality)
	if err != nil {
		s.log.Warn("image compression failed, storing upload unchanged", "error", err)
		return raw, contentType
	}
	return out, encodedType
}

// Remove deletes both physical objects behind an image URL. Missing objects
// are not an error: the pair dies together and a retry must be harmless.
func (s *ImageStore) Remove(ctx context.Context, imageURL string) error {
	name := objectNameFromURL(imageURL)
	if name == "" {
		return nil
	}
	origName, thumbName := pairNames(name)
	return errors.Join(
		s.objects.Remove(ctx, thumbName),
		s.objects.Remove(ctx, origName),
	)
}

// Owns reports whether the URL points into this store's image container.
// Cascading deletes only touch owned images.
func (s *ImageStore) Owns(imageURL string) bool {
	return strings.HasPrefix(imageURL, s.objects.URL(""))
}

// Fetch returns the raw bytes and content type behind an image URL, for the
// download endpoint.
func (s *ImageStore) Fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	name := objectNameFromURL(imageURL)
	if name == "" {
		return nil, "", fmt.Errorf("%w: no object name in url", ErrNotFound)
	}
	return s.objects.Get(ctx, name)
}

// List enumerates every stored image object as a signed URL.
func (s *ImageStore) List(ctx context.Context) ([]string, error) {
	names, err := s.objects.List(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(names))
	for i, name := range names {
		urls[i] = s.signer.Sign(s.objects.URL(name), name)
	}
	return urls, nil
}

var extensionForType = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// newObjectNames builds the collision-resistant derivative pair for an
// upload. The extension follows the stored content type so a webp upload
// re-encoded as jpeg does not end up under a .webp name.
func newObjectNames(originalName, contentType string) (original, thumbnail string) {
	ext := extensionForType[contentType]
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	}
	if ext == "" {
		ext = "jpg"
	}
	base := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:6])
	return base + "." + ext, base + "-thumb." + ext
}

// pairNames derives both object names from either one, via the reserved
// thumbnail infix.
func pairNames(name string) (original, thumbnail string) {
	if strings.Contains(name, thumbInfix) {
		return strings.Replace(name, thumbInfix, ".", 1), name
	}
	ext := filepath.Ext(name)
	return name, strings.TrimSuffix(name, ext) + "-thumb" + ext
}

// objectNameFromURL extracts the object name from a stored image URL,
// ignoring any signing query or fragment.
func objectNameFromURL(imageURL string) string {
	if i := strings.IndexAny(imageURL, "?#"); i >= 0 {
		imageURL = imageURL[:i]
	}
	name := path.Base(imageURL)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// compressImage decodes, uprights, optionally downscales, and re-encodes an
// image in its own format family, returning the encoded bytes and their
// content type. JPEG and PNG keep their format; everything else (webp
// included — Go has no encoder for it) falls back to JPEG.
func compressImage(raw []byte, maxWidth, quality int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	if format == "jpeg" {
		img = applyOrientation(img, exifOrientation(raw))
	}

	// Resize proportionally when the upright width exceeds the cap. Never
	// upscale.
	if b := img.Bounds(); b.Dx() > maxWidth {
		newH := b.Dy() * maxWidth / b.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	encodedType := "image/jpeg"
	switch format {
	case "png":
		err = png.Encode(&buf, img)
		encodedType = "image/png"
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), encodedType, nil
}

// exifOrientation reads the EXIF orientation tag from a JPEG upload.
// Anything unreadable counts as upright.
func exifOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// applyOrientation remaps pixels so the decoded buffer is upright regardless
// of how the camera stored it. Orientations 5-8 swap width and height.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if orientation >= 5 {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := img.At(b.Min.X+x, b.Min.Y+y)
			switch orientation {
			case 2: // mirrored
				dst.Set(w-1-x, y, px)
			case 3: // upside down
				dst.Set(w-1-x, h-1-y, px)
			case 4: // flipped vertically
				dst.Set(x, h-1-y, px)
			case 5: // transposed
				dst.Set(y, x, px)
			case 6: // rotated 90° CCW in file
				dst.Set(h-1-y, x, px)
			case 7: // transverse
				dst.Set(h-1-y, w-1-x, px)
			case 8: // rotated 90° CW in file
				dst.Set(y, w-1-x, px)
			}
		}
	}
	return dst
}
