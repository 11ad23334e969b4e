package blogvault

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewBlobClient connects to the S3-compatible object store. The client is
// constructed once at startup and shared by the document store and the image
// container.
func NewBlobClient(cfg BlobConfig) (*minio.Client, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob client: %w", err)
	}
	return cl, nil
}

func ensureBucket(ctx context.Context, cl *minio.Client, bucket string) error {
	exists, err := cl.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("%w: bucket %s: %v", ErrStorageUnavailable, bucket, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("%w: create bucket %s: %v", ErrStorageUnavailable, bucket, err)
		}
	}
	return nil
}

// BlobDocumentStore keeps collection documents in an object store bucket,
// one whole JSON object per collection.
type BlobDocumentStore struct {
	cl     *minio.Client
	bucket string
}

// NewBlobDocumentStore ensures the data bucket exists.
func NewBlobDocumentStore(ctx context.Context, cl *minio.Client, bucket string) (*BlobDocumentStore, error) {
	if err := ensureBucket(ctx, cl, bucket); err != nil {
		return nil, err
	}
	return &BlobDocumentStore{cl: cl, bucket: bucket}, nil
}

func (s *BlobDocumentStore) Load(ctx context.Context, name string, def []byte) ([]byte, Revision, error) {
	st, err := s.cl.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		// First access creates the document with its default value.
		info, perr := s.cl.PutObject(ctx, s.bucket, name, bytes.NewReader(def), int64(len(def)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if perr != nil {
			return nil, AnyRevision, fmt.Errorf("%w: init %s: %v", ErrStorageUnavailable, name, perr)
		}
		return def, Revision(info.ETag), nil
	}
	if err != nil {
		return nil, AnyRevision, fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, name, err)
	}

	obj, err := s.cl.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, AnyRevision, fmt.Errorf("%w: get %s: %v", ErrStorageUnavailable, name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, AnyRevision, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, name, err)
	}
	return data, Revision(st.ETag), nil
}

func (s *BlobDocumentStore) Save(ctx context.Context, name string, data []byte, rev Revision) (Revision, error) {
	if rev != AnyRevision {
		// S3-compatible stores offer no compare-and-swap keyed on ETag, so
		// the precondition is checked with a stat before the write. That
		// narrows the lost-update window to stat→put instead of closing it;
		// the conflict retry at the manager layer handles what it catches.
		st, err := s.cl.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
		if isNoSuchKey(err) {
			return AnyRevision, fmt.Errorf("%w: %s was removed", ErrConflict, name)
		}
		if err != nil {
			return AnyRevision, fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, name, err)
		}
		if Revision(st.ETag) != rev {
			return AnyRevision, fmt.Errorf("%w: %s", ErrConflict, name)
		}
	}

	info, err := s.cl.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return AnyRevision, fmt.Errorf("%w: put %s: %v", ErrStorageUnavailable, name, err)
	}
	return Revision(info.ETag), nil
}

// minioObjectStore is the image container on the blob backend.
type minioObjectStore struct {
	cl     *minio.Client
	bucket string
}

func newMinioObjectStore(ctx context.Context, cl *minio.Client, bucket string) (*minioObjectStore, error) {
	if err := ensureBucket(ctx, cl, bucket); err != nil {
		return nil, err
	}
	return &minioObjectStore{cl: cl, bucket: bucket}, nil
}

func (s *minioObjectStore) Put(ctx context.Context, name string, data []byte, contentType, cacheControl string) error {
	_, err := s.cl.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, CacheControl: cacheControl})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

func (s *minioObjectStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	st, err := s.cl.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, name, err)
	}
	obj, err := s.cl.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("%w: get %s: %v", ErrStorageUnavailable, name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, name, err)
	}
	return data, st.ContentType, nil
}

func (s *minioObjectStore) Remove(ctx context.Context, name string) error {
	// RemoveObject is idempotent: deleting a missing object is not an error.
	if err := s.cl.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

func (s *minioObjectStore) List(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", ErrStorageUnavailable, s.bucket, obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (s *minioObjectStore) URL(name string) string {
	return s.cl.EndpointURL().String() + "/" + s.bucket + "/" + name
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
