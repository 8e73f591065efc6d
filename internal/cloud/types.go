package cloud

import (
	"context"
	"time"
)

// BucketInfo describes one bucket from the account listing.
type BucketInfo struct {
	Name      string
	CreatedAt time.Time
}

// ObjectInfo is the catalog entry for one stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	StorageClass string
	ETag         string
	LastModified time.Time
}

// ObjectHead is the full metadata snapshot of one object.
type ObjectHead struct {
	Bucket       string
	Key          string
	StorageClass string
	SizeBytes    int64
	ETag         string
	VersionID    string
	LastModified time.Time
}

// MultipartUpload describes one in-progress multipart upload.
type MultipartUpload struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// PartInfo describes one uploaded part of a multipart upload.
type PartInfo struct {
	PartNumber int
	SizeBytes  int64
}

// LifecycleRule is the provider-neutral shape of a bucket lifecycle rule.
// Zero values mean the corresponding element is absent.
type LifecycleRule struct {
	ID                           string `json:"id"`
	Enabled                      bool   `json:"enabled"`
	Prefix                       string `json:"prefix"`
	TransitionDays               int    `json:"transition_days,omitempty"`
	TransitionStorageClass       string `json:"transition_storage_class,omitempty"`
	AbortIncompleteMultipartDays int    `json:"abort_incomplete_multipart_days,omitempty"`
	ExpirationDays               int    `json:"expiration_days,omitempty"`
}

// Retention describes object-lock retention on one object.
type Retention struct {
	Mode            string
	RetainUntilDate time.Time
}

// ObjectStore is the narrow verb surface the scanner, executor and rollback
// manager use against the remote object store. Every verb honors context
// cancellation and returns *Error for provider failures.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	ListObjects(ctx context.Context, bucket string, max int) ([]ObjectInfo, error)

	GetLifecycle(ctx context.Context, bucket string) ([]LifecycleRule, error)
	PutLifecycle(ctx context.Context, bucket string, rules []LifecycleRule) error
	DeleteLifecycle(ctx context.Context, bucket string) error

	ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]MultipartUpload, error)
	ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error)
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error

	HeadObject(ctx context.Context, bucket, key string) (*ObjectHead, error)
	GetObjectTags(ctx context.Context, bucket, key string) (map[string]string, error)
	PutObjectTags(ctx context.Context, bucket, key string, tags map[string]string) error
	CopySelfWithClass(ctx context.Context, bucket, key, storageClass string) error
	DeleteObject(ctx context.Context, bucket, key, versionID string) error

	GetObjectRetention(ctx context.Context, bucket, key string) (*Retention, error)
	GetObjectLegalHold(ctx context.Context, bucket, key string) (bool, error)
}
