package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/logger"
)

// S3Store implements ObjectStore against AWS S3. All requests pass through
// a client-side rate limiter so bucket fan-out cannot stampede the API.
type S3Store struct {
	client  *s3.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// NewS3Store builds an S3-backed ObjectStore from the default credential
// chain.
func NewS3Store(ctx context.Context, cfg config.Cloud) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewS3StoreWithClient wraps an existing client, used by tests and by
// callers with custom endpoints.
func NewS3StoreWithClient(client *s3.Client, cfg config.Cloud) *S3Store {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	return &S3Store{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		log:     logger.New("cloud.s3"),
	}
}

func (s *S3Store) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *S3Store) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classify(err)
	}
	buckets := make([]BucketInfo, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		info := BucketInfo{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			info.CreatedAt = *b.CreationDate
		}
		buckets = append(buckets, info)
	}
	return buckets, nil
}

func (s *S3Store) ListObjects(ctx context.Context, bucket string, max int) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, obj := range page.Contents {
			if max > 0 && len(objects) >= max {
				return objects, nil
			}
			class := string(obj.StorageClass)
			if class == "" {
				class = config.ClassStandard
			}
			info := ObjectInfo{
				Key:          aws.ToString(obj.Key),
				SizeBytes:    aws.ToInt64(obj.Size),
				StorageClass: class,
				ETag:         aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
		if max > 0 && len(objects) >= max {
			break
		}
	}
	return objects, nil
}

func (s *S3Store) GetLifecycle(ctx context.Context, bucket string) ([]LifecycleRule, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return nil, classify(err)
	}
	rules := make([]LifecycleRule, 0, len(out.Rules))
	for _, r := range out.Rules {
		rules = append(rules, fromS3Rule(r))
	}
	return rules, nil
}

func (s *S3Store) PutLifecycle(ctx context.Context, bucket string, rules []LifecycleRule) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s3Rules := make([]types.LifecycleRule, 0, len(rules))
	for _, r := range rules {
		s3Rules = append(s3Rules, toS3Rule(r))
	}
	_, err := s.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: s3Rules,
		},
	})
	return classify(err)
}

func (s *S3Store) DeleteLifecycle(ctx context.Context, bucket string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.client.DeleteBucketLifecycle(ctx, &s3.DeleteBucketLifecycleInput{
		Bucket: aws.String(bucket),
	})
	return classify(err)
}

func (s *S3Store) ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]MultipartUpload, error) {
	var uploads []MultipartUpload
	input := &s3.ListMultipartUploadsInput{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		out, err := s.client.ListMultipartUploads(ctx, input)
		if err != nil {
			return nil, classify(err)
		}
		for _, u := range out.Uploads {
			mu := MultipartUpload{
				Key:      aws.ToString(u.Key),
				UploadID: aws.ToString(u.UploadId),
			}
			if u.Initiated != nil {
				mu.Initiated = *u.Initiated
			}
			uploads = append(uploads, mu)
		}
		if !aws.ToBool(out.IsTruncated) {
			return uploads, nil
		}
		input.KeyMarker = out.NextKeyMarker
		input.UploadIdMarker = out.NextUploadIdMarker
	}
}

func (s *S3Store) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	var parts []PartInfo
	paginator := s3.NewListPartsPaginator(s.client, &s3.ListPartsInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	for paginator.HasMorePages() {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, p := range page.Parts {
			parts = append(parts, PartInfo{
				PartNumber: int(aws.ToInt32(p.PartNumber)),
				SizeBytes:  aws.ToInt64(p.Size),
			})
		}
	}
	return parts, nil
}

func (s *S3Store) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return classify(err)
}

func (s *S3Store) HeadObject(ctx context.Context, bucket, key string) (*ObjectHead, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	class := string(out.StorageClass)
	if class == "" {
		class = config.ClassStandard
	}
	head := &ObjectHead{
		Bucket:       bucket,
		Key:          key,
		StorageClass: class,
		SizeBytes:    aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		VersionID:    aws.ToString(out.VersionId),
	}
	if out.LastModified != nil {
		head.LastModified = *out.LastModified
	}
	return head, nil
}

func (s *S3Store) GetObjectTags(ctx context.Context, bucket, key string) (map[string]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	tags := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

func (s *S3Store) PutObjectTags(ctx context.Context, bucket, key string, tags map[string]string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	tagSet := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		tagSet = append(tagSet, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	return classify(err)
}

func (s *S3Store) CopySelfWithClass(ctx context.Context, bucket, key, storageClass string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(bucket + "/" + key),
		StorageClass:      types.StorageClass(storageClass),
		MetadataDirective: types.MetadataDirectiveCopy,
		TaggingDirective:  types.TaggingDirectiveCopy,
	})
	return classify(err)
}

func (s *S3Store) DeleteObject(ctx context.Context, bucket, key, versionID string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}
	_, err := s.client.DeleteObject(ctx, input)
	return classify(err)
}

func (s *S3Store) GetObjectRetention(ctx context.Context, bucket, key string) (*Retention, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectRetention(ctx, &s3.GetObjectRetentionInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	if out.Retention == nil {
		return nil, nil
	}
	ret := &Retention{Mode: string(out.Retention.Mode)}
	if out.Retention.RetainUntilDate != nil {
		ret.RetainUntilDate = *out.Retention.RetainUntilDate
	}
	return ret, nil
}

func (s *S3Store) GetObjectLegalHold(ctx context.Context, bucket, key string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	out, err := s.client.GetObjectLegalHold(ctx, &s3.GetObjectLegalHoldInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, classify(err)
	}
	return out.LegalHold != nil && out.LegalHold.Status == types.ObjectLockLegalHoldStatusOn, nil
}

func fromS3Rule(r types.LifecycleRule) LifecycleRule {
	rule := LifecycleRule{
		ID:      aws.ToString(r.ID),
		Enabled: r.Status == types.ExpirationStatusEnabled,
	}
	if f, ok := r.Filter.(*types.LifecycleRuleFilterMemberPrefix); ok {
		rule.Prefix = f.Value
	}
	if len(r.Transitions) > 0 {
		rule.TransitionDays = int(aws.ToInt32(r.Transitions[0].Days))
		rule.TransitionStorageClass = string(r.Transitions[0].StorageClass)
	}
	if r.AbortIncompleteMultipartUpload != nil {
		rule.AbortIncompleteMultipartDays = int(aws.ToInt32(r.AbortIncompleteMultipartUpload.DaysAfterInitiation))
	}
	if r.Expiration != nil {
		rule.ExpirationDays = int(aws.ToInt32(r.Expiration.Days))
	}
	return rule
}

func toS3Rule(r LifecycleRule) types.LifecycleRule {
	status := types.ExpirationStatusDisabled
	if r.Enabled {
		status = types.ExpirationStatusEnabled
	}
	rule := types.LifecycleRule{
		ID:     aws.String(r.ID),
		Status: status,
		Filter: &types.LifecycleRuleFilterMemberPrefix{Value: r.Prefix},
	}
	if r.TransitionStorageClass != "" {
		rule.Transitions = []types.Transition{{
			Days:         aws.Int32(int32(r.TransitionDays)),
			StorageClass: types.TransitionStorageClass(r.TransitionStorageClass),
		}}
	}
	if r.AbortIncompleteMultipartDays > 0 {
		rule.AbortIncompleteMultipartUpload = &types.AbortIncompleteMultipartUpload{
			DaysAfterInitiation: aws.Int32(int32(r.AbortIncompleteMultipartDays)),
		}
	}
	if r.ExpirationDays > 0 {
		rule.Expiration = &types.LifecycleExpiration{Days: aws.Int32(int32(r.ExpirationDays))}
	}
	return rule
}
