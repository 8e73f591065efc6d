package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

// Lifecycle rules written by ADD_LIFECYCLE_POLICY actions. Merging is by
// rule ID so re-running an execution stays idempotent.
const (
	autoArchiveRuleID        = "costmgr-auto-archive"
	autoArchiveDays          = 90
	autoAbortMultipartDays   = 7
	deletionMarkerTagKey     = "costmgr:pending-deletion"
	deletionMarkerTimeFormat = time.RFC3339
)

func autoArchiveRule() cloud.LifecycleRule {
	return cloud.LifecycleRule{
		ID:                           autoArchiveRuleID,
		Enabled:                      true,
		TransitionDays:               autoArchiveDays,
		TransitionStorageClass:       config.ClassGlacierIR,
		AbortIncompleteMultipartDays: autoAbortMultipartDays,
	}
}

// capturePreState snapshots the attributes needed to parameterize the
// inverse verb before anything is mutated.
func (e *Executor) capturePreState(ctx context.Context, rec models.Recommendation) (map[string]interface{}, error) {
	switch rec.Type {
	case models.ChangeStorageClass:
		head, err := e.store.HeadObject(ctx, rec.Bucket, rec.Key)
		if err != nil {
			return nil, err
		}
		state := map[string]interface{}{
			"bucket":        rec.Bucket,
			"key":           rec.Key,
			"storage_class": head.StorageClass,
			"size_bytes":    head.SizeBytes,
			"etag":          head.ETag,
			"last_modified": head.LastModified.UTC().Format(time.RFC3339),
		}
		if tags, err := e.store.GetObjectTags(ctx, rec.Bucket, rec.Key); err == nil && len(tags) > 0 {
			state["tags"] = tags
		}
		return state, nil

	case models.AddLifecyclePolicy:
		rules, err := e.store.GetLifecycle(ctx, rec.Bucket)
		if err != nil && !cloud.IsNotFound(err) {
			return nil, err
		}
		state := map[string]interface{}{"bucket": rec.Bucket}
		if rules == nil {
			state["existing_lifecycle_rules"] = nil
		} else {
			state["existing_lifecycle_rules"] = rules
		}
		return state, nil

	case models.DeleteIncompleteUpload:
		uploads, err := e.store.ListMultipartUploads(ctx, rec.Bucket, rec.Key)
		if err != nil {
			return nil, err
		}
		var uploadIDs []string
		for _, u := range uploads {
			if u.Key == rec.Key {
				uploadIDs = append(uploadIDs, u.UploadID)
			}
		}
		return map[string]interface{}{
			"bucket":     rec.Bucket,
			"key":        rec.Key,
			"upload_ids": uploadIDs,
		}, nil

	case models.DeleteStaleObject, models.DeleteOldVersion:
		head, err := e.store.HeadObject(ctx, rec.Bucket, rec.Key)
		if err != nil {
			return nil, err
		}
		state := map[string]interface{}{
			"bucket":        rec.Bucket,
			"key":           rec.Key,
			"storage_class": head.StorageClass,
			"size_bytes":    head.SizeBytes,
			"etag":          head.ETag,
			"version_id":    head.VersionID,
			"last_modified": head.LastModified.UTC().Format(time.RFC3339),
			"warning":       "object data is permanently removed by this action",
		}
		return state, nil

	default:
		return nil, fmt.Errorf("unsupported recommendation type %q", rec.Type)
	}
}

// perform invokes the mutation verb for the recommendation and returns
// the synthesized post-change state.
func (e *Executor) perform(ctx context.Context, rec models.Recommendation, preState map[string]interface{}) (map[string]interface{}, error) {
	switch rec.Type {
	case models.ChangeStorageClass:
		if err := e.store.CopySelfWithClass(ctx, rec.Bucket, rec.Key, rec.TargetStorageClass); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"storage_class":          rec.TargetStorageClass,
			"previous_storage_class": preState["storage_class"],
		}, nil

	case models.AddLifecyclePolicy:
		existing, _ := preState["existing_lifecycle_rules"].([]cloud.LifecycleRule)
		merged := mergeLifecycleRules(existing, autoArchiveRule())
		if err := e.store.PutLifecycle(ctx, rec.Bucket, merged); err != nil {
			return nil, err
		}
		return map[string]interface{}{"lifecycle_rules": merged}, nil

	case models.DeleteIncompleteUpload:
		uploadIDs := e.uploadsToAbort(rec, preState)
		if len(uploadIDs) == 0 {
			return nil, &cloud.Error{Kind: cloud.KindNotFound, Message: "no matching multipart uploads"}
		}
		for _, id := range uploadIDs {
			if err := e.store.AbortMultipart(ctx, rec.Bucket, rec.Key, id); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{"aborted_upload_ids": uploadIDs}, nil

	case models.DeleteStaleObject:
		if err := e.ensureUnlocked(ctx, rec); err != nil {
			return nil, err
		}
		marker := map[string]string{deletionMarkerTagKey: e.now().UTC().Format(deletionMarkerTimeFormat)}
		if err := e.store.PutObjectTags(ctx, rec.Bucket, rec.Key, marker); err != nil && !cloud.IsAccessDenied(err) {
			return nil, err
		}
		if err := e.store.DeleteObject(ctx, rec.Bucket, rec.Key, ""); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": true}, nil

	case models.DeleteOldVersion:
		if err := e.ensureUnlocked(ctx, rec); err != nil {
			return nil, err
		}
		if err := e.store.DeleteObject(ctx, rec.Bucket, rec.Key, rec.VersionID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": true, "version_id": rec.VersionID}, nil

	default:
		return nil, fmt.Errorf("unsupported recommendation type %q", rec.Type)
	}
}

// uploadsToAbort prefers the specific upload ID from the finding and
// falls back to every upload captured for the key.
func (e *Executor) uploadsToAbort(rec models.Recommendation, preState map[string]interface{}) []string {
	if rec.UploadID != "" {
		return []string{rec.UploadID}
	}
	ids, _ := preState["upload_ids"].([]string)
	return ids
}

// ensureUnlocked refuses deletion while the object carries a legal hold
// or unelapsed retention. Lock reads that fail because object lock is
// not configured are treated as unlocked.
func (e *Executor) ensureUnlocked(ctx context.Context, rec models.Recommendation) error {
	held, err := e.store.GetObjectLegalHold(ctx, rec.Bucket, rec.Key)
	if err != nil && cloud.KindOf(err) == cloud.KindOther {
		return err
	}
	if held {
		return &cloud.Error{Kind: cloud.KindLocked, Message: "object is under legal hold"}
	}

	retention, err := e.store.GetObjectRetention(ctx, rec.Bucket, rec.Key)
	if err != nil && cloud.KindOf(err) == cloud.KindOther {
		return err
	}
	if retention != nil && retention.RetainUntilDate.After(e.now()) {
		return &cloud.Error{
			Kind:    cloud.KindLocked,
			Message: fmt.Sprintf("object retained until %s", retention.RetainUntilDate.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

// mergeLifecycleRules replaces any existing rule with the same ID and
// appends the rule otherwise.
func mergeLifecycleRules(existing []cloud.LifecycleRule, rule cloud.LifecycleRule) []cloud.LifecycleRule {
	merged := make([]cloud.LifecycleRule, 0, len(existing)+1)
	replaced := false
	for _, r := range existing {
		if r.ID == rule.ID {
			merged = append(merged, rule)
			replaced = true
			continue
		}
		merged = append(merged, r)
	}
	if !replaced {
		merged = append(merged, rule)
	}
	return merged
}

func (e *Executor) simulatedPostState(rec models.Recommendation) map[string]interface{} {
	switch rec.Type {
	case models.ChangeStorageClass:
		return map[string]interface{}{
			"intended_action": "change storage class",
			"storage_class":   rec.TargetStorageClass,
		}
	case models.AddLifecyclePolicy:
		return map[string]interface{}{
			"intended_action": "write lifecycle policy",
			"rule_id":         autoArchiveRuleID,
		}
	case models.DeleteIncompleteUpload:
		return map[string]interface{}{
			"intended_action": "abort multipart upload",
			"upload_id":       rec.UploadID,
		}
	case models.DeleteStaleObject:
		return map[string]interface{}{
			"intended_action": "delete object",
		}
	case models.DeleteOldVersion:
		return map[string]interface{}{
			"intended_action": "delete object version",
			"version_id":      rec.VersionID,
		}
	default:
		return nil
	}
}
