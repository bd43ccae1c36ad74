package services

import (
	"time"

	"github.com/dmitrijs2005/objidx/internal/server/models"
)

// MergeObject fills the optional metadata of an existing object from an
// incoming request, field by field, only where the stored value is unset.
// It reports whether anything changed.
func MergeObject(existing *models.Object, mime *string, extra map[string]any) bool {
	changed := mergeString(&existing.Mime, mime)
	if mergeMap(&existing.Extra, extra) {
		changed = true
	}
	return changed
}

// MergeFile is MergeObject for the optional metadata of a file reference.
func MergeFile(existing *models.File, mtime *time.Time, extra map[string]any) bool {
	changed := false
	if existing.ModifiedAt == nil && mtime != nil && !mtime.IsZero() {
		t := *mtime
		existing.ModifiedAt = &t
		changed = true
	}
	if mergeMap(&existing.Extra, extra) {
		changed = true
	}
	return changed
}

func mergeString(dst **string, src *string) bool {
	if *dst != nil && **dst != "" {
		return false
	}
	if src == nil || *src == "" {
		return false
	}
	v := *src
	*dst = &v
	return true
}

// An empty map counts as unset on both sides.
func mergeMap(dst *map[string]any, src map[string]any) bool {
	if len(*dst) > 0 || len(src) == 0 {
		return false
	}
	m := make(map[string]any, len(src))
	for k, v := range src {
		m[k] = v
	}
	*dst = m
	return true
}
