package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaStatus is the lifecycle state of an uploaded media item.
type MediaStatus string

const (
	// MediaUploaded is a fresh upload no post has referenced yet.
	MediaUploaded MediaStatus = "UPLOADED"
	// MediaReferenced is embedded in at least one post.
	MediaReferenced MediaStatus = "REFERENCED"
	// MediaPendingDeletion lost its last reference and waits for the sweep.
	MediaPendingDeletion MediaStatus = "PENDING_DELETION"
)

// mediaStatuses is every status in declaration order.
var mediaStatuses = []MediaStatus{MediaUploaded, MediaReferenced, MediaPendingDeletion}

// transitions lists the allowed status changes. Purging is a row delete
// and is not represented here.
var transitions = map[MediaStatus][]MediaStatus{
	MediaUploaded:        {MediaReferenced},
	MediaReferenced:      {MediaPendingDeletion},
	MediaPendingDeletion: {MediaReferenced},
}

// Valid reports whether s is one of the known statuses.
func (s MediaStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s MediaStatus) CanTransitionTo(next MediaStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Sources lists the statuses allowed to move to s, in declaration order.
func (s MediaStatus) Sources() []MediaStatus {
	var out []MediaStatus
	for _, from := range mediaStatuses {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// Purgeable reports whether the sweep may delete media in status s.
func (s MediaStatus) Purgeable() bool {
	return s == MediaUploaded || s == MediaPendingDeletion
}

// ParseMediaStatus converts a stored value into a MediaStatus.
func ParseMediaStatus(v string) (MediaStatus, error) {
	s := MediaStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown media status %q", v)
	}
	return s, nil
}

// Media is the index record of an object kept in object storage.
//
// BlobURL is the public path of the item and is unique. MediumURL is an
// optional derived rendition path. ScheduledDeleteAt is set if and only if
// Status is MediaPendingDeletion.
type Media struct {
	ID                string
	BlobURL           string
	MediumURL         *string
	StorageKey        string
	OriginalFilename  string
	ContentType       string
	UploaderID        string
	IsPublic          bool
	Status            MediaStatus
	CreatedAt         time.Time
	ScheduledDeleteAt *time.Time
}

// IsImage reports whether the stored bytes can go through the transform step.
func (m *Media) IsImage() bool {
	return strings.HasPrefix(m.ContentType, "image/")
}
