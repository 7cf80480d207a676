package model

import "time"

// SentNotification records that an item was delivered. There is at most
// one record per identity key; re-sending an updated item overwrites it.
type SentNotification struct {
	// ID is the row id assigned by SQL stores. It is zero for DynamoDB.
	ID int64 `json:"id" db:"id"`

	// Kind is the item kind the notification was sent for.
	Kind Kind `json:"notification_type" db:"notification_type"`

	// IdentityKey is "<kind>:<id>" and is unique across the table.
	IdentityKey string `json:"identity_key" db:"identity_key"`

	// ContentFingerprint is the fingerprint of the content that was sent.
	ContentFingerprint string `json:"content_fingerprint" db:"content_fingerprint"`

	CourseCode *string `json:"course_code,omitempty" db:"course_code"`
	Title      string  `json:"title" db:"title"`

	// SentAt is when the notification was last delivered.
	SentAt time.Time `json:"sent_at" db:"sent_at"`
}
