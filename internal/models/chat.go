package models

import "time"

// Message is a chat line attached to a report.
type Message struct {
	ID                string    `db:"id"`
	ReportID          string    `db:"report_id"`
	SenderFingerprint string    `db:"sender_fingerprint"`
	AliasNumber       int       `db:"alias_number"`
	Content           string    `db:"content"`
	CreatedAt         time.Time `db:"created_at"`
}

// MessageView hides the sender fingerprint; IsOp flags the report creator.
type MessageView struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"reportId"`
	Content     string    `json:"content"`
	AliasNumber int       `json:"aliasNumber"`
	IsOp        bool      `json:"isOp"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Participant is a sender's per-report alias and cooldown anchor.
type Participant struct {
	ReportID          string    `db:"report_id"`
	SenderFingerprint string    `db:"sender_fingerprint"`
	AliasNumber       int       `db:"alias_number"`
	LastMessageAt     time.Time `db:"last_message_at"`
}

type PostMessageInput struct {
	Content           string `json:"content"`
	SenderFingerprint string `json:"sender_fingerprint"`
}

// Source is an evidence link attached to a report.
type Source struct {
	ID                 string    `db:"id" json:"id"`
	ReportID           string    `db:"report_id" json:"reportId"`
	URL                string    `db:"url" json:"url"`
	AddedByFingerprint string    `db:"added_by_fingerprint" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

type AddSourceInput struct {
	URL                string `json:"url"`
	AddedByFingerprint string `json:"added_by_fingerprint"`
}
