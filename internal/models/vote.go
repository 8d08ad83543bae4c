package models

import "time"

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteConfirm VoteType = "confirm"
	VoteDeny    VoteType = "deny"
)

func (v VoteType) Valid() bool {
	return v == VoteConfirm || v == VoteDeny
}

// Vote represents a row of the append-only 'votes' table.
type Vote struct {
	ID               string    `db:"id" json:"id"`
	ReportID         string    `db:"report_id" json:"reportId"`
	VoteType         VoteType  `db:"vote_type" json:"voteType"`
	VoterFingerprint string    `db:"voter_fingerprint" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// CastVoteInput is the payload of POST /api/reports/:id/vote.
type CastVoteInput struct {
	VoteType         string `json:"vote_type"`
	VoterFingerprint string `json:"voter_fingerprint"`
}
