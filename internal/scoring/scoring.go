// Package scoring turns the votes of a report into a time-decayed confidence
// score and the status derived from it.
package scoring

import (
	"math"
	"time"

	"incidentmap/internal/models"
)

const (
	// ConfirmThreshold and DenyThreshold are inclusive.
	ConfirmThreshold = 2.0
	DenyThreshold    = -2.0
)

// Result is the outcome of scoring one report.
type Result struct {
	Score        float64
	Status       models.ReportStatus
	ConfirmCount int
	DenyCount    int
}

// Ballot is the part of a vote that scoring looks at.
type Ballot struct {
	VoteType  models.VoteType
	CreatedAt time.Time
}

// Ballots projects stored votes onto ballots.
func Ballots(votes []models.Vote) []Ballot {
	out := make([]Ballot, len(votes))
	for i, v := range votes {
		out[i] = Ballot{VoteType: v.VoteType, CreatedAt: v.CreatedAt}
	}
	return out
}

// Tally counts confirm and deny ballots without weighting them.
func Tally(ballots []Ballot) (confirm, deny int) {
	for _, b := range ballots {
		switch b.VoteType {
		case models.VoteConfirm:
			confirm++
		case models.VoteDeny:
			deny++
		}
	}
	return confirm, deny
}

// Weight is the contribution of a single vote cast age ago: 1/(1+hours).
// Votes from the future count as cast now.
func Weight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return 1 / (1 + age.Hours())
}

// Compute scores ballots against now. It has no side effects and depends
// only on its arguments, so any ordering of ballots yields the same result.
func Compute(ballots []Ballot, now time.Time) Result {
	var (
		sum float64
		res Result
	)
	for _, b := range ballots {
		w := Weight(now.Sub(b.CreatedAt))
		switch b.VoteType {
		case models.VoteConfirm:
			sum += w
		case models.VoteDeny:
			sum -= w
		}
	}

	res.ConfirmCount, res.DenyCount = Tally(ballots)
	res.Score = round2(sum)
	res.Status = StatusFor(res.Score)
	return res
}

// StatusFor maps a rounded score to the vote-driven status.
func StatusFor(score float64) models.ReportStatus {
	switch {
	case score >= ConfirmThreshold:
		return models.StatusConfirmed
	case score <= DenyThreshold:
		return models.StatusDenied
	default:
		return models.StatusUnconfirmed
	}
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		// normalise -0
		return 0
	}
	return r
}
