package models

import "time"

// VoteChoice is a peer's decision on a pending review.
type VoteChoice string

const (
	VoteApprove    VoteChoice = "approve"
	VoteDisapprove VoteChoice = "disapprove"
)

// Valid reports whether c is a known choice.
func (c VoteChoice) Valid() bool {
	return c == VoteApprove || c == VoteDisapprove
}

// Vote is an append-only peer vote.
type Vote struct {
	ID        string     `json:"id"`
	ReviewID  string     `json:"review_id"`
	VoterID   string     `json:"voter_id"`
	Choice    VoteChoice `json:"choice"`
	CreatedAt time.Time  `json:"created_at"`
}

// Tally counts votes per choice.
type Tally map[VoteChoice]int

// Approve returns the number of approve votes.
func (t Tally) Approve() int { return t[VoteApprove] }

// Disapprove returns the number of disapprove votes.
func (t Tally) Disapprove() int { return t[VoteDisapprove] }
