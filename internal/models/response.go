package models

import "time"

const (
	MinRating     = 1
	MaxRating     = 7
	DefaultRating = 4
)

// ResponseRecord is one rating of one pair by one participant, flattened with the
// participant's intake data.
type ResponseRecord struct {
	PairID     int
	SentenceA  string
	SentenceB  string
	Rating     int
	AnsweredAt time.Time
	ParticipantInfo
}

// ValidRating reports whether r is on the 7-point similarity scale.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
