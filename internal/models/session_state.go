package models

import (
	"time"

	"github.com/lib/pq"
)

// Step is a screen of the survey wizard.
type Step string

const (
	StepStartCheck  Step = "start_check"
	StepIntro       Step = "intro"
	StepInstruction Step = "instruction"
	StepSurvey      Step = "survey"
	StepComplete    Step = "complete"
)

// SessionState is the server-side state of one browser session. PresentationOrder
// holds catalog indexes and Cursor indexes into it.
type SessionState struct {
	ID                string          `gorm:"primaryKey;size:36"`
	Step              Step            `gorm:"size:16"`
	Participant       ParticipantInfo `gorm:"embedded;embeddedPrefix:intake_"`
	Acknowledged      pq.BoolArray    `gorm:"type:text"`
	PresentationOrder pq.Int64Array   `gorm:"type:text"`
	Cursor            int
	Timer             Timer `gorm:"embedded;embeddedPrefix:timer_"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SessionState) TableName() string { return "survey_sessions" }

// PairIndex returns the catalog index presented at position pos.
func (s *SessionState) PairIndex(pos int) int {
	return int(s.PresentationOrder[pos])
}

// AllAcknowledged reports whether every instruction statement was confirmed.
func (s *SessionState) AllAcknowledged() bool {
	if len(s.Acknowledged) == 0 {
		return false
	}
	for _, ok := range s.Acknowledged {
		if !ok {
			return false
		}
	}
	return true
}
