package models

import "time"

// phonePlaceholder stands in for the phone suffix when fewer than four characters
// were given.
const phonePlaceholder = "XXXX"

// ParticipantInfo is the intake form of one respondent. It is copied onto every
// response row so the backup table is self-describing.
type ParticipantInfo struct {
	ParticipantID    string `gorm:"index"`
	Name             string
	BirthYear        string
	Age              int
	Gender           string
	Phone            string
	BankAccount      string
	Affiliation      string
	NationalID       string
	Email            string
	SessionStartTime time.Time
}

// DeriveParticipantID builds the resume key from name, birth year and the last four
// characters of the phone number. The key is guessable and collides for people who
// share all three inputs; resume depends on this exact format.
func DeriveParticipantID(name, birthYear, phone string) string {
	return name + "_" + birthYear + "_" + PhoneSuffix(phone)
}

// PhoneSuffix returns the last four characters of phone, or the placeholder when the
// phone is shorter than that.
func PhoneSuffix(phone string) string {
	r := []rune(phone)
	if len(r) < 4 {
		return phonePlaceholder
	}
	return string(r[len(r)-4:])
}
