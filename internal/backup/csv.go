// Package backup persists the response table as CSV locally and to a hosted
// repository through its contents API.
package backup

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"pairsurvey/internal/models"
)

// Columns is the header of every backup and export file.
var Columns = []string{
	"ID", "Sentence A", "Sentence B", "Rating", "answered_at",
	"participant_id", "name", "birth_year", "age", "gender", "phone",
	"bank_account", "affiliation", "national_id", "email", "session_start_time",
}

// WriteCSV writes records with the backup header.
func WriteCSV(w io.Writer, records []models.ResponseRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write(row(r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// EncodeCSV renders records into a byte slice.
func EncodeCSV(records []models.ResponseRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func row(r models.ResponseRecord) []string {
	return []string{
		strconv.Itoa(r.PairID),
		r.SentenceA,
		r.SentenceB,
		strconv.Itoa(r.Rating),
		formatTime(r.AnsweredAt),
		r.ParticipantID,
		r.Name,
		r.BirthYear,
		strconv.Itoa(r.Age),
		r.Gender,
		r.Phone,
		r.BankAccount,
		r.Affiliation,
		r.NationalID,
		r.Email,
		formatTime(r.SessionStartTime),
	}
}

// RowError describes a backup row that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e RowError) Unwrap() error { return e.Err }

// ReadCSV parses a backup file. Columns are matched by header name, so files with
// reordered or extra columns are accepted. Rows that fail to parse are left out of
// the result and reported in skipped; err is reserved for files that are not a
// response table at all.
func ReadCSV(r io.Reader) (records []models.ResponseRecord, skipped []RowError, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := col["participant_id"]; !ok {
		return nil, nil, fmt.Errorf("backup header has no participant_id column")
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records = make([]models.ResponseRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := parseRow(func(name string) string { return get(row, name) })
		if err != nil {
			skipped = append(skipped, RowError{Line: n + 2, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseRow(get func(string) string) (models.ResponseRecord, error) {
	var rec models.ResponseRecord
	pid := strings.TrimSpace(get("participant_id"))
	if pid == "" {
		return rec, errors.New("missing participant_id")
	}
	pairID, err := strconv.Atoi(strings.TrimSpace(get("ID")))
	if err != nil {
		return rec, fmt.Errorf("invalid pair id: %w", err)
	}
	rating, err := strconv.Atoi(strings.TrimSpace(get("Rating")))
	if err != nil {
		return rec, fmt.Errorf("invalid rating: %w", err)
	}
	if !models.ValidRating(rating) {
		return rec, fmt.Errorf("rating %d is outside %d..%d", rating, models.MinRating, models.MaxRating)
	}
	answeredAt, err := parseTime(get("answered_at"))
	if err != nil {
		return rec, fmt.Errorf("invalid answered_at: %w", err)
	}
	startedAt, err := parseTime(get("session_start_time"))
	if err != nil {
		return rec, fmt.Errorf("invalid session_start_time: %w", err)
	}
	age, err := parseAge(get("age"))
	if err != nil {
		return rec, fmt.Errorf("invalid age: %w", err)
	}

	return models.ResponseRecord{
		PairID:     pairID,
		SentenceA:  get("Sentence A"),
		SentenceB:  get("Sentence B"),
		Rating:     rating,
		AnsweredAt: answeredAt,
		ParticipantInfo: models.ParticipantInfo{
			ParticipantID:    pid,
			Name:             get("name"),
			BirthYear:        get("birth_year"),
			Age:              age,
			Gender:           get("gender"),
			Phone:            get("phone"),
			BankAccount:      get("bank_account"),
			Affiliation:      get("affiliation"),
			NationalID:       get("national_id"),
			Email:            get("email"),
			SessionStartTime: startedAt,
		},
	}, nil
}

// Timestamps are written as RFC 3339. Older files may carry naive timestamps,
// which are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// parseAge accepts blank, integer and integral float values ("34.0").
func parseAge(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}
