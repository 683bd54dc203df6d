// Package metrics summarizes how each participant answered, for screening careless
// or automated responses on the admin page.
package metrics

import (
	"math"
	"sort"

	"pairsurvey/internal/models"
)

type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

// ParticipantMetrics is one row of the admin summary.
type ParticipantMetrics struct {
	ParticipantID string
	Name          string
	Answered      int
	Total         int
	Complete      bool
	MeanRating    MetricResult
	StdDevRating  MetricResult
	// MedianInterval is the median number of seconds between consecutive answers.
	MedianInterval MetricResult
	// LongestRun is the longest streak of identical ratings in answer order.
	LongestRun MetricResult
	Histogram  [models.MaxRating]int
}

// Summarize computes metrics for every participant in the table, in order of
// first appearance. total is the catalog size.
func Summarize(records []models.ResponseRecord, total int) []ParticipantMetrics {
	var order []string
	byParticipant := make(map[string][]models.ResponseRecord)
	for _, r := range records {
		if _, ok := byParticipant[r.ParticipantID]; !ok {
			order = append(order, r.ParticipantID)
		}
		byParticipant[r.ParticipantID] = append(byParticipant[r.ParticipantID], r)
	}

	out := make([]ParticipantMetrics, 0, len(order))
	for _, id := range order {
		out = append(out, ForParticipant(byParticipant[id], total))
	}
	return out
}

// ForParticipant computes the metrics for one participant's records.
func ForParticipant(records []models.ResponseRecord, total int) ParticipantMetrics {
	m := ParticipantMetrics{Total: total}
	if len(records) == 0 {
		return m
	}
	m.ParticipantID = records[0].ParticipantID
	m.Name = records[0].Name

	seen := make(map[int]bool, len(records))
	for _, r := range records {
		seen[r.PairID] = true
		if models.ValidRating(r.Rating) {
			m.Histogram[r.Rating-1]++
		}
	}
	m.Answered = len(seen)
	m.Complete = total > 0 && m.Answered >= total

	m.MeanRating = calculateMean(records)
	m.StdDevRating = calculateStdDev(records)

	// Interval and run metrics follow the order answers were given.
	chrono := make([]models.ResponseRecord, len(records))
	copy(chrono, records)
	sort.SliceStable(chrono, func(i, j int) bool { return chrono[i].AnsweredAt.Before(chrono[j].AnsweredAt) })
	m.MedianInterval = calculateMedianInterval(chrono)
	m.LongestRun = calculateLongestRun(chrono)
	return m
}

// Histogram counts ratings 1..7 across all records.
func Histogram(records []models.ResponseRecord) [models.MaxRating]int {
	var h [models.MaxRating]int
	for _, r := range records {
		if models.ValidRating(r.Rating) {
			h[r.Rating-1]++
		}
	}
	return h
}

func calculateMean(records []models.ResponseRecord) MetricResult {
	if len(records) < 1 {
		return MetricResult{}
	}
	sum := 0.0
	for _, r := range records {
		sum += float64(r.Rating)
	}
	return MetricResult{Value: sum / float64(len(records)), Calculated: true, SampleSize: len(records)}
}

// calculateStdDev returns the sample standard deviation; it needs two ratings.
func calculateStdDev(records []models.ResponseRecord) MetricResult {
	if len(records) < 2 {
		return MetricResult{SampleSize: len(records)}
	}
	mean := calculateMean(records).Value
	sumSq := 0.0
	for _, r := range records {
		d := float64(r.Rating) - mean
		sumSq += d * d
	}
	return MetricResult{
		Value:      math.Sqrt(sumSq / float64(len(records)-1)),
		Calculated: true,
		SampleSize: len(records),
	}
}

// calculateMedianInterval ignores records without a timestamp (rows restored from
// older backups).
func calculateMedianInterval(chrono []models.ResponseRecord) MetricResult {
	var intervals []float64
	for i := 1; i < len(chrono); i++ {
		prev, cur := chrono[i-1].AnsweredAt, chrono[i].AnsweredAt
		if prev.IsZero() || cur.IsZero() {
			continue
		}
		intervals = append(intervals, cur.Sub(prev).Seconds())
	}
	if len(intervals) == 0 {
		return MetricResult{}
	}
	sort.Float64s(intervals)
	mid := len(intervals) / 2
	median := intervals[mid]
	if len(intervals)%2 == 0 {
		median = (intervals[mid-1] + intervals[mid]) / 2
	}
	return MetricResult{Value: median, Calculated: true, SampleSize: len(intervals)}
}

func calculateLongestRun(chrono []models.ResponseRecord) MetricResult {
	if len(chrono) == 0 {
		return MetricResult{}
	}
	longest, run := 1, 1
	for i := 1; i < len(chrono); i++ {
		if chrono[i].Rating == chrono[i-1].Rating {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return MetricResult{Value: float64(longest), Calculated: true, SampleSize: len(chrono)}
}
