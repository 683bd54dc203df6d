// Package survey drives one participant through the rating wizard: start or resume,
// intake, instructions, then the pair-by-pair rating loop.
package survey

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"pairsurvey/internal/models"
	"pairsurvey/internal/store"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ExpiryPolicy decides what happens once the timer reaches zero.
type ExpiryPolicy string

const (
	// ExpiryAdvisory shows a warning and keeps accepting answers.
	ExpiryAdvisory ExpiryPolicy = "advisory"
	// ExpiryBlocking refuses further answers.
	ExpiryBlocking ExpiryPolicy = "blocking"
)

type Options struct {
	TimeLimit time.Duration
	Expiry    ExpiryPolicy
	Shuffle   bool
	Rand      *rand.Rand
	Now       func() time.Time
}

// Engine holds what every session shares: the catalog, the texts and the response
// table. Per-session state is always passed in explicitly.
type Engine struct {
	log       *zap.Logger
	catalog   *models.Catalog
	content   *models.SurveyContent
	responses *store.ResponseStore
	opts      Options

	randMu sync.Mutex
}

func NewEngine(log *zap.Logger, catalog *models.Catalog, content *models.SurveyContent, responses *store.ResponseStore, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Expiry == "" {
		opts.Expiry = ExpiryAdvisory
	}
	return &Engine{log: log, catalog: catalog, content: content, responses: responses, opts: opts}
}

func (e *Engine) Catalog() *models.Catalog        { return e.catalog }
func (e *Engine) Content() *models.SurveyContent  { return e.content }
func (e *Engine) Responses() *store.ResponseStore { return e.responses }
func (e *Engine) Now() time.Time                  { return e.opts.Now() }
func (e *Engine) ExpiryPolicy() ExpiryPolicy      { return e.opts.Expiry }

// NewSession returns a session at the start screen.
func (e *Engine) NewSession(id string) *models.SessionState {
	return &models.SessionState{
		ID:    id,
		Step:  models.StepStartCheck,
		Timer: models.Timer{Limit: e.opts.TimeLimit},
	}
}

// StartFresh moves a new participant to the intake form.
func (e *Engine) StartFresh(st *models.SessionState) error {
	if st.Step != models.StepStartCheck {
		return ErrWrongStep
	}
	st.Step = models.StepIntro
	return nil
}

// Resume looks up earlier answers by the derived participant id and, on a match,
// jumps straight into the rating loop past everything already answered.
func (e *Engine) Resume(ctx context.Context, st *models.SessionState, name, birthYear, phoneSuffix string) error {
	if st.Step != models.StepStartCheck {
		return ErrWrongStep
	}
	id := models.DeriveParticipantID(strings.TrimSpace(name), strings.TrimSpace(birthYear), strings.TrimSpace(phoneSuffix))
	latest, ok := e.responses.Latest(id)
	if !ok {
		e.log.Info("Resume attempt did not match any participant", zap.String("participant", id))
		return fmt.Errorf("%w (%s)", ErrResumeNotFound, id)
	}

	now := e.opts.Now()
	st.Participant = latest.ParticipantInfo
	st.Acknowledged = nil
	e.ensureOrder(st)
	st.Timer.Limit = e.opts.TimeLimit
	st.Timer.Start(now)
	st.Step = models.StepSurvey
	st.Cursor = 0
	e.skipAnswered(st)

	e.log.Info("Participant resumed",
		zap.String("participant", id),
		zap.Int("answered", e.answeredCount(id)),
		zap.String("step", string(st.Step)),
	)
	return nil
}

// SubmitIntake stores the intake form, derives the participant id and returns how
// many answers were already saved under that id.
func (e *Engine) SubmitIntake(ctx context.Context, st *models.SessionState, info models.ParticipantInfo) (int, error) {
	if st.Step != models.StepIntro {
		return 0, ErrWrongStep
	}
	now := e.opts.Now()
	info.ParticipantID = models.DeriveParticipantID(strings.TrimSpace(info.Name), strings.TrimSpace(info.BirthYear), strings.TrimSpace(info.Phone))
	info.SessionStartTime = now

	st.Participant = info
	st.Timer.Limit = e.opts.TimeLimit
	st.Timer.Start(now)
	st.Acknowledged = make(pq.BoolArray, len(e.content.Instructions))
	st.Step = models.StepInstruction

	prior := e.answeredCount(info.ParticipantID)
	if prior > 0 {
		e.log.Info("Intake matched previously saved responses",
			zap.String("participant", info.ParticipantID), zap.Int("answered", prior))
	}
	return prior, nil
}

// Acknowledge sets or clears the confirmation of one instruction statement.
func (e *Engine) Acknowledge(st *models.SessionState, index int, value bool) error {
	if st.Step != models.StepInstruction {
		return ErrWrongStep
	}
	if len(st.Acknowledged) != len(e.content.Instructions) {
		st.Acknowledged = make(pq.BoolArray, len(e.content.Instructions))
	}
	if index < 0 || index >= len(st.Acknowledged) {
		return fmt.Errorf("instruction %d does not exist", index)
	}
	st.Acknowledged[index] = value
	return nil
}

// BeginSurvey enters the rating loop once every instruction is acknowledged. The
// timer restarts here.
func (e *Engine) BeginSurvey(st *models.SessionState) error {
	if st.Step != models.StepInstruction {
		return ErrWrongStep
	}
	if len(st.Acknowledged) != len(e.content.Instructions) || !st.AllAcknowledged() {
		return ErrInstructionsPending
	}
	e.ensureOrder(st)
	st.Timer.Start(e.opts.Now())
	st.Step = models.StepSurvey
	st.Cursor = 0
	e.skipAnswered(st)
	return nil
}

// Question is what the rating screen shows.
type Question struct {
	Pair         models.SentencePair
	Position     int
	Total        int
	Answered     int
	Rating       int
	HasPrior     bool
	CanGoBack    bool
	TimerEnabled bool
	Remaining    time.Duration
	Paused       bool
	Expired      bool
}

// Current describes the pair under the cursor. A prior answer becomes the default.
func (e *Engine) Current(st *models.SessionState) (Question, error) {
	if st.Step != models.StepSurvey {
		return Question{}, ErrWrongStep
	}
	now := e.opts.Now()
	pair := e.catalog.At(st.PairIndex(st.Cursor))
	q := Question{
		Pair:         pair,
		Position:     st.Cursor,
		Total:        len(st.PresentationOrder),
		Answered:     e.answeredCount(st.Participant.ParticipantID),
		Rating:       models.DefaultRating,
		CanGoBack:    st.Cursor > 0,
		TimerEnabled: st.Timer.Enabled(),
		Remaining:    st.Timer.Remaining(now),
		Paused:       st.Timer.Paused,
		Expired:      st.Timer.Expired(now),
	}
	if prior, ok := e.responses.Get(st.Participant.ParticipantID, pair.ID); ok {
		q.Rating = prior.Rating
		q.HasPrior = true
	}
	return q, nil
}

// Answer records a rating for the current pair, replacing any earlier rating of it,
// then moves to the next unanswered pair. A failed backup write is logged only.
func (e *Engine) Answer(ctx context.Context, st *models.SessionState, rating int) error {
	if st.Step != models.StepSurvey {
		return ErrWrongStep
	}
	if !models.ValidRating(rating) {
		return ErrInvalidRating
	}
	now := e.opts.Now()
	if e.opts.Expiry == ExpiryBlocking {
		if st.Timer.Paused {
			return ErrPaused
		}
		if st.Timer.Expired(now) {
			return ErrTimeExpired
		}
	}

	pair := e.catalog.At(st.PairIndex(st.Cursor))
	rec := models.ResponseRecord{
		PairID:          pair.ID,
		SentenceA:       pair.SentenceA,
		SentenceB:       pair.SentenceB,
		Rating:          rating,
		AnsweredAt:      now,
		ParticipantInfo: st.Participant,
	}
	if err := e.responses.Upsert(ctx, rec); err != nil {
		e.log.Warn("Response kept in memory but backup failed",
			zap.String("participant", rec.ParticipantID), zap.Int("pair", rec.PairID), zap.Error(err))
	}

	st.Cursor++
	e.skipAnswered(st)
	if st.Step == models.StepComplete {
		e.log.Info("Participant completed the survey",
			zap.String("participant", rec.ParticipantID), zap.Int("pairs", e.catalog.Len()))
	}
	return nil
}

// Previous steps back one position without touching stored answers.
func (e *Engine) Previous(st *models.SessionState) error {
	if st.Step != models.StepSurvey {
		return ErrWrongStep
	}
	if st.Cursor > 0 {
		st.Cursor--
	}
	return nil
}

func (e *Engine) Pause(st *models.SessionState) error {
	if st.Step != models.StepSurvey {
		return ErrWrongStep
	}
	st.Timer.Pause(e.opts.Now())
	return nil
}

func (e *Engine) ResumeTimer(st *models.SessionState) error {
	if st.Step != models.StepSurvey {
		return ErrWrongStep
	}
	st.Timer.Resume(e.opts.Now())
	return nil
}

// Complete reports whether every catalog pair has an answer from the participant.
func (e *Engine) Complete(participantID string) bool {
	return e.answeredCount(participantID) == e.catalog.Len()
}

// Export returns the participant's answers in canonical pair order.
func (e *Engine) Export(st *models.SessionState) []models.ResponseRecord {
	return e.responses.ForParticipant(st.Participant.ParticipantID)
}

// ensureOrder draws the presentation order once per session. An order that no
// longer matches the catalog size is redrawn.
func (e *Engine) ensureOrder(st *models.SessionState) {
	n := e.catalog.Len()
	if len(st.PresentationOrder) == n {
		return
	}
	if !e.opts.Shuffle {
		st.PresentationOrder = models.CanonicalOrder(n)
		return
	}
	e.randMu.Lock()
	st.PresentationOrder = models.ShuffledOrder(n, e.opts.Rand)
	e.randMu.Unlock()
}

// skipAnswered moves the cursor forward over answered pairs. It never moves
// backwards, so a pair reached with Previous stays on screen until answered again.
func (e *Engine) skipAnswered(st *models.SessionState) {
	pid := st.Participant.ParticipantID
	for st.Cursor < len(st.PresentationOrder) && e.responses.Has(pid, e.catalog.At(st.PairIndex(st.Cursor)).ID) {
		st.Cursor++
	}
	if st.Cursor < len(st.PresentationOrder) {
		return
	}
	if e.Complete(pid) {
		st.Step = models.StepComplete
		return
	}
	// Reached the end with gaps behind the cursor: restart the scan from the top.
	st.Cursor = 0
	for st.Cursor < len(st.PresentationOrder) && e.responses.Has(pid, e.catalog.At(st.PairIndex(st.Cursor)).ID) {
		st.Cursor++
	}
}

func (e *Engine) answeredCount(participantID string) int {
	n := 0
	for _, p := range e.catalog.Pairs {
		if e.responses.Has(participantID, p.ID) {
			n++
		}
	}
	return n
}
