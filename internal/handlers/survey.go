package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/models"
	"pairsurvey/internal/repository"
	"pairsurvey/internal/survey"
	"pairsurvey/internal/views"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionIDKey = "sessionID"

type SurveyHandler struct {
	log      *zap.Logger
	engine   *survey.Engine
	sessions *repository.SessionRepository
	views    *views.Renderer
}

func NewSurveyHandler(log *zap.Logger, engine *survey.Engine, sessions *repository.SessionRepository, renderer *views.Renderer) *SurveyHandler {
	return &SurveyHandler{log: log, engine: engine, sessions: sessions, views: renderer}
}

type instructionItem struct {
	models.Instruction
	Index   int
	Checked bool
}

type instructionData struct {
	Items []instructionItem
	Ready bool
}

type surveyData struct {
	Q                survey.Question
	Prompt           string
	Scale            []models.RatingOption
	Blocking         bool
	RemainingSeconds int
}

type completeData struct {
	ParticipantID string
	Answered      int
}

// loadState returns the state bound to the browser session, creating both when
// missing. A session id whose row was purged starts over at the first screen.
func (h *SurveyHandler) loadState(c *gin.Context) (*models.SessionState, error) {
	session := sessions.Default(c)
	if id, ok := session.Get(sessionIDKey).(string); ok && id != "" {
		st, err := h.sessions.Get(c.Request.Context(), id)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, repository.ErrSessionNotFound) {
			return nil, err
		}
		h.log.Debug("Session state expired, starting over", zap.String("session", id))
	}

	st := h.engine.NewSession(uuid.NewString())
	session.Set(sessionIDKey, st.ID)
	if err := session.Save(); err != nil {
		return nil, fmt.Errorf("save browser session: %w", err)
	}
	return st, nil
}

// act loads the state, applies op and renders the resulting screen. Errors from op
// that a participant can cause are shown as a message on the current screen.
func (h *SurveyHandler) act(c *gin.Context, op func(st *models.SessionState) (string, error)) {
	st, err := h.loadState(c)
	if err != nil {
		h.log.Error("Failed to load session state", zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not load your session")
		return
	}

	flash, err := op(st)
	if err != nil {
		switch {
		case errors.Is(err, survey.ErrWrongStep):
			// Stale form from another tab or the back button: show the real screen.
			h.log.Debug("Ignored out-of-step action", zap.String("path", c.Request.URL.Path), zap.String("step", string(st.Step)))
		case errors.Is(err, survey.ErrResumeNotFound):
			flash = "No saved responses match that name, birth year and phone number."
		case errors.Is(err, survey.ErrInstructionsPending):
			flash = "Please confirm every statement before starting."
		case errors.Is(err, survey.ErrInvalidRating):
			flash = "Please choose a rating from 1 to 7."
		case errors.Is(err, survey.ErrPaused):
			flash = "The survey is paused. Resume it to keep answering."
		case errors.Is(err, survey.ErrTimeExpired):
			flash = "The time limit has been reached. No more answers can be recorded."
		default:
			h.log.Warn("Survey action rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			flash = "That request could not be processed."
		}
	}

	if err := h.sessions.Save(c.Request.Context(), st); err != nil {
		h.log.Error("Failed to save session state", zap.Error(err), zap.String("session", st.ID))
		c.String(http.StatusInternalServerError, "Could not save your progress")
		return
	}
	h.render(c, st, flash)
}

func (h *SurveyHandler) render(c *gin.Context, st *models.SessionState, flash string) {
	page := newPage(c, h.engine.Content().Title, flash)
	name := string(st.Step)

	switch st.Step {
	case models.StepInstruction:
		data := instructionData{Ready: st.AllAcknowledged()}
		for i, in := range h.engine.Content().Instructions {
			checked := i < len(st.Acknowledged) && st.Acknowledged[i]
			data.Items = append(data.Items, instructionItem{Instruction: in, Index: i, Checked: checked})
		}
		page.Data = data
	case models.StepSurvey:
		q, err := h.engine.Current(st)
		if err != nil {
			h.log.Error("Failed to build question", zap.Error(err), zap.String("session", st.ID))
			c.String(http.StatusInternalServerError, "Could not load the next pair")
			return
		}
		page.Data = surveyData{
			Q:                q,
			Prompt:           h.engine.Content().Prompt,
			Scale:            h.engine.Content().RatingScale,
			Blocking:         h.engine.ExpiryPolicy() == survey.ExpiryBlocking,
			RemainingSeconds: int(q.Remaining.Seconds()),
		}
	case models.StepComplete:
		page.Data = completeData{
			ParticipantID: st.Participant.ParticipantID,
			Answered:      len(h.engine.Export(st)),
		}
	case models.StepStartCheck:
		name = "start"
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.views.Render(c.Writer, name, page, isHTMX(c)); err != nil {
		h.log.Error("Error rendering page", zap.Error(err), zap.String("page", name))
	}
}

// Show renders the session's current screen.
func (h *SurveyHandler) Show(c *gin.Context) {
	st, err := h.loadState(c)
	if err != nil {
		h.log.Error("Failed to load session state", zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not load your session")
		return
	}
	h.render(c, st, "")
}

func (h *SurveyHandler) Start(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		return "", h.engine.StartFresh(st)
	})
}

func (h *SurveyHandler) Resume(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		err := h.engine.Resume(c.Request.Context(), st, c.PostForm("name"), c.PostForm("birth_year"), c.PostForm("phone_suffix"))
		if err != nil {
			return "", err
		}
		return "Welcome back. Your earlier answers have been restored.", nil
	})
}

// Intro stores the intake form. Fields are taken as entered.
func (h *SurveyHandler) Intro(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		age, _ := strconv.Atoi(strings.TrimSpace(c.PostForm("age")))
		info := models.ParticipantInfo{
			Name:        c.PostForm("name"),
			BirthYear:   c.PostForm("birth_year"),
			Age:         age,
			Gender:      c.PostForm("gender"),
			Phone:       c.PostForm("phone"),
			BankAccount: c.PostForm("bank_account"),
			Affiliation: c.PostForm("affiliation"),
			NationalID:  c.PostForm("national_id"),
			Email:       c.PostForm("email"),
		}
		prior, err := h.engine.SubmitIntake(c.Request.Context(), st, info)
		if err != nil || prior == 0 {
			return "", err
		}
		return fmt.Sprintf("We found %d answers you already gave. Those pairs will be skipped.", prior), nil
	})
}

func (h *SurveyHandler) Acknowledge(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		index, err := strconv.Atoi(c.PostForm("index"))
		if err != nil {
			return "", fmt.Errorf("bad instruction index %q", c.PostForm("index"))
		}
		return "", h.engine.Acknowledge(st, index, c.PostForm("checked") == "true")
	})
}

func (h *SurveyHandler) Begin(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		return "", h.engine.BeginSurvey(st)
	})
}

func (h *SurveyHandler) Next(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		rating, err := strconv.Atoi(c.PostForm("rating"))
		if err != nil {
			return "", survey.ErrInvalidRating
		}
		return "", h.engine.Answer(c.Request.Context(), st, rating)
	})
}

func (h *SurveyHandler) Previous(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		return "", h.engine.Previous(st)
	})
}

func (h *SurveyHandler) Pause(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		return "", h.engine.Pause(st)
	})
}

func (h *SurveyHandler) ResumeTimer(c *gin.Context) {
	h.act(c, func(st *models.SessionState) (string, error) {
		return "", h.engine.ResumeTimer(st)
	})
}

// Export downloads the participant's own answers.
func (h *SurveyHandler) Export(c *gin.Context) {
	st, err := h.loadState(c)
	if err != nil {
		h.log.Error("Failed to load session state", zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not load your session")
		return
	}
	if st.Participant.ParticipantID == "" {
		c.String(http.StatusNotFound, "No responses to export yet")
		return
	}
	data, err := backup.EncodeCSV(h.engine.Export(st))
	if err != nil {
		h.log.Error("Failed to encode export", zap.Error(err), zap.String("participant", st.Participant.ParticipantID))
		c.String(http.StatusInternalServerError, "Could not build the export")
		return
	}
	sendCSV(c, fmt.Sprintf("responses_%s.csv", st.Participant.ParticipantID), data)
}
