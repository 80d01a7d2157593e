package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ReadLoopLab/readloop/backend/internal/review"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	"github.com/ReadLoopLab/readloop/backend/internal/stats"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type tokenRequestPayload struct {
	OwnerID string `json:"owner_id" validate:"required,max=190"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner_id"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), strings.TrimSpace(request.OwnerID))
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type submitReviewPayload struct {
	CardID         string `json:"card_id" validate:"required,max=190"`
	Rating         int    `json:"rating" validate:"required,min=1,max=4"`
	ResponseTimeMs *int   `json:"response_time_ms" validate:"omitempty,gt=0"`
}

type reviewResponsePayload struct {
	CardID          string  `json:"card_id"`
	Status          string  `json:"status"`
	EaseFactor      float64 `json:"ease_factor"`
	IntervalDays    int     `json:"interval_days"`
	Repetitions     int     `json:"repetitions"`
	DueAt           string  `json:"due_at"`
	IsLapse         bool    `json:"is_lapse"`
	ExperienceGain  int     `json:"experience_gain"`
	TotalExperience int64   `json:"total_experience"`
	Level           int     `json:"level"`
	LeveledUp       bool    `json:"leveled_up"`
	NewlyMastered   bool    `json:"newly_mastered"`
}

func (h *httpHandler) handleSubmitReview(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payload submitReviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	cardID, err := review.NewCardID(payload.CardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}
	rating, err := srs.NewRating(payload.Rating)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rating"})
		return
	}

	request := review.SubmitRequest{
		CardID:  cardID,
		OwnerID: ownerID,
		Rating:  rating,
	}
	if payload.ResponseTimeMs != nil {
		responseTime, err := review.NewResponseTime(*payload.ResponseTimeMs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_response_time"})
			return
		}
		request.ResponseTimeMs = &responseTime
	}

	result, err := h.reviewService.SubmitReview(c.Request.Context(), request)
	if err != nil {
		h.renderServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviewResponsePayload{
		CardID:          result.Card.CardID,
		Status:          string(result.Card.Status),
		EaseFactor:      result.Card.EaseFactor,
		IntervalDays:    result.Card.IntervalDays,
		Repetitions:     result.Card.Repetitions,
		DueAt:           result.Card.DueAt.UTC().Format(timeFormat),
		IsLapse:         result.IsLapse,
		ExperienceGain:  result.ExperienceGain,
		TotalExperience: result.TotalExperience,
		Level:           result.Level,
		LeveledUp:       result.LeveledUp,
		NewlyMastered:   result.NewlyMastered,
	})
}

type dueCardPayload struct {
	CardID      string  `json:"card_id"`
	BookID      string  `json:"book_id,omitempty"`
	Status      string  `json:"status"`
	EaseFactor  float64 `json:"ease_factor"`
	Interval    int     `json:"interval_days"`
	Repetitions int     `json:"repetitions"`
	DueAt       string  `json:"due_at"`
	IsOverdue   bool    `json:"is_overdue"`
	OverdueDays int     `json:"overdue_days"`
}

type dueSetPayload struct {
	Cards          []dueCardPayload `json:"cards"`
	DailyCap       int              `json:"daily_cap"`
	ReviewedToday  int              `json:"reviewed_today"`
	RemainingToday int              `json:"remaining_today"`
}

func (h *httpHandler) handleDueCards(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	dueSet, err := h.reviewService.DueCards(c.Request.Context(), review.DueQuery{
		OwnerID: ownerID,
		BookID:  c.Query("book_id"),
		Limit:   limit,
	})
	if err != nil {
		h.renderServiceError(c, err)
		return
	}

	cards := make([]dueCardPayload, 0, len(dueSet.Cards))
	for _, due := range dueSet.Cards {
		cards = append(cards, dueCardPayload{
			CardID:      due.Card.CardID,
			BookID:      due.Card.BookID,
			Status:      string(due.Card.Status),
			EaseFactor:  due.Card.EaseFactor,
			Interval:    due.Card.IntervalDays,
			Repetitions: due.Card.Repetitions,
			DueAt:       due.Card.DueAt.UTC().Format(timeFormat),
			IsOverdue:   due.IsOverdue,
			OverdueDays: due.OverdueDays,
		})
	}

	c.JSON(http.StatusOK, dueSetPayload{
		Cards:          cards,
		DailyCap:       dueSet.DailyCap,
		ReviewedToday:  dueSet.ReviewedToday,
		RemainingToday: dueSet.RemainingToday,
	})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	windowDays := 0
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window_days"})
			return
		}
		windowDays = parsed
	}

	summary, err := h.statsService.Compute(c.Request.Context(), stats.Query{
		OwnerID:    ownerID,
		WindowDays: windowDays,
		BookID:     c.Query("book_id"),
	})
	if err != nil {
		h.renderServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// renderServiceError maps core error taxonomy to HTTP statuses, keeping the
// stable service error code in the response body.
func (h *httpHandler) renderServiceError(c *gin.Context, err error) {
	code := review.ErrorCode(err)
	if code == "" {
		code = stats.ErrorCode(err)
	}
	if code == "" {
		code = "internal_error"
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, review.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, review.ErrCardSuspended),
		errors.Is(err, srs.ErrInvalidRating),
		errors.Is(err, review.ErrInvalidResponseTime),
		errors.Is(err, review.ErrInvalidOwnerID),
		errors.Is(err, review.ErrInvalidCardID):
		status = http.StatusBadRequest
	case errors.Is(err, review.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}
