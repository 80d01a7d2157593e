package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/review"
	"github.com/ReadLoopLab/readloop/backend/internal/stats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const ownerIDContextKey = "readloop_owner_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingReviewService = errors.New("review service dependency required")
	errMissingStatsService  = errors.New("stats service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates learner bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, ownerID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP shell to the core services.
type Dependencies struct {
	TokenManager  TokenManager
	ReviewService *review.Service
	StatsService  *stats.Service
	Logger        *zap.Logger
}

// NewHTTPHandler assembles the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.ReviewService == nil {
		return nil, errMissingReviewService
	}
	if deps.StatsService == nil {
		return nil, errMissingStatsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		reviewService: deps.ReviewService,
		statsService:  deps.StatsService,
		validate:      validator.New(),
		logger:        logger,
	}

	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/reviews", handler.handleSubmitReview)
	protected.GET("/reviews/due", handler.handleDueCards)
	protected.GET("/stats", handler.handleStats)

	return router, nil
}

type httpHandler struct {
	tokens        TokenManager
	reviewService *review.Service
	statsService  *stats.Service
	validate      *validator.Validate
	logger        *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		h.logger.Warn("request rejected", zap.Error(errInvalidAuthorization))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ownerID, err := h.tokens.ValidateToken(strings.TrimPrefix(header, prefix))
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(ownerIDContextKey, ownerID)
	c.Next()
}

func ownerFromContext(c *gin.Context) (review.OwnerID, bool) {
	raw, exists := c.Get(ownerIDContextKey)
	if !exists {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	ownerID, err := review.NewOwnerID(value)
	if err != nil {
		return "", false
	}
	return ownerID, true
}
