package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/interactions"
)

type Handler struct {
	engine          *gin.Engine
	authSvc         *authentication.Service
	tokens          *authentication.TokenManager
	contentsSvc     *contents.Service
	interactionsSvc *interactions.Service
	cookieStore     sessions.Store
	sessionName     string
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	authSvc *authentication.Service,
	tokens *authentication.TokenManager,
	contentsSvc *contents.Service,
	interactionsSvc *interactions.Service,
	cookieStore sessions.Store,
	sessionName string,
	allowedOrigins []string,
	trustedProxies []string,
	rateLimit RateLimit,
) (*Handler, error) {
	registerValidationTagNames()

	h := &Handler{
		engine:          gin.New(),
		authSvc:         authSvc,
		tokens:          tokens,
		contentsSvc:     contentsSvc,
		interactionsSvc: interactionsSvc,
		cookieStore:     cookieStore,
		sessionName:     sessionName,
	}

	// client IPs come from the socket unless the peer is a listed proxy
	err := h.engine.SetTrustedProxies(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	h.engine.Use(
		recoverMiddleware,
		logMiddleware,
		cors.New(corsConfig(allowedOrigins)),
	)

	if rateLimit.RequestsPerSecond > 0 {
		h.engine.Use(newIPRateLimiter(rateLimit).middleware)
	}

	h.engine.Use(h.authMiddleware)

	h.registerRoutes()

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := h.engine.Group("/users")
	users.POST("/signup", h.handleSignUp)
	users.POST("/signin", h.handleSignIn)
	users.POST("/signout", requireAuth, h.handleSignOut)
	users.GET("/me", requireAuth, h.handleCurrentUser)

	posts := h.engine.Group("/posts")
	posts.GET("", h.handleListPosts)
	posts.POST("", requireAuth, h.handleCreatePost)
	posts.GET("/:postId", h.handleGetPost)
	posts.PUT("/:postId", requireAuth, h.handleUpdatePost)
	posts.DELETE("/:postId", requireAuth, h.handleDeletePost)
	posts.POST("/:postId/upvote", requireAuth, h.handleUpVote)
	posts.POST("/:postId/downvote", requireAuth, h.handleDownVote)
	posts.POST("/:postId/comments", requireAuth, h.handleAddComment)
	posts.GET("/:postId/comments", h.handleListComments)

	h.engine.POST("/comments/:commentId/replies", requireAuth, h.handleAddReply)
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true

		return config
	}

	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true

	return config
}

func recoverMiddleware(c *gin.Context) {
	defer func() {
		if err := recover(); err != nil {
			slog.ErrorContext(
				c.Request.Context(),
				"recovered from panic",
				"error",
				err,
				"stack",
				string(debug.Stack()),
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error occurred"})
		}
	}()

	c.Next()
}

func logMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	slog.InfoContext(
		c.Request.Context(),
		"http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"route", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
