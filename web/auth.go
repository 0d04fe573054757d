package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nasermirzaei89/agora/authentication"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
)

// authMiddleware resolves the subject from a bearer token or the session
// cookie. A stale cookie is dropped and the request continues anonymously;
// a stale bearer token is rejected.
func (h *Handler) authMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	sessionID, fromCookie, err := h.requestSessionID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token"})

		return
	}

	if sessionID == "" {
		c.Next()

		return
	}

	session, err := h.authSvc.GetSession(ctx, sessionID)
	if err != nil {
		var (
			notFoundErr *authentication.SessionNotFoundError
			expiredErr  *authentication.SessionExpiredError
		)

		if errors.As(err, &notFoundErr) || errors.As(err, &expiredErr) {
			h.dropSession(c, fromCookie)

			return
		}

		slog.ErrorContext(ctx, "error on getting session", "sessionId", sessionID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "error on getting session"})

		return
	}

	user, err := h.authSvc.GetUser(ctx, session.UserID)
	if err != nil {
		var userNotFoundErr *authentication.UserNotFoundError
		if errors.As(err, &userNotFoundErr) {
			err = h.authSvc.Logout(ctx, session.ID)
			if err != nil {
				slog.ErrorContext(ctx, "error on logging out session", "sessionId", session.ID, "error", err)
			}

			h.dropSession(c, fromCookie)

			return
		}

		slog.ErrorContext(ctx, "error retrieving user", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "error on retrieving user"})

		return
	}

	ctx = authcontext.WithSessionID(ctx, session.ID)
	ctx = authcontext.WithSubject(ctx, user.ID)
	c.Request = c.Request.WithContext(ctx)

	c.Next()
}

func (h *Handler) requestSessionID(c *gin.Context) (string, bool, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return h.getSessionID(c.Request), true, nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false, authentication.ErrInvalidToken
	}

	claims, err := h.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return "", false, err
	}

	return claims.SessionID, false, nil
}

func (h *Handler) dropSession(c *gin.Context, fromCookie bool) {
	if !fromCookie {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "session expired"})

		return
	}

	err := h.deleteSessionID(c.Writer, c.Request)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "error on deleting session value", "key", sessionIDKey, "error", err)
	}

	c.Next()
}

func requireAuth(c *gin.Context) {
	if !authcontext.IsAuthenticated(c.Request.Context()) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "authentication required"})

		return
	}

	c.Next()
}

type signUpRequest struct {
	Name     string `json:"name"     binding:"required,max=100"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Picture  string `json:"picture"  binding:"omitempty,url"`
}

func (h *Handler) handleSignUp(c *gin.Context) {
	var req signUpRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authSvc.Register(c.Request.Context(), authentication.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Picture:  req.Picture,
	})
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, newUserResponse(user))
}

type signInRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type signInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (h *Handler) handleSignIn(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	session, err := h.authSvc.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(c, err)

		return
	}

	token, err := h.tokens.Issue(session)
	if err != nil {
		writeError(c, err)

		return
	}

	user, err := h.authSvc.GetUser(ctx, session.UserID)
	if err != nil {
		writeError(c, err)

		return
	}

	err = h.setSessionID(c.Writer, c.Request, session.ID)
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, signInResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      newUserResponse(user),
	})
}

func (h *Handler) handleSignOut(c *gin.Context) {
	ctx := c.Request.Context()

	sessionID, ok := authcontext.SessionIDFromContext(ctx)
	if ok {
		err := h.authSvc.Logout(ctx, sessionID)
		if err != nil {
			var notFoundErr *authentication.SessionNotFoundError
			if !errors.As(err, &notFoundErr) {
				writeError(c, err)

				return
			}
		}
	}

	err := h.deleteSessionID(c.Writer, c.Request)
	if err != nil {
		writeError(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) handleCurrentUser(c *gin.Context) {
	user, err := h.authSvc.GetCurrentUser(c.Request.Context())
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}
