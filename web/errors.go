package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/interactions"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps domain errors to status codes. Anything unrecognized is
// logged and reported as an internal error.
func writeError(c *gin.Context, err error) {
	var (
		postNotFoundErr        *contents.PostNotFoundError
		notOwnerErr            *contents.NotPostOwnerError
		interactionNotFoundErr *interactions.InteractionNotFoundError
		alreadyVotedErr        *interactions.AlreadyVotedError
		staleErr               *interactions.StaleInteractionError
		userExistsErr          *authentication.UserAlreadyExistsError
		invalidFieldErr        *authentication.InvalidFieldError
	)

	status := http.StatusInternalServerError
	response := errorResponse{Error: "internal error occurred"}

	switch {
	case errors.As(err, &postNotFoundErr):
		status, response.Error = http.StatusNotFound, "post not found"
	case errors.As(err, &interactionNotFoundErr):
		status, response.Error = http.StatusNotFound, "comment not found"
	case errors.As(err, &alreadyVotedErr):
		status, response.Error = http.StatusConflict, fmt.Sprintf("you have already %s this post", alreadyVotedErr.Vote)
	case errors.As(err, &staleErr):
		status, response.Error = http.StatusConflict, "the post changed concurrently, try again"
	case errors.As(err, &notOwnerErr):
		status, response.Error = http.StatusForbidden, "only the author can change this post"
	case errors.As(err, &userExistsErr):
		status, response.Error = http.StatusConflict, "email is already registered"
	case errors.As(err, &invalidFieldErr):
		status = http.StatusBadRequest
		response = errorResponse{
			Error:  "validation failed",
			Fields: map[string]string{invalidFieldErr.Field: invalidFieldErr.Reason},
		}
	case errors.Is(err, interactions.ErrEmptyComment),
		errors.Is(err, contents.ErrEmptyContent):
		status, response.Error = http.StatusBadRequest, err.Error()
	case errors.Is(err, authentication.ErrInvalidCredentials):
		status, response.Error = http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, contents.ErrUnauthorized),
		errors.Is(err, authentication.ErrCurrentUserNotFound):
		status, response.Error = http.StatusUnauthorized, "authentication required"
	default:
		slog.ErrorContext(c.Request.Context(), "failed to handle request", "path", c.Request.URL.Path, "error", err)
	}

	c.AbortWithStatusJSON(status, response)
}

var registerTagNamesOnce sync.Once

// registerValidationTagNames makes validation errors report json field names.
func registerValidationTagNames() {
	registerTagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return field.Name
			}

			return name
		})
	})
}

func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fieldErr := range validationErrs {
			fields[fieldErr.Field()] = validationMessage(fieldErr)
		}

		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})

		return false
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})

	return false
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid url"
	case "min":
		return "must be at least " + fieldErr.Param() + " characters long"
	case "max":
		return "must be at most " + fieldErr.Param() + " characters long"
	default:
		return "is invalid"
	}
}
