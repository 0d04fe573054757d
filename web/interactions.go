package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
	"github.com/nasermirzaei89/agora/interactions"
)

func (h *Handler) handleUpVote(c *gin.Context) {
	ctx := c.Request.Context()

	interaction, err := h.interactionsSvc.UpVote(ctx, authcontext.GetSubject(ctx), c.Param("postId"))
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, newInteractionResponse(interaction))
}

func (h *Handler) handleDownVote(c *gin.Context) {
	ctx := c.Request.Context()

	interaction, err := h.interactionsSvc.DownVote(ctx, authcontext.GetSubject(ctx), c.Param("postId"))
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, newInteractionResponse(interaction))
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required,max=2000"`
}

func (h *Handler) handleAddComment(c *gin.Context) {
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	interaction, err := h.interactionsSvc.AddComment(ctx, interactions.AddCommentRequest{
		UserID:  authcontext.GetSubject(ctx),
		PostID:  c.Param("postId"),
		Comment: req.Comment,
	})
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, newInteractionResponse(interaction))
}

func (h *Handler) handleListComments(c *gin.Context) {
	comments, err := h.interactionsSvc.ListComments(c.Request.Context(), c.Param("postId"))
	if err != nil {
		writeError(c, err)

		return
	}

	response := make([]commentResponse, 0, len(comments))
	for _, comment := range comments {
		response = append(response, newCommentResponse(comment))
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) handleAddReply(c *gin.Context) {
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	interaction, err := h.interactionsSvc.AddReply(ctx, interactions.AddReplyRequest{
		InteractionID: c.Param("commentId"),
		UserID:        authcontext.GetSubject(ctx),
		Comment:       req.Comment,
	})
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, newInteractionResponse(interaction))
}
