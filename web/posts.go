package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
	"github.com/nasermirzaei89/agora/contents"
)

func (h *Handler) handleListPosts(c *gin.Context) {
	posts, err := h.contentsSvc.ListPosts(c.Request.Context())
	if err != nil {
		writeError(c, err)

		return
	}

	response := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		response = append(response, newPostResponse(post))
	}

	c.JSON(http.StatusOK, response)
}

type createPostRequest struct {
	Image    string `json:"image"    binding:"omitempty,url"`
	Content  string `json:"content"  binding:"required,max=10000"`
	Category string `json:"category" binding:"max=50"`
}

func (h *Handler) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	post, err := h.contentsSvc.CreatePost(ctx, contents.CreatePostRequest{
		AuthorID: authcontext.GetSubject(ctx),
		Image:    req.Image,
		Content:  req.Content,
		Category: req.Category,
	})
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, newPostResponse(post))
}

func (h *Handler) handleGetPost(c *gin.Context) {
	post, err := h.contentsSvc.GetPost(c.Request.Context(), c.Param("postId"))
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, newPostResponse(post))
}

type updatePostRequest struct {
	Image    *string `json:"image"    binding:"omitempty,url"`
	Content  *string `json:"content"  binding:"omitempty,max=10000"`
	Category *string `json:"category" binding:"omitempty,max=50"`
}

func (h *Handler) handleUpdatePost(c *gin.Context) {
	var req updatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.contentsSvc.UpdatePost(c.Request.Context(), contents.UpdatePostRequest{
		PostID:   c.Param("postId"),
		Image:    req.Image,
		Content:  req.Content,
		Category: req.Category,
	})
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, newPostResponse(post))
}

func (h *Handler) handleDeletePost(c *gin.Context) {
	ctx := c.Request.Context()
	postID := c.Param("postId")

	_, err := h.contentsSvc.CheckOwnership(ctx, postID)
	if err != nil {
		var notFoundErr *contents.PostNotFoundError
		if !errors.As(err, &notFoundErr) {
			writeError(c, err)

			return
		}

		// an interrupted delete may have left interactions behind;
		// DeletePost sweeps them and still reports not found
	}

	err = h.interactionsSvc.DeletePost(ctx, postID)
	if err != nil {
		writeError(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}
