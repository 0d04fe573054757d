package web

import (
	"time"

	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/interactions"
)

type userResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Picture      string    `json:"picture,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func newUserResponse(user *authentication.User) userResponse {
	return userResponse{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Picture:      user.Picture,
		RegisteredAt: user.RegisteredAt,
	}
}

type postResponse struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	Image         string    `json:"image,omitempty"`
	Content       string    `json:"content"`
	Category      string    `json:"category,omitempty"`
	ViewCount     int       `json:"viewCount"`
	UpvoteCount   int       `json:"upvoteCount"`
	DownvoteCount int       `json:"downvoteCount"`
	ReplyCount    int       `json:"replyCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newPostResponse(post *contents.Post) postResponse {
	return postResponse{
		ID:            post.ID,
		AuthorID:      post.AuthorID,
		Image:         post.Image,
		Content:       post.Content,
		Category:      post.Category,
		ViewCount:     post.ViewCount,
		UpvoteCount:   post.UpvoteCount,
		DownvoteCount: post.DownvoteCount,
		ReplyCount:    post.ReplyCount,
		CreatedAt:     post.CreatedAt,
		UpdatedAt:     post.UpdatedAt,
	}
}

type replyResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type interactionResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	PostID    string          `json:"postId"`
	Comment   *string         `json:"comment"`
	Replies   []replyResponse `json:"replies"`
	Upvoted   bool            `json:"upvoted"`
	Downvoted bool            `json:"downvoted"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newInteractionResponse(interaction *interactions.Interaction) interactionResponse {
	replies := make([]replyResponse, 0, len(interaction.Replies))
	for _, reply := range interaction.Replies {
		replies = append(replies, replyResponse{
			ID:        reply.ID,
			UserID:    reply.UserID,
			Comment:   reply.Comment,
			CreatedAt: reply.CreatedAt,
		})
	}

	return interactionResponse{
		ID:        interaction.ID,
		UserID:    interaction.UserID,
		PostID:    interaction.PostID,
		Comment:   interaction.Comment,
		Replies:   replies,
		Upvoted:   interaction.Upvoted(),
		Downvoted: interaction.Downvoted(),
		CreatedAt: interaction.CreatedAt,
		UpdatedAt: interaction.UpdatedAt,
	}
}

type authorResponse struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

type commentReplyResponse struct {
	ID        string         `json:"id"`
	User      authorResponse `json:"user"`
	Comment   string         `json:"comment"`
	CreatedAt time.Time      `json:"createdAt"`
}

type commentResponse struct {
	ID        string                 `json:"id"`
	User      authorResponse         `json:"user"`
	Comment   string                 `json:"comment"`
	CreatedAt time.Time              `json:"createdAt"`
	Replies   []commentReplyResponse `json:"replies"`
}

func newCommentResponse(view *interactions.CommentView) commentResponse {
	replies := make([]commentReplyResponse, 0, len(view.Replies))
	for _, reply := range view.Replies {
		replies = append(replies, commentReplyResponse{
			ID:        reply.ID,
			User:      authorResponse{Name: reply.Author.Name, Picture: reply.Author.Picture},
			Comment:   reply.Comment,
			CreatedAt: reply.CreatedAt,
		})
	}

	return commentResponse{
		ID:        view.ID,
		User:      authorResponse{Name: view.Author.Name, Picture: view.Author.Picture},
		Comment:   view.Comment,
		CreatedAt: view.CreatedAt,
		Replies:   replies,
	}
}
