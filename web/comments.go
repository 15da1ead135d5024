package web

import (
	"net/http"
	"time"

	authcontext "github.com/swiftie-vault/eastereggs/auth/context"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/thread"
)

type commentView struct {
	ID              string         `json:"id"`
	EggID           string         `json:"easter_egg_id"`
	UserID          string         `json:"user_id"`
	Username        string         `json:"username"`
	Content         string         `json:"content"`
	ParentCommentID *string        `json:"parent_comment_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpvotesCount    int            `json:"upvotes_count"`
	UserLiked       bool           `json:"user_liked"`
	Depth           int            `json:"depth"`
	Replies         []*commentView `json:"replies"`
}

func newCommentView(node *thread.Node) *commentView {
	var parentID *string
	if node.ParentID != "" {
		parentID = &node.ParentID
	}

	return &commentView{
		ID:              node.ID,
		EggID:           node.SubjectID,
		UserID:          node.AuthorID,
		Username:        node.Username,
		Content:         node.Content,
		ParentCommentID: parentID,
		CreatedAt:       node.CreatedAt,
		UpvotesCount:    node.UpvotesCount,
		UserLiked:       node.UserLikes,
		Depth:           node.Depth,
		Replies:         []*commentView{},
	}
}

// threadView converts the tree without recursion, so deep reply chains are
// safe to render.
func threadView(roots []*thread.Node) []*commentView {
	views := make(map[*thread.Node]*commentView)

	result := make([]*commentView, 0, len(roots))
	for _, root := range roots {
		view := newCommentView(root)
		views[root] = view
		result = append(result, view)
	}

	thread.Walk(roots, func(node *thread.Node) {
		parent := views[node]

		for _, reply := range node.Replies {
			view := newCommentView(reply)
			views[reply] = view
			parent.Replies = append(parent.Replies, view)
		}
	})

	return result
}

func (h *Handler) HandleListComments() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		egg, err := h.eggsSvc.GetEgg(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		roots, err := h.discussSvc.Thread(r.Context(), egg.ID, authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, threadView(roots))
	})
}

func (h *Handler) HandleCommentCount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := h.discussSvc.CountComments(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]int{"count": count})
	})
}

type createCommentRequest struct {
	EggID           string `json:"easter_egg_id" validate:"required"`
	Content         string `json:"content" validate:"required"`
	ParentCommentID string `json:"parent_comment_id"`
}

func (h *Handler) HandleCreateComment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createCommentRequest

		err := h.decodeValidate(r, &req)
		if err != nil {
			respondError(w, r, err)

			return
		}

		egg, err := h.eggsSvc.GetEgg(r.Context(), req.EggID)
		if err != nil {
			respondError(w, r, err)

			return
		}

		comment, err := h.discussSvc.CreateComment(r.Context(), discuss.CreateCommentRequest{
			EggID:    egg.ID,
			AuthorID: authcontext.ViewerID(r.Context()),
			Content:  req.Content,
			ParentID: req.ParentCommentID,
		})
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusCreated, comment)
	})
}

func (h *Handler) HandleLikeComment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		comment, err := h.discussSvc.GetComment(r.Context(), r.PathValue("commentId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		result, err := h.likesSvc.Toggle(r.Context(), likes.TargetTypeComment, comment.ID, authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]any{
			"success":       true,
			"liked":         result.Liked,
			"action":        result.Action,
			"upvotes_count": result.Count,
		})
	})
}
