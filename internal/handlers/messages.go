package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/sechat/internal/api/middleware"
	"github.com/eldtechnologies/sechat/internal/chat"
	"github.com/eldtechnologies/sechat/internal/models"
)

// SubmitMessageRequest is the body of POST /rooms/{roomId}/messages.
type SubmitMessageRequest struct {
	SenderRole      string `json:"senderRole"`
	SenderName      string `json:"senderName"`
	Content         string `json:"content"`
	SessionID       string `json:"sessionId,omitempty"`
	ClientMessageID string `json:"clientMessageId"`
}

// ListMessages returns a room's committed messages in ascending order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.gateway.ListMessages(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, messages)
}

// SubmitMessage commits a message. 201 for a new row, 200 when the
// idempotency key had already been committed.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	caller := callerFromRequest(r, req.SessionID)
	res, err := h.gateway.SubmitMessage(r.Context(), caller, chi.URLParam(r, "roomId"), chat.SubmitInput{
		SenderRole:      req.SenderRole,
		SenderName:      req.SenderName,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.JSON(w, status, res.Message)
}

// callerFromRequest builds the session context of a gateway call: the body
// session wins over the header, admin comes from the verified token.
func callerFromRequest(r *http.Request, bodySession string) chat.Caller {
	sid := bodySession
	if sid == "" {
		sid = middleware.SessionFromRequest(r)
	}
	return chat.Caller{
		SessionID: sid,
		Admin:     middleware.IsAdmin(r.Context()),
	}
}
