package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/sechat/internal/models"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	AdminLabel string `json:"adminLabel"`
}

// UpdateRoomRequest represents a room status change. Only "closed" is
// accepted.
type UpdateRoomRequest struct {
	Status string `json:"status"`
}

// JoinRequest represents the join-by-code request.
type JoinRequest struct {
	Code        string `json:"code"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

// LeaveRequest represents the leave notice request.
type LeaveRequest struct {
	Role      string `json:"role"`
	SessionID string `json:"sessionId,omitempty"`
}

// CreateRoom handles room creation (admin).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), req.AdminLabel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, room)
}

// ListRooms lists every room with its participants (admin).
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, rooms)
}

// UpdateRoom closes a room (admin).
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Status != models.RoomClosed {
		h.Error(w, http.StatusBadRequest, "status는 closed만 가능합니다")
		return
	}

	room, err := h.rooms.CloseRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// RoomInfo returns a room's status and participants.
func (h *Handler) RoomInfo(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.RoomInfo(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// Join admits a counselor or client by room code.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.rooms.Join(r.Context(), req.Code, req.Role, req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Reentry {
		status = http.StatusOK
	}
	h.JSON(w, status, res)
}

// Leave posts a departure notice.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	caller := callerFromRequest(r, req.SessionID)
	if err := h.rooms.Leave(r.Context(), caller, chi.URLParam(r, "roomId"), req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// EntryMessageRequest carries the notice posted into new rooms.
type EntryMessageRequest struct {
	Message string `json:"message"`
}

// GetEntryMessage returns the configured entry notice (admin).
func (h *Handler) GetEntryMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.rooms.EntryMessage(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, EntryMessageRequest{Message: msg})
}

// PutEntryMessage replaces the entry notice (admin).
func (h *Handler) PutEntryMessage(w http.ResponseWriter, r *http.Request) {
	var req EntryMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.rooms.SetEntryMessage(r.Context(), req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, EntryMessageRequest{Message: msg})
}
