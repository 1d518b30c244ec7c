package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/sechat/internal/models"
)

// RoomStats is the live view of one active room.
type RoomStats struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	AdminLabel   string `json:"admin_label"`
	Participants int    `json:"participants"`
	Viewers      int    `json:"viewers"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	ActiveRooms   int         `json:"active_rooms"`
	ClosedRooms   int         `json:"closed_rooms"`
	TotalMessages int64       `json:"total_messages"`
	LastActivity  string      `json:"last_activity"`
	Rooms         []RoomStats `json:"rooms"`
}

// Stats returns dashboard statistics for the admin console.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rooms, err := h.rooms.ListRooms(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msgStats, err := h.store.MessageStats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read message stats")
		h.Error(w, http.StatusInternalServerError, "통계를 불러오지 못했습니다")
		return
	}

	resp := StatsResponse{
		TotalMessages: msgStats.Total,
		LastActivity:  "no activity yet",
		Rooms:         []RoomStats{},
	}
	if msgStats.LastActivity != nil {
		resp.LastActivity = formatTimeAgo(*msgStats.LastActivity)
	}

	for _, room := range rooms {
		if room.Status != models.RoomActive {
			resp.ClosedRooms++
			continue
		}
		resp.ActiveRooms++
		resp.Rooms = append(resp.Rooms, RoomStats{
			ID:           room.ID.String(),
			Code:         room.Code,
			AdminLabel:   room.AdminLabel,
			Participants: len(room.Participants),
			Viewers:      h.hub.SubscriberCount(room.ID.String()),
		})
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
