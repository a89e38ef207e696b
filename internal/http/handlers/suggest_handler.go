package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cinemap/go-showtimes-backend/internal/services"
)

// SuggestResponse is the typeahead response envelope.
type SuggestResponse struct {
	Query       string                `json:"query"`
	Suggestions []services.Suggestion `json:"suggestions"`
}

// Suggest handles GET /suggest?q=...&limit=..., answering with movies,
// then cinemas, then cities that match the query fragment. A blank query
// answers 200 with an empty list.
func (h *Handler) Suggest(c *gin.Context) {
	q := c.Query("q")

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	suggestions, err := h.suggest.Suggest(c.Request.Context(), q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSuggestFailed, "suggestion lookup failed")
		return
	}
	if suggestions == nil {
		suggestions = []services.Suggestion{}
	}
	ok(c, http.StatusOK, SuggestResponse{Query: q, Suggestions: suggestions})
}
