package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
	"github.com/paperlens-ai/paperlens/internal/services"
)

type SearchHandler struct {
	dbclient core.DbClient
	search   *services.SearchService
}

func NewSearchHandler(db core.DbClient, search *services.SearchService) *SearchHandler {
	return &SearchHandler{dbclient: db, search: search}
}

type searchRequest struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float32 `json:"threshold"`
}

// SearchChunks ranks one document's chunks against the query text.
func (h *SearchHandler) SearchChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	matches, err := h.search.SearchChunks(r.Context(), doc.ID, req.Query, req.TopK, req.Threshold)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []models.ChunkMatch{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}
