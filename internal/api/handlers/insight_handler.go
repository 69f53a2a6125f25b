package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/core/insight_engine"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// InsightHandler exposes the insight flow to the client-driven progressive
// loop: plan, per-group extraction, merge-and-cache, cached fetch, regenerate.
type InsightHandler struct {
	dbclient core.DbClient
	engine   *insight_engine.Engine
}

func NewInsightHandler(db core.DbClient, engine *insight_engine.Engine) *InsightHandler {
	return &InsightHandler{dbclient: db, engine: engine}
}

// GetPlan returns the group plan, or null when the document has no chunks.
func (h *InsightHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	plan, err := h.engine.GetInsightPlan(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("plan failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// ExtractGroup runs one group extraction and returns its candidates.
func (h *InsightHandler) ExtractGroup(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	groupIndex, err := strconv.Atoi(chi.URLParam(r, "groupIndex"))
	if err != nil || groupIndex < 0 {
		http.Error(w, "invalid group index", http.StatusBadRequest)
		return
	}

	plan, err := h.engine.GetInsightPlan(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("plan failed: %v", err), http.StatusInternalServerError)
		return
	}
	if plan == nil || groupIndex >= plan.TotalGroups {
		http.Error(w, "group index out of range", http.StatusBadRequest)
		return
	}

	insights, err := h.engine.ExtractGroupInsights(r.Context(), doc.ID, groupIndex, plan.TotalGroups)
	if err != nil {
		// A bad model response degrades to zero insights for this group.
		insights = nil
	}
	if insights == nil {
		insights = []models.Insight{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(insights)
}

type mergeRequest struct {
	Candidates []models.Insight `json:"candidates"`
}

// Merge deduplicates accumulated candidates and caches the final set.
func (h *InsightHandler) Merge(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	outcome, err := h.engine.MergeAndCacheInsights(r.Context(), doc.ID, req.Candidates)
	if err != nil {
		http.Error(w, fmt.Sprintf("merge failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// GetCached returns the cached final set, or null when none exists.
func (h *InsightHandler) GetCached(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	insights, err := h.engine.GetCachedDocumentInsights(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("cache read failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(insights)
}

// Generate runs the single-shot flow (cache check, fan-out, merge).
func (h *InsightHandler) Generate(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	outcome, err := h.engine.GenerateInsights(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("insight generation failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// Regenerate busts the cache and recomputes the full set.
func (h *InsightHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}

	outcome, err := h.engine.RegenerateInsights(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("regenerate failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}
