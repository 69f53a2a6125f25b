package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	appMiddleware "github.com/paperlens-ai/paperlens/internal/api/middlewares"
	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/core/ingestion_engine"
	"github.com/paperlens-ai/paperlens/internal/models"
	"github.com/paperlens-ai/paperlens/internal/services"
)

type DocumentHandler struct {
	dbclient core.DbClient
	docs     *services.DocumentService
	ingestor ingestion_engine.Ingestor
}

func NewDocumentHandler(dbclient core.DbClient, docs *services.DocumentService, ing ingestion_engine.Ingestor) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, docs: docs, ingestor: ing}
}

// UploadDocument handles file upload, DB insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.ParseMultipartForm(52 << 20) // 52 MB

	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadctx, userID, cleanFilename, contentType, data)
	if err != nil {
		log.Printf("upload failed for user %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.ingestor.Enqueue(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}
	if err := h.docs.Delete(r.Context(), doc); err != nil {
		http.Error(w, fmt.Sprintf("delete failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReprocessDocument re-runs the whole processing flow from download.
// There is no partial resume; a fresh run re-derives everything.
func (h *DocumentHandler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := ownedDocument(w, r, h.dbclient)
	if !ok {
		return
	}
	h.ingestor.Enqueue(doc.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.DocStatusProcessing})
}

// ownedDocument loads the {documentID} route param and enforces ownership.
func ownedDocument(w http.ResponseWriter, r *http.Request, db core.DbClient) (*models.Document, bool) {
	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	docID := chi.URLParam(r, "documentID")
	doc, err := db.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	if doc.UserID != userID {
		http.Error(w, "you are not authorized to access this document", http.StatusForbidden)
		return nil, false
	}
	return doc, true
}
