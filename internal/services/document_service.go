package services

import (
	"context"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket}
}

// UploadAndCreate stores the file bytes and creates the document row in the
// "uploading" state. Processing is triggered separately by the caller.
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data []byte) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    filename,
		StorageURL:  url,
		ContentType: contentType,
		ByteSize:    int64(len(data)),
		Status:      models.DocStatusUploading,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Delete removes the stored object and the document row. Chunks and the
// cached insight set cascade with the row. A failing object delete is logged
// but does not block the row delete.
func (s *DocumentService) Delete(ctx context.Context, doc *models.Document) error {
	_, key := splitStorageURL(doc.StorageURL)
	if key != "" {
		if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
			log.Printf("DocumentService: delete object for doc %s: %v", doc.ID, err)
		}
	}
	return s.db.DeleteDocument(ctx, doc.ID)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}

// splitStorageURL recovers bucket and key from a virtual-hosted S3 URL.
func splitStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
