package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

type docFakeDB struct {
	core.DbClient

	created *models.Document
	deleted []string
}

func (f *docFakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.created = doc
	return nil
}

func (f *docFakeDB) DeleteDocument(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type docFakeStorage struct {
	core.ObjectClient

	uploadedKey string
	deletedKey  string
	deleteErr   error
}

func (f *docFakeStorage) UploadFile(_ context.Context, bucket, key string, _ []byte, _ string) (string, error) {
	f.uploadedKey = key
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (f *docFakeStorage) DeleteFile(_ context.Context, _ string, key string) error {
	f.deletedKey = key
	return f.deleteErr
}

func TestUploadAndCreate(t *testing.T) {
	db := &docFakeDB{}
	storage := &docFakeStorage{}
	svc := NewDocumentService(db, storage, "paperlens-docs")

	doc, err := svc.UploadAndCreate(context.Background(), "user-1", "my paper.pdf", "application/pdf", []byte("%PDF data"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, models.DocStatusUploading, doc.Status)
	assert.Equal(t, "user-1", doc.UserID)
	assert.Equal(t, int64(9), doc.ByteSize)
	assert.Equal(t, "users/user-1/documents/"+doc.ID+"/my_paper.pdf", storage.uploadedKey)
	assert.Contains(t, doc.StorageURL, storage.uploadedKey)
	assert.Equal(t, doc, db.created)
}

func TestDeleteRemovesObjectAndRow(t *testing.T) {
	db := &docFakeDB{}
	storage := &docFakeStorage{}
	svc := NewDocumentService(db, storage, "paperlens-docs")

	doc := &models.Document{
		ID:         "doc-1",
		StorageURL: "https://paperlens-docs.s3.us-east-2.amazonaws.com/users/u/documents/doc-1/f.pdf",
	}
	require.NoError(t, svc.Delete(context.Background(), doc))
	assert.Equal(t, "users/u/documents/doc-1/f.pdf", storage.deletedKey)
	assert.Equal(t, []string{"doc-1"}, db.deleted)
}

func TestDeleteToleratesObjectFailure(t *testing.T) {
	db := &docFakeDB{}
	storage := &docFakeStorage{deleteErr: errors.New("s3 unavailable")}
	svc := NewDocumentService(db, storage, "paperlens-docs")

	doc := &models.Document{
		ID:         "doc-1",
		StorageURL: "https://paperlens-docs.s3.us-east-2.amazonaws.com/users/u/documents/doc-1/f.pdf",
	}
	require.NoError(t, svc.Delete(context.Background(), doc), "row delete proceeds despite object failure")
	assert.Equal(t, []string{"doc-1"}, db.deleted)
}
