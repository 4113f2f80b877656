package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"askdocs/internal/ingest"
	"askdocs/internal/model"
	"askdocs/internal/queue"
	"askdocs/internal/repository"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the persistence surface the document service needs.
type DocumentStore interface {
	Create(doc *model.Document) error
	GetByIDAndUserID(id, userID uint) (*model.Document, error)
	ListByUserID(userID uint) ([]model.Document, error)
	UpdateFields(id uint, fields map[string]any) error
	DeleteByIDAndUserID(id, userID uint) error
}

// SessionLinkCleaner removes session links when a document goes away.
type SessionLinkCleaner interface {
	DeleteByDocumentID(documentID uint) error
}

// JobQueue enqueues background work; enqueueing returns a job id without
// waiting for the job to run.
type JobQueue interface {
	PublishIngest(ctx context.Context, job queue.IngestJob) (string, error)
	PublishVectorDelete(ctx context.Context, job queue.VectorDeleteJob) (string, error)
}

// DocumentService owns the upload path (save file, create record, enqueue
// ingestion) and document deletion (remove record, enqueue vector cleanup).
type DocumentService struct {
	docs         DocumentStore
	links        SessionLinkCleaner
	jobs         JobQueue
	documentsDir string
	log          *logrus.Entry
}

func NewDocumentService(docs DocumentStore, links SessionLinkCleaner, jobs JobQueue, documentsDir string) *DocumentService {
	return &DocumentService{
		docs:         docs,
		links:        links,
		jobs:         jobs,
		documentsDir: documentsDir,
		log:          logrus.WithField("component", "documents"),
	}
}

type UploadInput struct {
	UserID   uint
	Filename string
	Content  io.Reader
}

type UploadResult struct {
	Document *model.Document `json:"document"`
	JobID    string          `json:"job_id"`
}

// Upload creates the document record first so a duplicate filename is
// rejected before anything touches disk, then saves the file and enqueues
// the ingestion job. Any failure after record creation rolls the record
// (and saved file) back; the ingestion itself runs on a background worker.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	if input.UserID == 0 || filename == "" || filename == "." || filename == ".." || input.Content == nil {
		return nil, ErrInvalidInput
	}

	doc := &model.Document{
		UserID:           input.UserID,
		Filename:         filename,
		FilePath:         filepath.Join(s.documentsDir, fmt.Sprintf("user_%d", input.UserID), filename),
		VectorCollection: ingest.CollectionName(input.UserID),
		Status:           model.StatusProcessing,
	}
	if err := s.docs.Create(doc); err != nil {
		// repository.ErrDuplicateFilename passes through untouched.
		return nil, err
	}

	if err := s.saveFile(doc.FilePath, input.Content); err != nil {
		s.rollback(doc, "")
		return nil, fmt.Errorf("save uploaded file failed: %w", err)
	}

	jobID, err := s.jobs.PublishIngest(ctx, queue.IngestJob{
		DocumentID: doc.ID,
		UserID:     input.UserID,
		FilePath:   doc.FilePath,
	})
	if err != nil {
		s.rollback(doc, doc.FilePath)
		return nil, fmt.Errorf("enqueue ingestion failed: %w", err)
	}

	if err := s.docs.UpdateFields(doc.ID, map[string]any{"job_id": jobID}); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Warn("record job id failed")
	}
	doc.JobID = jobID

	s.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"job_id":      jobID,
		"filename":    filename,
	}).Info("document queued for ingestion")

	return &UploadResult{Document: doc, JobID: jobID}, nil
}

func (s *DocumentService) Get(userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) List(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByUserID(userID)
}

// Delete removes the record and the stored file immediately and enqueues
// exactly one vector-deletion job. The record does not wait for the job.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID uint) error {
	doc, err := s.Get(userID, documentID)
	if err != nil {
		return err
	}

	if _, err := s.jobs.PublishVectorDelete(ctx, queue.VectorDeleteJob{
		Collection: doc.VectorCollection,
		Source:     doc.Filename,
	}); err != nil {
		return fmt.Errorf("enqueue vector deletion failed: %w", err)
	}

	if err := s.links.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}
	if err := s.docs.DeleteByIDAndUserID(doc.ID, userID); err != nil {
		return err
	}

	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("file", doc.FilePath).Warn("remove stored file failed")
	}
	return nil
}

func (s *DocumentService) saveFile(path string, content io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return err
	}
	return nil
}

func (s *DocumentService) rollback(doc *model.Document, savedPath string) {
	if savedPath != "" {
		if err := os.Remove(savedPath); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("file", savedPath).Warn("rollback file removal failed")
		}
	}
	if err := s.docs.DeleteByIDAndUserID(doc.ID, doc.UserID); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Error("rollback document record failed")
	}
}

var ErrDuplicateFilename = repository.ErrDuplicateFilename
