package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"assetcore/internal/blob"
	"assetcore/pkg/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNoBlobStore is returned by AttachImage when no blob store is configured.
var ErrNoBlobStore = fmt.Errorf("image storage not configured: %w", blob.ErrUnsupported)

// AttachImage stores an image for an asset and enqueues its analysis. The
// image write happens before the analysis record so a failed upload leaves
// no dangling record.
func (s *Service) AttachImage(ctx context.Context, assetID string, r io.Reader, contentType string) (domain.ImageAnalysis, error) {
	if s.blobs == nil {
		return domain.ImageAnalysis{}, ErrNoBlobStore
	}
	if _, err := s.GetAsset(ctx, assetID); err != nil {
		return domain.ImageAnalysis{}, err
	}
	key := imageKey(assetID, contentType, s.clock.Now().Format("20060102"))
	info, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"asset_id": assetID},
	})
	if err != nil {
		s.logger.WithError(err).WithField("asset_id", assetID).Error("image upload failed")
		return domain.ImageAnalysis{}, fmt.Errorf("store image: %w", err)
	}
	return s.enqueue(ctx, assetID, info.Key, contentType)
}

func imageKey(assetID, contentType, day string) string {
	ext := ".bin"
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/heic":
		ext = ".heic"
	}
	return path.Join("assets", assetID, "images", day+"-"+uuid.NewString()+ext)
}

// EnqueueAnalysis records a pending analysis for an image already in the
// blob store and publishes the job. A publish failure is returned but the
// pending record is kept so the job can be re-sent.
func (s *Service) EnqueueAnalysis(ctx context.Context, assetID, imageKey string) (domain.ImageAnalysis, error) {
	return s.enqueue(ctx, assetID, imageKey, "")
}

func (s *Service) enqueue(ctx context.Context, assetID, key, contentType string) (domain.ImageAnalysis, error) {
	var created domain.ImageAnalysis
	fields := logrus.Fields{"asset_id": assetID, "image_key": key}
	_, err := s.run(ctx, "enqueue_analysis", fields, func(tx domain.Transaction) error {
		if strings.TrimSpace(key) == "" {
			return domain.InputError{Field: "image_key", Reason: "required"}
		}
		if _, err := findAsset(tx, assetID); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateImageAnalysis(domain.ImageAnalysis{AssetID: assetID, ImageKey: key, Status: domain.AnalysisPending})
		return err
	})
	if err != nil {
		return domain.ImageAnalysis{}, err
	}
	if err := s.publish(ctx, created, contentType); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Service) publish(ctx context.Context, a domain.ImageAnalysis, contentType string) error {
	if s.queue == nil {
		return nil
	}
	job := domain.AnalysisJob{
		AnalysisID:  a.ID,
		AssetID:     a.AssetID,
		ImageKey:    a.ImageKey,
		ContentType: contentType,
		EnqueuedAt:  a.CreatedAt,
	}
	if err := s.queue.Publish(ctx, job); err != nil {
		return fmt.Errorf("publish analysis %s: %w", a.ID, err)
	}
	return nil
}

// MarkAnalysisProcessing is called by the collaborator when it picks a job up.
func (s *Service) MarkAnalysisProcessing(ctx context.Context, analysisID string) (domain.ImageAnalysis, error) {
	var updated domain.ImageAnalysis
	_, err := s.run(ctx, "analysis_processing", logrus.Fields{"analysis_id": analysisID}, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateImageAnalysis(analysisID, func(a *domain.ImageAnalysis) error {
			next, err := domain.PlanAnalysisProcessing(*a)
			if err != nil {
				return err
			}
			*a = next
			return nil
		})
		return err
	})
	return updated, err
}

// RecordAnalysisResult writes back the collaborator's suggestions or failure.
// Suggestions are stored for a person to review; no asset field changes.
func (s *Service) RecordAnalysisResult(ctx context.Context, analysisID string, out domain.AnalysisOutcome) (domain.ImageAnalysis, error) {
	var updated domain.ImageAnalysis
	_, err := s.run(ctx, "record_analysis", logrus.Fields{"analysis_id": analysisID}, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateImageAnalysis(analysisID, func(a *domain.ImageAnalysis) error {
			next, err := domain.PlanAnalysisResult(*a, out, tx.Now())
			if err != nil {
				return err
			}
			*a = next
			return nil
		})
		return err
	})
	return updated, err
}

// AnalysisStatus returns the stored analysis record.
func (s *Service) AnalysisStatus(ctx context.Context, analysisID string) (domain.ImageAnalysis, error) {
	var out domain.ImageAnalysis
	err := s.view(ctx, func(v domain.TransactionView) error {
		a, ok := v.FindImageAnalysis(analysisID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityImageAnalysis, ID: analysisID}
		}
		out = a
		return nil
	})
	return out, err
}

// AssetAnalyses returns every analysis recorded for an asset, oldest first.
func (s *Service) AssetAnalyses(ctx context.Context, assetID string) ([]domain.ImageAnalysis, error) {
	var out []domain.ImageAnalysis
	err := s.view(ctx, func(v domain.TransactionView) error {
		if _, err := findAsset(v, assetID); err != nil {
			return err
		}
		out = v.ImageAnalysesForAsset(assetID)
		return nil
	})
	return out, err
}
