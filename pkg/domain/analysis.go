package domain

import "time"

// AnalysisJob is the work item handed to the image analysis collaborator.
// It carries references only; the collaborator fetches the image itself.
type AnalysisJob struct {
	AnalysisID  string    `json:"analysis_id"`
	AssetID     string    `json:"asset_id"`
	ImageKey    string    `json:"image_key"`
	ContentType string    `json:"content_type,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// AnalysisOutcome is the write-back payload from the collaborator. A
// non-empty Error marks the analysis failed.
type AnalysisOutcome struct {
	Suggestions AnalysisSuggestions `json:"suggestions"`
	Error       string              `json:"error,omitempty"`
}

// Terminal reports whether the analysis will not change again.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed || s == AnalysisSkipped
}

// PlanAnalysisProcessing moves a pending analysis to processing. Repeated
// calls while processing are accepted so redelivered jobs stay harmless.
func PlanAnalysisProcessing(a ImageAnalysis) (ImageAnalysis, error) {
	switch a.Status {
	case AnalysisPending, AnalysisProcessing:
		next := a.Clone()
		next.Status = AnalysisProcessing
		return next, nil
	}
	return ImageAnalysis{}, InputError{Field: "status", Reason: "analysis " + a.ID + " is already " + string(a.Status)}
}

// PlanAnalysisResult records the collaborator's outcome on a non-terminal analysis.
func PlanAnalysisResult(a ImageAnalysis, out AnalysisOutcome, now time.Time) (ImageAnalysis, error) {
	if a.Status.Terminal() {
		return ImageAnalysis{}, InputError{Field: "status", Reason: "analysis " + a.ID + " is already " + string(a.Status)}
	}
	if out.Suggestions.Condition != "" && !out.Suggestions.Condition.Valid() {
		return ImageAnalysis{}, InputError{Field: "condition", Reason: "unknown condition " + string(out.Suggestions.Condition)}
	}
	next := a.Clone()
	processed := now
	next.ProcessedAt = &processed
	if out.Error != "" {
		next.Status = AnalysisFailed
		next.ErrorMessage = out.Error
		next.Suggestions = nil
		return next, nil
	}
	s := out.Suggestions
	next.Status = AnalysisCompleted
	next.ErrorMessage = ""
	next.Suggestions = &s
	return next.Clone(), nil
}
