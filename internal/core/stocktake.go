package core

import (
	"context"
	"errors"
	"strings"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// ScanKind tells the caller how a scanned code was routed.
type ScanKind string

// Scan routing outcomes.
const (
	ScanConfirmed    ScanKind = "confirmed"
	ScanUnexpected   ScanKind = "unexpected"
	ScanNeedsCapture ScanKind = "needs_capture"
)

// NeedsCapture signals an unknown code scanned during a stocktake. Creating
// the asset is left to the capture collaborator.
type NeedsCapture struct {
	SessionID  string `json:"session_id"`
	LocationID string `json:"location_id"`
	Code       string `json:"code"`
}

// ScanResult is the routed outcome of Scan. Exactly one of Entry (or a nil
// Entry for a repeat confirmation), Proposal or Capture is relevant,
// according to Kind.
type ScanResult struct {
	Kind     ScanKind                 `json:"kind"`
	Asset    *domain.Asset            `json:"asset,omitempty"`
	Entry    *domain.LedgerEntry      `json:"entry,omitempty"`
	Proposal *domain.TransferProposal `json:"proposal,omitempty"`
	Capture  *NeedsCapture            `json:"capture,omitempty"`
}

// CompleteOptions tunes Complete.
type CompleteOptions struct {
	Notes string
	// MarkRemainingMissing marks every still unconfirmed member of the
	// expected set missing before the summary is computed.
	MarkRemainingMissing bool
}

// StartStocktake opens a session at a location and captures its expected
// set. A second in-progress session for the location fails with
// ErrSessionAlreadyOpen.
func (s *Service) StartStocktake(ctx context.Context, locationID, initiatorID, notes string) (domain.StocktakeSession, error) {
	var created domain.StocktakeSession
	fields := logrus.Fields{"location_id": locationID, "initiator": initiatorID}
	_, err := s.run(ctx, "start_stocktake", fields, func(tx domain.Transaction) error {
		if strings.TrimSpace(initiatorID) == "" {
			return domain.InputError{Field: "initiator", Reason: "required"}
		}
		if locationID == "" {
			return domain.InputError{Field: "location_id", Reason: "required"}
		}
		if err := requireLocation(tx, locationID); err != nil {
			return err
		}
		expected := domain.ExpectedSet(tx.ListAssets(), locationID)
		ids := make([]string, 0, len(expected))
		for _, a := range expected {
			ids = append(ids, a.ID)
		}
		var err error
		created, err = tx.CreateSession(domain.StocktakeSession{
			LocationID:        locationID,
			InitiatorID:       initiatorID,
			Status:            domain.SessionInProgress,
			Notes:             notes,
			ExpectedAssetIDs:  ids,
			ConfirmedAssetIDs: []string{},
			MissingAssetIDs:   []string{},
		})
		return err
	})
	return created, err
}

// GetSession returns one stocktake session.
func (s *Service) GetSession(ctx context.Context, id string) (domain.StocktakeSession, error) {
	var out domain.StocktakeSession
	err := s.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = findSession(v, id)
		return err
	})
	return out, err
}

// ListSessions returns sessions newest first, optionally limited to a location.
func (s *Service) ListSessions(ctx context.Context, locationID string) ([]domain.StocktakeSession, error) {
	var out []domain.StocktakeSession
	err := s.view(ctx, func(v domain.TransactionView) error {
		for _, sess := range v.ListSessions() {
			if locationID == "" || sess.LocationID == locationID {
				out = append(out, sess)
			}
		}
		return nil
	})
	return out, err
}

// ExpectedAssets returns the assets the session should find: at its
// location, active or missing, and not checked out.
func (s *Service) ExpectedAssets(ctx context.Context, sessionID string) ([]domain.Asset, error) {
	var out []domain.Asset
	err := s.view(ctx, func(v domain.TransactionView) error {
		sess, err := findSession(v, sessionID)
		if err != nil {
			return err
		}
		out = domain.ExpectedSet(v.ListAssets(), sess.LocationID)
		return nil
	})
	return out, err
}

// Confirm records an asset as present. A repeat confirmation returns a nil
// entry and writes nothing.
func (s *Service) Confirm(ctx context.Context, sessionID, assetID, actorID string) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	fields := logrus.Fields{"session_id": sessionID, "asset_id": assetID}
	_, err := s.run(ctx, "confirm", fields, func(tx domain.Transaction) error {
		var err error
		entry, err = confirmAsset(tx, sessionID, assetID, actorID)
		return err
	})
	return entry, err
}

func confirmAsset(tx domain.Transaction, sessionID, assetID, actorID string) (*domain.LedgerEntry, error) {
	sess, err := findSession(tx, sessionID)
	if err != nil {
		return nil, err
	}
	asset, err := findAsset(tx, assetID)
	if err != nil {
		return nil, err
	}
	next, planned, err := domain.PlanConfirm(sess, asset, actorID, tx.Now())
	if err != nil || planned == nil {
		return nil, err
	}
	if _, err := tx.UpdateSession(sess.ID, func(cur *domain.StocktakeSession) error {
		cur.ConfirmedAssetIDs = next.ConfirmedAssetIDs
		return nil
	}); err != nil {
		return nil, err
	}
	written, err := tx.AppendLedgerEntries(*planned)
	if err != nil {
		return nil, err
	}
	return &written[0], nil
}

// ReportUnexpected builds a transfer proposal for an asset found at the
// session's location while recorded elsewhere. Nothing is written.
func (s *Service) ReportUnexpected(ctx context.Context, sessionID, assetID string) (domain.TransferProposal, error) {
	var proposal domain.TransferProposal
	err := s.view(ctx, func(v domain.TransactionView) error {
		sess, err := findSession(v, sessionID)
		if err != nil {
			return err
		}
		asset, err := findAsset(v, assetID)
		if err != nil {
			return err
		}
		proposal, err = domain.ProposeTransfer(sess, asset)
		return err
	})
	return proposal, err
}

// AcceptTransfer applies a proposal as a ledger transfer tagged with the
// session. A stale proposal, where the asset moved since, is rejected.
func (s *Service) AcceptTransfer(ctx context.Context, proposal domain.TransferProposal, actorID string) (domain.Asset, domain.LedgerEntry, error) {
	var (
		asset domain.Asset
		entry domain.LedgerEntry
	)
	fields := logrus.Fields{"session_id": proposal.SessionID, "asset_id": proposal.AssetID}
	_, err := s.run(ctx, "accept_transfer", fields, func(tx domain.Transaction) error {
		sess, err := findSession(tx, proposal.SessionID)
		if err != nil {
			return err
		}
		if !sess.Open() {
			return domain.SessionStateError{SessionID: sess.ID, Status: sess.Status, Operation: "accept transfer"}
		}
		if proposal.ToLocationID != sess.LocationID {
			return domain.InputError{Field: "to_location_id", Reason: "must be the session location"}
		}
		asset, entry, err = recordMovement(tx, proposal.AssetID, domain.LedgerCommand{
			Action:         domain.ActionTransfer,
			ActorID:        actorID,
			FromLocationID: domain.StringValue(proposal.FromLocationID),
			ToLocationID:   sess.LocationID,
			SessionID:      sess.ID,
			Notes:          domain.TransferNote(sess.ID),
		})
		return err
	})
	if err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	return asset, entry, nil
}

// ReportUnknownCode returns the needs-capture signal for a code the resolver
// could not match.
func (s *Service) ReportUnknownCode(ctx context.Context, sessionID, code string) (NeedsCapture, error) {
	var out NeedsCapture
	err := s.view(ctx, func(v domain.TransactionView) error {
		sess, err := findSession(v, sessionID)
		if err != nil {
			return err
		}
		if !sess.Open() {
			return domain.SessionStateError{SessionID: sess.ID, Status: sess.Status, Operation: "report unknown code"}
		}
		out = NeedsCapture{SessionID: sess.ID, LocationID: sess.LocationID, Code: domain.NormalizeCode(code)}
		return nil
	})
	return out, err
}

// Scan resolves a code and routes it: assets recorded at the session's
// location are confirmed, assets recorded elsewhere produce a transfer
// proposal and unknown codes produce a needs-capture signal.
func (s *Service) Scan(ctx context.Context, sessionID, code, actorID string) (ScanResult, error) {
	asset, err := s.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			capture, err := s.ReportUnknownCode(ctx, sessionID, code)
			if err != nil {
				return ScanResult{}, err
			}
			return ScanResult{Kind: ScanNeedsCapture, Capture: &capture}, nil
		}
		return ScanResult{}, err
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return ScanResult{}, err
	}
	if !asset.AtLocation(sess.LocationID) {
		proposal, err := s.ReportUnexpected(ctx, sessionID, asset.ID)
		if err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Kind: ScanUnexpected, Asset: &asset, Proposal: &proposal}, nil
	}
	entry, err := s.Confirm(ctx, sessionID, asset.ID, actorID)
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Kind: ScanConfirmed, Asset: &asset, Entry: entry}, nil
}

// MarkMissing moves an unconfirmed expected asset to missing through the
// lifecycle table and records it on the session.
func (s *Service) MarkMissing(ctx context.Context, sessionID, assetID string) (domain.Asset, error) {
	var updated domain.Asset
	fields := logrus.Fields{"session_id": sessionID, "asset_id": assetID}
	_, err := s.run(ctx, "mark_missing", fields, func(tx domain.Transaction) error {
		var err error
		updated, err = markMissing(tx, sessionID, assetID)
		return err
	})
	return updated, err
}

func markMissing(tx domain.Transaction, sessionID, assetID string) (domain.Asset, error) {
	sess, err := findSession(tx, sessionID)
	if err != nil {
		return domain.Asset{}, err
	}
	asset, err := findAsset(tx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	nextSess, next, err := domain.PlanMarkMissing(sess, asset)
	if err != nil {
		return domain.Asset{}, err
	}
	if next.Status != asset.Status {
		out, err := tx.ReplaceAssets([]domain.Asset{next})
		if err != nil {
			return domain.Asset{}, err
		}
		next = out[0]
	}
	if _, err := tx.UpdateSession(sess.ID, func(cur *domain.StocktakeSession) error {
		cur.MissingAssetIDs = nextSess.MissingAssetIDs
		return nil
	}); err != nil {
		return domain.Asset{}, err
	}
	return next, nil
}

// Complete closes the session and stores its summary, computed from the
// session's ledger entries and the expected set captured at start.
func (s *Service) Complete(ctx context.Context, sessionID string, opts CompleteOptions) (domain.StocktakeSession, error) {
	var closed domain.StocktakeSession
	fields := logrus.Fields{"session_id": sessionID, "mark_missing": opts.MarkRemainingMissing}
	_, err := s.run(ctx, "complete_stocktake", fields, func(tx domain.Transaction) error {
		sess, err := findSession(tx, sessionID)
		if err != nil {
			return err
		}
		if opts.MarkRemainingMissing && sess.Open() {
			for _, id := range sess.ExpectedAssetIDs {
				a, ok := tx.FindAsset(id)
				if !ok || sess.IsConfirmed(id) || !domain.InExpectedSet(a, sess.LocationID) {
					continue
				}
				if _, err := markMissing(tx, sess.ID, id); err != nil {
					return err
				}
			}
			if sess, err = findSession(tx, sessionID); err != nil {
				return err
			}
		}
		next, err := domain.PlanClose(sess, domain.SessionCompleted, opts.Notes, tx.Now())
		if err != nil {
			return err
		}
		summary := domain.Summarize(next, tx.LedgerForSession(sess.ID))
		next.Summary = &summary
		closed, err = tx.UpdateSession(sess.ID, func(cur *domain.StocktakeSession) error {
			*cur = next
			return nil
		})
		return err
	})
	return closed, err
}

// Abandon closes the session without touching any asset.
func (s *Service) Abandon(ctx context.Context, sessionID, notes string) (domain.StocktakeSession, error) {
	var closed domain.StocktakeSession
	_, err := s.run(ctx, "abandon_stocktake", logrus.Fields{"session_id": sessionID}, func(tx domain.Transaction) error {
		sess, err := findSession(tx, sessionID)
		if err != nil {
			return err
		}
		next, err := domain.PlanClose(sess, domain.SessionAbandoned, notes, tx.Now())
		if err != nil {
			return err
		}
		closed, err = tx.UpdateSession(sess.ID, func(cur *domain.StocktakeSession) error {
			*cur = next
			return nil
		})
		return err
	})
	return closed, err
}
