package core

import (
	"context"
	"time"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// HandoverInput moves custody directly from one borrower to another.
type HandoverInput struct {
	AssetID string
	From    string
	To      string
	ActorID string
	Notes   string
	// Timestamp is the action time. Zero means now.
	Timestamp time.Time
}

// Record applies one ledger action to an asset and writes its entry in the
// same transaction as the asset update.
func (s *Service) Record(ctx context.Context, assetID string, cmd domain.LedgerCommand) (domain.Asset, domain.LedgerEntry, error) {
	var (
		asset domain.Asset
		entry domain.LedgerEntry
	)
	fields := logrus.Fields{"asset_id": assetID, "action": cmd.Action}
	_, err := s.run(ctx, "record_"+string(cmd.Action), fields, func(tx domain.Transaction) error {
		var err error
		asset, entry, err = recordMovement(tx, assetID, cmd)
		return err
	})
	if err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	return asset, entry, nil
}

func recordMovement(tx domain.Transaction, assetID string, cmd domain.LedgerCommand) (domain.Asset, domain.LedgerEntry, error) {
	current, err := findAsset(tx, assetID)
	if err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	if err := requireLocation(tx, cmd.ToLocationID); err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	next, planned, err := domain.PlanMovement(current, cmd, tx.Now())
	if err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	if cmd.Action != domain.ActionAudit {
		out, err := tx.ReplaceAssets([]domain.Asset{next})
		if err != nil {
			return domain.Asset{}, domain.LedgerEntry{}, err
		}
		next = out[0]
	}
	written, err := tx.AppendLedgerEntries(planned)
	if err != nil {
		return domain.Asset{}, domain.LedgerEntry{}, err
	}
	return next, written[0], nil
}

// Handover writes the checkin and checkout pair that moves custody from
// in.From to in.To with a single custody update.
func (s *Service) Handover(ctx context.Context, in HandoverInput) (domain.Asset, []domain.LedgerEntry, error) {
	var (
		asset   domain.Asset
		entries []domain.LedgerEntry
	)
	fields := logrus.Fields{"asset_id": in.AssetID, "from": in.From, "to": in.To}
	_, err := s.run(ctx, "handover", fields, func(tx domain.Transaction) error {
		current, err := findAsset(tx, in.AssetID)
		if err != nil {
			return err
		}
		next, pair, err := domain.PlanHandover(current, in.From, in.To, in.ActorID, in.Notes, in.Timestamp, tx.Now())
		if err != nil {
			return err
		}
		out, err := tx.ReplaceAssets([]domain.Asset{next})
		if err != nil {
			return err
		}
		asset = out[0]
		entries, err = tx.AppendLedgerEntries(pair[0], pair[1])
		return err
	})
	if err != nil {
		return domain.Asset{}, nil, err
	}
	return asset, entries, nil
}

// LedgerHistory returns the entries of one asset ordered by action time,
// including those of assets merged into it.
func (s *Service) LedgerHistory(ctx context.Context, assetID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := s.view(ctx, func(v domain.TransactionView) error {
		if _, err := findAsset(v, assetID); err != nil {
			return err
		}
		family := mergedFamily(v, assetID)
		if len(family) == 1 {
			out = v.LedgerForAsset(assetID)
			return nil
		}
		out = []domain.LedgerEntry{}
		for _, e := range v.ListLedgerEntries() {
			if _, ok := family[e.AssetID]; ok {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// ExportLedger returns the full ledger ordered by action time.
func (s *Service) ExportLedger(ctx context.Context) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListLedgerEntries()
		return nil
	})
	return out, err
}
