package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to store state. Inside a
// transaction it reflects the transaction's own writes.
type TransactionView interface {
	ListAssets() []Asset
	FindAsset(id string) (Asset, bool)
	FindAssetByCode(code string) (Asset, bool)
	ListLocations() []Location
	FindLocation(id string) (Location, bool)
	ListLedgerEntries() []LedgerEntry
	LedgerForAsset(assetID string) []LedgerEntry
	LedgerForSession(sessionID string) []LedgerEntry
	ListSessions() []StocktakeSession
	FindSession(id string) (StocktakeSession, bool)
	OpenSessionForLocation(locationID string) (StocktakeSession, bool)
	FindOpenAssignment(tagValue string) (TagAssignment, bool)
	TagHistory(tagValue string) []TagAssignment
	OpenAssignmentsForAsset(assetID string) []TagAssignment
	FindImageAnalysis(id string) (ImageAnalysis, bool)
	ImageAnalysesForAsset(assetID string) []ImageAnalysis
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope. Uniqueness constraints (permanent code,
// open tag assignment, in-progress session per location) are checked on
// write and reported with the matching domain error.
type Transaction interface {
	TransactionView
	// Snapshot returns a read-only view over the transactional state.
	Snapshot() TransactionView
	// Now is the single timestamp shared by every write in the transaction.
	Now() time.Time

	CreateAsset(Asset) (Asset, error)
	UpdateAsset(id string, mutator func(*Asset) error) (Asset, error)
	// ReplaceAssets writes a batch of already planned asset states.
	ReplaceAssets(assets []Asset) ([]Asset, error)

	CreateLocation(Location) (Location, error)
	UpdateLocation(id string, mutator func(*Location) error) (Location, error)

	// AppendLedgerEntries inserts entries as one batch.
	AppendLedgerEntries(entries ...LedgerEntry) ([]LedgerEntry, error)
	// UpdateLedgerEntry and DeleteLedgerEntry always fail with ErrLedgerImmutable.
	UpdateLedgerEntry(id string, mutator func(*LedgerEntry) error) error
	DeleteLedgerEntry(id string) error

	CreateSession(StocktakeSession) (StocktakeSession, error)
	UpdateSession(id string, mutator func(*StocktakeSession) error) (StocktakeSession, error)

	OpenTagAssignment(TagAssignment) (TagAssignment, error)
	CloseTagAssignment(id, removedBy string) (TagAssignment, error)

	CreateImageAnalysis(ImageAnalysis) (ImageAnalysis, error)
	UpdateImageAnalysis(id string, mutator func(*ImageAnalysis) error) (ImageAnalysis, error)
}

// PersistentStore is the abstraction over durable backends used by the service.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	NowFunc() func() time.Time
}
