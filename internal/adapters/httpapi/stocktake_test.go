package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

func TestStocktakeOverHTTP(t *testing.T) {
	f := newAPI(t, nil)
	dock := f.location(t, "Dock")
	shop := f.location(t, "Workshop")
	drill := f.activeAsset(t, "Drill", dock.ID)
	saw := f.activeAsset(t, "Saw", dock.ID)
	stray := f.activeAsset(t, "Ladder", shop.ID)

	rec := f.do(t, http.MethodPost, "/stocktakes", map[string]string{"location_id": dock.ID, "initiator_id": "sam"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeAs[domain.StocktakeSession](t, rec)
	base := "/stocktakes/" + sess.ID

	rec = f.do(t, http.MethodGet, base+"/expected", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]domain.Asset](t, rec), 2)

	rec = f.do(t, http.MethodPost, base+"/scan", map[string]string{"code": drill.Code, "actor_id": "sam"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan := decodeAs[core.ScanResult](t, rec)
	assert.Equal(t, core.ScanConfirmed, scan.Kind)
	require.NotNil(t, scan.Entry)
	assert.Equal(t, domain.ActionAudit, scan.Entry.Action)

	rec = f.do(t, http.MethodPost, base+"/confirm", map[string]string{"asset_id": drill.ID, "actor_id": "sam"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decodeAs[confirmResponse](t, rec).Entry, "repeat confirmation writes nothing")

	rec = f.do(t, http.MethodPost, base+"/scan", map[string]string{"code": stray.Code, "actor_id": "sam"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan = decodeAs[core.ScanResult](t, rec)
	require.Equal(t, core.ScanUnexpected, scan.Kind)
	require.NotNil(t, scan.Proposal)

	rec = f.do(t, http.MethodPost, "/transfers/accept", map[string]any{"proposal": scan.Proposal, "actor_id": "sam"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	accepted := decodeAs[ledgerResponse](t, rec)
	assert.True(t, accepted.Asset.AtLocation(dock.ID))

	rec = f.do(t, http.MethodPost, base+"/scan", map[string]string{"code": "qr-new-1", "actor_id": "sam"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan = decodeAs[core.ScanResult](t, rec)
	require.Equal(t, core.ScanNeedsCapture, scan.Kind)
	assert.Equal(t, "QR-NEW-1", scan.Capture.Code)

	rec = f.do(t, http.MethodPost, base+"/complete", map[string]any{"mark_remaining_missing": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeAs[domain.StocktakeSession](t, rec)
	assert.Equal(t, domain.SessionCompleted, done.Status)
	require.NotNil(t, done.Summary)
	assert.Equal(t, 2, done.Summary.ExpectedCount)
	assert.Equal(t, 1, done.Summary.ConfirmedCount)
	assert.Equal(t, []string{saw.ID}, done.Summary.MarkedMissing)
	assert.Equal(t, []string{stray.ID}, done.Summary.TransferredIn)

	rec = f.do(t, http.MethodGet, "/assets/"+saw.ID, nil, nil)
	assert.Equal(t, domain.AssetMissing, decodeAs[domain.Asset](t, rec).Status)

	rec = f.do(t, http.MethodPost, base+"/confirm", map[string]string{"asset_id": drill.ID, "actor_id": "sam"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "session_closed", decodeAs[errorBody](t, rec).Error.Kind)

	rec = f.do(t, http.MethodGet, "/stocktakes?location_id="+dock.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]domain.StocktakeSession](t, rec), 1)
}

func TestAbandonStocktakeOverHTTP(t *testing.T) {
	f := newAPI(t, nil)
	dock := f.location(t, "Dock")
	a := f.activeAsset(t, "Drill", dock.ID)

	rec := f.do(t, http.MethodPost, "/stocktakes", map[string]string{"location_id": dock.ID, "initiator_id": "sam"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeAs[domain.StocktakeSession](t, rec)

	rec = f.do(t, http.MethodPost, "/stocktakes/"+sess.ID+"/missing", map[string]string{"asset_id": "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/stocktakes/"+sess.ID+"/abandon", map[string]string{"notes": "power cut"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.SessionAbandoned, decodeAs[domain.StocktakeSession](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/assets/"+a.ID, nil, nil)
	assert.Equal(t, domain.AssetActive, decodeAs[domain.Asset](t, rec).Status)
}
