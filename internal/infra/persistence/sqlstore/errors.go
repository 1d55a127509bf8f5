package sqlstore

import (
	"fmt"
	"strings"

	"assetcore/pkg/domain"
)

// Translate maps driver failures on the relational invariants onto the
// domain error kinds, keeping the driver error text for diagnostics.
func (d Dialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), ImmutableLedgerMessage) {
		return fmt.Errorf("%w: %v", domain.ImmutableError{Entity: domain.EntityLedgerEntry, Operation: "write"}, err)
	}
	if d.Constraint != nil {
		if name, ok := d.Constraint(err); ok {
			var kind error
			switch name {
			case IndexAssetCode:
				kind = domain.DuplicateCodeError{}
			case IndexOpenSession:
				kind = domain.SessionOpenError{}
			case IndexOpenTag:
				kind = domain.DuplicateAssignmentError{}
			case IndexSessionAudit:
				kind = domain.LedgerActionError{Action: domain.ActionAudit, Reason: "already confirmed in stocktake"}
			}
			if kind != nil {
				return fmt.Errorf("%w: %v", kind, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", d.Name, err)
}
