package blob

import (
	memorystore "assetcore/internal/infra/blob/memory"
)

// NewMemory returns an in-process Store, used by tests and the memory driver.
func NewMemory() Store { return memorystore.New() }
