package blob

import (
	"assetcore/internal/infra/blob/fs"
)

// NewFilesystem returns a Store rooted at dir, creating it when needed.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
