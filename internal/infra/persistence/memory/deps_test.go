package memory

import (
	"strings"
	"testing"

	"assetcore/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	forbidden := func(path string) bool {
		return strings.HasPrefix(path, "assetcore/") && path != "assetcore/pkg/domain"
	}
	testutil.AssertNoDirectImports(t, ".", forbidden, "the working set store depends only on the domain")
	testutil.AssertNoDirectImports(t, ".", testutil.DriverImportForbidden, "the working set store has no driver")
}
