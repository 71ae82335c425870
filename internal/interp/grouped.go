package interp

import (
	"fmt"
	"sort"
	"strings"
)

// AsGrouped is the interpretation of a branch that carries no data of its
// own but aggregates subbranches that do. Asking it to decode baskets is
// a usage-contract violation: read the subbranches and combine them with
// the Library's Group rendering instead.
type AsGrouped struct {
	BranchName  string
	Subbranches map[string]Interpretation
	Typename    string
}

// NewAsGrouped builds the grouping interpretation over the named
// subbranch interpretations.
func NewAsGrouped(branchName string, subbranches map[string]Interpretation) AsGrouped {
	return AsGrouped{BranchName: branchName, Subbranches: subbranches}
}

// SubbranchNames returns the subbranch names in stable (sorted) order.
func (a AsGrouped) SubbranchNames() []string {
	names := make([]string, 0, len(a.Subbranches))
	for name := range a.Subbranches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CacheKey implements Interpretation.
func (a AsGrouped) CacheKey() string {
	parts := make([]string, 0, len(a.Subbranches))
	for _, name := range a.SubbranchNames() {
		parts = append(parts, fmt.Sprintf("%s:%s", name, a.Subbranches[name].CacheKey()))
	}
	return fmt.Sprintf("AsGrouped(%s,[%s])", a.BranchName, strings.Join(parts, ","))
}

// ItemWidth implements Interpretation; a grouping branch stores no data.
func (a AsGrouped) ItemWidth() int { return 0 }

func (a AsGrouped) refuse(basketCtx BasketContext) error {
	return fmt.Errorf("%w: branch %q should not be read directly; read its subbranches %s instead (object %s in file %s)",
		ErrGroupedBranch, a.BranchName, strings.Join(a.SubbranchNames(), ", "), basketCtx.ObjectPath, basketCtx.FilePath)
}

// BasketArray implements Interpretation by refusing.
func (a AsGrouped) BasketArray(data []byte, byteOffsets []int32, basketCtx BasketContext) (Fragment, error) {
	return nil, a.refuse(basketCtx)
}

// FinalArray implements Interpretation by refusing.
func (a AsGrouped) FinalArray(fragments []Fragment, entryStart, entryStop int64, entryOffsets []int64, lib Library) (any, error) {
	return nil, fmt.Errorf("%w: branch %q should not be read directly; read its subbranches %s instead",
		ErrGroupedBranch, a.BranchName, strings.Join(a.SubbranchNames(), ", "))
}
