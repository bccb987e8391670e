// Package deprecation checks that deleted typings packages listed in the
// not-needed manifest are consistent with the repository and legitimately
// replaced on the registry.
package deprecation

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/typesgate/internal/changes"
	"github.com/schaermu/typesgate/internal/git"
	"github.com/schaermu/typesgate/internal/registry"
	"github.com/schaermu/typesgate/internal/typings"
)

// Catalog is the view of the repository the validator needs
type Catalog interface {
	HasTyping(id typings.PackageID) bool
	NotNeeded(name string) (typings.NotNeededPackage, bool)
}

// Validator runs the grouping, consistency and registry phases
type Validator struct {
	catalog     Catalog
	resolver    typings.FileResolver
	registry    registry.Client
	concurrency int
	logger      *slog.Logger
}

// NewValidator creates a validator. concurrency bounds the number of records
// checked against the registry at once.
func NewValidator(catalog Catalog, resolver typings.FileResolver, client registry.Client, concurrency int, logger *slog.Logger) *Validator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		catalog:     catalog,
		resolver:    resolver,
		registry:    client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Validate runs all three phases against entries and fails on the first error
func (v *Validator) Validate(ctx context.Context, entries []git.Change) error {
	deleted, err := v.GroupStrict(entries)
	if err != nil {
		return err
	}

	records, err := v.CheckConsistency(deleted)
	if err != nil {
		return err
	}

	v.logger.Info("validating not-needed packages", "deleted", len(deleted), "records", len(records))
	return v.ValidateRecords(ctx, records)
}

// GroupStrict resolves every deleted file to its package. A deleted file
// outside any package directory is an error.
func (v *Validator) GroupStrict(entries []git.Change) ([]typings.PackageID, error) {
	g := changes.NewGrouping()
	for _, entry := range entries {
		if entry.Status != git.Deleted {
			continue
		}
		id, ok := v.resolver.Resolve(entry.File)
		if !ok {
			return nil, fmt.Errorf("%w: %s; only files of removed packages may be deleted", ErrUnmappedDeletedFile, entry.File)
		}
		g.Add(id)
	}
	return g.IDs(), nil
}

// CheckConsistency returns the not-needed records of deleted packages that
// are fully removed. A package with surviving typings that is also listed as
// not needed is an error.
func (v *Validator) CheckConsistency(deleted []typings.PackageID) ([]typings.NotNeededPackage, error) {
	var records []typings.NotNeededPackage
	seen := make(map[string]bool)

	for _, id := range deleted {
		if seen[id.Name] {
			continue
		}
		seen[id.Name] = true

		notNeeded, listed := v.catalog.NotNeeded(id.Name)
		surviving := v.catalog.HasTyping(typings.PackageID{Name: id.Name, Version: typings.Wildcard})

		switch {
		case surviving && listed:
			return nil, fmt.Errorf("%w: %s is listed in the not-needed manifest but still has typings; remove all of its files first",
				ErrConflictingDeprecationState, id.Name)
		case surviving:
			v.logger.Debug("partial deletion, typings remain", "package", id.Name)
		case listed:
			records = append(records, notNeeded)
		default:
			v.logger.Debug("package removed without replacement", "package", id.Name)
		}
	}

	return records, nil
}

// ValidateRecords checks every record against the registry. Records are
// independent and checked concurrently; the reported error is the one of the
// first failing record in manifest order, as a sequential run would report.
func (v *Validator) ValidateRecords(ctx context.Context, records []typings.NotNeededPackage) error {
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			errs[i] = v.ValidateRecord(ctx, rec)
			return errs[i]
		})
	}
	if g.Wait() == nil {
		return nil
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateRecord checks that rec names a published replacement whose version
// is newer than the typings it replaces
func (v *Validator) ValidateRecord(ctx context.Context, rec typings.NotNeededPackage) error {
	if _, err := v.registry.Manifest(ctx, rec.LibraryName, rec.Version); err != nil {
		switch registry.KindOf(err) {
		case registry.KindNotFound:
			return fmt.Errorf("%w: %s (replacing %s) does not exist on the registry; not-needed packages must point at a real replacement: %w",
				ErrReplacementNotFound, rec.LibraryName, rec.FullRegistryName, err)
		case registry.KindNotTarget:
			return fmt.Errorf("%w: %s@%s (replacing %s): %w",
				ErrReplacementVersionNotFound, rec.LibraryName, rec.Version, rec.FullRegistryName, err)
		default:
			return fmt.Errorf("%w: looking up %s@%s: %w", ErrUnexpectedRegistryFailure, rec.LibraryName, rec.Version, err)
		}
	}

	published, err := v.registry.Manifest(ctx, rec.FullRegistryName, "latest")
	if err != nil {
		switch registry.KindOf(err) {
		case registry.KindNotFound, registry.KindNotTarget:
			return fmt.Errorf("%w: published typings %s could not be found, which should not happen: %w",
				ErrUnexpectedRegistryFailure, rec.FullRegistryName, err)
		default:
			return fmt.Errorf("%w: looking up %s: %w", ErrUnexpectedRegistryFailure, rec.FullRegistryName, err)
		}
	}

	if !newer(rec.Version, published.Version) {
		return fmt.Errorf("%w: the specified version %s of %s must be newer than the version it is supposed to replace, %s of %s",
			ErrVersionNotNewer, rec.Version, rec.LibraryName, published.Version, rec.FullRegistryName)
	}

	v.logger.Info("not-needed package is valid",
		"package", rec.TypesName,
		"replacement", rec.LibraryName+"@"+rec.Version,
		"published", published.Version)
	return nil
}

// newer reports whether a is strictly greater than b in semver order. Versions
// that are not valid semver cannot be proven newer.
func newer(a, b string) bool {
	va, vb := canonical(a), canonical(b)
	if !semver.IsValid(va) || !semver.IsValid(vb) {
		return false
	}
	return semver.Compare(va, vb) > 0
}

func canonical(v string) string {
	if len(v) > 0 && v[0] != 'v' {
		return "v" + v
	}
	return v
}
