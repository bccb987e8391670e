// Package registry looks up package manifests on an npm-compatible registry.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed registry lookup
type Kind int

const (
	// KindOther is any failure besides the two not-found cases
	KindOther Kind = iota
	// KindNotFound means no package with that name exists
	KindNotFound
	// KindNotTarget means the package exists but the version or tag does not
	KindNotTarget
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindNotTarget:
		return "no matching version"
	default:
		return "registry failure"
	}
}

// Manifest is the metadata of one published version
type Manifest struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Deprecated string `json:"deprecated,omitempty"`
}

// Client fetches package manifests
type Client interface {
	// Manifest returns the manifest of name at an exact version or dist-tag
	// such as "latest". Failures are *LookupError values.
	Manifest(ctx context.Context, name, versionOrTag string) (*Manifest, error)
}

// LookupError is returned by Client implementations for every failed lookup
type LookupError struct {
	Kind    Kind
	Name    string
	Version string
	Err     error
}

func (e *LookupError) Error() string {
	target := e.Name
	if e.Version != "" {
		target += "@" + e.Version
	}
	if e.Err != nil {
		return fmt.Sprintf("registry lookup of %s: %s: %v", target, e.Kind, e.Err)
	}
	return fmt.Sprintf("registry lookup of %s: %s", target, e.Kind)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// KindOf returns the lookup kind carried by err. Errors that are not
// *LookupError values are KindOther.
func KindOf(err error) Kind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindOther
}

// IsNotFound reports whether err is a KindNotFound lookup failure
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsNotTarget reports whether err is a KindNotTarget lookup failure
func IsNotTarget(err error) bool {
	return err != nil && KindOf(err) == KindNotTarget
}
