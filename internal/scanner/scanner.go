package scanner

import (
	"context"
	"fmt"
	"sort"

	"ShelterSync/internal/domain"
)

// Request carries all parameters required to scan one listing endpoint.
type Request struct {
	Endpoint domain.Endpoint
}

// Result holds the decoded records of one endpoint and the records that failed to decode.
type Result struct {
	Listings []domain.RawListing
	Rejected []error
}

// Scanner captures a single listing format (JSON widget feed, HTML page with embedded data, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from endpoint kinds to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Scanner, error) {
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}

// Kinds lists registered scanner names in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		kinds = append(kinds, name)
	}
	sort.Strings(kinds)
	return kinds
}
