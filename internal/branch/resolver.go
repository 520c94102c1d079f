// Package branch resolves settlement store names to canonical branches.
package branch

import (
	"fmt"
	"sort"
	"strings"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// Key maps a store identifier, as it appears in settlement reports, to
// the canonical branch name. Many stores may map to one branch.
type Key map[string]string

// Resolver looks up branches by normalized store name
type Resolver struct {
	lookup map[string]string
	logger logger.Logger
}

// Resolution is the outcome of resolving a settlement pool
type Resolution struct {
	Records     []models.SettlementRecord `json:"-"`
	Resolved    []models.SettlementRecord `json:"resolved"`
	Unresolved  []models.SettlementRecord `json:"unresolved"`
	Diagnostics []*errors.ReconcilerError `json:"diagnostics,omitempty"`
}

// NewResolver builds a resolver from key. Two entries whose store names
// normalize to the same text must agree on the branch.
func NewResolver(key Key) (*Resolver, error) {
	lookup := make(map[string]string, len(key))

	stores := make([]string, 0, len(key))
	for store := range key {
		stores = append(stores, store)
	}
	sort.Strings(stores)

	for _, store := range stores {
		norm := models.NormalizeName(store)
		branch := strings.TrimSpace(key[store])
		if norm == "" || branch == "" {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "branch_key", store,
				fmt.Errorf("branch key entries need both a store name and a branch"))
		}
		if existing, ok := lookup[norm]; ok && models.NormalizeName(existing) != models.NormalizeName(branch) {
			return nil, errors.ConfigurationError(errors.CodeConfigConflict, "branch_key", store,
				fmt.Errorf("store %q maps to both %q and %q", norm, existing, branch))
		}
		lookup[norm] = branch
	}

	return &Resolver{
		lookup: lookup,
		logger: logger.GetGlobalLogger().WithComponent("branch_resolver"),
	}, nil
}

// Len returns the number of distinct normalized store names
func (r *Resolver) Len() int {
	return len(r.lookup)
}

// Lookup returns the branch for a store name. Only exact matches of the
// normalized name count.
func (r *Resolver) Lookup(storeName string) (string, bool) {
	branch, ok := r.lookup[models.NormalizeName(storeName)]
	return branch, ok
}

// Resolve assigns a branch to a copy of every record. Records keeps the
// input order. Records whose store has no entry keep an empty branch and
// are also listed in Unresolved with an unresolved_branch diagnostic each.
func (r *Resolver) Resolve(records []models.SettlementRecord) *Resolution {
	res := &Resolution{
		Records:    make([]models.SettlementRecord, 0, len(records)),
		Resolved:   make([]models.SettlementRecord, 0, len(records)),
		Unresolved: make([]models.SettlementRecord, 0),
	}

	for _, rec := range records {
		rec.Branch = ""
		if branch, ok := r.Lookup(rec.StoreName); ok {
			rec.Branch = branch
			res.Records = append(res.Records, rec)
			res.Resolved = append(res.Resolved, rec)
			continue
		}
		res.Records = append(res.Records, rec)
		res.Unresolved = append(res.Unresolved, rec)
		res.Diagnostics = append(res.Diagnostics,
			errors.UnresolvedBranchWarning(rec.Channel, rec.Row, rec.StoreName))
	}

	r.logger.WithFields(logger.Fields{
		"records":    len(records),
		"resolved":   len(res.Resolved),
		"unresolved": len(res.Unresolved),
	}).Info("Resolved settlement branches")

	return res
}

// ResolveBranches resolves records against key in one call
func ResolveBranches(records []models.SettlementRecord, key Key) (*Resolution, error) {
	r, err := NewResolver(key)
	if err != nil {
		return nil, err
	}
	return r.Resolve(records), nil
}
