// Package plan holds the structured migration plan (§3) the engine
// executes: MigrationPlan, MigrationItem, Settings and the pagination
// OffsetSpec. Stratum never parses SMQL text itself — a MigrationPlan
// is handed in already built, the same way migration.Runner is handed
// an already-resolved *table.TableInfo rather than a DDL string.
package plan

import (
	"fmt"
	"sort"

	"github.com/stratumhq/stratum/pkg/expr"
)

// SourceKind / DestinationKind enumerate the connector families a
// MigrationItem can bind to.
type SourceKind string

const (
	SourceTable SourceKind = "table"
	SourceCsv   SourceKind = "csv"
	SourceApi   SourceKind = "api"
)

type DestinationKind string

const (
	DestinationTable DestinationKind = "table"
	DestinationFile  DestinationKind = "file"
)

// OffsetStrategy selects the keyset pagination strategy (§4.2).
type OffsetStrategy string

const (
	OffsetPk        OffsetStrategy = "pk"
	OffsetNumeric   OffsetStrategy = "numeric"
	OffsetTimestamp OffsetStrategy = "timestamp"
)

// OffsetSpec describes how a MigrationItem's primary source is paged.
type OffsetSpec struct {
	Strategy   OffsetStrategy
	Columns    []string // cursor + tiebreaker columns, in order
	Descending bool
}

// LoadMatch is one join edge of a LOAD clause: fetch AuxTable keyed by
// LocalColumns = AuxColumns, left-outer-join semantics. From names the
// alias LocalColumns belong to — the item's primary source when empty,
// or a previously-joined aux table's alias when chaining joins.
type LoadMatch struct {
	From         string
	AuxTable     string
	As           string
	LocalColumns []string
	AuxColumns   []string
}

func (m LoadMatch) alias() string {
	if m.As != "" {
		return m.As
	}
	return m.AuxTable
}

// LoadSpec is the full join graph for a MigrationItem's LOAD clause.
type LoadSpec struct {
	Matches []LoadMatch
}

// MigrationItem is one unit of work: read from one primary source,
// optionally enrich via LoadSpec, optionally filter/map, write to one
// destination.
type MigrationItem struct {
	ID              string
	SourceKind      SourceKind
	SourceName      string // table name / file path / API path
	Offset          OffsetSpec
	Load            *LoadSpec
	Filter          expr.Node // nil means no filter
	Map             map[string]expr.Node // target column -> expression
	DestinationKind DestinationKind
	DestinationName string
	InferSchema     bool
	CascadeSchema   bool
	IgnoreConstraints bool
}

// Settings are run-wide tunables (§3).
type Settings struct {
	BatchSize    int
	Parallelism  int
	Timezone     string
	DryRun       bool
}

// MigrationPlan is the top-level unit the executor runs.
type MigrationPlan struct {
	Name     string
	Items    []MigrationItem
	Settings Settings
}

// PlanInvalidError wraps every structural validation failure so
// callers can errors.As it (§7's abstract error kinds).
type PlanInvalidError struct {
	Reason string
}

func (e *PlanInvalidError) Error() string {
	return fmt.Sprintf("plan invalid: %s", e.Reason)
}

// Validate enforces the structural invariants of §3/§9: item IDs are
// unique, exactly one primary source per item, load graphs are
// acyclic, and AGGREGATE nodes (out of scope, §9 OQ3) are rejected
// outright. The tables a load match or a FILTER/MAP column names are
// not checked against the plan's declared sources.
func Validate(p MigrationPlan) error {
	seen := make(map[string]bool, len(p.Items))
	for _, item := range p.Items {
		if item.ID == "" {
			return &PlanInvalidError{Reason: "item has empty id"}
		}
		if seen[item.ID] {
			return &PlanInvalidError{Reason: fmt.Sprintf("duplicate item id %q", item.ID)}
		}
		seen[item.ID] = true

		if item.SourceName == "" {
			return &PlanInvalidError{Reason: fmt.Sprintf("item %q has no primary source", item.ID)}
		}
		if item.Filter != nil {
			if err := validateNode(item.Filter); err != nil {
				return &PlanInvalidError{Reason: fmt.Sprintf("item %q filter: %v", item.ID, err)}
			}
		}
		for col, node := range item.Map {
			if err := validateNode(node); err != nil {
				return &PlanInvalidError{Reason: fmt.Sprintf("item %q map[%s]: %v", item.ID, col, err)}
			}
		}
		if item.Load != nil {
			if err := validateLoadGraph(item.ID, *item.Load); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateNode(n expr.Node) error {
	return expr.Walk(n, func(inner expr.Node) error {
		if _, ok := inner.(expr.Aggregate); ok {
			return fmt.Errorf("AGGREGATE is not supported")
		}
		return nil
	})
}

// validateLoadGraph detects cycles among auxiliary table references
// with a plain DFS, the same detection shape used for schema cascade
// ordering in package schema.
func validateLoadGraph(itemID string, spec LoadSpec) error {
	const root = "" // the item's primary source
	adj := make(map[string][]string)
	for _, m := range spec.Matches {
		adj[m.From] = append(adj[m.From], m.alias())
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var names []string
	for n := range adj {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic traversal order for reproducible errors

	var visit func(string) error
	visit = func(n string) error {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return &PlanInvalidError{Reason: fmt.Sprintf("item %q load graph has a cycle at %q", itemID, next)}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}
	for _, n := range names {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
