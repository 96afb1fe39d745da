package plan

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/stratumhq/stratum/pkg/expr"
)

// Hash computes the plan's content hash (§9): a run resumes only
// against a plan whose hash matches the one recorded at start, so two
// structurally-identical plans serialized differently (map iteration
// order, whitespace) must hash identically. Canonicalization sorts map
// keys and normalizes node serialization before hashing.
func Hash(p MigrationPlan) [32]byte {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteByte(0)
	fmt.Fprintf(&b, "settings:%d:%d:%s:%v\n", p.Settings.BatchSize, p.Settings.Parallelism, p.Settings.Timezone, p.Settings.DryRun)

	items := make([]MigrationItem, len(p.Items))
	copy(items, p.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	for _, item := range items {
		fmt.Fprintf(&b, "item:%s:%s:%s:%s:%s\n", item.ID, item.SourceKind, item.SourceName, item.DestinationKind, item.DestinationName)
		fmt.Fprintf(&b, "offset:%s:%v:%v\n", item.Offset.Strategy, item.Offset.Columns, item.Offset.Descending)
		if item.Filter != nil {
			fmt.Fprintf(&b, "filter:%s\n", canonicalize(item.Filter))
		}
		var mapKeys []string
		for k := range item.Map {
			mapKeys = append(mapKeys, k)
		}
		sort.Strings(mapKeys)
		for _, k := range mapKeys {
			fmt.Fprintf(&b, "map:%s:%s\n", k, canonicalize(item.Map[k]))
		}
		if item.Load != nil {
			for _, m := range item.Load.Matches {
				fmt.Fprintf(&b, "load:%s:%s:%s:%v:%v\n", m.From, m.AuxTable, m.As, m.LocalColumns, m.AuxColumns)
			}
		}
	}
	return sha256.Sum256([]byte(b.String()))
}

// canonicalize serializes an expression node into a whitespace- and
// case-normalized string so logically identical ASTs always produce
// the same bytes.
func canonicalize(n expr.Node) string {
	switch t := n.(type) {
	case expr.Literal:
		return fmt.Sprintf("lit(%s:%s)", t.Value.Kind, t.Value.String())
	case expr.Lookup:
		return fmt.Sprintf("lookup(%s)", strings.ToLower(t.Column))
	case expr.Arithmetic:
		return fmt.Sprintf("arith(%s,%s,%s)", t.Op, canonicalize(t.Left), canonicalize(t.Right))
	case expr.Condition:
		right := ""
		if t.Right != nil {
			right = canonicalize(t.Right)
		}
		return fmt.Sprintf("cond(%s,%s,%s)", t.Op, canonicalize(t.Left), right)
	case expr.FunctionCall:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = canonicalize(a)
		}
		return fmt.Sprintf("fn(%s,[%s])", strings.ToUpper(string(t.Func)), strings.Join(args, ","))
	case expr.Aggregate:
		return fmt.Sprintf("agg(%s,%s)", strings.ToUpper(t.Func), canonicalize(t.Arg))
	default:
		return "unknown"
	}
}
