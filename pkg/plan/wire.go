// wire.go implements the JSON codec a MigrationPlan crosses process
// boundaries with: the upstream SMQL planner hands Stratum an
// already-parsed plan (§1), and in practice that handoff is a JSON
// document on disk or over a pipe. expr.Node is a closed interface, so
// its wire form needs an explicit type discriminator the way the
// teacher's statement package discriminates CreateTable/AlterTable by
// a Verb/Type field rather than relying on Go's own type info.
package plan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/pkg/expr"
	"github.com/stratumhq/stratum/pkg/value"
)

type wirePlan struct {
	Name     string            `json:"name"`
	Items    []wireItem        `json:"items"`
	Settings wireSettings      `json:"settings"`
}

type wireSettings struct {
	BatchSize   int  `json:"batch_size"`
	Parallelism int  `json:"parallelism"`
	Timezone    string `json:"timezone"`
	DryRun      bool `json:"dry_run"`
}

type wireOffset struct {
	Strategy   string   `json:"strategy"`
	Columns    []string `json:"columns"`
	Descending bool     `json:"descending"`
}

type wireLoadMatch struct {
	From         string   `json:"from"`
	AuxTable     string   `json:"aux_table"`
	As           string   `json:"as"`
	LocalColumns []string `json:"local_columns"`
	AuxColumns   []string `json:"aux_columns"`
}

type wireItem struct {
	ID                string                     `json:"id"`
	SourceKind        string                     `json:"source_kind"`
	SourceName        string                     `json:"source_name"`
	Offset            wireOffset                 `json:"offset"`
	Load              []wireLoadMatch            `json:"load,omitempty"`
	Filter            json.RawMessage            `json:"filter,omitempty"`
	Map               map[string]json.RawMessage `json:"map,omitempty"`
	DestinationKind   string                     `json:"destination_kind"`
	DestinationName   string                     `json:"destination_name"`
	InferSchema       bool                       `json:"infer_schema"`
	CascadeSchema     bool                       `json:"cascade_schema"`
	IgnoreConstraints bool                       `json:"ignore_constraints"`
}

// wireNode mirrors expr.Node's six concrete shapes (aggregate included)
// under one
// discriminated envelope.
type wireNode struct {
	Type    string            `json:"type"`
	Value   *wireValue        `json:"value,omitempty"`
	Column  string            `json:"column,omitempty"`
	Op      string            `json:"op,omitempty"`
	Left    json.RawMessage   `json:"left,omitempty"`
	Right   json.RawMessage   `json:"right,omitempty"`
	Func    string            `json:"func,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
	CastTo  string            `json:"cast_to,omitempty"`
}

type wireValue struct {
	Kind string `json:"kind"`
	Raw  string `json:"raw"`
}

// UnmarshalPlan decodes a wire-format MigrationPlan.
func UnmarshalPlan(data []byte) (MigrationPlan, error) {
	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return MigrationPlan{}, fmt.Errorf("plan: decode: %w", err)
	}
	p := MigrationPlan{
		Name: w.Name,
		Settings: Settings{
			BatchSize:   w.Settings.BatchSize,
			Parallelism: w.Settings.Parallelism,
			Timezone:    w.Settings.Timezone,
			DryRun:      w.Settings.DryRun,
		},
	}
	for _, wi := range w.Items {
		item := MigrationItem{
			ID:                wi.ID,
			SourceKind:        SourceKind(wi.SourceKind),
			SourceName:        wi.SourceName,
			Offset:            OffsetSpec{Strategy: OffsetStrategy(wi.Offset.Strategy), Columns: wi.Offset.Columns, Descending: wi.Offset.Descending},
			DestinationKind:   DestinationKind(wi.DestinationKind),
			DestinationName:   wi.DestinationName,
			InferSchema:       wi.InferSchema,
			CascadeSchema:     wi.CascadeSchema,
			IgnoreConstraints: wi.IgnoreConstraints,
		}
		if len(wi.Load) > 0 {
			matches := make([]LoadMatch, len(wi.Load))
			for i, m := range wi.Load {
				matches[i] = LoadMatch{From: m.From, AuxTable: m.AuxTable, As: m.As, LocalColumns: m.LocalColumns, AuxColumns: m.AuxColumns}
			}
			item.Load = &LoadSpec{Matches: matches}
		}
		if len(wi.Filter) > 0 {
			node, err := decodeNode(wi.Filter)
			if err != nil {
				return MigrationPlan{}, fmt.Errorf("plan: item %q filter: %w", wi.ID, err)
			}
			item.Filter = node
		}
		if len(wi.Map) > 0 {
			item.Map = make(map[string]expr.Node, len(wi.Map))
			for col, raw := range wi.Map {
				node, err := decodeNode(raw)
				if err != nil {
					return MigrationPlan{}, fmt.Errorf("plan: item %q map[%s]: %w", wi.ID, col, err)
				}
				item.Map[col] = node
			}
		}
		p.Items = append(p.Items, item)
	}
	return p, nil
}

func decodeNode(raw json.RawMessage) (expr.Node, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "literal":
		v, err := decodeValue(*w.Value)
		if err != nil {
			return nil, err
		}
		return expr.Literal{Value: v}, nil
	case "lookup":
		return expr.Lookup{Column: w.Column}, nil
	case "arithmetic":
		left, err := decodeNode(w.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(w.Right)
		if err != nil {
			return nil, err
		}
		return expr.Arithmetic{Op: expr.ArithmeticOp(w.Op), Left: left, Right: right}, nil
	case "condition":
		left, err := decodeNode(w.Left)
		if err != nil {
			return nil, err
		}
		var right expr.Node
		if len(w.Right) > 0 {
			right, err = decodeNode(w.Right)
			if err != nil {
				return nil, err
			}
		}
		return expr.Condition{Op: expr.ConditionOp(w.Op), Left: left, Right: right}, nil
	case "function":
		args := make([]expr.Node, len(w.Args))
		for i, a := range w.Args {
			node, err := decodeNode(a)
			if err != nil {
				return nil, err
			}
			args[i] = node
		}
		castTo := value.KindNull
		if w.CastTo != "" {
			k, err := parseKind(w.CastTo)
			if err != nil {
				return nil, err
			}
			castTo = k
		}
		return expr.FunctionCall{Func: expr.Function(w.Func), Args: args, CastTo: castTo}, nil
	case "aggregate":
		arg, err := decodeNode(w.Left)
		if err != nil {
			return nil, err
		}
		return expr.Aggregate{Func: w.Func, Arg: arg}, nil
	default:
		return nil, fmt.Errorf("unknown expression node type %q", w.Type)
	}
}

func decodeValue(w wireValue) (value.Value, error) {
	switch w.Kind {
	case "null":
		return value.Null(), nil
	case "bool":
		return value.Bool(w.Raw == "true"), nil
	case "int64":
		var i int64
		if _, err := fmt.Sscanf(w.Raw, "%d", &i); err != nil {
			return value.Value{}, err
		}
		return value.Int64(i), nil
	case "string":
		return value.String(w.Raw), nil
	case "timestamp":
		t, err := time.Parse(time.RFC3339Nano, w.Raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.Timestamp(t), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported literal kind %q in plan wire format", w.Kind)
	}
}

func parseKind(s string) (value.Kind, error) {
	switch s {
	case "string":
		return value.KindString, nil
	case "int64":
		return value.KindInt64, nil
	case "decimal":
		return value.KindDecimal, nil
	default:
		return 0, fmt.Errorf("unsupported CAST target %q in plan wire format", s)
	}
}
