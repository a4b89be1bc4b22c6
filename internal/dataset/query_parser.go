package dataset

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
)

/*
This is a parser for a simple record query language with the following grammar:

Query       := Expr
Expr        := OrExpr ( "OR" OrExpr )*
OrExpr      := AndExpr ( "AND" AndExpr )*
AndExpr     := Condition | "NOT" Condition
Condition   := Filter | "(" Expr ")"
Filter      := Field Op Value
Field       := "split" | "label" | "lon" | "lat"
Op          := "!=" | "<=" | ">=" | "<" | ">" | "="
Value       := <identifier> | <string> | <number>

Examples:

	split = train AND label = damaged
	lon < -95.0 OR lat >= 29.5
	NOT (label = undamaged)
*/

var queryParser = participle.MustBuild[QueryExpr](
	participle.Unquote("String"),
	participle.Union[Value](StringValue{}, NumberValue{}),
)

// ParseQuery compiles a record query into a Filter. An empty query matches
// every record.
func ParseQuery(query string) (Filter, error) {
	if query == "" {
		return nil, nil
	}

	q, err := queryParser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing query '%s': %w", query, err)
	}

	filter, err := q.ToFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting query '%s' to filter: %w", query, err)
	}

	return filter, nil
}

type QueryExpr struct {
	Expr *Expr `parser:"@@"`
}

func (q *QueryExpr) ToFilter() (Filter, error) {
	return q.Expr.ToFilter()
}

type Expr struct {
	Ors []*OrExpr `parser:"@@ ( \"OR\" @@ )*"`
}

func (q *Expr) ToFilter() (Filter, error) {
	if len(q.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(q.Ors) == 1 {
		return q.Ors[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range q.Ors {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &OrFilter{filters: filters}, nil
}

type OrExpr struct {
	Ands []*Condition `parser:"@@ ( \"AND\" @@ )*"`
}

func (o *OrExpr) ToFilter() (Filter, error) {
	if len(o.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range o.Ands {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &AndFilter{filters: filters}, nil
}

type Condition struct {
	Not     bool        `parser:"@\"NOT\"?"`
	Filter  *FilterExpr `parser:" @@"`
	SubExpr *Expr       `parser:"| \"(\" @@ \")\" "`
}

func (c *Condition) ToFilter() (Filter, error) {
	var filter Filter
	var err error
	if c.Filter != nil {
		filter, err = c.Filter.ToFilter()
	} else if c.SubExpr != nil {
		filter, err = c.SubExpr.ToFilter()
	}

	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &NotFilter{filter: filter}
	}

	return filter, nil
}

type FilterExpr struct {
	Field string `parser:"@Ident"`
	Op    string `parser:"@(\"!\" \"=\" | \"<\" \"=\"? | \">\" \"=\"? | \"=\")"`
	Value Value  `parser:"@@"`
}

func (f *FilterExpr) ToFilter() (Filter, error) {
	switch f.Field {
	case "split":
		s, ok := f.Value.(StringValue)
		if !ok {
			return nil, fmt.Errorf("split must be compared to a split name")
		}
		split, err := ParseSplit(s.Value)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case "=":
			return &SplitFilter{value: split}, nil
		case "!=":
			return &SplitFilter{negate: true, value: split}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s for split", f.Op)
		}

	case "label":
		s, ok := f.Value.(StringValue)
		if !ok {
			return nil, fmt.Errorf("label must be compared to a label name")
		}
		label, err := ParseLabel(s.Value)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case "=":
			return &LabelFilter{value: label}, nil
		case "!=":
			return &LabelFilter{negate: true, value: label}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s for label", f.Op)
		}

	case "lon", "lat":
		n, ok := f.Value.(NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s must be compared to a number", f.Field)
		}
		switch f.Op {
		case "<", "<=", ">", ">=", "=", "!=":
			return &CoordFilter{field: f.Field, op: f.Op, value: n.Float()}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s for %s", f.Op, f.Field)
		}

	default:
		return nil, fmt.Errorf("unknown field %q, expected split, label, lon, or lat", f.Field)
	}
}

type Value interface{ value() }

type StringValue struct {
	Value string `parser:"@(Ident | String)"`
}

func (s StringValue) value() {}

type NumberValue struct {
	Sign  string `parser:"@\"-\"?"`
	Value string `parser:"@(Float | Int)"`
}

func (n NumberValue) value() {}

func (n NumberValue) Float() float64 {
	f, _ := strconv.ParseFloat(n.Sign+n.Value, 64)
	return f
}
