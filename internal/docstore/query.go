package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection by field equality and orders
// them. The zero Limit means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// OrderBy returns a copy of q with an extra sort key.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Direction: dir})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Key is the canonical identity of the query. Two queries with equal keys
// select and order the same documents.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		v, err := json.Marshal(f.Value)
		if err != nil {
			v = []byte(fmt.Sprintf("%#v", f.Value))
		}
		fmt.Fprintf(&b, "|where:%s==%s", f.Field, v)
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Direction == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, "|order:%s:%s", o.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|limit:%d", q.Limit)
	}
	return b.String()
}

func (q Query) validate() error {
	if err := checkCollectionPath(q.Collection); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return newError(CodeInvalidArgument, q.Collection, "filter without a field")
		}
	}
	for _, o := range q.Orders {
		if o.Field == "" {
			return newError(CodeInvalidArgument, q.Collection, "order without a field")
		}
	}
	if q.Limit < 0 {
		return newError(CodeInvalidArgument, q.Collection, "negative limit")
	}
	return nil
}

// compiled holds the normalized filter operands of a query.
type compiled struct {
	Query
	values []any
}

func (q Query) compile() (compiled, error) {
	if err := q.validate(); err != nil {
		return compiled{}, err
	}
	c := compiled{Query: q, values: make([]any, len(q.Filters))}
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return compiled{}, &Error{Code: CodeInvalidArgument, Path: q.Collection, Message: "filter value for " + f.Field, Cause: err}
		}
		c.values[i] = v
	}
	return c, nil
}

// apply filters and orders docs. docs must all belong to q.Collection.
// The result shares no maps with the input.
func (c compiled) apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if c.matches(d) {
			out = append(out, d.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range c.Orders {
			cmp := compareValues(out[i].Data[o.Field], out[j].Data[o.Field])
			if cmp == 0 {
				continue
			}
			if o.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}

func (c compiled) matches(d Document) bool {
	for i, f := range c.Filters {
		v, ok := d.Data[f.Field]
		if !ok || !reflect.DeepEqual(v, c.values[i]) {
			return false
		}
	}
	return true
}

// typeRank orders values of different kinds: missing/null, bool, number,
// string, then everything else.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}
