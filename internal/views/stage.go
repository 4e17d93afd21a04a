// Package views builds the fixed relational views of the service as typed aggregation
// pipelines. A Pipeline is composed once from stage descriptors and rendered to a
// mongo.Pipeline per request by binding named parameters.
package views

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/anonto42/vidtube/backend/internal/apperr"
)

// Params binds the named parameters of a pipeline for one execution.
type Params map[string]any

// Value is a stage operand: a literal, a named parameter or a field reference.
type Value interface {
	resolve(p Params) (any, error)
}

type literal struct{ v any }

func (l literal) resolve(Params) (any, error) { return l.v, nil }

type param string

func (n param) resolve(p Params) (any, error) {
	v, ok := p[string(n)]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("missing view parameter %q", string(n)))
	}
	return v, nil
}

type fieldRef string

func (f fieldRef) resolve(Params) (any, error) { return "$" + string(f), nil }

// Literal is a constant operand.
func Literal(v any) Value { return literal{v: v} }

// Param is bound from Params at render time.
func Param(name string) Value { return param(name) }

// FieldRef refers to a (dotted) field of the current document.
func FieldRef(path string) Value { return fieldRef(path) }

// Stage is one step of a pipeline. The set of stages is closed.
type Stage interface {
	render(p Params) (bson.D, error)
}

// CondOp is the comparison of a Filter condition.
type CondOp int

const (
	OpEq CondOp = iota
	OpExists
)

// Condition is one clause of a Filter.
type Condition struct {
	Field string
	Op    CondOp
	Value Value
}

// Eq matches documents whose field equals v.
func Eq(field string, v Value) Condition {
	return Condition{Field: field, Op: OpEq, Value: v}
}

// Exists matches documents that carry field.
func Exists(field string) Condition {
	return Condition{Field: field, Op: OpExists}
}

// Filter keeps documents matching every condition ($match).
type Filter struct {
	Conditions []Condition
}

func (f Filter) render(p Params) (bson.D, error) {
	if len(f.Conditions) == 0 {
		return nil, fmt.Errorf("filter: no conditions")
	}
	match := bson.D{}
	for _, c := range f.Conditions {
		switch c.Op {
		case OpEq:
			if _, ok := c.Value.(fieldRef); ok {
				return nil, fmt.Errorf("filter %s: field references are not supported in equality matches", c.Field)
			}
			v, err := c.Value.resolve(p)
			if err != nil {
				return nil, err
			}
			match = append(match, bson.E{Key: c.Field, Value: v})
		case OpExists:
			match = append(match, bson.E{Key: c.Field, Value: bson.D{{Key: "$exists", Value: true}}})
		default:
			return nil, fmt.Errorf("filter %s: unknown operator %d", c.Field, c.Op)
		}
	}
	return bson.D{{Key: "$match", Value: match}}, nil
}

// Join attaches the documents of another collection whose ForeignField equals the
// local field, as an array named As ($lookup). Pipeline optionally shapes the joined
// documents and may itself contain joins.
type Join struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Pipeline     []Stage
}

func (j Join) render(p Params) (bson.D, error) {
	if j.From == "" || j.LocalField == "" || j.ForeignField == "" || j.As == "" {
		return nil, fmt.Errorf("join: from, localField, foreignField and as are required")
	}
	lookup := bson.D{
		{Key: "from", Value: j.From},
		{Key: "localField", Value: j.LocalField},
		{Key: "foreignField", Value: j.ForeignField},
		{Key: "as", Value: j.As},
	}
	if len(j.Pipeline) > 0 {
		sub, err := renderStages(j.Pipeline, p, false)
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", j.As, err)
		}
		lookup = append(lookup, bson.E{Key: "pipeline", Value: sub})
	}
	return bson.D{{Key: "$lookup", Value: lookup}}, nil
}

// FlattenMode selects how a joined array is collapsed.
type FlattenMode int

const (
	// FlattenFirst replaces the array with its first element.
	FlattenFirst FlattenMode = iota
	// FlattenUnwind emits one document per element ($unwind).
	FlattenUnwind
)

// Flatten collapses a joined array field.
type Flatten struct {
	Field         string
	Mode          FlattenMode
	PreserveEmpty bool // FlattenUnwind only: keep documents whose array is empty
}

func (f Flatten) render(Params) (bson.D, error) {
	switch f.Mode {
	case FlattenFirst:
		return bson.D{{Key: "$addFields", Value: bson.D{
			{Key: f.Field, Value: bson.D{{Key: "$first", Value: "$" + f.Field}}},
		}}}, nil
	case FlattenUnwind:
		return bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + f.Field},
			{Key: "preserveNullAndEmptyArrays", Value: f.PreserveEmpty},
		}}}, nil
	default:
		return nil, fmt.Errorf("flatten %s: unknown mode %d", f.Field, f.Mode)
	}
}

// Expr is a computed-field expression.
type Expr interface {
	render(p Params) (any, error)
}

type sizeExpr string

func (e sizeExpr) render(Params) (any, error) {
	return bson.D{{Key: "$size", Value: ifNullArray(string(e))}}, nil
}

type containsExpr struct {
	needle Value
	path   string
}

func (e containsExpr) render(p Params) (any, error) {
	v, err := e.needle.resolve(p)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "$in", Value: bson.A{v, ifNullArray(e.path)}}}, nil
}

type firstExpr string

func (e firstExpr) render(Params) (any, error) {
	return bson.D{{Key: "$first", Value: "$" + string(e)}}, nil
}

type lastExpr string

func (e lastExpr) render(Params) (any, error) {
	return bson.D{{Key: "$arrayElemAt", Value: bson.A{"$" + string(e), -1}}}, nil
}

type refExpr string

func (e refExpr) render(Params) (any, error) { return "$" + string(e), nil }

// Size is the length of an array field; a missing field counts as empty.
func Size(path string) Expr { return sizeExpr(path) }

// Contains reports whether needle is an element of the array at path. Dotted paths
// through an array of documents test the projected values.
func Contains(needle Value, path string) Expr { return containsExpr{needle: needle, path: path} }

// First is the first element of an array field.
func First(path string) Expr { return firstExpr(path) }

// Last is the last element of an array field.
func Last(path string) Expr { return lastExpr(path) }

// Ref copies another field.
func Ref(path string) Expr { return refExpr(path) }

func ifNullArray(path string) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{"$" + path, bson.A{}}}}
}

// Field names a computed field.
type Field struct {
	Name string
	Expr Expr
}

// Compute adds computed fields, in order ($addFields).
type Compute struct {
	Fields []Field
}

func (c Compute) render(p Params) (bson.D, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("compute: no fields")
	}
	fields := make(bson.D, 0, len(c.Fields))
	for _, f := range c.Fields {
		v, err := f.Expr.render(p)
		if err != nil {
			return nil, fmt.Errorf("compute %s: %w", f.Name, err)
		}
		fields = append(fields, bson.E{Key: f.Name, Value: v})
	}
	return bson.D{{Key: "$addFields", Value: fields}}, nil
}

// Project keeps the listed (possibly dotted) fields. _id is kept unless ExcludeID.
type Project struct {
	Include   []string
	ExcludeID bool
}

func (pr Project) render(Params) (bson.D, error) {
	if len(pr.Include) == 0 {
		return nil, fmt.Errorf("project: no fields")
	}
	spec := make(bson.D, 0, len(pr.Include)+1)
	for _, f := range pr.Include {
		spec = append(spec, bson.E{Key: f, Value: 1})
	}
	if pr.ExcludeID {
		spec = append(spec, bson.E{Key: "_id", Value: 0})
	}
	return bson.D{{Key: "$project", Value: spec}}, nil
}

// SortKey orders by one field.
type SortKey struct {
	Field      string
	Descending bool
}

// Asc sorts field ascending.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts field descending.
func Desc(field string) SortKey { return SortKey{Field: field, Descending: true} }

// Sort orders documents by the keys, in priority order.
type Sort struct {
	Keys []SortKey
}

func (s Sort) render(Params) (bson.D, error) {
	if len(s.Keys) == 0 {
		return nil, fmt.Errorf("sort: no keys")
	}
	spec := make(bson.D, 0, len(s.Keys))
	for _, k := range s.Keys {
		dir := 1
		if k.Descending {
			dir = -1
		}
		spec = append(spec, bson.E{Key: k.Field, Value: dir})
	}
	return bson.D{{Key: "$sort", Value: spec}}, nil
}

// Facet output names of a paginated pipeline.
const (
	facetItems = "items"
	facetTotal = "total"
)

// Paginate splits the result into one page of items and the total count over the full
// set ($facet). It must be the last stage of a top-level pipeline.
type Paginate struct {
	Page  Value
	Limit Value
}

func (pg Paginate) render(p Params) (bson.D, error) {
	page, err := resolveInt(pg.Page, p, "page")
	if err != nil {
		return nil, err
	}
	limit, err := resolveInt(pg.Limit, p, "limit")
	if err != nil {
		return nil, err
	}
	if page < 1 || limit < 1 {
		return nil, apperr.Validation("page and limit must be positive")
	}
	if page-1 > math.MaxInt64/limit {
		return nil, apperr.Validation("page is out of range")
	}
	return bson.D{{Key: "$facet", Value: bson.D{
		{Key: facetItems, Value: bson.A{
			bson.D{{Key: "$skip", Value: (page - 1) * limit}},
			bson.D{{Key: "$limit", Value: limit}},
		}},
		{Key: facetTotal, Value: bson.A{
			bson.D{{Key: "$count", Value: "count"}},
		}},
	}}}, nil
}

func resolveInt(v Value, p Params, name string) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("paginate: %s is not set", name)
	}
	raw, err := v.resolve(p)
	if err != nil {
		return 0, err
	}
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, apperr.Validation(fmt.Sprintf("%s must be an integer", name))
	}
}

// Pipeline is a named, fixed sequence of stages.
type Pipeline struct {
	name      string
	stages    []Stage
	paginated bool
}

// NewPipeline validates the composition: Paginate may only appear as the last stage.
func NewPipeline(name string, stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("view %s: no stages", name)
	}
	paginated := false
	for i, s := range stages {
		if _, ok := s.(Paginate); ok {
			if i != len(stages)-1 {
				return nil, fmt.Errorf("view %s: paginate must be the last stage", name)
			}
			paginated = true
		}
	}
	return &Pipeline{name: name, stages: stages, paginated: paginated}, nil
}

// MustPipeline is NewPipeline for views composed at startup.
func MustPipeline(name string, stages ...Stage) *Pipeline {
	p, err := NewPipeline(name, stages...)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the view name used in logs and metrics.
func (p *Pipeline) Name() string { return p.name }

// Paginated reports whether the pipeline ends in a Paginate stage.
func (p *Pipeline) Paginated() bool { return p.paginated }

// Render binds params and returns the aggregation pipeline.
func (p *Pipeline) Render(params Params) (mongo.Pipeline, error) {
	out, err := renderStages(p.stages, params, true)
	if err != nil {
		if apperr.As(err) != nil {
			return nil, err
		}
		return nil, fmt.Errorf("view %s: %w", p.name, err)
	}
	return out, nil
}

func renderStages(stages []Stage, p Params, topLevel bool) (mongo.Pipeline, error) {
	out := make(mongo.Pipeline, 0, len(stages))
	for _, s := range stages {
		if _, ok := s.(Paginate); ok && !topLevel {
			return nil, fmt.Errorf("paginate is not allowed inside a join")
		}
		d, err := s.render(p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
