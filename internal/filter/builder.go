// Package filter builds SQL predicates from simple column conditions.
package filter

import (
	"fmt"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// Operator represents a filter comparison operator
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpLike           Operator = "LIKE"
	OpILike          Operator = "ILIKE"
	OpIsNull         Operator = "IS NULL"
	OpIsNotNull      Operator = "IS NOT NULL"
)

// Condition compares one column with a value
type Condition struct {
	Column   string
	Operator Operator
	Value    any
}

// Group joins conditions and nested groups with AND or OR
type Group struct {
	Conditions []Condition
	Logic      string
	Groups     []Group
}

// Builder renders groups as predicate text for one driver
type Builder struct {
	driver models.Driver
}

// NewBuilder creates a new filter builder
func NewBuilder(d models.Driver) *Builder {
	return &Builder{driver: d}
}

// Build renders g without the WHERE keyword. An empty group yields "".
func (b *Builder) Build(g Group) (string, error) {
	if len(g.Conditions) == 0 && len(g.Groups) == 0 {
		return "", nil
	}
	return b.buildGroup(g)
}

func (b *Builder) buildGroup(g Group) (string, error) {
	logic := strings.ToUpper(strings.TrimSpace(g.Logic))
	switch logic {
	case "":
		logic = "AND"
	case "AND", "OR":
	default:
		return "", fmt.Errorf("unsupported logic: %s", g.Logic)
	}

	clauses := make([]string, 0, len(g.Conditions)+len(g.Groups))
	for _, cond := range g.Conditions {
		clause, err := b.buildCondition(cond)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	for _, sub := range g.Groups {
		if len(sub.Conditions) == 0 && len(sub.Groups) == 0 {
			continue
		}
		clause, err := b.buildGroup(sub)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "("+clause+")")
	}

	return strings.Join(clauses, " "+logic+" "), nil
}

func (b *Builder) buildCondition(cond Condition) (string, error) {
	if strings.TrimSpace(cond.Column) == "" {
		return "", fmt.Errorf("condition has no column")
	}
	column := sqlgen.QuoteIdent(cond.Column)

	switch cond.Operator {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", column, cond.Operator), nil
	case OpEqual, OpNotEqual:
		if cond.Value == nil {
			if cond.Operator == OpEqual {
				return column + " IS NULL", nil
			}
			return column + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s %s %s", column, cond.Operator, sqlgen.Literal(b.driver, cond.Value)), nil
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpLike:
		return fmt.Sprintf("%s %s %s", column, cond.Operator, sqlgen.Literal(b.driver, cond.Value)), nil
	case OpILike:
		// SQLite's LIKE is already case-insensitive for ASCII
		op := OpILike
		if b.driver != models.DriverPostgres {
			op = OpLike
		}
		return fmt.Sprintf("%s %s %s", column, op, sqlgen.Literal(b.driver, cond.Value)), nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", cond.Operator)
	}
}

// parseOrder lists operators so that longer ones match first
var parseOrder = []struct {
	token string
	op    Operator
}{
	{">=", OpGreaterOrEqual},
	{"<=", OpLessOrEqual},
	{"!=", OpNotEqual},
	{"~~", OpILike},
	{"=", OpEqual},
	{">", OpGreaterThan},
	{"<", OpLessThan},
	{"~", OpLike},
}

// ParseCondition parses column<op>value where op is one of = != > >= < <=,
// ~ for LIKE or ~~ for a case-insensitive LIKE. The value NULL with = or !=
// tests for NULL.
func ParseCondition(s string) (Condition, error) {
	best := -1
	var match Operator
	var width int
	for _, candidate := range parseOrder {
		i := strings.Index(s, candidate.token)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(candidate.token) > width) {
			best, match, width = i, candidate.op, len(candidate.token)
		}
	}
	if best < 0 {
		return Condition{}, fmt.Errorf("condition %q has no operator", s)
	}

	column := strings.TrimSpace(s[:best])
	value := strings.TrimSpace(s[best+width:])
	if column == "" {
		return Condition{}, fmt.Errorf("condition %q has no column", s)
	}

	cond := Condition{Column: column, Operator: match, Value: value}
	if strings.EqualFold(value, "null") {
		switch match {
		case OpEqual:
			cond = Condition{Column: column, Operator: OpIsNull}
		case OpNotEqual:
			cond = Condition{Column: column, Operator: OpIsNotNull}
		}
	}
	return cond, nil
}

// Combine joins a raw predicate and built conditions with AND
func Combine(predicates ...string) string {
	parts := make([]string, 0, len(predicates))
	for _, p := range predicates {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND ")
}
