// Package filter translates AIP-160 task filter expressions into SQL.
//
// Supported fields are completed (bool), title and description (string),
// and create_time and update_time (timestamp). The has operator on a
// string field matches a case-insensitive substring.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "completed = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Empty reports whether the condition matches every row.
func (c SQLCondition) Empty() bool {
	return strings.TrimSpace(c.Clause) == ""
}

type fieldKind int

const (
	kindBool fieldKind = iota
	kindString
	kindTimestamp
)

type field struct {
	column string
	kind   fieldKind
}

var fields = map[string]field{
	"completed":   {column: "completed", kind: kindBool},
	"title":       {column: "title", kind: kindString},
	"description": {column: "description", kind: kindString},
	"create_time": {column: "created_at", kind: kindTimestamp},
	"update_time": {column: "updated_at", kind: kindTimestamp},
}

// TaskDeclarations returns the field declarations for task filtering.
func TaskDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("completed", filtering.TypeBool),
		filtering.DeclareIdent("title", filtering.TypeString),
		filtering.DeclareIdent("description", filtering.TypeString),
		filtering.DeclareIdent("create_time", filtering.TypeTimestamp),
		filtering.DeclareIdent("update_time", filtering.TypeTimestamp),
		// The parser reads true and false as bare identifiers.
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	)
}

// ParseTaskFilter parses an AIP-160 filter expression and returns a SQL condition.
// Returns an empty condition for an empty filter string.
func ParseTaskFilter(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}

	decls, err := TaskDeclarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}

	return translateExpr(parsed.CheckedExpr.GetExpr())
}

func translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	case *expr.Expr_IdentExpr:
		return translateBareIdent(kind.IdentExpr.GetName())
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

// translateBareIdent handles a lone boolean, e.g. "completed" or "NOT completed".
func translateBareIdent(name string) (SQLCondition, error) {
	switch name {
	case "true":
		return SQLCondition{Clause: "1 = 1"}, nil
	case "false":
		return SQLCondition{Clause: "1 = 0"}, nil
	}
	f, ok := fields[name]
	if !ok || f.kind != kindBool {
		return SQLCondition{}, fmt.Errorf("field %s is not a boolean", name)
	}
	return SQLCondition{Clause: f.column + " = ?", Params: []any{1}}, nil
}

func translateCall(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.GetFunction() {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd:
		return translateJunction(call.GetArgs(), "AND")
	case filtering.FunctionOr:
		return translateJunction(call.GetArgs(), "OR")
	case filtering.FunctionNot:
		return translateNot(call.GetArgs())
	case filtering.FunctionEquals:
		return translateComparison(call.GetArgs(), "=")
	case filtering.FunctionNotEquals:
		return translateComparison(call.GetArgs(), "!=")
	case filtering.FunctionLessThan:
		return translateComparison(call.GetArgs(), "<")
	case filtering.FunctionLessEquals:
		return translateComparison(call.GetArgs(), "<=")
	case filtering.FunctionGreaterThan:
		return translateComparison(call.GetArgs(), ">")
	case filtering.FunctionGreaterEquals:
		return translateComparison(call.GetArgs(), ">=")
	case filtering.FunctionHas:
		return translateHas(call.GetArgs())
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
	}
}

func translateJunction(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) < 2 {
		return SQLCondition{}, fmt.Errorf("%s requires at least 2 arguments", op)
	}
	clauses := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		cond, err := translateExpr(arg)
		if err != nil {
			return SQLCondition{}, err
		}
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}
	return SQLCondition{
		Clause: "(" + strings.Join(clauses, " "+op+" ") + ")",
		Params: params,
	}, nil
}

func translateNot(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 1 {
		return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: "NOT (" + inner.Clause + ")", Params: inner.Params}, nil
}

func translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	name, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	f, ok := fields[name]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", name)
	}

	var value any
	switch f.kind {
	case kindBool:
		if op != "=" && op != "!=" {
			return SQLCondition{}, fmt.Errorf("operator %s is not supported for %s", op, name)
		}
		b, err := extractBool(args[1])
		if err != nil {
			return SQLCondition{}, err
		}
		value = 0
		if b {
			value = 1
		}
	case kindString:
		s, err := extractString(args[1])
		if err != nil {
			return SQLCondition{}, err
		}
		value = s
	case kindTimestamp:
		ts, err := extractTimestamp(args[1])
		if err != nil {
			return SQLCondition{}, err
		}
		value = ts.UTC().UnixMilli()
	}

	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", f.column, op),
		Params: []any{value},
	}, nil
}

func translateHas(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("has requires 2 arguments")
	}
	name, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	f, ok := fields[name]
	if !ok || f.kind != kindString {
		return SQLCondition{}, fmt.Errorf("has is only supported on text fields, got %s", name)
	}
	needle, err := extractString(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: fmt.Sprintf("instr(lower(%s), lower(?)) > 0", f.column),
		Params: []any{needle},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.GetName(), nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractBool(e *expr.Expr) (bool, error) {
	if e == nil {
		return false, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.GetName() {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("expected true or false, got %s", kind.IdentExpr.GetName())
	case *expr.Expr_ConstExpr:
		if b, ok := kind.ConstExpr.GetConstantKind().(*expr.Constant_BoolValue); ok {
			return b.BoolValue, nil
		}
		return false, fmt.Errorf("expected boolean constant")
	default:
		return false, fmt.Errorf("expected boolean, got %T", kind)
	}
}

func extractString(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", e.ExprKind)
	}
	s, ok := constExpr.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant")
	}
	return s.StringValue, nil
}

func extractTimestamp(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, fmt.Errorf("nil expression")
	}
	// Accept both timestamp("...") and a bare RFC 3339 string.
	if call, ok := e.ExprKind.(*expr.Expr_CallExpr); ok {
		if call.CallExpr.GetFunction() != filtering.FunctionTimestamp || len(call.CallExpr.GetArgs()) != 1 {
			return time.Time{}, fmt.Errorf("unsupported function in value position: %s", call.CallExpr.GetFunction())
		}
		e = call.CallExpr.GetArgs()[0]
	}
	raw, err := extractString(e)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp argument must be a string")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", raw)
	}
	return ts, nil
}
