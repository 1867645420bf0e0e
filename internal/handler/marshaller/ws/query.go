package wsmarshaller

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// Selection is a parsed subscription query: the topic and the fields requested.
// Empty Fields selects the whole post.
type Selection struct {
	Topic  string
	Alias  string
	Fields []string
}

// ResponseKey is the name the result is delivered under in data frames.
func (s Selection) ResponseKey() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Topic
}

// postFields are the JSON names a selection may request.
var postFields = map[string]struct{}{
	"id":         {},
	"authorId":   {},
	"authorName": {},
	"title":      {},
	"content":    {},
	"createdAt":  {},
}

// ParseSubscriptionQuery reads the first top-level field of the subscription
// operation as the topic and its sub-selection as the projected post fields.
// A bare topic name is accepted as well.
func ParseSubscriptionQuery(query string) (Selection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Selection{}, &model.ProtocolError{Reason: "empty subscription query"}
	}

	// [BARE_TOPIC]
	if isName(query) {
		return Selection{Topic: query}, nil
	}

	doc, gerr := parser.ParseQuery(&ast.Source{Name: "subscription", Input: query})
	if gerr != nil {
		return Selection{}, &model.ProtocolError{Reason: "malformed subscription query", Err: gerr}
	}

	op := pickOperation(doc.Operations)
	if op == nil {
		return Selection{}, &model.ProtocolError{Reason: "no subscription operation in query"}
	}

	var root *ast.Field
	for _, f := range flatten(doc, op.SelectionSet, map[string]struct{}{}) {
		if !isIntrospection(f.Name) {
			root = f
			break
		}
	}
	if root == nil {
		return Selection{}, &model.ProtocolError{Reason: "malformed subscription query: missing field"}
	}

	sel := Selection{Topic: root.Name}
	if root.Alias != "" && root.Alias != root.Name {
		sel.Alias = root.Alias
	}
	if len(root.SelectionSet) == 0 {
		return sel, nil
	}

	seen := make(map[string]struct{})
	for _, f := range flatten(doc, root.SelectionSet, map[string]struct{}{}) {
		if isIntrospection(f.Name) {
			continue
		}
		if _, ok := postFields[f.Name]; !ok {
			return Selection{}, &model.ProtocolError{Reason: fmt.Sprintf("unknown field %q on %s", f.Name, sel.Topic)}
		}
		if len(f.SelectionSet) > 0 {
			return Selection{}, &model.ProtocolError{Reason: fmt.Sprintf("field %q on %s has no sub-fields", f.Name, sel.Topic)}
		}
		if _, dup := seen[f.Name]; !dup {
			seen[f.Name] = struct{}{}
			sel.Fields = append(sel.Fields, f.Name)
		}
	}
	if len(sel.Fields) == 0 {
		return Selection{}, &model.ProtocolError{Reason: "selection on " + sel.Topic + " requests no post fields"}
	}
	return sel, nil
}

// pickOperation prefers the first subscription; the anonymous shorthand
// parses as a query and is accepted too. Mutations are never streamed.
func pickOperation(ops ast.OperationList) *ast.OperationDefinition {
	var fallback *ast.OperationDefinition
	for _, op := range ops {
		switch op.Operation {
		case ast.Subscription:
			return op
		case ast.Query:
			if fallback == nil {
				fallback = op
			}
		}
	}
	return fallback
}

// flatten expands fragment spreads and inline fragments into the plain fields
// they select, in document order.
func flatten(doc *ast.QueryDocument, set ast.SelectionSet, visiting map[string]struct{}) []*ast.Field {
	var out []*ast.Field
	for _, s := range set {
		switch s := s.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.InlineFragment:
			out = append(out, flatten(doc, s.SelectionSet, visiting)...)
		case *ast.FragmentSpread:
			def := doc.Fragments.ForName(s.Name)
			if def == nil {
				continue
			}
			// [CYCLE_GUARD]
			if _, busy := visiting[s.Name]; busy {
				continue
			}
			visiting[s.Name] = struct{}{}
			out = append(out, flatten(doc, def.SelectionSet, visiting)...)
			delete(visiting, s.Name)
		}
	}
	return out
}

func isIntrospection(name string) bool {
	return strings.HasPrefix(name, "__")
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
