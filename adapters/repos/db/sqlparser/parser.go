//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package sqlparser

import (
	"strconv"
	"strings"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

type parser struct {
	lex  *lexer
	tok  token
	peeked *token
}

// Verb tells the caller which statement kind was parsed.
type Verb int

const (
	VerbSelect Verb = iota
	VerbUpdate
	VerbDelete
	VerbTruncate
)

// Parse turns one SQL statement into a canonical query. Supported verbs:
// SELECT, UPDATE ... SET|DROP, DELETE FROM, TRUNCATE.
func Parse(sql string) (*query.Query, Verb, error) {
	p := &parser{lex: newLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, VerbSelect, err
	}
	var q *query.Query
	var err error
	verb := VerbSelect
	switch p.tok.upper() {
	case "SELECT":
		q, err = p.parseSelect()
	case "UPDATE":
		verb = VerbUpdate
		q, err = p.parseUpdate()
	case "DELETE":
		verb = VerbDelete
		q, err = p.parseDelete()
	case "TRUNCATE":
		verb = VerbTruncate
		q, err = p.parseTruncate()
	default:
		return nil, verb, dberrors.ParseSQL("expected SELECT, UPDATE, DELETE or TRUNCATE, got %q", p.tok.text)
	}
	if err != nil {
		return nil, verb, err
	}
	if p.tok.kind == tokPunct && p.tok.text == ";" {
		if err := p.advance(); err != nil {
			return nil, verb, err
		}
	}
	if p.tok.kind != tokEOF {
		return nil, verb, dberrors.ParseSQL("unexpected trailing token %q", p.tok.text)
	}
	redistributeJoinFilters(q)
	return q, verb, nil
}

// redistributeJoinFilters moves WHERE conditions addressing a joined
// namespace ("authors.name LIKE ...") into that join's own filter list,
// where the pre-select evaluates them.
func redistributeJoinFilters(q *query.Query) {
	if len(q.Joins) == 0 {
		return
	}
	kept := q.Entries[:0]
	for _, n := range q.Entries {
		if n.Cond != nil {
			moved := false
			for ji := range q.Joins {
				prefix := q.Joins[ji].Namespace + "."
				if strings.HasPrefix(n.Cond.Field, prefix) {
					cond := *n.Cond
					cond.Field = cond.Field[len(prefix):]
					q.Joins[ji].Entries = append(q.Joins[ji].Entries,
						query.Node{Op: n.Op, Cond: &cond})
					moved = true
					break
				}
			}
			if moved {
				continue
			}
		}
		kept = append(kept, n)
	}
	q.Entries = kept
}

func (p *parser) advance() error {
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peek() (token, error) {
	if p.peeked == nil {
		t, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.peeked = &t
	}
	return *p.peeked, nil
}

func (p *parser) expectKeyword(kw string) error {
	if p.tok.kind != tokIdent || p.tok.upper() != kw {
		return dberrors.ParseSQL("expected %s, got %q", kw, p.tok.text)
	}
	return p.advance()
}

func (p *parser) expectPunct(s string) error {
	if p.tok.kind != tokPunct || p.tok.text != s {
		return dberrors.ParseSQL("expected %q, got %q", s, p.tok.text)
	}
	return p.advance()
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokIdent && p.tok.upper() == kw
}

func (p *parser) parseSelect() (*query.Query, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var aggs []query.AggregateEntry
	var selectFilter []string
	for {
		if p.tok.kind != tokIdent {
			return nil, dberrors.ParseSQL("expected select expression, got %q", p.tok.text)
		}
		name := p.tok.text
		upper := p.tok.upper()
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct && p.tok.text == "(" {
			agg, err := p.parseAggregation(upper)
			if err != nil {
				return nil, err
			}
			aggs = append(aggs, *agg)
		} else if name != "*" {
			selectFilter = append(selectFilter, name)
		}
		if p.tok.kind == tokPunct && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected namespace name, got %q", p.tok.text)
	}
	q := query.New(p.tok.text)
	q.Aggregations = aggs
	q.SelectFilter = selectFilter
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.parseTail(q); err != nil {
		return nil, err
	}
	return q, nil
}

// parseAggregation parses the inside of AGG( ... ) including the optional
// ORDER BY/LIMIT/OFFSET tail.
func (p *parser) parseAggregation(name string) (*query.AggregateEntry, error) {
	var at query.AggType
	switch name {
	case "COUNT":
		at = query.AggCount
	case "COUNT_CACHED":
		at = query.AggCountCached
	case "SUM":
		at = query.AggSum
	case "AVG":
		at = query.AggAvg
	case "MIN":
		at = query.AggMin
	case "MAX":
		at = query.AggMax
	case "FACET":
		at = query.AggFacet
	case "DISTINCT":
		at = query.AggDistinct
	default:
		return nil, dberrors.ParseSQL("unknown function %q in select list", name)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	agg := &query.AggregateEntry{Type: at}
	for {
		if p.tok.kind != tokIdent {
			return nil, dberrors.ParseSQL("expected field in %s(...), got %q", name, p.tok.text)
		}
		if p.tok.text != "*" {
			agg.Fields = append(agg.Fields, p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	for {
		switch {
		case p.isKeyword("ORDER"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("BY"); err != nil {
				return nil, err
			}
			se, err := p.parseSortEntry()
			if err != nil {
				return nil, err
			}
			agg.Sort = append(agg.Sort, *se)
		case p.isKeyword("LIMIT"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			agg.Limit = n
		case p.isKeyword("OFFSET"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			agg.Offset = n
		default:
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return agg, nil
		}
	}
}

func (p *parser) parseUpdate() (*query.Query, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected namespace after UPDATE, got %q", p.tok.text)
	}
	q := query.New(p.tok.text)
	if err := p.advance(); err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isKeyword("SET"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			for {
				ue, err := p.parseSetEntry()
				if err != nil {
					return nil, err
				}
				q.UpdateFields = append(q.UpdateFields, *ue)
				if p.tok.kind == tokPunct && p.tok.text == "," {
					if err := p.advance(); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
			continue
		case p.isKeyword("DROP"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			for {
				if p.tok.kind != tokIdent {
					return nil, dberrors.ParseSQL("expected field after DROP, got %q", p.tok.text)
				}
				q.UpdateFields = append(q.UpdateFields, query.UpdateEntry{
					Column: p.tok.text, Mode: query.UpdateDrop,
				})
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.tok.kind == tokPunct && p.tok.text == "," {
					if err := p.advance(); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
			continue
		}
		break
	}
	if len(q.UpdateFields) == 0 {
		return nil, dberrors.ParseSQL("UPDATE needs SET or DROP")
	}
	if err := p.parseTail(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) parseSetEntry() (*query.UpdateEntry, error) {
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected field after SET, got %q", p.tok.text)
	}
	ue := &query.UpdateEntry{Column: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct && p.tok.text == "[" {
		// array literal
		if err := p.advance(); err != nil {
			return nil, err
		}
		for !(p.tok.kind == tokPunct && p.tok.text == "]") {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			ue.Values = append(ue.Values, v)
			if p.tok.kind == tokPunct && p.tok.text == "," {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		return ue, p.advance()
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	ue.Values = payload.Variants{v}
	// an arithmetic continuation makes it an expression evaluated per
	// row; a bare identifier alone stays a plain string value
	if p.tok.kind == tokPunct && (p.tok.text == "+" || p.tok.text == "-" || p.tok.text == "*" || p.tok.text == "/") {
		expr := v.String()
		for p.tok.kind == tokPunct && (p.tok.text == "+" || p.tok.text == "-" || p.tok.text == "*" || p.tok.text == "/") {
			expr += " " + p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			operand, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			expr += " " + operand.String()
		}
		ue.Values = payload.Variants{payload.String(expr)}
		ue.IsExpression = true
	}
	return ue, nil
}

func (p *parser) parseDelete() (*query.Query, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected namespace after DELETE FROM, got %q", p.tok.text)
	}
	q := query.New(p.tok.text)
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.parseTail(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) parseTruncate() (*query.Query, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected namespace after TRUNCATE, got %q", p.tok.text)
	}
	q := query.New(p.tok.text)
	q.UpdateFields = nil
	err := p.advance()
	return q, err
}

// parseTail handles WHERE, joins, MERGE, EQUAL_POSITION, ORDER BY, LIMIT
// and OFFSET in any reasonable order.
func (p *parser) parseTail(q *query.Query) error {
	for {
		switch {
		case p.isKeyword("WHERE"):
			if err := p.advance(); err != nil {
				return err
			}
			nodes, err := p.parseOrExpr(q)
			if err != nil {
				return err
			}
			q.Entries = append(q.Entries, nodes...)
		case p.isKeyword("LEFT"), p.isKeyword("INNER"), p.isKeyword("JOIN"), p.isKeyword("OR"):
			if err := p.parseJoin(q); err != nil {
				return err
			}
		case p.isKeyword("MERGE"):
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.expectPunct("("); err != nil {
				return err
			}
			sub, err := p.parseSelect()
			if err != nil {
				return err
			}
			if err := p.expectPunct(")"); err != nil {
				return err
			}
			q.MergeQueries = append(q.MergeQueries, query.JoinQuery{Type: query.Merge, Query: *sub})
		case p.isKeyword("EQUAL_POSITION"):
			if err := p.advance(); err != nil {
				return err
			}
			fields, err := p.parseIdentList()
			if err != nil {
				return err
			}
			q.EqualPositions = append(q.EqualPositions, fields)
		case p.isKeyword("ORDER"):
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.expectKeyword("BY"); err != nil {
				return err
			}
			for {
				se, err := p.parseSortEntry()
				if err != nil {
					return err
				}
				q.Sort = append(q.Sort, *se)
				if p.tok.kind == tokPunct && p.tok.text == "," {
					if err := p.advance(); err != nil {
						return err
					}
					continue
				}
				break
			}
		case p.isKeyword("LIMIT"):
			if err := p.advance(); err != nil {
				return err
			}
			n, err := p.parseInt()
			if err != nil {
				return err
			}
			q.Limit = n
		case p.isKeyword("OFFSET"):
			if err := p.advance(); err != nil {
				return err
			}
			n, err := p.parseInt()
			if err != nil {
				return err
			}
			q.Offset = n
		default:
			return nil
		}
	}
}

// parseJoin consumes one [LEFT|INNER|OR INNER] JOIN clause.
func (p *parser) parseJoin(q *query.Query) error {
	jt := query.LeftJoin
	switch {
	case p.isKeyword("LEFT"):
		if err := p.advance(); err != nil {
			return err
		}
	case p.isKeyword("INNER"):
		jt = query.InnerJoin
		if err := p.advance(); err != nil {
			return err
		}
	case p.isKeyword("OR"):
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.expectKeyword("INNER"); err != nil {
			return err
		}
		jt = query.OrInnerJoin
	case p.isKeyword("JOIN"):
		jt = query.InnerJoin
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return err
	}
	if p.tok.kind != tokIdent {
		return dberrors.ParseSQL("expected namespace after JOIN, got %q", p.tok.text)
	}
	jq := query.JoinQuery{Type: jt, Query: *query.New(p.tok.text)}
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return err
	}
	parens := false
	if p.tok.kind == tokPunct && p.tok.text == "(" {
		parens = true
		if err := p.advance(); err != nil {
			return err
		}
	}
	op := query.OpAnd
	for {
		jc, err := p.parseJoinCondition(jq.Namespace)
		if err != nil {
			return err
		}
		jc.Op = op
		jq.On = append(jq.On, *jc)
		if p.isKeyword("AND") {
			op = query.OpAnd
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		if p.isKeyword("OR") {
			// an OR INNER JOIN may follow; only treat OR as a condition
			// separator when the next token is not INNER/JOIN
			nt, err := p.peek()
			if err != nil {
				return err
			}
			up := strings.ToUpper(nt.text)
			if up == "INNER" || up == "JOIN" {
				break
			}
			op = query.OpOr
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	if parens {
		if err := p.expectPunct(")"); err != nil {
			return err
		}
	}
	q.Joins = append(q.Joins, jq)
	if jt == query.InnerJoin || jt == query.OrInnerJoin {
		op := query.OpAnd
		if jt == query.OrInnerJoin {
			op = query.OpOr
		}
		q.Entries = append(q.Entries, query.Node{Op: op, JoinRef: &query.JoinRef{JoinIdx: len(q.Joins) - 1}})
	}
	return nil
}

// parseJoinCondition reads one "a.f = b.g" pair, normalizing which side
// belongs to the joined namespace.
func (p *parser) parseJoinCondition(rightNs string) (*query.JoinCondition, error) {
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected field in ON clause, got %q", p.tok.text)
	}
	left := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseCondOperator()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected field in ON clause, got %q", p.tok.text)
	}
	right := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	jc := &query.JoinCondition{Cond: cond}
	jc.LeftField, jc.RightField = stripNs(left, rightNs), stripNs(right, rightNs)
	if strings.HasPrefix(left, rightNs+".") && !strings.HasPrefix(right, rightNs+".") {
		jc.LeftField, jc.RightField = stripNs(right, rightNs), stripNs(left, rightNs)
		jc.Cond = flipCond(cond)
	}
	return jc, nil
}

func stripNs(field, ns string) string {
	if strings.HasPrefix(field, ns+".") {
		return field[len(ns)+1:]
	}
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[i+1:]
	}
	return field
}

func flipCond(c query.CondType) query.CondType {
	switch c {
	case query.CondLt:
		return query.CondGt
	case query.CondLe:
		return query.CondGe
	case query.CondGt:
		return query.CondLt
	case query.CondGe:
		return query.CondLe
	default:
		return c
	}
}

// parseOrExpr: andExpr (OR andExpr)*
func (p *parser) parseOrExpr(q *query.Query) ([]query.Node, error) {
	nodes, err := p.parseAndExpr(q)
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		nt, err := p.peek()
		if err != nil {
			return nil, err
		}
		up := strings.ToUpper(nt.text)
		if up == "INNER" || up == "JOIN" {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAndExpr(q)
		if err != nil {
			return nil, err
		}
		next[0].Op = query.OpOr
		nodes = append(nodes, next...)
	}
	return nodes, nil
}

// parseAndExpr: [NOT] primary (AND [NOT] primary)*
func (p *parser) parseAndExpr(q *query.Query) ([]query.Node, error) {
	var nodes []query.Node
	for {
		op := query.OpAnd
		if p.isKeyword("NOT") {
			op = query.OpNot
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		n, err := p.parsePrimary(q)
		if err != nil {
			return nil, err
		}
		if n.Op != query.OpNot {
			n.Op = op
		}
		nodes = append(nodes, *n)
		if p.isKeyword("AND") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		return nodes, nil
	}
}

func (p *parser) parsePrimary(q *query.Query) (*query.Node, error) {
	if p.tok.kind == tokPunct && p.tok.text == "(" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		sub, err := p.parseOrExpr(q)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &query.Node{Bracket: &query.Bracket{Nodes: sub}}, nil
	}
	if p.isKeyword("FALSE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &query.Node{AlwaysFalse: true}, nil
	}
	if p.isKeyword("ST_DWITHIN") {
		return p.parseDWithin()
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected condition, got %q", p.tok.text)
	}
	field := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseCondition(field)
}

func (p *parser) parseCondition(field string) (*query.Node, error) {
	switch {
	case p.isKeyword("IS"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		not := false
		if p.isKeyword("NOT") {
			not = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.isKeyword("NULL") || p.isKeyword("EMPTY") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			cond := query.CondEmpty
			if not {
				cond = query.CondAny
			}
			return &query.Node{Cond: &query.CondEntry{Field: field, Cond: cond}}, nil
		}
		return nil, dberrors.ParseSQL("expected NULL after IS [NOT]")
	case p.isKeyword("IN"), p.isKeyword("ALLSET"):
		cond := query.CondSet
		if p.isKeyword("ALLSET") {
			cond = query.CondAllSet
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		vals, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return &query.Node{Cond: &query.CondEntry{Field: field, Cond: cond, Values: vals}}, nil
	case p.isKeyword("RANGE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		vals, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		if len(vals) != 2 {
			return nil, dberrors.ParseSQL("RANGE needs exactly 2 values")
		}
		return &query.Node{Cond: &query.CondEntry{Field: field, Cond: query.CondRange, Values: vals}}, nil
	case p.isKeyword("LIKE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokString {
			return nil, dberrors.ParseSQL("LIKE needs a string pattern")
		}
		v := payload.String(p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &query.Node{Cond: &query.CondEntry{Field: field, Cond: query.CondLike, Values: payload.Variants{v}}}, nil
	}
	cond, err := p.parseCondOperator()
	if err != nil {
		return nil, err
	}
	// != has no condition of its own in the canonical tree: it parses as
	// NOT(field = value)
	negated := cond == condNotEq
	if negated {
		cond = query.CondEq
	}
	node := &query.Node{}
	if negated {
		node.Op = query.OpNot
	}
	// field-to-field comparison
	if p.tok.kind == tokIdent && !p.isKeyword("TRUE") && !p.isKeyword("FALSE") && !p.isKeyword("NULL") {
		second := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		node.BetweenFields = &query.BetweenFieldsEntry{
			FirstField: field, Cond: cond, SecondField: second,
		}
		return node, nil
	}
	if p.tok.kind == tokPunct && p.tok.text == "(" {
		vals, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		node.Cond = &query.CondEntry{Field: field, Cond: cond, Values: vals}
		return node, nil
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	node.Cond = &query.CondEntry{Field: field, Cond: cond, Values: payload.Variants{v}}
	return node, nil
}

func (p *parser) parseCondOperator() (query.CondType, error) {
	if p.tok.kind != tokPunct {
		return query.CondAny, dberrors.ParseSQL("expected condition operator, got %q", p.tok.text)
	}
	var cond query.CondType
	switch p.tok.text {
	case "=", "==":
		cond = query.CondEq
	case "!=", "<>":
		cond = query.CondEq // negation handled by the caller via NOT
	case "<":
		cond = query.CondLt
	case "<=":
		cond = query.CondLe
	case ">":
		cond = query.CondGt
	case ">=":
		cond = query.CondGe
	default:
		return query.CondAny, dberrors.ParseSQL("unknown operator %q", p.tok.text)
	}
	negated := p.tok.text == "!=" || p.tok.text == "<>"
	if err := p.advance(); err != nil {
		return cond, err
	}
	if negated {
		return condNotEq, nil
	}
	return cond, nil
}

// condNotEq is an internal marker: != becomes NOT(field = v) at the node
// level because the canonical tree has no NotEq condition.
const condNotEq = query.CondType(-1)

func (p *parser) parseDWithin() (*query.Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected field in ST_DWithin, got %q", p.tok.text)
	}
	field := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ST_GEOMFROMTEXT"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, dberrors.ParseSQL("ST_GeomFromText needs a WKT string")
	}
	x, y, err := parsePointWKT(p.tok.text)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	dist, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	d, _ := dist.AsFloat()
	return &query.Node{Cond: &query.CondEntry{
		Field: field,
		Cond:  query.CondDWithin,
		Values: payload.Variants{
			payload.Double(x), payload.Double(y), payload.Double(d),
		},
	}}, nil
}

func parsePointWKT(wkt string) (float64, float64, error) {
	s := strings.TrimSpace(strings.ToLower(wkt))
	if !strings.HasPrefix(s, "point") {
		return 0, 0, dberrors.ParseSQL("unsupported WKT %q", wkt)
	}
	s = strings.TrimSpace(s[len("point"):])
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, dberrors.ParseSQL("bad point WKT %q", wkt)
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, dberrors.ParseSQL("bad point coordinate %q", parts[0])
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, dberrors.ParseSQL("bad point coordinate %q", parts[1])
	}
	return x, y, nil
}

func (p *parser) parseSortEntry() (*query.SortEntry, error) {
	if p.tok.kind != tokIdent {
		return nil, dberrors.ParseSQL("expected sort field, got %q", p.tok.text)
	}
	se := &query.SortEntry{Field: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct && p.tok.text == "(" {
		vals, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		se.ForcedValues = vals
	}
	if p.isKeyword("ASC") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if p.isKeyword("DESC") {
		se.Desc = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return se, nil
}

func (p *parser) parseIdentList() ([]string, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var out []string
	for {
		if p.tok.kind != tokIdent {
			return nil, dberrors.ParseSQL("expected field name, got %q", p.tok.text)
		}
		out = append(out, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return out, p.expectPunct(")")
}

func (p *parser) parseValueList() (payload.Variants, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var out payload.Variants
	for {
		if p.tok.kind == tokPunct && p.tok.text == ")" {
			break
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.tok.kind == tokPunct && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return out, p.expectPunct(")")
}

func (p *parser) parseValue() (payload.Variant, error) {
	switch {
	case p.tok.kind == tokString:
		v := payload.String(p.tok.text)
		return v, p.advance()
	case p.tok.kind == tokNumber:
		text := p.tok.text
		if err := p.advance(); err != nil {
			return payload.Variant{}, err
		}
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return payload.Variant{}, dberrors.ParseSQL("bad number %q", text)
			}
			return payload.Double(f), nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return payload.Variant{}, dberrors.ParseSQL("bad number %q", text)
		}
		return payload.Int64Value(n), nil
	case p.isKeyword("TRUE"):
		return payload.Bool(true), p.advance()
	case p.isKeyword("FALSE"):
		return payload.Bool(false), p.advance()
	case p.isKeyword("NULL"):
		return payload.Null(), p.advance()
	case p.tok.kind == tokIdent:
		// bare identifier: value-side field reference rendered as string
		v := payload.String(p.tok.text)
		return v, p.advance()
	default:
		return payload.Variant{}, dberrors.ParseSQL("expected value, got %q", p.tok.text)
	}
}
