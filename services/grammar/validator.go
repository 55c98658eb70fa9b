// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSpec is returned by NewValidator when the grammar
	// specification itself is malformed or ambiguous.
	ErrInvalidSpec = errors.New("invalid grammar specification")
)

// ParseError reports why a candidate query is not derivable from the
// grammar, with the byte offset of the first offending character.
type ParseError struct {
	// Pos is the byte offset into the input where parsing failed.
	Pos int

	// Msg describes what the grammar expected at Pos.
	Msg string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at byte %d: %s", e.Pos, e.Msg)
}

// Validator is a deterministic, total parser for the closed query
// language. Validate either accepts the input or returns a ParseError;
// there are no partial or ambiguous outcomes.
//
// # Thread Safety
//
// A Validator holds no mutable state after construction and is safe
// for concurrent use.
type Validator struct {
	spec *Spec

	// Choice sets, precomputed from the spec. aggOpen holds the
	// aggregate names with the opening paren appended ("count(", ...)
	// so aggregate calls and bare groupable columns can never collide
	// at a choice point.
	aggOpen     []string
	groupable   []string
	numeric     []string
	typeLits    []string
	compareOps  []string
	condColumns []string
}

// NewValidator compiles a Spec into a Validator.
//
// Construction fails loudly if the specification is unusable: empty
// vocabulary sets, duplicate alternatives, a literal that is a strict
// prefix of a sibling alternative (which would make a choice point
// ambiguous), nonsensical literal widths, or a vocabulary entry
// missing from the textual artifact. These are build-time invariants,
// checked once; Validate never re-checks them.
//
// Inputs:
//
//	spec - The grammar specification. Must not be nil.
//
// Outputs:
//
//	*Validator - Ready for concurrent use.
//	error - Wraps ErrInvalidSpec if the spec is malformed.
func NewValidator(spec *Spec) (*Validator, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: spec must not be nil", ErrInvalidSpec)
	}
	if spec.Table == "" {
		return nil, fmt.Errorf("%w: table name is empty", ErrInvalidSpec)
	}
	if spec.MaxStepDigits <= 0 || spec.MaxAmountDigits <= 0 ||
		spec.MaxFractionDigits <= 0 || spec.MaxLimitDigits <= 0 {
		return nil, fmt.Errorf("%w: literal width bounds must be positive", ErrInvalidSpec)
	}

	v := &Validator{
		spec:       spec,
		groupable: append([]string(nil), spec.GroupableColumns...),
		numeric:   append([]string(nil), spec.NumericColumns...),
		typeLits:  append([]string(nil), spec.TypeValues...),
		// Longest-first so ">=" and "<=" win over their one-byte
		// prefixes; the only choice set that is not prefix-free.
		compareOps: []string{">=", "<=", "=", ">", "<"},
	}
	for _, agg := range spec.Aggregates {
		v.aggOpen = append(v.aggOpen, agg+"(")
	}
	// Condition dispatch keywords. The WHERE productions are keyed by
	// these four columns only.
	v.condColumns = []string{"step", "type", "isFraud", "amount"}

	choiceSets := map[string][]string{
		"aggregates":        v.aggOpen,
		"groupable columns": v.groupable,
		"numeric columns":   v.numeric,
		"type values":       v.typeLits,
		"condition columns": v.condColumns,
		"select items":      append(append([]string(nil), v.aggOpen...), v.groupable...),
	}
	for name, set := range choiceSets {
		if len(set) == 0 {
			return nil, fmt.Errorf("%w: %s set is empty", ErrInvalidSpec, name)
		}
		if err := checkUnambiguous(name, set); err != nil {
			return nil, err
		}
	}

	// The textual artifact and the vocabulary must agree: the
	// generation side constrains on the text while this parser
	// enforces the vocabulary, and the two must never diverge.
	text := spec.Text()
	vocab := []string{spec.Table}
	vocab = append(vocab, spec.NumericColumns...)
	vocab = append(vocab, spec.GroupableColumns...)
	vocab = append(vocab, spec.Aggregates...)
	vocab = append(vocab, spec.TypeValues...)
	for _, lit := range vocab {
		if !strings.Contains(text, lit) {
			return nil, fmt.Errorf("%w: %q missing from grammar text", ErrInvalidSpec, lit)
		}
	}
	return v, nil
}

// checkUnambiguous rejects choice sets where one alternative is a
// duplicate of, or a strict prefix of, another. Exact-literal matching
// is only deterministic when every choice point is prefix-free.
func checkUnambiguous(name string, set []string) error {
	for i, a := range set {
		for j, b := range set {
			if i == j {
				continue
			}
			if a == b {
				return fmt.Errorf("%w: duplicate alternative %q in %s", ErrInvalidSpec, a, name)
			}
			if strings.HasPrefix(b, a) {
				return fmt.Errorf("%w: %q is a prefix of %q in %s", ErrInvalidSpec, a, b, name)
			}
		}
	}
	return nil
}

// MustValidator builds a Validator from the default spec and panics on
// failure. Intended for process bootstrap, where a broken grammar must
// abort startup rather than fail per-call.
func MustValidator() *Validator {
	v, err := NewValidator(DefaultSpec())
	if err != nil {
		panic(err)
	}
	return v
}

// Validate parses sql against the grammar.
//
// Deterministic and total: the same input always yields the same
// outcome, and every input either parses (nil) or fails with a
// *ParseError diagnostic. No side effects.
func (v *Validator) Validate(sql string) error {
	s := &scanner{in: sql, v: v}
	if err := s.parseStart(); err != nil {
		return err
	}
	if s.pos != len(s.in) {
		return s.fail("end of input")
	}
	return nil
}

// scanner is single-use parse state over one input string.
type scanner struct {
	in  string
	pos int
	v   *Validator
}

func (s *scanner) fail(expected string) error {
	return &ParseError{Pos: s.pos, Msg: "expected " + expected}
}

// lit consumes the exact literal if present.
func (s *scanner) lit(text string) bool {
	if strings.HasPrefix(s.in[s.pos:], text) {
		s.pos += len(text)
		return true
	}
	return false
}

func (s *scanner) expect(text, what string) error {
	if !s.lit(text) {
		return s.fail(what)
	}
	return nil
}

// alt consumes the first matching alternative. Choice sets are
// prefix-free (enforced at construction), so at most one can match.
func (s *scanner) alt(set []string) (string, bool) {
	for _, a := range set {
		if s.lit(a) {
			return a, true
		}
	}
	return "", false
}

// start := select_stmt ";"
func (s *scanner) parseStart() error {
	if err := s.expect("SELECT ", `"SELECT "`); err != nil {
		return err
	}
	if err := s.parseSelectList(); err != nil {
		return err
	}
	if err := s.expect(" FROM ", `" FROM "`); err != nil {
		return err
	}
	if err := s.expect(s.v.spec.Table, "table name "+s.v.spec.Table); err != nil {
		return err
	}
	if s.lit(" WHERE ") {
		if err := s.parseWhere(); err != nil {
			return err
		}
	}
	if s.lit(" GROUP BY ") {
		if err := s.parseGroupBy(); err != nil {
			return err
		}
	}
	if s.lit(" ORDER BY ") {
		if err := s.parseOrderBy(); err != nil {
			return err
		}
	}
	if s.lit(" LIMIT ") {
		if err := s.parseLimit(); err != nil {
			return err
		}
	}
	return s.expect(";", `";"`)
}

// select_list := select_item ("," " " select_item)*
func (s *scanner) parseSelectList() error {
	if err := s.parseSelectItem(); err != nil {
		return err
	}
	for s.lit(", ") {
		if err := s.parseSelectItem(); err != nil {
			return err
		}
	}
	return nil
}

// select_item := agg_func | groupable_col
func (s *scanner) parseSelectItem() error {
	if ok, err := s.tryAggFunc(); ok || err != nil {
		return err
	}
	if _, ok := s.alt(s.v.groupable); ok {
		return nil
	}
	return s.fail("aggregate call or groupable column")
}

// tryAggFunc consumes an aggregate call if one starts here. Returns
// (false, nil) when the input does not begin with an aggregate name;
// a malformed argument after a consumed name is a hard error.
func (s *scanner) tryAggFunc() (bool, error) {
	name, ok := s.alt(s.v.aggOpen)
	if !ok {
		return false, nil
	}
	if name == "count(" && s.lit("*") {
		return true, s.expect(")", `")"`)
	}
	if _, ok := s.alt(s.v.numeric); !ok {
		return true, s.fail("numeric column")
	}
	return true, s.expect(")", `")"`)
}

// where_clause := condition (" AND " condition)*
func (s *scanner) parseWhere() error {
	if err := s.parseCondition(); err != nil {
		return err
	}
	for s.lit(" AND ") {
		if err := s.parseCondition(); err != nil {
			return err
		}
	}
	return nil
}

// condition := step | type | fraud | amount condition, keyed by the
// leading column name. The four keywords are prefix-free, so dispatch
// is deterministic.
func (s *scanner) parseCondition() error {
	col, ok := s.alt(s.v.condColumns)
	if !ok {
		return s.fail("condition column (step, type, isFraud, amount)")
	}
	switch col {
	case "step":
		return s.parseNumericCondition(s.scanStepNum, "step literal (1-999)")
	case "amount":
		return s.parseNumericCondition(s.scanAmountNum, "amount literal")
	case "type":
		return s.parseTypeCondition()
	case "isFraud":
		return s.parseFraudCondition()
	}
	return s.fail("condition")
}

// parseNumericCondition handles both the comparison and BETWEEN forms
// shared by step and amount conditions. scan consumes one literal of
// the column's terminal pattern.
func (s *scanner) parseNumericCondition(scan func() bool, what string) error {
	if s.lit(" BETWEEN ") {
		if !scan() {
			return s.fail(what)
		}
		if err := s.expect(" AND ", `" AND "`); err != nil {
			return err
		}
		if !scan() {
			return s.fail(what)
		}
		return nil
	}
	if err := s.expect(" ", "space before comparison operator"); err != nil {
		return err
	}
	if _, ok := s.alt(s.v.compareOps); !ok {
		return s.fail("comparison operator (= > >= < <=)")
	}
	if err := s.expect(" ", "space after comparison operator"); err != nil {
		return err
	}
	if !scan() {
		return s.fail(what)
	}
	return nil
}

// type_condition := "type" (" = " | " != ") type_literal
//                 | "type" " IN " "(" type_list ")"
func (s *scanner) parseTypeCondition() error {
	if s.lit(" IN ") {
		if err := s.expect("(", `"("`); err != nil {
			return err
		}
		if err := s.parseTypeLiteral(); err != nil {
			return err
		}
		for s.lit(", ") {
			if err := s.parseTypeLiteral(); err != nil {
				return err
			}
		}
		return s.expect(")", `")"`)
	}
	if !s.lit(" = ") && !s.lit(" != ") {
		return s.fail(`" = ", " != " or " IN "`)
	}
	return s.parseTypeLiteral()
}

func (s *scanner) parseTypeLiteral() error {
	if err := s.expect("'", "opening quote"); err != nil {
		return err
	}
	if _, ok := s.alt(s.v.typeLits); !ok {
		return s.fail("type value (CASH-IN, CASH-OUT, DEBIT, PAYMENT, TRANSFER)")
	}
	return s.expect("'", "closing quote")
}

// fraud_condition := "isFraud" (" = " | " != ") ("0" | "1")
func (s *scanner) parseFraudCondition() error {
	if !s.lit(" = ") && !s.lit(" != ") {
		return s.fail(`" = " or " != "`)
	}
	if !s.lit("0") && !s.lit("1") {
		return s.fail("fraud flag (0 or 1)")
	}
	return nil
}

// group_by_clause := groupable_col ("," " " groupable_col)*
func (s *scanner) parseGroupBy() error {
	if _, ok := s.alt(s.v.groupable); !ok {
		return s.fail("groupable column")
	}
	for s.lit(", ") {
		if _, ok := s.alt(s.v.groupable); !ok {
			return s.fail("groupable column")
		}
	}
	return nil
}

// order_by_clause := order_item ("," " " order_item)*
// order_item := (groupable_col | agg_func) (" ASC" | " DESC")?
func (s *scanner) parseOrderBy() error {
	if err := s.parseOrderItem(); err != nil {
		return err
	}
	for s.lit(", ") {
		if err := s.parseOrderItem(); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) parseOrderItem() error {
	if ok, err := s.tryAggFunc(); err != nil {
		return err
	} else if !ok {
		if _, ok := s.alt(s.v.groupable); !ok {
			return s.fail("order target (groupable column or aggregate)")
		}
	}
	if s.lit(" ASC") || s.lit(" DESC") {
		return nil
	}
	return nil
}

// limit_clause := LIMIT_NUM
func (s *scanner) parseLimit() error {
	if !s.scanBoundedInt(s.v.spec.MaxLimitDigits) {
		return s.fail("limit literal (1-9999)")
	}
	return nil
}

// scanStepNum consumes STEP_NUM: [1-9][0-9]{0,MaxStepDigits-1},
// maximal munch.
func (s *scanner) scanStepNum() bool {
	return s.scanBoundedInt(s.v.spec.MaxStepDigits)
}

// scanBoundedInt consumes a nonzero-leading integer of at most max
// digits. Maximal munch within the bound; a digit beyond the bound is
// left in place and surfaces as a mismatch on the following token.
func (s *scanner) scanBoundedInt(max int) bool {
	if s.pos >= len(s.in) || s.in[s.pos] < '1' || s.in[s.pos] > '9' {
		return false
	}
	n := 1
	for s.pos+n < len(s.in) && n < max && isDigit(s.in[s.pos+n]) {
		n++
	}
	s.pos += n
	return true
}

// scanAmountNum consumes AMOUNT_NUM: [0-9]{1,MaxAmountDigits} with an
// optional "." fraction of at most MaxFractionDigits digits.
func (s *scanner) scanAmountNum() bool {
	if s.pos >= len(s.in) || !isDigit(s.in[s.pos]) {
		return false
	}
	n := 1
	for s.pos+n < len(s.in) && n < s.v.spec.MaxAmountDigits && isDigit(s.in[s.pos+n]) {
		n++
	}
	s.pos += n
	// Optional fraction. Only consumed when a digit follows the dot,
	// matching the terminal pattern.
	if s.pos+1 < len(s.in) && s.in[s.pos] == '.' && isDigit(s.in[s.pos+1]) {
		f := 1
		for s.pos+1+f < len(s.in) && f < s.v.spec.MaxFractionDigits && isDigit(s.in[s.pos+1+f]) {
			f++
		}
		s.pos += 1 + f
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
