// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"errors"
	"strings"
	"testing"
)

func TestNewValidator(t *testing.T) {
	v, err := NewValidator(DefaultSpec())
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	if v == nil {
		t.Fatal("NewValidator returned nil validator")
	}
}

func TestNewValidator_RejectsMalformedSpec(t *testing.T) {
	t.Run("nil spec", func(t *testing.T) {
		_, err := NewValidator(nil)
		if !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("empty table", func(t *testing.T) {
		spec := DefaultSpec()
		spec.Table = ""
		_, err := NewValidator(spec)
		if !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("duplicate alternative", func(t *testing.T) {
		spec := DefaultSpec()
		spec.TypeValues = append(spec.TypeValues, "TRANSFER")
		_, err := NewValidator(spec)
		if !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("ambiguous prefix alternative", func(t *testing.T) {
		spec := DefaultSpec()
		spec.TypeValues = append(spec.TypeValues, "CASH")
		_, err := NewValidator(spec)
		if !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("zero literal width", func(t *testing.T) {
		spec := DefaultSpec()
		spec.MaxLimitDigits = 0
		_, err := NewValidator(spec)
		if !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})
}

// Every sentence in the example corpus must be accepted: the corpus
// covers each production at least once.
func TestValidate_Soundness(t *testing.T) {
	v := MustValidator()
	for _, q := range ExampleQueries() {
		if err := v.Validate(q); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", q, err)
		}
	}
}

func TestValidate_AcceptsClauseCombinations(t *testing.T) {
	v := MustValidator()
	valid := []string{
		"SELECT min(amount) FROM Transactions;",
		"SELECT max(oldbalanceOrg) FROM Transactions;",
		"SELECT count(isFraud) FROM Transactions;",
		"SELECT step, count(*) FROM Transactions GROUP BY step LIMIT 50;",
		"SELECT type, isFraud, count(*) FROM Transactions GROUP BY type, isFraud;",
		"SELECT count(*) FROM Transactions WHERE amount <= 999999999999.99;",
		"SELECT count(*) FROM Transactions WHERE step = 1;",
		"SELECT count(*) FROM Transactions ORDER BY count(*) DESC;",
		"SELECT type FROM Transactions ORDER BY type ASC LIMIT 1;",
		"SELECT type FROM Transactions ORDER BY type, count(*) DESC;",
		"SELECT count(*) FROM Transactions WHERE step BETWEEN 1 AND 744 AND isFraud != 0 AND type != 'DEBIT';",
		"SELECT avg(newbalanceDest) FROM Transactions WHERE type IN ('DEBIT') LIMIT 9999;",
	}
	for _, q := range valid {
		if err := v.Validate(q); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", q, err)
		}
	}
}

func TestValidate_RejectsDangerousAndMalformed(t *testing.T) {
	v := MustValidator()
	invalid := []struct {
		sql    string
		reason string
	}{
		{"DROP TABLE Transactions;", "DDL is not derivable"},
		{"DELETE FROM Transactions WHERE isFraud = 1;", "DML is not derivable"},
		{"SELECT * FROM Transactions;", "bare star selection"},
		{"SELECT count(*) FROM other_table;", "non-whitelisted table"},
		{"SELECT count(*) FROM Transactions WHERE type = 'INVALID';", "enum value outside the closed set"},
		{"SELECT count(*) FROM Transactions", "missing terminator"},
		{"SELECT count(*) FROM Transactions;;", "second terminator"},
		{"SELECT count(*) FROM Transactions; SELECT 1;", "second statement"},
		{"SELECT nameOrig FROM Transactions;", "non-groupable column selection"},
		{"SELECT count(*) FROM Transactions WHERE isFraud = 1 OR isFraud = 0;", "OR is not in the grammar"},
		{"SELECT count(*) FROM Transactions WHERE (isFraud = 1);", "parentheses are not in the grammar"},
		{"SELECT count(*) FROM Transactions WHERE step > 1000;", "step literal exceeds three digits"},
		{"SELECT count(*) FROM Transactions WHERE step > 0;", "step literal has leading zero"},
		{"SELECT count(*) FROM Transactions LIMIT 10000;", "limit literal exceeds four digits"},
		{"SELECT count(*) FROM Transactions LIMIT 0;", "limit literal must be positive"},
		{"SELECT count(*) FROM Transactions WHERE amount > 1234567890123;", "amount exceeds twelve digits"},
		{"SELECT count(*) FROM Transactions WHERE amount > 10.999;", "fraction exceeds two digits"},
		{"SELECT median(amount) FROM Transactions;", "aggregate outside the closed set"},
		{"SELECT count(*) FROM Transactions GROUP BY amount;", "amount is not groupable"},
		{"SELECT count(*)  FROM Transactions;", "doubled separator space"},
		{"select count(*) FROM Transactions;", "keywords are case-sensitive"},
		{"SELECT count(*) FROM Transactions WHERE type='TRANSFER';", "missing operator spacing"},
		{"", "empty input"},
	}
	for _, tc := range invalid {
		err := v.Validate(tc.sql)
		if err == nil {
			t.Errorf("Validate(%q) accepted; want rejection (%s)", tc.sql, tc.reason)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Validate(%q) returned %T, want *ParseError", tc.sql, err)
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	v := MustValidator()
	inputs := append(ExampleQueries(),
		"DROP TABLE Transactions;",
		"SELECT count(*) FROM Transactions WHERE step > 1000;",
	)
	for _, q := range inputs {
		first := v.Validate(q)
		second := v.Validate(q)
		if (first == nil) != (second == nil) {
			t.Fatalf("Validate(%q) outcome changed between calls: %v then %v", q, first, second)
		}
		if first != nil && first.Error() != second.Error() {
			t.Errorf("Validate(%q) diagnostic changed: %q then %q", q, first.Error(), second.Error())
		}
	}
}

func TestParseError_Position(t *testing.T) {
	v := MustValidator()
	err := v.Validate("SELECT count(*) FROM Transactions EXTRA;")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Pos != len("SELECT count(*) FROM Transactions") {
		t.Errorf("Pos = %d, want %d", pe.Pos, len("SELECT count(*) FROM Transactions"))
	}
	if !strings.Contains(pe.Error(), "parse error at byte") {
		t.Errorf("unexpected diagnostic: %q", pe.Error())
	}
}

func TestSpecText_CompoundKeywordSpacing(t *testing.T) {
	text := DefaultSpec().Text()
	// Whitespace is part of the compound keyword tokens; the artifact
	// must carry it bit-exact or generation-side tokenization diverges
	// from the validator.
	for _, tok := range []string{
		`KW_WHERE: " WHERE "`,
		`KW_AND: " AND "`,
		`KW_GROUP_BY: " GROUP BY "`,
		`KW_ORDER_BY: " ORDER BY "`,
		`KW_LIMIT: " LIMIT "`,
		`KW_BETWEEN: " BETWEEN "`,
		`KW_IN: " IN "`,
		`KW_ASC: " ASC"`,
		`KW_DESC: " DESC"`,
	} {
		if !strings.Contains(text, tok) {
			t.Errorf("grammar text missing token definition %q", tok)
		}
	}
}
