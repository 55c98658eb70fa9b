// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package grammar defines the closed query language for the analytics
// engine and the deterministic validator that enforces it.
//
// The language is a strict, read-only subset of ClickHouse SQL over a
// single whitelisted table. Every legal sentence is one SELECT
// statement; no derivation can produce a second statement, a DDL/DML
// keyword, or an identifier outside the whitelist. Safety is
// structural: the grammar simply cannot express dangerous constructs.
//
// The same Spec is consumed by two collaborators that must never
// diverge: the generation adapter, which ships Spec.Text() to the
// language model as the hard output constraint, and the Validator,
// which parses candidate SQL against the identical rules.
package grammar

// Table is the only table name any legal sentence can reference.
const Table = "Transactions"

// Spec is the grammar specification: a fixed vocabulary plus the
// textual production-rule artifact built over it. Immutable after
// construction; safe to share between goroutines.
type Spec struct {
	// Table is the single whitelisted table name.
	Table string

	// NumericColumns may appear inside aggregate calls.
	NumericColumns []string

	// GroupableColumns may appear bare in the select list, in
	// GROUP BY, and as ORDER BY targets.
	GroupableColumns []string

	// Aggregates are the callable aggregate function names.
	// "count" additionally accepts a bare "*" argument.
	Aggregates []string

	// TypeValues is the closed enum of type literals.
	TypeValues []string

	// Digit-count bounds for the numeric terminals. These mirror the
	// fixed-width patterns in the text artifact and forbid extreme or
	// malformed literals.
	MaxStepDigits     int // STEP_NUM:   [1-9][0-9]{0,MaxStepDigits-1}
	MaxAmountDigits   int // AMOUNT_NUM: [0-9]{1,MaxAmountDigits}
	MaxFractionDigits int // optional .[0-9]{1,MaxFractionDigits}
	MaxLimitDigits    int // LIMIT_NUM:  [1-9][0-9]{0,MaxLimitDigits-1}
}

// DefaultSpec returns the production grammar specification.
//
// The vocabulary matches the Transactions table schema:
//
//	step      UInt16  time step (1-744, one hour per step)
//	type      String  CASH-IN, CASH-OUT, DEBIT, PAYMENT, TRANSFER
//	amount    Float64 transaction amount
//	isFraud   UInt8   anomaly flag (0 normal, 1 anomalous)
//	old/new balance columns for origin and destination agents
func DefaultSpec() *Spec {
	return &Spec{
		Table: Table,
		NumericColumns: []string{
			"step", "amount",
			"oldbalanceOrg", "newbalanceOrig",
			"oldbalanceDest", "newbalanceDest",
			"isFraud",
		},
		GroupableColumns: []string{"type", "isFraud", "step"},
		Aggregates:       []string{"count", "sum", "avg", "min", "max"},
		TypeValues: []string{
			"CASH-IN", "CASH-OUT", "DEBIT", "PAYMENT", "TRANSFER",
		},
		MaxStepDigits:     3,
		MaxAmountDigits:   12,
		MaxFractionDigits: 2,
		MaxLimitDigits:    4,
	}
}

// Text returns the textual grammar artifact in Lark syntax.
//
// This string is shipped verbatim to the generation collaborator as
// its decoding constraint. Spacing is significant: compound keyword
// tokens carry their surrounding spaces (" WHERE ", " AND ", ...) so
// tokenization is deterministic. NewValidator cross-checks the
// vocabulary against this text at construction time.
func (s *Spec) Text() string {
	return larkText
}

const larkText = `// Safe, read-only analytics queries over the Transactions table.
// Only SELECT statements are derivable. All tables and columns are
// whitelisted; numeric literals are width-bounded.

// -------------------- Tokens --------------------
// Compound keyword tokens include their surrounding spaces so the
// grammar stays conflict-free under an LALR lexer.
KW_WHERE: " WHERE "
KW_AND: " AND "
KW_GROUP_BY: " GROUP BY "
KW_ORDER_BY: " ORDER BY "
KW_LIMIT: " LIMIT "
KW_BETWEEN: " BETWEEN "
KW_IN: " IN "
KW_ASC: " ASC"
KW_DESC: " DESC"

SP: " "
COMMA: ","
SEMI: ";"
LPAREN: "("
RPAREN: ")"
STAR: "*"

// -------------------- Start --------------------
start: select_stmt SEMI

select_stmt: "SELECT" SP select_list SP "FROM" SP table_name where_clause? group_by_clause? order_by_clause? limit_clause?

select_list: select_item (COMMA SP select_item)*

select_item: agg_func
           | groupable_col

agg_func: "count" LPAREN STAR RPAREN
        | "count" LPAREN numeric_col RPAREN
        | "sum" LPAREN numeric_col RPAREN
        | "avg" LPAREN numeric_col RPAREN
        | "min" LPAREN numeric_col RPAREN
        | "max" LPAREN numeric_col RPAREN

// -------------------- Table (whitelisted) --------------------
table_name: "Transactions"

// -------------------- Columns (whitelisted) --------------------
numeric_col: "step" | "amount" | "oldbalanceOrg" | "newbalanceOrig" | "oldbalanceDest" | "newbalanceDest" | "isFraud"

groupable_col: "type" | "isFraud" | "step"

// -------------------- WHERE --------------------
where_clause: KW_WHERE condition and_condition*

and_condition: KW_AND condition

condition: step_condition
         | type_condition
         | fraud_condition
         | amount_condition

step_condition: "step" SP compare_op SP STEP_NUM
              | "step" KW_BETWEEN STEP_NUM KW_AND STEP_NUM

type_condition: "type" SP "=" SP type_literal
              | "type" SP "!=" SP type_literal
              | "type" KW_IN LPAREN type_list RPAREN

type_literal: "'" type_value "'"
type_value: "CASH-IN" | "CASH-OUT" | "DEBIT" | "PAYMENT" | "TRANSFER"
type_list: type_literal (COMMA SP type_literal)*

fraud_condition: "isFraud" SP "=" SP FRAUD_VAL
               | "isFraud" SP "!=" SP FRAUD_VAL

amount_condition: "amount" SP compare_op SP AMOUNT_NUM
                | "amount" KW_BETWEEN AMOUNT_NUM KW_AND AMOUNT_NUM

compare_op: "=" | ">" | ">=" | "<" | "<="

// -------------------- GROUP BY --------------------
group_by_clause: KW_GROUP_BY groupable_col (COMMA SP groupable_col)*

// -------------------- ORDER BY --------------------
order_by_clause: KW_ORDER_BY order_item (COMMA SP order_item)*

order_item: order_target order_dir?

order_target: groupable_col
            | agg_func

order_dir: KW_ASC | KW_DESC

// -------------------- LIMIT --------------------
limit_clause: KW_LIMIT LIMIT_NUM

// -------------------- Terminal Patterns --------------------
// Step: 1-999 (covers the 744 simulated hours)
STEP_NUM: /[1-9][0-9]{0,2}/

// Amount: up to 12 digits with an optional 2-decimal fraction
AMOUNT_NUM: /[0-9]{1,12}(\.[0-9]{1,2})?/

FRAUD_VAL: "0" | "1"

// Limit: 1-9999
LIMIT_NUM: /[1-9][0-9]{0,3}/
`

// ToolDescription returns the operation summary handed to the
// generation collaborator alongside the grammar text.
func (s *Spec) ToolDescription() string {
	return `Generates safe, read-only ClickHouse SQL for the Transactions table.

ALLOWED OPERATIONS:
- SELECT with aggregations: count(*), count(col), sum(col), avg(col), min(col), max(col)
- SELECT with groupable columns: type, isFraud, step
- FROM Transactions (the only allowed table)
- WHERE with AND-joined conditions on: step, type, amount, isFraud
- GROUP BY: type, isFraud, step
- ORDER BY: columns or aggregations, with ASC/DESC
- LIMIT: 1-9999

SUPPORTED FILTER PATTERNS:
- step >= 700, step BETWEEN 500 AND 700
- type = 'TRANSFER', type != 'PAYMENT', type IN ('TRANSFER', 'CASH-OUT')
- amount > 10000, amount BETWEEN 1000 AND 50000
- isFraud = 1, isFraud != 0

EXAMPLE VALID QUERIES:
- SELECT count(*) FROM Transactions;
- SELECT sum(amount) FROM Transactions WHERE type = 'TRANSFER';
- SELECT type, count(*) FROM Transactions WHERE isFraud = 1 GROUP BY type;
- SELECT sum(amount) FROM Transactions WHERE step BETWEEN 700 AND 744 AND type IN ('TRANSFER', 'CASH-OUT') GROUP BY type ORDER BY sum(amount) DESC LIMIT 10;`
}

// SchemaPrompt returns the schema-grounding block for the generation
// prompt: table name, column meanings, and value domains.
func (s *Spec) SchemaPrompt() string {
	return `The data is stored in a table called Transactions:

SCHEMA:
- step: Time step (1-744, each step = 1 hour in a 30-day simulation)
- type: Action type ('CASH-IN', 'CASH-OUT', 'DEBIT', 'PAYMENT', 'TRANSFER')
- amount: Transaction amount (numeric)
- isFraud: Anomaly indicator (0 = normal, 1 = anomaly detected)
- nameOrig: Origin agent identifier
- nameDest: Destination agent identifier
- oldbalanceOrg, newbalanceOrig: Origin balance before/after
- oldbalanceDest, newbalanceDest: Destination balance before/after`
}

// ExampleQueries returns known-good sentences covering every
// production. Used by the grammar self-check and by tests as the
// soundness corpus: each of these must validate.
func ExampleQueries() []string {
	return []string{
		"SELECT count(*) FROM Transactions;",
		"SELECT sum(amount) FROM Transactions;",
		"SELECT avg(amount) FROM Transactions;",

		"SELECT count(*) FROM Transactions WHERE isFraud = 1;",
		"SELECT sum(amount) FROM Transactions WHERE type = 'TRANSFER';",
		"SELECT count(*) FROM Transactions WHERE step >= 700;",

		"SELECT count(*) FROM Transactions WHERE step BETWEEN 500 AND 700;",
		"SELECT sum(amount) FROM Transactions WHERE amount BETWEEN 10000 AND 100000;",

		"SELECT count(*) FROM Transactions WHERE type IN ('TRANSFER', 'CASH-OUT');",

		"SELECT sum(amount) FROM Transactions WHERE type != 'PAYMENT';",
		"SELECT count(*) FROM Transactions WHERE isFraud != 0;",

		"SELECT type, count(*) FROM Transactions GROUP BY type;",
		"SELECT type, sum(amount) FROM Transactions WHERE isFraud = 1 GROUP BY type;",
		"SELECT isFraud, avg(amount) FROM Transactions GROUP BY isFraud;",

		"SELECT type, sum(amount) FROM Transactions WHERE step >= 500 AND isFraud = 1 GROUP BY type ORDER BY sum(amount) DESC LIMIT 10;",
		"SELECT type, count(*) FROM Transactions WHERE step BETWEEN 600 AND 744 AND type IN ('TRANSFER', 'CASH-OUT') AND amount > 50000 GROUP BY type;",
	}
}
