// Package utils provides small helpers shared across leaf packages.
//
// # Identifier Utilities (identifier.go)
//
// Vendor sessions quote the identifiers they report so that generated DDL
// preserves the exact case the database uses:
//
//	utils.QualifiedName("analytics", "events", utils.Backtick)
//	// Result: `analytics`.`events`
//
//	utils.QuoteIdentifier("public.users", utils.DoubleQuote)
//	// Result: "public"."users"
//
// # SQL Builder (sqlbuilder.go)
//
// SQLBuilder assembles the statements the schema differ emits for drops and
// table alters:
//
//	utils.NewSQLBuilder().Drop("VIEW").Name("HR.EMP_V").String()
//	// Result: DROP VIEW HR.EMP_V
//
// # Pointers (ptr.go)
//
// Ptr returns a pointer to a value, used for optional overrides such as the
// per-run fail-fast flag.
package utils
