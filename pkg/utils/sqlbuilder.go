package utils

import "strings"

// SQLBuilder provides a fluent interface for building the DDL statements that
// deployments generate (drops and column-level table alters).
//
// Names are added verbatim: callers pass names that are already qualified and
// quoted for the target vendor.
//
// Example usage:
//
//	sql := NewSQLBuilder().
//		Alter("TABLE").
//		Name("HR.EMPLOYEES").
//		Raw("ADD").
//		Group("BONUS NUMBER(10,2)").
//		String()
//	// Output: ALTER TABLE HR.EMPLOYEES ADD (BONUS NUMBER(10,2))
type SQLBuilder struct {
	parts []string
}

// NewSQLBuilder creates a new SQLBuilder instance.
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{
		parts: make([]string, 0, 8),
	}
}

// Drop adds a DROP clause with the specified object type.
//
// Example:
//
//	builder.Drop("PACKAGE BODY")  // DROP PACKAGE BODY
func (b *SQLBuilder) Drop(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "DROP", objectType)
	return b
}

// Alter adds an ALTER clause with the specified object type.
func (b *SQLBuilder) Alter(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "ALTER", objectType)
	return b
}

// Name adds an object name as given.
func (b *SQLBuilder) Name(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, name)
	}
	return b
}

// Group adds text wrapped in parentheses.
//
// Example:
//
//	builder.Raw("MODIFY").Group("NAME VARCHAR2(200)")  // MODIFY (NAME VARCHAR2(200))
func (b *SQLBuilder) Group(text string) *SQLBuilder {
	if text != "" {
		b.parts = append(b.parts, "("+text+")")
	}
	return b
}

// Raw adds raw SQL text to the builder.
func (b *SQLBuilder) Raw(sql string) *SQLBuilder {
	if sql != "" {
		b.parts = append(b.parts, sql)
	}
	return b
}

// String builds the statement without a terminator, which is the form DDL
// executors expect.
func (b *SQLBuilder) String() string {
	return strings.Join(b.parts, " ")
}

// Terminated builds the statement followed by a semicolon, the form written to
// script files.
func (b *SQLBuilder) Terminated() string {
	if len(b.parts) == 0 {
		return ""
	}
	return b.String() + ";"
}
