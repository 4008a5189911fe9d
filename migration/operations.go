// Package migration diffs designer schemas into ordered DDL operations and
// renders them as PostgreSQL statements.
package migration

import (
	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/errdefs"
)

// Kind tags an operation variant
type Kind string

const (
	KindCreateTable    Kind = "create_table"
	KindDropTable      Kind = "drop_table"
	KindAddColumn      Kind = "add_column"
	KindDropColumn     Kind = "drop_column"
	KindAlterColumn    Kind = "alter_column"
	KindAddForeignKey  Kind = "add_foreign_key"
	KindDropForeignKey Kind = "drop_foreign_key"
	KindCreateIndex    Kind = "create_index"
	KindDropIndex      Kind = "drop_index"
)

// Operation is a single schema change. The set of variants is closed: only
// the types in this file implement it.
type Operation interface {
	Kind() Kind
	Table() string
	operation()
}

// CreateTable creates a table with its columns and optional primary key
type CreateTable struct {
	TableName  string               `json:"table_name"`
	Columns    []constraints.Column `json:"columns"`
	PrimaryKey []string             `json:"primary_key,omitempty"`
}

// DropTable removes a table
type DropTable struct {
	TableName string `json:"table_name"`
}

// AddColumn adds one column to an existing table
type AddColumn struct {
	TableName string             `json:"table_name"`
	Column    constraints.Column `json:"column"`
}

// DropColumn removes one column
type DropColumn struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
}

// AlterColumn changes the type, nullability, default and CHECK clauses of
// a column. A nil Default leaves the column without one.
type AlterColumn struct {
	TableName  string   `json:"table_name"`
	ColumnName string   `json:"column_name"`
	Type       string   `json:"type"`
	NotNull    bool     `json:"not_null"`
	Default    *string  `json:"default,omitempty"`
	Checks     []string `json:"checks,omitempty"`
}

// AddForeignKey adds a FOREIGN KEY constraint
type AddForeignKey struct {
	TableName      string `json:"table_name"`
	ColumnName     string `json:"column_name"`
	RefTable       string `json:"ref_table"`
	RefColumn      string `json:"ref_column"`
	ConstraintName string `json:"constraint_name,omitempty"`
	OnDelete       string `json:"on_delete,omitempty"`
	OnUpdate       string `json:"on_update,omitempty"`
}

// Name returns the constraint name, deriving fk_<table>_<column>_<ref> when unset
func (o AddForeignKey) Name() string {
	if o.ConstraintName != "" {
		return o.ConstraintName
	}
	return ForeignKeyName(o.TableName, o.ColumnName, o.RefTable)
}

// DropForeignKey removes a FOREIGN KEY constraint
type DropForeignKey struct {
	TableName      string `json:"table_name"`
	ConstraintName string `json:"constraint_name"`
}

// CreateIndex creates a (unique) index
type CreateIndex struct {
	IndexName string   `json:"index_name"`
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	Unique    bool     `json:"unique,omitempty"`
}

// DropIndex removes an index
type DropIndex struct {
	IndexName string `json:"index_name"`
	TableName string `json:"table_name,omitempty"`
}

func (CreateTable) Kind() Kind    { return KindCreateTable }
func (DropTable) Kind() Kind      { return KindDropTable }
func (AddColumn) Kind() Kind      { return KindAddColumn }
func (DropColumn) Kind() Kind     { return KindDropColumn }
func (AlterColumn) Kind() Kind    { return KindAlterColumn }
func (AddForeignKey) Kind() Kind  { return KindAddForeignKey }
func (DropForeignKey) Kind() Kind { return KindDropForeignKey }
func (CreateIndex) Kind() Kind    { return KindCreateIndex }
func (DropIndex) Kind() Kind      { return KindDropIndex }

func (o CreateTable) Table() string    { return o.TableName }
func (o DropTable) Table() string      { return o.TableName }
func (o AddColumn) Table() string      { return o.TableName }
func (o DropColumn) Table() string     { return o.TableName }
func (o AlterColumn) Table() string    { return o.TableName }
func (o AddForeignKey) Table() string  { return o.TableName }
func (o DropForeignKey) Table() string { return o.TableName }
func (o CreateIndex) Table() string    { return o.TableName }
func (o DropIndex) Table() string      { return o.TableName }

func (CreateTable) operation()    {}
func (DropTable) operation()      {}
func (AddColumn) operation()      {}
func (DropColumn) operation()     {}
func (AlterColumn) operation()    {}
func (AddForeignKey) operation()  {}
func (DropForeignKey) operation() {}
func (CreateIndex) operation()    {}
func (DropIndex) operation()      {}

// ForeignKeyName is the deterministic name of a foreign key constraint
func ForeignKeyName(table, column, refTable string) string {
	return "fk_" + table + "_" + column + "_" + refTable
}

// IndexName is the deterministic name of a single-column index
func IndexName(table, column string) string {
	return "idx_" + table + "_" + column
}

// Rollback returns the operation that undoes op. Operations that destroy
// or overwrite a definition cannot be undone and fail loudly.
func Rollback(op Operation) (Operation, error) {
	switch o := op.(type) {
	case CreateTable:
		return DropTable{TableName: o.TableName}, nil
	case AddColumn:
		return DropColumn{TableName: o.TableName, ColumnName: o.Column.Name}, nil
	case AddForeignKey:
		return DropForeignKey{TableName: o.TableName, ConstraintName: o.Name()}, nil
	case CreateIndex:
		return DropIndex{IndexName: o.IndexName, TableName: o.TableName}, nil
	case DropTable, DropColumn, AlterColumn, DropForeignKey, DropIndex:
		return nil, &errdefs.UnsupportedOperationError{
			Operation: "rollback " + string(op.Kind()),
			Reason:    "the original definition is not known",
		}
	default:
		return nil, &errdefs.UnsupportedOperationError{Operation: "rollback", Reason: "unknown operation"}
	}
}
