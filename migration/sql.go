package migration

import (
	"fmt"
	"strings"

	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
)

const (
	defaultOnDelete = "RESTRICT"
	defaultOnUpdate = "CASCADE"
)

var referentialActions = map[string]string{
	"cascade":     "CASCADE",
	"restrict":    "RESTRICT",
	"set_null":    "SET NULL",
	"set_default": "SET DEFAULT",
	"no_action":   "NO ACTION",
}

// referentialAction normalizes a cascade policy into its SQL keyword
func referentialAction(policy, fallback string) (string, error) {
	if policy == "" {
		return fallback, nil
	}
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(policy), " ", "_"))
	action, ok := referentialActions[key]
	if !ok {
		return "", fmt.Errorf("unknown referential action %q", policy)
	}
	return action, nil
}

// ValidateOperation rejects operations whose identifiers are malformed
func ValidateOperation(op Operation) error {
	checks := [][2]string{}
	add := func(kind, name string) { checks = append(checks, [2]string{kind, name}) }

	switch o := op.(type) {
	case CreateTable:
		add("table", o.TableName)
		if len(o.Columns) == 0 {
			return &errdefs.InvalidSchemaError{Table: o.TableName, Reason: "table has no columns"}
		}
		for _, c := range o.Columns {
			add("column", c.Name)
		}
		for _, pk := range o.PrimaryKey {
			add("column", pk)
		}
	case DropTable:
		add("table", o.TableName)
	case AddColumn:
		add("table", o.TableName)
		add("column", o.Column.Name)
	case DropColumn:
		add("table", o.TableName)
		add("column", o.ColumnName)
	case AlterColumn:
		add("table", o.TableName)
		add("column", o.ColumnName)
	case AddForeignKey:
		add("table", o.TableName)
		add("column", o.ColumnName)
		add("table", o.RefTable)
		add("column", o.RefColumn)
		add("constraint", o.Name())
	case DropForeignKey:
		add("table", o.TableName)
		add("constraint", o.ConstraintName)
	case CreateIndex:
		add("index", o.IndexName)
		add("table", o.TableName)
		for _, c := range o.Columns {
			add("column", c)
		}
	case DropIndex:
		add("index", o.IndexName)
	default:
		return &errdefs.UnsupportedOperationError{Operation: fmt.Sprintf("%T", op), Reason: "unknown operation"}
	}

	for _, c := range checks {
		if err := schema.CheckIdentifier(c[0], c[1]); err != nil {
			return err
		}
	}
	return nil
}

// GenerateSQL renders an operation as an ordered list of statements
func GenerateSQL(op Operation) ([]string, error) {
	if err := ValidateOperation(op); err != nil {
		return nil, err
	}

	switch o := op.(type) {
	case CreateTable:
		return []string{createTableSQL(o)}, nil
	case DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s;", o.TableName)}, nil
	case AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", o.TableName, o.Column.Definition())}, nil
	case DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", o.TableName, o.ColumnName)}, nil
	case AlterColumn:
		return alterColumnSQL(o), nil
	case AddForeignKey:
		stmt, err := addForeignKeySQL(o)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil
	case DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", o.TableName, o.ConstraintName)}, nil
	case CreateIndex:
		unique := ""
		if o.Unique {
			unique = "UNIQUE "
		}
		return []string{fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);", unique, o.IndexName, o.TableName, strings.Join(o.Columns, ", "))}, nil
	case DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s;", o.IndexName)}, nil
	default:
		return nil, &errdefs.UnsupportedOperationError{Operation: fmt.Sprintf("%T", op), Reason: "unknown operation"}
	}
}

// GenerateRollbackSQL renders the statements that undo op
func GenerateRollbackSQL(op Operation) ([]string, error) {
	inverse, err := Rollback(op)
	if err != nil {
		return nil, err
	}
	return GenerateSQL(inverse)
}

func createTableSQL(o CreateTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", o.TableName)

	defs := make([]string, 0, len(o.Columns)+1)
	for _, c := range o.Columns {
		defs = append(defs, "  "+c.Definition())
	}
	if len(o.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(o.PrimaryKey, ", ")))
	}

	b.WriteString(strings.Join(defs, ",\n"))
	b.WriteString("\n);")
	return b.String()
}

// alterColumnSQL drops the old default and CHECK clauses before the type
// changes and puts the new ones back after it.
func alterColumnSQL(o AlterColumn) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", o.TableName, o.ColumnName)

	stmts := make([]string, 0, 4+constraints.MaxColumnChecks+len(o.Checks))
	for i := 0; i < max(constraints.MaxColumnChecks, len(o.Checks)); i++ {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;",
			o.TableName, constraints.CheckName(o.TableName, o.ColumnName, i)))
	}
	if o.NotNull {
		stmts = append(stmts, prefix+" SET NOT NULL;")
	} else {
		stmts = append(stmts, prefix+" DROP NOT NULL;")
	}
	stmts = append(stmts, prefix+" DROP DEFAULT;")
	stmts = append(stmts, fmt.Sprintf("%s TYPE %s;", prefix, o.Type))
	if o.Default != nil {
		stmts = append(stmts, fmt.Sprintf("%s SET DEFAULT %s;", prefix, *o.Default))
	}
	for i, check := range o.Checks {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s;",
			o.TableName, constraints.CheckName(o.TableName, o.ColumnName, i), check))
	}
	return stmts
}

func addForeignKeySQL(o AddForeignKey) (string, error) {
	onDelete, err := referentialAction(o.OnDelete, defaultOnDelete)
	if err != nil {
		return "", err
	}
	onUpdate, err := referentialAction(o.OnUpdate, defaultOnUpdate)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s;",
		o.TableName, o.Name(), o.ColumnName, o.RefTable, o.RefColumn, onDelete, onUpdate), nil
}
