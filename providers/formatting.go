package providers

import (
	"fmt"
	"strings"

	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/migration"
	"github.com/alc6/tabledesigner/schema"
)

// FormatTables renders tables as human-readable text
func FormatTables(tables []schema.TableSchema) string {
	var sb strings.Builder

	for _, table := range tables {
		status := table.Status
		if status == "" {
			status = schema.StatusActive
		}
		sb.WriteString(fmt.Sprintf("Table: %s (%s)\n", table.TableName, status))
		sb.WriteString("Fields:\n")

		for _, f := range table.Fields {
			col, err := constraints.FieldToColumn(f)
			if err != nil {
				sb.WriteString(fmt.Sprintf("  - %s %s (invalid: %v)\n", f.FieldName, f.DataType, err))
				continue
			}

			var flags []string
			if f.IsPrimaryKey {
				flags = append(flags, "PRIMARY KEY")
			}
			if f.Immutable {
				flags = append(flags, "IMMUTABLE")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " (" + strings.Join(flags, ", ") + ")"
			}
			sb.WriteString(fmt.Sprintf("  - %s%s\n", col.Definition(), suffix))
		}

		if len(table.Relationships) > 0 {
			sb.WriteString("Relationships:\n")
			for _, rel := range table.Relationships {
				sb.WriteString(fmt.Sprintf("  - %s.%s -> %s.%s\n",
					rel.SourceTable, rel.SourceField, rel.TargetTable, rel.TargetField))
			}
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatPlan renders a migration plan summary followed by its statements
func FormatPlan(plan *migration.Plan) (string, error) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("-- impact: %s (score %.1f)\n", plan.Impact, plan.Score))
	sb.WriteString(fmt.Sprintf("-- %s\n", plan.Description))
	if !plan.Reversible() {
		for _, op := range plan.Irreversible {
			sb.WriteString(fmt.Sprintf("-- irreversible: %s on %s\n", op.Kind(), op.Table()))
		}
	}

	stmts, err := plan.SQL()
	if err != nil {
		return "", err
	}
	for _, stmt := range stmts {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
