package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/schema"
)

// Impact is the coarse risk bucket of a plan
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

var impactWeights = map[Kind]float64{
	KindCreateTable:    1,
	KindDropTable:      3,
	KindAddColumn:      0.5,
	KindDropColumn:     2,
	KindAlterColumn:    2,
	KindAddForeignKey:  1.5,
	KindDropForeignKey: 1,
	KindCreateIndex:    0.5,
	KindDropIndex:      0.5,
}

// Plan is the ordered result of a schema diff. It is never mutated after
// Diff returns it.
type Plan struct {
	Operations   []Operation
	Rollback     []Operation
	Irreversible []Operation
	Description  string
	Impact       Impact
	Score        float64
}

// Empty reports whether the plan has nothing to do
func (p *Plan) Empty() bool {
	return len(p.Operations) == 0
}

// Reversible reports whether every operation has a known rollback
func (p *Plan) Reversible() bool {
	return len(p.Irreversible) == 0
}

// SQL renders every forward operation in order
func (p *Plan) SQL() ([]string, error) {
	var stmts []string
	for i, op := range p.Operations {
		s, err := GenerateSQL(op)
		if err != nil {
			return nil, fmt.Errorf("failed to generate sql for operation %d (%s): %w", i+1, op.Kind(), err)
		}
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

// RollbackSQL renders the rollback statements. It fails when any operation
// of the plan cannot be undone.
func (p *Plan) RollbackSQL() ([]string, error) {
	if !p.Reversible() {
		var errs []error
		for _, op := range p.Irreversible {
			_, err := Rollback(op)
			errs = append(errs, fmt.Errorf("%s on %s: %w", op.Kind(), op.Table(), err))
		}
		return nil, errors.Join(errs...)
	}

	var stmts []string
	for _, op := range p.Rollback {
		s, err := GenerateSQL(op)
		if err != nil {
			return nil, fmt.Errorf("failed to generate rollback sql for %s: %w", op.Kind(), err)
		}
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

// EstimateImpact sums operation weights and buckets the total
func EstimateImpact(ops []Operation) (Impact, float64) {
	var score float64
	for _, op := range ops {
		score += impactWeights[op.Kind()]
	}
	switch {
	case score <= 2:
		return ImpactLow, score
	case score <= 5:
		return ImpactMedium, score
	default:
		return ImpactHigh, score
	}
}

// CreateTableMigration builds the CreateTable operation for a table. The
// primary key is the field marked as such, or a field named id.
func CreateTableMigration(t schema.TableSchema) (CreateTable, error) {
	op := CreateTable{TableName: t.TableName}
	for _, f := range t.Fields {
		col, err := constraints.FieldToColumn(f)
		if err != nil {
			return CreateTable{}, fmt.Errorf("failed to map field %s.%s: %w", t.TableName, f.FieldName, err)
		}
		op.Columns = append(op.Columns, col)
	}

	if pk, ok := t.PrimaryKey(); ok {
		op.PrimaryKey = []string{pk.FieldName}
	} else if _, ok := t.Field("id"); ok {
		op.PrimaryKey = []string{"id"}
	}
	return op, nil
}

// Diff compares two schema snapshots and plans the operations that turn
// current into target
func Diff(current, target []schema.TableSchema) (*Plan, error) {
	currentByName := indexTables(current)
	targetByName := indexTables(target)

	if err := validateTarget(target, targetByName); err != nil {
		return nil, err
	}

	var ops []Operation

	currentRels := indexRelationships(current)
	targetRels := indexRelationships(target)

	// 1. constraints that go away, before any column or table they touch
	for _, key := range sortedKeys(currentRels) {
		if _, kept := targetRels[key]; kept {
			continue
		}
		rel := currentRels[key]
		// DROP TABLE takes the constraint with it
		if _, kept := targetByName[rel.SourceTable]; !kept {
			continue
		}
		ops = append(ops, DropForeignKey{
			TableName:      rel.SourceTable,
			ConstraintName: ForeignKeyName(rel.SourceTable, rel.SourceField, rel.TargetTable),
		})
	}

	// 2. new tables
	for _, t := range target {
		if _, exists := currentByName[t.TableName]; exists {
			continue
		}
		op, err := CreateTableMigration(t)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	// 3. column changes on tables present in both
	for _, t := range target {
		cur, exists := currentByName[t.TableName]
		if !exists {
			continue
		}
		colOps, err := diffColumns(cur, t)
		if err != nil {
			return nil, err
		}
		ops = append(ops, colOps...)
	}

	// 4. new relationships, once every table they reference exists
	for _, key := range sortedKeys(targetRels) {
		if _, exists := currentRels[key]; exists {
			continue
		}
		rel := targetRels[key]
		ops = append(ops,
			AddForeignKey{
				TableName:  rel.SourceTable,
				ColumnName: rel.SourceField,
				RefTable:   rel.TargetTable,
				RefColumn:  rel.TargetField,
				OnDelete:   string(rel.Cascade.OnDelete),
				OnUpdate:   string(rel.Cascade.OnUpdate),
			},
			CreateIndex{
				IndexName: IndexName(rel.SourceTable, rel.SourceField),
				TableName: rel.SourceTable,
				Columns:   []string{rel.SourceField},
			},
		)
	}

	// 5. removed tables
	ops = append(ops, dropTables(current, targetByName, currentRels)...)

	plan := &Plan{Operations: ops}
	for i := len(ops) - 1; i >= 0; i-- {
		inverse, err := Rollback(ops[i])
		if err != nil {
			plan.Irreversible = append(plan.Irreversible, ops[i])
			continue
		}
		plan.Rollback = append(plan.Rollback, inverse)
	}
	plan.Impact, plan.Score = EstimateImpact(ops)
	plan.Description = describe(ops)

	slog.Debug("migration plan generated",
		"operations", len(ops),
		"irreversible", len(plan.Irreversible),
		"impact", plan.Impact,
		"score", plan.Score)
	return plan, nil
}

func diffColumns(current, target schema.TableSchema) ([]Operation, error) {
	var adds, alters, drops []Operation

	for _, f := range target.Fields {
		old, exists := current.Field(f.FieldName)
		if exists && !fieldChanged(old, f) {
			continue
		}
		col, err := constraints.FieldToColumn(f)
		if err != nil {
			return nil, fmt.Errorf("failed to map field %s.%s: %w", target.TableName, f.FieldName, err)
		}
		if !exists {
			adds = append(adds, AddColumn{TableName: target.TableName, Column: col})
			continue
		}
		alter := AlterColumn{
			TableName:  target.TableName,
			ColumnName: col.Name,
			Type:       col.Type,
			NotNull:    col.NotNull(),
			Checks:     col.Checks(),
		}
		if def, ok := col.Default(); ok {
			alter.Default = &def
		}
		alters = append(alters, alter)
	}

	for _, f := range current.Fields {
		if _, kept := target.Field(f.FieldName); !kept {
			drops = append(drops, DropColumn{TableName: target.TableName, ColumnName: f.FieldName})
		}
	}

	ops := append(adds, alters...)
	return append(ops, drops...), nil
}

func fieldChanged(a, b schema.FieldSchema) bool {
	return a.Name != b.Name ||
		a.DataType != b.DataType ||
		a.IsRequired != b.IsRequired ||
		!reflect.DeepEqual(a.DefaultValue, b.DefaultValue) ||
		!reflect.DeepEqual(a.Config, b.Config)
}

func validateTarget(target []schema.TableSchema, byName map[string]schema.TableSchema) error {
	if len(byName) != len(target) {
		return fmt.Errorf("target schema contains duplicate table names")
	}
	for i := range target {
		if err := target[i].Validate(); err != nil {
			return err
		}
	}
	for _, t := range target {
		for _, rel := range t.Relationships {
			src, srcOK := byName[rel.SourceTable]
			dst, dstOK := byName[rel.TargetTable]
			var srcPtr, dstPtr *schema.TableSchema
			if srcOK {
				srcPtr = &src
			}
			if dstOK {
				dstPtr = &dst
			}
			if err := schema.ValidateRelationship(rel, srcPtr, dstPtr); err != nil {
				return fmt.Errorf("invalid relationship %s: %w", rel.Key(), err)
			}
		}
	}
	return nil
}

func indexTables(tables []schema.TableSchema) map[string]schema.TableSchema {
	m := make(map[string]schema.TableSchema, len(tables))
	for _, t := range tables {
		m[t.TableName] = t
	}
	return m
}

// dropTables orders the removed tables so that each one goes before any
// removed table it references. Tables left in a reference cycle lose their
// foreign keys to each other first.
func dropTables(current []schema.TableSchema, targetByName map[string]schema.TableSchema, currentRels map[string]schema.RelationshipSchema) []Operation {
	var pending []string
	removed := make(map[string]bool)
	for _, t := range current {
		if _, kept := targetByName[t.TableName]; kept {
			continue
		}
		pending = append(pending, t.TableName)
		removed[t.TableName] = true
	}

	referenced := func(name string) bool {
		for _, rel := range currentRels {
			if rel.TargetTable == name && rel.SourceTable != name && removed[rel.SourceTable] {
				return true
			}
		}
		return false
	}

	var ops []Operation
	for len(pending) > 0 {
		var next []string
		for _, name := range pending {
			if referenced(name) {
				next = append(next, name)
				continue
			}
			ops = append(ops, DropTable{TableName: name})
			delete(removed, name)
		}
		if len(next) < len(pending) {
			pending = next
			continue
		}

		for _, key := range sortedKeys(currentRels) {
			rel := currentRels[key]
			if rel.SourceTable == rel.TargetTable || !removed[rel.SourceTable] || !removed[rel.TargetTable] {
				continue
			}
			ops = append(ops, DropForeignKey{
				TableName:      rel.SourceTable,
				ConstraintName: ForeignKeyName(rel.SourceTable, rel.SourceField, rel.TargetTable),
			})
		}
		for _, name := range pending {
			ops = append(ops, DropTable{TableName: name})
		}
		break
	}
	return ops
}

func indexRelationships(tables []schema.TableSchema) map[string]schema.RelationshipSchema {
	m := make(map[string]schema.RelationshipSchema)
	for _, t := range tables {
		for _, rel := range t.Relationships {
			m[rel.Key()] = rel
		}
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(ops []Operation) string {
	if len(ops) == 0 {
		return "No changes"
	}
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, describeOperation(op))
	}
	return strings.Join(lines, "; ")
}

func describeOperation(op Operation) string {
	switch o := op.(type) {
	case CreateTable:
		return fmt.Sprintf("Create table %s with %d columns", o.TableName, len(o.Columns))
	case DropTable:
		return fmt.Sprintf("Drop table %s", o.TableName)
	case AddColumn:
		return fmt.Sprintf("Add column %s.%s", o.TableName, o.Column.Name)
	case DropColumn:
		return fmt.Sprintf("Drop column %s.%s", o.TableName, o.ColumnName)
	case AlterColumn:
		return fmt.Sprintf("Alter column %s.%s", o.TableName, o.ColumnName)
	case AddForeignKey:
		return fmt.Sprintf("Add foreign key %s.%s -> %s.%s", o.TableName, o.ColumnName, o.RefTable, o.RefColumn)
	case DropForeignKey:
		return fmt.Sprintf("Drop foreign key %s on %s", o.ConstraintName, o.TableName)
	case CreateIndex:
		return fmt.Sprintf("Create index %s on %s", o.IndexName, o.TableName)
	case DropIndex:
		return fmt.Sprintf("Drop index %s", o.IndexName)
	default:
		return string(op.Kind())
	}
}
