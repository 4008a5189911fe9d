package migration

import (
	"encoding/json"
	"fmt"
)

// MarshalOperation encodes op with its kind as the "type" discriminator
func MarshalOperation(op Operation) ([]byte, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", op.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(op.Kind())
	fields["type"] = tag
	return json.Marshal(fields)
}

// UnmarshalOperation decodes an operation produced by MarshalOperation
func UnmarshalOperation(data []byte) (Operation, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var op Operation
	var err error
	switch head.Type {
	case KindCreateTable:
		op, err = decodeAs[CreateTable](data)
	case KindDropTable:
		op, err = decodeAs[DropTable](data)
	case KindAddColumn:
		op, err = decodeAs[AddColumn](data)
	case KindDropColumn:
		op, err = decodeAs[DropColumn](data)
	case KindAlterColumn:
		op, err = decodeAs[AlterColumn](data)
	case KindAddForeignKey:
		op, err = decodeAs[AddForeignKey](data)
	case KindDropForeignKey:
		op, err = decodeAs[DropForeignKey](data)
	case KindCreateIndex:
		op, err = decodeAs[CreateIndex](data)
	case KindDropIndex:
		op, err = decodeAs[DropIndex](data)
	default:
		return nil, fmt.Errorf("unknown operation type %q", head.Type)
	}
	return op, err
}

func decodeAs[T Operation](data []byte) (Operation, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type planJSON struct {
	Operations   []json.RawMessage `json:"operations"`
	Rollback     []json.RawMessage `json:"rollback_operations"`
	Irreversible []json.RawMessage `json:"irreversible_operations,omitempty"`
	Description  string            `json:"description"`
	Impact       Impact            `json:"estimated_impact"`
	Score        float64           `json:"impact_score"`
}

// MarshalJSON encodes the plan with tagged operations
func (p *Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Operations:  []json.RawMessage{},
		Rollback:    []json.RawMessage{},
		Description: p.Description,
		Impact:      p.Impact,
		Score:       p.Score,
	}
	encode := func(ops []Operation, dst *[]json.RawMessage) error {
		for _, op := range ops {
			b, err := MarshalOperation(op)
			if err != nil {
				return err
			}
			*dst = append(*dst, b)
		}
		return nil
	}
	if err := encode(p.Operations, &out.Operations); err != nil {
		return nil, err
	}
	if err := encode(p.Rollback, &out.Rollback); err != nil {
		return nil, err
	}
	if err := encode(p.Irreversible, &out.Irreversible); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a plan written by MarshalJSON
func (p *Plan) UnmarshalJSON(data []byte) error {
	var in planJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	decode := func(raw []json.RawMessage) ([]Operation, error) {
		ops := make([]Operation, 0, len(raw))
		for _, r := range raw {
			op, err := UnmarshalOperation(r)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		return ops, nil
	}

	var err error
	if p.Operations, err = decode(in.Operations); err != nil {
		return err
	}
	if p.Rollback, err = decode(in.Rollback); err != nil {
		return err
	}
	if p.Irreversible, err = decode(in.Irreversible); err != nil {
		return err
	}
	p.Description, p.Impact, p.Score = in.Description, in.Impact, in.Score
	return nil
}
