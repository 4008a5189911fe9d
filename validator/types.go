package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
)

// ISODatePattern is the only accepted literal date shape
var ISODatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{3})?Z$`)

type checkContext struct {
	now time.Time
}

type outcome struct {
	value    any
	errors   []errdefs.FieldError
	warnings []Warning
}

func (o *outcome) fail(f schema.FieldSchema, code, msg string, value any) {
	o.errors = append(o.errors, errdefs.FieldError{Field: f.FieldName, Code: code, Message: msg, Value: value})
}

func (o *outcome) warn(f schema.FieldSchema, code, msg string) {
	o.warnings = append(o.warnings, Warning{Field: f.FieldName, Code: code, Message: msg})
}

// typeRule validates and coerces one value of a field
type typeRule func(cc checkContext, f schema.FieldSchema, value any) outcome

var typeRules = map[schema.DataType]typeRule{
	schema.TypeText:    checkText,
	schema.TypeNumber:  checkNumber,
	schema.TypeDate:    checkDate,
	schema.TypeBoolean: checkBoolean,
}

func checkText(_ checkContext, f schema.FieldSchema, value any) outcome {
	var out outcome
	s, ok := value.(string)
	if !ok {
		out.fail(f, CodeTypeMismatch, f.FieldName+" must be a string", value)
		return out
	}

	n := utf8.RuneCountInString(s)
	if f.Config.MinLength != nil && n < *f.Config.MinLength {
		out.fail(f, CodeMinLength, fmt.Sprintf("%s must be at least %d characters", f.FieldName, *f.Config.MinLength), s)
	}
	if maxLen := constraints.TextLength(f); n > maxLen {
		out.fail(f, CodeMaxLength, fmt.Sprintf("%s must be at most %d characters", f.FieldName, maxLen), s)
	}
	if f.Config.Pattern != "" {
		re, err := compilePattern(f.Config.Pattern)
		if err != nil {
			out.fail(f, CodePatternMismatch, fmt.Sprintf("%s has an invalid pattern: %v", f.FieldName, err), s)
		} else if !re.MatchString(s) {
			out.fail(f, CodePatternMismatch, fmt.Sprintf("%s does not match %s", f.FieldName, f.Config.Pattern), s)
		}
	}
	if n > LargeTextLength {
		out.warn(f, WarnLargeText, fmt.Sprintf("%s is over %d characters", f.FieldName, LargeTextLength))
	}

	out.value = s
	return out
}

var patternCache sync.Map

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// ToDecimal coerces JSON numbers and numeric strings
func ToDecimal(value any) (decimal.Decimal, bool) {
	switch n := value.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func checkNumber(_ checkContext, f schema.FieldSchema, value any) outcome {
	var out outcome
	d, ok := ToDecimal(value)
	if !ok {
		out.fail(f, CodeTypeMismatch, f.FieldName+" must be a number", value)
		return out
	}

	if f.Config.MinValue != nil && d.LessThan(decimal.NewFromFloat(*f.Config.MinValue)) {
		out.fail(f, CodeMinValue, fmt.Sprintf("%s must be >= %v", f.FieldName, *f.Config.MinValue), value)
	}
	if f.Config.MaxValue != nil && d.GreaterThan(decimal.NewFromFloat(*f.Config.MaxValue)) {
		out.fail(f, CodeMaxValue, fmt.Sprintf("%s must be <= %v", f.FieldName, *f.Config.MaxValue), value)
	}

	precision, scale := constraints.NumericShape(f)
	intDigits := len(d.Abs().Truncate(0).String())
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		intDigits = 0
	}
	if intDigits > precision-scale {
		out.fail(f, CodePrecisionExceeded, fmt.Sprintf("%s allows at most %d integer digits", f.FieldName, precision-scale), value)
	}
	if places := -d.Exponent(); places > int32(scale) && !d.Equal(d.Truncate(int32(scale))) {
		out.warn(f, WarnPrecisionLoss, fmt.Sprintf("%s will be rounded to %d decimal places", f.FieldName, scale))
	}

	out.value = d
	return out
}

func checkDate(cc checkContext, f schema.FieldSchema, value any) outcome {
	var out outcome
	s, ok := value.(string)
	if !ok {
		out.fail(f, CodeTypeMismatch, f.FieldName+" must be an ISO-8601 string", value)
		return out
	}
	if constraints.IsDateFunction(s) {
		out.value = strings.ToUpper(strings.TrimSpace(s))
		return out
	}
	if !ISODatePattern.MatchString(s) {
		out.fail(f, CodeInvalidDate, f.FieldName+" must be formatted as YYYY-MM-DDTHH:mm:ss(.sss)Z", value)
		return out
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		out.fail(f, CodeInvalidDate, fmt.Sprintf("%s is not a valid date: %v", f.FieldName, err), value)
		return out
	}

	if !cc.now.IsZero() {
		if t.After(cc.now.AddDate(DateWarningWindow, 0, 0)) {
			out.warn(f, WarnFarFutureDate, fmt.Sprintf("%s is more than %d years in the future", f.FieldName, DateWarningWindow))
		}
		if t.Before(cc.now.AddDate(-DateWarningWindow, 0, 0)) {
			out.warn(f, WarnFarPastDate, fmt.Sprintf("%s is more than %d years in the past", f.FieldName, DateWarningWindow))
		}
	}

	out.value = t
	return out
}

func checkBoolean(_ checkContext, f schema.FieldSchema, value any) outcome {
	var out outcome
	switch b := value.(type) {
	case bool:
		out.value = b
	case string:
		switch strings.ToLower(b) {
		case "true":
			out.value = true
		case "false":
			out.value = false
		}
	case float64:
		if b == 0 || b == 1 {
			out.value = b == 1
		}
	case int:
		if b == 0 || b == 1 {
			out.value = b == 1
		}
	case json.Number:
		switch b.String() {
		case "0":
			out.value = false
		case "1":
			out.value = true
		}
	}
	if out.value == nil {
		out.fail(f, CodeTypeMismatch, f.FieldName+" must be a boolean", value)
	}
	return out
}
