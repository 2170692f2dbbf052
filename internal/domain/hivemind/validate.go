package hivemind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"hivemind/internal/platform/cas"
)

// coerceFor converts v into the Go type an Option of type t stores:
// string, bool, int64, float64 or map[string]any for Complex.
func coerceFor(t AnswerType, specs map[string]AnswerType, v any) (any, error) {
	switch t {
	case AnswerString, AnswerNestedQuestion, AnswerImage, AnswerVideo, AnswerAddress:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s value must be a string, got %T", t, v)
		}
		return s, nil
	case AnswerBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bool value must be a boolean, got %T", v)
		}
		return b, nil
	case AnswerInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("integer value must be a whole number, got %v", v)
		}
		return n, nil
	case AnswerFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("float value must be a finite number, got %v", v)
		}
		return f, nil
	case AnswerComplex:
		m, ok := cas.Normalize(v).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("complex value must be a record, got %T", v)
		}
		out := make(map[string]any, len(m))
		for k, fv := range m {
			ft, declared := specs[k]
			if !declared {
				out[k] = fv
				continue
			}
			c, err := coerceFor(ft, nil, fv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAnswerType, t)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func toFloat64(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := toInt64(v)
		if !ok {
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// decimals counts the fractional digits of the shortest decimal form of f
// that round-trips. Whole numbers count as one digit ("2.0").
func decimals(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 1
	}
	return len(s) - i - 1
}

// validateValue checks v against q and returns the value in stored form.
// Every failure wraps ErrInvalidOption.
func (e *Engine) validateValue(ctx context.Context, q *Question, v any) (any, error) {
	c := q.constraints
	value, err := coerceFor(q.answerType, c.Specs, v)
	if err != nil {
		if errors.Is(err, ErrUnknownAnswerType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	if err := e.checkType(ctx, q.answerType, c, value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	if len(c.Choices) > 0 && !containsValue(c.Choices, value) {
		return nil, fmt.Errorf("%w: %v is not one of the allowed choices", ErrInvalidOption, value)
	}
	return value, nil
}

func (e *Engine) checkType(ctx context.Context, t AnswerType, c Constraints, value any) error {
	switch t {
	case AnswerNestedQuestion:
		id, err := cas.Parse(value.(string))
		if err != nil {
			return err
		}
		if _, err := e.LoadQuestion(ctx, id); err != nil {
			return fmt.Errorf("nested question: %w", err)
		}
		return nil
	case AnswerAddress:
		if e.addresses == nil {
			return errors.New("no address validator configured")
		}
		if !e.addresses.IsValidAddress(value.(string)) {
			return fmt.Errorf("%q is not a valid address", value)
		}
		return nil
	}
	return checkValue(t, c, value)
}

// checkValue runs the checks that depend on the constraints alone. value
// must already be in stored form.
func checkValue(t AnswerType, c Constraints, value any) error {
	switch t {
	case AnswerString:
		s := value.(string)
		n := int64(utf8.RuneCountInString(s))
		if c.MinLength != nil && n < *c.MinLength {
			return fmt.Errorf("length %d is below min_length %d", n, *c.MinLength)
		}
		if c.MaxLength != nil && n > *c.MaxLength {
			return fmt.Errorf("length %d exceeds max_length %d", n, *c.MaxLength)
		}
		if c.re != nil && !c.re.MatchString(s) {
			return fmt.Errorf("%q does not match regex %q", s, *c.Regex)
		}
	case AnswerInteger:
		return checkIntRange(value.(int64), c)
	case AnswerFloat:
		f := value.(float64)
		if err := checkRange(f, c); err != nil {
			return err
		}
		if c.Decimals != nil && *c.Decimals > 0 && int64(decimals(f)) != *c.Decimals {
			return fmt.Errorf("%v has %d decimals, want %d", f, decimals(f), *c.Decimals)
		}
	case AnswerImage, AnswerVideo:
		if strings.TrimSpace(value.(string)) == "" {
			return errors.New("content reference must not be empty")
		}
	case AnswerComplex:
		return checkSpecs(c.Specs, value.(map[string]any))
	}
	return nil
}

func checkRange(f float64, c Constraints) error {
	if c.MinValue != nil && f < *c.MinValue {
		return fmt.Errorf("%v is below min_value %v", f, *c.MinValue)
	}
	if c.MaxValue != nil && f > *c.MaxValue {
		return fmt.Errorf("%v exceeds max_value %v", f, *c.MaxValue)
	}
	return nil
}

// checkIntRange compares n with the bounds exactly; float64(n) rounds
// above 2^53.
func checkIntRange(n int64, c Constraints) error {
	if c.MinValue != nil && compareInt(n, *c.MinValue) < 0 {
		return fmt.Errorf("%d is below min_value %v", n, *c.MinValue)
	}
	if c.MaxValue != nil && compareInt(n, *c.MaxValue) > 0 {
		return fmt.Errorf("%d exceeds max_value %v", n, *c.MaxValue)
	}
	return nil
}

func compareInt(n int64, bound float64) int {
	return new(big.Float).SetInt64(n).Cmp(big.NewFloat(bound))
}

func checkSpecs(specs map[string]AnswerType, m map[string]any) error {
	var missing, extra []string
	for name := range specs {
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range m {
		if _, ok := specs[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	if len(missing) > 0 {
		return fmt.Errorf("missing fields %v", missing)
	}
	if len(extra) > 0 {
		return fmt.Errorf("unexpected fields %v", extra)
	}
	return nil
}

func containsValue(choices []any, v any) bool {
	for _, c := range choices {
		if reflect.DeepEqual(c, v) {
			return true
		}
	}
	return false
}
