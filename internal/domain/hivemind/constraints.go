package hivemind

import (
	"fmt"
	"math"
	"regexp"
	"sort"
)

// Constraints narrow the values an Option may take. Which fields apply
// depends on the question's answer type; Choices applies to all of them.
type Constraints struct {
	MinLength *int64                `json:"min_length,omitempty"`
	MaxLength *int64                `json:"max_length,omitempty"`
	Regex     *string               `json:"regex,omitempty"`
	MinValue  *float64              `json:"min_value,omitempty"`
	MaxValue  *float64              `json:"max_value,omitempty"`
	Decimals  *int64                `json:"decimals,omitempty"`
	Specs     map[string]AnswerType `json:"specs,omitempty"`
	Choices   []any                 `json:"choices,omitempty"`

	re *regexp.Regexp
}

var constraintKeys = map[AnswerType][]string{
	AnswerString:  {"min_length", "max_length", "regex"},
	AnswerInteger: {"min_value", "max_value"},
	AnswerFloat:   {"min_value", "max_value", "decimals"},
	AnswerComplex: {"specs"},
}

func allowedKey(t AnswerType, key string) bool {
	if key == "choices" {
		return true
	}
	for _, k := range constraintKeys[t] {
		if k == key {
			return true
		}
	}
	return false
}

// merge applies updates on top of c and returns the result. A nil value
// removes the key. c itself is never modified.
func (c Constraints) merge(t AnswerType, updates map[string]any) (Constraints, error) {
	out := c.clone()

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !allowedKey(t, key) {
			return Constraints{}, fmt.Errorf("%w: constraint %q does not apply to %s", ErrConfiguration, key, t)
		}
		v := updates[key]
		var err error
		switch key {
		case "min_length":
			out.MinLength, err = intConstraint(key, v)
		case "max_length":
			out.MaxLength, err = intConstraint(key, v)
		case "decimals":
			out.Decimals, err = intConstraint(key, v)
		case "min_value":
			out.MinValue, err = floatConstraint(key, v)
		case "max_value":
			out.MaxValue, err = floatConstraint(key, v)
		case "regex":
			out.Regex, err = stringConstraint(key, v)
		case "specs":
			out.Specs, err = specsConstraint(v)
		case "choices":
			out.Choices, err = choicesConstraint(v)
		}
		if err != nil {
			return Constraints{}, err
		}
	}

	if err := out.check(t); err != nil {
		return Constraints{}, err
	}
	return out, nil
}

// check verifies that the constraints are coherent for t and normalizes
// choices to the values an Option of type t would hold.
func (c *Constraints) check(t AnswerType) error {
	for _, key := range c.keys() {
		if !allowedKey(t, key) {
			return fmt.Errorf("%w: constraint %q does not apply to %s", ErrConfiguration, key, t)
		}
	}
	if c.MinLength != nil && *c.MinLength < 0 {
		return fmt.Errorf("%w: min_length must not be negative", ErrConfiguration)
	}
	if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
		return fmt.Errorf("%w: min_length exceeds max_length", ErrConfiguration)
	}
	if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
		return fmt.Errorf("%w: min_value exceeds max_value", ErrConfiguration)
	}
	if c.Decimals != nil && *c.Decimals < 0 {
		return fmt.Errorf("%w: decimals must not be negative", ErrConfiguration)
	}

	c.re = nil
	if c.Regex != nil {
		re, err := regexp.Compile(`^(?:` + *c.Regex + `)$`)
		if err != nil {
			return fmt.Errorf("%w: regex: %v", ErrConfiguration, err)
		}
		c.re = re
	}

	for name, ft := range c.Specs {
		if !ft.scalar() {
			return fmt.Errorf("%w: spec %q has non-scalar type %q", ErrConfiguration, name, ft)
		}
	}

	for i, choice := range c.Choices {
		v, err := coerceFor(t, c.Specs, choice)
		if err != nil {
			return fmt.Errorf("%w: choice %d: %v", ErrConfiguration, i, err)
		}
		if err := checkValue(t, *c, v); err != nil {
			return fmt.Errorf("%w: choice %d: %v", ErrConfiguration, i, err)
		}
		c.Choices[i] = v
	}
	return nil
}

func (c Constraints) keys() []string {
	var keys []string
	if c.MinLength != nil {
		keys = append(keys, "min_length")
	}
	if c.MaxLength != nil {
		keys = append(keys, "max_length")
	}
	if c.Regex != nil {
		keys = append(keys, "regex")
	}
	if c.MinValue != nil {
		keys = append(keys, "min_value")
	}
	if c.MaxValue != nil {
		keys = append(keys, "max_value")
	}
	if c.Decimals != nil {
		keys = append(keys, "decimals")
	}
	if len(c.Specs) > 0 {
		keys = append(keys, "specs")
	}
	if len(c.Choices) > 0 {
		keys = append(keys, "choices")
	}
	return keys
}

func (c Constraints) clone() Constraints {
	out := c
	if c.Specs != nil {
		out.Specs = make(map[string]AnswerType, len(c.Specs))
		for k, v := range c.Specs {
			out.Specs[k] = v
		}
	}
	if c.Choices != nil {
		out.Choices = append([]any(nil), c.Choices...)
	}
	return out
}

func intConstraint(key string, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := toInt64(v); ok {
		return &n, nil
	}
	if f, ok := toFloat64(v); ok && f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		n := int64(f)
		return &n, nil
	}
	return nil, fmt.Errorf("%w: %s must be an integer, got %T", ErrConfiguration, key, v)
}

func floatConstraint(key string, v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a number, got %T", ErrConfiguration, key, v)
	}
	return &f, nil
}

func stringConstraint(key string, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrConfiguration, key, v)
	}
	return &s, nil
}

func specsConstraint(v any) (map[string]AnswerType, error) {
	if v == nil {
		return nil, nil
	}
	var raw map[string]any
	switch m := v.(type) {
	case map[string]any:
		raw = m
	case map[string]string:
		raw = make(map[string]any, len(m))
		for k, s := range m {
			raw[k] = s
		}
	case map[string]AnswerType:
		raw = make(map[string]any, len(m))
		for k, t := range m {
			raw[k] = string(t)
		}
	default:
		return nil, fmt.Errorf("%w: specs must map field names to types, got %T", ErrConfiguration, v)
	}

	specs := make(map[string]AnswerType, len(raw))
	for name, tv := range raw {
		s, ok := tv.(string)
		if !ok {
			return nil, fmt.Errorf("%w: spec %q type must be a string", ErrConfiguration, name)
		}
		t, err := ParseAnswerType(s)
		if err != nil {
			return nil, fmt.Errorf("%w: spec %q: %v", ErrConfiguration, name, err)
		}
		specs[name] = t
	}
	return specs, nil
}

func choicesConstraint(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: choices must be a list, got %T", ErrConfiguration, v)
	}
	return append([]any(nil), list...), nil
}
