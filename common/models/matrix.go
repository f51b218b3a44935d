package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Matrix maps axis names to the ordered list of values each axis takes.
// A job with a matrix is expanded into one job instance per combination of
// axis values.
type Matrix map[string][]string

// AxisNames returns the matrix axis names in sorted order.
func (m Matrix) AxisNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand returns the cross product of all axis values as a deterministic
// list of combinations: axes are iterated in sorted name order and values in
// their listed order. An empty matrix expands to a single empty combination.
func (m Matrix) Expand() []MatrixCombination {
	combinations := []MatrixCombination{{}}
	for _, axis := range m.AxisNames() {
		var next []MatrixCombination
		for _, combination := range combinations {
			for _, value := range m[axis] {
				expanded := make(MatrixCombination, len(combination)+1)
				for k, v := range combination {
					expanded[k] = v
				}
				expanded[axis] = value
				next = append(next, expanded)
			}
		}
		combinations = next
	}
	return combinations
}

func (m Matrix) Validate() error {
	var result *multierror.Error
	for axis, values := range m {
		if axis == "" {
			result = multierror.Append(result, errors.New("error matrix axis name must be set"))
		}
		if len(values) == 0 {
			result = multierror.Append(result, errors.Errorf("error matrix axis %q must list at least one value", axis))
		}
		for _, value := range values {
			if value == "" {
				result = multierror.Append(result, errors.Errorf("error matrix axis %q contains an empty value", axis))
			}
		}
	}
	return result.ErrorOrNil()
}

// MatrixCombination is a single assignment of a value to each matrix axis.
type MatrixCombination map[string]string

// String renders the combination as "k=v, k=v" in sorted axis order,
// suitable for display next to a job name.
func (m MatrixCombination) String() string {
	if len(m) == 0 {
		return ""
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, m[name]))
	}
	return strings.Join(parts, ", ")
}

func (m *MatrixCombination) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal([]byte(str), m)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func (m MatrixCombination) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}
