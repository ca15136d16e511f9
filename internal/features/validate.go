package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Input ranges accepted by the applicant form.
const (
	MinAge      = 18
	MaxAge      = 100
	MinBMI      = 10.0
	MaxBMI      = 60.0
	MinChildren = 0
	MaxChildren = 5
)

// ErrInvalidRecord is returned by Validate for out-of-range input.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the numeric ranges of rec. Categorical values are not
// checked: an unrecognized category is encoded as the reference category
// rather than rejected.
func (r RawRecord) Validate() error {
	var problems []string

	if r.Age < MinAge || r.Age > MaxAge {
		problems = append(problems, fmt.Sprintf("age %d outside [%d, %d]", r.Age, MinAge, MaxAge))
	}
	if math.IsNaN(r.BMI) || r.BMI < MinBMI || r.BMI > MaxBMI {
		problems = append(problems, fmt.Sprintf("bmi %.2f outside [%.1f, %.1f]", r.BMI, MinBMI, MaxBMI))
	}
	if r.Children < MinChildren || r.Children > MaxChildren {
		problems = append(problems, fmt.Sprintf("children %d outside [%d, %d]", r.Children, MinChildren, MaxChildren))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return nil
}
