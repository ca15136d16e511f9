// Package features turns a raw insurance applicant record into the fixed,
// ordered numeric vector the pre-trained charge model was fitted on.
//
// The column order in Schema is a hard contract with the model artifact:
// the model performs no schema validation of its own, so a vector presented
// in any other order produces silently wrong charges.
package features

import (
	"fmt"
	"sort"
)

// Column names, in the order the model was trained on.
const (
	ColAge               = "age"
	ColBMI               = "bmi"
	ColChildren          = "children"
	ColIsObese           = "is_obese"
	ColBMIAgeInteraction = "bmi_age_interaction"
	ColSexIsMale         = "sex_is_male"
	ColSmokerIsYes       = "smoker_is_yes"
	ColRegionNorthwest   = "region_is_northwest"
	ColRegionSoutheast   = "region_is_southeast"
	ColRegionSouthwest   = "region_is_southwest"
)

// NumFeatures is the length of every encoded vector.
const NumFeatures = 10

// ObesityThreshold is the BMI above which an applicant counts as obese.
// A BMI of exactly 30.0 is not obese.
const ObesityThreshold = 30.0

// Schema is the training-time column order.
var Schema = [NumFeatures]string{
	ColAge,
	ColBMI,
	ColChildren,
	ColIsObese,
	ColBMIAgeInteraction,
	ColSexIsMale,
	ColSmokerIsYes,
	ColRegionNorthwest,
	ColRegionSoutheast,
	ColRegionSouthwest,
}

// Categorical attribute names as they appear in indicator column prefixes.
const (
	AttrSex    = "sex"
	AttrSmoker = "smoker"
	AttrRegion = "region"
)

// Categories lists the values seen at training time for each categorical
// attribute. The first entry of each list is the reference category, which
// has no indicator column of its own.
var Categories = map[string][]string{
	AttrSex:    {"female", "male"},
	AttrSmoker: {"no", "yes"},
	AttrRegion: {"northeast", "northwest", "southeast", "southwest"},
}

// categoricalOrder fixes iteration order over Categories.
var categoricalOrder = []string{AttrSex, AttrSmoker, AttrRegion}

// RawRecord is one applicant's input attributes, as supplied by the caller.
type RawRecord struct {
	Age      int     `json:"age"`
	Sex      string  `json:"sex"`
	BMI      float64 `json:"bmi"`
	Children int     `json:"children"`
	Smoker   string  `json:"smoker"`
	Region   string  `json:"region"`
}

func (r RawRecord) categorical(attr string) string {
	switch attr {
	case AttrSex:
		return r.Sex
	case AttrSmoker:
		return r.Smoker
	case AttrRegion:
		return r.Region
	}
	return ""
}

// Vector is an encoded record laid out in Schema order.
type Vector [NumFeatures]float64

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by column name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range Schema {
		m[name] = v[i]
	}
	return m
}

// Get returns the value of a named column.
func (v Vector) Get(name string) (float64, bool) {
	for i, col := range Schema {
		if col == name {
			return v[i], true
		}
	}
	return 0, false
}

// Encoding is the result of EncodeDetailed.
type Encoding struct {
	Vector Vector
	// UnknownCategories names the attributes whose value matched no
	// training-time category and was therefore encoded as the reference.
	UnknownCategories []string
	// Dropped lists indicator columns produced by one-hot encoding that are
	// not part of Schema (reference and unknown categories).
	Dropped []string
}

// IsObese returns 1 when bmi is strictly above ObesityThreshold, otherwise 0.
func IsObese(bmi float64) float64 {
	if bmi > ObesityThreshold {
		return 1
	}
	return 0
}

// BMIAgeInteraction is the plain product of bmi and age.
func BMIAgeInteraction(bmi float64, age int) float64 {
	return bmi * float64(age)
}

// IndicatorColumn names the one-hot column for an attribute value.
func IndicatorColumn(attr, value string) string {
	return fmt.Sprintf("%s_is_%s", attr, value)
}

// OneHot produces one indicator column per categorical attribute, named
// after whatever value the record carries. Nothing is dropped here, so the
// reference category and unrecognized values get columns too; Reconcile
// decides what the model sees.
func OneHot(rec RawRecord) map[string]float64 {
	cols := make(map[string]float64, len(categoricalOrder))
	for _, attr := range categoricalOrder {
		cols[IndicatorColumn(attr, rec.categorical(attr))] = 1
	}
	return cols
}

// Reconcile projects observed columns onto Schema. Schema columns missing
// from observed are synthesized as 0, so an unrecognized category ends up
// indistinguishable from the reference category. Observed columns outside
// Schema are returned, sorted, as dropped.
func Reconcile(observed map[string]float64) (Vector, []string) {
	var v Vector
	inSchema := make(map[string]struct{}, NumFeatures)
	for i, name := range Schema {
		inSchema[name] = struct{}{}
		if val, ok := observed[name]; ok {
			v[i] = val
		}
	}

	var dropped []string
	for name := range observed {
		if _, ok := inSchema[name]; !ok {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)
	return v, dropped
}

// KnownCategory reports whether value was seen at training time for attr.
// Matching is exact and case-sensitive.
func KnownCategory(attr, value string) bool {
	for _, c := range Categories[attr] {
		if c == value {
			return true
		}
	}
	return false
}

// EncodeDetailed encodes rec and reports how the categorical values were
// treated. Numeric inputs are passed through unchecked.
func EncodeDetailed(rec RawRecord) Encoding {
	observed := OneHot(rec)
	observed[ColAge] = float64(rec.Age)
	observed[ColBMI] = rec.BMI
	observed[ColChildren] = float64(rec.Children)
	observed[ColIsObese] = IsObese(rec.BMI)
	observed[ColBMIAgeInteraction] = BMIAgeInteraction(rec.BMI, rec.Age)

	v, dropped := Reconcile(observed)

	var unknown []string
	for _, attr := range categoricalOrder {
		if !KnownCategory(attr, rec.categorical(attr)) {
			unknown = append(unknown, attr)
		}
	}

	return Encoding{Vector: v, UnknownCategories: unknown, Dropped: dropped}
}

// Encode maps rec to its model vector.
func Encode(rec RawRecord) Vector {
	return EncodeDetailed(rec).Vector
}
