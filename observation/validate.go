package observation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Validate runs the full check sequence against a submitted data
// mapping and, when every check passes, builds the typed Observation.
// Checks run in a fixed order and short-circuit on the first failure;
// the returned error string is the message surfaced to the caller.
func Validate(data map[string]interface{}) (*Observation, error) {
	if err := CheckColumns(data); err != nil {
		return nil, err
	}
	if err := CheckCategoricalValues(data); err != nil {
		return nil, err
	}
	if err := CheckHoursPerWeek(data); err != nil {
		return nil, err
	}
	if err := CheckAge(data); err != nil {
		return nil, err
	}
	return build(data)
}

// CheckColumns verifies the data's key set equals the recognized
// columns exactly. Missing columns are reported first and
// short-circuit, so extras are only reported when nothing is missing.
func CheckColumns(data map[string]interface{}) error {
	recognized := make(map[string]bool, len(Columns))
	for _, column := range Columns {
		recognized[column] = true
	}

	var missing []string
	for _, column := range Columns {
		if _, ok := data[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("Missing columns: %s", formatSet(missing))
	}

	var extra []string
	for key := range data {
		if !recognized[key] {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		return fmt.Errorf("Unrecognized columns provided: %s", formatSet(extra))
	}
	return nil
}

// CheckCategoricalValues verifies each categorical field holds a value
// from its fixed vocabulary.
func CheckCategoricalValues(data map[string]interface{}) error {
	for _, column := range CategoricalColumns {
		raw, ok := data[column]
		if !ok {
			return fmt.Errorf("Categorical field `%s` missing", column)
		}
		value, ok := raw.(string)
		if !ok {
			return fmt.Errorf("Invalid value provided for %s: %v. Allowed values are: %s",
				column, raw, formatAllowed(CategoricalValues[column]))
		}
		if !contains(CategoricalValues[column], value) {
			return fmt.Errorf("Invalid value provided for %s: %s. Allowed values are: %s",
				column, value, formatAllowed(CategoricalValues[column]))
		}
	}
	return nil
}

// CheckHoursPerWeek verifies hours-per-week is an integer within
// [0, 168]. Zero is a legal value: absence and zero are distinct here,
// since presence is tested on the key rather than on truthiness.
func CheckHoursPerWeek(data map[string]interface{}) error {
	raw, ok := data["hours-per-week"]
	if !ok {
		return fmt.Errorf("Field `hours-per-week` missing")
	}
	hours, ok := intValue(raw)
	if !ok {
		return fmt.Errorf("Field `hours-per-week` is not an integer")
	}
	if hours < 0 || hours > 168 {
		return fmt.Errorf("Field `hours-per-week` %d is not between 0 and 168", hours)
	}
	return nil
}

// CheckAge verifies age is an integer within [10, 100].
func CheckAge(data map[string]interface{}) error {
	raw, ok := data["age"]
	if !ok {
		return fmt.Errorf("Field `age` missing")
	}
	age, ok := intValue(raw)
	if !ok {
		return fmt.Errorf("Field `age` is not an integer")
	}
	if age < 10 || age > 100 {
		return fmt.Errorf("Field `age` %d is not between 10 and 100", age)
	}
	return nil
}

// build converts the checked mapping into the typed record. The two
// capital fields carry no range rule but still must be integers for
// the pipeline to consume them.
func build(data map[string]interface{}) (*Observation, error) {
	obs := &Observation{
		Workclass:     data["workclass"].(string),
		Education:     data["education"].(string),
		MaritalStatus: data["marital-status"].(string),
		Race:          data["race"].(string),
		Sex:           data["sex"].(string),
	}
	obs.Age, _ = intValue(data["age"])
	obs.HoursPerWeek, _ = intValue(data["hours-per-week"])

	for _, column := range []string{"capital-gain", "capital-loss"} {
		value, ok := intValue(data[column])
		if !ok {
			return nil, fmt.Errorf("Field `%s` is not an integer", column)
		}
		if column == "capital-gain" {
			obs.CapitalGain = value
		} else {
			obs.CapitalLoss = value
		}
	}
	return obs, nil
}

// intValue reports whether raw holds an integral number and returns
// it. Data decoded with UseNumber arrives as json.Number; plain
// float64 is accepted when it has no fractional part, matching how
// JSON callers send integers.
func intValue(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func formatSet(columns []string) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	return "[" + strings.Join(sorted, ", ") + "]"
}

func formatAllowed(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ",")
}
