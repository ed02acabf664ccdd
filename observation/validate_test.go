package observation

import (
	"encoding/json"
	"strings"
	"testing"
)

func validData() map[string]interface{} {
	return map[string]interface{}{
		"age":            json.Number("39"),
		"workclass":      "State-gov",
		"education":      "Bachelors",
		"marital-status": "Never-married",
		"race":           "White",
		"sex":            "Male",
		"capital-gain":   json.Number("2174"),
		"capital-loss":   json.Number("0"),
		"hours-per-week": json.Number("40"),
	}
}

func TestParseRequest(t *testing.T) {
	body := []byte(`{"observation_id": 1, "data": {"age": 39}}`)
	req, err := ParseRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ObservationID != 1 {
		t.Errorf("unexpected id: %d", req.ObservationID)
	}
	if _, ok := req.Data["age"]; !ok {
		t.Errorf("data not decoded: %v", req.Data)
	}
}

func TestParseRequestMissingFields(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no id", `{"data": {}}`, "Field `observation_id` missing from request"},
		{"no data", `{"observation_id": 1}`, "Field `data` missing from request"},
		{"not json", `[1, 2]`, "Request is not a JSON object"},
		{"string id", `{"observation_id": "x", "data": {}}`, "Field `observation_id` is not an integer"},
		{"data not object", `{"observation_id": 1, "data": 5}`, "Field `data` is not an object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("got %q, want substring %q", err.Error(), tc.want)
			}
		})
	}
}

func TestCheckColumnsMissing(t *testing.T) {
	data := validData()
	delete(data, "age")
	delete(data, "sex")

	err := CheckColumns(data)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Missing columns") ||
		!strings.Contains(err.Error(), "age") || !strings.Contains(err.Error(), "sex") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestCheckColumnsExtra(t *testing.T) {
	data := validData()
	data["favorite-color"] = "blue"

	err := CheckColumns(data)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Unrecognized columns provided") ||
		!strings.Contains(err.Error(), "favorite-color") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestCheckColumnsMissingReportedBeforeExtra(t *testing.T) {
	data := validData()
	delete(data, "age")
	data["favorite-color"] = "blue"

	err := CheckColumns(data)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Missing columns") {
		t.Errorf("missing set should win: %v", err)
	}
	if strings.Contains(err.Error(), "favorite-color") {
		t.Errorf("extra set should not be reported alongside missing: %v", err)
	}
}

func TestCheckCategoricalValues(t *testing.T) {
	for _, column := range CategoricalColumns {
		data := validData()
		data[column] = "Bogus"

		err := CheckCategoricalValues(data)
		if err == nil {
			t.Fatalf("%s: expected error", column)
		}
		msg := err.Error()
		if !strings.Contains(msg, column) || !strings.Contains(msg, "Bogus") {
			t.Errorf("%s: message should name field and value: %v", column, err)
		}
		for _, allowed := range CategoricalValues[column] {
			if !strings.Contains(msg, "'"+allowed+"'") {
				t.Errorf("%s: allowed value %q not listed: %v", column, allowed, err)
			}
		}
	}
}

func TestCheckAgeBounds(t *testing.T) {
	cases := []struct {
		age  string
		pass bool
	}{
		{"9", false},
		{"10", true},
		{"100", true},
		{"101", false},
	}
	for _, tc := range cases {
		data := validData()
		data["age"] = json.Number(tc.age)
		err := CheckAge(data)
		if tc.pass && err != nil {
			t.Errorf("age %s: unexpected error: %v", tc.age, err)
		}
		if !tc.pass && err == nil {
			t.Errorf("age %s: expected error", tc.age)
		}
	}
}

func TestCheckHoursPerWeekBounds(t *testing.T) {
	cases := []struct {
		hours string
		pass  bool
	}{
		{"-1", false},
		{"0", true}, // zero is inside the documented range, not "missing"
		{"168", true},
		{"169", false},
	}
	for _, tc := range cases {
		data := validData()
		data["hours-per-week"] = json.Number(tc.hours)
		err := CheckHoursPerWeek(data)
		if tc.pass && err != nil {
			t.Errorf("hours %s: unexpected error: %v", tc.hours, err)
		}
		if !tc.pass && err == nil {
			t.Errorf("hours %s: expected error", tc.hours)
		}
	}
}

func TestCheckIntegerTypes(t *testing.T) {
	data := validData()
	data["age"] = json.Number("39.5")
	if err := CheckAge(data); err == nil || !strings.Contains(err.Error(), "not an integer") {
		t.Errorf("fractional age should fail: %v", err)
	}

	data = validData()
	data["hours-per-week"] = "forty"
	if err := CheckHoursPerWeek(data); err == nil || !strings.Contains(err.Error(), "not an integer") {
		t.Errorf("string hours should fail: %v", err)
	}
}

func TestValidateBuildsObservation(t *testing.T) {
	obs, err := Validate(validData())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Age != 39 || obs.Sex != "Male" || obs.CapitalGain != 2174 || obs.HoursPerWeek != 40 {
		t.Errorf("observation not built correctly: %+v", obs)
	}
}

func TestValidateRejectsNonIntegerCapital(t *testing.T) {
	data := validData()
	data["capital-gain"] = "lots"
	if _, err := Validate(data); err == nil || !strings.Contains(err.Error(), "capital-gain") {
		t.Errorf("expected capital-gain error, got %v", err)
	}
}

func TestObservationValue(t *testing.T) {
	obs, err := Validate(validData())
	if err != nil {
		t.Fatal(err)
	}
	for _, column := range Columns {
		if _, ok := obs.Value(column); !ok {
			t.Errorf("no value for column %s", column)
		}
	}
	if _, ok := obs.Value("unknown"); ok {
		t.Error("unknown column should not resolve")
	}
}
