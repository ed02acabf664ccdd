// Package observation defines the submitted feature record and its
// validation rules. Every check mirrors what the model was trained
// against, so the allowed values are literal constants here rather
// than something recomputed at runtime.
package observation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Columns is the full set of recognized feature fields. An incoming
// observation must contain exactly these keys.
var Columns = []string{
	"age",
	"workclass",
	"education",
	"marital-status",
	"race",
	"sex",
	"capital-gain",
	"capital-loss",
	"hours-per-week",
}

// CategoricalColumns lists the fields whose values are checked against
// a fixed vocabulary, in the order the checks run.
var CategoricalColumns = []string{"sex", "race", "workclass", "education", "marital-status"}

// CategoricalValues holds the allowed vocabulary per categorical field.
var CategoricalValues = map[string][]string{
	"sex": {"Male", "Female"},
	"race": {
		"White", "Black", "Asian-Pac-Islander", "Amer-Indian-Eskimo", "Other",
	},
	"workclass": {
		"State-gov", "Self-emp-not-inc", "Private", "Federal-gov", "Local-gov",
		"Self-emp-inc", "Without-pay", "Never-worked", "?",
	},
	"education": {
		"Bachelors", "HS-grad", "11th", "Masters", "9th", "Some-college",
		"Assoc-acdm", "Assoc-voc", "7th-8th", "Doctorate", "Prof-school",
		"5th-6th", "10th", "1st-4th", "Preschool", "12th",
	},
	"marital-status": {
		"Never-married", "Married-civ-spouse", "Divorced",
		"Married-spouse-absent", "Separated", "Married-AF-spouse", "Widowed",
	},
}

// Observation is a fully validated feature record. Once constructed it
// carries no dynamic values; downstream code never re-checks types.
type Observation struct {
	Age           int    `json:"age"`
	Workclass     string `json:"workclass"`
	Education     string `json:"education"`
	MaritalStatus string `json:"marital-status"`
	Race          string `json:"race"`
	Sex           string `json:"sex"`
	CapitalGain   int    `json:"capital-gain"`
	CapitalLoss   int    `json:"capital-loss"`
	HoursPerWeek  int    `json:"hours-per-week"`
}

// Value returns the observation's value for a feature column by name.
func (o *Observation) Value(column string) (interface{}, bool) {
	switch column {
	case "age":
		return o.Age, true
	case "workclass":
		return o.Workclass, true
	case "education":
		return o.Education, true
	case "marital-status":
		return o.MaritalStatus, true
	case "race":
		return o.Race, true
	case "sex":
		return o.Sex, true
	case "capital-gain":
		return o.CapitalGain, true
	case "capital-loss":
		return o.CapitalLoss, true
	case "hours-per-week":
		return o.HoursPerWeek, true
	default:
		return nil, false
	}
}

// PredictRequest is the decoded envelope of a /predict call.
type PredictRequest struct {
	ObservationID int64
	Data          map[string]interface{}
	// RawData is the data object exactly as submitted, persisted
	// alongside the prediction for auditing.
	RawData json.RawMessage
}

// ParseRequest performs the envelope check: the payload must be a JSON
// object carrying `observation_id` and `data`. Errors echo the raw
// payload so callers can see what the server actually received.
func ParseRequest(body []byte) (*PredictRequest, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("Request is not a JSON object: %s", string(body))
	}

	rawID, ok := envelope["observation_id"]
	if !ok {
		return nil, fmt.Errorf("Field `observation_id` missing from request: %s", string(body))
	}
	rawData, ok := envelope["data"]
	if !ok {
		return nil, fmt.Errorf("Field `data` missing from request: %s", string(body))
	}

	var id int64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, fmt.Errorf("Field `observation_id` is not an integer: %s", string(rawID))
	}

	data, err := decodeData(rawData)
	if err != nil {
		return nil, err
	}

	return &PredictRequest{ObservationID: id, Data: data, RawData: rawData}, nil
}

// decodeData unmarshals the data object keeping numbers as json.Number
// so integer checks can tell 40 from 40.5.
func decodeData(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("Field `data` is not an object: %s", string(raw))
	}
	return data, nil
}
