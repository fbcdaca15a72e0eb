package models

import (
	"encoding/json"
	"strings"
)

// IdentifyResponse is the payload returned by the identification service.
// Only the fields the service consumes are modelled.
type IdentifyResponse struct {
	ID          int64        `json:"id,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion is a single candidate match
type Suggestion struct {
	ID           int64         `json:"id,omitempty"`
	PlantName    string        `json:"plant_name,omitempty"`
	Probability  float64       `json:"probability,omitempty"`
	PlantDetails *PlantDetails `json:"plant_details"`
}

// PlantDetails is the detail record shown to the user and appended to the
// saved plants list. Every field is optional.
//
// The record keeps the JSON it was decoded from so a saved entry carries
// every field of the service payload, including fields not modelled here.
// Whitespace is compacted when the saved list is written.
type PlantDetails struct {
	CommonNames    []string       `json:"common_names,omitempty"`
	ScientificName *string        `json:"scientific_name,omitempty"`
	Description    *string        `json:"description,omitempty"`
	CareTips       *CareTips      `json:"care_tips,omitempty"`
	Toxicity       *string        `json:"toxicity,omitempty"`
	GrowthDetails  *GrowthDetails `json:"growth_details,omitempty"`
	Images         []PlantImage   `json:"images,omitempty"`

	raw json.RawMessage
}

// CareTips holds optional care instructions
type CareTips struct {
	Watering    string `json:"watering,omitempty"`
	Sunlight    string `json:"sunlight,omitempty"`
	Soil        string `json:"soil,omitempty"`
	Temperature string `json:"temperature,omitempty"`
}

// GrowthDetails holds optional growth information
type GrowthDetails struct {
	Height     string `json:"height,omitempty"`
	Spread     string `json:"spread,omitempty"`
	GrowthRate string `json:"growth_rate,omitempty"`
}

// PlantImage references a reference photo of the plant
type PlantImage struct {
	URL string `json:"url"`
}

type plantDetailsFields PlantDetails

// UnmarshalJSON decodes the typed fields and retains the raw document
func (d *PlantDetails) UnmarshalJSON(data []byte) error {
	var fields plantDetailsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = PlantDetails(fields)
	d.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the original document when one was decoded
func (d PlantDetails) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	return json.Marshal(plantDetailsFields(d))
}

// Raw returns the JSON the record was decoded from, or nil
func (d *PlantDetails) Raw() json.RawMessage {
	if d == nil {
		return nil
	}
	return d.raw
}

// CommonNamesText joins the common names with ", "
func (d *PlantDetails) CommonNamesText() string {
	if d == nil {
		return ""
	}
	return strings.Join(d.CommonNames, ", ")
}

// Scientific returns the scientific name or ""
func (d *PlantDetails) Scientific() string {
	if d == nil || d.ScientificName == nil {
		return ""
	}
	return *d.ScientificName
}

// DescriptionText returns the description or ""
func (d *PlantDetails) DescriptionText() string {
	if d == nil || d.Description == nil {
		return ""
	}
	return *d.Description
}

// ToxicityText returns the toxicity note or ""
func (d *PlantDetails) ToxicityText() string {
	if d == nil || d.Toxicity == nil {
		return ""
	}
	return *d.Toxicity
}

// Names returns the scientific name followed by the common names
func (d *PlantDetails) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.CommonNames)+1)
	if s := d.Scientific(); s != "" {
		names = append(names, s)
	}
	for _, name := range d.CommonNames {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return names
}
