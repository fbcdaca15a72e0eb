// Package presenter turns session state into what a client displays.
package presenter

import (
	"strings"

	"github.com/samber/lo"

	"go-plant-identifier/internal/service"
	"go-plant-identifier/pkg/models"
)

// View is the conditional view of a session. Sections are nil when they
// would not be shown.
type View struct {
	SessionID   string   `json:"session_id"`
	Phase       string   `json:"phase"`
	Loading     bool     `json:"loading"`
	Error       string   `json:"error,omitempty"`
	ShowSubmit  bool     `json:"show_submit"`
	UsingCamera bool     `json:"using_camera"`
	ImageName   string   `json:"image_name,omitempty"`
	Expanded    bool     `json:"expanded"`
	CanSave     bool     `json:"can_save"`
	Summary     *Summary `json:"summary,omitempty"`
	Details     *Details `json:"details,omitempty"`
}

// Summary is always shown for a result
type Summary struct {
	CommonNames    string `json:"common_names,omitempty"`
	ScientificName string `json:"scientific_name,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Details is shown only while expanded
type Details struct {
	CareTips      *models.CareTips      `json:"care_tips,omitempty"`
	Toxicity      string                `json:"toxicity,omitempty"`
	GrowthDetails *models.GrowthDetails `json:"growth_details,omitempty"`
	Images        []string              `json:"images,omitempty"`
}

// Build derives the view from a session snapshot
func Build(state service.SessionState) View {
	view := View{
		SessionID:   state.ID,
		Phase:       string(state.Phase),
		Loading:     state.Loading,
		Error:       state.Error,
		ShowSubmit:  !state.Loading,
		UsingCamera: state.UsingCamera,
		ImageName:   state.ImageName,
		Expanded:    state.Expanded,
	}
	if state.Result == nil {
		return view
	}

	view.CanSave = true
	view.Summary = BuildSummary(state.Result)
	if state.Expanded {
		view.Details = BuildDetails(state.Result)
	}
	return view
}

// BuildSummary returns the fields present in the result's header section
func BuildSummary(result *models.PlantDetails) *Summary {
	return &Summary{
		CommonNames:    result.CommonNamesText(),
		ScientificName: result.Scientific(),
		Description:    result.DescriptionText(),
	}
}

// BuildDetails returns the expanded section, or nil when the result has
// none of its fields
func BuildDetails(result *models.PlantDetails) *Details {
	details := &Details{
		Toxicity: result.ToxicityText(),
		Images: lo.FilterMap(result.Images, func(img models.PlantImage, _ int) (string, bool) {
			url := strings.TrimSpace(img.URL)
			return url, url != ""
		}),
	}
	if result.CareTips != nil && *result.CareTips != (models.CareTips{}) {
		details.CareTips = result.CareTips
	}
	if result.GrowthDetails != nil && *result.GrowthDetails != (models.GrowthDetails{}) {
		details.GrowthDetails = result.GrowthDetails
	}
	if details.CareTips == nil && details.GrowthDetails == nil && details.Toxicity == "" && len(details.Images) == 0 {
		return nil
	}
	return details
}
