package models

// ImageURLRequest selects an image by URL
type ImageURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// CaptureRequest carries a camera screenshot as a data URL
type CaptureRequest struct {
	DataURL string `json:"data_url" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// SavedPlant is one entry of the saved plants list with its position
type SavedPlant struct {
	Index   int           `json:"index"`
	Details *PlantDetails `json:"details"`
}

// SearchMatch is a saved plant matched by a name search
type SearchMatch struct {
	SavedPlant
	MatchedName string  `json:"matched_name"`
	Score       float64 `json:"score"`
}

// SavedPlantsResponse lists saved plants
type SavedPlantsResponse struct {
	Count  int          `json:"count"`
	Plants []SavedPlant `json:"plants"`
}

// SearchResponse lists search matches best first
type SearchResponse struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Matches []SearchMatch `json:"matches"`
}
