package hydro

import "math"

// BulkInput contains parameters for the bulk hydro analysis
type BulkInput struct {
	DEM       string `json:"dem"`       // input elevation raster
	Workspace string `json:"workspace"` // output directory or database container
	AddToMap  bool   `json:"add_to_map"`
}

// WatershedInput contains parameters for the optimized watershed
type WatershedInput struct {
	DEM        string   `json:"dem"`
	ZLimit     *float64 `json:"z_limit,omitempty"` // explicit fill threshold, nil to derive it
	Resolution float64  `json:"resolution"`        // DEM cell size
	PourPoints string   `json:"pour_points"`
	Workspace  string   `json:"workspace"`
	AddToMap   bool     `json:"add_to_map"`
}

// ValidateBulk returns one FieldError per invalid field.
func ValidateBulk(in BulkInput) []FieldError {
	var errs []FieldError
	if in.DEM == "" {
		errs = append(errs, FieldError{Field: "dem", Message: "required"})
	}
	if in.Workspace == "" {
		errs = append(errs, FieldError{Field: "workspace", Message: "required"})
	}
	return errs
}

// ValidateWatershed returns one FieldError per invalid field. Each field is
// checked independently, so a bad Z-limit does not hide other problems.
func ValidateWatershed(in WatershedInput) []FieldError {
	var errs []FieldError
	if in.DEM == "" {
		errs = append(errs, FieldError{Field: "dem", Message: "required"})
	}
	if in.ZLimit != nil && !positive(*in.ZLimit) {
		errs = append(errs, FieldError{Field: "z_limit", Message: "Z-limit must be greater than 0"})
	}
	if !positive(in.Resolution) {
		errs = append(errs, FieldError{Field: "resolution", Message: "must be greater than 0"})
	}
	if in.PourPoints == "" {
		errs = append(errs, FieldError{Field: "pour_points", Message: "required"})
	}
	if in.Workspace == "" {
		errs = append(errs, FieldError{Field: "workspace", Message: "required"})
	}
	return errs
}

// positive rejects NaN and infinities along with values <= 0.
func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func asValidationError(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}
