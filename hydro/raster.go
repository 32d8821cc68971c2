package hydro

import (
	"sort"
	"strings"
)

// Operation names used for raster identities.
const (
	OpSource             = "Source"
	OpFlowDirection      = "FlowDirection"
	OpFill               = "Fill"
	OpFlowAccumulation   = "FlowAccumulation"
	OpSink               = "Sink"
	OpMinus              = "Minus"
	OpZonalMean          = "ZonalMean"
	OpDeriveStreamRaster = "DeriveStreamRaster"
	OpFlowDistance       = "FlowDistance"
	OpFlowLength         = "FlowLength"
	OpStreamLink         = "StreamLink"
	OpStreamOrder        = "StreamOrder"
	OpSnapPourPoint      = "SnapPourPoint"
	OpWatershed          = "Watershed"
)

// Raster is a handle to a raster known to the engine. Rasters are never
// mutated after creation; a derived raster is identified by the operation
// that produced it, the identities of its inputs and its parameters.
type Raster struct {
	ID     string            // engine-assigned, unique per run
	Path   string            // location of the raster data (scratch or input)
	Op     string            // producing operation, OpSource for inputs
	Inputs []string          // identities of the input rasters
	Params map[string]string // operation parameters
}

// Source wraps an existing raster on disk (a DEM or a pour-point raster).
func Source(path string) Raster {
	return Raster{ID: path, Path: path, Op: OpSource}
}

// Derive builds the identity part of a raster produced by op. Engines fill
// in ID and Path.
func Derive(op string, params map[string]string, inputs ...Raster) Raster {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.Identity()
	}
	return Raster{Op: op, Inputs: ids, Params: params}
}

// Identity renders (operation, inputs, parameters) as a stable string.
func (r Raster) Identity() string {
	if r.Op == "" || r.Op == OpSource {
		return "source:" + r.Path
	}

	var b strings.Builder
	b.WriteString(r.Op)
	b.WriteByte('(')
	b.WriteString(strings.Join(r.Inputs, ","))
	if len(r.Params) > 0 {
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte(';')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(r.Params[k])
		}
	}
	b.WriteByte(')')
	return b.String()
}
