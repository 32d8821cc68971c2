package whitebox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parseAverage pulls the image average out of RasterSummaryStats output,
// e.g. "Image average: 1.2345". An all-nodata raster reports NaN.
func parseAverage(out []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(k))
		if !strings.HasSuffix(key, "average") && key != "mean" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("parse average %q: %w", v, err)
		}
		return f, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("no average in RasterSummaryStats output")
}

// parseToolList returns the tool names printed by --listtools, one
// "Name: description" per line after a header.
func parseToolList(out []byte) map[string]struct{} {
	tools := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		name, _, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		tools[name] = struct{}{}
	}
	return tools
}
