package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

func decodeFailure(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", perrors.ErrDecodeFailure, fmt.Sprintf(format, args...))
}

// decodeStrict unmarshals raw into v, rejecting trailing data.
func decodeStrict(raw string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return decodeFailure("%v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return decodeFailure("trailing data after JSON value")
	}
	return nil
}

// requireKeys checks that every key is present and not null.
func requireKeys(obj map[string]json.RawMessage, keys ...string) error {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			return decodeFailure("missing key %q", k)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return decodeFailure("key %q is null", k)
		}
	}
	return nil
}

func decodeKeywords(raw string) ([]string, error) {
	var kw []string
	if err := decodeStrict(raw, &kw); err != nil {
		return nil, err
	}
	if kw == nil {
		return nil, decodeFailure("expected a JSON array")
	}
	return kw, nil
}

func decodeScore(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, decodeFailure("not a number: %v", err)
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, decodeFailure("score %v outside [0, 1]", f)
	}
	return f, nil
}

var gapKeys = []string{"category", "description", "severity", "impact", "suggestions"}

func decodeGap(raw string) (GapAnalysis, error) {
	var obj map[string]json.RawMessage
	if err := decodeStrict(raw, &obj); err != nil {
		return GapAnalysis{}, err
	}
	if obj == nil {
		return GapAnalysis{}, decodeFailure("expected a JSON object")
	}
	if err := requireKeys(obj, gapKeys...); err != nil {
		return GapAnalysis{}, err
	}

	var g GapAnalysis
	fields := map[string]interface{}{
		"category":    &g.Category,
		"description": &g.Description,
		"severity":    &g.Severity,
		"impact":      &g.Impact,
		"suggestions": &g.Suggestions,
	}
	for k, dst := range fields {
		if err := json.Unmarshal(obj[k], dst); err != nil {
			return GapAnalysis{}, decodeFailure("key %q: %v", k, err)
		}
	}

	sev, ok := normalizeRisk(g.Severity)
	if !ok {
		return GapAnalysis{}, decodeFailure("severity %q is not Low, Medium or High", g.Severity)
	}
	g.Severity = sev
	return g, nil
}

var regressionKeys = []string{"area", "description", "riskLevel", "testCases", "rationale"}

func decodeRegressionAreas(raw string) ([]RegressionArea, error) {
	var items []map[string]json.RawMessage
	if err := decodeStrict(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, decodeFailure("expected a JSON array")
	}

	areas := make([]RegressionArea, 0, len(items))
	for i, obj := range items {
		if obj == nil {
			return nil, decodeFailure("entry %d is not an object", i)
		}
		if err := requireKeys(obj, regressionKeys...); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		var a RegressionArea
		fields := map[string]interface{}{
			"area":        &a.Area,
			"description": &a.Description,
			"riskLevel":   &a.RiskLevel,
			"testCases":   &a.TestCases,
			"rationale":   &a.Rationale,
		}
		for k, dst := range fields {
			if err := json.Unmarshal(obj[k], dst); err != nil {
				return nil, decodeFailure("entry %d key %q: %v", i, k, err)
			}
		}

		risk, ok := normalizeRisk(a.RiskLevel)
		if !ok {
			return nil, decodeFailure("entry %d riskLevel %q is not Low, Medium or High", i, a.RiskLevel)
		}
		a.RiskLevel = risk
		areas = append(areas, a)
	}
	return areas, nil
}
