package guardrail

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReasonCodeOrdering(t *testing.T) {
	codes := []ReasonCode{
		CodeSourceNotMetric,
		CodeMarginExceeded,
		CodeApplicabilityNotPass,
		CodeCurvatureWindowFail,
		CodeSignalMissing,
	}
	sortCodes(codes)

	want := []ReasonCode{
		CodeSignalMissing,
		CodeCurvatureWindowFail,
		CodeApplicabilityNotPass,
		CodeMarginExceeded,
		CodeSourceNotMetric,
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], codes[i])
		}
	}
}

func TestUnknownCodesSortAlphabeticallyAfter(t *testing.T) {
	codes := []ReasonCode{"ZEBRA_CODE", CodeSourceNotMetric, "ALPHA_CODE", CodeSignalMissing}
	sortCodes(codes)

	want := []ReasonCode{CodeSignalMissing, CodeSourceNotMetric, "ALPHA_CODE", "ZEBRA_CODE"}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], codes[i])
		}
	}
}

func TestSamplerKFactor(t *testing.T) {
	if k, ok := SamplerGaussian.KFactor(); !ok || k != 1.0 {
		t.Fatalf("gaussian: got %f, %v", k, ok)
	}
	if _, ok := Sampler("hann").KFactor(); ok {
		t.Fatal("unknown sampler must not resolve a K factor")
	}
}

func TestSummaryWireContractFieldNames(t *testing.T) {
	raw := 0.5
	sum := Summary{MarginRatioRaw: &raw}
	data, err := json.Marshal(sum)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)

	for _, field := range []string{
		`"marginRatioRaw"`,
		`"marginRatio"`,
		`"applicabilityStatus"`,
		`"applicabilityReasonCode"`,
		`"rhoSource"`,
		`"effectiveRho"`,
		`"lhs"`,
		`"bound"`,
		`"duty"`,
		`"patternDuty"`,
		`"sumWindowDt"`,
		`"dutyEffectiveFR"`,
	} {
		if !strings.Contains(body, field) {
			t.Fatalf("wire contract field %s missing from %s", field, body)
		}
	}
}

func TestMissingRawRatioSerializesNull(t *testing.T) {
	data, err := json.Marshal(Summary{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"marginRatioRaw":null`) {
		t.Fatalf("missing raw ratio must serialize as null: %s", data)
	}
}
