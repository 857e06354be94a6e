package harness

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nexus/internal/doc"
)

// Summary renders outcomes one canonical JSON object per line.
func Summary(outcomes []Outcome) ([]byte, error) {
	var buf bytes.Buffer
	for _, o := range outcomes {
		obj := doc.Object{
			"name":   doc.String(o.Name),
			"method": doc.String(o.Method),
			"status": doc.Int(int64(o.Status)),
		}
		if o.Code != "" {
			obj["code"] = doc.String(o.Code)
		}
		line, err := doc.MarshalCanonical(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs scenario, fails t on unmet expectations and compares
// the outcome summary with testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%s", scenario.Name, strings.Join(result.Errors, "\n"))
	}

	summary, err := Summary(result.Outcomes)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, summary)
	return nil
}
