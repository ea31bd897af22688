package ingest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/tokendash/tokendash/internal/table"
)

// BaseRef names one base series feeding a derived series. When ForwardFill
// is set, the last observed value is carried to later dates that lack their
// own observation; nothing is carried before the first observation.
type BaseRef struct {
	Label       string `yaml:"label"`
	ForwardFill bool   `yaml:"forward_fill"`
}

// DerivedSpec defines a locally computed series: the product of the
// Multiply inputs divided by DivideBy. The denominator must be present and
// non-zero on a date for that date to produce a value; otherwise the cell
// is simply absent, never zero and never an error.
type DerivedSpec struct {
	Label    string    `yaml:"label"`
	Multiply []BaseRef `yaml:"multiply"`
	DivideBy *BaseRef  `yaml:"divide_by"`
}

// Marker returns the artifact annotation recording that the label is
// computed locally rather than fetched.
func (s DerivedSpec) Marker() string {
	expr := ""
	for i, ref := range s.Multiply {
		if i > 0 {
			expr += "*"
		}
		expr += ref.Label
	}
	if s.DivideBy != nil {
		expr += "/" + s.DivideBy.Label
	}
	return "DERIVED(" + expr + ")"
}

// DefaultDerivedSpecs returns the built-in derived series: mNAV, the
// market's premium over net asset value. Shares outstanding are forward
// filled because they are reported sparsely; price and NAV are point-exact.
func DefaultDerivedSpecs() []DerivedSpec {
	return []DerivedSpec{
		{
			Label: "mNAV",
			Multiply: []BaseRef{
				{Label: "Price"},
				{Label: "Number of Shares Outstanding", ForwardFill: true},
			},
			DivideBy: &BaseRef{Label: "Net Asset Value"},
		},
	}
}

// LoadDerivedSpecs reads derived-series definitions from a YAML file,
// replacing the defaults. An empty path keeps the defaults.
func LoadDerivedSpecs(path string) ([]DerivedSpec, error) {
	if path == "" {
		return DefaultDerivedSpecs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read derived specs %s", path)
	}
	var doc struct {
		Derived []DerivedSpec `yaml:"derived"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse derived specs %s", path)
	}
	for _, spec := range doc.Derived {
		if spec.Label == "" || len(spec.Multiply) == 0 {
			return nil, eris.Errorf("ingest: derived spec needs a label and at least one multiply input: %+v", spec)
		}
	}
	return doc.Derived, nil
}

// Derive recomputes a derived series over the table's full date range for
// the given entities. Prior rows under the derived label are dropped first:
// derivation is idempotent and total, and if base coverage regressed the
// recomputed series legitimately has fewer cells than before.
//
// Returns the number of cells produced.
func Derive(tbl *table.Table, spec DerivedSpec, entities []string) int {
	tbl.DeleteSeries(spec.Label)

	dates := tbl.Dates()
	var n int

	for _, entity := range entities {
		entity = table.NormalizeEntity(entity)

		ffill := make(map[string]float64)
		ffillSeen := make(map[string]bool)

		for _, date := range dates {
			value := 1.0
			complete := true

			for _, ref := range spec.Multiply {
				v, ok := resolveBase(tbl, ref, entity, date, ffill, ffillSeen)
				if !ok {
					complete = false
					continue
				}
				value *= v
			}

			if spec.DivideBy != nil {
				v, ok := resolveBase(tbl, *spec.DivideBy, entity, date, ffill, ffillSeen)
				if !ok || v == 0 {
					complete = false
				} else {
					value /= v
				}
			}

			if complete {
				tbl.Upsert(date, spec.Label, entity, value)
				n++
			}
		}
	}
	return n
}

// resolveBase returns the base value for one input on one date, applying the
// forward-fill policy. The ffill maps carry per-entity scan state: Derive
// walks dates in ascending order, so the last observation is always current.
func resolveBase(tbl *table.Table, ref BaseRef, entity, date string, ffill map[string]float64, ffillSeen map[string]bool) (float64, bool) {
	v, ok := tbl.Value(date, ref.Label, entity)
	if ok {
		if ref.ForwardFill {
			ffill[ref.Label] = v
			ffillSeen[ref.Label] = true
		}
		return v, true
	}
	if ref.ForwardFill && ffillSeen[ref.Label] {
		return ffill[ref.Label], true
	}
	return 0, false
}
