package ingest

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tokendash/tokendash/internal/keymap"
	"github.com/tokendash/tokendash/internal/table"
	"github.com/tokendash/tokendash/pkg/artemis"
)

// TreasurySyncConfig configures the digital-asset-treasury equities sync.
type TreasurySyncConfig struct {
	Equities           []string // tickers, with or without the EQ- prefix
	Labels             []string // UI labels, in output order
	Derived            []DerivedSpec
	CSVPath            string
	MappingPath        string
	LegacyMappingPaths []string // older artifact names, merged if present
}

// TreasurySync maintains the treasury equity table. Every label is
// API-only except the derived specs, which are computed locally from
// already-ingested base labels.
type TreasurySync struct {
	cfg    TreasurySyncConfig
	client artemis.Client
}

// NewTreasurySync creates the treasury sync job.
func NewTreasurySync(cfg TreasurySyncConfig, client artemis.Client) *TreasurySync {
	return &TreasurySync{cfg: cfg, client: client}
}

// EnsureEQPrefix normalizes an equity ticker to the provider's EQ- form.
func EnsureEQPrefix(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if strings.HasPrefix(ticker, "EQ-") {
		return ticker
	}
	return "EQ-" + ticker
}

// fetchPlan accumulates which symbols need a concrete provider key and the
// widest date range any of them requires. Symbols sharing a key are fetched
// in one batched request.
type fetchPlan struct {
	symbols map[string]struct{}
	start   string
}

// Run sequences one treasury sync: resolve the key mapping, compute resume
// ranges per label, fetch each distinct provider key batched across the
// symbols that need it, project raw points into labeled rows, recompute
// derived series, and rewrite both artifacts.
func (s *TreasurySync) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("job", "treasuries"))

	symbols := make([]string, len(s.cfg.Equities))
	for i, eq := range s.cfg.Equities {
		symbols[i] = EnsureEQPrefix(eq)
	}

	// Prior mapping decisions survive as resolver input, so manual edits in
	// the artifact stick across runs.
	paths := append(append([]string{}, s.cfg.LegacyMappingPaths...), s.cfg.MappingPath)
	mapping := keymap.Load(paths...)

	derivedByLabel := make(map[string]DerivedSpec, len(s.cfg.Derived))
	for _, spec := range s.cfg.Derived {
		derivedByLabel[spec.Label] = spec
	}

	// Enumerate advertised keys per symbol, best-effort. A failed listing
	// means availability is unknown and resolution turns optimistic.
	available := make(map[string][]string, len(symbols))
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		keys, err := s.client.ListMetrics(ctx, sym)
		if err != nil {
			log.Debug("metric enumeration unavailable",
				zap.String("symbol", sym), zap.Error(err))
			continue
		}
		available[sym] = keys
	}

	// Resolve every (symbol, label) pair. Base labels of derived specs are
	// resolved even when not listed, so derivation always has its inputs.
	labels := s.resolutionLabels()
	for _, sym := range symbols {
		for _, label := range labels {
			if spec, ok := derivedByLabel[label]; ok {
				mapping.Set(sym, label, spec.Marker())
				continue
			}
			candidates, ok := keymap.Candidates(label)
			if !ok {
				mapping.Set(sym, label, "")
				continue
			}
			key, ok := keymap.Resolve(candidates, mapping.Get(sym, label), available[sym])
			if !ok {
				mapping.Set(sym, label, "")
				continue
			}
			mapping.Set(sym, label, key)
		}
	}

	tbl, err := table.Load(s.cfg.CSVPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded table", zap.Int("rows", tbl.Len()))

	end := FetchEnd()
	result := &Result{}

	// One combined range per provider key, wide enough for every label that
	// resolves to it.
	plans := make(map[string]*fetchPlan)
	for _, sym := range symbols {
		for _, label := range labels {
			if _, isDerived := derivedByLabel[label]; isDerived {
				continue
			}
			key := mapping.Get(sym, label)
			if key == "" {
				continue
			}
			start, err := FetchStart(tbl, label, symbols)
			if err != nil {
				return nil, err
			}
			plan, ok := plans[key]
			if !ok {
				plan = &fetchPlan{symbols: make(map[string]struct{}), start: start}
				plans[key] = plan
			}
			plan.symbols[sym] = struct{}{}
			if start < plan.start {
				plan.start = start
			}
		}
	}

	// Fetch each key once, batched across symbols. Raw points stay in an
	// in-memory working set keyed by provider key; only labeled rows are
	// persisted.
	raw := make(map[string]map[string][]artemis.Point, len(plans))
	for _, key := range sortedKeys(plans) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		plan := plans[key]
		if plan.start > end {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		syms := make([]string, 0, len(plan.symbols))
		for sym := range plan.symbols {
			syms = append(syms, sym)
		}
		sort.Strings(syms)

		log.Info("fetching key",
			zap.String("key", key),
			zap.Strings("symbols", syms),
			zap.String("start", plan.start),
			zap.String("end", end),
		)
		points, err := s.client.FetchMetrics(ctx, key, syms, plan.start, end)
		if err != nil {
			log.Warn("key fetch failed, continuing with others",
				zap.String("key", key), zap.Error(err))
			result.Failed++
			continue
		}
		result.Fetched++
		raw[key] = points
	}

	if result.Fetched == 0 && result.Failed > 0 {
		return nil, ErrNoData
	}

	// Project raw points into labeled rows through the mapping.
	for _, sym := range symbols {
		for _, label := range labels {
			if _, isDerived := derivedByLabel[label]; isDerived {
				continue
			}
			key := mapping.Get(sym, label)
			if key == "" {
				continue
			}
			points, ok := raw[key][sym]
			if !ok {
				continue
			}
			result.Cells += Merge(tbl, label, map[string][]artemis.Point{sym: points})
		}
	}

	// Derived series are recomputed in full from the merged base labels.
	for _, spec := range s.cfg.Derived {
		n := Derive(tbl, spec, symbols)
		result.Cells += n
		log.Info("derived series recomputed",
			zap.String("label", spec.Label), zap.Int("cells", n))
	}

	if err := table.Write(s.cfg.CSVPath, tbl, s.cfg.Labels, symbols); err != nil {
		return nil, err
	}
	if err := keymap.Write(s.cfg.MappingPath, mapping); err != nil {
		return nil, err
	}
	log.Info("wrote artifacts",
		zap.String("table", s.cfg.CSVPath),
		zap.String("mapping", s.cfg.MappingPath),
		zap.Int("rows", tbl.Len()),
		zap.Int("cells_merged", result.Cells),
	)
	return result, nil
}

// resolutionLabels returns the configured labels plus any derived-spec base
// labels missing from the list, in stable order.
func (s *TreasurySync) resolutionLabels() []string {
	seen := make(map[string]struct{}, len(s.cfg.Labels))
	labels := make([]string, 0, len(s.cfg.Labels))
	for _, label := range s.cfg.Labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	for _, spec := range s.cfg.Derived {
		refs := spec.Multiply
		if spec.DivideBy != nil {
			refs = append(refs[:len(refs):len(refs)], *spec.DivideBy)
		}
		for _, ref := range refs {
			if _, ok := seen[ref.Label]; ok {
				continue
			}
			seen[ref.Label] = struct{}{}
			labels = append(labels, ref.Label)
		}
	}
	return labels
}

func sortedKeys(m map[string]*fetchPlan) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
