package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/series"
)

// Sleeve is one aligned sleeve. Return may be nil, in which case the
// market return is used.
type Sleeve struct {
	Position []float64
	Return   []float64
}

// Inputs is one instrument's fully loaded, date-aligned data.
type Inputs struct {
	Name    string
	Dates   []time.Time
	Price   []float64
	Credit  []float64
	Vix     []float64
	Sleeves map[string]Sleeve
	// ChopLabels replays an external chop series when non-nil.
	ChopLabels *series.Labels
}

// SleeveNames returns the sleeve identifiers in sorted order.
func (in *Inputs) SleeveNames() []string {
	out := make([]string, 0, len(in.Sleeves))
	for name := range in.Sleeves {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks every column matches the date axis.
func (in *Inputs) Validate() error {
	n := len(in.Dates)
	if n == 0 {
		return &series.DataAlignmentError{Series: in.Name, Reason: "no dates"}
	}
	check := func(col string, xs []float64, optional bool) error {
		if optional && xs == nil {
			return nil
		}
		if len(xs) != n {
			return &series.DataAlignmentError{Series: in.Name, Column: col, Reason: fmt.Sprintf("length %d, expected %d", len(xs), n)}
		}
		return nil
	}
	if err := check("price", in.Price, false); err != nil {
		return err
	}
	if err := check("credit", in.Credit, true); err != nil {
		return err
	}
	if err := check("vix", in.Vix, true); err != nil {
		return err
	}
	for name, s := range in.Sleeves {
		if err := check(name+".position", s.Position, false); err != nil {
			return err
		}
		if err := check(name+".return", s.Return, true); err != nil {
			return err
		}
	}
	for i := 1; i < n; i++ {
		if !in.Dates[i].After(in.Dates[i-1]) {
			return &series.DataAlignmentError{Series: in.Name, Reason: fmt.Sprintf("dates not increasing at %s", in.Dates[i].Format(series.DateLayout))}
		}
	}
	return nil
}

// Sources names the files that make up one instrument.
type Sources struct {
	Name    string
	Market  string
	Sleeves map[string]string
	Chop    string
}

// Load reads and aligns the market, sleeve and optional chop files. Dates
// are restricted to those where the price and every sleeve position are
// present. Credit and vix are forward filled up to cols.MaxFillGap before
// the join; anything still missing stays NaN.
func Load(ctx context.Context, cols config.DataConfig, src Sources) (*Inputs, error) {
	if len(src.Sleeves) == 0 {
		return nil, &series.DataAlignmentError{Series: src.Name, Reason: "no sleeves given"}
	}
	return load(ctx, cols, src)
}

// LoadMarket reads only the market and chop files, for regime labelling
// without a blend. Any sleeves in src are ignored.
func LoadMarket(ctx context.Context, cols config.DataConfig, src Sources) (*Inputs, error) {
	src.Sleeves = nil
	return load(ctx, cols, src)
}

func load(ctx context.Context, cols config.DataConfig, src Sources) (*Inputs, error) {
	logger := log.With().Str("component", "loader").Str("instrument", src.Name).Logger()

	market, err := series.LoadTable(ctx, src.Market)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}
	price, err := market.Series("price", cols.DateColumn, cols.PriceColumn)
	if err != nil {
		return nil, err
	}
	all := []series.TimeSeries{price}
	required := []string{"price"}

	optional := map[string]string{"credit": cols.CreditColumn, "vix": cols.VixColumn}
	for _, name := range []string{"credit", "vix"} {
		if !market.HasColumn(optional[name]) {
			logger.Warn().Str("column", optional[name]).Msg("Market column missing, scores will stay neutral")
			continue
		}
		s, err := market.Series(name, cols.DateColumn, optional[name])
		if err != nil {
			return nil, err
		}
		all = append(all, s.ForwardFill(cols.MaxFillGap))
	}

	names := make([]string, 0, len(src.Sleeves))
	for name := range src.Sleeves {
		names = append(names, name)
	}
	sort.Strings(names)
	hasReturn := make(map[string]bool, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := series.LoadTable(ctx, src.Sleeves[name])
		if err != nil {
			return nil, fmt.Errorf("load sleeve %s: %w", name, err)
		}
		pos, err := t.Series(name+".position", cols.DateColumn, cols.PositionColumn)
		if err != nil {
			return nil, err
		}
		all = append(all, pos)
		required = append(required, pos.Name)
		if t.HasColumn(cols.ReturnColumn) {
			ret, err := t.Series(name+".return", cols.DateColumn, cols.ReturnColumn)
			if err != nil {
				return nil, err
			}
			all = append(all, ret)
			hasReturn[name] = true
		}
	}

	frame, err := series.Align(all...)
	if err != nil {
		return nil, err
	}
	frame, err = frame.Intersect(required...)
	if err != nil {
		return nil, err
	}

	in := &Inputs{Name: src.Name, Dates: frame.Dates, Sleeves: make(map[string]Sleeve, len(names))}
	in.Price, _ = frame.Column("price")
	in.Credit = columnOrNaN(frame, "credit")
	in.Vix = columnOrNaN(frame, "vix")
	for _, name := range names {
		s := Sleeve{}
		s.Position, _ = frame.Column(name + ".position")
		if hasReturn[name] {
			s.Return, _ = frame.Column(name + ".return")
		}
		in.Sleeves[name] = s
	}

	if src.Chop != "" {
		t, err := series.LoadTable(ctx, src.Chop)
		if err != nil {
			return nil, fmt.Errorf("load chop labels: %w", err)
		}
		labels, err := t.Labels("chop", cols.DateColumn, cols.ChopColumn)
		if err != nil {
			return nil, err
		}
		in.ChopLabels = &labels
	}

	logger.Info().
		Int("dates", len(in.Dates)).
		Int("sleeves", len(names)).
		Str("first", in.Dates[0].Format(series.DateLayout)).
		Str("last", in.Dates[len(in.Dates)-1].Format(series.DateLayout)).
		Msg("Inputs aligned")
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func columnOrNaN(f *series.Frame, name string) []float64 {
	if col, err := f.Column(name); err == nil {
		return col
	}
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
