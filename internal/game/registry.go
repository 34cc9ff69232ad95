package game

import (
	"fmt"
	"sort"
	"time"
)

// Definition is everything the arena needs to know about a game type.
type Definition struct {
	Type          string           `json:"game_type"`
	MinPlayers    int              `json:"min_players"`
	MaxPlayers    int              `json:"max_players"`
	DurationTicks int              `json:"duration_ticks"`
	TickRate      time.Duration    `json:"tick_rate"`
	EntryFees     map[string]int64 `json:"entry_fees"`
	PrizeRateBPS  int64            `json:"prize_rate_bps"`
	RatingWindow  int              `json:"rating_window"`

	New func(seed int64) Game `json:"-"`
}

func (d Definition) EntryFee(level string) (int64, bool) {
	fee, ok := d.EntryFees[level]
	return fee, ok
}

// Levels lists the levels ordered by fee.
func (d Definition) Levels() []string {
	out := make([]string, 0, len(d.EntryFees))
	for lvl := range d.EntryFees {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := d.EntryFees[out[i]], d.EntryFees[out[j]]
		if fi != fj {
			return fi < fj
		}
		return out[i] < out[j]
	})
	return out
}

func (d Definition) validate() error {
	switch {
	case d.Type == "":
		return fmt.Errorf("game type is empty")
	case d.MinPlayers < 2 || d.MaxPlayers < d.MinPlayers:
		return fmt.Errorf("%s: invalid player bounds %d..%d", d.Type, d.MinPlayers, d.MaxPlayers)
	case d.DurationTicks <= 0:
		return fmt.Errorf("%s: duration must be positive", d.Type)
	case d.PrizeRateBPS < 0 || d.PrizeRateBPS > 10000:
		return fmt.Errorf("%s: prize rate out of range", d.Type)
	case len(d.EntryFees) == 0:
		return fmt.Errorf("%s: no levels", d.Type)
	case d.New == nil:
		return fmt.Errorf("%s: no factory", d.Type)
	}
	for lvl, fee := range d.EntryFees {
		if fee < 0 {
			return fmt.Errorf("%s: negative fee for %s", d.Type, lvl)
		}
	}
	return nil
}

type Registry struct {
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: map[string]Definition{}}
}

func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	if _, ok := r.defs[def.Type]; ok {
		return fmt.Errorf("game %s already registered", def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

func (r *Registry) Lookup(gameType string) (Definition, bool) {
	def, ok := r.defs[gameType]
	return def, ok
}

// Definitions returns every registered game sorted by type.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
