// Package astromining implements Astro Mining Wars: agents steer a fleet
// across a grid, mine minerals and gas, build ships and raid each other.
// The richest fleet at the final tick wins.
package astromining

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"agent-arena/internal/config"
	"agent-arena/internal/game"

	gojson "github.com/goccy/go-json"
)

const Type = "astro-mining"

const (
	CellEmpty    = "empty"
	CellAsteroid = "asteroid"
	CellGas      = "gas"
	CellNebula   = "nebula"
	CellBase     = "base"

	ResourceMinerals = "minerals"
	ResourceGas      = "gas"

	UnitMiner   = "miner"
	UnitWarship = "warship"
	UnitScout   = "scout"

	defaultMapSize  = 10
	minMapSize      = 4
	mineRate        = 10
	passiveRate     = 5
	attackRange     = 2
	scoutRadius     = 3
	publicLogWindow = 20
)

var unitCosts = map[string]Resources{
	UnitMiner:   {Minerals: 200},
	UnitWarship: {Minerals: 300, Gas: 100},
	UnitScout:   {Minerals: 150, Gas: 50},
}

var buildOrder = []string{UnitMiner, UnitWarship, UnitScout}

var (
	errUnknownPlayer     = errors.New("unknown player")
	errUnknownAction     = errors.New("unknown action")
	errBadDirection      = errors.New("direction must be up, down, left or right")
	errOutOfBounds       = errors.New("out of bounds")
	errNoResource        = errors.New("no resource here")
	errNoMiners          = errors.New("no miners available")
	errBadUnit           = errors.New("invalid unit type")
	errInsufficientFunds = errors.New("insufficient resources")
	errNoTarget          = errors.New("target not found")
	errTargetTooFar      = errors.New("target too far")
	errNoWarships        = errors.New("no warships available")
	errNoScouts          = errors.New("no scouts available")
)

type Resources struct {
	Minerals int64 `json:"minerals"`
	Gas      int64 `json:"gas"`
}

func (r Resources) covers(cost Resources) bool {
	return r.Minerals >= cost.Minerals && r.Gas >= cost.Gas
}

type Fleet struct {
	Miners   int `json:"miners"`
	Warships int `json:"warships"`
	Scouts   int `json:"scouts"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) distance(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

type Resource struct {
	Kind   string `json:"type"`
	Amount int64  `json:"amount"`
}

type Cell struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Type     string    `json:"type"`
	Resource *Resource `json:"resource,omitempty"`
	Owner    string    `json:"owner,omitempty"`
}

type Map struct {
	Size  int      `json:"size"`
	Cells [][]Cell `json:"cells"`
}

type player struct {
	ID         string
	Name       string
	Seat       int
	Resources  Resources
	Fleet      Fleet
	Position   Position
	Base       Position
	LastAction *game.Action
}

type PlayerView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name,omitempty"`
	Seat       int          `json:"seat"`
	Resources  Resources    `json:"resources"`
	Fleet      Fleet        `json:"fleet"`
	Position   Position     `json:"position"`
	Base       Position     `json:"base"`
	LastAction *game.Action `json:"last_action,omitempty"`
}

type LogEntry struct {
	Tick     int       `json:"tick"`
	Type     string    `json:"type"`
	AgentID  string    `json:"agent_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	Resource string    `json:"resource,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	Gas      int64     `json:"gas,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	From     *Position `json:"from,omitempty"`
	To       *Position `json:"to,omitempty"`
	Revealed int       `json:"revealed,omitempty"`
}

type State struct {
	TimeRemaining int          `json:"time_remaining"`
	Map           Map          `json:"map"`
	Players       []PlayerView `json:"players"`
	EventLog      []LogEntry   `json:"event_log"`
}

type Game struct {
	rng     *rand.Rand
	size    int
	board   Map
	players []*player
	byID    map[string]*player
	log     []LogEntry
	clock   int
}

func New(seed int64, mapSize int) *Game {
	if mapSize < minMapSize {
		mapSize = defaultMapSize
	}
	return &Game{
		rng:  rand.New(rand.NewSource(seed)),
		size: mapSize,
		byID: map[string]*player{},
	}
}

// Definition binds catalog settings to this game.
func Definition(s config.GameSettings) game.Definition {
	size := s.MapSize
	return game.Definition{
		Type:          Type,
		MinPlayers:    s.MinPlayers,
		MaxPlayers:    s.MaxPlayers,
		DurationTicks: s.DurationTicks,
		TickRate:      s.TickRate,
		EntryFees:     s.EntryFees,
		PrizeRateBPS:  s.PrizeRateBPS,
		RatingWindow:  s.RatingWindow,
		New:           func(seed int64) game.Game { return New(seed, size) },
	}
}

func (g *Game) Setup(players []game.Player) error {
	if len(players) > 4 {
		return fmt.Errorf("astro-mining supports at most 4 players, got %d", len(players))
	}
	g.board = g.generateMap()
	for i, p := range players {
		base := g.basePosition(i)
		st := &player{
			ID:       p.ID,
			Name:     p.Name,
			Seat:     i,
			Fleet:    Fleet{Miners: 3, Warships: 1, Scouts: 1},
			Position: base,
			Base:     base,
		}
		g.players = append(g.players, st)
		g.byID[p.ID] = st
		cell := &g.board.Cells[base.Y][base.X]
		cell.Type = CellBase
		cell.Resource = nil
		cell.Owner = p.ID
	}
	g.record(LogEntry{Type: "game_started", Amount: int64(len(players))})
	return nil
}

func (g *Game) generateMap() Map {
	cells := make([][]Cell, g.size)
	for y := 0; y < g.size; y++ {
		row := make([]Cell, g.size)
		for x := 0; x < g.size; x++ {
			c := Cell{X: x, Y: y, Type: CellEmpty}
			switch {
			case g.rng.Float64() < 0.15:
				c.Type = CellAsteroid
				c.Resource = &Resource{Kind: ResourceMinerals, Amount: int64(g.rng.Intn(300) + 100)}
			case g.rng.Float64() < 0.08:
				c.Type = CellGas
				c.Resource = &Resource{Kind: ResourceGas, Amount: int64(g.rng.Intn(200) + 50)}
			case g.rng.Float64() < 0.05:
				c.Type = CellNebula
			}
			row[x] = c
		}
		cells[y] = row
	}
	return Map{Size: g.size, Cells: cells}
}

func (g *Game) basePosition(seat int) Position {
	far := g.size - 2
	corners := []Position{{1, 1}, {far, far}, {1, far}, {far, 1}}
	return corners[seat%len(corners)]
}

func (g *Game) record(e LogEntry) {
	e.Tick = g.clock
	g.log = append(g.log, e)
}

func (g *Game) Validate(agentID string, a game.Action) error {
	p, ok := g.byID[agentID]
	if !ok {
		return errUnknownPlayer
	}
	return g.check(p, a)
}

func (g *Game) check(p *player, a game.Action) error {
	switch a.Type {
	case "move":
		_, err := g.moveTarget(p, a.Param("direction"))
		return err
	case "mine":
		cell := g.board.Cells[p.Position.Y][p.Position.X]
		if cell.Resource == nil {
			return errNoResource
		}
		if p.Fleet.Miners <= 0 {
			return errNoMiners
		}
		return nil
	case "build":
		cost, ok := unitCosts[a.Param("unit_type")]
		if !ok {
			return errBadUnit
		}
		if !p.Resources.covers(cost) {
			return errInsufficientFunds
		}
		return nil
	case "attack":
		target, ok := g.byID[a.Param("target_id")]
		if !ok || target == p {
			return errNoTarget
		}
		if p.Position.distance(target.Position) > attackRange {
			return errTargetTooFar
		}
		if p.Fleet.Warships <= 0 {
			return errNoWarships
		}
		return nil
	case "scout":
		if p.Fleet.Scouts <= 0 {
			return errNoScouts
		}
		return nil
	default:
		return errUnknownAction
	}
}

func (g *Game) moveTarget(p *player, direction string) (Position, error) {
	next := p.Position
	switch direction {
	case "up":
		next.Y--
	case "down":
		next.Y++
	case "left":
		next.X--
	case "right":
		next.X++
	default:
		return next, errBadDirection
	}
	if next.X < 0 || next.X >= g.size || next.Y < 0 || next.Y >= g.size {
		return next, errOutOfBounds
	}
	return next, nil
}

func (g *Game) Apply(agentID string, a game.Action) error {
	p, ok := g.byID[agentID]
	if !ok {
		return errUnknownPlayer
	}
	if err := g.check(p, a); err != nil {
		return err
	}
	action := a
	p.LastAction = &action
	switch a.Type {
	case "move":
		from := p.Position
		to, _ := g.moveTarget(p, a.Param("direction"))
		p.Position = to
		g.record(LogEntry{Type: "move", AgentID: p.ID, From: &from, To: &to})
	case "mine":
		kind, mined := g.harvest(p, mineRate)
		g.record(LogEntry{Type: "mine", AgentID: p.ID, Resource: kind, Amount: mined})
	case "build":
		unit := a.Param("unit_type")
		cost := unitCosts[unit]
		p.Resources.Minerals -= cost.Minerals
		p.Resources.Gas -= cost.Gas
		switch unit {
		case UnitMiner:
			p.Fleet.Miners++
		case UnitWarship:
			p.Fleet.Warships++
		case UnitScout:
			p.Fleet.Scouts++
		}
		g.record(LogEntry{Type: "build", AgentID: p.ID, Unit: unit})
	case "attack":
		g.attack(p, g.byID[a.Param("target_id")])
	case "scout":
		g.record(LogEntry{Type: "scout", AgentID: p.ID, Revealed: len(g.reveal(p.Position))})
	}
	return nil
}

// harvest moves up to rate x miners from the current cell into the player's
// hold and clears the cell once depleted.
func (g *Game) harvest(p *player, rate int64) (string, int64) {
	cell := &g.board.Cells[p.Position.Y][p.Position.X]
	if cell.Resource == nil || p.Fleet.Miners <= 0 {
		return "", 0
	}
	kind := cell.Resource.Kind
	mined := min(rate*int64(p.Fleet.Miners), cell.Resource.Amount)
	cell.Resource.Amount -= mined
	if kind == ResourceMinerals {
		p.Resources.Minerals += mined
	} else {
		p.Resources.Gas += mined
	}
	if cell.Resource.Amount <= 0 {
		cell.Type = CellEmpty
		cell.Resource = nil
	}
	return kind, mined
}

func (g *Game) attack(p, target *player) {
	attack := p.Fleet.Warships * 10
	defense := target.Fleet.Warships*5 + target.Fleet.Scouts*2
	if attack > defense {
		minerals := target.Resources.Minerals / 5
		gas := target.Resources.Gas / 5
		target.Resources.Minerals -= minerals
		target.Resources.Gas -= gas
		p.Resources.Minerals += minerals
		p.Resources.Gas += gas
		target.Fleet.Warships = max(0, target.Fleet.Warships-1)
		g.record(LogEntry{Type: "attack_win", AgentID: p.ID, TargetID: target.ID, Amount: minerals, Gas: gas})
		return
	}
	p.Fleet.Warships = max(0, p.Fleet.Warships-1)
	g.record(LogEntry{Type: "attack_loss", AgentID: p.ID, TargetID: target.ID})
}

func (g *Game) reveal(center Position) []Cell {
	var out []Cell
	for dy := -scoutRadius; dy <= scoutRadius; dy++ {
		for dx := -scoutRadius; dx <= scoutRadius; dx++ {
			x, y := center.X+dx, center.Y+dy
			if x >= 0 && x < g.size && y >= 0 && y < g.size {
				out = append(out, g.board.Cells[y][x])
			}
		}
	}
	return out
}

// Advance runs passive mining for every fleet parked on a resource.
func (g *Game) Advance(int) {
	g.clock++
	for _, p := range g.players {
		g.harvest(p, passiveRate)
	}
}

func (g *Game) Terminal() bool { return false }

// Outcome ranks by minerals plus gas. Equal totals go to the earlier seat.
func (g *Game) Outcome() game.Outcome {
	standings := make([]game.Standing, 0, len(g.players))
	for _, p := range g.players {
		standings = append(standings, game.Standing{
			AgentID: p.ID,
			Seat:    p.Seat,
			Score:   p.Resources.Minerals + p.Resources.Gas,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Seat < standings[j].Seat
	})
	out := game.Outcome{Standings: standings, Reason: "time_up"}
	if len(standings) > 0 {
		out.WinnerID = standings[0].AgentID
	}
	return out
}

func (g *Game) AvailableActions(agentID string) []game.ActionSpec {
	p, ok := g.byID[agentID]
	if !ok {
		return nil
	}
	var out []game.ActionSpec
	for _, dir := range []string{"up", "down", "left", "right"} {
		if _, err := g.moveTarget(p, dir); err == nil {
			out = append(out, game.ActionSpec{Type: "move", Params: map[string]string{"direction": dir}})
		}
	}
	if g.check(p, game.Action{Type: "mine"}) == nil {
		out = append(out, game.ActionSpec{Type: "mine"})
	}
	for _, unit := range buildOrder {
		cost := unitCosts[unit]
		if p.Resources.covers(cost) {
			out = append(out, game.ActionSpec{
				Type:   "build",
				Params: map[string]string{"unit_type": unit},
				Cost:   map[string]int64{ResourceMinerals: cost.Minerals, ResourceGas: cost.Gas},
			})
		}
	}
	for _, other := range g.players {
		a := game.Action{Type: "attack", Params: map[string]string{"target_id": other.ID}}
		if other != p && g.check(p, a) == nil {
			out = append(out, game.ActionSpec{Type: "attack", Params: a.Params})
		}
	}
	if p.Fleet.Scouts > 0 {
		out = append(out, game.ActionSpec{Type: "scout"})
	}
	return out
}

func (g *Game) state(remaining int) State {
	cells := make([][]Cell, len(g.board.Cells))
	for y, row := range g.board.Cells {
		cells[y] = make([]Cell, len(row))
		for x, c := range row {
			if c.Resource != nil {
				res := *c.Resource
				c.Resource = &res
			}
			cells[y][x] = c
		}
	}
	players := make([]PlayerView, 0, len(g.players))
	for _, p := range g.players {
		players = append(players, PlayerView{
			ID:         p.ID,
			Name:       p.Name,
			Seat:       p.Seat,
			Resources:  p.Resources,
			Fleet:      p.Fleet,
			Position:   p.Position,
			Base:       p.Base,
			LastAction: p.LastAction,
		})
	}
	start := max(0, len(g.log)-publicLogWindow)
	return State{
		TimeRemaining: remaining,
		Map:           Map{Size: g.size, Cells: cells},
		Players:       players,
		EventLog:      append([]LogEntry(nil), g.log[start:]...),
	}
}

func (g *Game) Snapshot(remaining int) json.RawMessage {
	b, err := gojson.Marshal(g.state(remaining))
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func (g *Game) Log() json.RawMessage {
	b, err := gojson.Marshal(g.log)
	if err != nil {
		return json.RawMessage(`[]`)
	}
	return b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var _ game.Game = (*Game)(nil)
