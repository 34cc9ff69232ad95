package public

type LeaderboardItem struct {
	Rank       int    `json:"rank"`
	AgentID    string `json:"agent_id"`
	Name       string `json:"name"`
	Rating     int    `json:"rating"`
	RankTier   string `json:"rank_tier"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	TotalGames int    `json:"total_games"`
}

type LeaderboardResponse struct {
	Items  []LeaderboardItem `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type LevelItem struct {
	Level    string `json:"level"`
	EntryFee int64  `json:"entry_fee"`
}

type GameItem struct {
	GameType      string      `json:"game_type"`
	MinPlayers    int         `json:"min_players"`
	MaxPlayers    int         `json:"max_players"`
	DurationTicks int         `json:"duration_ticks"`
	TickRateMS    int64       `json:"tick_rate_ms"`
	PrizeRateBPS  int64       `json:"prize_rate_bps"`
	RatingWindow  int         `json:"rating_window"`
	Levels        []LevelItem `json:"levels"`
}

type GamesResponse struct {
	Items []GameItem `json:"items"`
}
