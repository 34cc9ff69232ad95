package store

import "testing"

func TestRankTierBoundaries(t *testing.T) {
	cases := map[int]string{
		0:    "bronze",
		1199: "bronze",
		1200: "silver",
		1499: "silver",
		1500: "gold",
		1999: "gold",
		2000: "diamond",
		2499: "diamond",
		2500: "master",
	}
	for rating, want := range cases {
		if got := RankTier(rating); got != want {
			t.Fatalf("RankTier(%d) = %s, want %s", rating, got, want)
		}
	}
}

func TestHashAPIKeyStable(t *testing.T) {
	if HashAPIKey("k") != HashAPIKey("k") || HashAPIKey("k") == HashAPIKey("j") {
		t.Fatal("hash not stable")
	}
	if len(HashAPIKey("k")) != 64 {
		t.Fatalf("unexpected length %d", len(HashAPIKey("k")))
	}
}
