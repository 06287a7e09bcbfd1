package tourvisor

import (
	"math"
	"testing"
)

func hotelWithTours(name string, price string, tourPrices ...string) Hotel {
	h := Hotel{Name: flexString(name), Price: flexString(price)}
	for _, p := range tourPrices {
		h.Tours.Tour = append(h.Tours.Tour, TourOffer{Price: flexString(p)})
	}
	return h
}

func TestRankFlattensNestedOffers(t *testing.T) {
	hotels := []Hotel{
		hotelWithTours("A", "100", "120", "90"),
		hotelWithTours("B", "80", "110"),
	}

	ranked := Rank(hotels, -1)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ranked))
	}
	// The hotel-level aggregate (80, 100) must not participate; only the
	// nested offer prices rank.
	want := []float64{90, 110, 120}
	for i, price := range want {
		if ranked[i].Price != price {
			t.Fatalf("position %d: expected price %v, got %v", i, price, ranked[i].Price)
		}
	}
}

func TestRankMissingPriceSortsLast(t *testing.T) {
	hotels := []Hotel{
		hotelWithTours("A", "", "", "150"),
		hotelWithTours("B", "", "not-a-number"),
		hotelWithTours("C", "", "99"),
	}

	ranked := Rank(hotels, -1)
	if len(ranked) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(ranked))
	}
	if ranked[0].Price != 99 || ranked[1].Price != 150 {
		t.Fatalf("priced offers must come first: %+v", ranked)
	}
	for _, c := range ranked[2:] {
		if !math.IsInf(c.Price, 1) {
			t.Fatalf("unpriced offer must carry +Inf, got %v", c.Price)
		}
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	hotels := []Hotel{hotelWithTours("A", "", "5", "4", "3", "2", "1")}
	ranked := Rank(hotels, 3)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ranked))
	}
	if ranked[0].Price != 1 || ranked[2].Price != 3 {
		t.Fatalf("expected the three cheapest, got %+v", ranked)
	}
}

func TestRankLimitLargerThanPool(t *testing.T) {
	hotels := []Hotel{hotelWithTours("A", "", "10", "20")}
	ranked := Rank(hotels, 3)
	if len(ranked) != 2 {
		t.Fatalf("a limit above the pool size returns everything, got %d", len(ranked))
	}
}

func TestRankStableForEqualPrices(t *testing.T) {
	hotels := []Hotel{
		hotelWithTours("First", "", "100"),
		hotelWithTours("Second", "", "100"),
	}
	ranked := Rank(hotels, -1)
	if ranked[0].Label != "First" || ranked[1].Label != "Second" {
		t.Fatalf("equal prices must keep feed order: %+v", ranked)
	}
}

func TestRankEmptyInput(t *testing.T) {
	if got := Rank(nil, 3); len(got) != 0 {
		t.Fatalf("expected empty ranking, got %+v", got)
	}
}

func TestHotelLabel(t *testing.T) {
	h := Hotel{
		Name:    "Sunrise Bay",
		Stars:   "4",
		Region:  "Alanya",
		Country: "Turkey",
	}
	if got := hotelLabel(h); got != "Sunrise Bay 4*, Alanya, Turkey" {
		t.Fatalf("unexpected label %q", got)
	}
	bare := Hotel{Name: "Plain"}
	if got := hotelLabel(bare); got != "Plain" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestCandidateMetadata(t *testing.T) {
	h := hotelWithTours("A", "")
	offer := TourOffer{
		Price:    "100",
		Currency: "RUB",
		FlyDate:  "01.10.2026",
		Nights:   "7",
		TourLink: "https://example.com/t/1",
	}
	c := candidate(h, offer)
	if c.Metadata["currency"] != "RUB" || c.Metadata["nights"] != "7" {
		t.Fatalf("unexpected metadata: %v", c.Metadata)
	}
	if c.Link != "https://example.com/t/1" {
		t.Fatalf("unexpected link %q", c.Link)
	}
	if _, ok := c.Metadata["meal"]; ok {
		t.Fatal("empty fields must not appear in metadata")
	}
}
