package tourvisor

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Candidate is one rankable offer lifted out of a hotel record. Price is
// +Inf when the offer carried no usable price, which keeps the offer
// comparable but sorts it behind every priced one.
type Candidate struct {
	Price    float64
	Label    string
	Link     string
	Metadata map[string]string
}

// Rank flattens every nested offer into an independent candidate, sorts
// them ascending by price and returns at most limit of them. Hotel-level
// aggregate prices are ignored; only per-offer prices rank. The sort is
// stable, so equally priced offers keep feed order. A negative limit means
// no truncation.
func Rank(hotels []Hotel, limit int) []Candidate {
	var out []Candidate
	for _, h := range hotels {
		for _, t := range h.Tours.Tour {
			out = append(out, candidate(h, t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func candidate(h Hotel, t TourOffer) Candidate {
	meta := map[string]string{}
	for k, v := range map[string]flexString{
		"flydate":  t.FlyDate,
		"nights":   t.Nights,
		"operator": t.Operator,
		"meal":     t.Meal,
		"room":     t.Room,
		"currency": t.Currency,
		"rating":   h.Rating,
	} {
		if v != "" {
			meta[k] = v.String()
		}
	}
	return Candidate{
		Price:    parsePrice(t.Price),
		Label:    hotelLabel(h),
		Link:     t.TourLink.String(),
		Metadata: meta,
	}
}

func hotelLabel(h Hotel) string {
	var parts []string
	name := h.Name.String()
	if stars := h.Stars.String(); stars != "" && stars != "0" {
		name += " " + stars + "*"
	}
	if name != "" {
		parts = append(parts, name)
	}
	if region := h.Region.String(); region != "" {
		parts = append(parts, region)
	}
	if country := h.Country.String(); country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

func parsePrice(raw flexString) float64 {
	s := strings.TrimSpace(raw.String())
	if s == "" {
		return math.Inf(1)
	}
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price <= 0 {
		return math.Inf(1)
	}
	return price
}
