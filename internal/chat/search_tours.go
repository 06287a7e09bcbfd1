package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/meridiantt/wayfarer/internal/logging"
	"github.com/meridiantt/wayfarer/internal/tourvisor"
)

const (
	searchToursName  = "search_tours"
	defaultNightsMin = 7
	defaultNightsMax = 10
	defaultAdults    = 2
	resultsPageSize  = 5
	inputDateLayout  = "2006-01-02"
	providerLayout   = "02.01.2006"
)

// looseInt accepts a JSON number or a quoted number. Assistant-generated
// arguments quote integers often enough that strict decoding would reject
// valid calls.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	d := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(d) == 0 || string(d) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(d))
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*n = looseInt(v)
	return nil
}

type searchToursInput struct {
	Departure  string   `json:"departure"`
	Country    string   `json:"country"`
	DateFrom   string   `json:"datefrom"`
	DateTo     string   `json:"dateto"`
	NightsFrom looseInt `json:"nightsfrom"`
	NightsTo   looseInt `json:"nightsto"`
	Adults     looseInt `json:"adults"`
	Children   looseInt `json:"child"`
	ChildAge1  looseInt `json:"childage1"`
	ChildAge2  looseInt `json:"childage2"`
	ChildAge3  looseInt `json:"childage3"`
}

// SearchToursTool runs a package-tour search through the async provider
// and summarizes the cheapest offers. Every outcome, including provider
// failure, comes back as text for the assistant to relay.
type SearchToursTool struct {
	client      *tourvisor.Client
	resultLimit int
	logger      logging.Logger
}

func NewSearchToursTool(client *tourvisor.Client, resultLimit int, logger logging.Logger) *SearchToursTool {
	if resultLimit <= 0 {
		resultLimit = 3
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &SearchToursTool{client: client, resultLimit: resultLimit, logger: logger}
}

func (t *SearchToursTool) Name() string { return searchToursName }

func (t *SearchToursTool) Call(ctx context.Context, arguments string) string {
	started := time.Now()
	status := "ok"
	defer func() {
		toolCallsTotal.WithLabelValues(searchToursName, status).Inc()
		toolDuration.WithLabelValues(searchToursName).Observe(time.Since(started).Seconds())
	}()

	var input searchToursInput
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		status = "bad_arguments"
		t.logger.WithError(err).Warn("Unparseable search_tours arguments")
		return "The search request could not be understood. Please ask the user to restate the destination and dates."
	}

	query, problem := t.buildQuery(input)
	if problem != "" {
		status = "bad_arguments"
		return problem
	}

	requestID, err := t.client.Submit(ctx, query)
	if err != nil {
		status = "submit_failed"
		t.logger.WithError(err).Warn("Tour search submission failed")
		if errors.Is(err, tourvisor.ErrSubmissionFailed) {
			return "The tour search could not be started with those parameters. Apologize to the user and ask them to double-check the departure city and destination country."
		}
		return "The tour search service is unavailable right now. Apologize to the user and suggest trying again in a few minutes."
	}

	job, err := t.client.AwaitCompletion(ctx, requestID)
	if err != nil {
		status = "poll_failed"
		t.logger.WithError(err).WithField("request_id", requestID).Warn("Tour search polling failed")
		return "The tour search service stopped responding mid-search. Apologize to the user and suggest trying again in a few minutes."
	}
	searchJobsTotal.WithLabelValues(string(job.State)).Inc()

	switch job.State {
	case tourvisor.JobStateFinished:
	case tourvisor.JobStateTimedOut:
		status = "timed_out"
		return "The search is taking longer than expected and no results are ready yet. Apologize to the user and ask them to try again shortly, or to narrow the dates."
	default:
		status = "provider_failed"
		return "The tour search failed on the provider side. Apologize to the user and suggest adjusting the search parameters."
	}

	hotels, err := t.client.FetchResults(ctx, requestID, 1, resultsPageSize)
	if err != nil {
		status = "fetch_failed"
		t.logger.WithError(err).WithField("request_id", requestID).Warn("Tour results fetch failed")
		return "The search finished but the results could not be retrieved. Apologize to the user and suggest trying again."
	}

	offers := tourvisor.Rank(hotels, t.resultLimit)
	if len(offers) == 0 {
		status = "empty"
		return "No tours were found for those parameters. Suggest the user try different dates or another destination."
	}

	return formatOffers(query, offers)
}

// buildQuery validates the assistant-supplied arguments and fills the
// defaults. A non-empty second return is the text to send back instead of
// running the search.
func (t *SearchToursTool) buildQuery(input searchToursInput) (tourvisor.Query, string) {
	q := tourvisor.Query{
		Departure: strings.TrimSpace(input.Departure),
		Country:   strings.TrimSpace(input.Country),
	}
	if q.Departure == "" {
		return q, "The departure city is missing. Please ask the user which city they want to fly from."
	}
	if q.Country == "" {
		return q, "The destination country is missing. Please ask the user where they want to go."
	}

	var err error
	if q.DateFrom, err = toProviderDate(input.DateFrom); err != nil {
		return q, "The earliest departure date is missing or not in YYYY-MM-DD form. Please ask the user for it."
	}
	if q.DateTo, err = toProviderDate(input.DateTo); err != nil {
		return q, "The latest departure date is missing or not in YYYY-MM-DD form. Please ask the user for it."
	}

	q.NightsFrom = intOrDefault(input.NightsFrom, defaultNightsMin)
	q.NightsTo = intOrDefault(input.NightsTo, defaultNightsMax)
	if q.NightsTo < q.NightsFrom {
		q.NightsTo = q.NightsFrom
	}
	q.Adults = intOrDefault(input.Adults, defaultAdults)
	q.Children = int(input.Children)
	for _, age := range []looseInt{input.ChildAge1, input.ChildAge2, input.ChildAge3} {
		if age > 0 {
			q.ChildAges = append(q.ChildAges, int(age))
		}
	}
	return q, ""
}

func toProviderDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := time.Parse(inputDateLayout, raw)
	if err != nil {
		return "", err
	}
	return parsed.Format(providerLayout), nil
}

func intOrDefault(v looseInt, fallback int) int {
	if v > 0 {
		return int(v)
	}
	return fallback
}

func formatOffers(q tourvisor.Query, offers []tourvisor.Candidate) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Found tours from %s to %s, cheapest first:\n", q.Departure, q.Country)
	for i, offer := range offers {
		fmt.Fprintf(&builder, "%d. %s", i+1, offer.Label)
		if offer.Price > 0 && !math.IsInf(offer.Price, 1) {
			price := strconv.FormatFloat(offer.Price, 'f', -1, 64)
			if currency := offer.Metadata["currency"]; currency != "" {
				fmt.Fprintf(&builder, " - %s %s", price, currency)
			} else {
				fmt.Fprintf(&builder, " - %s", price)
			}
		}
		if flydate := offer.Metadata["flydate"]; flydate != "" {
			fmt.Fprintf(&builder, ", departs %s", flydate)
		}
		if nights := offer.Metadata["nights"]; nights != "" {
			fmt.Fprintf(&builder, ", %s nights", nights)
		}
		if meal := offer.Metadata["meal"]; meal != "" {
			fmt.Fprintf(&builder, ", %s", meal)
		}
		if offer.Link != "" {
			fmt.Fprintf(&builder, "\nLink: %s", offer.Link)
		}
		builder.WriteString("\n")
	}
	return strings.TrimSpace(builder.String())
}
