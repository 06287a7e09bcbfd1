package tourvisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/meridiantt/wayfarer/internal/clients"
	"github.com/meridiantt/wayfarer/internal/logging"
)

var (
	// ErrSubmissionFailed means the gateway accepted the request but
	// returned no request id, so there is no job to poll.
	ErrSubmissionFailed = errors.New("tourvisor: submission returned no request id")

	// ErrProviderUnavailable means the gateway could not be reached even
	// after retries.
	ErrProviderUnavailable = errors.New("tourvisor: provider unavailable")
)

// JobState tracks a search job through its lifecycle. States only move
// forward; a job never leaves finished, failed or timed_out.
type JobState string

const (
	JobStateSubmitted JobState = "submitted"
	JobStatePending   JobState = "pending"
	JobStateFinished  JobState = "finished"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateFinished || s == JobStateFailed || s == JobStateTimedOut
}

// Job is the observed state of one submitted search.
type Job struct {
	RequestID      string
	State          JobState
	Attempts       int
	ElapsedSeconds int
	HotelsFound    int
}

// Query holds the search parameters forwarded to the gateway. Dates are
// already in the DD.MM.YYYY form the gateway expects.
type Query struct {
	Departure  string
	Country    string
	DateFrom   string
	DateTo     string
	NightsFrom int
	NightsTo   int
	Adults     int
	Children   int
	ChildAges  []int
}

// Config carries the credentials and poll budget for a Client.
type Config struct {
	BaseURL         string
	Login           string
	Password        string
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	Retry           clients.RetryConfig
	Logger          logging.Logger
}

// Client runs searches against the Tourvisor gateway. A search is a
// three-step job: Submit returns a request id, AwaitCompletion polls it to
// a terminal state, FetchResults pulls the hotel page.
type Client struct {
	baseURL         string
	login           string
	password        string
	pollInterval    time.Duration
	maxPollAttempts int
	client          *http.Client
	retry           clients.RetryConfig
	logger          logging.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("tourvisor: credentials are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://tourvisor.ru"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = clients.DefaultRetryConfig()
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		login:           cfg.Login,
		password:        cfg.Password,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		client:          &http.Client{Timeout: cfg.Timeout},
		retry:           retry,
		logger:          cfg.Logger,
	}, nil
}

// Submit starts a search and returns the request id to poll.
func (c *Client) Submit(ctx context.Context, q Query) (string, error) {
	params := c.auth()
	params.Set("departure", q.Departure)
	params.Set("country", q.Country)
	params.Set("datefrom", q.DateFrom)
	params.Set("dateto", q.DateTo)
	params.Set("nightsfrom", strconv.Itoa(q.NightsFrom))
	params.Set("nightsto", strconv.Itoa(q.NightsTo))
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("child", strconv.Itoa(q.Children))
	for i, age := range q.ChildAges {
		if i >= 3 {
			break
		}
		params.Set(fmt.Sprintf("childage%d", i+1), strconv.Itoa(age))
	}
	params.Set("format", "json")

	body, err := c.get(ctx, "/xml/search.php", params)
	if err != nil {
		return "", err
	}

	var payload struct {
		Result struct {
			RequestID flexString `json:"requestid"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("tourvisor: decode submit response: %w", err)
	}
	id := payload.Result.RequestID.String()
	if id == "" || id == "0" {
		return "", ErrSubmissionFailed
	}

	c.logger.WithFields(logging.Fields{
		"request_id": id,
		"departure":  q.Departure,
		"country":    q.Country,
	}).Info("Search submitted")
	return id, nil
}

// AwaitCompletion polls the job status at a fixed interval until it
// reaches a terminal state or the attempt budget runs out, in which case
// the job is marked timed_out. Provider-side failure is reported through
// the returned job state, not an error; the error return is reserved for
// transport failure and context cancellation.
func (c *Client) AwaitCompletion(ctx context.Context, requestID string) (Job, error) {
	job := Job{RequestID: requestID, State: JobStateSubmitted}
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return job, err
		}
		status, err := c.pollStatus(ctx, requestID)
		if err != nil {
			return job, err
		}
		job.Attempts = attempt
		job.ElapsedSeconds = status.timePassed
		job.HotelsFound = status.hotelsFound

		switch status.state {
		case "finished":
			job.State = JobStateFinished
			c.logger.WithFields(logging.Fields{
				"request_id": requestID,
				"attempts":   attempt,
				"hotels":     job.HotelsFound,
			}).Info("Search finished")
			return job, nil
		case "error":
			job.State = JobStateFailed
			c.logger.WithFields(logging.Fields{
				"request_id": requestID,
				"attempts":   attempt,
			}).Warn("Search failed on provider side")
			return job, nil
		default:
			job.State = JobStatePending
		}

		if attempt == c.maxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	job.State = JobStateTimedOut
	c.logger.WithFields(logging.Fields{
		"request_id": requestID,
		"attempts":   job.Attempts,
	}).Warn("Search timed out before completion")
	return job, nil
}

// FetchResults pulls one page of hotel records for a job. A missing or
// empty hotel list is a valid result, not an error.
func (c *Client) FetchResults(ctx context.Context, requestID string, page, pageSize int) ([]Hotel, error) {
	params := c.auth()
	params.Set("requestid", requestID)
	params.Set("format", "json")
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		params.Set("onpage", strconv.Itoa(pageSize))
	}

	body, err := c.get(ctx, "/xml/result.php", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result struct {
			Hotel listOf[Hotel] `json:"hotel"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tourvisor: decode results: %w", err)
	}
	return payload.Result.Hotel, nil
}

type pollResult struct {
	state       string
	timePassed  int
	hotelsFound int
}

func (c *Client) pollStatus(ctx context.Context, requestID string) (pollResult, error) {
	params := c.auth()
	params.Set("requestid", requestID)
	params.Set("type", "status")
	params.Set("format", "json")

	body, err := c.get(ctx, "/xml/result.php", params)
	if err != nil {
		return pollResult{}, err
	}

	var payload struct {
		Status struct {
			State       flexString `json:"state"`
			TimePassed  flexString `json:"timepassed"`
			HotelsFound flexString `json:"hotelsfound"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return pollResult{}, fmt.Errorf("tourvisor: decode status: %w", err)
	}
	res := pollResult{state: payload.Status.State.String()}
	res.timePassed, _ = strconv.Atoi(payload.Status.TimePassed.String())
	res.hotelsFound, _ = strconv.Atoi(payload.Status.HotelsFound.String())
	return res, nil
}

func (c *Client) auth() url.Values {
	params := url.Values{}
	params.Set("authlogin", c.login)
	params.Set("authpass", c.password)
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path + "?" + params.Encode()
	resp, err := clients.DoWithRetry(ctx, c.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d from %s", ErrProviderUnavailable, resp.StatusCode, path)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	return body, nil
}
