package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type Client struct {
	cfg        config.CodeforcesConfig
	httpClient *http.Client
	queue      *requestQueue
	signer     *Signer
	clock      clock.Clock
	log        zerolog.Logger
}

type callResult struct {
	raw json.RawMessage
	err error
}

// NewClient starts the client's request queue. One client should be shared by
// every caller in the process so that all calls observe the same spacing.
func NewClient(cfg *config.Config, clk clock.Clock) *Client {
	log := logger.Get().With().Str("component", "codeforces").Logger()
	return &Client{
		cfg: cfg.Codeforces,
		httpClient: &http.Client{
			Timeout: cfg.Codeforces.RequestTimeout,
		},
		queue:  newRequestQueue(cfg.Codeforces.RequestSpacing, clk, log),
		signer: NewSigner(cfg.Codeforces.APIKey, cfg.Codeforces.APISecret),
		clock:  clk,
		log:    log,
	}
}

// Close stops the queue; requests not yet dispatched fail with ErrQueueStopped.
func (c *Client) Close() {
	c.queue.stop()
}

func (c *Client) FetchUserInfo(ctx context.Context, handle string) (*model.UserInfo, error) {
	var users []model.UserInfo
	if err := c.call(ctx, "user.info", url.Values{"handles": {handle}}, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidHandle, handle)
	}
	return &users[0], nil
}

func (c *Client) FetchRatingHistory(ctx context.Context, handle string) ([]model.Contest, error) {
	var changes []model.RatingChange
	if err := c.call(ctx, "user.rating", url.Values{"handle": {handle}}, &changes); err != nil {
		return nil, err
	}

	contests := make([]model.Contest, len(changes))
	for i, ch := range changes {
		contests[i] = model.Contest{
			ID:                      fmt.Sprintf("%d-%d", ch.ContestID, i),
			ContestID:               ch.ContestID,
			ContestName:             ch.ContestName,
			Handle:                  handle,
			Rank:                    ch.Rank,
			OldRating:               ch.OldRating,
			NewRating:               ch.NewRating,
			RatingChange:            ch.NewRating - ch.OldRating,
			RatingUpdateTimeSeconds: ch.RatingUpdateTimeSeconds,
		}
	}
	return contests, nil
}

func (c *Client) FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.Submission, error) {
	params := url.Values{
		"handle": {handle},
		"from":   {strconv.Itoa(from)},
		"count":  {strconv.Itoa(count)},
	}
	var submissions []model.Submission
	if err := c.call(ctx, "user.status", params, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// FetchContestStandings never fails: any error degrades to zero standings.
func (c *Client) FetchContestStandings(ctx context.Context, contestID int, handle string) model.Standings {
	standings, err := c.contestStandings(ctx, contestID, handle)
	if err != nil {
		c.log.Warn().Err(err).Int("contest_id", contestID).Str("handle", handle).
			Msg("Could not fetch contest standings")
		return model.Standings{}
	}
	return standings
}

func (c *Client) contestStandings(ctx context.Context, contestID int, handle string) (model.Standings, error) {
	params := url.Values{
		"contestId":      {strconv.Itoa(contestID)},
		"handles":        {handle},
		"showUnofficial": {"true"},
	}
	var result model.StandingsResult
	if err := c.call(ctx, "contest.standings", params, &result); err != nil {
		return model.Standings{}, err
	}
	if len(result.Rows) == 0 {
		return model.Standings{}, nil
	}

	row := result.Rows[0]
	solved := 0
	for _, pr := range row.ProblemResults {
		if pr.Points > 0 {
			solved++
		}
	}
	return model.Standings{
		Rank:           row.Rank,
		ProblemsSolved: solved,
		TotalProblems:  len(result.Problems),
	}, nil
}

// call enqueues one API method behind every previously enqueued call and
// waits for its result.
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	done := make(chan callResult, 1)
	_, ok := c.queue.enqueue(
		func() {
			raw, err := c.dispatch(ctx, method, params)
			done <- callResult{raw: raw, err: err}
		},
		func() {
			done <- callResult{err: errors.TransportError{Err: errors.ErrQueueStopped}}
		},
	)
	if !ok {
		return errors.TransportError{Err: errors.ErrQueueStopped}
	}

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return errors.TransportError{Err: ctx.Err()}
	}
	if res.err != nil {
		return res.err
	}

	if err := json.Unmarshal(res.raw, out); err != nil {
		return errors.TransportError{Err: fmt.Errorf("failed to decode %s result: %w", method, err)}
	}
	return nil
}

func (c *Client) dispatch(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if c.signer != nil {
		params = c.signer.Sign(method, params, c.clock.Now())
	}
	endpoint := c.cfg.BaseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	c.log.Debug().Str("method", method).Msg("Dispatching Codeforces request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransportError{Err: err}
	}

	var env model.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(body, &env)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound:
		if env.Comment != "" {
			return nil, fmt.Errorf("%w: %s", errors.ErrInvalidHandle, env.Comment)
		}
		return nil, errors.ErrInvalidHandle
	case http.StatusServiceUnavailable:
		return nil, errors.NewRetryableError(errors.ErrUpstreamUnavailable, "external service unavailable")
	}

	if decodeErr != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, errors.TransportError{Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
		}
		return nil, errors.UpstreamRejectedError{Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	if env.Status != model.EnvelopeOK {
		message := env.Comment
		if message == "" {
			message = "API request failed"
		}
		return nil, errors.UpstreamRejectedError{Message: message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.UpstreamRejectedError{Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	return env.Result, nil
}
