// Package rank resolves a player's ranked tier from the Slippi ranking service.
package rank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the ranking service GraphQL endpoint.
const DefaultEndpoint = "https://internal.slippi.gg/graphql"

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

const userProfileQuery = `query UserProfilePageQuery($cc: String, $uid: String) {
  getUser(fbUid: $uid, connectCode: $cc) {
    displayName
    connectCode {
      code
    }
    rankedNetplayProfile {
      ratingOrdinal
      dailyGlobalPlacement
      dailyRegionalPlacement
    }
  }
}`

// ErrNotFound is returned when the service knows nothing about the player.
var ErrNotFound = errors.New("player not found or no ranking data available")

// ServerError carries the error messages returned by the service.
type ServerError struct {
	Messages []string
}

func (e *ServerError) Error() string {
	return "ranking service returned errors: " + strings.Join(e.Messages, "; ")
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client.
type Options struct {
	Endpoint string
	Timeout  time.Duration
	// RequestsPerSecond paces outgoing requests. Zero or less disables pacing.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            zerolog.Logger
}

// Client fetches ranks with one HTTP request per lookup.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewClient builds a Client from opts, filling in defaults.
func NewClient(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   opts.Logger,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data *struct {
		GetUser *userPayload `json:"getUser"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type userPayload struct {
	DisplayName          *string        `json:"displayName"`
	RankedNetplayProfile *rankedProfile `json:"rankedNetplayProfile"`
}

type rankedProfile struct {
	RatingOrdinal          *float64 `json:"ratingOrdinal"`
	DailyGlobalPlacement   *int     `json:"dailyGlobalPlacement"`
	DailyRegionalPlacement *int     `json:"dailyRegionalPlacement"`
}

// FetchRank returns the rank label for a connect code.
func (c *Client) FetchRank(ctx context.Context, connectCode string) (string, error) {
	c.logger.Info().Str("code", connectCode).Msg("fetching rank")
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rank request not sent: %w", err)
	}

	body, err := json.Marshal(graphQLRequest{
		Query: userProfileQuery,
		Variables: map[string]interface{}{
			"cc":  connectCode,
			"uid": nil,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode rank query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rank request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read rank response: %w", err)
	}
	c.logger.Debug().Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("rank response received")

	var payload graphQLResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("unexpected ranking service status: %s", resp.Status)
		}
		return "", fmt.Errorf("failed to decode rank response: %w", err)
	}

	label, err := interpret(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("code", connectCode).Msg("rank lookup failed")
		return "", err
	}
	c.logger.Info().Str("code", connectCode).Str("rank", label).Msg("rank found")
	return label, nil
}

func interpret(payload graphQLResponse) (string, error) {
	if payload.Data != nil && payload.Data.GetUser != nil {
		user := payload.Data.GetUser
		if profile := user.RankedNetplayProfile; profile != nil {
			if profile.RatingOrdinal != nil {
				return TierForRating(
					int(*profile.RatingOrdinal),
					placementOrNone(profile.DailyRegionalPlacement),
					placementOrNone(profile.DailyGlobalPlacement),
				), nil
			}
			if user.DisplayName != nil {
				return *user.DisplayName + " (Unranked Season)", nil
			}
		}
		if user.DisplayName != nil {
			return Unranked, nil
		}
	}
	if len(payload.Errors) > 0 {
		messages := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			messages = append(messages, e.Message)
		}
		return "", &ServerError{Messages: messages}
	}
	return "", ErrNotFound
}

func placementOrNone(p *int) int {
	if p == nil {
		return NoPlacement
	}
	return *p
}
