package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultGammaURL    = "https://gamma-api.polymarket.com"
	DefaultTimezone    = "America/New_York"
	DefaultSearchLimit = 500
)

var ErrMarketNotFound = errors.New("market not found")

// Discovery resolves the current hourly BTC up/down market.
type Discovery struct {
	baseURL     string
	location    *time.Location
	searchLimit int
	httpClient  *http.Client
	logger      *logrus.Logger
}

func NewDiscovery(baseURL, timezone string, searchLimit int, logger *logrus.Logger) (*Discovery, error) {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Discovery{
		baseURL:     strings.TrimRight(baseURL, "/"),
		location:    loc,
		searchLimit: searchLimit,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}, nil
}

// Slug builds the market slug for the hour containing t, for example
// bitcoin-up-or-down-october-18-3pm-et.
func (d *Discovery) Slug(t time.Time) string {
	local := t.In(d.location)

	hour := local.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "am"
	if local.Hour() >= 12 {
		meridiem = "pm"
	}

	return fmt.Sprintf("bitcoin-up-or-down-%s-%d-%d%s-et",
		strings.ToLower(local.Month().String()), local.Day(), hour, meridiem)
}

// FindMarket looks the market up by slug and falls back to a keyword scan of
// active markets.
func (d *Discovery) FindMarket(ctx context.Context, now time.Time) (*models.Market, error) {
	slug := d.Slug(now)
	log := d.logger.WithField("slug", slug)

	market, err := d.bySlug(ctx, slug)
	if err == nil {
		log.WithField("question", market.Question).Info("Found market by slug")
		return market, nil
	}
	log.WithError(err).Warn("Slug lookup failed, scanning active markets")

	market, err = d.search(ctx, now)
	if err != nil {
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"slug":     market.Slug,
		"question": market.Question,
	}).Info("Found market by keyword scan")
	return market, nil
}

func (d *Discovery) bySlug(ctx context.Context, slug string) (*models.Market, error) {
	body, err := d.get(ctx, "/markets", url.Values{"slug": {slug}})
	if err != nil {
		return nil, err
	}
	for _, m := range gjson.ParseBytes(body).Array() {
		if market, ok := parseMarket(m); ok {
			return market, nil
		}
	}
	return nil, fmt.Errorf("%w: slug %s", ErrMarketNotFound, slug)
}

func (d *Discovery) search(ctx context.Context, now time.Time) (*models.Market, error) {
	body, err := d.get(ctx, "/markets", url.Values{
		"active": {"true"},
		"closed": {"false"},
		"limit":  {strconv.Itoa(d.searchLimit)},
	})
	if err != nil {
		return nil, err
	}

	for _, m := range gjson.ParseBytes(body).Array() {
		question := strings.ToLower(m.Get("question").String())
		if !strings.Contains(question, "bitcoin") || !strings.Contains(question, "up or down") {
			continue
		}
		market, ok := parseMarket(m)
		if !ok {
			continue
		}
		if !market.EndDate.IsZero() && !market.EndDate.After(now) {
			continue
		}
		return market, nil
	}
	return nil, fmt.Errorf("%w: no active bitcoin up or down market", ErrMarketNotFound)
}

func (d *Discovery) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// parseMarket maps a Gamma market onto the two outcome tokens. Outcomes and
// token ids arrive as JSON-encoded string arrays.
func parseMarket(m gjson.Result) (*models.Market, bool) {
	if m.Get("closed").Bool() {
		return nil, false
	}
	outcomes := gjson.Parse(m.Get("outcomes").String()).Array()
	tokens := gjson.Parse(m.Get("clobTokenIds").String()).Array()
	if len(tokens) != 2 {
		return nil, false
	}

	up, down := tokens[0].String(), tokens[1].String()
	if len(outcomes) == 2 {
		first := strings.ToLower(outcomes[0].String())
		if first == "down" || first == "no" {
			up, down = down, up
		}
	}
	if up == "" || down == "" {
		return nil, false
	}

	market := &models.Market{
		Slug:        m.Get("slug").String(),
		Question:    m.Get("question").String(),
		ConditionID: m.Get("conditionId").String(),
		UpTokenID:   up,
		DownTokenID: down,
	}
	if end, err := time.Parse(time.RFC3339, m.Get("endDate").String()); err == nil {
		market.EndDate = end
	}
	return market, true
}
