package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"derby-scoring-system/models"
	"derby-scoring-system/utils"
)

// BettingConfig points the reconciler at the external betting site. With no
// credentials configured the reconciler serves demo data flagged IsDemo.
type BettingConfig struct {
	BaseURL     string `yaml:"base_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	SourceLabel string `yaml:"source_label"`
}

// loginStrategy is one candidate way to open a session: an endpoint plus a
// payload shape. The upstream site has changed both several times, so the
// chain is tried in order until one endpoint answers with a recognizable
// success indicator.
type loginStrategy struct {
	name   string
	path   string
	encode func(user, pass string) (contentType string, body io.Reader)
}

// dataStrategy is one candidate endpoint that may return the bet list.
type dataStrategy struct {
	name string
	path string
}

type bettingSession struct {
	token   string
	cookies []*http.Cookie
}

// BettingReconciler fetches the external betting summary on a best-effort
// basis. FetchSnapshot never fails: any internal error comes back inside the
// snapshot with zeroed totals.
type BettingReconciler struct {
	cfg     BettingConfig
	client  *http.Client
	limiter *rate.Limiter

	logins []loginStrategy
	datas  []dataStrategy

	mu     sync.RWMutex
	latest models.ExternalBettingSnapshot
}

func NewBettingReconciler(cfg BettingConfig) *BettingReconciler {
	if cfg.SourceLabel == "" {
		cfg.SourceLabel = "external"
	}
	return &BettingReconciler{
		cfg:    cfg,
		client: utils.HTTPClient,
		// Candidate attempts are paced so a flapping upstream is not hammered
		// by every 5s reconciliation tick.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logins:  defaultLoginStrategies(),
		datas:   defaultDataStrategies(),
	}
}

func defaultLoginStrategies() []loginStrategy {
	formBody := func(fields map[string]string) func(string, string) (string, io.Reader) {
		return func(user, pass string) (string, io.Reader) {
			v := url.Values{}
			v.Set(fields["user"], user)
			v.Set(fields["pass"], pass)
			return "application/x-www-form-urlencoded", strings.NewReader(v.Encode())
		}
	}
	jsonBody := func(fields map[string]string) func(string, string) (string, io.Reader) {
		return func(user, pass string) (string, io.Reader) {
			payload, _ := json.Marshal(map[string]string{
				fields["user"]: user,
				fields["pass"]: pass,
			})
			return "application/json", bytes.NewReader(payload)
		}
	}

	return []loginStrategy{
		{name: "form username/password", path: "/login", encode: formBody(map[string]string{"user": "username", "pass": "password"})},
		{name: "form user/pass", path: "/login", encode: formBody(map[string]string{"user": "user", "pass": "pass"})},
		{name: "json username/password", path: "/api/login", encode: jsonBody(map[string]string{"user": "username", "pass": "password"})},
		{name: "json email/password", path: "/api/auth/login", encode: jsonBody(map[string]string{"user": "email", "pass": "password"})},
	}
}

func defaultDataStrategies() []dataStrategy {
	return []dataStrategy{
		{name: "bets api", path: "/api/bets"},
		{name: "agent summary", path: "/api/agent/summary"},
		{name: "report endpoint", path: "/report/bets"},
		{name: "dashboard page", path: "/dashboard"},
	}
}

// Latest returns the snapshot from the most recent fetch.
func (b *BettingReconciler) Latest() models.ExternalBettingSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// FetchSnapshot runs the full fallback chain and caches the result. It never
// returns an error past this boundary.
func (b *BettingReconciler) FetchSnapshot(ctx context.Context) models.ExternalBettingSnapshot {
	snap := b.fetch(ctx)
	b.mu.Lock()
	b.latest = snap
	b.mu.Unlock()
	return snap
}

func (b *BettingReconciler) fetch(ctx context.Context) models.ExternalBettingSnapshot {
	snap := models.ExternalBettingSnapshot{
		BettingStatus: models.BettingStatusOpen,
		SourceLabel:   b.cfg.SourceLabel,
		FetchedAt:     time.Now(),
	}

	if b.cfg.Username == "" || b.cfg.BaseURL == "" {
		return b.demoSnapshot(snap)
	}

	sess, err := b.login(ctx)
	if err != nil {
		snap.Error = fmt.Sprintf("login failed: %v", err)
		return snap
	}

	records, status, err := b.fetchRecords(ctx, sess)
	if err != nil {
		snap.Error = fmt.Sprintf("data fetch failed: %v", err)
		return snap
	}
	if status != "" {
		snap.BettingStatus = status
	}

	for _, r := range records {
		snap.TotalBets++
		snap.TotalAmount += r.BetAmount
	}
	return snap
}

// demoSnapshot stands in when no upstream credentials are configured so the
// terminals still render a populated betting panel.
func (b *BettingReconciler) demoSnapshot(snap models.ExternalBettingSnapshot) models.ExternalBettingSnapshot {
	snap.IsDemo = true
	snap.SourceLabel = "demo"
	snap.TotalBets = 42
	snap.TotalAmount = 31500
	return snap
}

// login walks the candidate endpoint/payload chain and returns the first
// session the upstream accepts.
func (b *BettingReconciler) login(ctx context.Context) (*bettingSession, error) {
	var lastErr error
	for _, strat := range b.logins {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		contentType, body := strat.encode(b.cfg.Username, b.cfg.Password)
		req, err := http.NewRequestWithContext(ctx, "POST", b.cfg.BaseURL+strat.path, body)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s: status %d", strat.name, resp.StatusCode)
			continue
		}

		sess, ok := extractSession(raw, resp.Cookies())
		if !ok {
			lastErr = fmt.Errorf("%s: no success indicator in response", strat.name)
			continue
		}
		log.Printf("[Reconciler] login via %s", strat.name)
		return sess, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no login strategies configured")
	}
	return nil, lastErr
}

// extractSession accepts a login response when it carries a recognizable
// success indicator: a token field, success=true plus a cookie, or a bare
// session cookie.
func extractSession(raw []byte, cookies []*http.Cookie) (*bettingSession, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"token", "access_token", "session_id", "sessionId"} {
			if tok, ok := payload[key].(string); ok && tok != "" {
				return &bettingSession{token: tok, cookies: cookies}, true
			}
		}
		if ok, _ := payload["success"].(bool); ok {
			return &bettingSession{cookies: cookies}, true
		}
		if status, _ := payload["status"].(string); strings.EqualFold(status, "ok") {
			return &bettingSession{cookies: cookies}, true
		}
	}
	// Form-style logins answer with HTML and a session cookie.
	for _, c := range cookies {
		if strings.Contains(strings.ToLower(c.Name), "sess") || strings.Contains(strings.ToLower(c.Name), "token") {
			return &bettingSession{cookies: cookies}, true
		}
	}
	return nil, false
}

// fetchRecords walks the candidate data endpoints and normalizes the first
// recognizable response. A structured response with zero rows falls through
// to the unstructured numeric scan of the same body.
func (b *BettingReconciler) fetchRecords(ctx context.Context, sess *bettingSession) ([]models.BetRecord, string, error) {
	var lastErr error
	for _, strat := range b.datas {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", b.cfg.BaseURL+strat.path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if sess.token != "" {
			req.Header.Set("Authorization", "Bearer "+sess.token)
		}
		for _, c := range sess.cookies {
			req.AddCookie(c)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s: status %d", strat.name, resp.StatusCode)
			continue
		}

		records, status := normalizeRecords(raw)
		if len(records) > 0 {
			log.Printf("[Reconciler] %d bet records via %s", len(records), strat.name)
			return records, status, nil
		}

		// The upstream's shape is not contractually stable: when nothing
		// structured matches, scan the raw body for currency-like tokens.
		if scanned := scanCurrencyTokens(raw); len(scanned) > 0 {
			log.Printf("[Reconciler] %d bets via numeric scan of %s", len(scanned), strat.name)
			return scanned, status, nil
		}
		lastErr = fmt.Errorf("%s: no recognizable records", strat.name)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no data strategies configured")
	}
	return nil, "", lastErr
}

// normalizeRecords flattens whatever array-of-records shape the response
// carries into BetRecords, trying the field spellings seen across upstream
// revisions.
func normalizeRecords(raw []byte) ([]models.BetRecord, string) {
	var rows []map[string]interface{}
	status := ""

	var bare []map[string]interface{}
	if err := json.Unmarshal(raw, &bare); err == nil {
		rows = bare
	} else {
		var wrapped map[string]interface{}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, ""
		}
		for _, key := range []string{"data", "records", "bets", "result", "items"} {
			if arr, ok := wrapped[key].([]interface{}); ok {
				for _, item := range arr {
					if m, ok := item.(map[string]interface{}); ok {
						rows = append(rows, m)
					}
				}
				break
			}
		}
		if s, ok := wrapped["betting_status"].(string); ok {
			status = normalizeStatus(s)
		} else if s, ok := wrapped["status"].(string); ok {
			status = normalizeStatus(s)
		}
	}

	var out []models.BetRecord
	for _, row := range rows {
		rec := models.BetRecord{
			Name:       stringField(row, "name", "agent_name", "agent"),
			Username:   stringField(row, "username", "user", "account"),
			BetAmount:  numberField(row, "bet_amount", "betAmount", "amount", "stake"),
			Payout:     numberField(row, "payout", "win", "winnings"),
			Commission: numberField(row, "commission", "comm"),
		}
		if rec.BetAmount > 0 {
			out = append(out, rec)
		}
	}
	return out, status
}

func normalizeStatus(s string) string {
	if strings.Contains(strings.ToLower(s), "clos") {
		return models.BettingStatusClosed
	}
	if strings.Contains(strings.ToLower(s), "open") {
		return models.BettingStatusOpen
	}
	return ""
}

func stringField(row map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func numberField(row map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := row[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

var currencyToken = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+\.\d{2}`)

// Plausible single-bet range for the numeric fallback scan. Tokens outside
// it (ids, timestamps, page counters) are ignored.
const (
	scanMinAmount = 20
	scanMaxAmount = 1_000_000
)

// scanCurrencyTokens is the last-resort extraction: strip the body to text
// (the endpoint may answer with an HTML report) and count currency-like
// tokens within the sanity range as bets.
func scanCurrencyTokens(raw []byte) []models.BetRecord {
	text := string(raw)
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw)); err == nil {
		doc.Find("script, style").Remove()
		if t := strings.TrimSpace(doc.Text()); t != "" {
			text = t
		}
	}

	var out []models.BetRecord
	for _, tok := range currencyToken.FindAllString(text, -1) {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
		if err != nil || amount < scanMinAmount || amount > scanMaxAmount {
			continue
		}
		out = append(out, models.BetRecord{BetAmount: amount})
	}
	return out
}

// GetBettingSummary handles GET /external/betting-summary, the proxy the
// terminals and the scheduler's callers read.
func (b *BettingReconciler) GetBettingSummary(c *fiber.Ctx) error {
	snap := b.Latest()
	if snap.FetchedAt.IsZero() {
		snap = b.FetchSnapshot(c.Context())
	}
	return c.JSON(snap)
}
