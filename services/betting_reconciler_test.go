package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-scoring-system/models"
)

func TestBettingReconciler_DemoWithoutCredentials(t *testing.T) {
	b := NewBettingReconciler(BettingConfig{})

	snap := b.FetchSnapshot(context.Background())
	assert.True(t, snap.IsDemo)
	assert.Equal(t, "demo", snap.SourceLabel)
	assert.Equal(t, 42, snap.TotalBets)
	assert.Equal(t, 31500.0, snap.TotalAmount)
	assert.Equal(t, models.BettingStatusOpen, snap.BettingStatus)
	assert.Empty(t, snap.Error)

	// The result is cached for Latest.
	assert.Equal(t, snap.TotalBets, b.Latest().TotalBets)
}

func TestBettingReconciler_LoginFallbackChain(t *testing.T) {
	var loginPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			// The form strategies are rejected; the chain must move on.
			loginPaths = append(loginPaths, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		case "/api/login":
			loginPaths = append(loginPaths, r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Write([]byte(`{"token":"abc123"}`))
		case "/api/bets":
			assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
			w.Write([]byte(`{"betting_status":"closed","data":[
				{"username":"agent1","bet_amount":500},
				{"username":"agent2","bet_amount":"1,250.50"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := NewBettingReconciler(BettingConfig{BaseURL: srv.URL, Username: "u", Password: "p"})
	snap := b.FetchSnapshot(context.Background())

	assert.Empty(t, snap.Error)
	assert.Equal(t, 2, snap.TotalBets)
	assert.InDelta(t, 1750.50, snap.TotalAmount, 0.001)
	assert.Equal(t, models.BettingStatusClosed, snap.BettingStatus)
	assert.False(t, snap.IsDemo)

	// Both /login form attempts failed before the json endpoint succeeded.
	require.Len(t, loginPaths, 3)
	assert.Equal(t, "/api/login", loginPaths[2])
}

func TestBettingReconciler_LoginFailureIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	b := NewBettingReconciler(BettingConfig{BaseURL: srv.URL, Username: "u", Password: "p"})
	snap := b.FetchSnapshot(context.Background())

	// Never an error past this boundary: the failure rides inside the
	// snapshot with zeroed totals.
	assert.Contains(t, snap.Error, "login failed")
	assert.Equal(t, 0, snap.TotalBets)
	assert.Equal(t, 0.0, snap.TotalAmount)
	assert.Equal(t, models.BettingStatusOpen, snap.BettingStatus)
}

func TestBettingReconciler_CookieSessionAndDataFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			// Form login answering with a session cookie and HTML.
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "xyz"})
			w.Write([]byte("<html>ok</html>"))
		case "/api/bets", "/api/agent/summary", "/report/bets":
			w.WriteHeader(http.StatusNotFound)
		case "/dashboard":
			cookie, err := r.Cookie("PHPSESSID")
			require.NoError(t, err)
			assert.Equal(t, "xyz", cookie.Value)
			w.Write([]byte(`<html><head><script>var x = 999999999;</script></head>
				<body><table><tr><td>1,500.00</td><td>2,350.00</td><td>5</td></tr></table></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := NewBettingReconciler(BettingConfig{BaseURL: srv.URL, Username: "u", Password: "p"})
	snap := b.FetchSnapshot(context.Background())

	// The numeric scan finds the two currency tokens; the script content and
	// the small counter are ignored.
	assert.Empty(t, snap.Error)
	assert.Equal(t, 2, snap.TotalBets)
	assert.InDelta(t, 3850.0, snap.TotalAmount, 0.001)
}

func TestNormalizeRecords_Shapes(t *testing.T) {
	// Bare array.
	recs, status := normalizeRecords([]byte(`[{"username":"a","amount":100}]`))
	require.Len(t, recs, 1)
	assert.Equal(t, 100.0, recs[0].BetAmount)
	assert.Empty(t, status)

	// Wrapped under an alternate key with alternate field spellings.
	recs, status = normalizeRecords([]byte(`{"status":"Betting Closed","records":[
		{"agent":"x","stake":"2,000","win":150,"comm":10}
	]}`))
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].Name)
	assert.Equal(t, 2000.0, recs[0].BetAmount)
	assert.Equal(t, 150.0, recs[0].Payout)
	assert.Equal(t, 10.0, recs[0].Commission)
	assert.Equal(t, models.BettingStatusClosed, status)

	// Rows without a positive amount are dropped.
	recs, _ = normalizeRecords([]byte(`{"data":[{"username":"empty"}]}`))
	assert.Empty(t, recs)

	// Garbage in, nothing out.
	recs, _ = normalizeRecords([]byte(`not json`))
	assert.Empty(t, recs)
}

func TestScanCurrencyTokens_SanityRange(t *testing.T) {
	recs := scanCurrencyTokens([]byte(`ids: 20260828 totals: 1,500.00 and 75.50 page 3 of 12`))
	require.Len(t, recs, 2)
	assert.Equal(t, 1500.0, recs[0].BetAmount)
	assert.Equal(t, 75.50, recs[1].BetAmount)
}
