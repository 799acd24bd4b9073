package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/models"
	"video-contest-ads/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeAds struct {
	ads []models.Ad
	err error
}

func (f *fakeAds) ActiveAds(ctx context.Context) ([]models.Ad, error) {
	return f.ads, f.err
}

func (f *fakeAds) FindAd(ctx context.Context, id string) (*models.Ad, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, ad := range f.ads {
		if ad.ID == id {
			return &ad, nil
		}
	}
	return nil, repository.ErrAdNotFound
}

type fakeRecorder struct {
	events []models.AdEvent
	err    error
}

func (f *fakeRecorder) Record(ctx context.Context, event models.AdEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeAnalytics struct {
	since time.Time
}

func (f *fakeAnalytics) GetAdAnalytics(ctx context.Context, adID string, since time.Time) (models.AnalyticsResponse, error) {
	f.since = since
	return models.AnalyticsResponse{AdID: adID, Impressions: 10, Clicks: 1, CTR: 10}, nil
}

func (f *fakeAnalytics) GetAllAnalytics(ctx context.Context, since time.Time) ([]models.AnalyticsResponse, error) {
	f.since = since
	return nil, nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(ads *fakeAds, rec *fakeRecorder, an *fakeAnalytics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	s := NewServer(ads, rec, an, nil, log)
	s.now = func() time.Time { return fixedNow }

	r := gin.New()
	s.Routes(r)
	return r
}

func sampleAds() *fakeAds {
	return &fakeAds{ads: []models.Ad{
		{ID: "ad-1", MediaURL: "https://cdn.example.com/1.mp4", TargetURL: "https://example.com/1", Format: adunit.FormatBumper, Active: true},
		{ID: "ad-2", MediaURL: "https://cdn.example.com/2.mp4", TargetURL: "https://example.com/2", Format: adunit.FormatSkippable, Active: true},
	}}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "contest-player/2.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostBeacon(t *testing.T) {
	for _, kind := range []beacon.Kind{beacon.Impression, beacon.View, beacon.Click} {
		t.Run(string(kind), func(t *testing.T) {
			require := require.New(t)
			rec := &fakeRecorder{}
			r := newTestServer(sampleAds(), rec, &fakeAnalytics{})

			w := do(r, http.MethodPost, kind.Path(), `{"adId":"ad-2","sessionId":"sess-9"}`)
			require.Equal(http.StatusOK, w.Code)
			require.JSONEq(`{"status":"recorded"}`, w.Body.String())

			require.Len(rec.events, 1)
			ev := rec.events[0]
			require.Equal("ad-2", ev.AdID)
			require.Equal(kind, ev.Kind)
			require.Equal("sess-9", ev.SessionID)
			require.Equal(fixedNow, ev.Timestamp)
			require.Equal("contest-player/2.1", ev.UserAgent)
		})
	}
}

func TestPostBeaconErrors(t *testing.T) {
	tests := []struct {
		name   string
		ads    *fakeAds
		rec    *fakeRecorder
		body   string
		status int
	}{
		{name: "missing ad id", ads: sampleAds(), rec: &fakeRecorder{}, body: `{}`, status: http.StatusBadRequest},
		{name: "malformed json", ads: sampleAds(), rec: &fakeRecorder{}, body: `{"adId":`, status: http.StatusBadRequest},
		{name: "unknown ad", ads: sampleAds(), rec: &fakeRecorder{}, body: `{"adId":"ad-404"}`, status: http.StatusNotFound},
		{name: "inactive ad", ads: &fakeAds{ads: []models.Ad{{ID: "ad-off", Format: adunit.FormatBumper}}}, rec: &fakeRecorder{}, body: `{"adId":"ad-off"}`, status: http.StatusNotFound},
		{name: "lookup failure", ads: &fakeAds{err: errors.New("db down")}, rec: &fakeRecorder{}, body: `{"adId":"ad-1"}`, status: http.StatusInternalServerError},
		{name: "record failure", ads: sampleAds(), rec: &fakeRecorder{err: errors.New("queue gone")}, body: `{"adId":"ad-1"}`, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestServer(tt.ads, tt.rec, &fakeAnalytics{})
			w := do(r, http.MethodPost, "/api/ads/click", tt.body)
			require.Equal(t, tt.status, w.Code)
			require.Empty(t, tt.rec.events)
		})
	}
}

func TestGetAds(t *testing.T) {
	r := newTestServer(sampleAds(), &fakeRecorder{}, &fakeAnalytics{})

	w := do(r, http.MethodGet, "/api/ads", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Ads []models.Ad `json:"ads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Ads, 2)
	require.Equal(t, adunit.FormatSkippable, body.Ads[1].Format)
}

func TestGetAdsEmpty(t *testing.T) {
	r := newTestServer(&fakeAds{}, &fakeRecorder{}, &fakeAnalytics{})

	w := do(r, http.MethodGet, "/api/ads", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ads":[]}`, w.Body.String())
}

func TestGetAnalytics(t *testing.T) {
	require := require.New(t)
	an := &fakeAnalytics{}
	r := newTestServer(sampleAds(), &fakeRecorder{}, an)

	w := do(r, http.MethodGet, "/api/ads/analytics?ad_id=ad-1&timeframe=1h", "")
	require.Equal(http.StatusOK, w.Code)
	require.Equal(fixedNow.Add(-time.Hour), an.since)

	var got models.AnalyticsResponse
	require.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal("ad-1", got.AdID)
	require.InDelta(10.0, got.CTR, 1e-9)

	w = do(r, http.MethodGet, "/api/ads/analytics?timeframe=7d", "")
	require.Equal(http.StatusOK, w.Code)
	require.Equal(fixedNow.Add(-7*24*time.Hour), an.since)
	require.JSONEq(`{"analytics":[],"timeframe":"7d"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/ads/analytics?timeframe=fortnight", "")
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r := newTestServer(sampleAds(), &fakeRecorder{}, &fakeAnalytics{})

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(sampleAds(), &fakeRecorder{}, &fakeAnalytics{})

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ad_events_processed_total")
}
