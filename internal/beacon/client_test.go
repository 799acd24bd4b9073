package beacon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type received struct {
	path    string
	payload Payload
	cookie  string
}

func newCollector(t *testing.T, status int) (*httptest.Server, func() []received) {
	t.Helper()

	var mu sync.Mutex
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		rec := received{path: r.URL.Path, payload: p}
		if c, err := r.Cookie("session"); err == nil {
			rec.cookie = c.Value
		}
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "impression", want: Impression},
		{in: " VIEW ", want: View},
		{in: "click", want: Click},
		{in: "conversion", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClientPost(t *testing.T) {
	require := require.New(t)
	logger, _ := test.NewNullLogger()
	srv, calls := newCollector(t, http.StatusOK)

	c, err := NewClient(srv.URL, logger, WithCookies(&http.Cookie{Name: "session", Value: "viewer-1"}))
	require.NoError(err)

	require.NoError(c.Post(context.Background(), Impression, "ad-1"))
	require.NoError(c.Post(context.Background(), Click, "ad-1"))

	got := calls()
	require.Len(got, 2)
	require.Equal("/api/ads/impression", got[0].path)
	require.Equal("ad-1", got[0].payload.AdID)
	require.Equal("viewer-1", got[0].cookie)
	require.Equal("/api/ads/click", got[1].path)
}

func TestClientPostRejected(t *testing.T) {
	logger, _ := test.NewNullLogger()
	srv, _ := newCollector(t, http.StatusNotFound)

	c, err := NewClient(srv.URL, logger)
	require.NoError(t, err)

	err = c.Post(context.Background(), View, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestClientSendSwallowsFailure(t *testing.T) {
	require := require.New(t)
	logger, hook := test.NewNullLogger()
	srv, calls := newCollector(t, http.StatusInternalServerError)

	c, err := NewClient(srv.URL, logger)
	require.NoError(err)

	c.Send(View, "ad-9")
	c.Wait()

	require.Len(calls(), 1)
	entry := hook.LastEntry()
	require.NotNil(entry)
	require.Equal(logrus.WarnLevel, entry.Level)
	require.Equal("ad-9", entry.Data["ad_id"])
}

func TestClientSendUnreachable(t *testing.T) {
	logger, hook := test.NewNullLogger()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, logger)
	require.NoError(t, err)

	c.Send(Impression, "ad-2")
	c.Wait()

	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewClient("ftp://collector", logger)
	require.Error(t, err)
}
