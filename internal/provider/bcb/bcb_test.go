package bcb

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/httpx"
)

func TestFetch(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dados/serie/bcdata.sgs.10813/dados/ultimos/1", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("formato"))
		w.Write([]byte(`[{"data":"03/03/2025","valor":"5.8123"}]`))
	}))
	defer srv.Close()
	p := &Provider{HTTP: httpx.New(time.Second), BaseURL: srv.URL}

	// Act
	out, err := p.Fetch(t.Context(), []string{"USD-EUR", "USD-BRL"})

	// Assert
	require.NoError(t, err)
	q, ok := out.Get("USD-BRL")
	require.True(t, ok)
	require.Equal(t, "5.8123", q.Value.String())
	require.True(t, q.ChangePercent.IsZero())
	require.Equal(t, SourceName, q.Source)
	require.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), q.ObservedAt)
}

func TestFetch_NotRequestedSkipsCall(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()
	p := &Provider{HTTP: httpx.New(time.Second), BaseURL: srv.URL}

	out, err := p.Fetch(t.Context(), []string{"USD-EUR"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Len())
	require.Equal(t, 0, calls)
}

func TestFetch_Failures(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
		err    bool
	}{
		"server error": {http.StatusServiceUnavailable, "", true},
		"bad valor":    {http.StatusOK, `[{"data":"03/03/2025","valor":"n/a"}]`, true},
		"empty series": {http.StatusOK, `[]`, false},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer srv.Close()
			p := &Provider{HTTP: httpx.New(time.Second), BaseURL: srv.URL}

			out, err := p.Fetch(t.Context(), []string{"USD-BRL"})
			if c.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, 0, out.Len())
		})
	}
}
