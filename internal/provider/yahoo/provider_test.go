package yahoo_test

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quotefeed/internal/provider/yahoo"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestIndexProvider_Fetch(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller and http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: IBOV resolves to ^BVSP, PETR4 to PETR4.SA; DAX fails
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "5m", req.URL.Query().Get("interval"))
			switch req.URL.Path {
			case "/v8/finance/chart/^BVSP":
				return &http.Response{StatusCode: http.StatusOK, Body: chartJSON(t, "^BVSP",
					[]int64{1741000000, 1741000300},
					[]any{100.0, 101.0}, []any{102.0, 104.0}, []any{99.0, 100.0}, []any{101.0, 103.5}, []any{10, 20},
				)}, nil
			case "/v8/finance/chart/PETR4.SA":
				return &http.Response{StatusCode: http.StatusOK, Body: chartJSON(t, "PETR4.SA",
					[]int64{1741000000}, []any{40.0}, []any{40.0}, []any{40.0}, []any{38.0}, []any{5},
				)}, nil
			default:
				return &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody}, nil
			}
		}).
		Times(3)

	p := &yahoo.IndexProvider{Client: yahoo.NewClient(yahoo.WithHTTPClient(httpClient))}

	// Act
	out, err := p.Fetch(t.Context(), []string{"IBOV", "DAX", "PETR4"})

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{"IBOV", "PETR4"}, out.Keys())

	ibov, _ := out.Get("IBOV")
	require.True(t, ibov.Value.Equal(d("103.5")))
	require.True(t, ibov.Change.Equal(d("3.5")))
	require.True(t, ibov.ChangePercent.Equal(d("3.5")))
	require.True(t, ibov.Open.Equal(d("100")))
	require.True(t, ibov.High.Equal(d("104")))
	require.True(t, ibov.Low.Equal(d("99")))
	require.Equal(t, uint64(30), ibov.Volume)
	require.Equal(t, "^BVSP", ibov.RawSymbol)
	require.Equal(t, yahoo.SourceName, ibov.Source)

	petr, _ := out.Get("PETR4")
	require.True(t, petr.Change.Equal(d("-2")))
	require.True(t, petr.ChangePercent.Equal(d("-5")))
}

func TestIndexProvider_AllKeysFail(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{StatusCode: http.StatusTooManyRequests, Body: http.NoBody}, nil).
		Times(2)

	p := &yahoo.IndexProvider{Client: yahoo.NewClient(yahoo.WithHTTPClient(httpClient))}
	out, err := p.Fetch(t.Context(), []string{"IBOV", "SP500"})

	require.ErrorContains(t, err, "rate limited")
	require.Equal(t, 0, out.Len())
}

func TestCurrencyProvider_Fetch(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "1m", req.URL.Query().Get("interval"))
			switch req.URL.Path {
			case "/v8/finance/chart/USDBRL=X":
				return &http.Response{StatusCode: http.StatusOK, Body: chartJSON(t, "USDBRL=X",
					[]int64{1741000000, 1741000060},
					[]any{5.0, 5.1}, []any{5.0, 5.1}, []any{5.0, 5.1}, []any{5.0, 5.1}, []any{0, 0},
				)}, nil
			case "/v8/finance/chart/EURUSD=X":
				return &http.Response{StatusCode: http.StatusOK, Body: chartJSON(t, "EURUSD=X",
					[]int64{1741000000, 1741000060},
					[]any{1.25, 1.0}, []any{1.25, 1.0}, []any{1.25, 1.0}, []any{1.25, 1.0}, []any{0, 0},
				)}, nil
			}
			t.Errorf("unexpected request %s", req.URL)
			return &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody}, nil
		}).
		Times(2)

	p := &yahoo.CurrencyProvider{Client: yahoo.NewClient(yahoo.WithHTTPClient(httpClient))}

	// Act: IBOV is not a currency key and is ignored without a request
	out, err := p.Fetch(t.Context(), []string{"USD-BRL", "USD-EUR", "IBOV"})

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{"USD-BRL", "USD-EUR"}, out.Keys())

	brl, _ := out.Get("USD-BRL")
	require.True(t, brl.Value.Equal(d("5.1")))
	require.True(t, brl.ChangePercent.Equal(d("2")), "pct=%s", brl.ChangePercent)
	require.Nil(t, brl.Open)

	// EURUSD=X is inverted so USD-EUR reads as euros per dollar
	eur, _ := out.Get("USD-EUR")
	require.Equal(t, "EURUSD=X", eur.RawSymbol)
	require.True(t, eur.Value.Equal(d("1")))
	require.True(t, eur.Change.Equal(d("0.2")), "change=%s", eur.Change)
	require.True(t, eur.ChangePercent.Equal(d("25")), "pct=%s", eur.ChangePercent)
}

func TestCurrencyProvider_NoCurrencyKeys(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := &yahoo.CurrencyProvider{Client: yahoo.NewClient(yahoo.WithHTTPClient(NewMockHTTPClient(ctrl)))}

	out, err := p.Fetch(t.Context(), []string{"IBOV", "USD-USD", "BRL"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Len())
}
