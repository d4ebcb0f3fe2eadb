package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/auth"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
	"github.com/coachpo/krakenbridge/internal/infra/secrets"
)

const (
	vectorKey    = "test-key"
	vectorSecret = "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
	vectorNonce  = uint64(1616492376594)
	vectorBody   = "nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25"
	vectorSign   = "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds, err := secrets.NewStatic(vectorKey, vectorSecret)
	require.NoError(t, err)

	opts := Options{
		BaseURL:     srv.URL,
		Credentials: creds,
		Nonce:       auth.NewSequenceNonce(vectorNonce),
		Limits:      ratelimit.NewPolicy(ratelimit.PolicyConfig{PublicInterval: time.Millisecond}),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestAddOrderSignsVenueVector(t *testing.T) {
	var (
		gotBody   string
		gotSign   string
		gotKey    string
		gotMethod string
		gotType   string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSign = r.Header.Get("API-Sign")
		gotKey = r.Header.Get("API-Key")
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		require.Equal(t, "/0/private/AddOrder", r.URL.Path)
		writeJSON(w, `{"error":[],"result":{"descr":{"order":"buy 1.25 XBTUSD @ limit 37500"},"txid":["OUF4EM-FRGI2-MQMWZD"]}}`)
	}, nil)

	req, err := NewAddOrder().
		Pair("XBTUSD").
		Side(SideBuy).
		OrderType(OrderTypeLimit).
		Volume(decimal.RequireFromString("1.25")).
		Price(decimal.NewFromInt(37500)).
		Build()
	require.NoError(t, err)

	res, err := client.AddOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"OUF4EM-FRGI2-MQMWZD"}, res.TxID)
	require.Equal(t, "buy 1.25 XBTUSD @ limit 37500", res.Descr.Order)

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, vectorBody, gotBody)
	require.Equal(t, vectorSign, gotSign)
	require.Equal(t, vectorKey, gotKey)
	require.True(t, strings.HasPrefix(gotType, formMediaType))
}

func TestAddOrderRecordsPlacementTimes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ages := ratelimit.NewMemoryOrderAges(ratelimit.OrderTTL, func() time.Time { return now })
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"error":[],"result":{"descr":{"order":"x"},"txid":["OTX-1"]}}`)
	}, func(o *Options) {
		o.Now = func() time.Time { return now }
		o.Limits = ratelimit.NewPolicy(ratelimit.PolicyConfig{OrderAges: ages, PublicInterval: time.Millisecond})
	})

	req, err := NewAddOrder().Pair("XBTUSD").Side(SideSell).OrderType(OrderTypeMarket).
		Volume(decimal.NewFromInt(1)).UserRef(42).Build()
	require.NoError(t, err)
	_, err = client.AddOrder(context.Background(), req)
	require.NoError(t, err)

	for _, ref := range []string{"OTX-1", ratelimit.UserRefKey(42)} {
		placed, ok, err := ages.PlacedAt(context.Background(), ref)
		require.NoError(t, err)
		require.True(t, ok, ref)
		require.True(t, placed.Equal(now))
	}
}

func TestAPIErrorWinsOverResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"error":["EOrder:Insufficient funds"],"result":{"txid":["X"]}}`)
	}, nil)

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeAPI))
	require.True(t, errs.HasCanonical(err, errs.CanonicalInsufficientBalance))

	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Equal(t, []string{"EOrder:Insufficient funds"}, e.APIErrors)
	require.Equal(t, EndpointBalance.Path, e.Endpoint)
}

func TestNumericStatusKeepsAPIErrors(t *testing.T) {
	body := `{"error":["EGeneral:Invalid nonce"],"result":null,"status":400,"symbol":"XBTUSD"}`
	err := DecodeEnvelope(strings.NewReader(body), EndpointBalance.Path, nil)
	require.True(t, errs.Is(err, errs.CodeAPI))
	require.True(t, errs.HasCanonical(err, errs.CanonicalInvalidNonce))

	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Equal(t, []string{"EGeneral:Invalid nonce"}, e.APIErrors)
	require.Equal(t, "400", e.VenueMetadata["status"])
	require.Equal(t, "XBTUSD", e.VenueMetadata["symbol"])

	err = DecodeEnvelope(strings.NewReader(`{"error":["EService:Unavailable"],"status":"error"}`), EndpointBalance.Path, nil)
	require.True(t, errors.As(err, &e))
	require.Equal(t, "error", e.VenueMetadata["status"])
}

func TestSuccessEnvelopeDecodesResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"error":[],"result":{"ZUSD":"171288.6158","XXBT":"0.0011"}}`)
	}, nil)

	balances, err := client.Balance(context.Background())
	require.NoError(t, err)
	require.True(t, balances["ZUSD"].Equal(decimal.RequireFromString("171288.6158")))
	require.True(t, balances["XXBT"].Equal(decimal.RequireFromString("0.0011")))
}

func TestNonSuccessStatusIsHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream unavailable")
	}, nil)

	_, err := client.ServerTime(context.Background())
	require.Error(t, err)
	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Equal(t, errs.CodeHTTP, e.Code)
	require.Equal(t, http.StatusBadGateway, e.HTTP)
	require.Equal(t, "upstream unavailable", e.Message)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := NewClient(Options{
		BaseURL: base,
		Limits:  ratelimit.NewPolicy(ratelimit.PolicyConfig{PublicInterval: time.Millisecond}),
	})
	_, err := client.SystemStatus(context.Background())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeNetwork))
}

func TestMalformedBodyIsNetworkError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"error":[],"result":`)
	}, nil)

	_, err := client.ServerTime(context.Background())
	require.Error(t, err)
	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Equal(t, errs.CodeNetwork, e.Code)
	require.Equal(t, "malformed response body", e.Message)
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	}, func(o *Options) { o.Credentials = nil })

	_, err := client.Balance(context.Background())
	require.True(t, errs.Is(err, errs.CodeAuth))
	require.Zero(t, calls)
}

func TestPublicCallUsesGETWithoutSignature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/0/public/Depth", r.URL.Path)
		require.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		require.Equal(t, "2", r.URL.Query().Get("count"))
		require.Empty(t, r.Header.Get("API-Sign"))
		require.Empty(t, r.Header.Get("API-Key"))
		writeJSON(w, `{"error":[],"result":{"XXBTZUSD":{
			"asks":[["30385.10000","0.500",1688671834],["30385.20000","1.250",1688671835]],
			"bids":[["30384.90000","2.000",1688671830]]}}}`)
	}, nil)

	depth, err := client.Depth(context.Background(), "XBTUSD", 2)
	require.NoError(t, err)
	book, ok := depth["XXBTZUSD"]
	require.True(t, ok)
	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 1)
	require.True(t, book.Asks[1].Price.Equal(decimal.RequireFromString("30385.2")))
	require.True(t, book.Bids[0].Volume.Equal(decimal.NewFromInt(2)))
	require.Equal(t, int64(1688671830), book.Bids[0].Timestamp)
}

func TestOHLCAndTradesParseMixedArrays(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/0/public/OHLC":
			require.Equal(t, "60", r.URL.Query().Get("interval"))
			writeJSON(w, `{"error":[],"result":{"XXBTZUSD":[
				[1688671200,"30306.1","30306.2","30305.7","30305.7","30306.1","3.39243896",23]],
				"last":1688671200}}`)
		case "/0/public/Trades":
			writeJSON(w, `{"error":[],"result":{"XXBTZUSD":[
				["30243.40000","0.34507674",1688669597.827,"b","m","",61044952]],
				"last":"1688671969993150842"}}`)
		default:
			http.NotFound(w, r)
		}
	}, nil)

	ohlc, err := client.OHLC(context.Background(), "XBTUSD", 60, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1688671200), ohlc.Last)
	require.Len(t, ohlc.Candles, 1)
	require.True(t, ohlc.Candles[0].Volume.Equal(decimal.RequireFromString("3.39243896")))
	require.Equal(t, int64(23), ohlc.Candles[0].Count)

	trades, err := client.Trades(context.Background(), "XBTUSD", "")
	require.NoError(t, err)
	require.Equal(t, "1688671969993150842", trades.Last)
	require.Len(t, trades.Trades, 1)
	require.Equal(t, "b", trades.Trades[0].Side)
	require.Equal(t, int64(61044952), trades.Trades[0].TradeID)
}

func TestAddOrderBuilderReportsMissingFields(t *testing.T) {
	_, err := NewAddOrder().Pair("XBTUSD").Build()
	require.True(t, errs.Is(err, errs.CodeInvalid))
	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Contains(t, e.Message, "missing type")
	require.Contains(t, e.Message, "missing ordertype")
	require.Contains(t, e.Message, "missing volume")

	_, err = NewAddOrder().Pair("XBTUSD").Side(SideBuy).OrderType(OrderTypeLimit).Volume(decimal.NewFromInt(1)).Build()
	require.ErrorContains(t, err, "missing price for limit")

	_, err = NewAddOrder().Pair("XBTUSD").Side(SideBuy).OrderType(OrderTypeStopLossLimit).
		Volume(decimal.NewFromInt(1)).Price(decimal.NewFromInt(1)).Build()
	require.ErrorContains(t, err, "missing price2")

	_, err = NewAddOrder().Pair("XBTUSD").Side("hold").OrderType(OrderTypeMarket).Volume(decimal.NewFromInt(1)).Build()
	require.ErrorContains(t, err, "invalid")
}

func TestEditOrderBuilderRequiresTxIDAndPair(t *testing.T) {
	_, err := NewEditOrder("", "").Volume(decimal.NewFromInt(1)).Build()
	require.ErrorContains(t, err, "missing txid")
	require.ErrorContains(t, err, "missing pair")

	req, err := NewEditOrder("OTX-1", "XBTUSD").Price(decimal.NewFromInt(100)).Build()
	require.NoError(t, err)
	var admission ratelimit.Request
	req.admissionHint(&admission)
	require.Equal(t, "OTX-1", admission.OrderRef)
}

func TestBatchValuesUseIndexedKeys(t *testing.T) {
	order := func(price int64) AddOrderRequest {
		p := decimal.NewFromInt(price)
		return AddOrderRequest{Side: SideBuy, OrderType: OrderTypeLimit, Volume: decimal.NewFromInt(1), Price: &p}
	}
	batch := AddOrderBatchRequest{Pair: "XBTUSD", Orders: []AddOrderRequest{order(100), order(101)}}
	values, err := batch.Values()
	require.NoError(t, err)
	require.Equal(t, "XBTUSD", values.Get("pair"))
	require.Equal(t, "100", values.Get("orders[0][price]"))
	require.Equal(t, "101", values.Get("orders[1][price]"))
	require.Equal(t, "buy", values.Get("orders[1][type]"))

	var admission ratelimit.Request
	batch.admissionHint(&admission)
	require.Equal(t, 2, admission.BatchSize)

	_, err = AddOrderBatchRequest{Pair: "XBTUSD", Orders: []AddOrderRequest{order(1)}}.Values()
	require.Error(t, err)
}

func TestInvalidParamsNeverReachTheWire(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	}, nil)

	_, err := client.CancelOrder(context.Background(), CancelOrderRequest{})
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.Zero(t, calls)
}

func TestParseAPIError(t *testing.T) {
	parsed := ParseAPIError("EAPI:Invalid nonce")
	require.Equal(t, "E", parsed.Severity)
	require.Equal(t, "API", parsed.Category)
	require.Equal(t, "Invalid nonce", parsed.Message)
	require.False(t, parsed.Warning())

	require.True(t, ParseAPIError("WGeneral:Something").Warning())
	require.Equal(t, "garbage", ParseAPIError("garbage").Message)

	require.Equal(t, errs.CanonicalInvalidNonce, Canonicalize("EAPI:Invalid nonce"))
	require.Equal(t, errs.CanonicalRateLimited, Canonicalize("EAPI:Rate limit exceeded"))
	require.Equal(t, errs.CanonicalInvalidSymbol, Canonicalize("EQuery:Unknown asset pair"))
	require.Equal(t, errs.CanonicalInvalidArguments, Canonicalize("EGeneral:Unknown Method"))
	require.Equal(t, errs.CanonicalInvalidArguments, Canonicalize("EGeneral:Unknown method"))
	require.Equal(t, errs.CanonicalUnknown, Canonicalize("EFoo:Bar"))
}

func TestAbandonedAdmissionIsReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"error":[],"result":{}}`)
	}, func(o *Options) {
		o.Limits = ratelimit.NewPolicy(ratelimit.PolicyConfig{PublicInterval: time.Hour})
	})

	_, err := client.ServerTime(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.ServerTime(ctx)
	require.True(t, errs.Is(err, errs.CodeNetwork))
}

func TestTokenFetchesWebSocketsToken(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NotEmpty(t, r.Header.Get("API-Sign"))
		writeJSON(w, `{"error":[],"result":{"token":"ws-token","expires":900}}`)
	}, nil)

	tok, err := client.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ws-token", tok)
	require.Equal(t, "/0/private/GetWebSocketsToken", path)
}

func TestCancelAllOrdersAfter(t *testing.T) {
	var form string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form = string(body)
		writeJSON(w, `{"error":[],"result":{"currentTime":"2023-03-24T17:41:56Z","triggerTime":"2023-03-24T17:42:56Z"}}`)
	}, nil)

	out, err := client.CancelAllOrdersAfter(context.Background(), 60)
	require.NoError(t, err)
	require.Equal(t, "2023-03-24T17:42:56Z", out.TriggerTime)
	require.Contains(t, form, "timeout=60")

	_, err = client.CancelAllOrdersAfter(context.Background(), -1)
	require.True(t, errs.Is(err, errs.CodeInvalid))
}
