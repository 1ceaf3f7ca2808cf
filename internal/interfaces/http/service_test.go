package httpinterface_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shielded-wallet/zsyncd/internal/core/application/adapter"
	"github.com/shielded-wallet/zsyncd/internal/core/application/synchronizer"
	"github.com/shielded-wallet/zsyncd/internal/core/application/testutil"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	httpinterface "github.com/shielded-wallet/zsyncd/internal/interfaces/http"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	accountID = "main"
	waitFor   = 5 * time.Second
)

var mnemonic = strings.Split(
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	" ",
)

func init() {
	log.SetLevel(log.PanicLevel)
}

func TestNewService(t *testing.T) {
	m := adapter.NewManager(nil)

	_, err := httpinterface.NewService(httpinterface.Opts{Manager: m})
	require.ErrorIs(t, err, httpinterface.ErrNullAddr)

	_, err = httpinterface.NewService(httpinterface.Opts{Addr: "localhost:0"})
	require.ErrorIs(t, err, httpinterface.ErrNullManager)

	svc, err := httpinterface.NewService(httpinterface.Opts{
		Addr: "localhost:0", Manager: m,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	require.Error(t, svc.Start())
	svc.Stop()
	svc.Stop()
}

func TestAccountsAPI(t *testing.T) {
	keys, err := wallet.Derive(mnemonic, "", 0, &wallet.MainNet)
	require.NoError(t, err)
	other, err := wallet.Derive(mnemonic, "", 1, &wallet.MainNet)
	require.NoError(t, err)

	chain := testutil.NewChain(100, 10)
	chain.AddTx(102, testutil.PaymentTx(keys.PaymentAddress(), 150000000))

	srv, a := newTestServer(t, testutil.NewBlockSource(chain))
	require.NoError(t, a.Start())
	waitForState(t, a, domain.SyncSynced)

	t.Run("list accounts", func(t *testing.T) {
		var accounts []map[string]string
		res := doJSON(t, srv, http.MethodGet, "/v1/accounts", "", &accounts)
		require.Equal(t, http.StatusOK, res)
		require.Len(t, accounts, 1)
		require.Equal(t, accountID, accounts[0]["id"])
		require.Equal(t, a.Fingerprint(), accounts[0]["fingerprint"])
		require.Equal(t, "synced", accounts[0]["state"])
	})

	t.Run("status", func(t *testing.T) {
		var status map[string]interface{}
		res := doJSON(t, srv, http.MethodGet, "/v1/accounts/main/status", "", &status)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, "synced", status["state"])
		require.EqualValues(t, 109, status["lastScannedHeight"])

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/other/status", "", &status)
		require.Equal(t, http.StatusNotFound, res)
		require.Contains(t, status["error"], adapter.ErrAdapterNotFound.Error())
	})

	t.Run("balance", func(t *testing.T) {
		var balance map[string]interface{}
		res := doJSON(t, srv, http.MethodGet, "/v1/accounts/main/balance", "", &balance)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, "1.50000000", balance["balance"])
		require.Equal(t, "1.50000000", balance["verifiedBalance"])
		require.Equal(t, false, balance["stale"])
		require.EqualValues(t, 109, balance["chainTipHeight"])
	})

	t.Run("address", func(t *testing.T) {
		var addr map[string]interface{}
		res := doJSON(t, srv, http.MethodGet, "/v1/accounts/main/address", "", &addr)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, keys.Address(), addr["address"])

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/address?index=1", "", &addr)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, other.Address(), addr["address"])
		require.EqualValues(t, 1, addr["accountIndex"])

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/address?index=x", "", &addr)
		require.Equal(t, http.StatusBadRequest, res)
	})

	t.Run("refresh", func(t *testing.T) {
		var status map[string]interface{}
		res := doJSON(t, srv, http.MethodPost, "/v1/accounts/main/refresh", "", &status)
		require.Equal(t, http.StatusAccepted, res)

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/refresh", "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, res)
	})

	t.Run("debug", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/v1/accounts/main/debug")
		require.NoError(t, err)
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, string(body), keys.Address())
		require.NotContains(t, string(body), keys.SpendingKey)
		require.NotContains(t, string(body), "abandon")
	})

	t.Run("transactions", func(t *testing.T) {
		var resp map[string]interface{}
		path := "/v1/accounts/main/transactions"

		res := doJSON(t, srv, http.MethodPost, path, `{"raw":"zz"}`, &resp)
		require.Equal(t, http.StatusBadRequest, res)
		res = doJSON(t, srv, http.MethodPost, path, `{"raw":""}`, &resp)
		require.Equal(t, http.StatusBadRequest, res)
		res = doJSON(t, srv, http.MethodPost, path, `{`, &resp)
		require.Equal(t, http.StatusBadRequest, res)

		res = doJSON(t, srv, http.MethodPost, path, `{"raw":"deadbeef"}`, &resp)
		require.Equal(t, http.StatusAccepted, res)
		txid := domain.TxIDFromRaw([]byte{0xde, 0xad, 0xbe, 0xef})
		require.Equal(t, txid, resp["txid"])

		res = doJSON(t, srv, http.MethodPost, path, `{"raw":"deadbeef"}`, &resp)
		require.Equal(t, http.StatusConflict, res)

		var txs []map[string]interface{}
		res = doJSON(t, srv, http.MethodGet, path, "", &txs)
		require.Equal(t, http.StatusOK, res)
		require.Len(t, txs, 1)
		require.Equal(t, txid, txs[0]["txid"])
	})

	t.Run("metrics", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, string(body), "zsync_scanned_height")
		require.Contains(t, string(body), "zsync_blocks_scanned_total")
	})
}

func TestAccountLifecycleAPI(t *testing.T) {
	keys, err := wallet.Derive(mnemonic, "", 0, &wallet.MainNet)
	require.NoError(t, err)

	chain := testutil.NewChain(100, 5)
	chain.AddTx(101, testutil.PaymentTx(keys.PaymentAddress(), 2500))

	srv, a := newTestServer(t, testutil.NewBlockSource(chain))
	require.NoError(t, a.Start())
	waitForState(t, a, domain.SyncSynced)

	t.Run("resync", func(t *testing.T) {
		var status map[string]interface{}
		res := doJSON(t, srv, http.MethodPost, "/v1/accounts/main/resync", "", &status)
		require.Equal(t, http.StatusAccepted, res)
		require.NotEqual(t, "stopped", status["state"])
		waitForState(t, a, domain.SyncSynced)

		var balance map[string]interface{}
		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/balance", "", &balance)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, "0.00002500", balance["balance"])

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/resync", "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, res)
		res = doJSON(t, srv, http.MethodPost, "/v1/accounts/other/resync", "", &status)
		require.Equal(t, http.StatusNotFound, res)
	})

	t.Run("delete", func(t *testing.T) {
		var resp map[string]interface{}
		res := doJSON(t, srv, http.MethodDelete, "/v1/accounts/main", "", &resp)
		require.Equal(t, http.StatusOK, res)
		require.Equal(t, accountID, resp["id"])
		require.Equal(t, true, resp["deleted"])

		var accounts []map[string]string
		res = doJSON(t, srv, http.MethodGet, "/v1/accounts", "", &accounts)
		require.Equal(t, http.StatusOK, res)
		require.Empty(t, accounts)

		res = doJSON(t, srv, http.MethodGet, "/v1/accounts/main/status", "", &resp)
		require.Equal(t, http.StatusNotFound, res)
		res = doJSON(t, srv, http.MethodDelete, "/v1/accounts/main", "", &resp)
		require.Equal(t, http.StatusNotFound, res)
	})
}

func TestStream(t *testing.T) {
	keys, err := wallet.Derive(mnemonic, "", 0, &wallet.MainNet)
	require.NoError(t, err)

	chain := testutil.NewChain(100, 5)
	chain.AddTx(103, testutil.PaymentTx(keys.PaymentAddress(), 42000))

	srv, a := newTestServer(t, testutil.NewBlockSource(chain))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/accounts/main/stream"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer res.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	msg := readMessage(t, conn)
	require.Equal(t, "status", msg.Type)
	require.Equal(t, "stopped", msg.Status.State)

	require.NoError(t, a.Start())

	var received, synced bool
	for !received || !synced {
		msg := readMessage(t, conn)
		switch msg.Type {
		case "event":
			if msg.Event.Type == domain.EventNoteReceived.String() {
				require.EqualValues(t, 42000, msg.Event.Value)
				require.EqualValues(t, 103, msg.Event.Height)
				received = true
			}
		case "status":
			if msg.Status.State == "synced" && msg.Status.LastScannedHeight == 104 {
				synced = true
			}
		}
	}

	_, _, err = websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/accounts/other/stream", nil,
	)
	require.Error(t, err)
}

type message struct {
	Type   string `json:"type"`
	Status *struct {
		State             string `json:"state"`
		LastScannedHeight uint64 `json:"lastScannedHeight"`
	} `json:"status"`
	Event *struct {
		Type   string `json:"type"`
		Height uint64 `json:"height"`
		Value  uint64 `json:"value"`
	} `json:"event"`
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func newTestServer(
	t *testing.T, source *testutil.BlockSource,
) (*httptest.Server, *adapter.Adapter) {
	t.Helper()

	registry := prometheus.NewRegistry()
	account := domain.NewMnemonicAccount(accountID, accountID, mnemonic, "")
	account.BirthdayHeight = 100

	a, err := adapter.New(account, adapter.Opts{
		Network: &wallet.MainNet,
		Source:  source,
		Config: synchronizer.Config{
			PollInterval:         10 * time.Millisecond,
			Confirmations:        synchronizer.Uint64(5),
			RetryInitialInterval: 5 * time.Millisecond,
			RetryMaxInterval:     20 * time.Millisecond,
		},
		Registerer: registry,
	})
	require.NoError(t, err)

	m := adapter.NewManager(nil)
	require.NoError(t, m.Add(a))

	handler, closeStreams, err := httpinterface.NewHandler(httpinterface.Opts{
		Addr:     "localhost:0",
		Manager:  m,
		Gatherer: registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		closeStreams()
		srv.Close()
		m.Close()
	})
	return srv, a
}

func doJSON(
	t *testing.T, srv *httptest.Server, method, path, body string, out interface{},
) int {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil && res.StatusCode != http.StatusMethodNotAllowed {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func waitForState(t *testing.T, a *adapter.Adapter, state domain.SyncState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.State().State == state
	}, waitFor, 5*time.Millisecond, "state %s never reached", state)
}
