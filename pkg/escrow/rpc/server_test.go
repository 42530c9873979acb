package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrow-payments/escrow-server/pkg/escrow/common"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
	"github.com/escrow-payments/escrow-server/pkg/escrow/engine"
	"github.com/escrow-payments/escrow-server/pkg/metrics"
	"github.com/escrow-payments/escrow-server/pkg/testutil"
)

type testEnv struct {
	data   data.Provider
	server *httptest.Server
}

func setup(t *testing.T) *testEnv {
	dataProvider := data.NewTestDataProvider()
	rpcServer := NewServer(engine.New(dataProvider))

	env := &testEnv{
		data:   dataProvider,
		server: httptest.NewServer(rpcServer.Router()),
	}
	t.Cleanup(env.server.Close)

	return env
}

func (env *testEnv) fundAccount(t *testing.T, owner *common.Account, balance uint64) string {
	address := owner.PublicKey().ToBase58()
	require.NoError(t, env.data.CreateTokenAccount(context.Background(), &ledger.AccountRecord{
		Address:   address,
		Authority: address,
		Balance:   balance,
		CreatedAt: time.Now(),
	}))
	return address
}

func (env *testEnv) call(t *testing.T, method string, params interface{}) *rpcResponse {
	rawParams, err := json.Marshal(params)
	require.NoError(t, err)

	body, err := json.Marshal(&rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  rawParams,
		ID:      1,
	})
	require.NoError(t, err)

	httpResp, err := http.Post(env.server.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var resp rpcResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return &resp
}

func signCreate(t *testing.T, buyer, seller *common.Account, amount uint64, itemLabel, fundingAccount string) string {
	message := (&engine.CreateParams{
		Buyer:          buyer,
		Seller:         seller,
		Amount:         amount,
		ItemLabel:      itemLabel,
		FundingAccount: fundingAccount,
	}).Message()

	signature, err := buyer.Sign(message)
	require.NoError(t, err)
	return base58.Encode(signature)
}

func signComplete(t *testing.T, seller *common.Account, escrow, recipientAccount string) string {
	message := (&engine.CompleteParams{
		Seller:           seller,
		EscrowAddress:    escrow,
		RecipientAccount: recipientAccount,
	}).Message()

	signature, err := seller.Sign(message)
	require.NoError(t, err)
	return base58.Encode(signature)
}

func signCancel(t *testing.T, buyer *common.Account, escrow, refundAccount string) string {
	message := (&engine.CancelParams{
		Buyer:         buyer,
		EscrowAddress: escrow,
		RefundAccount: refundAccount,
	}).Message()

	signature, err := buyer.Sign(message)
	require.NoError(t, err)
	return base58.Encode(signature)
}

func decodeRecordView(t *testing.T, result interface{}) *recordView {
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var view recordView
	require.NoError(t, json.Unmarshal(raw, &view))
	return &view
}

func decodeRecordViews(t *testing.T, result interface{}) []*recordView {
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var views []*recordView
	require.NoError(t, json.Unmarshal(raw, &views))
	return views
}

func TestServer_CreateCompleteGet(t *testing.T) {
	env := setup(t)

	buyer := testutil.NewRandomAccount(t)
	seller := testutil.NewRandomAccount(t)

	fundingAccount := env.fundAccount(t, buyer, 2000)
	recipientAccount := env.fundAccount(t, seller, 0)

	resp := env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         1000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
	})
	require.Nil(t, resp.Error)

	created := decodeRecordView(t, resp.Result)
	assert.EqualValues(t, 1000, created.Amount)
	assert.False(t, created.IsCompleted)

	resp = env.call(t, "escrow_complete", &completeParams{
		Seller:           seller.PublicKey().ToBase58(),
		Escrow:           created.Address,
		RecipientAccount: recipientAccount,
		Signature:        signComplete(t, seller, created.Address, recipientAccount),
	})
	require.Nil(t, resp.Error)

	resp = env.call(t, "escrow_get", &getParams{Escrow: created.Address})
	require.Nil(t, resp.Error)
	assert.True(t, decodeRecordView(t, resp.Result).IsCompleted)

	balance, err := env.data.GetTokenAccountByAddress(context.Background(), recipientAccount)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, balance.Balance)
}

func TestServer_Cancel(t *testing.T) {
	env := setup(t)

	buyer := testutil.NewRandomAccount(t)
	seller := testutil.NewRandomAccount(t)

	fundingAccount := env.fundAccount(t, buyer, 2000)

	resp := env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         1000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
	})
	require.Nil(t, resp.Error)
	created := decodeRecordView(t, resp.Result)

	resp = env.call(t, "escrow_cancel", &cancelParams{
		Buyer:         buyer.PublicKey().ToBase58(),
		Escrow:        created.Address,
		RefundAccount: fundingAccount,
		Signature:     signCancel(t, buyer, created.Address, fundingAccount),
	})
	require.Nil(t, resp.Error)

	balance, err := env.data.GetTokenAccountByAddress(context.Background(), fundingAccount)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, balance.Balance)
}

func TestServer_ErrorCodes(t *testing.T) {
	env := setup(t)

	buyer := testutil.NewRandomAccount(t)
	seller := testutil.NewRandomAccount(t)
	fundingAccount := env.fundAccount(t, buyer, 2000)

	// Unknown method
	resp := env.call(t, "escrow_unknown", map[string]string{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)

	// Invalid params: zero amount
	resp = env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         0,
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 0, "", fundingAccount),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)

	// Not found
	resp = env.call(t, "escrow_get", &getParams{Escrow: seller.PublicKey().ToBase58()})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotFound, resp.Error.Code)

	// Unauthorized: signature by the wrong party
	resp = env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         1000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCancel(t, seller, "x", "y"),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeUnauthorized, resp.Error.Code)

	// Insufficient funds
	resp = env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         100000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 100000, "iPhone 15 Pro", fundingAccount),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInsufficientFunds, resp.Error.Code)

	// Conflict: duplicate create for the same pair
	createValid := &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         1000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
	}
	resp = env.call(t, "escrow_create", createValid)
	require.Nil(t, resp.Error)

	resp = env.call(t, "escrow_create", createValid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeConflict, resp.Error.Code)
}

func TestServer_ListByBuyer(t *testing.T) {
	env := setup(t)

	buyer := testutil.NewRandomAccount(t)
	fundingAccount := env.fundAccount(t, buyer, 10000)

	for i := 0; i < 3; i++ {
		seller := testutil.NewRandomAccount(t)
		resp := env.call(t, "escrow_create", &createParams{
			Buyer:          buyer.PublicKey().ToBase58(),
			Seller:         seller.PublicKey().ToBase58(),
			Amount:         1000,
			ItemLabel:      "iPhone 15 Pro",
			FundingAccount: fundingAccount,
			Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
		})
		require.Nil(t, resp.Error)
	}

	resp := env.call(t, "escrow_listByBuyer", &listParams{
		Buyer: buyer.PublicKey().ToBase58(),
	})
	require.Nil(t, resp.Error)
	assert.Len(t, decodeRecordViews(t, resp.Result), 3)

	// Unknown buyer yields an empty list, not an error
	resp = env.call(t, "escrow_listByBuyer", &listParams{
		Buyer: testutil.NewRandomAccount(t).PublicKey().ToBase58(),
	})
	require.Nil(t, resp.Error)

	resp = env.call(t, "escrow_countByBuyer", &countByBuyerParams{
		Buyer: buyer.PublicKey().ToBase58(),
	})
	require.Nil(t, resp.Error)

	counts, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, counts["count"])
}

func TestServer_ListBySeller(t *testing.T) {
	env := setup(t)

	seller := testutil.NewRandomAccount(t)

	for i := 0; i < 2; i++ {
		buyer := testutil.NewRandomAccount(t)
		fundingAccount := env.fundAccount(t, buyer, 2000)

		resp := env.call(t, "escrow_create", &createParams{
			Buyer:          buyer.PublicKey().ToBase58(),
			Seller:         seller.PublicKey().ToBase58(),
			Amount:         1000,
			ItemLabel:      "iPhone 15 Pro",
			FundingAccount: fundingAccount,
			Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
		})
		require.Nil(t, resp.Error)
	}

	resp := env.call(t, "escrow_listBySeller", &listParams{
		Seller: seller.PublicKey().ToBase58(),
	})
	require.Nil(t, resp.Error)

	views := decodeRecordViews(t, resp.Result)
	require.Len(t, views, 2)
	for _, view := range views {
		assert.Equal(t, seller.PublicKey().ToBase58(), view.Seller)
	}

	// Unknown seller yields an empty list, not an error
	resp = env.call(t, "escrow_listBySeller", &listParams{
		Seller: testutil.NewRandomAccount(t).PublicKey().ToBase58(),
	})
	require.Nil(t, resp.Error)
}

func TestServer_GetByVault(t *testing.T) {
	env := setup(t)

	buyer := testutil.NewRandomAccount(t)
	seller := testutil.NewRandomAccount(t)
	fundingAccount := env.fundAccount(t, buyer, 2000)

	resp := env.call(t, "escrow_create", &createParams{
		Buyer:          buyer.PublicKey().ToBase58(),
		Seller:         seller.PublicKey().ToBase58(),
		Amount:         1000,
		ItemLabel:      "iPhone 15 Pro",
		FundingAccount: fundingAccount,
		Signature:      signCreate(t, buyer, seller, 1000, "iPhone 15 Pro", fundingAccount),
	})
	require.Nil(t, resp.Error)
	created := decodeRecordView(t, resp.Result)

	resp = env.call(t, "escrow_getByVault", &getByVaultParams{Vault: created.VaultAddress})
	require.Nil(t, resp.Error)
	assert.Equal(t, created.Address, decodeRecordView(t, resp.Result).Address)

	resp = env.call(t, "escrow_getByVault", &getByVaultParams{
		Vault: testutil.NewRandomAccount(t).PublicKey().ToBase58(),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotFound, resp.Error.Code)
}

func TestServer_Health(t *testing.T) {
	env := setup(t)

	httpResp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer httpResp.Body.Close()

	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
}

func TestServer_MetricsApplicationInjection(t *testing.T) {
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("test"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)

	var observed *newrelic.Application
	handler := newRelicMiddleware(app)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		observed, _ = r.Context().Value(metrics.NewRelicContextKey).(*newrelic.Application)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	httpResp, err := http.Get(server.URL)
	require.NoError(t, err)
	httpResp.Body.Close()

	// Downstream code can report against the injected application
	assert.Equal(t, app, observed)

	// With no application configured the middleware is a passthrough
	var called bool
	handler = newRelicMiddleware(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, r.Context().Value(metrics.NewRelicContextKey))
	}))

	server2 := httptest.NewServer(handler)
	defer server2.Close()

	httpResp, err = http.Get(server2.URL)
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.True(t, called)
}

func TestServer_ServeLifecycle(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	server := NewServer(engine.New(data.NewTestDataProvider()))

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, addr)
	}()

	require.NoError(t, testutil.WaitFor(5*time.Second, 50*time.Millisecond, func() bool {
		httpResp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		httpResp.Body.Close()
		return httpResp.StatusCode == http.StatusOK
	}))

	cancel()
	require.NoError(t, <-serveErr)
}
