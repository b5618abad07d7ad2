package braintree

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/types"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []graphQLRequest
	handler  func(op string, vars map[string]interface{}) (int, string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "public" || pass != "private" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, graphQLRequest{Query: req.Query, Variables: req.Variables})
	f.mu.Unlock()

	op := strings.Fields(req.Query)[1]
	status, body := f.handler(op, req.Variables)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, handler func(op string, vars map[string]interface{}) (int, string)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handler: handler}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		PublicKey:         "public",
		PrivateKey:        "private",
		MerchantAccountID: "default_account",
		Endpoint:          srv.URL,
	}), api
}

func TestClient_Endpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SandboxEndpoint, NewClient(ClientConfig{Environment: "sandbox"}).getEndpoint())
	assert.Equal(t, ProductionEndpoint, NewClient(ClientConfig{Environment: "production"}).getEndpoint())
	assert.Equal(t, "http://local", NewClient(ClientConfig{Environment: "production", Endpoint: "http://local"}).getEndpoint())
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(op string, _ map[string]interface{}) (int, string) {
		return http.StatusOK, `{"data":{"ping":"pong"}}`
	})
	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_PingRejectedCredentials(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, nil)
	c.cfg.PrivateKey = "wrong"

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestClient_GenerateClientToken(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, func(op string, vars map[string]interface{}) (int, string) {
		return http.StatusOK, "\ufeff" + `{"data":{"createClientToken":{"clientToken":"tok_123"}}}`
	})

	token, err := c.GenerateClientToken(context.Background(), "eur_account")
	require.NoError(t, err)
	assert.Equal(t, "tok_123", token)

	require.Len(t, api.requests, 1)
	input := api.requests[0].Variables.(map[string]interface{})["input"].(map[string]interface{})
	assert.Equal(t, "eur_account", input["clientToken"].(map[string]interface{})["merchantAccountId"])
}

func TestClient_GenerateClientTokenEmpty(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"data":{"createClientToken":{"clientToken":""}}}`
	})

	_, err := c.GenerateClientToken(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_PerformLookupValidationError(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"errors":[{"message":"Billing line1 format is invalid.","extensions":{"errorClass":"VALIDATION"}}]}`
	})

	_, err := c.PerformLookup(context.Background(), lookupInput{PaymentMethodID: "nonce", Amount: "10.00"})

	var sdkErr *types.SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, types.LookupValidationError, sdkErr.Code)
	assert.Equal(t, "Billing line1 format is invalid.", sdkErr.OriginalMessage())
}

func TestClient_PerformLookupOtherError(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"errors":[{"message":"Internal error","extensions":{"errorClass":"INTERNAL"}}]}`
	})

	_, err := c.PerformLookup(context.Background(), lookupInput{})

	var sdkErr *types.SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, types.LookupError, sdkErr.Code)
}

func TestClient_PerformLookupDefaultsMerchantAccount(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"data":{"performThreeDSecureLookup":{"lookupId":"lk_1","challengeRequired":false,"result":{"nonce":"n2","liabilityShifted":true,"liabilityShiftPossible":true}}}}`
	})

	res, err := c.PerformLookup(context.Background(), lookupInput{PaymentMethodID: "n1", Amount: "10.00"})
	require.NoError(t, err)
	assert.Equal(t, "lk_1", res.LookupID)
	assert.Equal(t, "n2", res.Result.Nonce)

	input := api.requests[0].Variables.(map[string]interface{})["input"].(map[string]interface{})
	assert.Equal(t, "default_account", input["merchantAccountId"])
	assert.Equal(t, "10.00", input["amount"])
}

func frictionlessAPI(op string, _ map[string]interface{}) (int, string) {
	switch op {
	case "Ping":
		return http.StatusOK, `{"data":{"ping":"pong"}}`
	case "Lookup($input:":
		return http.StatusOK, `{"data":{"performThreeDSecureLookup":{"lookupId":"lk_1","challengeRequired":false,"result":{"nonce":"verified","liabilityShifted":false,"liabilityShiftPossible":false}}}}`
	}
	return http.StatusBadRequest, `{"errors":[{"message":"unexpected operation"}]}`
}

func TestGateway_FrictionlessVerification(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, frictionlessAPI)
	gw := NewGateway(c, time.Second)

	tds, err := gw.Setup(context.Background())
	require.NoError(t, err)

	var lookedUp bool
	resp, err := tds.VerifyCard(context.Background(), &threeds.VerifyCardParams{
		Amount: "10.00",
		Nonce:  "card",
		OnLookupComplete: func(_ context.Context, data threeds.LookupData) error {
			lookedUp = true
			assert.False(t, data.ChallengeRequired)
			return nil
		},
		AddFrame: func(context.Context, *threeds.Frame) error {
			t.Fatal("frictionless flow must not mount a frame")
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, lookedUp)
	assert.Equal(t, "verified", resp.Nonce)
	assert.False(t, resp.LiabilityShiftPossible)
}

func challengeAPI(op string, vars map[string]interface{}) (int, string) {
	switch op {
	case "Ping":
		return http.StatusOK, `{"data":{"ping":"pong"}}`
	case "Lookup($input:":
		return http.StatusOK, `{"data":{"performThreeDSecureLookup":{"lookupId":"lk_2","challengeRequired":true,"acsUrl":"https://acs.example/c","payload":"creq","transactionId":"tx1"}}}`
	case "Authenticate($input:":
		input := vars["input"].(map[string]interface{})
		if input["lookupId"] != "lk_2" || input["payload"] != "cres" {
			return http.StatusOK, `{"errors":[{"message":"bad authentication"}]}`
		}
		return http.StatusOK, `{"data":{"authenticateThreeDSecure":{"nonce":"after-challenge","liabilityShifted":true,"liabilityShiftPossible":true}}}`
	}
	return http.StatusBadRequest, `{"errors":[{"message":"unexpected operation"}]}`
}

func TestGateway_ChallengeVerification(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, challengeAPI)
	tds, err := NewGateway(c, time.Second).Setup(context.Background())
	require.NoError(t, err)

	var added, removed bool
	resp, err := tds.VerifyCard(context.Background(), &threeds.VerifyCardParams{
		Amount: "25.00",
		Nonce:  "card",
		AddFrame: func(_ context.Context, f *threeds.Frame) error {
			added = true
			assert.Equal(t, "https://acs.example/c", f.AcsURL)
			assert.Equal(t, "creq", f.Payload)
			go func() { _ = f.Complete(types.ThreeDSCallback{Payload: "cres"}) }()
			return nil
		},
		RemoveFrame: func(context.Context) { removed = true },
	})
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, removed)
	assert.Equal(t, "after-challenge", resp.Nonce)
	assert.True(t, resp.LiabilityShifted)
}

func TestGateway_ChallengeAbandoned(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, challengeAPI)
	tds, err := NewGateway(c, time.Second).Setup(context.Background())
	require.NoError(t, err)

	_, err = tds.VerifyCard(context.Background(), &threeds.VerifyCardParams{
		AddFrame: func(_ context.Context, f *threeds.Frame) error {
			return f.Complete(types.ThreeDSCallback{Abandoned: true})
		},
	})

	var sdkErr *types.SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, types.ChallengeCanceled, sdkErr.Code)
}

// TestGateway_ChallengeTimeout swaps the global logger, so it does not run in
// parallel.
func TestGateway_ChallengeTimeout(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	c, _ := newTestClient(t, challengeAPI)
	tds, err := NewGateway(c, 30*time.Millisecond).Setup(context.Background())
	require.NoError(t, err)

	removed := false
	_, err = tds.VerifyCard(context.Background(), &threeds.VerifyCardParams{
		AddFrame:    func(context.Context, *threeds.Frame) error { return nil },
		RemoveFrame: func(context.Context) { removed = true },
	})

	var sdkErr *types.SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, types.ChallengeCanceled, sdkErr.Code)
	assert.True(t, removed)
	assert.Contains(t, logs.String(), "[3DS] Challenge for lookup")
}

func TestGateway_SetupFailure(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(string, map[string]interface{}) (int, string) {
		return http.StatusInternalServerError, `{"errors":[{"message":"maintenance"}]}`
	})

	_, err := NewGateway(c, 0).Setup(context.Background())
	assert.Error(t, err)
}
