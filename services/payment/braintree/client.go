package braintree

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"checkout-3ds-api/types"
)

const (
	SandboxEndpoint    = "https://payments.sandbox.braintree-api.com/graphql"
	ProductionEndpoint = "https://payments.braintree-api.com/graphql"
	APIVersion         = "2019-01-01"
	RequestTimeout     = 30 * time.Second
)

// validationErrorClass is how the API flags input that failed validation.
const validationErrorClass = "VALIDATION"

// ClientConfig holds the credentials for the gateway API. Endpoint overrides
// the environment endpoint when set.
type ClientConfig struct {
	PublicKey         string
	PrivateKey        string
	MerchantID        string
	MerchantAccountID string
	Environment       string
	Endpoint          string
}

type Client struct {
	cfg       ClientConfig
	client    *http.Client
	transport *http.Transport
}

func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		cfg:       cfg,
		transport: transport,
		client: &http.Client{
			Timeout:   RequestTimeout,
			Transport: transport,
		},
	}
}

func (c *Client) getEndpoint() string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint
	}
	if c.cfg.Environment == "production" {
		return ProductionEndpoint
	}
	return SandboxEndpoint
}

// Ping checks that the credentials are accepted by the API.
func (c *Client) Ping(ctx context.Context) error {
	var data pingData
	if err := c.do(ctx, "ping", pingQuery, nil, &data); err != nil {
		return err
	}
	if data.Ping != "pong" {
		return fmt.Errorf("unexpected ping response %q", data.Ping)
	}
	return nil
}

// GenerateClientToken creates a client authorization token for the browser SDK.
func (c *Client) GenerateClientToken(ctx context.Context, merchantAccountID string) (string, error) {
	input := clientTokenInput{}
	if merchantAccountID != "" {
		input.ClientToken = &clientTokenOptions{MerchantAccountID: merchantAccountID}
	}

	var data clientTokenData
	if err := c.do(ctx, "client token", clientTokenMutation, map[string]interface{}{"input": input}, &data); err != nil {
		return "", fmt.Errorf("failed to generate client token: %w", err)
	}
	if data.CreateClientToken.ClientToken == "" {
		return "", errors.New("failed to generate client token: empty token returned")
	}
	return data.CreateClientToken.ClientToken, nil
}

// PerformLookup starts a 3D Secure verification. Input validation failures
// come back as a *types.SDKError with code THREEDS_LOOKUP_VALIDATION_ERROR.
func (c *Client) PerformLookup(ctx context.Context, input lookupInput) (*lookupResult, error) {
	if input.MerchantAccountID == "" {
		input.MerchantAccountID = c.cfg.MerchantAccountID
	}

	var data lookupData
	err := c.do(ctx, "3ds lookup", lookupMutation, map[string]interface{}{"input": input}, &data)
	if err != nil {
		var gqlErr *apiError
		if errors.As(err, &gqlErr) {
			if gqlErr.class == validationErrorClass {
				return nil, types.NewLookupValidationError(gqlErr.message)
			}
			return nil, &types.SDKError{Code: types.LookupError, Message: gqlErr.message}
		}
		return nil, &types.SDKError{Code: types.LookupError, Message: err.Error()}
	}
	return &data.PerformThreeDSecureLookup, nil
}

// Authenticate finishes a verification with the result of the issuer challenge.
func (c *Client) Authenticate(ctx context.Context, lookupID, payload string) (*threeDSecureResult, error) {
	var data authenticateData
	input := authenticateInput{LookupID: lookupID, Payload: payload}
	if err := c.do(ctx, "3ds authenticate", authenticateMutation, map[string]interface{}{"input": input}, &data); err != nil {
		return nil, &types.SDKError{Code: types.AuthenticationError, Message: err.Error()}
	}
	return &data.AuthenticateThreeDSecure, nil
}

// apiError is a GraphQL-level error returned with a 200 response.
type apiError struct {
	message string
	class   string
}

func (e *apiError) Error() string {
	if e.class == "" {
		return e.message
	}
	return fmt.Sprintf("%s (%s)", e.message, e.class)
}

func (c *Client) do(ctx context.Context, op, query string, variables interface{}, out interface{}) error {
	startTime := time.Now()

	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("error marshaling %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.getEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", op, err)
	}
	httpReq.SetBasicAuth(c.cfg.PublicKey, c.cfg.PrivateKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Braintree-Version", APIVersion)
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error making %s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading %s response body: %w", op, err)
	}

	log.Printf("Gateway %s response received in %v (status %d)", op, time.Since(startTime), resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s rejected: gateway credentials not accepted (status %d)", op, resp.StatusCode)
	}

	cleanBody := strings.TrimPrefix(string(respBody), "\ufeff")

	var gql graphQLResponse
	if err := json.Unmarshal([]byte(cleanBody), &gql); err != nil {
		return fmt.Errorf("error decoding %s response (status %d): %w", op, resp.StatusCode, err)
	}

	if len(gql.Errors) > 0 {
		first := gql.Errors[0]
		return &apiError{message: first.Message, class: first.Extensions.ErrorClass}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed with status %d", op, resp.StatusCode)
	}

	if out == nil || len(gql.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("error decoding %s data: %w", op, err)
	}
	return nil
}
