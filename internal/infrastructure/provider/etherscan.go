package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/httpx"
)

const etherscanName = "etherscan"

// Etherscan looks up verified contract ABIs.
type Etherscan struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client
}

func NewEtherscan(baseURL, apiKey string, client *httpx.Client) *Etherscan {
	return &Etherscan{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// ContractABI returns the verified ABI of address. The result must be a JSON array.
func (e *Etherscan) ContractABI(ctx context.Context, address string) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "etherscan.getabi")
	defer span.End()

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", address)
	q.Set("apikey", e.APIKey)
	u, err := endpoint(e.BaseURL, "", q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", etherscanName, err)
	}
	var body etherscanResponse
	if err := e.Client.DoJSON(ctx, req, &body); err != nil {
		return nil, wrapHTTP(etherscanName, err)
	}
	if body.Status != "1" {
		return nil, fmt.Errorf("%s: %s: %w: %s %s", etherscanName, address, domain.ErrProvider, body.Message, body.Result)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(body.Result), &entries); err != nil {
		return nil, fmt.Errorf("%s: %s: %w: invalid abi: %w", etherscanName, address, domain.ErrProvider, err)
	}
	return json.RawMessage(body.Result), nil
}
