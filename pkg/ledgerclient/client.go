/**
 * @description
 * This package provides a client for the token ledger service. The ledger holds
 * token balances and delegated allowances and exposes an atomic delegated
 * transfer primitive; this client encapsulates the authenticated HTTP calls and
 * response parsing.
 *
 * The ledger's transfer endpoint either fully moves the funds or returns an
 * error response with nothing moved. There is no partial-transfer state for the
 * caller to reconcile.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the token ledger API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new ledger API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TokenAccount describes a ledger account: its balance and, when the owner has
// designated a delegate, the delegate's identity and remaining allowance.
type TokenAccount struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Balance         int64  `json:"balance"`
			Delegate        string `json:"delegate,omitempty"`
			DelegatedAmount int64  `json:"delegatedAmount"`
			Mint            string `json:"mint"`
		} `json:"attributes"`
	} `json:"data"`
}

// TransferRequest is the payload for a delegated transfer.
type TransferRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Amount    int64  `json:"amount"`
			Authority string `json:"authority"`
		} `json:"attributes"`
		Relationships struct {
			Source struct {
				ID string `json:"id"`
			} `json:"source"`
			Destination struct {
				ID string `json:"id"`
			} `json:"destination"`
		} `json:"relationships"`
	} `json:"data"`
}

// TransferResponse is the expected response from the ledger's transfer endpoint.
type TransferResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents an error returned by the ledger API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("ledger api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown ledger api error"
}

// GetAccount fetches the current state of a token account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*TokenAccount, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/v1/accounts/%s", c.BaseURL, accountID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute account request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read account response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && len(apiErr.Errors) > 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("ledger returned status %d for account %s", resp.StatusCode, accountID)
	}

	var account TokenAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}
	return &account, nil
}

// Transfer executes a delegated transfer of `amount` from the source account to
// the destination account, authorized by the given delegate identity.
func (c *Client) Transfer(ctx context.Context, sourceAccountID, destAccountID, authority string, amount int64) (*TransferResponse, error) {
	reqPayload := TransferRequest{}
	reqPayload.Data.Type = "DelegatedTransfer"
	reqPayload.Data.Attributes.Amount = amount
	reqPayload.Data.Attributes.Authority = authority
	reqPayload.Data.Relationships.Source.ID = sourceAccountID
	reqPayload.Data.Relationships.Destination.ID = destAccountID

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/transfers", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transfer request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && len(apiErr.Errors) > 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("ledger transfer returned status %d", resp.StatusCode)
	}

	var transfer TransferResponse
	if err := json.Unmarshal(respBody, &transfer); err != nil {
		return nil, fmt.Errorf("failed to parse transfer response: %w", err)
	}
	return &transfer, nil
}
