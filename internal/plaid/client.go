package plaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/service"
	"github.com/plaid/plaid-go/v20/plaid"
)

const (
	// Plaid's max page size for /transactions/sync.
	syncPageSize = int32(500)
	// How many times a round restarts after the feed mutates mid-pagination.
	maxPaginationRestarts = 3

	errCodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	errCodeMutationDuringSync = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
)

var errMutationDuringPagination = errors.New("transactions changed during pagination")

// Config holds Plaid API configuration.
type Config struct {
	ClientID     string
	Secret       string
	Environment  string // sandbox or production
	ClientName   string
	CountryCodes []string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("plaid environment is required")
	}

	validEnvs := map[string]bool{
		"sandbox":    true,
		"production": true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid Plaid environment: must be sandbox or production")
	}

	return nil
}

// Client implements the ChangeFeed interface against the Plaid API.
// Access tokens are passed per call; the client holds no credential state.
type Client struct {
	client       *plaid.APIClient
	logger       *slog.Logger
	retryOpts    *service.RetryOptions
	institutions map[string]string
	environment  string
	clientName   string
	countryCodes []plaid.CountryCode
	instMu       sync.RWMutex
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	clientName := cfg.ClientName
	if clientName == "" {
		clientName = "Spice Sync"
	}

	return &Client{
		client:       plaid.NewAPIClient(configuration),
		environment:  cfg.Environment,
		clientName:   clientName,
		countryCodes: parseCountryCodes(cfg.CountryCodes),
		institutions: make(map[string]string),
		logger:       common.ComponentLogger("plaid"),
		retryOpts: &service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// SyncTransactions pulls every page of changes after cursor, then snapshots the
// credential's accounts. Failures wrap common.ErrRemoteFetch.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.SyncBatch, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", common.ErrRemoteFetch)
	}

	var batch *model.SyncBatch
	for restart := 0; ; restart++ {
		var err error
		batch, err = c.syncPages(ctx, accessToken, cursor)
		if errors.Is(err, errMutationDuringPagination) && restart < maxPaginationRestarts {
			c.logger.Warn("Transactions changed during pagination, restarting from round cursor",
				"restart", restart+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrRemoteFetch, err)
		}
		break
	}

	accounts, err := c.fetchAccounts(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemoteFetch, err)
	}
	batch.Accounts = accounts

	c.logger.Info("Fetched transaction changes",
		"accounts", len(batch.Accounts),
		"added", len(batch.Added),
		"modified", len(batch.Modified),
		"removed", len(batch.Removed))

	return batch, nil
}

// syncPages walks /transactions/sync until has_more is false.
func (c *Client) syncPages(ctx context.Context, accessToken, cursor string) (*model.SyncBatch, error) {
	batch := &model.SyncBatch{}
	next := cursor

	for {
		var resp plaid.TransactionsSyncResponse

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsSyncRequest(accessToken)
			if next != "" {
				request.SetCursor(next)
			}
			request.SetCount(syncPageSize)

			var err error
			resp, _, err = c.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
			if err != nil {
				return c.classifyError(err, "failed to sync transactions")
			}
			return nil
		}, *c.retryOpts)
		if retryErr != nil {
			return nil, retryErr
		}

		for _, pt := range resp.GetAdded() {
			batch.Added = append(batch.Added, mapTransaction(pt))
		}
		for _, pt := range resp.GetModified() {
			batch.Modified = append(batch.Modified, mapTransaction(pt))
		}
		for _, removed := range resp.GetRemoved() {
			batch.Removed = append(batch.Removed, removed.GetTransactionId())
		}

		next = resp.GetNextCursor()

		c.logger.Debug("Fetched sync page",
			"added", len(resp.GetAdded()),
			"modified", len(resp.GetModified()),
			"removed", len(resp.GetRemoved()),
			"has_more", resp.GetHasMore())

		if !resp.GetHasMore() {
			break
		}
	}

	batch.NextCursor = next
	return batch, nil
}

// fetchAccounts snapshots balances for every account behind the credential.
func (c *Client) fetchAccounts(ctx context.Context, accessToken string) ([]model.AccountSnapshot, error) {
	var resp plaid.AccountsGetResponse
	retryErr := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsGetRequest(accessToken)
		var err error
		resp, _, err = c.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
		if err != nil {
			return c.classifyError(err, "failed to fetch accounts")
		}
		return nil
	}, *c.retryOpts)
	if retryErr != nil {
		return nil, retryErr
	}

	item := resp.GetItem()
	institution := c.institutionName(ctx, item.GetInstitutionId())

	accounts := make([]model.AccountSnapshot, 0, len(resp.GetAccounts()))
	for _, account := range resp.GetAccounts() {
		accounts = append(accounts, mapAccount(account, institution))
	}
	return accounts, nil
}

// institutionName resolves an institution ID to its display name. Lookups are
// cached; failures return "" so the caller's default applies.
func (c *Client) institutionName(ctx context.Context, institutionID string) string {
	if institutionID == "" {
		return ""
	}

	c.instMu.RLock()
	name, ok := c.institutions[institutionID]
	c.instMu.RUnlock()
	if ok {
		return name
	}

	request := plaid.NewInstitutionsGetByIdRequest(institutionID, c.countryCodes)
	resp, _, err := c.client.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*request).Execute()
	if err != nil {
		c.logger.Warn("Failed to look up institution", "institution_id", institutionID, "error", err)
		return ""
	}

	institution := resp.GetInstitution()
	name = institution.GetName()

	c.instMu.Lock()
	c.institutions[institutionID] = name
	c.instMu.Unlock()

	return name
}

// classifyError converts an API error into retryable, restartable, or permanent form.
func (c *Client) classifyError(err error, action string) error {
	plaidError := extractPlaidError(err)
	if plaidError == nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	switch plaidError.ErrorCode {
	case errCodeRateLimit:
		c.logger.Warn("Rate limit hit, will retry", "error", plaidError.ErrorMessage)
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %s", common.ErrPlaidRateLimit, plaidError.ErrorMessage),
			Retryable: true,
		}
	case errCodeMutationDuringSync:
		return common.Permanent(errMutationDuringPagination)
	default:
		return common.Permanent(fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage))
	}
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
// clientUserID should be the local user's ID.
func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	if clientUserID == "" {
		return "", fmt.Errorf("client user ID is required")
	}

	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: clientUserID,
	}

	request := plaid.NewLinkTokenCreateRequest(
		c.clientName,
		"en",
		c.countryCodes,
		user,
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	// OAuth banks require a redirect URI registered in the Plaid dashboard
	if c.environment == "production" {
		request.SetRedirectUri("https://localhost:8080/")
	}

	resp, _, err := c.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		if plaidError := extractPlaidError(err); plaidError != nil {
			return "", fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage)
		}
		return "", fmt.Errorf("failed to create link token: %w", err)
	}

	return resp.GetLinkToken(), nil
}

// ExchangePublicToken exchanges a public token from Link for an access token and item ID.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		if plaidError := extractPlaidError(err); plaidError != nil {
			return "", "", fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage)
		}
		return "", "", fmt.Errorf("failed to exchange public token: %w", err)
	}

	return resp.GetAccessToken(), resp.GetItemId(), nil
}

// CreateSandboxPublicToken mints a public token for a sandbox institution,
// skipping the Link UI. Only valid in the sandbox environment.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	if c.environment != "sandbox" {
		return "", fmt.Errorf("sandbox public tokens require the sandbox environment, not %s", c.environment)
	}

	request := plaid.NewSandboxPublicTokenCreateRequest(
		institutionID,
		[]plaid.Products{plaid.PRODUCTS_TRANSACTIONS},
	)
	resp, _, err := c.client.PlaidApi.SandboxPublicTokenCreate(ctx).SandboxPublicTokenCreateRequest(*request).Execute()
	if err != nil {
		if plaidError := extractPlaidError(err); plaidError != nil {
			return "", fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage)
		}
		return "", fmt.Errorf("failed to create sandbox public token: %w", err)
	}

	return resp.GetPublicToken(), nil
}

func parseCountryCodes(codes []string) []plaid.CountryCode {
	parsed := make([]plaid.CountryCode, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			parsed = append(parsed, plaid.CountryCode(code))
		}
	}
	if len(parsed) == 0 {
		parsed = append(parsed, plaid.COUNTRYCODE_US)
	}
	return parsed
}

// Ensure Client implements ChangeFeed interface.
var _ ChangeFeed = (*Client)(nil)
