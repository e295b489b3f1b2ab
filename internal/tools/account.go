package tools

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"
)

const assumeRoleName = "OrganizationAccountAccessRole"

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

type assumedCreds struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
	Expiration      string `json:"expiration"`
}

// CredentialCache holds assumed-role credentials per member account for a
// bounded time. Failed assumptions are cached too, so a broken account does
// not get hammered on every round. Injected by the composition root; no
// package-level state.
type CredentialCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]credCacheEntry
}

type credCacheEntry struct {
	creds *assumedCreds
	at    time.Time
}

func NewCredentialCache(ttl time.Duration) *CredentialCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CredentialCache{ttl: ttl, now: time.Now, entries: map[string]credCacheEntry{}}
}

func (c *CredentialCache) get(accountID string) (*assumedCreds, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[accountID]
	if !ok || c.now().Sub(entry.at) > c.ttl {
		return nil, false
	}
	return entry.creds, true
}

func (c *CredentialCache) put(accountID string, creds *assumedCreds) {
	c.mu.Lock()
	c.entries[accountID] = credCacheEntry{creds: creds, at: c.now()}
	c.mu.Unlock()
}

// AWSAccount backs query_aws_account: inspect a member account through the
// credential broker, which assumes the org access role with a read-only
// session policy.
type AWSAccount struct {
	gw     *gateway
	cache  *CredentialCache
	logger *log.Logger
}

func NewAWSAccount(baseURL string, cache *CredentialCache) *AWSAccount {
	if cache == nil {
		cache = NewCredentialCache(0)
	}
	return &AWSAccount{
		gw:     newGateway(baseURL, 60*time.Second),
		cache:  cache,
		logger: log.New(log.Writer(), "[ACCOUNT] ", log.LstdFlags),
	}
}

func (a *AWSAccount) Tool() Tool {
	return Tool{
		Def:         defAWSAccount,
		Run:         a.run,
		StatusLabel: "Querying AWS account",
	}
}

var accountActions = map[string]string{
	"describe_instances":   "/v1/accounts/%s/instances",
	"lookup_events":        "/v1/accounts/%s/events",
	"list_users":           "/v1/accounts/%s/users",
	"describe_marketplace": "/v1/accounts/%s/marketplace",
}

func (a *AWSAccount) run(ctx context.Context, input map[string]any) map[string]any {
	accountID := strArg(input, "account_id", "")
	if !accountIDPattern.MatchString(accountID) {
		return map[string]any{"error": fmt.Sprintf("Invalid AWS account ID: %s. Must be 12 digits.", accountID)}
	}
	action := strArg(input, "action", "")
	pathFmt, ok := accountActions[action]
	if !ok {
		return map[string]any{"error": fmt.Sprintf(
			"Unknown action: %s. Valid: describe_instances, lookup_events, list_users, describe_marketplace", action)}
	}
	region := strArg(input, "region", "us-east-1")

	creds, err := a.assume(ctx, accountID)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS account query failed: %v", err)}
	}
	if creds == nil {
		return map[string]any{"error": fmt.Sprintf(
			"Cannot assume %s in account %s. The account may be closed or outside the organization.",
			assumeRoleName, accountID)}
	}

	body := map[string]any{
		"region":      region,
		"credentials": creds,
	}
	if filters, ok := input["filters"].(map[string]any); ok {
		body["filters"] = filters
	}
	var result map[string]any
	if err := a.gw.postJSON(ctx, fmt.Sprintf(pathFmt, accountID), body, &result); err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS account query failed: %v", err)}
	}
	if result == nil {
		result = map[string]any{}
	}
	return result
}

// assume fetches role credentials from the broker, consulting the cache
// first. A nil credential with nil error means the broker could not assume
// into the account, and that outcome is cached as well.
func (a *AWSAccount) assume(ctx context.Context, accountID string) (*assumedCreds, error) {
	if creds, ok := a.cache.get(accountID); ok {
		return creds, nil
	}
	var creds assumedCreds
	err := a.gw.postJSON(ctx, "/v1/credentials", map[string]any{
		"account_id": accountID,
		"role":       assumeRoleName,
	}, &creds)
	if err != nil {
		a.logger.Printf("assume role failed for %s: %v", accountID, err)
		a.cache.put(accountID, nil)
		return nil, nil
	}
	a.cache.put(accountID, &creds)
	return &creds, nil
}

var defAWSAccount = toolDef("query_aws_account",
	"Inspect a member AWS account directly: running instances, recent console "+
		"events, IAM users, or marketplace agreements. Use this when cost data alone "+
		"cannot explain what is happening inside an account.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"account_id": map[string]any{"type": "string", "description": "12-digit AWS account ID."},
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"describe_instances", "lookup_events", "list_users", "describe_marketplace"},
				"description": "What to inspect in the account.",
			},
			"region":  map[string]any{"type": "string", "description": "AWS region code. Default: us-east-1."},
			"filters": map[string]any{"type": "object", "description": "Optional action-specific filters."},
		},
		"required": []string{"account_id", "action"},
	})
