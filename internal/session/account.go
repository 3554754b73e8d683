package session

import (
	"context"
	"time"
)

// AccountID identifies a persistent player account.
type AccountID uint64

// Account is the profile returned by the account store.
type Account struct {
	ID        AccountID `json:"id"`
	Email     string    `json:"email"`
	Persona   string    `json:"persona"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

// Credential is what a client presents at login: an email and password, or
// a previously issued token.
type Credential struct {
	Email    string
	Password string
	Token    string
}

// IsToken reports whether the credential is a session token.
func (c Credential) IsToken() bool {
	return c.Token != ""
}

// Authenticator verifies credentials against the account store.
type Authenticator interface {
	// Authenticate returns ErrInvalidCredentials for a bad credential.
	Authenticate(ctx context.Context, cred Credential) (AccountID, error)
	Account(ctx context.Context, id AccountID) (Account, error)
}

// InventoryItem is one owned entitlement.
type InventoryItem struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	Quantity  int64     `json:"quantity"`
	GrantedAt time.Time `json:"granted_at"`
}

// Inventory is an account's entitlements and currency balances.
type Inventory struct {
	Items    []InventoryItem  `json:"items"`
	Currency map[string]int64 `json:"currency"`
}

// InventorySource reads account inventories.
type InventorySource interface {
	FetchInventory(ctx context.Context, id AccountID) (Inventory, error)
}
