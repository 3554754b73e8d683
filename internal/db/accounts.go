package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/energizer-project/blazer/internal/session"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAccount  = errors.New("invalid account details")
)

// StoreConfig configures an AccountStore.
type StoreConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// AccountStore keeps player accounts and inventories in SQLite. It is the
// server's Authenticator, InventorySource and token issuer.
type AccountStore struct {
	db     *Database
	tokens *TokenSigner
	cost   int
	now    func() time.Time
	logger zerolog.Logger
}

var (
	_ session.Authenticator   = (*AccountStore)(nil)
	_ session.InventorySource = (*AccountStore)(nil)
)

// NewAccountStore migrates the schema and returns a ready store.
func NewAccountStore(ctx context.Context, database *Database, cfg StoreConfig) (*AccountStore, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &AccountStore{
		db:     database,
		tokens: NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL),
		cost:   cfg.BcryptCost,
		now:    time.Now,
		logger: log.With().Str("component", "account_store").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate account store: %w", err)
	}
	return s, nil
}

func (s *AccountStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			persona TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_login INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS inventory_items (
			account_id INTEGER NOT NULL,
			item_key TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL DEFAULT 1,
			granted_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, item_key),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS currency (
			account_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, name),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	`
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	s.logger.Debug().Msg("database schema migrated")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers a new account.
func (s *AccountStore) CreateAccount(ctx context.Context, email, persona, password string) (session.Account, error) {
	email = normalizeEmail(email)
	persona = strings.TrimSpace(persona)
	if !strings.Contains(email, "@") || persona == "" || len(password) < 4 {
		return session.Account{}, ErrInvalidAccount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return session.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	var id int64
	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE email = ?", email).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return ErrEmailTaken
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO accounts (email, persona, password_hash, created_at) VALUES (?, ?, ?, ?)",
			email, persona, string(hash), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return session.Account{}, err
	}

	s.logger.Info().
		Int64("account_id", id).
		Str("persona", persona).
		Msg("account created")

	return session.Account{
		ID:        session.AccountID(id),
		Email:     email,
		Persona:   persona,
		CreatedAt: now,
	}, nil
}

// Authenticate checks an email/password pair or a session token and records
// the login time.
func (s *AccountStore) Authenticate(ctx context.Context, cred session.Credential) (session.AccountID, error) {
	var id session.AccountID
	if cred.IsToken() {
		tid, err := s.tokens.Verify(cred.Token)
		if err != nil {
			s.logger.Debug().Err(err).Msg("token rejected")
			return 0, session.ErrInvalidCredentials
		}
		var exists int
		if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts WHERE id = ?", int64(tid)).Scan(&exists); err != nil {
			return 0, fmt.Errorf("account lookup failed: %w", err)
		}
		if exists == 0 {
			return 0, session.ErrInvalidCredentials
		}
		id = tid
	} else {
		var (
			rowID int64
			hash  string
		)
		err := s.db.QueryRow(ctx,
			"SELECT id, password_hash FROM accounts WHERE email = ?",
			normalizeEmail(cred.Email)).Scan(&rowID, &hash)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, session.ErrInvalidCredentials
		}
		if err != nil {
			return 0, fmt.Errorf("account lookup failed: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(cred.Password)) != nil {
			return 0, session.ErrInvalidCredentials
		}
		id = session.AccountID(rowID)
	}

	if _, err := s.db.Exec(ctx, "UPDATE accounts SET last_login = ? WHERE id = ?", s.now().Unix(), int64(id)); err != nil {
		s.logger.Warn().Err(err).Uint64("account_id", uint64(id)).Msg("failed to record login time")
	}
	return id, nil
}

// Account loads a profile.
func (s *AccountStore) Account(ctx context.Context, id session.AccountID) (session.Account, error) {
	var (
		a         session.Account
		rowID     int64
		created   int64
		lastLogin int64
	)
	err := s.db.QueryRow(ctx,
		"SELECT id, email, persona, created_at, last_login FROM accounts WHERE id = ?",
		int64(id)).Scan(&rowID, &a.Email, &a.Persona, &created, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return session.Account{}, fmt.Errorf("account lookup failed: %w", err)
	}
	a.ID = session.AccountID(rowID)
	a.CreatedAt = time.Unix(created, 0).UTC()
	if lastLogin > 0 {
		a.LastLogin = time.Unix(lastLogin, 0).UTC()
	}
	return a, nil
}

// ListAccounts returns every account ordered by id.
func (s *AccountStore) ListAccounts(ctx context.Context) ([]session.Account, error) {
	rows, err := s.db.Query(ctx, "SELECT id, email, persona, created_at, last_login FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []session.Account
	for rows.Next() {
		var (
			a                      session.Account
			id, created, lastLogin int64
		)
		if err := rows.Scan(&id, &a.Email, &a.Persona, &created, &lastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.ID = session.AccountID(id)
		a.CreatedAt = time.Unix(created, 0).UTC()
		if lastLogin > 0 {
			a.LastLogin = time.Unix(lastLogin, 0).UTC()
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IssueToken signs a session token for id.
func (s *AccountStore) IssueToken(_ context.Context, id session.AccountID) (string, error) {
	return s.tokens.Sign(id), nil
}

// GrantItem adds quantity of an entitlement, creating it if needed.
func (s *AccountStore) GrantItem(ctx context.Context, id session.AccountID, key, category string, quantity int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO inventory_items (account_id, item_key, category, quantity, granted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, item_key) DO UPDATE SET quantity = quantity + excluded.quantity`,
		int64(id), key, category, quantity, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to grant %s: %w", key, err)
	}
	return nil
}

// AddCurrency adjusts a balance by delta.
func (s *AccountStore) AddCurrency(ctx context.Context, id session.AccountID, name string, delta int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO currency (account_id, name, balance) VALUES (?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE SET balance = balance + excluded.balance`,
		int64(id), name, delta)
	if err != nil {
		return fmt.Errorf("failed to update %s balance: %w", name, err)
	}
	return nil
}

// FetchInventory returns an account's items, sorted by key, and balances.
func (s *AccountStore) FetchInventory(ctx context.Context, id session.AccountID) (session.Inventory, error) {
	inv := session.Inventory{Currency: map[string]int64{}}

	rows, err := s.db.Query(ctx,
		"SELECT item_key, category, quantity, granted_at FROM inventory_items WHERE account_id = ?",
		int64(id))
	if err != nil {
		return inv, fmt.Errorf("failed to read inventory: %w", err)
	}
	for rows.Next() {
		var (
			item    session.InventoryItem
			granted int64
		)
		if err := rows.Scan(&item.Key, &item.Category, &item.Quantity, &granted); err != nil {
			rows.Close()
			return inv, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		item.GrantedAt = time.Unix(granted, 0).UTC()
		inv.Items = append(inv.Items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return inv, err
	}
	sort.Slice(inv.Items, func(i, j int) bool { return inv.Items[i].Key < inv.Items[j].Key })

	rows, err = s.db.Query(ctx, "SELECT name, balance FROM currency WHERE account_id = ?", int64(id))
	if err != nil {
		return inv, fmt.Errorf("failed to read currency: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name    string
			balance int64
		)
		if err := rows.Scan(&name, &balance); err != nil {
			return inv, fmt.Errorf("failed to scan currency: %w", err)
		}
		inv.Currency[name] = balance
	}
	return inv, rows.Err()
}

// Seed creates a demo account when the store is empty. It reports whether an
// account was created.
func (s *AccountStore) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	const email, password = "shepard@normandy.test", "password"
	a, err := s.CreateAccount(ctx, email, "Shepard", password)
	if err != nil {
		return false, err
	}
	grants := []struct{ key, category string }{
		{"ONLINE_ACCESS", "access"},
		{"MP_PACK_RESURGENCE", "dlc"},
		{"MP_PACK_REBELLION", "dlc"},
	}
	for _, g := range grants {
		if err := s.GrantItem(ctx, a.ID, g.key, g.category, 1); err != nil {
			return false, err
		}
	}
	if err := s.AddCurrency(ctx, a.ID, "credits", 25000); err != nil {
		return false, err
	}

	s.logger.Warn().
		Str("email", email).
		Str("password", password).
		Msg("seeded demo account, change or remove it before going public")
	return true, nil
}
