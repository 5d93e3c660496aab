package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

const (
	pgUniqueViolation = "23505"
	// raised when an id that is not a UUID is compared against a uuid column
	pgInvalidTextRepresentation = "22P02"
)

// DBInterface is the subset of pgxpool.Pool the store needs
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists credentials in PostgreSQL
type PostgresStore struct {
	db DBInterface
}

var _ ports.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool or connection
func NewPostgresStore(db DBInterface) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore migrates the schema and opens a connection pool
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	if err := ApplyMigrations(ctx, dsn); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgresStore(pool), pool, nil
}

type pgWallet struct {
	ID           string     `db:"id"`
	Label        string     `db:"label"`
	Blockchain   string     `db:"blockchain"`
	Address      string     `db:"wallet_address"`
	EncryptedKey []byte     `db:"encrypted_private_key"`
	Nonce        []byte     `db:"encryption_iv"`
	IsActive     bool       `db:"is_active"`
	LastAccessed *time.Time `db:"last_accessed"`
	CreatedAt    time.Time  `db:"created_at"`
}

type pgAPIKey struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	KeyName     string     `db:"key_name"`
	Hash        string     `db:"api_key_hash"`
	Prefix      string     `db:"api_key_prefix"`
	Permissions []string   `db:"permissions"`
	ExpiresAt   time.Time  `db:"expires_at"`
	IsActive    bool       `db:"is_active"`
	LastUsed    *time.Time `db:"last_used"`
	CreatedAt   time.Time  `db:"created_at"`
}

type pgUser struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

var (
	walletColumns = []string{
		"id", "label", "blockchain", "wallet_address", "encrypted_private_key",
		"encryption_iv", "is_active", "last_accessed", "created_at",
	}
	apiKeyColumns = []string{
		"id", "user_id", "key_name", "api_key_hash", "api_key_prefix",
		"permissions", "expires_at", "is_active", "last_used", "created_at",
	}
	userColumns = []string{"id", "username", "email", "password_hash", "created_at"}
)

func (r *PostgresStore) GetWallet(ctx context.Context, id string) (*core.Wallet, error) {
	query, args, err := squirrel.Select(walletColumns...).
		From("wallets").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row pgWallet
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) || isPgCode(err, pgInvalidTextRepresentation) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scanning wallet: %w", err)
	}
	return &core.Wallet{
		ID:           row.ID,
		Label:        row.Label,
		Blockchain:   row.Blockchain,
		Address:      row.Address,
		EncryptedKey: row.EncryptedKey,
		Nonce:        row.Nonce,
		Active:       row.IsActive,
		LastAccessed: row.LastAccessed,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (r *PostgresStore) InsertWallet(ctx context.Context, w *core.Wallet) error {
	query, args, err := squirrel.Insert("wallets").
		Columns("id", "label", "blockchain", "wallet_address", "encrypted_private_key", "encryption_iv", "is_active", "created_at").
		Values(w.ID, w.Label, w.Blockchain, w.Address, w.EncryptedKey, w.Nonce, w.Active, w.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return translatePgError("inserting wallet", err)
	}
	return nil
}

func (r *PostgresStore) TouchWallet(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "wallets", id, "last_accessed", at)
}

func (r *PostgresStore) SetWalletActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, "wallets", id, "is_active", active)
}

func (r *PostgresStore) GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error) {
	query, args, err := squirrel.Select(apiKeyColumns...).
		From("api_keys").
		Where(squirrel.Eq{"api_key_hash": hash}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row pgAPIKey
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}
	return &core.APIKey{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.KeyName,
		Hash:        row.Hash,
		Prefix:      row.Prefix,
		Permissions: row.Permissions,
		ExpiresAt:   row.ExpiresAt,
		Active:      row.IsActive,
		LastUsed:    row.LastUsed,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (r *PostgresStore) InsertAPIKey(ctx context.Context, k *core.APIKey) error {
	query, args, err := squirrel.Insert("api_keys").
		Columns("id", "user_id", "key_name", "api_key_hash", "api_key_prefix", "permissions", "expires_at", "is_active", "created_at").
		Values(k.ID, k.UserID, k.Name, k.Hash, k.Prefix, k.Permissions, k.ExpiresAt, k.Active, k.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return translatePgError("inserting api key", err)
	}
	return nil
}

func (r *PostgresStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "api_keys", id, "last_used", at)
}

func (r *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	query, args, err := squirrel.Select(userColumns...).
		From("users").
		Where("lower(email) = lower(?)", email).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row pgUser
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &core.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (r *PostgresStore) InsertUser(ctx context.Context, u *core.User) error {
	query, args, err := squirrel.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return translatePgError("inserting user", err)
	}
	return nil
}

func (r *PostgresStore) update(ctx context.Context, table, id, column string, value any) error {
	query, args, err := squirrel.Update(table).
		Set(column, value).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isPgCode(err, pgInvalidTextRepresentation) {
			return core.ErrNotFound
		}
		return fmt.Errorf("updating %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func translatePgError(op string, err error) error {
	if isPgCode(err, pgUniqueViolation) {
		return core.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
