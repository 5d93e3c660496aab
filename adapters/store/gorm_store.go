package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

var log = logging.Logger("keyvault/store")

type walletRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Label        string `gorm:"size:255"`
	Blockchain   string `gorm:"size:64;index"`
	Address      string `gorm:"size:128;index"`
	EncryptedKey []byte `gorm:"type:blob;not null"`
	Nonce        []byte `gorm:"type:blob;not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	LastAccessed *time.Time
	CreatedAt    time.Time
}

func (walletRow) TableName() string { return "wallets" }

type apiKeyRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"size:36;index;not null"`
	KeyName     string `gorm:"size:255"`
	APIKeyHash  string `gorm:"size:64;uniqueIndex;not null"`
	Prefix      string `gorm:"size:16"`
	Permissions string `gorm:"size:512"`
	ExpiresAt   time.Time
	IsActive    bool `gorm:"not null;default:true"`
	LastUsed    *time.Time
	CreatedAt   time.Time
}

func (apiKeyRow) TableName() string { return "api_keys" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"size:128;uniqueIndex;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

// GormStore persists credentials in SQLite through GORM
type GormStore struct {
	DB *gorm.DB
}

var _ ports.Store = (*GormStore)(nil)

// OpenGormStore opens (creating if needed) the SQLite database at dsn and
// migrates the schema. ":memory:" and "file:" DSNs are passed through.
func OpenGormStore(dsn string) (*GormStore, error) {
	log.Debug("OpenGormStore: opening SQLite database connection")

	if dsn == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Errorf("OpenGormStore: failed to get home directory: %v", err)
			return nil, err
		}
		dsn = filepath.Join(homeDir, ".keyvault", "keyvault.db")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			log.Errorf("OpenGormStore: failed to create directory for %s: %v", dsn, err)
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Errorf("OpenGormStore: failed to open database: %v", err)
		return nil, err
	}

	if err = db.AutoMigrate(&walletRow{}, &apiKeyRow{}, &userRow{}); err != nil {
		log.Errorf("OpenGormStore: auto migration failed: %v", err)
		return nil, err
	}

	log.Debugf("OpenGormStore: SQLite database ready at %s", dsn)
	return &GormStore{DB: db}, nil
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) GetWallet(ctx context.Context, id string) (*core.Wallet, error) {
	var row walletRow
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateGormError(err)
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

func (s *GormStore) InsertWallet(ctx context.Context, wallet *core.Wallet) error {
	row := walletRow{
		ID:           wallet.ID,
		Label:        wallet.Label,
		Blockchain:   wallet.Blockchain,
		Address:      wallet.Address,
		EncryptedKey: wallet.EncryptedKey,
		Nonce:        wallet.Nonce,
		IsActive:     wallet.Active,
		CreatedAt:    wallet.CreatedAt,
	}
	// Select forces IsActive=false to be written instead of the column default
	if err := s.DB.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
		log.Errorf("InsertWallet: failed to create wallet %s: %v", wallet.ID, err)
		return translateGormError(err)
	}
	log.Infof("InsertWallet: stored wallet %s (%s)", wallet.ID, wallet.Blockchain)
	return nil
}

func (s *GormStore) TouchWallet(ctx context.Context, id string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&walletRow{}).Where("id = ?", id).Update("last_accessed", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *GormStore) SetWalletActive(ctx context.Context, id string, active bool) error {
	res := s.DB.WithContext(ctx).Model(&walletRow{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *GormStore) GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error) {
	var row apiKeyRow
	if err := s.DB.WithContext(ctx).Where("api_key_hash = ?", hash).First(&row).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &core.APIKey{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.KeyName,
		Hash:        row.APIKeyHash,
		Prefix:      row.Prefix,
		Permissions: splitPermissions(row.Permissions),
		ExpiresAt:   row.ExpiresAt,
		Active:      row.IsActive,
		LastUsed:    row.LastUsed,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (s *GormStore) InsertAPIKey(ctx context.Context, key *core.APIKey) error {
	row := apiKeyRow{
		ID:          key.ID,
		UserID:      key.UserID,
		KeyName:     key.Name,
		APIKeyHash:  key.Hash,
		Prefix:      key.Prefix,
		Permissions: joinPermissions(key.Permissions),
		ExpiresAt:   key.ExpiresAt,
		IsActive:    key.Active,
		CreatedAt:   key.CreatedAt,
	}
	if err := s.DB.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
		log.Errorf("InsertAPIKey: failed to create key %s: %v", key.ID, err)
		return translateGormError(err)
	}
	return nil
}

func (s *GormStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&apiKeyRow{}).Where("id = ?", id).Update("last_used", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var row userRow
	if err := s.DB.WithContext(ctx).Where("lower(email) = lower(?)", email).First(&row).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &core.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (s *GormStore) InsertUser(ctx context.Context, user *core.User) error {
	row := userRow{
		ID:           user.ID,
		Username:     user.Username,
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return translateGormError(err)
	}
	return nil
}

func translateGormError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return core.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return core.ErrConflict
	}
	return err
}

func joinPermissions(perms []string) string {
	return strings.Join(perms, ",")
}

func splitPermissions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
