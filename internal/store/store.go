package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flowave-io/ctlpanel/pkg/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RootUser is the distinguished administrator account.
const RootUser = "root"

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

const rootPasswordLength = 16

var (
	ErrUserExists    = errors.New("store: user already exists")
	ErrUserNotFound  = errors.New("store: user not found")
	ErrRootProtected = errors.New("store: the root account cannot be modified this way")
)

// User is one account row.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Setting is a key/value row for store metadata.
type Setting struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

// Options configure Open.
type Options struct {
	// Path of the sqlite database file.
	Path string
	// PasswordLog receives a line every time the root password is generated.
	PasswordLog string
	// BcryptCost overrides BcryptCost. Tests lower it.
	BcryptCost int
}

// Store keeps panel accounts with bcrypt password hashes.
type Store struct {
	db          *gorm.DB
	passwordLog string
	cost        int
	logMu       sync.Mutex
}

// Open opens or creates the database at opts.Path, migrates it, checks the
// schema version and seeds the root account on first use.
func Open(opts Options) (*Store, error) {
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return prepare(db, opts)
}

var walPragma = "PRAGMA journal_mode=WAL"

// prepare switches db to WAL and wraps it, closing db if any step fails.
func prepare(db *gorm.DB, opts Options) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec(walPragma); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s, err := New(db, opts)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *gorm.DB, opts Options) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	s := &Store{db: db, passwordLog: opts.PasswordLog, cost: opts.BcryptCost}
	if s.cost == 0 {
		s.cost = BcryptCost
	}
	if err := s.checkSchema(); err != nil {
		return nil, err
	}
	if err := s.seedRoot(); err != nil {
		return nil, fmt.Errorf("seed root: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so the audit trail can share it.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) seedRoot() error {
	ok, err := s.Exists(RootUser)
	if err != nil || ok {
		return err
	}
	pw, err := randomPassword(rootPasswordLength)
	if err != nil {
		return err
	}
	hash, err := s.hash(pw)
	if err != nil {
		return err
	}
	if err := s.db.Create(&User{Username: RootUser, PasswordHash: hash}).Error; err != nil {
		return err
	}
	log.Info("Generated new root credentials")
	if s.passwordLog != "" {
		log.Infof("A copy of the current root credentials can be found inside of %s", s.passwordLog)
	}
	return s.recordRootPassword(pw)
}

// Verify reports whether password matches the stored hash for username.
func (s *Store) Verify(username, password string) bool {
	var u User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Exists reports whether an account named username exists.
func (s *Store) Exists(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create adds an account. It returns ErrUserExists for a taken name.
func (s *Store) Create(username, password string) error {
	ok, err := s.Exists(username)
	if err != nil {
		return err
	}
	if ok {
		return ErrUserExists
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.db.Create(&User{Username: username, PasswordHash: hash}).Error
}

// Delete removes a non-root account.
func (s *Store) Delete(username string) error {
	if username == RootUser {
		return ErrRootProtected
	}
	res := s.db.Where("username = ?", username).Delete(&User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPassword replaces a non-root account's password. The root password is
// only ever changed through RegenerateRoot.
func (s *Store) SetPassword(username, password string) error {
	if username == RootUser {
		return ErrRootProtected
	}
	return s.setPassword(username, password)
}

func (s *Store) setPassword(username, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	res := s.db.Model(&User{}).Where("username = ?", username).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RegenerateRoot replaces the root password with a random one, records it
// in the password log and returns it.
func (s *Store) RegenerateRoot() (string, error) {
	pw, err := randomPassword(rootPasswordLength)
	if err != nil {
		return "", err
	}
	if err := s.setPassword(RootUser, pw); err != nil {
		return "", err
	}
	log.Info("Regenerated root credentials")
	if err := s.recordRootPassword(pw); err != nil {
		return pw, err
	}
	return pw, nil
}

// List returns every account ordered by name.
func (s *Store) List() ([]User, error) {
	var users []User
	if err := s.db.Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Store) recordRootPassword(pw string) error {
	if s.passwordLog == "" {
		return nil
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.passwordLog), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.passwordLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open password log: %w", err)
	}
	defer f.Close()
	stamp := time.Now().Format("03:04:05 PM - 01/02/2006")
	_, err = fmt.Fprintf(f, "[%s] Updated root credentials: %s:%s\n", stamp, RootUser, pw)
	return err
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomPassword(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
