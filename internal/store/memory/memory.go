package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

// Store keeps every collection in maps behind one RWMutex. It backs tests
// and single-process demo runs.
type Store struct {
	mu              sync.RWMutex
	operationsByID  map[string]*domain.Operation
	activeOpByKey   map[string]string
	stateItemsByID  map[string]domain.StateItem
	salesByID       map[string]domain.Sale
	transfersByID   map[string]domain.Transfer
	correctionsByID map[string]domain.CorrectionItem
	historyByID     map[string]domain.TransactionHistoryEntry
	deferredByID    map[string]domain.DeferredSale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		operationsByID:  make(map[string]*domain.Operation),
		activeOpByKey:   make(map[string]string),
		stateItemsByID:  make(map[string]domain.StateItem),
		salesByID:       make(map[string]domain.Sale),
		transfersByID:   make(map[string]domain.Transfer),
		correctionsByID: make(map[string]domain.CorrectionItem),
		historyByID:     make(map[string]domain.TransactionHistoryEntry),
		deferredByID:    make(map[string]domain.DeferredSale),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo stock at two locations and the
// bootstrap manager and seller accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	stock := []domain.StateItem{
		{FullName: "Leather Jacket Classic", Barcode: "5901234000011", Size: "M", Location: "T", Price: decimal.RequireFromString("899.00"), DiscountPrice: decimal.RequireFromString("749.00")},
		{FullName: "Leather Jacket Classic", Barcode: "5901234000011", Size: "L", Location: "T", Price: decimal.RequireFromString("899.00"), DiscountPrice: decimal.RequireFromString("749.00")},
		{FullName: "Suede Bomber", Barcode: "5901234000028", Size: "S", Location: "T", Price: decimal.RequireFromString("1099.00"), DiscountPrice: decimal.RequireFromString("999.00")},
		{FullName: "Belt Brown 95", Barcode: "5901234000035", Location: "P", Quantity: 1, Price: decimal.RequireFromString("129.00"), DiscountPrice: decimal.RequireFromString("99.00")},
		{FullName: "Gloves Lined", Barcode: "5901234000042", Size: "8", Location: "P", Price: decimal.RequireFromString("189.00"), DiscountPrice: decimal.RequireFromString("159.00")},
	}
	for _, item := range stock {
		item.ID = xid.New("st")
		item.CreatedAt = now
		s.stateItemsByID[item.ID] = item
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the bootstrap accounts for demo mode. Passwords come
// from SEED_MANAGER_PASSWORD and SEED_SELLER_PASSWORD, with dev defaults.
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_MANAGER_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"seller", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.Validation("create user", "username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return domain.Conflict("create user", "username %s already exists", username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.Validation("update user password", "username and password are required")
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.NotFound("update user password", "user %s", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// newestFirst orders by time descending, then id descending.
func newestFirst(a, b time.Time, aID, bID string) int {
	if a.Equal(b) {
		return strings.Compare(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func operationKey(day string, location string, symbol string) string {
	return day + "::" + location + "::" + symbol
}

func cloneOperation(src *domain.Operation) *domain.Operation {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Changes = make([]domain.Change, len(src.Changes))
	for i, change := range src.Changes {
		dup.Changes[i] = change
		if change.OriginalData != nil {
			dup.Changes[i].OriginalData = slices.Clone(change.OriginalData)
		}
	}
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Cash = slices.Clone(src.Cash)
	dup.Card = slices.Clone(src.Card)
	return dup
}

func cloneCorrection(src domain.CorrectionItem) domain.CorrectionItem {
	dup := src
	if src.Sale != nil {
		sale := cloneSale(*src.Sale)
		dup.Sale = &sale
	}
	if src.Transfer != nil {
		transfer := *src.Transfer
		dup.Transfer = &transfer
	}
	return dup
}

func cloneHistory(src domain.TransactionHistoryEntry) domain.TransactionHistoryEntry {
	dup := src
	dup.ProcessedItems = slices.Clone(src.ProcessedItems)
	return dup
}
