package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"servicedesk/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	pool                  *pgxpool.Pool
	rules                 store.ClaimRules
	highPriorityThreshold decimal.Decimal
}

type Options struct {
	Rules                 store.ClaimRules
	HighPriorityThreshold decimal.Decimal
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	rules := options.Rules
	if len(rules.Types) == 0 {
		rules = store.DefaultClaimRules()
	}
	threshold := options.HighPriorityThreshold
	if !threshold.IsPositive() {
		threshold = store.DefaultHighPriorityThreshold
	}
	return &Store{
		pool:                  pool,
		rules:                 rules,
		highPriorityThreshold: threshold,
	}
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	var branchID, branchName, branchCode, supportGroup sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.name, u.email, u.role, u.support_group,
		       b.branch_id, b.name, b.code
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		LEFT JOIN branches b ON b.branch_id = u.branch_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&session.Name, &session.Email, &session.Role, &supportGroup,
		&branchID, &branchName, &branchCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	session.SupportGroup = supportGroup.String
	session.BranchID = branchID.String
	session.BranchName = branchName.String
	session.BranchCode = branchCode.String
	return session, nil
}

// VerifyAPIKey checks a key id and secret against the bcrypt hash on file.
func (s *Store) VerifyAPIKey(ctx context.Context, keyID, secret string) (store.APIKey, error) {
	var key store.APIKey
	var secretHash string
	row := s.pool.QueryRow(ctx, `
		SELECT key_id, name, secret_hash, permissions
		FROM api_keys
		WHERE key_id = $1 AND is_active = TRUE AND (expires_at IS NULL OR expires_at > NOW())
	`, keyID)
	if err := row.Scan(&key.KeyID, &key.Name, &secretHash, &key.Permissions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.APIKey{}, store.ErrAPIKeyInvalid
		}
		return store.APIKey{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)); err != nil {
		return store.APIKey{}, store.ErrAPIKeyInvalid
	}
	if _, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE key_id = $1`, keyID); err != nil {
		return store.APIKey{}, err
	}
	return key, nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullBoolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	return &value.Bool
}

func nullDecimalPtr(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	return &value.Decimal
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
