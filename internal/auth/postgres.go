package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore       { return &accountStore{db: s.db} }
func (s *PGStore) Agents(context.Context) AgentStore           { return &agentStore{db: s.db} }
func (s *PGStore) Revocations(context.Context) RevocationStore { return &revocationStore{db: s.db} }

// Account store -------------------------------------------------------------
type accountStore struct{ db *sql.DB }

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, display_name, role, password_hash, active) values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Email, a.DisplayName, string(a.Role), a.PasswordHash, a.Active,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, display_name, role, password_hash, active, created_at, updated_at
		 from users where id=$1`, id)
	return scanAccount(row)
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, display_name, role, password_hash, active, created_at, updated_at
		 from users where email=$1`, email)
	return scanAccount(row)
}

func (s *accountStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanAccount(row *sql.Row) (*Account, error) {
	var (
		a    Account
		role string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &role, &a.PasswordHash, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Role = Role(role)
	return &a, nil
}

// Agent profile store -------------------------------------------------------
type agentStore struct{ db *sql.DB }

func (s *agentStore) Create(ctx context.Context, p *AgentProfile) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sales_agents(id, agent_code, password_hash, active, account_id) values($1,$2,$3,$4,$5)`,
		p.ID, p.AgentCode, p.PasswordHash, p.Active, p.AccountID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *agentStore) FindByCode(ctx context.Context, agentCode string) (*AgentProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, agent_code, password_hash, active, account_id, created_at, updated_at
		 from sales_agents where agent_code=$1`, agentCode)
	var p AgentProfile
	if err := row.Scan(&p.ID, &p.AgentCode, &p.PasswordHash, &p.Active, &p.AccountID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Revocation store ----------------------------------------------------------
type revocationStore struct{ db *sql.DB }

func (s *revocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_sessions(token_id, expires_at) values($1,$2) on conflict do nothing`,
		tokenID, expiresAt,
	)
	return err
}

func (s *revocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select 1 from revoked_sessions where token_id=$1`, tokenID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// helpers -------------------------------------------------------------------

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects a PostgreSQL unique constraint violation without
// binding this package to the driver's error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type pgError interface{ SQLState() string }
	var pgErr pgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
