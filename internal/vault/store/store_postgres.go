package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agentvault/internal/vault/models"
	"agentvault/pkg/platform/sentinel"
)

// PostgresStore persists vaults in PostgreSQL. Scalar state lives in typed
// columns; the owned collections (lists, pending queue) travel as JSONB
// since they have no existence outside their vault. Update serializes
// concurrent operations on one vault with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS vaults (
	id UUID PRIMARY KEY,
	owner_addr TEXT NOT NULL,
	agent_addr TEXT NOT NULL DEFAULT '',
	balance BIGINT NOT NULL,
	max_per_tx BIGINT NOT NULL,
	max_daily BIGINT NOT NULL,
	auto_approve_limit BIGINT NOT NULL,
	max_tx_per_epoch BIGINT NOT NULL,
	spent_this_epoch BIGINT NOT NULL DEFAULT 0,
	tx_count_this_epoch BIGINT NOT NULL DEFAULT 0,
	last_epoch BIGINT NOT NULL DEFAULT 0,
	denylist JSONB NOT NULL DEFAULT '[]',
	allowlist JSONB NOT NULL DEFAULT '[]',
	pending JSONB NOT NULL DEFAULT '{"items":null,"next_id":0}',
	created_at TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the vaults table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure vaults schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Create(ctx context.Context, v *models.Vault) error {
	deny, allow, pending, err := marshalCollections(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vaults (
			id, owner_addr, agent_addr, balance,
			max_per_tx, max_daily, auto_approve_limit, max_tx_per_epoch,
			spent_this_epoch, tx_count_this_epoch, last_epoch,
			denylist, allowlist, pending, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		v.ID, string(v.Owner), string(v.Agent), int64(v.Balance),
		int64(v.Limits.MaxPerTx), int64(v.Limits.MaxDaily),
		int64(v.Limits.AutoApproveLimit), int64(v.Limits.MaxTxPerEpoch),
		int64(v.Spend.SpentThisEpoch), int64(v.Spend.TxCountThisEpoch), int64(v.Spend.LastEpoch),
		deny, allow, pending, v.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vault: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Vault, error) {
	row := s.db.QueryRowContext(ctx, selectVault+` WHERE id = $1`, id)
	return scanVault(row)
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vault update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, selectVault+` WHERE id = $1 FOR UPDATE`, id)
	v, err := scanVault(row)
	if err != nil {
		return err
	}

	if err := fn(v); err != nil {
		return err
	}

	deny, allow, pending, err := marshalCollections(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE vaults SET
			agent_addr = $2, balance = $3,
			max_per_tx = $4, max_daily = $5, auto_approve_limit = $6, max_tx_per_epoch = $7,
			spent_this_epoch = $8, tx_count_this_epoch = $9, last_epoch = $10,
			denylist = $11, allowlist = $12, pending = $13
		WHERE id = $1`,
		v.ID, string(v.Agent), int64(v.Balance),
		int64(v.Limits.MaxPerTx), int64(v.Limits.MaxDaily),
		int64(v.Limits.AutoApproveLimit), int64(v.Limits.MaxTxPerEpoch),
		int64(v.Spend.SpentThisEpoch), int64(v.Spend.TxCountThisEpoch), int64(v.Spend.LastEpoch),
		deny, allow, pending,
	)
	if err != nil {
		return fmt.Errorf("update vault: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vault update: %w", err)
	}
	return nil
}

const selectVault = `
	SELECT id, owner_addr, agent_addr, balance,
		max_per_tx, max_daily, auto_approve_limit, max_tx_per_epoch,
		spent_this_epoch, tx_count_this_epoch, last_epoch,
		denylist, allowlist, pending, created_at
	FROM vaults`

func scanVault(row *sql.Row) (*models.Vault, error) {
	var v models.Vault
	var owner, agent string
	var balance, maxPerTx, maxDaily, autoApprove, maxTxPerEpoch int64
	var spent, txCount, lastEpoch int64
	var denyRaw, allowRaw, pendRaw []byte
	err := row.Scan(&v.ID, &owner, &agent, &balance,
		&maxPerTx, &maxDaily, &autoApprove, &maxTxPerEpoch,
		&spent, &txCount, &lastEpoch,
		&denyRaw, &allowRaw, &pendRaw, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}

	v.Owner = models.Address(owner)
	v.Agent = models.Address(agent)
	v.Balance = uint64(balance)
	v.Limits = models.Limits{
		MaxPerTx:         uint64(maxPerTx),
		MaxDaily:         uint64(maxDaily),
		AutoApproveLimit: uint64(autoApprove),
		MaxTxPerEpoch:    uint64(maxTxPerEpoch),
	}
	v.Spend = models.SpendWindow{
		SpentThisEpoch:   uint64(spent),
		TxCountThisEpoch: uint64(txCount),
		LastEpoch:        uint64(lastEpoch),
	}
	if err := json.Unmarshal(denyRaw, &v.Denylist); err != nil {
		return nil, fmt.Errorf("decode denylist: %w", err)
	}
	if err := json.Unmarshal(allowRaw, &v.Allowlist); err != nil {
		return nil, fmt.Errorf("decode allowlist: %w", err)
	}
	if err := json.Unmarshal(pendRaw, &v.Pending); err != nil {
		return nil, fmt.Errorf("decode pending queue: %w", err)
	}
	return &v, nil
}

func marshalCollections(v *models.Vault) (deny, allow, pending []byte, err error) {
	if deny, err = json.Marshal(v.Denylist); err != nil {
		return nil, nil, nil, fmt.Errorf("encode denylist: %w", err)
	}
	if allow, err = json.Marshal(v.Allowlist); err != nil {
		return nil, nil, nil, fmt.Errorf("encode allowlist: %w", err)
	}
	if pending, err = json.Marshal(v.Pending); err != nil {
		return nil, nil, nil, fmt.Errorf("encode pending queue: %w", err)
	}
	return deny, allow, pending, nil
}
