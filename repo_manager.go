package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	AuditEntries() repository.Repository[*AuditEntry]
}

func NewAuditEntriesRepository(db *bun.DB) repository.Repository[*AuditEntry] {
	handlers := repository.ModelHandlers[*AuditEntry]{
		NewRecord: func() *AuditEntry {
			return &AuditEntry{}
		},
		GetID: func(record *AuditEntry) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AuditEntry, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "action"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db           *bun.DB
	accounts     Accounts
	auditEntries repository.Repository[*AuditEntry]
}

func NewRepositoryManager(db *bun.DB, opts ...AccountsOption) RepositoryManager {
	return &mngr{
		db:           db,
		accounts:     NewAccountsRepository(db, opts...),
		auditEntries: NewAuditEntriesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.auditEntries == nil {
		return errors.New("repository auditEntries should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) AuditEntries() repository.Repository[*AuditEntry] {
	return m.auditEntries
}
