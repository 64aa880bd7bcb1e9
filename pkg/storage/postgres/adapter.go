package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/porthorian/websso/pkg/storage"
)

type Config struct {
	Policy storage.RetentionPolicy
	Clock  clockwork.Clock
}

type Adapter struct {
	db     *sql.DB
	policy storage.RetentionPolicy
	clock  clockwork.Clock

	stmts preparedStatements
}

type preparedStatements struct {
	storeRequest   *sql.Stmt
	consumeRequest *sql.Stmt
	purgeExpired   *sql.Stmt
}

type prepareStatementSpec struct {
	label  string
	query  string
	assign func(*preparedStatements, *sql.Stmt)
}

var fixedPrepareStatementSpecs = []prepareStatementSpec{
	{
		label: "store request",
		query: storeRequestQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.storeRequest = stmt
		},
	},
	{
		label: "consume request",
		query: consumeRequestQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.consumeRequest = stmt
		},
	},
	{
		label: "purge expired",
		query: purgeExpiredQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.purgeExpired = stmt
		},
	},
}

var (
	ErrNilDB                 = errors.New("postgres adapter: db is nil")
	ErrAdapterNotInitialized = errors.New("postgres adapter: adapter not initialized")
)

var _ storage.RequestStore = (*Adapter)(nil)

func NewAdapter(db *sql.DB, config Config) (*Adapter, error) {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	adapter := &Adapter{
		db:     db,
		policy: config.Policy.Normalize(),
		clock:  config.Clock,
	}

	if err := adapter.prepareStatements(); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a == nil {
		return nil
	}

	return closeStatements(
		a.stmts.storeRequest,
		a.stmts.consumeRequest,
		a.stmts.purgeExpired,
	)
}

func (a *Adapter) prepareStatements() (err error) {
	db, err := a.requireDB()
	if err != nil {
		return err
	}

	prepared := make([]*sql.Stmt, 0, len(fixedPrepareStatementSpecs))
	defer func() {
		if err != nil {
			_ = closeStatements(prepared...)
		}
	}()

	for _, spec := range fixedPrepareStatementSpecs {
		stmt, prepErr := db.Prepare(spec.query)
		if prepErr != nil {
			err = fmt.Errorf("postgres adapter: prepare %s statement: %w", spec.label, prepErr)
			return err
		}
		prepared = append(prepared, stmt)
		spec.assign(&a.stmts, stmt)
	}
	return nil
}

func (a *Adapter) requirePreparedStatements() error {
	if _, err := a.requireDB(); err != nil {
		return err
	}

	if a.stmts.storeRequest == nil || a.stmts.consumeRequest == nil || a.stmts.purgeExpired == nil {
		return ErrAdapterNotInitialized
	}

	return nil
}

func (a *Adapter) requireDB() (*sql.DB, error) {
	if a == nil || a.db == nil {
		return nil, ErrNilDB
	}
	return a.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func closeStatements(stmts ...*sql.Stmt) error {
	var errs []error
	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
