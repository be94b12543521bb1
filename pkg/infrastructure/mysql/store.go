// Package mysql persists products, the ledger and role grants in MySQL. A unit of work is one
// database transaction; products read inside it are locked with SELECT ... FOR UPDATE so that
// service processes sharing the database serialize on the product row.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"supplychain/pkg/domain/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	_ model.UnitOfWork        = (*Store)(nil)
	_ model.RoleAuthority     = (*Store)(nil)
	_ model.RoleAdministrator = (*Store)(nil)
)

type Store struct {
	db *sqlx.DB
}

// Open connects with dsn. Time columns are always parsed into time.Time, whatever parseTime the
// DSN carries.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return nil, unavailable(err, "connect to mysql")
	}
	return &Store{db: db}, nil
}

func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(model.ErrInvalidArgument, errors.WithMessage(err, "parse mysql dsn").Error())
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	driver, err := migratemysql.WithInstance(s.db.DB, &migratemysql.Config{})
	if err != nil {
		return unavailable(err, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func (s *Store) ProductRepository() model.ProductRepository {
	return &productRepository{q: s.db}
}

func (s *Store) HistoryRepository() model.HistoryRepository {
	return &historyRepository{q: s.db}
}

func (s *Store) Execute(ctx context.Context, action func(provider model.RepositoryProvider) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = action(&provider{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return unavailable(err, "commit transaction")
	}
	return nil
}

type provider struct {
	tx *sqlx.Tx
}

func (p *provider) ProductRepository() model.ProductRepository {
	return &productRepository{q: p.tx, forUpdate: true}
}

func (p *provider) HistoryRepository() model.HistoryRepository {
	return &historyRepository{q: p.tx}
}

type queryer interface {
	sqlx.ExtContext
}

type sqlxProduct struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Producer     string    `db:"producer"`
	CurrentOwner string    `db:"current_owner"`
	State        int       `db:"state"`
	CreatedAt    time.Time `db:"created_at"`
	LastUpdated  time.Time `db:"last_updated"`
}

func (p sqlxProduct) toModel() model.Product {
	return model.Product{
		ID:           p.ID,
		Name:         p.Name,
		Producer:     p.Producer,
		CurrentOwner: p.CurrentOwner,
		State:        model.ProductState(p.State),
		CreatedAt:    p.CreatedAt.UTC(),
		LastUpdated:  p.LastUpdated.UTC(),
	}
}

type productRepository struct {
	q         queryer
	forUpdate bool
}

func (r *productRepository) NextID(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `INSERT INTO product_id_sequence () VALUES ()`)
	if err != nil {
		return 0, unavailable(err, "allocate product id")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable(err, "read allocated product id")
	}
	return id, nil
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	const query = `
		INSERT INTO product (id, name, producer, current_owner, state, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		product.ID, product.Name, product.Producer, product.CurrentOwner,
		int(product.State), product.CreatedAt, product.LastUpdated,
	)
	if err != nil {
		return unavailable(err, "insert product %d", product.ID)
	}
	return nil
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	const query = `UPDATE product SET current_owner = ?, state = ?, last_updated = ? WHERE id = ?`
	res, err := r.q.ExecContext(ctx, query,
		product.CurrentOwner, int(product.State), product.LastUpdated, product.ID,
	)
	if err != nil {
		return unavailable(err, "update product %d", product.ID)
	}
	// rows affected is 0 for an existing row whose values did not change, so only probe when needed
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.find(ctx, product.ID, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *productRepository) Find(ctx context.Context, id int64) (*model.Product, error) {
	return r.find(ctx, id, r.forUpdate)
}

func (r *productRepository) find(ctx context.Context, id int64, lock bool) (*model.Product, error) {
	query := `SELECT id, name, producer, current_owner, state, created_at, last_updated FROM product WHERE id = ?`
	if lock {
		query += ` FOR UPDATE`
	}

	var row sqlxProduct
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, unavailable(err, "select product %d", id)
	}
	product := row.toModel()
	return &product, nil
}

func (r *productRepository) List(ctx context.Context) ([]model.Product, error) {
	const query = `SELECT id, name, producer, current_owner, state, created_at, last_updated FROM product ORDER BY id`

	var rows []sqlxProduct
	if err := sqlx.SelectContext(ctx, r.q, &rows, query); err != nil {
		return nil, unavailable(err, "list products")
	}
	result := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

type sqlxRecord struct {
	Seq        int64     `db:"seq"`
	ProductID  int64     `db:"product_id"`
	Transition string    `db:"transition"`
	FromState  int       `db:"from_state"`
	ToState    int       `db:"to_state"`
	Actor      string    `db:"actor"`
	RecordedAt time.Time `db:"recorded_at"`
	Location   string    `db:"location"`
}

func (r sqlxRecord) toModel() model.TransactionRecord {
	return model.TransactionRecord{
		Seq:        r.Seq,
		ProductID:  r.ProductID,
		Transition: model.TransitionKind(r.Transition),
		FromState:  model.ProductState(r.FromState),
		ToState:    model.ProductState(r.ToState),
		Actor:      r.Actor,
		Timestamp:  r.RecordedAt.UTC(),
		Location:   r.Location,
	}
}

type historyRepository struct {
	q queryer
}

func (r *historyRepository) Append(ctx context.Context, record *model.TransactionRecord) error {
	const query = `
		INSERT INTO product_transaction (product_id, transition, from_state, to_state, actor, recorded_at, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, query,
		record.ProductID, string(record.Transition), int(record.FromState), int(record.ToState),
		record.Actor, record.Timestamp, record.Location,
	)
	if err != nil {
		return unavailable(err, "append record for product %d", record.ProductID)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return unavailable(err, "read record sequence")
	}
	record.Seq = seq
	return nil
}

func (r *historyRepository) HistoryFor(ctx context.Context, productID int64) ([]model.TransactionRecord, error) {
	return r.selectRecords(ctx, `WHERE product_id = ?`, productID)
}

func (r *historyRepository) RecordsByActor(ctx context.Context, actor string) ([]model.TransactionRecord, error) {
	return r.selectRecords(ctx, `WHERE actor = ?`, actor)
}

func (r *historyRepository) selectRecords(ctx context.Context, where string, arg interface{}) ([]model.TransactionRecord, error) {
	query := `SELECT seq, product_id, transition, from_state, to_state, actor, recorded_at, location
		FROM product_transaction ` + where + ` ORDER BY recorded_at, seq`

	var rows []sqlxRecord
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, arg); err != nil {
		return nil, unavailable(err, "select records")
	}
	result := make([]model.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

func (s *Store) HasCapability(ctx context.Context, identity string, capability model.Capability) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM role_grant WHERE identity = ? AND capability = ?`, identity, string(capability))
	if err != nil {
		return false, unavailable(err, "check capability")
	}
	return count > 0, nil
}

func (s *Store) CapabilitiesOf(ctx context.Context, identity string) ([]model.Capability, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT capability FROM role_grant WHERE identity = ? ORDER BY capability`, identity)
	if err != nil {
		return nil, unavailable(err, "list capabilities")
	}
	result := make([]model.Capability, 0, len(names))
	for _, name := range names {
		result = append(result, model.Capability(name))
	}
	return result, nil
}

func (s *Store) Grant(ctx context.Context, identity string, capability model.Capability) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO role_grant (identity, capability, granted_at) VALUES (?, ?, ?)`,
		identity, string(capability), time.Now().UTC())
	if err != nil {
		return unavailable(err, "grant %s to %s", capability, identity)
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, identity string, capability model.Capability) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_grant WHERE identity = ? AND capability = ?`, identity, string(capability))
	if err != nil {
		return unavailable(err, "revoke %s from %s", capability, identity)
	}
	return nil
}

func unavailable(cause error, format string, args ...interface{}) error {
	return errors.Wrap(model.ErrStoreUnavailable, errors.WithMessagef(cause, format, args...).Error())
}
