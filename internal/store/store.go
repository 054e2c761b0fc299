// Package store persists rooms, reservations, guests, message templates,
// deliveries and guest registrations through database/sql. SQLite is the
// default backend; PostgreSQL is selected with driver "postgres".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	appLog "delfin/internal/log"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique key, e.g. a
	// second reservation with the same (channel, external_id).
	ErrConflict = errors.New("conflict")
	// ErrInUse is returned when deleting a row other rows still reference.
	ErrInUse = errors.New("in use")
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store owns the database handle and exposes one repository per entity.
type Store struct {
	db     *sql.DB
	driver string

	Rooms         RoomRepository
	Reservations  ReservationRepository
	Guests        GuestRepository
	Templates     TemplateRepository
	Deliveries    DeliveryRepository
	Registrations RegistrationRepository
}

// Open connects to the database. It does not create tables; call Migrate.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("store: empty DSN")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite serializes writers anyway; a single connection avoids
		// SQLITE_BUSY and keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	c := &conn{db: db, driver: driver}
	s := &Store{
		db:            db,
		driver:        driver,
		Rooms:         &roomRepository{c},
		Reservations:  &reservationRepository{c},
		Guests:        &guestRepository{c},
		Templates:     &templateRepository{c},
		Deliveries:    &deliveryRepository{c},
		Registrations: &registrationRepository{c},
	}
	appLog.Info("store opened", "driver", driver)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// Ping reports whether the database is reachable; used by /health.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// conn rebinds the portable `?` placeholders for the active driver.
type conn struct {
	db     *sql.DB
	driver string
}

func (c *conn) rebind(q string) string {
	return rebind(c.driver, q)
}

func (c *conn) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.rebind(q), args...)
}

func (c *conn) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.rebind(q), args...)
}

func (c *conn) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.rebind(q), args...)
}

// rebind rewrites `?` placeholders as `$1..$n` for PostgreSQL.
func rebind(driver, q string) string {
	if driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// mapError translates driver-specific constraint errors into the sentinel
// errors callers check with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", ErrInUse, err)
		}
	}

	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %v", ErrInUse, err)
		}
	}
	return err
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
