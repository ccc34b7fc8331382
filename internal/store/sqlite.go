package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/transport"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the reference Store implementation: modernc.org/sqlite (pure
// Go, no cgo) behind database/sql, schema-managed by golang-migrate's iofs
// source driver, grounded on the banshee-data/velocity.report pack repo's
// dependency pairing (see DESIGN.md).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the database file at path and
// brings its schema up to date. Per spec.md §6, the database lives under an
// application-private directory that may not exist yet on first launch, so
// its parent is created before the driver ever touches the file.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: assemble migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, fmt.Errorf("store: migrate up: %w", err)
	}

	return &SQLite{db: db}, nil
}

// EnsurePortID idempotently upserts name and returns its id.
func (s *SQLite) EnsurePortID(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO serial_port(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("store: ensure port id: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM serial_port WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: ensure port id: %w", err)
	}
	return id, nil
}

// UpsertOpenOptions updates the row for (portID, tag) if one exists, else
// inserts a new one.
func (s *SQLite) UpsertOpenOptions(ctx context.Context, portID int64, tag string, opts session.OpenOptions) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM open_options WHERE port_id = ? AND tag = ?`, portID, tag).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		res, insErr := s.db.ExecContext(ctx,
			`INSERT INTO open_options
				(port_id, tag, init_read_state, baud_rate, data_bits, flow_control, parity, stop_bits, timeout_ms)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			portID, tag, int(opts.InitialReadState), opts.BaudRate, opts.DataBits,
			int(opts.FlowControl), int(opts.Parity), int(opts.StopBits), opts.Timeout.Milliseconds())
		if insErr != nil {
			return 0, fmt.Errorf("store: insert open_options: %w", insErr)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("store: lookup open_options: %w", err)
	default:
		if _, updErr := s.db.ExecContext(ctx,
			`UPDATE open_options SET
				init_read_state=?, baud_rate=?, data_bits=?, flow_control=?, parity=?, stop_bits=?, timeout_ms=?
			 WHERE id=?`,
			int(opts.InitialReadState), opts.BaudRate, opts.DataBits,
			int(opts.FlowControl), int(opts.Parity), int(opts.StopBits), opts.Timeout.Milliseconds(), id); updErr != nil {
			return 0, fmt.Errorf("store: update open_options: %w", updErr)
		}
		return id, nil
	}
}

// AppendPacket inserts one journal row for pkt.
func (s *SQLite) AppendPacket(ctx context.Context, portID int64, tag string, pkt session.Packet) (int64, error) {
	var incoming, outgoing int
	var data []byte
	var direct, broadcast sql.NullBool
	var subscriptionFrom sql.NullString

	if pkt.Direction.Incoming {
		incoming = 1
		data = pkt.Direction.Line
	}
	if pkt.Direction.Outgoing {
		outgoing = 1
		data = pkt.Direction.Payload
		switch pkt.Direction.Origin.Kind {
		case session.OriginDirect:
			direct = sql.NullBool{Bool: true, Valid: true}
		case session.OriginBroadcast:
			broadcast = sql.NullBool{Bool: true, Valid: true}
		case session.OriginSubscription:
			subscriptionFrom = sql.NullString{String: pkt.Direction.Origin.From, Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO packet
			(port_id, tag, timestamp_ms, incoming, outgoing, outgoing_direct, outgoing_broadcast, outgoing_subscription, data)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		portID, tag, pkt.TimestampMs, incoming, outgoing, direct, broadcast, subscriptionFrom, data)
	if err != nil {
		return 0, fmt.Errorf("store: append packet: %w", err)
	}
	return res.LastInsertId()
}

// LastUsedOptions returns the most recently upserted options for
// (name, tag), if any row exists.
func (s *SQLite) LastUsedOptions(ctx context.Context, name, tag string) (session.OpenOptions, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oo.init_read_state, oo.baud_rate, oo.data_bits, oo.flow_control, oo.parity, oo.stop_bits, oo.timeout_ms
		FROM open_options oo
		JOIN serial_port sp ON sp.id = oo.port_id
		WHERE sp.name = ? AND oo.tag = ?`, name, tag)

	var (
		opts                         session.OpenOptions
		readState, flow, parity, sb  int
		timeoutMs                    int64
	)
	err := row.Scan(&readState, &opts.BaudRate, &opts.DataBits, &flow, &parity, &sb, &timeoutMs)
	if err == sql.ErrNoRows {
		return session.OpenOptions{}, false, nil
	}
	if err != nil {
		return session.OpenOptions{}, false, fmt.Errorf("store: last used options: %w", err)
	}

	opts.Tag = tag
	opts.InitialReadState = session.ReadState(readState)
	opts.FlowControl = transport.FlowControl(flow)
	opts.Parity = transport.Parity(parity)
	opts.StopBits = transport.StopBits(sb)
	opts.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return opts, true, nil
}

// LastUsedOptionsForPort returns the options row most recently written for
// name, regardless of tag, by insertion order (highest id).
func (s *SQLite) LastUsedOptionsForPort(ctx context.Context, name string) (session.OpenOptions, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oo.tag, oo.init_read_state, oo.baud_rate, oo.data_bits, oo.flow_control, oo.parity, oo.stop_bits, oo.timeout_ms
		FROM open_options oo
		JOIN serial_port sp ON sp.id = oo.port_id
		WHERE sp.name = ?
		ORDER BY oo.id DESC
		LIMIT 1`, name)

	var (
		opts                        session.OpenOptions
		readState, flow, parity, sb int
		timeoutMs                   int64
	)
	err := row.Scan(&opts.Tag, &readState, &opts.BaudRate, &opts.DataBits, &flow, &parity, &sb, &timeoutMs)
	if err == sql.ErrNoRows {
		return session.OpenOptions{}, false, nil
	}
	if err != nil {
		return session.OpenOptions{}, false, fmt.Errorf("store: last used options for port: %w", err)
	}

	opts.InitialReadState = session.ReadState(readState)
	opts.FlowControl = transport.FlowControl(flow)
	opts.Parity = transport.Parity(parity)
	opts.StopBits = transport.StopBits(sb)
	opts.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return opts, true, nil
}

// Close releases the underlying *sql.DB.
func (s *SQLite) Close() error {
	return s.db.Close()
}
