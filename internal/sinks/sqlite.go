package sinks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

const createPacketsSQL = `CREATE TABLE IF NOT EXISTS packets (
	id          TEXT PRIMARY KEY,
	session     TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	type        TEXT NOT NULL,
	type_id     INTEGER NOT NULL,
	timestamp   INTEGER NOT NULL,
	endpoints   TEXT NOT NULL,
	payload     BLOB,
	recorded_at INTEGER NOT NULL
);`

const insertPacketSQL = `INSERT INTO packets
	(id, session, endpoint, type, type_id, timestamp, endpoints, payload, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record is one archived packet row.
type Record struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	Endpoint   string    `json:"endpoint"`
	Type       string    `json:"type"`
	TypeID     uint32    `json:"type_id"`
	Timestamp  uint64    `json:"timestamp"`
	Endpoints  []string  `json:"endpoints"`
	Payload    []byte    `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SQLiteSink archives packets into a SQLite database. Every process run gets
// its own session id so replays from several boards stay separable.
type SQLiteSink struct {
	mu       sync.Mutex
	db       *sql.DB
	insert   *sql.Stmt
	session  string
	endpoint schema.Endpoint
}

func OpenSQLite(path string, endpoint schema.Endpoint) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sinks: open sqlite %s: %w", path, err)
	}
	s, err := NewSQLite(db, endpoint)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite uses an existing connection. The sink owns db after this call.
func NewSQLite(db *sql.DB, endpoint schema.Endpoint) (*SQLiteSink, error) {
	if _, err := db.Exec(createPacketsSQL); err != nil {
		return nil, fmt.Errorf("sinks: create packets table: %w", err)
	}
	stmt, err := db.Prepare(insertPacketSQL)
	if err != nil {
		return nil, fmt.Errorf("sinks: prepare insert: %w", err)
	}
	return &SQLiteSink{
		db:       db,
		insert:   stmt,
		session:  xid.New().String(),
		endpoint: endpoint,
	}, nil
}

func (s *SQLiteSink) Session() string { return s.session }

func (s *SQLiteSink) Handle(p *protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return sql.ErrConnDone
	}
	_, err := s.insert.Exec(
		xid.New().String(),
		s.session,
		s.endpoint.String(),
		p.MessageType.Type.String(),
		uint32(p.MessageType.Type),
		int64(p.Timestamp),
		strings.Join(endpointNames(p.MessageType.Endpoints), ","),
		p.PayloadBytes(),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sinks: insert packet: %w", err)
	}
	return nil
}

// Count returns the number of archived packets across all sessions.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, sql.ErrConnDone
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packets`).Scan(&n)
	return n, err
}

// Recent returns up to limit rows, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, session, endpoint, type, type_id, timestamp, endpoints, payload, recorded_at
		FROM packets ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			ts        int64
			endpoints string
			recorded  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Endpoint, &rec.Type, &rec.TypeID, &ts, &endpoints, &rec.Payload, &recorded); err != nil {
			return nil, err
		}
		rec.Timestamp = uint64(ts)
		if endpoints != "" {
			rec.Endpoints = strings.Split(endpoints, ",")
		}
		rec.RecordedAt = time.Unix(0, recorded).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	s.insert.Close()
	err := s.db.Close()
	s.db = nil
	return err
}
