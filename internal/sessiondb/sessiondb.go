// Package sessiondb persists community sessions in sqlite so a login
// survives process restarts.
package sessiondb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"steamcommunity/internal/community"
	"steamcommunity/internal/components/chrono"
	"steamcommunity/internal/steamid"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var ErrSessionNotFound = errors.New("session not found")

func wrapOpenDB(err error) error {
	return fmt.Errorf("open session db: %w", err)
}

// OpenDB opens (and creates) the database at path and applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		os.MkdirAll(filepath.Dir(path), 0777)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// sqlite only has one writer, more connections just contend on the lock
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	_, err = db.Exec(Schema)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

type Record struct {
	AccountName string
	Session     community.Session
	UpdatedAt   time.Time
}

type Store struct {
	db   *sql.DB
	time chrono.API
}

func NewStore(db *sql.DB, clock chrono.API) Store {
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	return Store{db: db, time: clock}
}

type storedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Secure bool   `json:"secure"`
}

func (s Store) Save(ctx context.Context, accountName string, session community.Session) error {
	cookies := make([]storedCookie, len(session.Cookies))
	for i, c := range session.Cookies {
		cookies[i] = storedCookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Secure: c.Secure}
	}
	serialized, err := json.Marshal(cookies)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`insert into session (account_name, steam_id, session_id, steam_guard, mobile_access_token, cookies, updated_at)
		values (?, ?, ?, ?, ?, ?, ?)
		on conflict (account_name) do update set
			steam_id = excluded.steam_id,
			session_id = excluded.session_id,
			steam_guard = excluded.steam_guard,
			mobile_access_token = excluded.mobile_access_token,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at`,
		accountName,
		int64(session.SteamID),
		session.SessionID,
		session.SteamGuard,
		session.MobileAccessToken,
		string(serialized),
		s.time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", accountName, err)
	}
	return nil
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var record Record
	var id int64
	var cookies string
	var updatedAt int64
	err := row.Scan(
		&record.AccountName,
		&id,
		&record.Session.SessionID,
		&record.Session.SteamGuard,
		&record.Session.MobileAccessToken,
		&cookies,
		&updatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	var stored []storedCookie
	err = json.Unmarshal([]byte(cookies), &stored)
	if err != nil {
		return Record{}, fmt.Errorf("decode cookies of %s: %w", record.AccountName, err)
	}
	for _, c := range stored {
		record.Session.Cookies = append(record.Session.Cookies, community.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Secure: c.Secure,
		})
	}
	record.Session.SteamID = steamid.SteamID(id)
	record.UpdatedAt = time.Unix(updatedAt, 0)
	return record, nil
}

const selectColumns = `account_name, steam_id, session_id, steam_guard, mobile_access_token, cookies, updated_at`

func (s Store) Load(ctx context.Context, accountName string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+selectColumns+` from session where account_name = ?`, accountName)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load session %s: %w", accountName, err)
	}
	return record, nil
}

func (s Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `select `+selectColumns+` from session order by account_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s Store) Delete(ctx context.Context, accountName string) error {
	_, err := s.db.ExecContext(ctx, `delete from session where account_name = ?`, accountName)
	return err
}

// LastKeyTime returns the latest confirmation timestamp recorded for
// accountName, 0 when there is none.
func (s Store) LastKeyTime(ctx context.Context, accountName string) (int64, error) {
	var t int64
	err := s.db.QueryRowContext(
		ctx,
		`select last_key_time from confirmation_time where account_name = ?`,
		accountName,
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load confirmation time %s: %w", accountName, err)
	}
	return t, nil
}

// SaveLastKeyTime records t unless a later timestamp is already stored.
func (s Store) SaveLastKeyTime(ctx context.Context, accountName string, t int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into confirmation_time (account_name, last_key_time) values (?, ?)
		on conflict (account_name) do update set
			last_key_time = max(last_key_time, excluded.last_key_time)`,
		accountName,
		t,
	)
	if err != nil {
		return fmt.Errorf("save confirmation time %s: %w", accountName, err)
	}
	return nil
}
