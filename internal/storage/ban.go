// Package storage keeps the server's ban list in a SQLite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrInvalidAddress = errors.New("storage: invalid ip address format")

const initSQL = `CREATE TABLE IF NOT EXISTS ban (
	addr    TEXT PRIMARY KEY NOT NULL,
	reason  TEXT NOT NULL,
	created INTEGER NOT NULL,
	expires INTEGER NOT NULL
);`

// Ban is one ban entry. A zero Expires never expires.
type Ban struct {
	Addr    string
	Reason  string
	Created time.Time
	Expires time.Time
}

// Active reports whether b is in force at now.
func (b *Ban) Active(now time.Time) bool {
	return b.Expires.IsZero() || now.Before(b.Expires)
}

// BanList is a ban table keyed by IP address.
type BanList struct {
	db *sql.DB
}

// OpenBanList opens or creates the database at path.
func OpenBanList(path string) (*BanList, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(initSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ban table: %w", err)
	}
	return &BanList{db: db}, nil
}

// Close closes the database.
func (l *BanList) Close() error { return l.db.Close() }

// Add bans addr, replacing any earlier entry. A zero ttl bans forever.
func (l *BanList) Add(addr, reason string, ttl time.Duration) error {
	if net.ParseIP(addr) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	now := time.Now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).Unix()
	}

	_, err := l.db.Exec(`INSERT OR REPLACE INTO ban (
		addr,
		reason,
		created,
		expires
	) VALUES (
		?,
		?,
		?,
		?
	);`, addr, reason, now.Unix(), expires)
	return err
}

// Remove lifts the ban on addr. Removing an address that is not banned is
// not an error.
func (l *BanList) Remove(addr string) error {
	_, err := l.db.Exec(`DELETE FROM ban WHERE addr = ?;`, addr)
	return err
}

// Lookup returns the ban on addr, or nil.
func (l *BanList) Lookup(addr string) (*Ban, error) {
	var (
		b                Ban
		created, expires int64
	)
	err := l.db.QueryRow(`SELECT addr, reason, created, expires FROM ban WHERE addr = ?;`, addr).
		Scan(&b.Addr, &b.Reason, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Created = time.Unix(created, 0)
	if expires != 0 {
		b.Expires = time.Unix(expires, 0)
	}
	return &b, nil
}

// IsBanned reports whether addr is under an active ban and why.
func (l *BanList) IsBanned(addr string, now time.Time) (bool, string, error) {
	b, err := l.Lookup(addr)
	if err != nil || b == nil {
		return false, "", err
	}
	if !b.Active(now) {
		return false, "", nil
	}
	return true, b.Reason, nil
}

// List returns every entry, expired ones included.
func (l *BanList) List() ([]Ban, error) {
	rows, err := l.db.Query(`SELECT addr, reason, created, expires FROM ban ORDER BY addr;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var r []Ban
	for rows.Next() {
		var (
			b                Ban
			created, expires int64
		)
		if err := rows.Scan(&b.Addr, &b.Reason, &created, &expires); err != nil {
			return nil, err
		}
		b.Created = time.Unix(created, 0)
		if expires != 0 {
			b.Expires = time.Unix(expires, 0)
		}
		r = append(r, b)
	}
	return r, rows.Err()
}

// Prune deletes bans that expired before now and returns how many.
func (l *BanList) Prune(now time.Time) (int, error) {
	res, err := l.db.Exec(`DELETE FROM ban WHERE expires != 0 AND expires <= ?;`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
