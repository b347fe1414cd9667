// Package store persists matrix product networks in SQLite.
//
// Each network is saved under a name, as the shapes of its site tensors and their non-zero elements in row-major order.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fumin/tensor"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableSite      = "site"
	tableAmplitude = "amplitude"

	shortTimeout = 3 * time.Second
	longTimeout  = 48 * time.Hour
)

// ErrNotFound is returned when no network is saved under a name.
var ErrNotFound = errors.New("not found")

// A Store is a SQLite database of networks.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens the database at path, creating it if necessary.
func Open(path string) (*Store, error) {
	db, err := newDB(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: path, db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Save saves network under name, replacing any network previously saved under the same name.
// The tensors of network must be of rank 3 or 4.
func (s *Store) Save(name string, network []*tensor.Dense) error {
	for i, t := range network {
		if r := len(t.Shape()); r != 3 && r != 4 {
			return errors.Errorf("site %d shape %#v", i, t.Shape())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), longTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := save(ctx, tx, name, network); err != nil {
		tx.Rollback()
		return errors.Wrap(err, name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func save(ctx context.Context, tx *sql.Tx, name string, network []*tensor.Dense) error {
	if err := deleteName(ctx, tx, name); err != nil {
		return errors.Wrap(err, "")
	}

	siteStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (name, site, d0, d1, d2, d3) VALUES (?, ?, ?, ?, ?, ?)`, tableSite))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer siteStmt.Close()
	ampStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (name, site, i, re, im) VALUES (?, ?, ?, ?, ?)`, tableAmplitude))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer ampStmt.Close()

	for site, t := range network {
		var d [4]int
		copy(d[:], t.Shape())
		if _, err := siteStmt.ExecContext(ctx, name, site, d[0], d[1], d[2], d[3]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", site))
		}

		strides := rowMajorStrides(t.Shape())
		for digits, v := range t.All() {
			if v == 0 {
				continue
			}
			var i int
			for k, dk := range digits {
				i += dk * strides[k]
			}
			if _, err := ampStmt.ExecContext(ctx, name, site, i, real(v), imag(v)); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %d", site, i))
			}
		}
	}
	return nil
}

// Load returns the network saved under name.
func (s *Store) Load(name string) ([]*tensor.Dense, error) {
	network, err := s.shapes(name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), longTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT site, i, re, im FROM %s WHERE name=? ORDER BY site, i`, tableAmplitude)
	rows, err := s.db.QueryContext(ctx, sqlStr, name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	for rows.Next() {
		var site, i int
		var re, im float32
		if err := rows.Scan(&site, &i, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if site < 0 || site >= len(network) {
			return nil, errors.Errorf("site %d of %d", site, len(network))
		}
		t := network[site]
		digits, err := unravel(i, t.Shape())
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", site))
		}
		t.SetAt(digits, complex(re, im))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return network, nil
}

// shapes returns zero tensors of the shapes of the network saved under name.
func (s *Store) shapes(name string) ([]*tensor.Dense, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT site, d0, d1, d2, d3 FROM %s WHERE name=? ORDER BY site`, tableSite)
	rows, err := s.db.QueryContext(ctx, sqlStr, name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	network := make([]*tensor.Dense, 0)
	for rows.Next() {
		var site int
		var d [4]int
		if err := rows.Scan(&site, &d[0], &d[1], &d[2], &d[3]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if site != len(network) {
			return nil, errors.Errorf("missing site %d", len(network))
		}
		shape := d[:]
		if d[3] == 0 {
			shape = d[:3]
		}
		network = append(network, tensor.Zeros(shape...))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(network) == 0 {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return network, nil
}

// Names returns the names of the saved networks in ascending order.
func (s *Store) Names() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT DISTINCT name FROM %s ORDER BY name`, tableSite)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return names, nil
}

// Delete deletes the network saved under name.
func (s *Store) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := deleteName(ctx, tx, name); err != nil {
		tx.Rollback()
		return errors.Wrap(err, name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func deleteName(ctx context.Context, tx *sql.Tx, name string) error {
	for _, table := range []string{tableSite, tableAmplitude} {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE name=?`, table)
		if _, err := tx.ExecContext(ctx, sqlStr, name); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %s", sqlStr, name))
		}
	}
	return nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for k := len(shape) - 1; k >= 0; k-- {
		strides[k] = stride
		stride *= shape[k]
	}
	return strides
}

// unravel returns the digits of the row-major index i.
func unravel(i int, shape []int) ([]int, error) {
	digits := make([]int, len(shape))
	rem := i
	for k := len(shape) - 1; k >= 0; k-- {
		digits[k] = rem % shape[k]
		rem /= shape[k]
	}
	if i < 0 || rem != 0 {
		return nil, errors.Errorf("index %d shape %#v", i, shape)
	}
	return digits, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()
	sqlStrs := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT, site INTEGER, d0 INTEGER, d1 INTEGER, d2 INTEGER, d3 INTEGER, PRIMARY KEY (name, site)) STRICT`, tableSite),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT, site INTEGER, i INTEGER, re REAL, im REAL, PRIMARY KEY (name, site, i)) STRICT`, tableAmplitude),
	}
	for _, sqlStr := range sqlStrs {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}
