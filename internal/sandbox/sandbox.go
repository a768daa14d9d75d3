// Package sandbox runs submitted code in an isolated environment and
// classifies the outcome.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// Result is the raw outcome of one execution. ErrorText is empty when the
// code ran to completion.
type Result struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ErrorText string `json:"error"`
}

// Session is one acquired sandbox. It must be closed by whoever opened it.
type Session interface {
	Run(ctx context.Context, code string) (*Result, error)
	Close() error
}

// Executor hands out isolated sandbox sessions.
type Executor interface {
	Open(ctx context.Context) (Session, error)
}

// DefaultPlaceholder replaces interactive input in executed code.
const DefaultPlaceholder = "mock_user"

// preamble creates the storage that reviewed snippets commonly expect.
const preamble = `
import sqlite3

def init_db():
    conn = sqlite3.connect('users.db')
    cursor = conn.cursor()
    cursor.execute('''
        CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            username TEXT UNIQUE NOT NULL
        )
    ''')
    cursor.execute("INSERT OR IGNORE INTO users (username) VALUES (?)", (%q,))
    conn.commit()
    conn.close()

init_db()
`

// Prepare neutralizes interactive input calls and prepends the storage
// bootstrap preamble. The rest of the line after an input( call is commented
// out so its arguments do not execute.
func Prepare(code, placeholder string) string {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	quoted := "'" + strings.ReplaceAll(placeholder, "'", `\'`) + "'"
	body := strings.ReplaceAll(code, "input(", quoted+" #")
	return fmt.Sprintf(preamble, placeholder) + body
}

// Execute opens a session, runs code in it and always releases the session.
func Execute(ctx context.Context, e Executor, code string) (res *Result, err error) {
	sess, err := e.Open(ctx)
	if err != nil {
		return nil, unavailable("open sandbox", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = unavailable("close sandbox", cerr)
			res = nil
		}
	}()

	res, err = sess.Run(ctx, code)
	if err != nil {
		return nil, unavailable("run code", err)
	}
	return res, nil
}

// unavailable wraps err as ErrSandboxUnavailable unless it already is.
func unavailable(op string, err error) error {
	if errors.Is(err, models.ErrSandboxUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrSandboxUnavailable, err)
}
