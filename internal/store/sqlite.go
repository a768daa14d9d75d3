package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/crev/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes every access, including WithinReview
	// transactions, so two voters on the same review never interleave.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(strings.TrimPrefix(pragma, "PRAGMA ")), err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	return ulid.Make().String()
}

// isConstraint reports whether err is a SQLite constraint failure of the given kind
// ("UNIQUE", "FOREIGN KEY", "CHECK").
func isConstraint(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

const userColumns = `id, username, password_hash, role, created_at`

func scanUser(sc interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := sc.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("create user: empty username: %w", models.ErrInvalidInput)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("create user: unknown role %q: %w", u.Role, models.ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = newULID()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if isConstraint(err, "UNIQUE") {
		return fmt.Errorf("create user %s: %w", u.Username, models.ErrUserExists)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", username, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Reviews ---

const reviewColumns = `r.id, r.author_id, u.username, r.original_code, r.suggested_code,
	r.vulnerabilities, r.changes, r.time_complexity_original, r.time_complexity_refactored,
	r.original_verdict, r.original_verdict_message, r.suggested_verdict, r.suggested_verdict_message,
	r.extraction_failed, r.status, r.created_at, r.updated_at`

const reviewFrom = ` FROM reviews r JOIN users u ON u.id = r.author_id`

func scanReview(sc interface{ Scan(...any) error }) (*models.Review, error) {
	r := &models.Review{}
	var origVerdict, suggVerdict, status string
	err := sc.Scan(&r.ID, &r.AuthorID, &r.AuthorName, &r.OriginalCode, &r.SuggestedCode,
		&r.Vulnerabilities, &r.Changes, &r.TimeComplexityOriginal, &r.TimeComplexityRefactored,
		&origVerdict, &r.OriginalVerdictMessage, &suggVerdict, &r.SuggestedVerdictMessage,
		&r.ExtractionFailed, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.OriginalVerdict = models.VerdictStatus(origVerdict)
	r.SuggestedVerdict = models.VerdictStatus(suggVerdict)
	r.Status = models.ReviewStatus(status)
	return r, nil
}

// SubmitReview persists a new review. Its status is always set to pending.
func (s *SQLiteStore) SubmitReview(ctx context.Context, r *models.Review) error {
	if r.AuthorID == "" {
		return fmt.Errorf("submit review: missing author: %w", models.ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Status = models.ReviewStatusPending

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, author_id, original_code, suggested_code, vulnerabilities, changes,
			time_complexity_original, time_complexity_refactored,
			original_verdict, original_verdict_message, suggested_verdict, suggested_verdict_message,
			extraction_failed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AuthorID, r.OriginalCode, r.SuggestedCode, r.Vulnerabilities, r.Changes,
		r.TimeComplexityOriginal, r.TimeComplexityRefactored,
		string(r.OriginalVerdict), r.OriginalVerdictMessage, string(r.SuggestedVerdict), r.SuggestedVerdictMessage,
		boolToInt(r.ExtractionFailed), string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if isConstraint(err, "FOREIGN KEY") {
		return fmt.Errorf("submit review: author %s: %w", r.AuthorID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("submit review: %w", err)
	}

	author, err := s.GetUser(ctx, r.AuthorID)
	if err == nil {
		r.AuthorName = author.Username
	}
	return nil
}

func getReview(ctx context.Context, q queryer, id string) (*models.Review, error) {
	r, err := scanReview(q.QueryRowContext(ctx, `SELECT `+reviewColumns+reviewFrom+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	return getReview(ctx, s.db, id)
}

// ListReviewsByStatus returns reviews joined with their author's username,
// newest first. An empty status lists every review.
func (s *SQLiteStore) ListReviewsByStatus(ctx context.Context, status models.ReviewStatus) ([]*models.Review, error) {
	query := `SELECT ` + reviewColumns + reviewFrom
	var args []any
	if status != "" {
		query += ` WHERE r.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// --- Votes ---

func (s *SQLiteStore) ListVotes(ctx context.Context, reviewID string) ([]*models.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, review_id, voter_id, choice, created_at FROM votes
		WHERE review_id = ? ORDER BY created_at, id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var votes []*models.Vote
	for rows.Next() {
		v := &models.Vote{}
		var choice string
		if err := rows.Scan(&v.ID, &v.ReviewID, &v.VoterID, &choice, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Choice = models.VoteChoice(choice)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func tallyVotes(ctx context.Context, q queryer, reviewID string) (models.Tally, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT choice, COUNT(*) FROM votes WHERE review_id = ? GROUP BY choice`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tally := models.Tally{}
	for rows.Next() {
		var choice string
		var n int
		if err := rows.Scan(&choice, &n); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tally[models.VoteChoice(choice)] = n
	}
	return tally, rows.Err()
}

func (s *SQLiteStore) TallyVotes(ctx context.Context, reviewID string) (models.Tally, error) {
	return tallyVotes(ctx, s.db, reviewID)
}

// WithinReview loads the review and runs fn inside a transaction. The
// transaction commits only when fn returns nil.
func (s *SQLiteStore) WithinReview(ctx context.Context, reviewID string, fn func(tx ReviewTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	r, err := getReview(ctx, tx, reviewID)
	if err != nil {
		return err
	}

	if err = fn(&sqliteReviewTx{tx: tx, review: r}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit review transaction: %w", err)
	}
	return nil
}

type sqliteReviewTx struct {
	tx     *sql.Tx
	review *models.Review
}

func (t *sqliteReviewTx) Review() *models.Review { return t.review }

func (t *sqliteReviewTx) CastVote(ctx context.Context, v *models.Vote) error {
	if !v.Choice.Valid() {
		return fmt.Errorf("cast vote: unknown choice %q: %w", v.Choice, models.ErrInvalidInput)
	}
	if v.ID == "" {
		v.ID = newULID()
	}
	v.ReviewID = t.review.ID
	v.CreatedAt = time.Now().UTC()

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO votes (id, review_id, voter_id, choice, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.ReviewID, v.VoterID, string(v.Choice), v.CreatedAt,
	)
	if isConstraint(err, "FOREIGN KEY") {
		return fmt.Errorf("cast vote: voter %s: %w", v.VoterID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	return nil
}

func (t *sqliteReviewTx) HasVoted(ctx context.Context, voterID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE review_id = ? AND voter_id = ?`, t.review.ID, voterID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteReviewTx) TallyVotes(ctx context.Context) (models.Tally, error) {
	return tallyVotes(ctx, t.tx, t.review.ID)
}

func (t *sqliteReviewTx) SetStatus(ctx context.Context, status models.ReviewStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status %q: %w", status, models.ErrInvalidInput)
	}
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx,
		`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, t.review.ID,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	t.review.Status = status
	t.review.UpdatedAt = now
	return nil
}

var _ Store = (*SQLiteStore)(nil)
