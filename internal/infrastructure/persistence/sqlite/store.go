// Package sqlite implements achievement.Store on an embedded SQLite database.
// It backs single-node deployments and the engine tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// Store provides SQLite-backed persistence for achievements and the review ledger.
type Store struct {
	sqlDB *sql.DB
}

var _ achievement.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	store := &Store{sqlDB: sqlDB}
	if err := NewMigrator(sqlDB).Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// OpenDB opens the database file without migrating it.
func OpenDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions serialised.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return sqlDB, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Apply executes the change in one transaction.
func (s *Store) Apply(ctx context.Context, change achievement.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := change.Validate(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin achievement write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback achievement write: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := applyChange(ctx, tx, change); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit achievement write: %w", err)
	}
	return nil
}

func applyChange(ctx context.Context, tx execer, change achievement.Change) error {
	a := change.Achievement

	switch change.Kind {
	case achievement.ChangeInsert:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO achievements (
				id, owner_id, title, body, type, status, score,
				reviewer_id, created_at, updated_at, submitted_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.OwnerID, a.Title, a.Body, string(a.Type), string(a.Status), nullInt(a.Score),
			nullString(a.ReviewerID), toMillis(a.CreatedAt), toMillis(a.UpdatedAt), nullMillis(a.SubmittedAt),
			change.NextVersion(),
		)
		if err != nil {
			return fmt.Errorf("insert achievement: %w", err)
		}
		if err := insertAttachments(ctx, tx, a); err != nil {
			return err
		}

	case achievement.ChangeUpdate:
		res, err := tx.ExecContext(ctx, `
			UPDATE achievements SET
				title = ?, body = ?, type = ?, status = ?, score = ?,
				reviewer_id = ?, updated_at = ?, submitted_at = ?, version = ?
			WHERE id = ? AND version = ? AND status = ?`,
			a.Title, a.Body, string(a.Type), string(a.Status), nullInt(a.Score),
			nullString(a.ReviewerID), toMillis(a.UpdatedAt), nullMillis(a.SubmittedAt), change.NextVersion(),
			a.ID, change.ExpectedVersion, string(change.ExpectedStatus),
		)
		if err != nil {
			return fmt.Errorf("update achievement: %w", err)
		}
		if err := checkAffected(ctx, tx, res, a.ID); err != nil {
			return err
		}
		if change.ReplaceAttachments {
			if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE achievement_id = ?`, a.ID); err != nil {
				return fmt.Errorf("clear attachments: %w", err)
			}
			if err := insertAttachments(ctx, tx, a); err != nil {
				return err
			}
		}

	case achievement.ChangeDelete:
		if _, err := tx.ExecContext(ctx, `DELETE FROM review_decisions WHERE achievement_id = ?`, a.ID); err != nil {
			return fmt.Errorf("delete decisions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE achievement_id = ?`, a.ID); err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM achievements WHERE id = ? AND version = ? AND status = ?`,
			a.ID, change.ExpectedVersion, string(change.ExpectedStatus))
		if err != nil {
			return fmt.Errorf("delete achievement: %w", err)
		}
		if err := checkAffected(ctx, tx, res, a.ID); err != nil {
			return err
		}
	}

	if d := change.Decision; d != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_decisions (
				id, achievement_id, reviewer_id, outcome, feedback, score, synthetic, decided_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.AchievementID, d.ReviewerID, string(d.Outcome), d.Feedback, nullInt(d.Score),
			boolToInt(d.Synthetic), toMillis(d.DecidedAt),
		)
		if err != nil {
			return fmt.Errorf("insert review decision: %w", err)
		}
	}
	return nil
}

func insertAttachments(ctx context.Context, tx execer, a *achievement.Achievement) error {
	for i, att := range a.Attachments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, achievement_id, position, url, name, size)
			VALUES (?, ?, ?, ?, ?, ?)`,
			att.ID, a.ID, i, att.URL, att.Name, att.Size,
		)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return nil
}

// checkAffected turns a guarded write that touched nothing into NotFound or a
// write conflict.
func checkAffected(ctx context.Context, tx execer, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM achievements WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return achievement.ErrAchievementNotFound
	}
	if err != nil {
		return fmt.Errorf("check achievement: %w", err)
	}
	return achievement.ErrWriteConflict
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

const achievementColumns = `
	a.id, a.owner_id, a.title, a.body, a.type, a.status, a.score,
	a.reviewer_id, a.created_at, a.updated_at, a.submitted_at, a.version`

const decisionColumns = `
	d.id, d.achievement_id, d.reviewer_id, d.outcome, d.feedback, d.score, d.synthetic, d.decided_at`

// Get returns one achievement with its attachments.
func (s *Store) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+achievementColumns+` FROM achievements a WHERE a.id = ?`, id)
	a, err := scanAchievement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, achievement.ErrAchievementNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadAttachments(ctx, s.sqlDB, []*achievement.Achievement{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns one page of achievements and the total number matching filter.
// The count and the page come from one transaction.
func (s *Store) List(ctx context.Context, filter achievement.ListFilter, page shared.PageRequest) ([]*achievement.Achievement, int, error) {
	where, args := buildFilter(filter)

	var (
		items []*achievement.Achievement
		total int
	)
	err := s.read(ctx, func(q querier) error {
		if err := q.QueryRowContext(ctx, `SELECT count(*) FROM achievements a`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count achievements: %w", err)
		}

		rows, err := q.QueryContext(ctx,
			`SELECT `+achievementColumns+` FROM achievements a`+where+` ORDER BY `+orderClause(filter.Order)+` LIMIT ? OFFSET ?`,
			append(args, page.Limit(), page.Offset())...)
		if err != nil {
			return fmt.Errorf("list achievements: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAchievement(rows)
			if err != nil {
				return err
			}
			items = append(items, a)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate achievements: %w", err)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		return loadAttachments(ctx, q, items)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Decisions returns every decision for an achievement, newest first.
func (s *Store) Decisions(ctx context.Context, achievementID string) ([]achievement.ReviewDecision, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+decisionColumns+` FROM review_decisions d
		WHERE d.achievement_id = ?
		ORDER BY d.seq DESC`, achievementID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []achievement.ReviewDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestDecisions returns the newest decision for each id that has one.
func (s *Store) LatestDecisions(ctx context.Context, achievementIDs []string) (map[string]achievement.ReviewDecision, error) {
	out := make(map[string]achievement.ReviewDecision, len(achievementIDs))
	if len(achievementIDs) == 0 {
		return out, nil
	}

	placeholders, args := inClause(achievementIDs)
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+decisionColumns+` FROM review_decisions d
		WHERE d.seq IN (
			SELECT max(seq) FROM review_decisions
			WHERE achievement_id IN (`+placeholders+`)
			GROUP BY achievement_id
		)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out[d.AchievementID] = d
	}
	return out, rows.Err()
}

// OwnerFeed returns non-synthetic decisions on the owner's achievements, newest first.
func (s *Store) OwnerFeed(ctx context.Context, ownerID string, page shared.PageRequest) ([]achievement.FeedEntry, int, error) {
	var (
		out   []achievement.FeedEntry
		total int
	)
	err := s.read(ctx, func(q querier) error {
		err := q.QueryRowContext(ctx, `
			SELECT count(*) FROM review_decisions d
			JOIN achievements a ON a.id = d.achievement_id
			WHERE a.owner_id = ? AND d.synthetic = 0`, ownerID).Scan(&total)
		if err != nil {
			return fmt.Errorf("count feed: %w", err)
		}

		rows, err := q.QueryContext(ctx, `
			SELECT `+decisionColumns+`, a.title
			FROM review_decisions d
			JOIN achievements a ON a.id = d.achievement_id
			WHERE a.owner_id = ? AND d.synthetic = 0
			ORDER BY d.seq DESC
			LIMIT ? OFFSET ?`, ownerID, page.Limit(), page.Offset())
		if err != nil {
			return fmt.Errorf("query feed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var title string
			d, err := scanDecision(rows, &title)
			if err != nil {
				return err
			}
			out = append(out, achievement.FeedEntry{Decision: d, AchievementTitle: title})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByStatus returns the number of achievements per status.
func (s *Store) CountByStatus(ctx context.Context) (map[achievement.Status]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, count(*) FROM achievements GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[achievement.Status]int)
	for rows.Next() {
		var (
			raw string
			n   int
		)
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		st, err := achievement.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// read runs fn in one transaction so multi-statement reads see a single snapshot.
func (s *Store) read(ctx context.Context, fn func(querier) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadAttachments(ctx context.Context, q querier, items []*achievement.Achievement) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*achievement.Achievement, len(items))
	ids := make([]string, 0, len(items))
	for _, a := range items {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	placeholders, args := inClause(ids)
	rows, err := q.QueryContext(ctx, `
		SELECT id, achievement_id, url, name, size FROM attachments
		WHERE achievement_id IN (`+placeholders+`)
		ORDER BY achievement_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att achievement.Attachment
		if err := rows.Scan(&att.ID, &att.AchievementID, &att.URL, &att.Name, &att.Size); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if a := byID[att.AchievementID]; a != nil {
			a.Attachments = append(a.Attachments, att)
		}
	}
	return rows.Err()
}

func buildFilter(filter achievement.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.OwnerID != "" {
		clauses = append(clauses, "a.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		placeholders, statusArgs := inClause(statuses)
		clauses = append(clauses, "a.status IN ("+placeholders+")")
		args = append(args, statusArgs...)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(order achievement.ListOrder) string {
	switch order {
	case achievement.OrderSubmittedAsc:
		return "a.submitted_at ASC, a.id ASC"
	case achievement.OrderDecidedDesc:
		return "(SELECT max(d.seq) FROM review_decisions d WHERE d.achievement_id = a.id) DESC, a.id DESC"
	default:
		return "a.created_at DESC, a.id DESC"
	}
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAchievement(row rowScanner) (*achievement.Achievement, error) {
	var (
		a           achievement.Achievement
		rawType     string
		rawStatus   string
		score       sql.NullInt64
		reviewerID  sql.NullString
		createdAt   int64
		updatedAt   int64
		submittedAt sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Body, &rawType, &rawStatus, &score,
		&reviewerID, &createdAt, &updatedAt, &submittedAt, &a.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan achievement: %w", err)
	}

	if a.Type, err = achievement.ParseType(rawType); err != nil {
		return nil, err
	}
	if a.Status, err = achievement.ParseStatus(rawStatus); err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	a.ReviewerID = reviewerID.String
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	if submittedAt.Valid {
		t := fromMillis(submittedAt.Int64)
		a.SubmittedAt = &t
	}
	return &a, nil
}

func scanDecision(row rowScanner, extra ...any) (achievement.ReviewDecision, error) {
	var (
		d         achievement.ReviewDecision
		outcome   string
		score     sql.NullInt64
		synthetic int
		decidedAt int64
	)
	dest := append([]any{&d.ID, &d.AchievementID, &d.ReviewerID, &outcome, &d.Feedback,
		&score, &synthetic, &decidedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return d, fmt.Errorf("scan decision: %w", err)
	}
	var err error
	if d.Outcome, err = achievement.ParseOutcome(outcome); err != nil {
		return d, err
	}
	if score.Valid {
		v := int(score.Int64)
		d.Score = &v
	}
	d.Synthetic = synthetic != 0
	d.DecidedAt = fromMillis(decidedAt)
	return d, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
