package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementStore implements achievement.Store for PostgreSQL.
type AchievementStore struct {
	conn *Connection
}

// NewAchievementStore creates a new AchievementStore.
func NewAchievementStore(conn *Connection) *AchievementStore {
	return &AchievementStore{conn: conn}
}

var _ achievement.Store = (*AchievementStore)(nil)

const achievementColumns = `
	a.id, a.owner_id, a.title, a.body, a.type, a.status, a.score,
	a.reviewer_id, a.created_at, a.updated_at, a.submitted_at, a.version`

const decisionColumns = `
	d.id, d.achievement_id, d.reviewer_id, d.outcome, d.feedback, d.score, d.synthetic, d.decided_at`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Apply executes the change in a single read-committed transaction.
func (s *AchievementStore) Apply(ctx context.Context, change achievement.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		a := change.Achievement

		switch change.Kind {
		case achievement.ChangeInsert:
			if err := insertAchievement(ctx, tx, a, change.NextVersion()); err != nil {
				return err
			}
			if err := insertAttachments(ctx, tx, a.ID, a.Attachments); err != nil {
				return err
			}

		case achievement.ChangeUpdate:
			tag, err := tx.Exec(ctx, `
				UPDATE achievements SET
					title = $2, body = $3, type = $4, status = $5, score = $6,
					reviewer_id = $7, updated_at = $8, submitted_at = $9, version = $10
				WHERE id = $1 AND version = $11 AND status = $12
			`,
				a.ID, a.Title, a.Body, string(a.Type), string(a.Status), a.Score,
				nullString(a.ReviewerID), a.UpdatedAt, a.SubmittedAt, change.NextVersion(),
				change.ExpectedVersion, string(change.ExpectedStatus),
			)
			if err != nil {
				return fmt.Errorf("failed to update achievement: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return missingOrConflict(ctx, tx, a.ID)
			}
			if change.ReplaceAttachments {
				if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE achievement_id = $1`, a.ID); err != nil {
					return fmt.Errorf("failed to clear attachments: %w", err)
				}
				if err := insertAttachments(ctx, tx, a.ID, a.Attachments); err != nil {
					return err
				}
			}

		case achievement.ChangeDelete:
			if _, err := tx.Exec(ctx, `DELETE FROM review_decisions WHERE achievement_id = $1`, a.ID); err != nil {
				return fmt.Errorf("failed to delete decisions: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE achievement_id = $1`, a.ID); err != nil {
				return fmt.Errorf("failed to delete attachments: %w", err)
			}
			tag, err := tx.Exec(ctx, `DELETE FROM achievements WHERE id = $1 AND version = $2 AND status = $3`,
				a.ID, change.ExpectedVersion, string(change.ExpectedStatus))
			if err != nil {
				return fmt.Errorf("failed to delete achievement: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return missingOrConflict(ctx, tx, a.ID)
			}
		}

		if change.Decision != nil {
			if err := insertDecision(ctx, tx, change.Decision); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertAchievement(ctx context.Context, q Querier, a *achievement.Achievement, version int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO achievements (
			id, owner_id, title, body, type, status, score,
			reviewer_id, created_at, updated_at, submitted_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		a.ID, a.OwnerID, a.Title, a.Body, string(a.Type), string(a.Status), a.Score,
		nullString(a.ReviewerID), a.CreatedAt, a.UpdatedAt, a.SubmittedAt, version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert achievement: %w", err)
	}
	return nil
}

func insertAttachments(ctx context.Context, q Querier, achievementID string, attachments []achievement.Attachment) error {
	for i, att := range attachments {
		_, err := q.Exec(ctx, `
			INSERT INTO attachments (id, achievement_id, position, url, name, size)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, att.ID, achievementID, i, att.URL, att.Name, att.Size)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}
	return nil
}

func insertDecision(ctx context.Context, q Querier, d *achievement.ReviewDecision) error {
	_, err := q.Exec(ctx, `
		INSERT INTO review_decisions (
			id, achievement_id, reviewer_id, outcome, feedback, score, synthetic, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.AchievementID, d.ReviewerID, string(d.Outcome), d.Feedback, d.Score, d.Synthetic, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to insert review decision: %w", err)
	}
	return nil
}

// missingOrConflict tells a vanished row from a lost compare-and-set.
func missingOrConflict(ctx context.Context, q Querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM achievements WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check achievement: %w", err)
	}
	if !exists {
		return achievement.ErrAchievementNotFound
	}
	return achievement.ErrWriteConflict
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns one achievement with its attachments.
func (s *AchievementStore) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+achievementColumns+` FROM achievements a WHERE a.id = $1`, id)
	a, err := scanAchievement(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, achievement.ErrAchievementNotFound
		}
		return nil, err
	}

	if err := loadAttachments(ctx, s.conn, []*achievement.Achievement{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns one page of achievements and the total number matching filter.
// The count and the page come from one read-only transaction.
func (s *AchievementStore) List(ctx context.Context, filter achievement.ListFilter, page shared.PageRequest) ([]*achievement.Achievement, int, error) {
	where, args := buildFilter(filter)

	var (
		items []*achievement.Achievement
		total int
	)
	err := s.conn.ReadTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM achievements a`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count achievements: %w", err)
		}

		query := fmt.Sprintf(`SELECT %s FROM achievements a%s ORDER BY %s LIMIT $%d OFFSET $%d`,
			achievementColumns, where, orderClause(filter.Order), len(args)+1, len(args)+2)
		rows, err := tx.Query(ctx, query, append(args, page.Limit(), page.Offset())...)
		if err != nil {
			return fmt.Errorf("failed to list achievements: %w", err)
		}
		items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*achievement.Achievement, error) {
			return scanAchievement(row)
		})
		if err != nil {
			return fmt.Errorf("failed to iterate achievements: %w", err)
		}
		return loadAttachments(ctx, tx, items)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Decisions returns every decision for an achievement, newest first.
func (s *AchievementStore) Decisions(ctx context.Context, achievementID string) ([]achievement.ReviewDecision, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+decisionColumns+` FROM review_decisions d
		WHERE d.achievement_id = $1
		ORDER BY d.seq DESC
	`, achievementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
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
func (s *AchievementStore) LatestDecisions(ctx context.Context, achievementIDs []string) (map[string]achievement.ReviewDecision, error) {
	out := make(map[string]achievement.ReviewDecision, len(achievementIDs))
	if len(achievementIDs) == 0 {
		return out, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT ON (d.achievement_id) `+decisionColumns+`
		FROM review_decisions d
		WHERE d.achievement_id = ANY($1)
		ORDER BY d.achievement_id, d.seq DESC
	`, achievementIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest decisions: %w", err)
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
func (s *AchievementStore) OwnerFeed(ctx context.Context, ownerID string, page shared.PageRequest) ([]achievement.FeedEntry, int, error) {
	var (
		out   []achievement.FeedEntry
		total int
	)
	err := s.conn.ReadTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT count(*) FROM review_decisions d
			JOIN achievements a ON a.id = d.achievement_id
			WHERE a.owner_id = $1 AND NOT d.synthetic
		`, ownerID).Scan(&total)
		if err != nil {
			return fmt.Errorf("failed to count feed: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT `+decisionColumns+`, a.title
			FROM review_decisions d
			JOIN achievements a ON a.id = d.achievement_id
			WHERE a.owner_id = $1 AND NOT d.synthetic
			ORDER BY d.seq DESC
			LIMIT $2 OFFSET $3
		`, ownerID, page.Limit(), page.Offset())
		if err != nil {
			return fmt.Errorf("failed to query feed: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.FeedEntry, error) {
			var e achievement.FeedEntry
			d, err := scanDecision(row, &e.AchievementTitle)
			e.Decision = d
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByStatus returns the number of achievements per status.
func (s *AchievementStore) CountByStatus(ctx context.Context) (map[achievement.Status]int, error) {
	rows, err := s.conn.Query(ctx, `SELECT status, count(*) FROM achievements GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[achievement.Status]int)
	for rows.Next() {
		var (
			raw string
			n   int
		)
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		st, err := achievement.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Ping checks database connectivity.
func (s *AchievementStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// rowsQuerier is satisfied by Connection and pgx.Tx.
type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadAttachments(ctx context.Context, q rowsQuerier, items []*achievement.Achievement) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*achievement.Achievement, len(items))
	ids := make([]string, 0, len(items))
	for _, a := range items {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, achievement_id, url, name, size FROM attachments
		WHERE achievement_id = ANY($1)
		ORDER BY achievement_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att achievement.Attachment
		if err := rows.Scan(&att.ID, &att.AchievementID, &att.URL, &att.Name, &att.Size); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if a := byID[att.AchievementID]; a != nil {
			a.Attachments = append(a.Attachments, att)
		}
	}
	return rows.Err()
}

func buildFilter(filter achievement.ListFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("a.owner_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func orderClause(order achievement.ListOrder) string {
	switch order {
	case achievement.OrderSubmittedAsc:
		return "a.submitted_at ASC, a.id ASC"
	case achievement.OrderDecidedDesc:
		return "(SELECT max(d.seq) FROM review_decisions d WHERE d.achievement_id = a.id) DESC NULLS LAST, a.id DESC"
	default:
		return "a.created_at DESC, a.id DESC"
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAchievement(row rowScanner) (*achievement.Achievement, error) {
	var (
		a           achievement.Achievement
		rawType     string
		rawStatus   string
		reviewerID  *string
		submittedAt *time.Time
	)
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Body, &rawType, &rawStatus, &a.Score,
		&reviewerID, &a.CreatedAt, &a.UpdatedAt, &submittedAt, &a.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan achievement: %w", err)
	}

	if a.Type, err = achievement.ParseType(rawType); err != nil {
		return nil, err
	}
	if a.Status, err = achievement.ParseStatus(rawStatus); err != nil {
		return nil, err
	}
	if reviewerID != nil {
		a.ReviewerID = *reviewerID
	}
	if submittedAt != nil {
		t := submittedAt.UTC()
		a.SubmittedAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanDecision(row rowScanner, extra ...any) (achievement.ReviewDecision, error) {
	var (
		d       achievement.ReviewDecision
		outcome string
	)
	dest := append([]any{&d.ID, &d.AchievementID, &d.ReviewerID, &outcome, &d.Feedback,
		&d.Score, &d.Synthetic, &d.DecidedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return d, fmt.Errorf("failed to scan decision: %w", err)
	}
	var err error
	if d.Outcome, err = achievement.ParseOutcome(outcome); err != nil {
		return d, err
	}
	d.DecidedAt = d.DecidedAt.UTC()
	return d, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
