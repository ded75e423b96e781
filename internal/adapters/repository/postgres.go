package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/metrics"
)

// Open connects to Postgres through the pgx database/sql driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresStore implements Store on the schema in migrations/.
type PostgresStore struct {
	db        *sql.DB
	publisher Publisher
	now       func() time.Time
	newID     func() string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database. Run ApplyMigrations first.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:        db,
		publisher: PublisherFunc(func(context.Context, model.Change) {}),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     defaultID,
	}
}

// SetPublisher routes committed changes to p.
func (s *PostgresStore) SetPublisher(p Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// DB exposes the underlying handle for tests and tooling.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) publish(ctx context.Context, changes ...model.Change) {
	for _, c := range changes {
		s.publisher.Publish(ctx, c)
	}
}

func (s *PostgresStore) observe(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Milliseconds()))
}

// mapError translates driver errors into the package sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.SQLState() {
	case "23505":
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case "23503":
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case "42501", "55000":
		return fmt.Errorf("%s: %w: %s", op, ErrPermission, pgErr.Message)
	case "42P01", "42703", "42883":
		hint := pgErr.Hint
		if hint == "" {
			hint = "apply the embedded migrations"
		}
		return fmt.Errorf("%s: %w", op, &PreconditionError{Hint: hint, Err: errors.New(pgErr.Message)})
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const ideaColumns = `id, title, description, area, impact, status, score,
	author_id, author_name, author_email, manager_id, manager_name,
	array_to_string(search_prefixes, ' '), created_at, updated_at`

func scanIdea(row rowScanner) (model.Idea, error) {
	var (
		idea        model.Idea
		managerID   sql.NullString
		managerName sql.NullString
		prefixes    string
	)
	err := row.Scan(
		&idea.ID, &idea.Title, &idea.Description, &idea.Area, &idea.Impact, &idea.Status, &idea.Score,
		&idea.AuthorID, &idea.AuthorName, &idea.AuthorEmail, &managerID, &managerName,
		&prefixes, &idea.CreatedAt, &idea.UpdatedAt,
	)
	if err != nil {
		return model.Idea{}, err
	}
	if managerID.Valid {
		idea.ManagerID = model.StrPtr(managerID.String)
	}
	if managerName.Valid {
		idea.ManagerName = model.StrPtr(managerName.String)
	}
	idea.SearchPrefixes = strings.Fields(prefixes)
	return idea, nil
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func prefixesArg(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

// Ideas

func (s *PostgresStore) CreateIdea(ctx context.Context, idea *model.Idea) error {
	defer s.observe("create_idea", time.Now())
	if idea.ID == "" {
		idea.ID = s.newID()
	}
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = s.now()
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = idea.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ideas (id, title, description, area, impact, status, score,
			author_id, author_name, author_email, manager_id, manager_name,
			search_prefixes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text[], $14, $15)
	`, idea.ID, idea.Title, idea.Description, idea.Area, string(idea.Impact), string(idea.Status), idea.Score,
		idea.AuthorID, idea.AuthorName, idea.AuthorEmail, nullable(idea.ManagerID), nullable(idea.ManagerName),
		prefixesArg(idea.SearchPrefixes), idea.CreatedAt, idea.UpdatedAt)
	if err != nil {
		return mapError("create idea", err)
	}
	s.publish(ctx, model.NewChange(model.CollectionIdeas, idea.ID, idea.ID, model.OpCreate))
	return nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, id string) (model.Idea, error) {
	defer s.observe("get_idea", time.Now())
	idea, err := scanIdea(s.db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = $1`, id))
	if err != nil {
		return model.Idea{}, mapError("get idea "+id, err)
	}
	return idea, nil
}

func (s *PostgresStore) UpdateIdea(ctx context.Context, id string, mutate func(*model.Idea) error) (model.Idea, error) {
	defer s.observe("update_idea", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Idea{}, fmt.Errorf("begin update idea: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanIdea(tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Idea{}, mapError("load idea "+id, err)
	}
	draft := current
	if err := mutate(&draft); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return current, err
		}
		return model.Idea{}, err
	}
	draft.ID = id
	draft.CreatedAt = current.CreatedAt
	draft.UpdatedAt = s.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE ideas SET title = $2, description = $3, area = $4, impact = $5, status = $6,
			manager_id = $7, manager_name = $8, search_prefixes = $9::text[], updated_at = $10
		WHERE id = $1
	`, id, draft.Title, draft.Description, draft.Area, string(draft.Impact), string(draft.Status),
		nullable(draft.ManagerID), nullable(draft.ManagerName), prefixesArg(draft.SearchPrefixes), draft.UpdatedAt)
	if err != nil {
		return model.Idea{}, mapError("update idea "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Idea{}, fmt.Errorf("commit update idea: %w", err)
	}
	// Score is owned by ToggleVote and never written here.
	draft.Score = current.Score
	s.publish(ctx, model.NewChange(model.CollectionIdeas, id, id, model.OpUpdate))
	return draft, nil
}

// whereClause renders the filter as SQL conditions starting at placeholder $1.
func whereClause(f model.IdeaFilter, prefix string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Area != "" {
		add("area = $%d", f.Area)
	}
	if f.ManagerID != "" {
		add("manager_id = $%d", f.ManagerID)
	}
	if f.AuthorID != "" {
		add("author_id = $%d", f.AuthorID)
	}
	if f.UpdatedSince != nil {
		add("updated_at >= $%d", *f.UpdatedSince)
	}
	if prefix != "" {
		add("search_prefixes @> ARRAY[$%d::text]", prefix)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) collectIdeas(ctx context.Context, op, query string, args ...any) ([]model.Idea, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []model.Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, idea)
	}
	return out, mapError(op, rows.Err())
}

func (s *PostgresStore) QueryIdeas(ctx context.Context, q model.IdeaQuery) (model.IdeaPage, error) {
	defer s.observe("query_ideas", time.Now())
	if q.Limit <= 0 {
		return model.IdeaPage{}, ErrInvalidLimit
	}
	where, args := whereClause(q.IdeaFilter, q.Prefix)
	if q.After != nil {
		args = append(args, q.After.CreatedAt, q.After.ID)
		cond := fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args))
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	args = append(args, q.Limit)
	query := `SELECT ` + ideaColumns + ` FROM ideas` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	items, err := s.collectIdeas(ctx, "query ideas", query, args...)
	if err != nil {
		return model.IdeaPage{}, err
	}
	page := model.IdeaPage{Items: items}
	if page.Items == nil {
		page.Items = []model.Idea{}
	}
	if len(page.Items) == q.Limit {
		page.Next = model.CursorOf(&page.Items[len(page.Items)-1])
	}
	return page, nil
}

func (s *PostgresStore) CountIdeas(ctx context.Context, f model.IdeaFilter) (int, error) {
	defer s.observe("count_ideas", time.Now())
	where, args := whereClause(f, "")
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ideas`+where, args...).Scan(&n); err != nil {
		return 0, mapError("count ideas", err)
	}
	return n, nil
}

func (s *PostgresStore) ScanIdeas(ctx context.Context, fn func(model.Idea) error) error {
	defer s.observe("scan_ideas", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+ideaColumns+` FROM ideas`)
	if err != nil {
		return mapError("scan ideas", err)
	}
	defer rows.Close()
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return mapError("scan ideas", err)
		}
		if err := fn(idea); err != nil {
			return err
		}
	}
	return mapError("scan ideas", rows.Err())
}

func (s *PostgresStore) TopIdeasByScore(ctx context.Context, n int) ([]model.Idea, error) {
	defer s.observe("top_ideas", time.Now())
	return s.collectIdeas(ctx, "top ideas",
		`SELECT `+ideaColumns+` FROM ideas ORDER BY score DESC, created_at DESC, id DESC LIMIT $1`, n)
}

func (s *PostgresStore) RecentlyUpdated(ctx context.Context, f model.IdeaFilter, n int) ([]model.Idea, error) {
	defer s.observe("recent_ideas", time.Now())
	where, args := whereClause(f, "")
	args = append(args, n)
	return s.collectIdeas(ctx, "recent ideas",
		`SELECT `+ideaColumns+` FROM ideas`+where+fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT $%d`, len(args)),
		args...)
}

// Votes

func (s *PostgresStore) ToggleVote(ctx context.Context, ideaID, userID string, at time.Time) (bool, int, error) {
	defer s.observe("toggle_vote", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin toggle vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var score int
	if err := tx.QueryRowContext(ctx, `SELECT score FROM ideas WHERE id = $1 FOR UPDATE`, ideaID).Scan(&score); err != nil {
		return false, 0, mapError("lock idea "+ideaID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE idea_id = $1 AND user_id = $2`, ideaID, userID)
	if err != nil {
		return false, 0, mapError("remove vote", err)
	}
	removed, _ := res.RowsAffected()

	delta, op := -1, model.OpDelete
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO votes (idea_id, user_id, value, created_at) VALUES ($1, $2, 1, $3)`,
			ideaID, userID, at); err != nil {
			return false, 0, mapError("add vote", err)
		}
		delta, op = 1, model.OpCreate
	}
	if err := tx.QueryRowContext(ctx,
		`UPDATE ideas SET score = score + $2 WHERE id = $1 RETURNING score`, ideaID, delta).Scan(&score); err != nil {
		return false, 0, mapError("update score", err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit toggle vote: %w", err)
	}

	s.publish(ctx,
		model.NewChange(model.CollectionVotes, ideaID, userID, op),
		model.NewChange(model.CollectionIdeas, ideaID, ideaID, model.OpUpdate),
	)
	return delta > 0, score, nil
}

func (s *PostgresStore) HasVote(ctx context.Context, ideaID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE idea_id = $1 AND user_id = $2)`, ideaID, userID).Scan(&exists)
	return exists, mapError("has vote", err)
}

func (s *PostgresStore) CountVotes(ctx context.Context, ideaID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE idea_id = $1`, ideaID).Scan(&n)
	return n, mapError("count votes", err)
}

// Comments

func (s *PostgresStore) AddComment(ctx context.Context, c *model.Comment) error {
	defer s.observe("add_comment", time.Now())
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, idea_id, text, author_id, author_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.IdeaID, c.Text, c.AuthorID, c.AuthorName, c.CreatedAt)
	if err != nil {
		return mapError("add comment", err)
	}
	s.publish(ctx, model.NewChange(model.CollectionComments, c.IdeaID, c.ID, model.OpCreate))
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, ideaID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, text, author_id, author_name, created_at
		FROM comments WHERE idea_id = $1 ORDER BY created_at DESC
	`, ideaID)
	if err != nil {
		return nil, mapError("list comments", err)
	}
	defer rows.Close()
	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.IdeaID, &c.Text, &c.AuthorID, &c.AuthorName, &c.CreatedAt); err != nil {
			return nil, mapError("list comments", err)
		}
		out = append(out, c)
	}
	return out, mapError("list comments", rows.Err())
}

func (s *PostgresStore) DeleteComment(ctx context.Context, ideaID, commentID, authorID string) error {
	defer s.observe("delete_comment", time.Now())
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT author_id FROM comments WHERE id = $1 AND idea_id = $2`, commentID, ideaID).Scan(&owner)
	if err != nil {
		return mapError("comment "+commentID, err)
	}
	if owner != authorID {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotOwner)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1 AND idea_id = $2 AND author_id = $3`, commentID, ideaID, authorID)
	if err != nil {
		return mapError("delete comment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	s.publish(ctx, model.NewChange(model.CollectionComments, ideaID, commentID, model.OpDelete))
	return nil
}

// History

func (s *PostgresStore) AppendHistory(ctx context.Context, e *model.HistoryEntry) error {
	defer s.observe("append_history", time.Now())
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, idea_id, kind, from_value, to_value, actor_id, actor_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.IdeaID, string(e.Kind), nullable(e.From), nullable(e.To), e.ActorID, e.ActorName, e.CreatedAt)
	if err != nil {
		return mapError("append history", err)
	}
	s.publish(ctx, model.NewChange(model.CollectionHistory, e.IdeaID, e.ID, model.OpCreate))
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, ideaID string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, kind, from_value, to_value, actor_id, actor_name, created_at
		FROM history WHERE idea_id = $1 ORDER BY seq DESC
	`, ideaID)
	if err != nil {
		return nil, mapError("list history", err)
	}
	defer rows.Close()
	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e        model.HistoryEntry
			from, to sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.IdeaID, &e.Kind, &from, &to, &e.ActorID, &e.ActorName, &e.CreatedAt); err != nil {
			return nil, mapError("list history", err)
		}
		if from.Valid {
			e.From = model.StrPtr(from.String)
		}
		if to.Valid {
			e.To = model.StrPtr(to.String)
		}
		out = append(out, e)
	}
	return out, mapError("list history", rows.Err())
}

// Rewards

const rewardColumns = `idea_id, amount, to_user_id, created_by, created_at`

func scanReward(row rowScanner) (model.Reward, error) {
	var r model.Reward
	err := row.Scan(&r.IdeaID, &r.Amount, &r.ToUserID, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

func (s *PostgresStore) collectRewards(ctx context.Context, op, query string, args ...any) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, r)
	}
	return out, mapError(op, rows.Err())
}

func (s *PostgresStore) CreateRewardIfAbsent(ctx context.Context, r model.Reward) (model.Reward, bool, error) {
	defer s.observe("create_reward", time.Now())
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idea_id) DO NOTHING
	`, r.IdeaID, r.Amount, r.ToUserID, r.CreatedBy, r.CreatedAt)
	if err != nil {
		return model.Reward{}, false, mapError("create reward", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.GetReward(ctx, r.IdeaID)
		return existing, false, err
	}
	s.publish(ctx, model.NewChange(model.CollectionRewards, r.IdeaID, "award", model.OpCreate))
	return r, true, nil
}

func (s *PostgresStore) GetReward(ctx context.Context, ideaID string) (model.Reward, error) {
	r, err := scanReward(s.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE idea_id = $1`, ideaID))
	if err != nil {
		return model.Reward{}, mapError("reward "+ideaID, err)
	}
	return r, nil
}

func (s *PostgresStore) RewardsFor(ctx context.Context, ideaIDs []string) (map[string]model.Reward, error) {
	out := make(map[string]model.Reward, len(ideaIDs))
	if len(ideaIDs) == 0 {
		return out, nil
	}
	list, err := s.collectRewards(ctx, "rewards for ideas",
		`SELECT `+rewardColumns+` FROM rewards WHERE idea_id = ANY($1::text[])`, ideaIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		out[r.IdeaID] = r
	}
	return out, nil
}

func (s *PostgresStore) ListRewards(ctx context.Context, from, to time.Time) ([]model.Reward, error) {
	defer s.observe("list_rewards", time.Now())
	return s.collectRewards(ctx, "list rewards",
		`SELECT `+rewardColumns+` FROM rewards WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
}

func (s *PostgresStore) RewardsForUser(ctx context.Context, userID string) ([]model.Reward, error) {
	return s.collectRewards(ctx, "rewards for user",
		`SELECT `+rewardColumns+` FROM rewards WHERE to_user_id = $1`, userID)
}

// Invites

const inviteColumns = `code, role, email, created_at, expires_at, used, used_by, used_at, created_by`

func scanInvite(row rowScanner) (model.Invite, error) {
	var (
		inv    model.Invite
		usedBy sql.NullString
		usedAt sql.NullTime
	)
	if err := row.Scan(&inv.Code, &inv.Role, &inv.Email, &inv.CreatedAt, &inv.ExpiresAt,
		&inv.Used, &usedBy, &usedAt, &inv.CreatedBy); err != nil {
		return model.Invite{}, err
	}
	if usedBy.Valid {
		inv.UsedBy = model.StrPtr(usedBy.String)
	}
	if usedAt.Valid {
		at := usedAt.Time
		inv.UsedAt = &at
	}
	return inv, nil
}

func (s *PostgresStore) CreateInvite(ctx context.Context, inv model.Invite) error {
	defer s.observe("create_invite", time.Now())
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (code, role, email, created_at, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.Code, string(inv.Role), inv.Email, inv.CreatedAt, inv.ExpiresAt, inv.CreatedBy)
	if err != nil {
		return mapError("invite "+inv.Code, err)
	}
	s.publish(ctx, model.NewChange(model.CollectionInvites, "", inv.Code, model.OpCreate))
	return nil
}

func (s *PostgresStore) ListInvites(ctx context.Context) ([]model.Invite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+inviteColumns+` FROM invites ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, mapError("list invites", err)
	}
	defer rows.Close()
	var out []model.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, mapError("list invites", err)
		}
		out = append(out, inv)
	}
	return out, mapError("list invites", rows.Err())
}

func (s *PostgresStore) RedeemInvite(ctx context.Context, r Redemption) (model.Invite, model.User, error) {
	defer s.observe("redeem_invite", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Invite{}, model.User{}, fmt.Errorf("begin redeem invite: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := scanInvite(tx.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code = $1 FOR UPDATE`, r.Code))
	if err != nil {
		return model.Invite{}, model.User{}, mapError("invite "+r.Code, err)
	}
	if err := checkRedeemable(&inv, r); err != nil {
		return model.Invite{}, model.User{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE invites SET used = TRUE, used_by = $2, used_at = $3 WHERE code = $1`, inv.Code, r.UserID, r.At); err != nil {
		return model.Invite{}, model.User{}, mapError("use invite", err)
	}
	user, err := scanUser(tx.QueryRowContext(ctx, `
		INSERT INTO users (id, email, role, invite_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, invite_code = EXCLUDED.invite_code, updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		r.UserID, r.Email, string(inv.Role), inv.Code, r.At))
	if err != nil {
		return model.Invite{}, model.User{}, mapError("grant role", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Invite{}, model.User{}, fmt.Errorf("commit redeem invite: %w", err)
	}

	inv.Used = true
	inv.UsedBy = model.StrPtr(r.UserID)
	at := r.At
	inv.UsedAt = &at
	s.publish(ctx,
		model.NewChange(model.CollectionInvites, "", inv.Code, model.OpUpdate),
		model.NewChange(model.CollectionUsers, "", user.ID, model.OpUpdate),
	)
	return inv, user, nil
}

// Users

const userColumns = `id, email, display_name, username, role, invite_code, created_at, updated_at`

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Username, &u.Role, &u.InviteCode, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, mapError("user "+id, err)
	}
	return u, nil
}

func (s *PostgresStore) EnsureUser(ctx context.Context, u model.User) (model.User, error) {
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, username, role, invite_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Email, u.DisplayName, u.Username, string(u.Role), u.InviteCode, u.CreatedAt, now)
	if err != nil {
		return model.User{}, mapError("ensure user", err)
	}
	stored, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return model.User{}, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(ctx, model.NewChange(model.CollectionUsers, "", u.ID, model.OpCreate))
	}
	return stored, nil
}

func (s *PostgresStore) UpdateDisplayName(ctx context.Context, id, name string, at time.Time) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`UPDATE users SET display_name = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns, id, name, at))
	if err != nil {
		return model.User{}, mapError("user "+id, err)
	}
	s.publish(ctx, model.NewChange(model.CollectionUsers, "", id, model.OpUpdate))
	return u, nil
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return s.collectUsers(ctx, "users by role",
		`SELECT `+userColumns+` FROM users WHERE role = $1
		ORDER BY LOWER(COALESCE(NULLIF(display_name, ''), NULLIF(username, ''), NULLIF(email, ''), id))`, string(role))
}

func (s *PostgresStore) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	list, err := s.collectUsers(ctx, "get users", `SELECT `+userColumns+` FROM users WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func (s *PostgresStore) collectUsers(ctx context.Context, op, query string, args ...any) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, u)
	}
	return out, mapError(op, rows.Err())
}
