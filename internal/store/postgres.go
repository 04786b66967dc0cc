package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/personalrecord"
	"fitQuestAPI/internal/stats"
)

//go:embed schema.sql
var Schema string

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore opens a tuned connection pool and pings it.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStoreFromPool(pool), nil
}

func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}

// WithUserTx serializes per user with a transaction-scoped advisory lock, so
// the first transaction for a user without a stats row is covered too.
func (s *PostgresStore) WithUserTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID.String()); err != nil {
		return fmt.Errorf("failed to lock user: %w", mapErr(err))
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return mapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", mapErr(err))
	}
	return nil
}

type pgTx struct {
	q querier
}

const statsColumns = `user_id, total_workouts, total_workout_seconds, total_prs, total_meals_logged,
	total_friends, total_goals_completed, weight_goals_completed, strength_goals_completed,
	cardio_goals_completed, current_streak, longest_streak, last_workout_date, created_at, updated_at`

func scanStats(row pgx.Row) (*stats.UserStatsRecord, error) {
	rec := &stats.UserStatsRecord{}
	err := row.Scan(
		&rec.UserID,
		&rec.TotalWorkouts,
		&rec.TotalWorkoutSeconds,
		&rec.TotalPRs,
		&rec.TotalMealsLogged,
		&rec.TotalFriends,
		&rec.TotalGoalsCompleted,
		&rec.WeightGoalsCompleted,
		&rec.StrengthGoalsCompleted,
		&rec.CardioGoalsCompleted,
		&rec.CurrentStreak,
		&rec.LongestStreak,
		&rec.LastWorkoutDate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}

func (t *pgTx) LockStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	return scanStats(t.q.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) CreateStats(ctx context.Context, rec *stats.UserStatsRecord) error {
	query := `
		INSERT INTO user_stats (` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := t.q.Exec(ctx, query,
		rec.UserID, rec.TotalWorkouts, rec.TotalWorkoutSeconds, rec.TotalPRs, rec.TotalMealsLogged,
		rec.TotalFriends, rec.TotalGoalsCompleted, rec.WeightGoalsCompleted, rec.StrengthGoalsCompleted,
		rec.CardioGoalsCompleted, rec.CurrentStreak, rec.LongestStreak, rec.LastWorkoutDate,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create stats: %w", mapErr(err))
	}
	return nil
}

func (t *pgTx) SaveStats(ctx context.Context, rec *stats.UserStatsRecord) error {
	query := `
		UPDATE user_stats SET
			total_workouts = $2,
			total_workout_seconds = $3,
			total_prs = $4,
			total_meals_logged = $5,
			total_friends = $6,
			total_goals_completed = $7,
			weight_goals_completed = $8,
			strength_goals_completed = $9,
			cardio_goals_completed = $10,
			current_streak = $11,
			longest_streak = $12,
			last_workout_date = $13,
			updated_at = $14
		WHERE user_id = $1
	`
	tag, err := t.q.Exec(ctx, query,
		rec.UserID, rec.TotalWorkouts, rec.TotalWorkoutSeconds, rec.TotalPRs, rec.TotalMealsLogged,
		rec.TotalFriends, rec.TotalGoalsCompleted, rec.WeightGoalsCompleted, rec.StrengthGoalsCompleted,
		rec.CardioGoalsCompleted, rec.CurrentStreak, rec.LongestStreak, rec.LastWorkoutDate, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stats for user %s: %w", rec.UserID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, mapErr(err)
}

func (t *pgTx) WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error) {
	return workoutDates(ctx, t.q, userID)
}

func workoutDates(ctx context.Context, q querier, userID uuid.UUID) ([]time.Time, error) {
	rows, err := q.Query(ctx, `
		SELECT completed_at FROM workouts
		WHERE user_id = $1 AND status = 'completed' AND completed_at IS NOT NULL
		ORDER BY completed_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workout dates: %w", mapErr(err))
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan workout date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (t *pgTx) WorkoutTotals(ctx context.Context, userID uuid.UUID) (int, int64, error) {
	var count int
	var seconds int64
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0)::bigint
		FROM workouts WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&count, &seconds)
	return count, seconds, mapErr(err)
}

func (t *pgTx) count(ctx context.Context, query string, userID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, query, userID).Scan(&n)
	return n, mapErr(err)
}

func (t *pgTx) CountPRs(ctx context.Context, userID uuid.UUID) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM personal_records WHERE user_id = $1`, userID)
}

func (t *pgTx) CountMeals(ctx context.Context, userID uuid.UUID) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM meal_logs WHERE user_id = $1`, userID)
}

const friendIDs = `
	SELECT friend_id AS id FROM friendships WHERE user_id = $1 AND status = 'accepted'
	UNION
	SELECT user_id AS id FROM friendships WHERE friend_id = $1 AND status = 'accepted'
`

func (t *pgTx) CountFriends(ctx context.Context, userID uuid.UUID) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM (`+friendIDs+`) f`, userID)
}

func (t *pgTx) GoalTotals(ctx context.Context, userID uuid.UUID) (stats.GoalTotals, error) {
	var g stats.GoalTotals
	err := t.q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE goal_type IN ('WEIGHT_LOSS', 'WEIGHT_GAIN')),
			COUNT(*) FILTER (WHERE goal_type = 'EXERCISE_STRENGTH'),
			COUNT(*) FILTER (WHERE goal_type IN ('CARDIO_TIME', 'CARDIO_DISTANCE'))
		FROM goals WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&g.Total, &g.Weight, &g.Strength, &g.Cardio)
	return g, mapErr(err)
}

func listStates(ctx context.Context, q querier, userID uuid.UUID) ([]achievement.UserAchievementState, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, achievement_id, current_progress, is_unlocked, unlocked_at,
			notification_sent, notification_claimed_at, created_at, updated_at
		FROM user_achievements WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievement states: %w", mapErr(err))
	}
	defer rows.Close()

	var states []achievement.UserAchievementState
	for rows.Next() {
		var st achievement.UserAchievementState
		err := rows.Scan(
			&st.UserID,
			&st.AchievementID,
			&st.CurrentProgress,
			&st.IsUnlocked,
			&st.UnlockedAt,
			&st.NotificationSent,
			&st.NotificationClaimedAt,
			&st.CreatedAt,
			&st.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (t *pgTx) AchievementStates(ctx context.Context, userID uuid.UUID) (map[string]achievement.UserAchievementState, error) {
	states, err := listStates(ctx, t.q, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]achievement.UserAchievementState, len(states))
	for _, st := range states {
		out[st.AchievementID] = st
	}
	return out, nil
}

func (t *pgTx) UpdateProgress(ctx context.Context, userID uuid.UUID, achievementID string, progress float64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, current_progress)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO UPDATE
		SET current_progress = EXCLUDED.current_progress, updated_at = NOW()
		WHERE user_achievements.is_unlocked = FALSE
	`, userID, achievementID, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", mapErr(err))
	}
	return nil
}

func (t *pgTx) Unlock(ctx context.Context, userID uuid.UUID, achievementID string, progress float64, at time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, current_progress, is_unlocked, unlocked_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (user_id, achievement_id) DO UPDATE
		SET is_unlocked = TRUE,
			unlocked_at = EXCLUDED.unlocked_at,
			current_progress = EXCLUDED.current_progress,
			updated_at = NOW()
		WHERE user_achievements.is_unlocked = FALSE
	`, userID, achievementID, progress, at)
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) RecordStreakMilestone(ctx context.Context, userID uuid.UUID, milestone int, startedOn time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO streak_milestones (user_id, milestone, streak_started_on)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, milestone, civilDate(startedOn))
	if err != nil {
		return false, fmt.Errorf("failed to record streak milestone: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	return scanStats(s.pool.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1`, userID))
}

func (s *PostgresStore) ListAchievementStates(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievementState, error) {
	return listStates(ctx, s.pool, userID)
}

func (s *PostgresStore) WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error) {
	return workoutDates(ctx, s.pool, userID)
}

func (s *PostgresStore) ExerciseHistory(ctx context.Context, userID, exerciseID uuid.UUID) ([]personalrecord.Sample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(weight, 0), COALESCE(reps, 0), COALESCE(duration_seconds, 0), COALESCE(distance, 0)
		FROM workout_sets
		WHERE user_id = $1 AND exercise_id = $2
		ORDER BY created_at
	`, userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exercise history: %w", mapErr(err))
	}
	defer rows.Close()

	var history []personalrecord.Sample
	for rows.Next() {
		var smp personalrecord.Sample
		if err := rows.Scan(&smp.Weight, &smp.Reps, &smp.DurationSeconds, &smp.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan set: %w", err)
		}
		history = append(history, smp)
	}
	return history, rows.Err()
}

func (s *PostgresStore) ResolveClerkUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&id)
	return id, mapErr(err)
}

func (s *PostgresStore) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(username, ''), NULLIF(TRIM(CONCAT(first_name, ' ', last_name)), ''), '')
		FROM users WHERE id = $1
	`, userID).Scan(&name)
	return name, mapErr(err)
}

// refTarget returns the table and key predicate for ref, with the key values
// bound from $1.
func refTarget(ref NotificationRef) (table, where string, args []any) {
	if ref.Kind == RefStreakMilestone {
		return "streak_milestones", "user_id = $1 AND milestone = $2 AND streak_started_on = $3",
			[]any{ref.UserID, ref.Milestone, civilDate(ref.StreakStartedOn)}
	}
	return "user_achievements", "user_id = $1 AND achievement_id = $2 AND is_unlocked",
		[]any{ref.UserID, ref.AchievementID}
}

func (s *PostgresStore) ClaimNotification(ctx context.Context, ref NotificationRef, lease time.Duration) (bool, error) {
	table, where, args := refTarget(ref)
	now := s.now()
	n := len(args)
	query := fmt.Sprintf(`
		UPDATE %s SET notification_claimed_at = $%d
		WHERE %s AND notification_sent = FALSE
		  AND (notification_claimed_at IS NULL OR notification_claimed_at < $%d)
	`, table, n+1, where, n+2)

	tag, err := s.pool.Exec(ctx, query, append(args, now, now.Add(-lease))...)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseNotification(ctx context.Context, ref NotificationRef) error {
	table, where, args := refTarget(ref)
	query := fmt.Sprintf(`UPDATE %s SET notification_claimed_at = NULL WHERE %s AND notification_sent = FALSE`, table, where)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release notification: %w", mapErr(err))
	}
	return nil
}

func (s *PostgresStore) MarkNotificationSent(ctx context.Context, ref NotificationRef) (bool, error) {
	table, where, args := refTarget(ref)
	query := fmt.Sprintf(`
		UPDATE %s SET notification_sent = TRUE, notification_claimed_at = NULL
		WHERE %s AND notification_sent = FALSE
	`, table, where)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification sent: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeliveryRecorded(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM notification_deliveries WHERE user_id = $1 AND ref = $2 AND recipient_id = $3)
	`, ref.UserID, ref.Key(), recipientID).Scan(&exists)
	return exists, mapErr(err)
}

func (s *PostgresStore) RecordDelivery(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (user_id, ref, recipient_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, ref.UserID, ref.Key(), recipientID)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", mapErr(err))
	}
	return nil
}

func (s *PostgresStore) PendingNotifications(ctx context.Context, lease time.Duration, limit int) ([]NotificationRef, error) {
	cutoff := s.now().Add(-lease)
	rows, err := s.pool.Query(ctx, `
		SELECT kind, user_id, achievement_id, milestone, streak_started_on FROM (
			SELECT 'achievement' AS kind, user_id, achievement_id, 0 AS milestone,
				NULL::date AS streak_started_on, unlocked_at AS since
			FROM user_achievements
			WHERE is_unlocked AND NOT notification_sent
			  AND (notification_claimed_at IS NULL OR notification_claimed_at < $1)
			UNION ALL
			SELECT 'streak_milestone', user_id, '', milestone, streak_started_on, reached_at
			FROM streak_milestones
			WHERE NOT notification_sent
			  AND (notification_claimed_at IS NULL OR notification_claimed_at < $1)
		) pending
		ORDER BY since
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending notifications: %w", mapErr(err))
	}
	defer rows.Close()

	var refs []NotificationRef
	for rows.Next() {
		var ref NotificationRef
		var kind string
		var startedOn *time.Time
		if err := rows.Scan(&kind, &ref.UserID, &ref.AchievementID, &ref.Milestone, &startedOn); err != nil {
			return nil, fmt.Errorf("failed to scan pending notification: %w", err)
		}
		ref.Kind = RefKind(kind)
		if startedOn != nil {
			ref.StreakStartedOn = civilDate(*startedOn)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) ListFollowers(ctx context.Context, userID uuid.UUID, pref notification.NotificationType) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id FROM (`+friendIDs+`) f
		LEFT JOIN notification_preferences np ON np.user_id = f.id
		WHERE COALESCE((np.enabled_types ->> $2)::boolean, TRUE)
	`, userID, string(pref))
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", mapErr(err))
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error) {
	prefs := notification.DefaultPreferences(userID)
	err := s.pool.QueryRow(ctx, `
		SELECT push_enabled, in_app_enabled, enabled_types
		FROM notification_preferences WHERE user_id = $1
	`, userID).Scan(&prefs.PushEnabled, &prefs.InAppEnabled, &prefs.EnabledTypes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get preferences: %w", mapErr(err))
	}

	rows, err := s.pool.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", mapErr(err))
	}
	defer rows.Close()

	for rows.Next() {
		var tok notification.DeviceToken
		if err := rows.Scan(&tok.Token, &tok.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		prefs.DeviceTokens = append(prefs.DeviceTokens, tok)
	}
	return prefs, rows.Err()
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n *notification.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, priority, status, title, body, data, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, n.ID, n.UserID, string(n.Type), string(n.Priority), string(n.Status), n.Title, n.Body, n.Data, n.ActorID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", mapErr(err))
	}
	return nil
}

func (s *PostgresStore) SetNotificationStatus(ctx context.Context, id uuid.UUID, status notification.NotificationStatus, reason *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2::text,
			failure_reason = $3,
			sent_at = CASE WHEN $2::text = 'sent' THEN NOW() ELSE sent_at END
		WHERE id = $1
	`, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, mapErr(err))
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID uuid.UUID, page, pageSize int, unreadOnly bool) ([]notification.Notification, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read_at IS NULL)
	`, userID, unreadOnly).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", mapErr(err))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, priority, status, title, body, data, actor_id,
			failure_reason, created_at, sent_at, read_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read_at IS NULL)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get notifications: %w", mapErr(err))
	}
	defer rows.Close()

	items := []notification.Notification{}
	for rows.Next() {
		var n notification.Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Priority,
			&n.Status,
			&n.Title,
			&n.Body,
			&n.Data,
			&n.ActorID,
			&n.FailureReason,
			&n.CreatedAt,
			&n.SentAt,
			&n.ReadAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&n)
	return n, mapErr(err)
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", mapErr(err))
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SavePreferences(ctx context.Context, prefs *notification.NotificationPreferences) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, push_enabled, in_app_enabled, enabled_types)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			in_app_enabled = EXCLUDED.in_app_enabled,
			enabled_types = EXCLUDED.enabled_types
	`, prefs.UserID, prefs.PushEnabled, prefs.InAppEnabled, prefs.EnabledTypes)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", mapErr(err))
	}
	return nil
}

func (s *PostgresStore) RegisterDevice(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`, userID, token.Token, token.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", mapErr(err))
	}
	return nil
}
