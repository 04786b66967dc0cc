package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/personalrecord"
	"fitQuestAPI/internal/stats"
)

// MemoryStore keeps everything in process. Transactions for one user are
// serialized by a per-user mutex and their writes are applied on commit.
type MemoryStore struct {
	mu     sync.RWMutex
	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
	now    func() time.Time

	users         map[uuid.UUID]memUser
	clerk         map[string]uuid.UUID
	workouts      map[uuid.UUID][]memWorkout
	sets          map[[2]uuid.UUID][]personalrecord.Sample
	prs           map[uuid.UUID]int
	meals         map[uuid.UUID]int
	friends       map[uuid.UUID]map[uuid.UUID]bool
	goals         map[uuid.UUID][]stats.GoalType
	prefs         map[uuid.UUID]*notification.NotificationPreferences
	notifications []*notification.Notification

	stats      map[uuid.UUID]*stats.UserStatsRecord
	states     map[uuid.UUID]map[string]*achievement.UserAchievementState
	milestones map[milestoneKey]*memMilestone
	deliveries map[deliveryKey]bool
}

type memUser struct {
	ClerkID string
	Name    string
}

type memWorkout struct {
	CompletedAt time.Time
	Seconds     int64
}

type milestoneKey struct {
	UserID    uuid.UUID
	Milestone int
	StartedOn time.Time
}

type memMilestone struct {
	ReachedAt time.Time
	Sent      bool
	ClaimedAt *time.Time
}

type deliveryKey struct {
	UserID    uuid.UUID
	Ref       string
	Recipient uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:      make(map[uuid.UUID]*sync.Mutex),
		now:        time.Now,
		users:      make(map[uuid.UUID]memUser),
		clerk:      make(map[string]uuid.UUID),
		workouts:   make(map[uuid.UUID][]memWorkout),
		sets:       make(map[[2]uuid.UUID][]personalrecord.Sample),
		prs:        make(map[uuid.UUID]int),
		meals:      make(map[uuid.UUID]int),
		friends:    make(map[uuid.UUID]map[uuid.UUID]bool),
		goals:      make(map[uuid.UUID][]stats.GoalType),
		prefs:      make(map[uuid.UUID]*notification.NotificationPreferences),
		stats:      make(map[uuid.UUID]*stats.UserStatsRecord),
		states:     make(map[uuid.UUID]map[string]*achievement.UserAchievementState),
		milestones: make(map[milestoneKey]*memMilestone),
		deliveries: make(map[deliveryKey]bool),
	}
}

// SetClock replaces the clock used for claim leases.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) AddUser(id uuid.UUID, clerkID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = memUser{ClerkID: clerkID, Name: name}
	if clerkID != "" {
		s.clerk[clerkID] = id
	}
}

func (s *MemoryStore) AddWorkout(userID uuid.UUID, completedAt time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts[userID] = append(s.workouts[userID], memWorkout{CompletedAt: completedAt, Seconds: int64(duration.Seconds())})
}

func (s *MemoryStore) AddSet(userID, exerciseID uuid.UUID, smp personalrecord.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]uuid.UUID{userID, exerciseID}
	s.sets[k] = append(s.sets[k], smp)
}

func (s *MemoryStore) AddPersonalRecord(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prs[userID]++
}

func (s *MemoryStore) AddMeal(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meals[userID]++
}

func (s *MemoryStore) AddFriendship(a, b uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		if s.friends[pair[0]] == nil {
			s.friends[pair[0]] = make(map[uuid.UUID]bool)
		}
		s.friends[pair[0]][pair[1]] = true
	}
}

func (s *MemoryStore) AddCompletedGoal(userID uuid.UUID, goalType stats.GoalType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[userID] = append(s.goals[userID], goalType)
}

func (s *MemoryStore) SetPreferences(prefs *notification.NotificationPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefs.UserID] = prefs
}

// Notifications returns the in-app rows stored for userID in insertion order.
func (s *MemoryStore) Notifications(userID uuid.UUID) []notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notification.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

func (s *MemoryStore) userLock(userID uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) WithUserTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s, userID: userID, changed: make(map[string]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	s      *MemoryStore
	userID uuid.UUID

	stats      *stats.UserStatsRecord
	states     map[string]achievement.UserAchievementState
	changed    map[string]bool
	milestones []milestoneKey
}

func (t *memTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.stats != nil {
		s.stats[t.userID] = t.stats.Clone()
	}

	if len(t.changed) > 0 && s.states[t.userID] == nil {
		s.states[t.userID] = make(map[string]*achievement.UserAchievementState)
	}
	for id := range t.changed {
		staged := t.states[id]
		cur, ok := s.states[t.userID][id]
		if !ok {
			cur = &achievement.UserAchievementState{UserID: t.userID, AchievementID: id, CreatedAt: staged.CreatedAt}
			s.states[t.userID][id] = cur
		}
		// notification columns are owned by the fanout and may have moved
		cur.CurrentProgress = staged.CurrentProgress
		cur.IsUnlocked = staged.IsUnlocked
		cur.UnlockedAt = staged.UnlockedAt
		cur.UpdatedAt = staged.UpdatedAt
	}

	for _, k := range t.milestones {
		s.milestones[k] = &memMilestone{ReachedAt: s.now()}
	}
}

func (t *memTx) LockStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	if t.stats != nil {
		return t.stats.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.stats[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTx) CreateStats(ctx context.Context, rec *stats.UserStatsRecord) error {
	if _, err := t.LockStats(ctx, rec.UserID); err == nil {
		return ErrConflict
	}
	t.stats = rec.Clone()
	return nil
}

func (t *memTx) SaveStats(ctx context.Context, rec *stats.UserStatsRecord) error {
	if _, err := t.LockStats(ctx, rec.UserID); err != nil {
		return err
	}
	t.stats = rec.Clone()
	return nil
}

func (t *memTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.users[userID]
	return ok, nil
}

func (t *memTx) WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error) {
	return t.s.WorkoutDates(ctx, userID)
}

func (t *memTx) WorkoutTotals(ctx context.Context, userID uuid.UUID) (int, int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var seconds int64
	for _, w := range t.s.workouts[userID] {
		seconds += w.Seconds
	}
	return len(t.s.workouts[userID]), seconds, nil
}

func (t *memTx) CountPRs(ctx context.Context, userID uuid.UUID) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.prs[userID], nil
}

func (t *memTx) CountMeals(ctx context.Context, userID uuid.UUID) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.meals[userID], nil
}

func (t *memTx) CountFriends(ctx context.Context, userID uuid.UUID) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return len(t.s.friends[userID]), nil
}

func (t *memTx) GoalTotals(ctx context.Context, userID uuid.UUID) (stats.GoalTotals, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var g stats.GoalTotals
	for _, gt := range t.s.goals[userID] {
		g.Total++
		switch gt {
		case stats.GoalWeightLoss, stats.GoalWeightGain:
			g.Weight++
		case stats.GoalExerciseStrength:
			g.Strength++
		case stats.GoalCardioTime, stats.GoalCardioDistance:
			g.Cardio++
		}
	}
	return g, nil
}

func (t *memTx) loadStates() {
	if t.states != nil {
		return
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.states = make(map[string]achievement.UserAchievementState)
	for id, st := range t.s.states[t.userID] {
		t.states[id] = *st
	}
}

func (t *memTx) AchievementStates(ctx context.Context, userID uuid.UUID) (map[string]achievement.UserAchievementState, error) {
	t.loadStates()
	out := make(map[string]achievement.UserAchievementState, len(t.states))
	for id, st := range t.states {
		out[id] = st
	}
	return out, nil
}

func (t *memTx) staged(id string) achievement.UserAchievementState {
	t.loadStates()
	st, ok := t.states[id]
	if !ok {
		now := t.s.clock()
		st = achievement.UserAchievementState{UserID: t.userID, AchievementID: id, CreatedAt: now}
	}
	return st
}

func (t *memTx) UpdateProgress(ctx context.Context, userID uuid.UUID, achievementID string, progress float64) error {
	st := t.staged(achievementID)
	if st.IsUnlocked {
		return nil
	}
	st.CurrentProgress = progress
	st.UpdatedAt = t.s.clock()
	t.states[achievementID] = st
	t.changed[achievementID] = true
	return nil
}

func (t *memTx) Unlock(ctx context.Context, userID uuid.UUID, achievementID string, progress float64, at time.Time) (bool, error) {
	st := t.staged(achievementID)
	if st.IsUnlocked {
		return false, nil
	}
	st.IsUnlocked = true
	st.UnlockedAt = &at
	st.CurrentProgress = progress
	st.UpdatedAt = t.s.clock()
	t.states[achievementID] = st
	t.changed[achievementID] = true
	return true, nil
}

func (t *memTx) RecordStreakMilestone(ctx context.Context, userID uuid.UUID, milestone int, startedOn time.Time) (bool, error) {
	k := milestoneKey{UserID: userID, Milestone: milestone, StartedOn: civilDate(startedOn)}
	for _, pending := range t.milestones {
		if pending == k {
			return false, nil
		}
	}
	t.s.mu.RLock()
	_, exists := t.s.milestones[k]
	t.s.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.milestones = append(t.milestones, k)
	return true, nil
}

func (s *MemoryStore) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *MemoryStore) GetStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.stats[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) ListAchievementStates(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievementState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]achievement.UserAchievementState, 0, len(s.states[userID]))
	for _, st := range s.states[userID] {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (s *MemoryStore) WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := make([]time.Time, 0, len(s.workouts[userID]))
	for _, w := range s.workouts[userID] {
		dates = append(dates, w.CompletedAt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *MemoryStore) ExerciseHistory(ctx context.Context, userID, exerciseID uuid.UUID) ([]personalrecord.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.sets[[2]uuid.UUID{userID, exerciseID}]
	out := make([]personalrecord.Sample, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) ResolveClerkUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.clerk[clerkID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	return u.Name, nil
}

// flags returns pointers to the sent flag and claim time behind ref, or nil
// when there is no such unlocked row. Callers hold s.mu.
func (s *MemoryStore) flags(ref NotificationRef) (*bool, **time.Time) {
	if ref.Kind == RefStreakMilestone {
		m, ok := s.milestones[milestoneKey{UserID: ref.UserID, Milestone: ref.Milestone, StartedOn: civilDate(ref.StreakStartedOn)}]
		if !ok {
			return nil, nil
		}
		return &m.Sent, &m.ClaimedAt
	}
	st, ok := s.states[ref.UserID][ref.AchievementID]
	if !ok || !st.IsUnlocked {
		return nil, nil
	}
	return &st.NotificationSent, &st.NotificationClaimedAt
}

func (s *MemoryStore) ClaimNotification(ctx context.Context, ref NotificationRef, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent, claimed := s.flags(ref)
	if sent == nil || *sent {
		return false, nil
	}
	now := s.now()
	if *claimed != nil && !(*claimed).Before(now.Add(-lease)) {
		return false, nil
	}
	*claimed = &now
	return true, nil
}

func (s *MemoryStore) ReleaseNotification(ctx context.Context, ref NotificationRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent, claimed := s.flags(ref)
	if sent != nil && !*sent {
		*claimed = nil
	}
	return nil
}

func (s *MemoryStore) MarkNotificationSent(ctx context.Context, ref NotificationRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent, claimed := s.flags(ref)
	if sent == nil || *sent {
		return false, nil
	}
	*sent = true
	*claimed = nil
	return true, nil
}

func (s *MemoryStore) DeliveryRecorded(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deliveries[deliveryKey{UserID: ref.UserID, Ref: ref.Key(), Recipient: recipientID}], nil
}

func (s *MemoryStore) RecordDelivery(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[deliveryKey{UserID: ref.UserID, Ref: ref.Key(), Recipient: recipientID}] = true
	return nil
}

func (s *MemoryStore) PendingNotifications(ctx context.Context, lease time.Duration, limit int) ([]NotificationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-lease)
	claimable := func(sent bool, claimed *time.Time) bool {
		return !sent && (claimed == nil || claimed.Before(cutoff))
	}

	type pending struct {
		ref   NotificationRef
		since time.Time
	}
	var all []pending
	for userID, states := range s.states {
		for id, st := range states {
			if st.IsUnlocked && claimable(st.NotificationSent, st.NotificationClaimedAt) {
				all = append(all, pending{AchievementRef(userID, id), *st.UnlockedAt})
			}
		}
	}
	for k, m := range s.milestones {
		if claimable(m.Sent, m.ClaimedAt) {
			all = append(all, pending{MilestoneRef(k.UserID, k.Milestone, k.StartedOn), m.ReachedAt})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].since.Equal(all[j].since) {
			return all[i].since.Before(all[j].since)
		}
		return all[i].ref.Key() < all[j].ref.Key()
	})

	refs := make([]NotificationRef, 0, len(all))
	for i, p := range all {
		if limit > 0 && i >= limit {
			break
		}
		refs = append(refs, p.ref)
	}
	return refs, nil
}

func (s *MemoryStore) ListFollowers(ctx context.Context, userID uuid.UUID, pref notification.NotificationType) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for id := range s.friends[userID] {
		if p, ok := s.prefs[id]; ok && !p.Allows(pref) {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return notification.DefaultPreferences(userID), nil
	}
	return clonePreferences(p), nil
}

func clonePreferences(p *notification.NotificationPreferences) *notification.NotificationPreferences {
	cp := *p
	cp.EnabledTypes = make(map[string]bool, len(p.EnabledTypes))
	for k, v := range p.EnabledTypes {
		cp.EnabledTypes[k] = v
	}
	cp.DeviceTokens = append([]notification.DeviceToken(nil), p.DeviceTokens...)
	return &cp
}

func (s *MemoryStore) InsertNotification(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *MemoryStore) SetNotificationStatus(ctx context.Context, id uuid.UUID, status notification.NotificationStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID != id {
			continue
		}
		n.Status = status
		n.FailureReason = reason
		if status == notification.StatusSent {
			now := s.now()
			n.SentAt = &now
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListNotifications(ctx context.Context, userID uuid.UUID, page, pageSize int, unreadOnly bool) ([]notification.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []notification.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		matched = append(matched, *n)
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []notification.Notification{}, total, nil
	}
	end := min(start+pageSize, total)
	return matched[start:end], total, nil
}

func (s *MemoryStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.notifications {
		if row.UserID == userID && row.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.notifications {
		if row.ID != id || row.UserID != userID {
			continue
		}
		if row.ReadAt == nil {
			now := s.now()
			row.ReadAt = &now
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, row := range s.notifications {
		if row.UserID == userID && row.ReadAt == nil {
			row.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SavePreferences(ctx context.Context, prefs *notification.NotificationPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clonePreferences(prefs)
	cp.DeviceTokens = nil
	if old, ok := s.prefs[prefs.UserID]; ok {
		cp.DeviceTokens = old.DeviceTokens
	}
	s.prefs[prefs.UserID] = cp
	return nil
}

func (s *MemoryStore) RegisterDevice(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		p = notification.DefaultPreferences(userID)
		s.prefs[userID] = p
	}
	for i, t := range p.DeviceTokens {
		if t.Token == token.Token {
			p.DeviceTokens[i] = token
			return nil
		}
	}
	p.DeviceTokens = append(p.DeviceTokens, token)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}
