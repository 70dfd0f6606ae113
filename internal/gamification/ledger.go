package gamification

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// UnknownUser is the session owner recorded when no user is set.
const UnknownUser = "unknown"

// Formatter renders ledger feedback text.
type Formatter interface {
	PointsEarned(points int, reason string) string
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(points int, reason string) string

func (f FormatterFunc) PointsEarned(points int, reason string) string {
	return f(points, reason)
}

var defaultFormatter = FormatterFunc(func(points int, reason string) string {
	return fmt.Sprintf("Earned %d points for %s", points, reason)
})

// Ledger tracks sessions, points, personal bests, achievements and the
// user's leaderboard positions. It is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	logger    *zap.Logger
	formatter Formatter
	now       func() time.Time
	newID     func() string

	user          *models.User
	userPoints    int
	personalBests map[string]int
	achievements  []models.Achievement
	session       *models.ActivitySession
	leaderboards  []models.Leaderboard

	listeners listenerSet
}

// NewLedger creates an empty Ledger. A nil formatter renders English text.
func NewLedger(formatter Formatter, logger *zap.Logger) *Ledger {
	if formatter == nil {
		formatter = defaultFormatter
	}
	return &Ledger{
		logger:        logger,
		formatter:     formatter,
		now:           time.Now,
		newID:         uuid.NewString,
		personalBests: make(map[string]int),
	}
}

// Subscribe registers l for every subsequent ledger event.
func (l *Ledger) Subscribe(fn Listener) {
	l.listeners.add(fn)
}

// StartActivitySession opens a session for activityType. An open session is
// ended first.
func (l *Ledger) StartActivitySession(activityType string) *models.ActivitySession {
	l.mu.Lock()
	var events []Event
	if l.session != nil {
		l.logger.Warn("Activity session already open, ending it first",
			zap.String("session_id", l.session.ID),
			zap.String("activity_type", l.session.ActivityType),
		)
		events = append(events, l.endLocked())
	}

	l.session = &models.ActivitySession{
		ID:            l.newID(),
		UserID:        l.userIDLocked(),
		ActivityType:  activityType,
		StartTime:     l.now(),
		Achievements:  []models.Achievement{},
		FeedbackItems: []models.FeedbackItem{},
	}
	started := l.session.Clone()
	events = append(events, l.eventLocked(EventSessionStarted, func(e *Event) {
		e.Session = started.Clone()
	}))
	l.mu.Unlock()

	l.listeners.emit(events)
	return started
}

// EndActivitySession closes the open session and returns it. ok is false
// when no session was open.
func (l *Ledger) EndActivitySession() (session *models.ActivitySession, ok bool) {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		l.logger.Info("No activity session to end")
		return nil, false
	}
	evt := l.endLocked()
	l.mu.Unlock()

	l.listeners.emit([]Event{evt})
	return evt.Session.Clone(), true
}

func (l *Ledger) endLocked() Event {
	s := l.session
	l.session = nil

	end := l.now()
	s.EndTime = &end
	s.Duration = int(end.Sub(s.StartTime) / time.Second)
	if s.Duration < 0 {
		s.Duration = 0
	}

	if best, ok := l.personalBests[s.ActivityType]; !ok || s.Points > best {
		l.personalBests[s.ActivityType] = s.Points
	}
	l.userPoints += s.Points

	l.logger.Info("Activity session ended",
		zap.String("session_id", s.ID),
		zap.String("activity_type", s.ActivityType),
		zap.Int("points", s.Points),
		zap.Int("duration_sec", s.Duration),
	)
	return l.eventLocked(EventSessionEnded, func(e *Event) {
		e.UserID = s.UserID
		e.Session = s
		e.Points = s.Points
	})
}

// AddPoints credits points to the open session, with a feedback entry, or
// to the user total when no session is open.
func (l *Ledger) AddPoints(points int, reason string) {
	l.mu.Lock()
	if l.session != nil {
		l.session.Points += points
		l.session.FeedbackItems = append(l.session.FeedbackItems, models.FeedbackItem{
			ID:        l.newID(),
			Timestamp: l.now(),
			Type:      models.FeedbackTypeEffort,
			Message:   l.formatter.PointsEarned(points, reason),
			Severity:  models.SeverityInfo,
		})
	} else {
		l.userPoints += points
	}
	evt := l.eventLocked(EventPointsAdded, func(e *Event) {
		e.Points = points
		e.Reason = reason
		e.Session = l.session.Clone()
	})
	l.mu.Unlock()

	l.listeners.emit([]Event{evt})
}

// AwardAchievement grants a catalog achievement once. Unknown and already
// held ids change nothing and return false.
func (l *Ledger) AwardAchievement(id AchievementID) bool {
	l.mu.Lock()
	for _, a := range l.achievements {
		if a.ID == string(id) {
			l.mu.Unlock()
			l.logger.Info("Achievement already earned", zap.String("achievement_id", string(id)))
			return false
		}
	}

	a, ok := LookupAchievement(id, l.now())
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("Unknown achievement", zap.String("achievement_id", string(id)))
		return false
	}

	l.achievements = append(l.achievements, a)
	l.userPoints += a.PointsAwarded
	if l.session != nil {
		l.session.Achievements = append(l.session.Achievements, a)
	}
	evt := l.eventLocked(EventAchievementAwarded, func(e *Event) {
		e.Achievement = &a
		e.Points = a.PointsAwarded
		e.Session = l.session.Clone()
	})
	l.mu.Unlock()

	l.listeners.emit([]Event{evt})
	return true
}

// GetLeaderboardPositions maps board id to the current user's rank on every
// board that lists the user. It is empty when no user is set.
func (l *Ledger) GetLeaderboardPositions() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]int)
	if l.user == nil {
		return positions
	}
	for _, board := range l.leaderboards {
		for _, entry := range board.Entries {
			if entry.UserID == l.user.ID {
				positions[board.ID] = entry.Rank
				break
			}
		}
	}
	return positions
}

// SetLeaderboards replaces the known leaderboard snapshot.
func (l *Ledger) SetLeaderboards(boards []models.Leaderboard) {
	copied := make([]models.Leaderboard, len(boards))
	for i, b := range boards {
		b.Entries = append([]models.LeaderboardEntry(nil), b.Entries...)
		copied[i] = b
	}

	l.mu.Lock()
	l.leaderboards = copied
	l.mu.Unlock()
}

// Leaderboards returns a copy of the known leaderboard snapshot.
func (l *Ledger) Leaderboards() []models.Leaderboard {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Leaderboard, len(l.leaderboards))
	for i, b := range l.leaderboards {
		b.Entries = append([]models.LeaderboardEntry(nil), b.Entries...)
		out[i] = b
	}
	return out
}

// SetCurrentUser sets or, with nil, clears the current user.
func (l *Ledger) SetCurrentUser(u *models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u == nil {
		l.user = nil
		return
	}
	c := *u
	l.user = &c
}

// CurrentUser returns the current user, or nil.
func (l *Ledger) CurrentUser() *models.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.user == nil {
		return nil
	}
	c := *l.user
	return &c
}

// UserPoints returns the accumulated points outside the open session.
func (l *Ledger) UserPoints() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userPoints
}

// PersonalBest returns the best single-session points for activityType.
func (l *Ledger) PersonalBest(activityType string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	best, ok := l.personalBests[activityType]
	return best, ok
}

// Achievements returns the earned achievements in award order.
func (l *Ledger) Achievements() []models.Achievement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Achievement{}, l.achievements...)
}

// CurrentSession returns a copy of the open session, or nil.
func (l *Ledger) CurrentSession() *models.ActivitySession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Clone()
}

// Progress returns the persistable totals.
func (l *Ledger) Progress() models.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	bests := make(map[string]int, len(l.personalBests))
	for k, v := range l.personalBests {
		bests[k] = v
	}
	return models.Progress{
		UserID:        l.userIDLocked(),
		Points:        l.userPoints,
		PersonalBests: bests,
		Achievements:  append([]models.Achievement{}, l.achievements...),
		UpdatedAt:     l.now(),
	}
}

// Restore loads saved totals. It is meant for start-up, before any
// activity, and replaces points, personal bests and achievements.
func (l *Ledger) Restore(p models.Progress) {
	bests := make(map[string]int, len(p.PersonalBests))
	for k, v := range p.PersonalBests {
		bests[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.userPoints = p.Points
	l.personalBests = bests
	l.achievements = append([]models.Achievement{}, p.Achievements...)
}

// Merge adds stored totals of userID on top of the current ones: points are
// summed, personal bests keep the higher value and achievements held on
// both sides count once. It returns false and changes nothing when userID
// is not the current user.
func (l *Ledger) Merge(userID string, p models.Progress) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userIDLocked() != userID {
		return false
	}

	points := l.userPoints + p.Points
	held := make(map[string]bool, len(p.Achievements))
	achievements := append([]models.Achievement{}, p.Achievements...)
	for _, a := range p.Achievements {
		held[a.ID] = true
	}
	for _, a := range l.achievements {
		if held[a.ID] {
			points -= a.PointsAwarded
			continue
		}
		held[a.ID] = true
		achievements = append(achievements, a)
	}
	for k, v := range p.PersonalBests {
		if cur, ok := l.personalBests[k]; !ok || v > cur {
			l.personalBests[k] = v
		}
	}

	l.userPoints = points
	l.achievements = achievements
	return true
}

func (l *Ledger) userIDLocked() string {
	if l.user == nil || l.user.ID == "" {
		return UnknownUser
	}
	return l.user.ID
}

func (l *Ledger) eventLocked(kind EventKind, fill func(*Event)) Event {
	evt := Event{
		Kind:        kind,
		UserID:      l.userIDLocked(),
		TotalPoints: l.userPoints,
		At:          l.now(),
	}
	if fill != nil {
		fill(&evt)
	}
	return evt
}
