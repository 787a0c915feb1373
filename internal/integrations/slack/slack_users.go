package slackbot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const userCacheTTL = 5 * time.Minute

type userLister func(ctx context.Context) ([]slack.User, error)

// managerSet answers whether a Slack user may run manager commands.
// Configured entries are either user IDs or names; names are resolved
// against the workspace user list, which is cached for userCacheTTL.
type managerSet struct {
	ids   map[string]bool
	names []string

	listUsers userLister
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	users     []slack.User
	fetchedAt time.Time
}

func newManagerSet(identifiers []string, list userLister, logger *zap.Logger) *managerSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &managerSet{
		ids:       make(map[string]bool),
		listUsers: list,
		logger:    logger,
		now:       time.Now,
	}
	for _, raw := range identifiers {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if isLikelySlackID(val) {
			m.ids[val] = true
		} else {
			m.names = append(m.names, val)
		}
	}
	return m
}

// open reports whether no managers are configured, in which case every user
// may run manager commands.
func (m *managerSet) open() bool {
	return len(m.ids) == 0 && len(m.names) == 0
}

func (m *managerSet) isManager(ctx context.Context, userID string) (bool, error) {
	if m.open() || m.ids[userID] {
		return true, nil
	}
	if len(m.names) == 0 || m.listUsers == nil {
		return false, nil
	}

	users, err := m.cachedUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ID != userID {
			continue
		}
		for _, name := range m.names {
			if anyNameMatches([]string{u.Name, u.RealName, u.Profile.DisplayName}, name) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (m *managerSet) cachedUsers(ctx context.Context) ([]slack.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.users != nil && m.now().Sub(m.fetchedAt) < userCacheTTL {
		return m.users, nil
	}
	users, err := m.listUsers(ctx)
	if err != nil {
		m.logger.Warn("slack list users failed", zap.Error(err))
		return nil, err
	}
	m.users = users
	m.fetchedAt = m.now()
	m.logger.Debug("slack users cached", zap.Int("count", len(users)))
	return users, nil
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func normalizeNameTokens(s string) []string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// nameMatches is true when every token of configured appears in candidate,
// so "alice" matches "Alice Smith".
func nameMatches(configured, candidate string) bool {
	want := normalizeNameTokens(configured)
	have := normalizeNameTokens(candidate)
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func anyNameMatches(candidates []string, configured string) bool {
	for _, c := range candidates {
		if nameMatches(configured, c) {
			return true
		}
	}
	return false
}
