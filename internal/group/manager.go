// Package group owns the lifecycle state machine for ephemeral groups:
// creation, join by password or invite, extension, termination and the
// cascading deletion of dependent messages on expiry.
package group

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ogonyok/internal/content"
	"ogonyok/internal/models"
	"ogonyok/internal/storage"

	"github.com/google/uuid"
)

// Store is the slice of the persistence layer the manager needs.
type Store interface {
	CreateGroup(rec storage.GroupRecord) error
	GetGroup(id string) (storage.GroupRecord, error)
	GetGroupByInvite(token string) (storage.GroupRecord, error)
	UpdateGroup(rec storage.GroupRecord) error
	DeleteGroup(id string) error
	ListGroupsForUser(userID string) ([]models.Group, error)
	ListActiveGroups() ([]storage.GroupRecord, error)
}

type Config struct {
	Lifetime     time.Duration // initial expiresAt offset
	Extension    time.Duration // added per admin extend
	InviteExpiry time.Duration
	BaseURL      string
}

type Manager struct {
	Config
	store Store
	now   func() time.Time

	// onDeleted runs after a group and its messages are gone, both on
	// admin end and on expiry. The hub uses it to close the room.
	onDeleted func(groupID string)

	timers map[string]*time.Timer
	mu     sync.Mutex
}

func NewManager(store Store, config Config) *Manager {
	return &Manager{
		Config: config,
		store:  store,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// OnDeleted registers the deletion hook. Must be called before Rehydrate.
func (m *Manager) OnDeleted(fn func(groupID string)) {
	m.onDeleted = fn
}

// Rehydrate rebuilds expiry timers from the store after a restart and
// sweeps groups that expired while the process was down.
func (m *Manager) Rehydrate() error {
	recs, err := m.store.ListActiveGroups()
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	now := m.now()
	for _, rec := range recs {
		if rec.Expired(now) {
			m.deleteGroup(rec.ID)
			continue
		}
		m.schedule(rec.ID, rec.ExpiresAt)
	}
	return nil
}

// Close stops all pending expiry timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// Create makes a new group with the creator as admin and sole member.
func (m *Manager) Create(adminID, name, password string) (models.Group, error) {
	name = content.Sanitize(name)
	if name == "" || password == "" {
		return models.Group{}, fmt.Errorf("%w: name and password required", models.ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := m.now()
	rec := storage.GroupRecord{
		Group: models.Group{
			ID:        uuid.NewString(),
			Name:      name,
			AdminID:   adminID,
			MemberIDs: []string{adminID},
			ExpiresAt: now.Add(m.Lifetime),
			CreatedAt: now,
		},
		PasswordHash: hash,
	}

	if err := m.store.CreateGroup(rec); err != nil {
		return models.Group{}, err
	}

	m.schedule(rec.ID, rec.ExpiresAt)
	slog.Info("group created", "group_id", rec.ID, "admin_id", adminID, "expires_at", rec.ExpiresAt)
	return rec.Group, nil
}

// GetActive fetches a group fresh from the store, treating an expired one
// as already gone. The expiry sweep is triggered inline so a group never
// outlives its deadline just because the timer has not fired yet.
func (m *Manager) GetActive(id string) (models.Group, error) {
	rec, err := m.getActiveRecord(id)
	if err != nil {
		return models.Group{}, err
	}
	return rec.Group, nil
}

func (m *Manager) getActiveRecord(id string) (storage.GroupRecord, error) {
	rec, err := m.store.GetGroup(id)
	if err != nil {
		return storage.GroupRecord{}, err
	}
	if rec.Expired(m.now()) {
		m.deleteGroup(id)
		return storage.GroupRecord{}, fmt.Errorf("group %s: %w", id, models.ErrNotFound)
	}
	return rec, nil
}

// Join adds the user to the group after a password check. Idempotent for
// existing members.
func (m *Manager) Join(groupID, password, userID string) (models.Group, error) {
	rec, err := m.getActiveRecord(groupID)
	if err != nil {
		return models.Group{}, err
	}

	match, err := ComparePassword(password, rec.PasswordHash)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return models.Group{}, fmt.Errorf("incorrect password: %w", models.ErrUnauthorized)
	}

	return m.addMember(rec, userID)
}

// JoinViaInvite adds the user to the group matching a still-valid invite
// token.
func (m *Manager) JoinViaInvite(token, userID string) (models.Group, error) {
	rec, err := m.store.GetGroupByInvite(token)
	if err != nil {
		return models.Group{}, err
	}
	now := m.now()
	if rec.Expired(now) {
		m.deleteGroup(rec.ID)
		return models.Group{}, fmt.Errorf("group %s: %w", rec.ID, models.ErrNotFound)
	}
	if rec.InviteTokenExpiry.IsZero() || !now.Before(rec.InviteTokenExpiry) {
		return models.Group{}, fmt.Errorf("invite expired: %w", models.ErrNotFound)
	}

	return m.addMember(rec, userID)
}

func (m *Manager) addMember(rec storage.GroupRecord, userID string) (models.Group, error) {
	if !rec.IsMember(userID) {
		rec.MemberIDs = append(rec.MemberIDs, userID)
		if err := m.store.UpdateGroup(rec); err != nil {
			return models.Group{}, err
		}
	}
	return rec.Group, nil
}

// GenerateInvite rotates the group's invite token and returns the full
// invite link. Admin only.
func (m *Manager) GenerateInvite(groupID, requesterID string) (string, error) {
	rec, err := m.getActiveRecord(groupID)
	if err != nil {
		return "", err
	}
	if rec.AdminID != requesterID {
		return "", fmt.Errorf("only admin can invite: %w", models.ErrForbidden)
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	rec.InviteToken = hex.EncodeToString(buf)
	rec.InviteTokenExpiry = m.now().Add(m.InviteExpiry)

	if err := m.store.UpdateGroup(rec); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/groups/invite/%s", m.BaseURL, rec.InviteToken), nil
}

// Extend pushes the group's expiry forward by the configured step. Admin
// only. The deadline moves relative to the current expiresAt, not to now.
func (m *Manager) Extend(groupID, requesterID string) (models.Group, error) {
	rec, err := m.getActiveRecord(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if rec.AdminID != requesterID {
		return models.Group{}, fmt.Errorf("only admin can extend: %w", models.ErrForbidden)
	}

	rec.ExpiresAt = rec.ExpiresAt.Add(m.Extension)
	if err := m.store.UpdateGroup(rec); err != nil {
		return models.Group{}, err
	}

	m.schedule(rec.ID, rec.ExpiresAt)
	slog.Info("group extended", "group_id", rec.ID, "expires_at", rec.ExpiresAt)
	return rec.Group, nil
}

// End terminates the group, cascading deletion of all its messages. Admin
// only; the only admin-triggered path to the terminal state.
func (m *Manager) End(groupID, requesterID string) error {
	rec, err := m.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if rec.AdminID != requesterID {
		return fmt.Errorf("only admin can end chat: %w", models.ErrForbidden)
	}

	return m.deleteGroup(groupID)
}

// ListForUser returns the still-active groups the user belongs to, most
// recently created first.
func (m *Manager) ListForUser(userID string) ([]models.Group, error) {
	groups, err := m.store.ListGroupsForUser(userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	active := groups[:0]
	for _, g := range groups {
		if !g.Expired(now) {
			active = append(active, g)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// schedule arms (or re-arms) the deletion hook for the group's deadline.
func (m *Manager) schedule(groupID string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[groupID]; ok {
		t.Stop()
	}
	m.timers[groupID] = time.AfterFunc(expiresAt.Sub(m.now()), func() {
		m.expire(groupID)
	})
}

// expire runs when a group's timer fires. An extension may have moved the
// deadline after the timer was armed, so re-check before deleting.
func (m *Manager) expire(groupID string) {
	rec, err := m.store.GetGroup(groupID)
	if err != nil {
		return // already gone
	}
	if !rec.Expired(m.now()) {
		m.schedule(groupID, rec.ExpiresAt)
		return
	}
	m.deleteGroup(groupID)
}

// deleteGroup is the shared cascade: messages and group document go in one
// store transaction, then the deletion hook fires.
func (m *Manager) deleteGroup(groupID string) error {
	m.mu.Lock()
	if t, ok := m.timers[groupID]; ok {
		t.Stop()
		delete(m.timers, groupID)
	}
	m.mu.Unlock()

	if err := m.store.DeleteGroup(groupID); err != nil {
		slog.Error("group cascade delete failed", "group_id", groupID, "error", err)
		return err
	}
	slog.Info("group deleted", "group_id", groupID)

	if m.onDeleted != nil {
		m.onDeleted(groupID)
	}
	return nil
}
