// Package sessionregistry is the in-memory, multi-indexed store of live
// player sessions from spec.md §4.6. It is grounded in the same
// "primary map + secondary index maps kept in lock-step" shape the
// teacher uses for its connection bookkeeping in
// internal/rcon_manager/rcon_manager.go, generalized from one index
// (serverId) to the three secondary indices the spec requires.
package sessionregistry

import (
	"sync"
	"time"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

// nowFunc is swappable in tests.
type nowFunc func() time.Time

// Registry owns the primary (serverId, gameUserId) map plus three
// secondary indices, all protected by a single mutex — spec.md §5
// forbids cross-locking between the registry's maps and anything else,
// so internally they move together under one lock.
type Registry struct {
	now nowFunc

	mu           sync.Mutex
	byPrimary    map[models.SessionKey]*models.PlayerSession
	byDatabaseID map[models.SessionKey]*models.PlayerSession // keyed by (serverId, databasePlayerId)
	bySteamID    map[models.SessionKey]*models.PlayerSession // keyed by (serverId, steamId)
	byServer     map[int]map[models.SessionKey]struct{}
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		now:          time.Now,
		byPrimary:    make(map[models.SessionKey]*models.PlayerSession),
		byDatabaseID: make(map[models.SessionKey]*models.PlayerSession),
		bySteamID:    make(map[models.SessionKey]*models.PlayerSession),
		byServer:     make(map[int]map[models.SessionKey]struct{}),
	}
}

func secondaryKey(serverID int, id string) models.SessionKey {
	return models.SessionKey{ServerID: serverID, GameUserID: id}
}

// Create is idempotent on the primary key (serverId, gameUserId): if a
// session already exists it updates playerName (when provided) and bumps
// lastSeen; otherwise it inserts and populates all four indices.
func (r *Registry) Create(session models.PlayerSession) models.PlayerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.SessionKey{ServerID: session.ServerID, GameUserID: session.GameUserID}
	now := r.now()

	if existing, ok := r.byPrimary[key]; ok {
		if session.PlayerName != "" {
			existing.PlayerName = session.PlayerName
		}
		existing.LastSeen = now
		return *existing
	}

	session.ConnectedAt = now
	session.LastSeen = now
	stored := session
	r.byPrimary[key] = &stored

	if session.DatabasePlayerID != "" {
		r.byDatabaseID[secondaryKey(session.ServerID, session.DatabasePlayerID)] = &stored
	}
	if session.SteamID != "" {
		r.bySteamID[secondaryKey(session.ServerID, session.SteamID)] = &stored
	}
	if r.byServer[session.ServerID] == nil {
		r.byServer[session.ServerID] = make(map[models.SessionKey]struct{})
	}
	r.byServer[session.ServerID][key] = struct{}{}

	return stored
}

// Update applies patch to an existing session; it is a no-op returning
// (zero value, false) if the session is absent.
func (r *Registry) Update(serverID int, gameUserID string, patch models.SessionPatch) (models.PlayerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.SessionKey{ServerID: serverID, GameUserID: gameUserID}
	existing, ok := r.byPrimary[key]
	if !ok {
		return models.PlayerSession{}, false
	}

	if patch.PlayerName != nil {
		existing.PlayerName = *patch.PlayerName
	}
	if patch.LastSeen != nil {
		existing.LastSeen = *patch.LastSeen
	} else {
		existing.LastSeen = r.now()
	}

	return *existing, true
}

// Delete removes a session from all indices, dropping the server bucket
// if it becomes empty. Returns true iff a session was removed.
func (r *Registry) Delete(serverID int, gameUserID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.SessionKey{ServerID: serverID, GameUserID: gameUserID}
	existing, ok := r.byPrimary[key]
	if !ok {
		return false
	}

	r.removeLocked(key, existing)
	return true
}

// removeLocked deletes a session from every index. Caller must hold r.mu.
func (r *Registry) removeLocked(key models.SessionKey, session *models.PlayerSession) {
	delete(r.byPrimary, key)
	if session.DatabasePlayerID != "" {
		delete(r.byDatabaseID, secondaryKey(session.ServerID, session.DatabasePlayerID))
	}
	if session.SteamID != "" {
		delete(r.bySteamID, secondaryKey(session.ServerID, session.SteamID))
	}
	if bucket, ok := r.byServer[session.ServerID]; ok {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(r.byServer, session.ServerID)
		}
	}
}

// DeleteServerSessions removes every session for serverID and reports the
// count removed.
func (r *Registry) DeleteServerSessions(serverID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.byServer[serverID]
	if !ok {
		return 0
	}

	count := 0
	for key := range bucket {
		if session, ok := r.byPrimary[key]; ok {
			r.removeLocked(key, session)
			count++
		}
	}
	delete(r.byServer, serverID)
	return count
}

// GetByGameUserID is the primary-key lookup.
func (r *Registry) GetByGameUserID(serverID int, gameUserID string) (models.PlayerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byPrimary[models.SessionKey{ServerID: serverID, GameUserID: gameUserID}]
	if !ok {
		return models.PlayerSession{}, false
	}
	return *session, true
}

// GetByDatabasePlayerID looks up a session via its secondary
// (serverId, databasePlayerId) index.
func (r *Registry) GetByDatabasePlayerID(serverID int, databasePlayerID string) (models.PlayerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byDatabaseID[secondaryKey(serverID, databasePlayerID)]
	if !ok {
		return models.PlayerSession{}, false
	}
	return *session, true
}

// GetBySteamID looks up a session via its secondary (serverId, steamId)
// index.
func (r *Registry) GetBySteamID(serverID int, steamID string) (models.PlayerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.bySteamID[secondaryKey(serverID, steamID)]
	if !ok {
		return models.PlayerSession{}, false
	}
	return *session, true
}

// ListByServer returns every session currently tracked for serverID.
func (r *Registry) ListByServer(serverID int) []models.PlayerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.byServer[serverID]
	if !ok {
		return nil
	}

	sessions := make([]models.PlayerSession, 0, len(bucket))
	for key := range bucket {
		if session, ok := r.byPrimary[key]; ok {
			sessions = append(sessions, *session)
		}
	}
	return sessions
}

// GetStats aggregates the registry's current contents.
func (r *Registry) GetStats() models.SessionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := models.SessionStats{
		ServerSessions: make(map[int]int, len(r.byServer)),
	}
	for serverID, bucket := range r.byServer {
		stats.ServerSessions[serverID] = len(bucket)
	}
	for _, session := range r.byPrimary {
		stats.TotalSessions++
		if session.IsBot {
			stats.BotSessions++
		} else {
			stats.RealPlayerSessions++
		}
	}
	return stats
}
