package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"

	// Entries expire unless republished. PresenceService refreshes them
	// on connectivity changes, after drains and on a timer.
	presenceTTL = 60 * time.Second
)

type RedisPresenceRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client, now: time.Now}
}

// SetPresence publishes the connectivity status of a node with automatic TTL.
// The node refreshes it on every connectivity change and sync drain.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = r.now().UTC()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	err = r.client.Set(ctx, presenceKey(presence.NodeID), data, presenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (r *RedisPresenceRepository) GetPresence(ctx context.Context, nodeID string) (*models.Presence, error) {
	data, err := r.client.Get(ctx, presenceKey(nodeID)).Result()
	if err == redis.Nil {
		// No presence = node is offline
		return offlinePresence(nodeID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}

	return &presence, nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, nodeID string) error {
	err := r.client.Del(ctx, presenceKey(nodeID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// GetBulkPresence retrieves presence for several nodes in one round trip.
func (r *RedisPresenceRepository) GetBulkPresence(ctx context.Context, nodeIDs []string) (map[string]models.Presence, error) {
	presenceMap := make(map[string]models.Presence, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return presenceMap, nil
	}

	keys := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	for i, result := range results {
		nodeID := nodeIDs[i]

		data, ok := result.(string)
		if !ok {
			presenceMap[nodeID] = *offlinePresence(nodeID)
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			// Unreadable entries count as offline
			presenceMap[nodeID] = *offlinePresence(nodeID)
			continue
		}

		presenceMap[nodeID] = presence
	}

	return presenceMap, nil
}

func offlinePresence(nodeID string) *models.Presence {
	return &models.Presence{
		NodeID:   nodeID,
		Status:   string(models.StatusOffline),
		LastSeen: time.Time{}, // Zero time indicates unknown
	}
}

func presenceKey(nodeID string) string {
	return presenceKeyPrefix + nodeID
}
