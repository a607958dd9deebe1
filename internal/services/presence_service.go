package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/connectivity"
	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/sirupsen/logrus"
)

// PresenceRefreshInterval keeps published presence well inside the
// repository TTL.
const PresenceRefreshInterval = 20 * time.Second

// PresenceService publishes this node's connectivity and backlog so other
// devices can see who still has unsynced work.
type PresenceService struct {
	repo    repositories.PresenceRepository
	pending func(ctx context.Context) (int, error)
	nodeID  string
	log     logrus.FieldLogger
}

func NewPresenceService(repo repositories.PresenceRepository, pending func(ctx context.Context) (int, error), nodeID string, log logrus.FieldLogger) *PresenceService {
	return &PresenceService{
		repo:    repo,
		pending: pending,
		nodeID:  nodeID,
		log:     log.WithFields(logrus.Fields{"module": "presence", "node_id": nodeID}),
	}
}

func (p *PresenceService) Publish(ctx context.Context, state connectivity.State) error {
	count, err := p.pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending items: %w", err)
	}
	status := models.StatusOffline
	if state == connectivity.Online {
		status = models.StatusOnline
	}
	return p.repo.SetPresence(ctx, &models.Presence{
		NodeID:       p.nodeID,
		Status:       string(status),
		PendingCount: count,
	})
}

// PublishQuietly is Publish for callbacks that cannot return an error.
func (p *PresenceService) PublishQuietly(ctx context.Context, state connectivity.State) {
	if err := p.Publish(ctx, state); err != nil {
		p.log.WithError(err).Warn("failed to publish presence")
	}
}

func (p *PresenceService) Lookup(ctx context.Context, nodeIDs []string) (map[string]models.Presence, error) {
	if len(nodeIDs) == 1 {
		presence, err := p.repo.GetPresence(ctx, nodeIDs[0])
		if err != nil {
			return nil, err
		}
		return map[string]models.Presence{nodeIDs[0]: *presence}, nil
	}
	return p.repo.GetBulkPresence(ctx, nodeIDs)
}

// Run republishes presence every interval until ctx is cancelled, so a
// node that stays in one state does not expire.
func (p *PresenceService) Run(ctx context.Context, interval time.Duration, state func() connectivity.State) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.PublishQuietly(ctx, state())
		}
	}
}

// Withdraw removes this node's presence on shutdown.
func (p *PresenceService) Withdraw(ctx context.Context) error {
	return p.repo.DeletePresence(ctx, p.nodeID)
}

func (p *PresenceService) NodeID() string {
	return p.nodeID
}
