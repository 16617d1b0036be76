package store

import (
	"context"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/queue"
	"tillsync/internal/replay"
)

// RegisterReplay installs this store's replay handlers on the engine. The
// store dispatches its own queued transactions so that a confirmed CREATE
// can promote the provisional id in the same projection the UI observes.
func (s *Store[T, PT]) RegisterReplay(e *replay.Engine) {
	e.Register(s.cfg.EntityType, queue.TypeCreate, s.replayCreate)
	e.Register(s.cfg.EntityType, queue.TypeUpdate, s.replayUpdate)
	e.Register(s.cfg.EntityType, queue.TypeDelete, s.replayDelete)
}

func (s *Store[T, PT]) replayCreate(ctx context.Context, tx *queue.Transaction) error {
	item, err := s.cfg.Decode(tx)
	if err != nil {
		return apperror.NewValidation(err.Error())
	}

	// The server assigns the real id; the provisional one never leaves the
	// client.
	PT(&item).SetEntityID("")

	created, err := s.cfg.Remote.Create(ctx, item)
	if err != nil {
		return err
	}

	s.promote(ctx, tx.EntityID, *created)
	return nil
}

func (s *Store[T, PT]) replayUpdate(ctx context.Context, tx *queue.Transaction) error {
	item, err := s.cfg.Decode(tx)
	if err != nil {
		return apperror.NewValidation(err.Error())
	}

	entityID, err := s.resolveEntityID(tx.EntityID)
	if err != nil {
		return err
	}

	PT(&item).SetEntityID(entityID)
	updated, err := s.cfg.Remote.Update(ctx, entityID, item)
	if err != nil {
		return err
	}

	s.replaceItem(entityID, *updated)
	s.dropPending(tx.EntityID)
	s.writeCacheOne(ctx, *updated)
	return nil
}

func (s *Store[T, PT]) replayDelete(ctx context.Context, tx *queue.Transaction) error {
	entityID, err := s.resolveEntityID(tx.EntityID)
	if err != nil {
		return err
	}

	if err := s.cfg.Remote.Delete(ctx, entityID); err != nil {
		return err
	}

	s.removeItem(entityID)
	s.dropPending(tx.EntityID)
	return nil
}

// resolveEntityID maps a provisional id to its server-assigned replacement.
// The replay engine defers dependents while a CREATE for the entity is still
// queued, so an unmapped provisional id here means the CREATE was abandoned
// and the dependent can never succeed.
func (s *Store[T, PT]) resolveEntityID(entityID string) (string, error) {
	if !id.IsProvisional(entityID) {
		return entityID, nil
	}

	s.mu.RLock()
	serverID, ok := s.promoted[entityID]
	s.mu.RUnlock()
	if !ok {
		return "", apperror.NewValidation("create for provisional entity was abandoned").
			WithDetail("entity_id", entityID)
	}
	return serverID, nil
}

// promote retires a provisional id: the server entity replaces the
// provisional one in the projection, the pendingSync entry is dropped, and
// queued dependents are rewritten to the server id - both in the durable
// queue (so they survive a restart) and via the in-memory mapping (for
// dependents already loaded into the current replay pass). A provisional id
// is never reused after replacement.
func (s *Store[T, PT]) promote(ctx context.Context, provisionalID string, server T) {
	serverID := PT(&server).EntityID()

	s.mu.Lock()
	replaced := false
	for i := range s.items {
		if PT(&s.items[i]).EntityID() == provisionalID {
			s.items[i] = server
			replaced = true
			break
		}
	}
	if !replaced {
		s.items = append(s.items, server)
	}
	s.promoted[provisionalID] = serverID
	s.mu.Unlock()

	if err := s.cfg.Queue.ReassignEntity(ctx, provisionalID, serverID); err != nil {
		// Degraded: the in-memory mapping still covers this session, but
		// dependents would not survive a restart.
		s.log.Warnw("queued dependents not reassigned", "provisional_id", provisionalID, "error", err)
	}

	s.dropPending(provisionalID)
	s.writeCacheOne(ctx, server)

	s.log.Infow("provisional entity promoted",
		"provisional_id", provisionalID,
		"server_id", serverID,
	)
}

func (s *Store[T, PT]) dropPending(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pendingSync {
		if PT(&s.pendingSync[i]).EntityID() == entityID {
			s.pendingSync = append(s.pendingSync[:i], s.pendingSync[i+1:]...)
			return
		}
	}
}
