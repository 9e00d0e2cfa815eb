package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/pilab-dev/shadow-social/domain"
)

type WorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*domain.Workspace
}

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{workspaces: make(map[string]*domain.Workspace)}
}

func (r *WorkspaceRepository) GetByName(_ context.Context, name string) (*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[name]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	cp := *ws
	cp.Members = slices.Clone(ws.Members)
	return &cp, nil
}

func (r *WorkspaceRepository) Create(_ context.Context, ws *domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workspaces[ws.Name]; ok {
		return domain.ErrWorkspaceExists
	}
	cp := *ws
	cp.Members = slices.Clone(ws.Members)
	r.workspaces[ws.Name] = &cp
	return nil
}

// Count returns the number of stored workspaces.
func (r *WorkspaceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

var _ domain.WorkspaceRepository = (*WorkspaceRepository)(nil)
