// Package file provides a file-backed persistence implementation that keeps all rows in
// memory and writes a JSON snapshot to disk after every committed change.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

const snapshotFile = "wfm.json"

type state struct {
	Statuses     map[string]*models.Status             `json:"statuses"`
	Workflows    map[string]*models.Workflow           `json:"workflows"`
	Steps        map[string]*models.WorkflowStep       `json:"steps"`
	Transitions  map[string]*models.WorkflowTransition `json:"transitions"`
	ProjectTypes map[string]*models.ProjectType        `json:"project_types"`
}

func newState() *state {
	return &state{
		Statuses:     make(map[string]*models.Status),
		Workflows:    make(map[string]*models.Workflow),
		Steps:        make(map[string]*models.WorkflowStep),
		Transitions:  make(map[string]*models.WorkflowTransition),
		ProjectTypes: make(map[string]*models.ProjectType),
	}
}

// clone deep-copies the state through its JSON form.
func (s *state) clone() (*state, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}

	copied := newState()

	err = json.Unmarshal(data, copied)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}

	return copied, nil
}

// access runs fn against a state. The live implementation serializes callers and
// flushes after success; the transactional one works on a private copy.
type access interface {
	do(fn func(s *state) error) error
	read(fn func(s *state) error) error
}

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	*repositories

	mu    sync.Mutex
	root  string
	state *state
}

// NewPersistence opens (or creates) the snapshot under root. An empty root keeps the
// data in memory only.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{
		root:  cleanRoot,
		state: newState(),
	}
	p.repositories = newRepositories(&liveAccess{p: p})

	if cleanRoot == "" {
		return p, nil
	}

	err := os.MkdirAll(cleanRoot, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence root: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(cleanRoot, snapshotFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}

		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	loaded := newState()

	err = json.Unmarshal(data, loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	p.state = loaded

	return p, nil
}

// WithTx runs fn on a copy of the state and swaps it in only when fn succeeds.
// Other callers are blocked for the duration, so fn must only use the repositories it is given.
func (p *Persistence) WithTx(ctx context.Context, fn func(tx persistence.Repositories) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	working, err := p.state.clone()
	if err != nil {
		return err
	}

	err = fn(newRepositories(&txAccess{state: working}))
	if err != nil {
		return err
	}

	err = ctx.Err()
	if err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	err = p.flush(working)
	if err != nil {
		return err
	}

	p.state = working

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.root == "" {
		return nil
	}

	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// flush writes the snapshot through a temporary file. Callers hold p.mu.
func (p *Persistence) flush(s *state) error {
	if p.root == "" {
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := filepath.Join(p.root, snapshotFile+".tmp")

	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	err = os.Rename(tmp, filepath.Join(p.root, snapshotFile))
	if err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

type liveAccess struct {
	p *Persistence
}

// do applies fn to a copy so a failing write leaves the live state untouched.
func (a *liveAccess) do(fn func(s *state) error) error {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()

	working, err := a.p.state.clone()
	if err != nil {
		return err
	}

	err = fn(working)
	if err != nil {
		return err
	}

	err = a.p.flush(working)
	if err != nil {
		return err
	}

	a.p.state = working

	return nil
}

func (a *liveAccess) read(fn func(s *state) error) error {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()

	return fn(a.p.state)
}

type txAccess struct {
	state *state
}

func (a *txAccess) do(fn func(s *state) error) error {
	return fn(a.state)
}

func (a *txAccess) read(fn func(s *state) error) error {
	return fn(a.state)
}

type repositories struct {
	statusRepo      *StatusRepository
	workflowRepo    *WorkflowRepository
	stepRepo        *StepRepository
	transitionRepo  *TransitionRepository
	projectTypeRepo *ProjectTypeRepository
}

func newRepositories(a access) *repositories {
	return &repositories{
		statusRepo:      &StatusRepository{access: a},
		workflowRepo:    &WorkflowRepository{access: a},
		stepRepo:        &StepRepository{access: a},
		transitionRepo:  &TransitionRepository{access: a},
		projectTypeRepo: &ProjectTypeRepository{access: a},
	}
}

func (r *repositories) StatusRepository() persistence.StatusRepository {
	return r.statusRepo
}

func (r *repositories) WorkflowRepository() persistence.WorkflowRepository {
	return r.workflowRepo
}

func (r *repositories) StepRepository() persistence.StepRepository {
	return r.stepRepo
}

func (r *repositories) TransitionRepository() persistence.TransitionRepository {
	return r.transitionRepo
}

func (r *repositories) ProjectTypeRepository() persistence.ProjectTypeRepository {
	return r.projectTypeRepo
}
