// Package version keeps undo-based version history for a page's component
// tree.
package version

import (
	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/utils"
)

// Manager records the component mutations of one page, grouped by version,
// and rolls the page back by undoing them.
//
// Version numbers start at 0. BeginVersion increments the current number and
// EndVersion seals it. At most maxVersions change lists are retained; older
// ones are dropped without being undone, which moves the floor of
// retrievable versions forward.
//
// A Manager belongs to a single page and is not safe for concurrent use;
// callers serialize access per page.
type Manager struct {
	maxVersions int
	current     int
	stack       []*ChangeList
	active      *ChangeList

	logger   *utils.StructuredLogger
	onExpire func(version int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithExpireHook registers fn to be called with each version number that
// becomes unreachable through expiry.
func WithExpireHook(fn func(version int)) Option {
	return func(m *Manager) {
		m.onExpire = fn
	}
}

// NewManager creates a manager retaining at most maxVersions change lists.
func NewManager(maxVersions int, opts ...Option) (*Manager, error) {
	if maxVersions <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidBound, "max versions must be positive, got %d", maxVersions).
			WithComponent("version")
	}
	m := &Manager{
		maxVersions: maxVersions,
		logger:      utils.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("version")
	return m, nil
}

// BeginVersion starts recording a new version.
func (m *Manager) BeginVersion() error {
	if m.active != nil {
		return errors.Newf(errors.ErrCodeVersionInProgress, "version %d is still being recorded", m.current).
			WithComponent("version").WithOperation("BeginVersion")
	}
	m.current++
	m.active = &ChangeList{version: m.current}
	return nil
}

// ComponentAdded records that c was attached.
func (m *Manager) ComponentAdded(c Component) error {
	if err := m.requireActive("ComponentAdded"); err != nil {
		return err
	}
	if c == nil {
		return errors.NewError(errors.ErrCodeInvalidChange, "component is nil").
			WithComponent("version").WithOperation("ComponentAdded")
	}
	m.active.add(Add{Component: c})
	return nil
}

// ComponentRemoved records that c is about to be detached. It must be called
// while c is still attached so its parent and position can be captured.
func (m *Manager) ComponentRemoved(c Component) error {
	if err := m.requireActive("ComponentRemoved"); err != nil {
		return err
	}
	if c == nil {
		return errors.NewError(errors.ErrCodeInvalidChange, "component is nil").
			WithComponent("version").WithOperation("ComponentRemoved")
	}
	parent := c.Parent()
	if parent == nil {
		return errors.NewError(errors.ErrCodeInvalidChange, "removed component has no parent").
			WithComponent("version").WithOperation("ComponentRemoved")
	}
	index := parent.IndexOf(c)
	if index < 0 {
		return errors.NewError(errors.ErrCodeInvalidChange, "removed component is not a child of its parent").
			WithComponent("version").WithOperation("ComponentRemoved")
	}
	m.active.add(Remove{Component: c, Parent: parent, Index: index})
	return nil
}

// ComponentModelChanging records c's current model before it is replaced.
func (m *Manager) ComponentModelChanging(c Modeled) error {
	if err := m.requireActive("ComponentModelChanging"); err != nil {
		return err
	}
	if c == nil {
		return errors.NewError(errors.ErrCodeInvalidChange, "component is nil").
			WithComponent("version").WithOperation("ComponentModelChanging")
	}
	m.active.add(ModelChange{Component: c, Prior: c.ModelState()})
	return nil
}

// EndVersion seals the active version and expires the oldest retained
// version if the bound is exceeded.
func (m *Manager) EndVersion() error {
	if err := m.requireActive("EndVersion"); err != nil {
		return err
	}
	m.stack = append(m.stack, m.active)
	m.active = nil

	for len(m.stack) > m.maxVersions {
		m.ExpireOldest()
	}
	return nil
}

// GetVersion rolls the page back to version n by undoing change lists, most
// recent first. It reports false without touching the page if n is outside
// [Floor, CurrentVersion]. Undone versions cannot be redone.
//
// An undo inconsistency is returned as an UNDO_INCONSISTENT error; the page
// is then in an undefined state and must not be reused.
func (m *Manager) GetVersion(n int) (bool, error) {
	if m.active != nil {
		return false, errors.Newf(errors.ErrCodeVersionInProgress, "cannot roll back while version %d is being recorded", m.current).
			WithComponent("version").WithOperation("GetVersion")
	}
	if n < m.Floor() || n > m.current {
		return false, nil
	}

	for m.current > n {
		list := m.stack[len(m.stack)-1]
		m.stack[len(m.stack)-1] = nil
		m.stack = m.stack[:len(m.stack)-1]
		m.current--

		if err := list.undo(); err != nil {
			m.logger.Error("undo failed", map[string]interface{}{
				"version": list.version,
				"target":  n,
				"error":   err,
			})
			if pe, ok := err.(*errors.PageStateError); ok {
				pe.WithDetail("version", list.version)
			}
			return false, err
		}
	}
	return true, nil
}

// ExpireOldest drops the oldest retained change list without undoing it. It
// reports false if nothing is retained.
func (m *Manager) ExpireOldest() bool {
	if len(m.stack) == 0 {
		return false
	}
	expired := m.Floor()
	m.stack[0] = nil
	m.stack = m.stack[1:]

	m.logger.Debug("version expired", map[string]interface{}{
		"version":  expired,
		"floor":    m.Floor(),
		"retained": len(m.stack),
	})
	if m.onExpire != nil {
		m.onExpire(expired)
	}
	return true
}

// CurrentVersion returns the current version number. While a version is
// being recorded this is the number it will have.
func (m *Manager) CurrentVersion() int {
	return m.current
}

// Floor returns the oldest version number that GetVersion can reach.
func (m *Manager) Floor() int {
	committed := m.current
	if m.active != nil {
		committed--
	}
	return committed - len(m.stack)
}

// Versions returns the number of retrievable versions, the current one
// included.
func (m *Manager) Versions() int {
	committed := m.current
	if m.active != nil {
		committed--
	}
	return committed - m.Floor() + 1
}

// InProgress reports whether a version is being recorded.
func (m *Manager) InProgress() bool {
	return m.active != nil
}

// Active returns the change list being recorded, or nil.
func (m *Manager) Active() *ChangeList {
	return m.active
}

func (m *Manager) requireActive(operation string) error {
	if m.active == nil {
		return errors.NewError(errors.ErrCodeNoActiveVersion, "no version is being recorded").
			WithComponent("version").WithOperation(operation)
	}
	return nil
}
