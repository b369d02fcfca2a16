package version

import (
	"fmt"

	"github.com/objectfs/pagestate/pkg/errors"
)

// Component is a node in a page's component tree.
type Component interface {
	// Parent returns the container the component is attached to, or nil.
	Parent() Container
}

// Container holds child components in order. DetachChild and AttachChild are
// the raw tree operations used during undo: they must not report the
// mutation back to the Manager.
type Container interface {
	// IndexOf returns the position of child, or -1 if it is not a child.
	IndexOf(child Component) int
	DetachChild(child Component) error
	AttachChild(child Component, index int) error
}

// Modeled is a component whose model can be captured and restored.
type Modeled interface {
	Component
	ModelState() any
	RestoreModel(state any) error
}

// Kind identifies the variant of a Change.
type Kind int

const (
	KindAdd Kind = iota
	KindRemove
	KindModelChange
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindModelChange:
		return "model_change"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Change is one reversible mutation. The set of variants is closed: Add,
// Remove and ModelChange.
type Change interface {
	Kind() Kind
	isChange()
}

// Add records that Component was attached to a parent.
type Add struct {
	Component Component
}

// Remove records that Component was detached from Parent at Index.
type Remove struct {
	Component Component
	Parent    Container
	Index     int
}

// ModelChange records the model Component held before it was replaced.
type ModelChange struct {
	Component Modeled
	Prior     any
}

func (Add) Kind() Kind         { return KindAdd }
func (Remove) Kind() Kind      { return KindRemove }
func (ModelChange) Kind() Kind { return KindModelChange }

func (Add) isChange()         {}
func (Remove) isChange()      {}
func (ModelChange) isChange() {}

// undo reverts a single change.
func undo(c Change) error {
	switch c := c.(type) {
	case Add:
		parent := c.Component.Parent()
		if parent == nil || parent.IndexOf(c.Component) < 0 {
			return errors.NewError(errors.ErrCodeUndoInconsistent, "added component is no longer attached").
				WithComponent("version").WithOperation("undo").WithDetail("change", KindAdd.String())
		}
		if err := parent.DetachChild(c.Component); err != nil {
			return errors.Wrap(err, errors.ErrCodeUndoInconsistent, "failed to detach added component").
				WithComponent("version").WithOperation("undo")
		}
		return nil

	case Remove:
		if c.Component.Parent() != nil {
			return errors.NewError(errors.ErrCodeUndoInconsistent, "removed component has been re-attached").
				WithComponent("version").WithOperation("undo").WithDetail("change", KindRemove.String())
		}
		if err := c.Parent.AttachChild(c.Component, c.Index); err != nil {
			return errors.Wrap(err, errors.ErrCodeUndoInconsistent, "failed to re-attach removed component").
				WithComponent("version").WithOperation("undo")
		}
		return nil

	case ModelChange:
		if err := c.Component.RestoreModel(c.Prior); err != nil {
			return errors.Wrap(err, errors.ErrCodeUndoInconsistent, "failed to restore component model").
				WithComponent("version").WithOperation("undo")
		}
		return nil

	default:
		return errors.Newf(errors.ErrCodeInvalidChange, "unknown change %T", c).WithComponent("version")
	}
}

// ChangeList holds the changes recorded while one version was built.
type ChangeList struct {
	version int
	changes []Change
}

// Version returns the version number the list produced.
func (l *ChangeList) Version() int {
	return l.version
}

// Len returns the number of recorded changes.
func (l *ChangeList) Len() int {
	return len(l.changes)
}

// Changes returns a copy of the changes in recording order.
func (l *ChangeList) Changes() []Change {
	return append([]Change(nil), l.changes...)
}

func (l *ChangeList) add(c Change) {
	l.changes = append(l.changes, c)
}

// undo reverts the changes, last recorded first. It stops at the first
// failure.
func (l *ChangeList) undo() error {
	for i := len(l.changes) - 1; i >= 0; i-- {
		if err := undo(l.changes[i]); err != nil {
			return err
		}
	}
	l.changes = nil
	return nil
}
