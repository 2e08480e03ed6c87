package lattice

import "math"

// Unbounded is the "no limit" value for a constraint axis.
const Unbounded = math.MaxInt32

// Constraints bound one measurement: minimum and maximum extent along each
// axis, in the host's physical units.
type Constraints struct {
	MinWidth  int
	MaxWidth  int
	MinHeight int
	MaxHeight int
}

// Tight returns constraints that force exactly the given size.
func Tight(width, height int) Constraints {
	return Constraints{MinWidth: width, MaxWidth: width, MinHeight: height, MaxHeight: height}
}

// Loose returns constraints from zero up to the given size.
func Loose(width, height int) Constraints {
	return Constraints{MaxWidth: width, MaxHeight: height}
}

// Clamp restricts a size into the constraint box.
func (c Constraints) Clamp(s ComputedSize) ComputedSize {
	return ComputedSize{
		Width:  min(max(s.Width, c.MinWidth), c.MaxWidth),
		Height: min(max(s.Height, c.MinHeight), c.MaxHeight),
	}
}

// ComputedSize is the result of measuring one node.
type ComputedSize struct {
	Width  int
	Height int
}

// ChildPlacement positions one child relative to its parent's origin.
type ChildPlacement struct {
	Index int
	X, Y  int
}

// LayoutInput is handed to LayoutSpec.Measure. Child measurement is
// cache-mediated: MeasureChild consults the layout cache before recursing,
// so a spec never needs to know whether a child was re-measured or served
// from cache.
type LayoutInput struct {
	// Constraints bound this node's measurement.
	Constraints Constraints

	childCount   int
	measureChild func(i int, c Constraints) (ComputedSize, error)
	placeChild   func(i, x, y int)
}

// ChildCount reports how many children the node has.
func (in *LayoutInput) ChildCount() int { return in.childCount }

// MeasureChild measures the i-th child under the given constraints.
// Measure-phase only; the scheduler constructs LayoutInput so this cannot
// be reached from other phases.
func (in *LayoutInput) MeasureChild(i int, c Constraints) (ComputedSize, error) {
	return in.measureChild(i, c)
}

// PlaceChild positions the i-th child relative to this node's origin.
// A child left unplaced sits at the origin.
func (in *LayoutInput) PlaceChild(i, x, y int) {
	in.placeChild(i, x, y)
}

// LayoutSpec describes how one node measures itself and places its
// children. Specs are owned, clonable values compared across frames with
// DynEq; inequality marks the owning node layout-dirty.
type LayoutSpec interface {
	// SpecName names the spec for diagnostics and measurement errors.
	SpecName() string

	// Measure computes the node's size under the given constraints,
	// measuring and placing children through the input. Returning an error
	// aborts this subtree's measurement; the error is recovered at the
	// nearest boundary node or propagated out of the Measure pass.
	Measure(in *LayoutInput) (ComputedSize, error)

	// DynEq compares against another spec, typically by type assertion
	// plus field equality.
	DynEq(other LayoutSpec) bool

	// CloneSpec returns an owned copy; the runtime stores clones so later
	// host mutation of a spec value cannot alias recorded state.
	CloneSpec() LayoutSpec
}

// ConstraintInvariantSpec is the opt-in predicate that enables layout
// cache boundary hits: a spec reporting true promises its measured size
// does not depend on incoming constraints, so a cached size can be reused
// under different constraints. Specs that do not implement it are treated
// as constraint-sensitive, which is the safe default.
type ConstraintInvariantSpec interface {
	SizeInvariantUnderConstraints() bool
}

// ConstraintOpaqueSpec marks measurement boundaries for dirty propagation:
// a self-dirty descendant dirties its ancestors only up to the nearest
// node whose spec reports true.
type ConstraintOpaqueSpec interface {
	ConstraintOpaque() bool
}

// MeasureFailureBoundary lets a boundary spec absorb a descendant's
// MeasurementError, substituting a size (commonly zero) instead of
// propagating the failure further up.
type MeasureFailureBoundary interface {
	RecoverChildMeasure(err error) (ComputedSize, bool)
}

// Layout registers the layout spec for the current node. It must be
// called at most once per node per Build; components that never call it
// get the default spec, which sizes to the maximum of its children and
// stacks them at the origin.
func Layout(spec LayoutSpec) {
	ensurePhase("Layout", PhaseBuild)
	mutateCurrentNode("Layout", func(n *treeNode) {
		if n.layoutSpec != nil {
			panic(&RuntimeInvariantError{Op: "Layout", Detail: "layout spec already set for this node this Build"})
		}
		n.layoutSpec = spec.CloneSpec()
	})
}

// defaultSpec is assigned to nodes that declare no spec: children measure
// under the parent constraints, the node sizes to their maximum extent,
// and placements stay at the origin.
type defaultSpec struct{}

func (defaultSpec) SpecName() string { return "default" }

func (defaultSpec) Measure(in *LayoutInput) (ComputedSize, error) {
	var size ComputedSize
	for i := 0; i < in.ChildCount(); i++ {
		childSize, err := in.MeasureChild(i, in.Constraints)
		if err != nil {
			return ComputedSize{}, err
		}
		size.Width = max(size.Width, childSize.Width)
		size.Height = max(size.Height, childSize.Height)
	}
	return in.Constraints.Clamp(size), nil
}

func (defaultSpec) DynEq(other LayoutSpec) bool {
	_, ok := other.(defaultSpec)
	return ok
}

func (d defaultSpec) CloneSpec() LayoutSpec { return d }
