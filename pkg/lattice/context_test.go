package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type themeCtx struct {
	Accent string
}

// TestProvideUseNearestProvider verifies descendant lookup walks to the
// nearest ancestor provider.
func TestProvideUseNearestProvider(t *testing.T) {
	var seen []string
	leaf := Define("ctxLeaf", func(NoProps) {
		theme, ok := Use[themeCtx]()
		require.True(t, ok, "a provider must be found")
		seen = append(seen, theme.Accent)
	})
	inner := Define("ctxInner", func(NoProps) {
		Provide(themeCtx{Accent: "inner"})
		leaf.Call(NoProps{})
	})
	outer := Define("ctxOuter", func(NoProps) {
		Provide(themeCtx{Accent: "outer"})
		inner.Call(NoProps{})
		leaf.Call(NoProps{})
	})

	d := newFrameDriver(t)
	d.tick(func() { outer.Call(NoProps{}) })

	assert.Equal(t, []string{"inner", "outer"}, seen,
		"the nearest ancestor provider wins")
}

// TestUseWithoutProviderReportsMissing verifies the missing-provider
// result.
func TestUseWithoutProviderReportsMissing(t *testing.T) {
	found := true
	orphan := Define("ctxOrphan", func(NoProps) {
		_, found = Use[themeCtx]()
	})

	d := newFrameDriver(t)
	d.tick(func() { orphan.Call(NoProps{}) })
	assert.False(t, found)
}

// TestContextInheritedVerbatimOnReuse verifies the recorded decision for
// replayed subtrees: the provided value travels with the spliced nodes,
// and consumers do not re-execute.
func TestContextInheritedVerbatimOnReuse(t *testing.T) {
	reads := 0
	leaf := Define("ctxReuseLeaf", func(NoProps) {
		reads++
		theme, ok := Use[themeCtx]()
		require.True(t, ok)
		assert.Equal(t, "stable", theme.Accent)
	})
	provider := Define("ctxReuseProvider", func(NoProps) {
		Provide(themeCtx{Accent: "stable"})
		leaf.Call(NoProps{})
	})

	d := newFrameDriver(t)
	d.tick(func() { provider.Call(NoProps{}) })
	d.tick(func() { provider.Call(NoProps{}) })

	assert.Equal(t, 1, reads, "a reused subtree inherits context without re-evaluating")
}

// TestContextReEvaluatedOnFullBuild verifies a rebuilt provider subtree
// sees the fresh value.
func TestContextReEvaluatedOnFullBuild(t *testing.T) {
	accent := "first"
	var observed []string
	leaf := Define("ctxRebuildLeaf", func(NoProps) {
		theme, _ := Use[themeCtx]()
		observed = append(observed, theme.Accent)
	})
	var providerKey uint64
	provider := Define("ctxRebuildProvider", func(NoProps) {
		providerKey = currentInstanceKey()
		Provide(themeCtx{Accent: accent})
		leaf.Call(NoProps{})
	})

	d := newFrameDriver(t)
	d.tick(func() { provider.Call(NoProps{}) })

	accent = "second"
	Invalidate(providerKey)
	d.tick(func() { provider.Call(NoProps{}) })

	assert.Equal(t, []string{"first", "second"}, observed)
}

// TestProvideOutsideBuildFails verifies the phase gate.
func TestProvideOutsideBuildFails(t *testing.T) {
	newFrameDriver(t)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrPhaseViolation)
	}()
	Provide(themeCtx{Accent: "nope"})
}
