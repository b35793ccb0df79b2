package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridnote/gridnote/internal/model"
)

func stateNamed(name string) *model.State {
	return &model.State{
		Profiles: []model.ProfileWorkspace{{ID: "p1", Name: name}},
	}
}

func TestUndoRedoInverseLaw(t *testing.T) {
	const steps = 7
	m := NewManager(stateNamed("s0"), 0)
	for i := 1; i <= steps; i++ {
		m.Commit(stateNamed(fmt.Sprintf("s%d", i)))
	}

	for i := 0; i < steps; i++ {
		_, ok := m.Undo()
		require.True(t, ok, "undo step %d", i)
	}
	require.Equal(t, "s0", m.Current().Profiles[0].Name)
	require.False(t, m.CanUndo())
	require.True(t, m.CanRedo())

	for i := 0; i < steps; i++ {
		_, ok := m.Redo()
		require.True(t, ok, "redo step %d", i)
	}
	require.Equal(t, fmt.Sprintf("s%d", steps), m.Current().Profiles[0].Name)
	require.True(t, m.CanUndo())
	require.False(t, m.CanRedo())
}

func TestUndoAndRedoAreNoOpsOnEmptyStacks(t *testing.T) {
	m := NewManager(stateNamed("s0"), 0)
	_, ok := m.Undo()
	require.False(t, ok)
	_, ok = m.Redo()
	require.False(t, ok)
	require.Equal(t, "s0", m.Current().Profiles[0].Name)
}

func TestCapacityEvictsOldestSnapshot(t *testing.T) {
	m := NewManager(stateNamed("s0"), 50)
	for i := 1; i <= 60; i++ {
		m.Commit(stateNamed(fmt.Sprintf("s%d", i)))
	}

	undone := 0
	for {
		if _, ok := m.Undo(); !ok {
			break
		}
		undone++
	}
	require.Equal(t, 50, undone)
	// The oldest reachable state is s10; s9 and earlier were evicted.
	require.Equal(t, "s10", m.Current().Profiles[0].Name)
}

func TestCommitClearsRedoStack(t *testing.T) {
	m := NewManager(stateNamed("s0"), 0)
	m.Commit(stateNamed("s1"))
	m.Commit(stateNamed("s2"))
	_, ok := m.Undo()
	require.True(t, ok)
	require.True(t, m.CanRedo())

	m.Commit(stateNamed("s1b"))
	require.False(t, m.CanRedo())
	require.Equal(t, "s1b", m.Current().Profiles[0].Name)
}

func TestReplaceRecordsNothing(t *testing.T) {
	m := NewManager(stateNamed("s0"), 0)
	m.Replace(stateNamed("pulled"))
	require.False(t, m.CanUndo())
	require.False(t, m.CanRedo())
	require.Equal(t, "pulled", m.Current().Profiles[0].Name)
}

func TestAvailabilityObserverFiresSynchronously(t *testing.T) {
	m := NewManager(stateNamed("s0"), 0)
	var gotUndo, gotRedo []bool
	m.OnAvailability(func(canUndo, canRedo bool) {
		gotUndo = append(gotUndo, canUndo)
		gotRedo = append(gotRedo, canRedo)
	})
	// Registration reports the initial availability.
	require.Equal(t, []bool{false}, gotUndo)

	m.Commit(stateNamed("s1"))
	m.Undo()
	m.Redo()
	require.Equal(t, []bool{false, true, false, true}, gotUndo)
	require.Equal(t, []bool{false, false, true, false}, gotRedo)
}
