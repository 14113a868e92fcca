package order

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dense asserts positions are exactly {0..n-1}.
func dense(t *testing.T, positions []int) {
	t.Helper()
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	for i, p := range sorted {
		require.Equal(t, i, p, "positions %v are not dense", positions)
	}
}

func TestAppendMonotonicity(t *testing.T) {
	var positions []int
	for n := 0; n < 10; n++ {
		p := Append(len(positions))
		assert.Equal(t, n, p)
		positions = append(positions, p)
	}
	dense(t, positions)
}

func TestMoveNoOp(t *testing.T) {
	for k := 0; k < 5; k++ {
		positions := []int{0, 1, 2, 3, 4}
		Move(positions, k, k)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, positions)
	}
}

func TestMoveForward(t *testing.T) {
	// member at 1 moves to 3: 2 and 3 shift left.
	positions := []int{0, 1, 2, 3, 4}
	Move(positions, 1, 3)
	assert.Equal(t, []int{0, 3, 1, 2, 4}, positions)
	dense(t, positions)
}

func TestMoveBackward(t *testing.T) {
	// member at 3 moves to 0: 0..2 shift right.
	positions := []int{0, 1, 2, 3, 4}
	Move(positions, 3, 0)
	assert.Equal(t, []int{1, 2, 3, 0, 4}, positions)
	dense(t, positions)
}

func TestMoveRoundTrip(t *testing.T) {
	for a := 0; a < 6; a++ {
		for b := 0; b < 6; b++ {
			if a == b {
				continue
			}
			positions := []int{0, 1, 2, 3, 4, 5}
			Move(positions, a, b)
			dense(t, positions)
			Move(positions, b, a)
			assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, positions, "move(%d,%d) then back", a, b)
		}
	}
}

func TestCompactAfterRemoval(t *testing.T) {
	positions := []int{0, 1, 2, 3, 4}
	removed := 2
	var remaining []int
	for _, p := range positions {
		if p == removed {
			continue
		}
		remaining = append(remaining, Compact(p, removed))
	}
	assert.Equal(t, []int{0, 1, 2, 3}, remaining)
	dense(t, remaining)
}

func TestValidateMove(t *testing.T) {
	assert.NoError(t, ValidateMove(0, 3, 4))
	assert.NoError(t, ValidateMove(4, 0, 4))

	err := ValidateMove(5, 0, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "less than 4")

	assert.Error(t, ValidateMove(0, 5, 4))
	assert.Error(t, ValidateMove(-1, 0, 4))
}

func TestDensityUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var positions []int
	for step := 0; step < 500; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(positions) == 0:
			positions = append(positions, Append(len(positions)))
		case op == 1:
			removedIdx := rng.Intn(len(positions))
			removedOrder := positions[removedIdx]
			positions = append(positions[:removedIdx], positions[removedIdx+1:]...)
			for i, p := range positions {
				positions[i] = Compact(p, removedOrder)
			}
		default:
			a := rng.Intn(len(positions))
			b := rng.Intn(len(positions))
			Move(positions, a, b)
		}
		dense(t, positions)
	}
}
