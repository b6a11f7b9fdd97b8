package encoding

import (
	"testing"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(n int) *Encoding {
	tokens := make([]Token, n)
	words := make([]int, n)
	for i := range tokens {
		tokens[i] = Token{ID: 10 + i, Value: string(rune('a' + i)), Offsets: Offsets{Start: i, End: i + 1}}
		words[i] = i
	}
	e := New(tokens, words, 0)
	e.SetSequenceID(0)
	return e
}

func assertParallel(t *testing.T, e *Encoding) {
	t.Helper()
	n := e.Len()
	assert.Len(t, e.TypeIDs, n)
	assert.Len(t, e.Tokens, n)
	assert.Len(t, e.Offsets, n)
	assert.Len(t, e.Words, n)
	assert.Len(t, e.SpecialTokensMask, n)
	assert.Len(t, e.AttentionMask, n)
}

func TestNew(t *testing.T) {
	e := sample(3)
	assertParallel(t, e)
	assert.Equal(t, []int{10, 11, 12}, e.IDs)
	assert.Equal(t, []string{"a", "b", "c"}, e.Tokens)
	assert.Equal(t, []int{1, 1, 1}, e.AttentionMask)
	assert.Equal(t, []int{0, 0, 0}, e.SpecialTokensMask)
	assert.Equal(t, []int{0, 1, 2}, e.Words)

	noWords := New([]Token{{ID: 1, Value: "x"}}, nil, 1)
	assert.Equal(t, []int{-1}, noWords.Words)
	assert.Equal(t, []int{1}, noWords.TypeIDs)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		max       int
		stride    int
		dir       Direction
		wantIDs   []int
		overflows [][]int
	}{
		{"NoOp", 3, 5, 0, Right, []int{10, 11, 12}, nil},
		{"Right", 5, 2, 0, Right, []int{10, 11}, [][]int{{12, 13}, {14}}},
		{"Left", 5, 2, 0, Left, []int{13, 14}, [][]int{{11, 12}, {10}}},
		{"RightStride", 5, 3, 1, Right, []int{10, 11, 12}, [][]int{{12, 13, 14}}},
		{"LeftStride", 6, 3, 1, Left, []int{13, 14, 15}, [][]int{{11, 12, 13}, {10, 11}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sample(tt.n)
			require.NoError(t, e.Truncate(tt.max, tt.stride, tt.dir))
			assertParallel(t, e)
			assert.Equal(t, tt.wantIDs, e.IDs)
			require.Len(t, e.Overflowing, len(tt.overflows))
			for i, o := range e.Overflowing {
				assert.Equal(t, tt.overflows[i], o.IDs, "overflow %d", i)
				assertParallel(t, o)
			}
		})
	}

	t.Run("Zero", func(t *testing.T) {
		e := sample(3)
		require.NoError(t, e.Truncate(0, 0, Right))
		assert.Equal(t, 0, e.Len())
		require.Len(t, e.Overflowing, 1)
		assert.Equal(t, []int{10, 11, 12}, e.Overflowing[0].IDs)
	})

	t.Run("StrideTooLarge", func(t *testing.T) {
		e := sample(5)
		err := e.Truncate(2, 2, Right)
		assert.ErrorIs(t, err, common.ErrConfiguration)
	})

	t.Run("KeepsSequenceRange", func(t *testing.T) {
		e := sample(5)
		require.NoError(t, e.Truncate(2, 0, Right))
		assert.Equal(t, Range{Start: 0, End: 2}, e.SequenceRanges[0])
	})
}

func TestPad(t *testing.T) {
	t.Run("Right", func(t *testing.T) {
		e := sample(5)
		e.Pad(8, 3, 0, "[PAD]", Right)
		assertParallel(t, e)
		assert.Equal(t, 8, e.Len())
		assert.Equal(t, []int{10, 11, 12, 13, 14, 3, 3, 3}, e.IDs)
		assert.Equal(t, []int{1, 1, 1, 1, 1, 0, 0, 0}, e.AttentionMask)
		assert.Equal(t, "[PAD]", e.Tokens[7])
		assert.Equal(t, -1, e.Words[5])
	})

	t.Run("Left", func(t *testing.T) {
		e := sample(2)
		e.Pad(4, 0, 1, "<pad>", Left)
		assert.Equal(t, []int{0, 0, 10, 11}, e.IDs)
		assert.Equal(t, []int{1, 1, 0, 0}, e.TypeIDs)
		assert.Equal(t, []int{0, 0, 1, 1}, e.AttentionMask)
		assert.Equal(t, Range{Start: 2, End: 4}, e.SequenceRanges[0])
	})

	t.Run("LongerUnchanged", func(t *testing.T) {
		e := sample(5)
		e.Pad(3, 0, 0, "[PAD]", Right)
		assert.Equal(t, 5, e.Len())
	})

	t.Run("Overflowing", func(t *testing.T) {
		e := sample(5)
		require.NoError(t, e.Truncate(3, 0, Right))
		e.Pad(3, 0, 0, "[PAD]", Right)
		require.Len(t, e.Overflowing, 1)
		assert.Equal(t, []int{13, 14, 0}, e.Overflowing[0].IDs)
	})
}

func TestMergeWith(t *testing.T) {
	a := sample(2)
	b := sample(3)
	b.SetTypeID(1)
	b.SetSequenceID(1)

	a.MergeWith(b)
	assertParallel(t, a)
	assert.Equal(t, []int{10, 11, 10, 11, 12}, a.IDs)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, a.TypeIDs)
	assert.Equal(t, Range{Start: 2, End: 5}, a.SequenceRanges[1])
	assert.Equal(t, []int{0, 0, 1, 1, 1}, a.SequenceIDs())
	// pair offsets stay relative to their own input
	assert.Equal(t, Offsets{Start: 0, End: 1}, a.Offsets[2])

	t.Run("OverflowCombinations", func(t *testing.T) {
		x := sample(3)
		require.NoError(t, x.Truncate(2, 0, Right))
		y := sample(3)
		require.NoError(t, y.Truncate(2, 0, Right))
		x.MergeWith(y)
		assert.Equal(t, []int{10, 11, 10, 11}, x.IDs)
		require.Len(t, x.Overflowing, 3)
		assert.Equal(t, []int{12, 10, 11}, x.Overflowing[0].IDs)
		assert.Equal(t, []int{12, 12}, x.Overflowing[1].IDs)
		assert.Equal(t, []int{10, 11, 12}, x.Overflowing[2].IDs)
	})
}

func TestClone(t *testing.T) {
	e := sample(4)
	require.NoError(t, e.Truncate(2, 0, Right))
	c := e.Clone()
	c.IDs[0] = 99
	c.Overflowing[0].IDs[0] = 99
	assert.Equal(t, 10, e.IDs[0])
	assert.Equal(t, 12, e.Overflowing[0].IDs[0])
}

func TestDirection(t *testing.T) {
	assert.True(t, Left.Valid())
	assert.True(t, Right.Valid())
	assert.False(t, Direction("up").Valid())
}
