package settle

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCollectsResultsInSubmissionOrder(t *testing.T) {
	var g Group
	boom := errors.New("boom")

	g.Go(func() error { return nil })
	g.Go(func() error { return boom })
	g.Go(func() error { return nil })

	errs := g.Wait()
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}

func TestGroupFailureDoesNotCancelSiblings(t *testing.T) {
	var g Group
	var completed atomic.Int32

	g.Go(func() error { return errors.New("early failure") })
	for range 4 {
		g.Go(func() error {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return nil
		})
	}

	errs := g.Wait()
	assert.Len(t, Failed(errs), 1)
	assert.EqualValues(t, 4, completed.Load())
}

func TestGroupEmpty(t *testing.T) {
	var g Group
	assert.Empty(t, g.Wait())
}

func TestFailed(t *testing.T) {
	a, b := errors.New("a"), errors.New("b")
	got := Failed([]error{nil, a, nil, b})
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0], a)
	assert.ErrorIs(t, got[1], b)
}
