package vfo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/chancap/core"
)

func TestHamlibToF(t *testing.T) {
	tt := []struct {
		value    string
		expected core.Frequency
		invalid  bool
	}{
		{"144700000", 144.7e6, false},
		{"144700000.000000\n", 144.7e6, false},
		{" 7074000 ", 7074000, false},
		{"RPRT -1", 0, true},
		{"0", 0, true},
		{"-145000000", 0, true},
		{"", 0, true},
	}
	for _, tc := range tt {
		t.Run(tc.value, func(t *testing.T) {
			actual, err := hamlibToF(tc.value)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestPollNotifiesOnlyChanges(t *testing.T) {
	responses := []string{"144700000", "144700000", "garbage", "", "145500000"}
	errs := []error{nil, nil, nil, errors.New("timeout"), nil}
	i := 0
	vfo := newVFO(func(context.Context) (string, error) {
		response, err := responses[i], errs[i]
		i++
		return response, err
	}, nil)
	var notified []core.Frequency
	vfo.OnFrequencyChange(func(f core.Frequency) {
		notified = append(notified, f)
	})

	for range responses {
		vfo.pollFrequency()
	}

	assert.Equal(t, []core.Frequency{144.7e6, 145.5e6}, notified)
	assert.Equal(t, core.Frequency(145.5e6), vfo.CurrentFrequency())
}

func TestRunPollsUntilStopped(t *testing.T) {
	polled := make(chan struct{}, 100)
	closed := false
	vfo := newVFO(func(context.Context) (string, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return "432100000", nil
	}, func() { closed = true })
	vfo.pollingInterval = time.Millisecond
	changed := make(chan core.Frequency, 1)
	vfo.OnFrequencyChange(func(f core.Frequency) {
		changed <- f
	})

	stop := make(chan struct{})
	wait := new(sync.WaitGroup)
	vfo.Run(stop, wait)

	select {
	case f := <-changed:
		assert.Equal(t, core.Frequency(432.1e6), f)
	case <-time.After(time.Second):
		t.Fatal("no frequency change")
	}
	close(stop)
	wait.Wait()

	assert.True(t, closed)
	assert.NotEmpty(t, polled)
}
