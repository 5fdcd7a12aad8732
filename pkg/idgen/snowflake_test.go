package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	const workers, perWorker = 8, 500

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := NextID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratedNumbersCarryPrefix(t *testing.T) {
	txn := GenerateTransactionNo()
	dep := GenerateDepositNo()
	wdr := GenerateWithdrawalNo()

	require.True(t, strings.HasPrefix(txn, "TXN"))
	require.True(t, strings.HasPrefix(dep, "DEP"))
	require.True(t, strings.HasPrefix(wdr, "WDR"))
	assert.Len(t, txn, len("TXN")+14+8)
	assert.NotEqual(t, GenerateTransactionNo(), txn)
}

func TestNewSnowflakeRejectsWorkerID(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)

	s, err := NewSnowflake(maxWorkerID)
	require.NoError(t, err)
	assert.Equal(t, int64(maxWorkerID), (s.Generate()>>workerIDShift)&maxWorkerID)
}

func TestGenerateSurvivesClockRollback(t *testing.T) {
	s, err := NewSnowflake(3)
	require.NoError(t, err)

	ticks := []int64{epoch + 1000, epoch + 1000, epoch + 400, epoch + 1001}
	s.now = func() int64 {
		v := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return v
	}

	var last int64
	for i := 0; i < 4; i++ {
		id := s.Generate()
		assert.Greater(t, id, last)
		last = id
	}
}
