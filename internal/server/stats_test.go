package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsCountsByRcode(t *testing.T) {
	s := NewDNSStats()
	s.RecordResponse("udp", 0, false)
	s.RecordResponse("udp", 3, false)
	s.RecordResponse("tcp", 1, false)
	s.RecordResponse("udp", 2, false)
	s.RecordResponse("udp", 4, false)
	s.RecordResponse("udp", 16, false)
	s.RecordResponse("udp", 0, true)
	s.RecordDrop()
	s.RecordRateLimited()

	snap := s.Snapshot()
	assert.Equal(t, uint64(7), snap.QueriesTotal)
	assert.Equal(t, uint64(6), snap.QueriesUDP)
	assert.Equal(t, uint64(1), snap.QueriesTCP)
	assert.Equal(t, uint64(2), snap.NoError)
	assert.Equal(t, uint64(1), snap.NXDomain)
	assert.Equal(t, uint64(1), snap.FormErr)
	assert.Equal(t, uint64(1), snap.ServFail)
	assert.Equal(t, uint64(1), snap.NotImp)
	assert.Equal(t, uint64(1), snap.BadVers)
	assert.Equal(t, uint64(1), snap.Truncated)
	assert.Equal(t, uint64(1), snap.Dropped)
	assert.Equal(t, uint64(1), snap.RateLimited)
}

func TestStatsConcurrentRecording(t *testing.T) {
	s := NewDNSStats()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				s.RecordResponse("udp", 0, false)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), s.Snapshot().QueriesTotal)
}
