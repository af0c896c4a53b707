package disk

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskScheduler(t *testing.T) {
	t.Run("schedule is non blocking", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() {
			_ = os.Remove(file.Name())
		})

		diskMgr := NewDiskManager(file)
		ds := NewScheduler(diskMgr)

		data := make([]byte, PAGE_SIZE)
		copy(data, []byte("hello world"))

		writeReq := NewRequest(1, data, true)

		start := time.Now()
		ds.Schedule(writeReq)
		elapsed := time.Since(start)

		assert.Less(t, elapsed, 100*time.Millisecond)
		<-writeReq.RespCh
	})

	t.Run("can schedule read and write requests", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() {
			_ = os.Remove(file.Name())
		})

		diskMgr := NewDiskManager(file)
		ds := NewScheduler(diskMgr)

		data := make([]byte, PAGE_SIZE)
		copy(data, []byte("hello world"))

		writeReq := NewRequest(1, data, true)
		readReq := NewRequest(1, nil, false)

		ds.Schedule(writeReq)
		ds.Schedule(readReq)

		writeResp := <-writeReq.RespCh
		require.True(t, writeResp.Success)

		readResp := <-readReq.RespCh
		require.True(t, readResp.Success)
		assert.Equal(t, data, readResp.Data)
	})

	t.Run("delete request reclaims the page's slot", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() {
			_ = os.Remove(file.Name())
		})

		diskMgr := NewDiskManager(file)
		ds := NewScheduler(diskMgr)

		require.NoError(t, ds.WriteSync(1, make([]byte, PAGE_SIZE)))
		require.NoError(t, ds.DeleteSync(1))

		assert.Len(t, diskMgr.freeSlots, 1)
	})

	t.Run("repeated synchronous requests to one page are all serviced", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() {
			_ = os.Remove(file.Name())
		})

		diskMgr := NewDiskManager(file)
		ds := NewScheduler(diskMgr)

		for i := 0; i < 20; i++ {
			require.NoError(t, ds.WriteSync(1, make([]byte, PAGE_SIZE)))
		}

		data, err := ds.ReadSync(1)
		require.NoError(t, err)
		assert.Len(t, data, PAGE_SIZE)
	})
}
