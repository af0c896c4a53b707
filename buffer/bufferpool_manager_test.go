package buffer

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/jobala/petro/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolManager(t *testing.T) {
	t.Run("reads a page from disk", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		data := make([]byte, disk.PAGE_SIZE)
		copy(data, []byte("hello, world!"))
		require.NoError(t, diskScheduler.WriteSync(1, data))

		pageGuard, err := bufferMgr.ReadPage(1)
		require.NoError(t, err)
		defer pageGuard.Drop()

		assert.Equal(t, data, pageGuard.GetData())
		assert.Equal(t, data, bufferMgr.frames[0].data)
	})

	t.Run("writes a page to disk", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		data := make([]byte, disk.PAGE_SIZE)
		copy(data, []byte("hello, world!"))

		pageGuard, err := bufferMgr.WritePage(1)
		require.NoError(t, err)
		copy(*pageGuard.GetDataMut(), data)
		pageGuard.Drop()

		assert.Equal(t, data, bufferMgr.frames[0].data)
		assert.True(t, bufferMgr.FlushPage(1))

		res, err := diskScheduler.ReadSync(1)
		require.NoError(t, err)
		assert.Equal(t, data, res)
	})

	t.Run("evicts least recently used page", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		content := []string{"1", "2", "3"}
		for i, d := range content {
			data := make([]byte, disk.PAGE_SIZE)
			copy(data, []byte(d))
			require.NoError(t, diskScheduler.WriteSync(int64(i+1), data))
		}

		// access page 2 many times so it becomes hot
		for range 5 {
			pageGuard, err := bufferMgr.ReadPage(2)
			require.NoError(t, err)
			pageGuard.Drop()
		}

		// access page 1 once, making it the history-list LRU candidate
		pageGuard, err := bufferMgr.ReadPage(1)
		require.NoError(t, err)
		pageGuard.Drop()

		// fetching page 3 must evict page 1, not the hot page 2
		pageGuard, err = bufferMgr.ReadPage(3)
		require.NoError(t, err)
		pageGuard.Drop()

		_, ok := bufferMgr.pageTable.Find(1)
		assert.False(t, ok)
		_, ok = bufferMgr.pageTable.Find(2)
		assert.True(t, ok)
		_, ok = bufferMgr.pageTable.Find(3)
		assert.True(t, ok)
	})

	t.Run("dirty evicted pages are flushed to disk", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		content := []string{"1", "2", "3"}
		for i, d := range content {
			data := make([]byte, disk.PAGE_SIZE)
			copy(data, []byte(d))

			pageGuard, err := bufferMgr.WritePage(int64(i + 1))
			require.NoError(t, err)
			copy(*pageGuard.GetDataMut(), data)
			pageGuard.Drop()
		}

		res, err := diskScheduler.ReadSync(1)
		require.NoError(t, err)
		assert.Equal(t, content[0], string(bytes.Trim(res, "\x00")))
	})

	t.Run("pool saturation: new_page fails when every frame is pinned, then recovers", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(3, NewLrukReplacer(3, 2), diskScheduler)

		var guards [3]*WritePageGuard
		var pageIds [3]int64
		for i := 0; i < 3; i++ {
			pageId, guard, err := bufferMgr.NewPage()
			require.NoError(t, err)
			pageIds[i] = pageId
			guards[i] = guard
		}

		_, _, err := bufferMgr.NewPage()
		assert.Error(t, err)

		data := make([]byte, disk.PAGE_SIZE)
		copy(data, []byte("written before unpin"))
		copy(*guards[1].GetDataMut(), data)
		guards[1].Drop()

		pageId, guard, err := bufferMgr.NewPage()
		require.NoError(t, err)
		guard.Drop()
		assert.NotEqual(t, pageIds[1], pageId) // a brand new id, not a reused one

		guards[0].Drop()
		guards[2].Drop()

		readGuard, err := bufferMgr.ReadPage(pageIds[1])
		require.NoError(t, err)
		defer readGuard.Drop()
		assert.Equal(t, data, readGuard.GetData())
	})

	t.Run("delete_page is idempotent and refuses pinned pages", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		assert.True(t, bufferMgr.DeletePage(99)) // absent page, idempotent

		pageId, guard, err := bufferMgr.NewPage()
		require.NoError(t, err)

		assert.False(t, bufferMgr.DeletePage(pageId))
		guard.Drop()
		assert.True(t, bufferMgr.DeletePage(pageId))

		_, ok := bufferMgr.pageTable.Find(pageId)
		assert.False(t, ok)
	})

	t.Run("unpin_page reports false for absent or already unpinned pages", func(t *testing.T) {
		file := CreateDbFile(t)
		t.Cleanup(func() { _ = os.Remove(file.Name()) })

		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewScheduler(diskMgr)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		assert.False(t, bufferMgr.UnpinPage(42, false))

		pageId, guard, err := bufferMgr.NewPage()
		require.NoError(t, err)
		guard.Drop()

		assert.False(t, bufferMgr.UnpinPage(pageId, false))
	})
}

func CreateDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}

	_ = os.Truncate(file.Name(), disk.PAGE_SIZE)
	fileInfo, err := os.Stat(file.Name())
	assert.NoError(t, err)
	assert.Equal(t, int64(disk.PAGE_SIZE), fileInfo.Size())
	return file
}
