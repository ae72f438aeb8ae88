package jobs

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"memos/internal/notify"
)

func TestEnqueueEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Job{}))

	msg := notify.Message{
		Recipients: []string{"bob@example.com"},
		Subject:    "memo alice-1-A has gone into signoff",
		Body:       "please review",
	}
	require.NoError(t, EnqueueEmail(gdb, msg))

	var job Job
	require.NoError(t, gdb.First(&job).Error)
	require.Equal(t, TypeEmailDispatch, job.Type)
	require.Equal(t, "PENDING", job.Status)
	require.Equal(t, 8, job.MaxAttempts)
	require.Zero(t, job.Attempts)

	var got notify.Message
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, msg, got)
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Job{}))

	sentinel := gorm.ErrInvalidData
	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := EnqueueEmail(tx, notify.Message{Subject: "doomed"}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var n int64
	require.NoError(t, gdb.Model(&Job{}).Count(&n).Error)
	require.Zero(t, n)
}
