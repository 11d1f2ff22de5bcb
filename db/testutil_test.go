package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"device_inventory_tool/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRepo(t *testing.T) (*Repo, *testClock) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(conn))

	clock := &testClock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	r := NewRepo(conn)
	r.Now = clock.now
	return r, clock
}

func seedDevices(t *testing.T, r *Repo, itnrs ...string) map[string]*models.Device {
	t.Helper()
	recs := make([]models.DeviceRecord, 0, len(itnrs))
	for i, n := range itnrs {
		recs = append(recs, models.DeviceRecord{Row: i + 2, InventoryNumber: n, SerialNumber: "SN-" + n, Model: "iPad 9"})
	}
	res, err := r.ImportDevices(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, len(itnrs), res.Created, "%+v", res.Details)

	out := map[string]*models.Device{}
	for _, n := range itnrs {
		var d models.Device
		require.NoError(t, r.DB.Where("inventory_number = ?", n).First(&d).Error)
		out[n] = &d
	}
	return out
}

// seedStudents takes "First Last Class" triples.
func seedStudents(t *testing.T, r *Repo, names ...string) []*models.Student {
	t.Helper()
	recs := make([]models.StudentRecord, 0, len(names))
	for i, n := range names {
		parts := strings.Fields(n)
		require.Len(t, parts, 3)
		recs = append(recs, models.StudentRecord{Row: i + 2, FirstName: parts[0], LastName: parts[1], Class: parts[2]})
	}
	res := r.ImportStudents(context.Background(), recs)
	require.Equal(t, len(names), res.Created, "%+v", res.Details)

	out := make([]*models.Student, 0, len(names))
	for _, rec := range recs {
		var s models.Student
		require.NoError(t, r.DB.Where("first_name = ? AND last_name = ?", rec.FirstName, rec.LastName).First(&s).Error)
		out = append(out, &s)
	}
	return out
}

func reloadDevice(t *testing.T, r *Repo, id string) models.Device {
	t.Helper()
	var d models.Device
	require.NoError(t, r.DB.First(&d, "id = ?", id).Error)
	return d
}

func reloadAssignment(t *testing.T, r *Repo, id string) models.Assignment {
	t.Helper()
	var a models.Assignment
	require.NoError(t, r.DB.First(&a, "id = ?", id).Error)
	return a
}

// assertActiveUniqueness checks that no device or student holds two active assignments.
func assertActiveUniqueness(t *testing.T, r *Repo) {
	t.Helper()
	var dup int64
	require.NoError(t, r.DB.Raw(`SELECT COUNT(*) FROM (
		SELECT device_id FROM assignments WHERE active = ? GROUP BY device_id HAVING COUNT(*) > 1) x`, true).
		Scan(&dup).Error)
	require.Zero(t, dup, "device with several active assignments")
	require.NoError(t, r.DB.Raw(`SELECT COUNT(*) FROM (
		SELECT student_id FROM assignments WHERE active = ? GROUP BY student_id HAVING COUNT(*) > 1) x`, true).
		Scan(&dup).Error)
	require.Zero(t, dup, "student with several active assignments")
}

func validFields(itnr, first, last string) models.ContractFields {
	return models.ContractFields{
		InventoryNumber:   itnr,
		StudentFirstName:  first,
		StudentLastName:   last,
		UsageAcknowledged: true,
		IssuedNew:         true,
	}
}
