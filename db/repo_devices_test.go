package db

import (
	"context"
	"testing"

	"device_inventory_tool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportDevices(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := r.UpdateSettings(ctx, SettingsInput{DefaultDeviceModel: "iPad 10", DefaultStylus: "Apple Pencil", DefaultCase: "Logitech"})
	require.NoError(t, err)

	res, err := r.ImportDevices(ctx, []models.DeviceRecord{
		{Row: 2, InventoryNumber: "IT-001", SerialNumber: "SN1"},
		{Row: 3, InventoryNumber: ""},
		{Row: 4, InventoryNumber: "IT-002", SerialNumber: "SN2", Model: "iPad Air"},
		{Row: 5, InventoryNumber: "IT-001", SerialNumber: "SN1b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.Details, 4)
	assert.Equal(t, OutcomeError, res.Details[3].Outcome)
	assert.Contains(t, res.Details[3].Message, "row 2")

	var d1 models.Device
	require.NoError(t, r.DB.Where("inventory_number = ?", "IT-001").First(&d1).Error)
	assert.Equal(t, models.DeviceAvailable, d1.Status)
	assert.Equal(t, "iPad 10", d1.Model)
	assert.Equal(t, "Apple Pencil", d1.Stylus)
	assert.Equal(t, "Logitech", d1.Case)

	t.Run("update keeps status and blank cells", func(t *testing.T) {
		_, err := r.SetDeviceStatus(ctx, d1.ID, models.DeviceDefective, false)
		require.NoError(t, err)

		res, err := r.ImportDevices(ctx, []models.DeviceRecord{{Row: 2, InventoryNumber: "IT-001", StorageSize: "64GB"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Updated)

		got := reloadDevice(t, r, d1.ID)
		assert.Equal(t, models.DeviceDefective, got.Status)
		assert.Equal(t, "64GB", got.StorageSize)
		assert.Equal(t, "SN1", got.SerialNumber)
	})
}

func TestSetDeviceStatus(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	devs := seedDevices(t, r, "IT-001", "IT-002")
	ss := seedStudents(t, r, "Anna Schmidt 5a")
	d := devs["IT-001"]

	_, err := r.SetDeviceStatus(ctx, "missing", models.DeviceDefective, false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceStatus("kaputt"), false)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceAssigned, true)
	assert.ErrorIs(t, err, ErrConflict, "assigned is owned by the assignment engine")

	a, err := r.CreateAssignment(ctx, d.ID, ss[0].ID)
	require.NoError(t, err)

	_, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceAvailable, true)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceStolen, false)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := r.SetDeviceStatus(ctx, d.ID, models.DeviceStolen, true)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStolen, got.Status)

	// stolen 在解除分配后保持
	_, err = r.Dissolve(ctx, a.ID)
	require.NoError(t, err)
	after := reloadDevice(t, r, d.ID)
	assert.Equal(t, models.DeviceStolen, after.Status)
	assert.Nil(t, after.CurrentAssignmentID)

	avail, err := r.ListAvailableDevices(ctx)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "IT-002", avail[0].InventoryNumber)

	_, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceAvailable, false)
	assert.ErrorIs(t, err, ErrConflict)
	got, err = r.SetDeviceStatus(ctx, d.ID, models.DeviceAvailable, true)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceAvailable, got.Status)
}

func TestListDevicesAndHistory(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	devs := seedDevices(t, r, "IT-001", "IT-002")
	ss := seedStudents(t, r, "Anna Schmidt 5a", "Ben Klein 6b")

	a1, err := r.CreateAssignment(ctx, devs["IT-001"].ID, ss[0].ID)
	require.NoError(t, err)
	_, err = r.Dissolve(ctx, a1.ID)
	require.NoError(t, err)
	_, err = r.CreateAssignment(ctx, devs["IT-001"].ID, ss[1].ID)
	require.NoError(t, err)

	all, err := r.ListDevices(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].StudentLastName)
	assert.Equal(t, "Klein", *all[0].StudentLastName)
	assert.Nil(t, all[1].AssignmentID)

	avail, err := r.ListDevices(ctx, models.DeviceAvailable)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "IT-002", avail[0].InventoryNumber)

	h, err := r.DeviceHistory(ctx, devs["IT-001"].ID)
	require.NoError(t, err)
	require.Len(t, h.Assignments, 2)
	assert.True(t, h.Assignments[0].Active)
	assert.Equal(t, "Klein", h.Assignments[0].StudentLastName)
	assert.False(t, h.Assignments[1].Active)

	_, err = r.DeviceHistory(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
