package db

import (
	"context"
	"errors"
	"testing"

	"device_inventory_tool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAutoAssign_DefectiveDeviceUntouched(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	devs := seedDevices(t, r, "D1", "D2", "D3")
	_, err := r.SetDeviceStatus(ctx, devs["D3"].ID, models.DeviceDefective, false)
	require.NoError(t, err)
	ss := seedStudents(t, r, "Sara Eins 7a", "Tom Zwei 7a")

	res, err := r.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 0, res.RemainingDevices)
	assert.Equal(t, 0, res.RemainingStudents)
	require.Len(t, res.Pairs, 2)
	assert.Equal(t, "D1", res.Pairs[0].InventoryNumber)
	assert.Equal(t, ss[0].ID, res.Pairs[0].StudentID)
	assert.Equal(t, "D2", res.Pairs[1].InventoryNumber)
	assert.Equal(t, ss[1].ID, res.Pairs[1].StudentID)

	d1 := reloadDevice(t, r, devs["D1"].ID)
	assert.Equal(t, models.DeviceAssigned, d1.Status)
	require.NotNil(t, d1.CurrentAssignmentID)
	assert.Equal(t, res.Pairs[0].AssignmentID, *d1.CurrentAssignmentID)
	assert.Equal(t, models.DeviceDefective, reloadDevice(t, r, devs["D3"].ID).Status)

	again, err := r.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Matched)
	assert.Empty(t, again.Pairs)

	assertActiveUniqueness(t, r)
}

func TestAutoAssign_RemainingCounts(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedDevices(t, r, "IT-03", "IT-01", "IT-02")
	seedStudents(t, r, "Anna Schmidt 5a")

	res, err := r.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 2, res.RemainingDevices)
	assert.Equal(t, 0, res.RemainingStudents)
	assert.Equal(t, "IT-01", res.Pairs[0].InventoryNumber)

	unassigned, err := r.ListUnassignedStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestCreateAssignment_Conflicts(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	devs := seedDevices(t, r, "IT-01", "IT-02")
	ss := seedStudents(t, r, "Anna Schmidt 5a", "Ben Klein 6b")

	_, err := r.CreateAssignment(ctx, devs["IT-01"].ID, ss[0].ID)
	require.NoError(t, err)

	_, err = r.CreateAssignment(ctx, devs["IT-01"].ID, ss[1].ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = r.CreateAssignment(ctx, devs["IT-02"].ID, ss[0].ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = r.CreateAssignment(ctx, "missing", ss[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.CreateAssignment(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	// 冲突回滚后 IT-02 仍可用
	assert.Equal(t, models.DeviceAvailable, reloadDevice(t, r, devs["IT-02"].ID).Status)
	assertActiveUniqueness(t, r)
}

func TestDissolve(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	devs := seedDevices(t, r, "IT-01")
	ss := seedStudents(t, r, "Anna Schmidt 5a")

	a, err := r.CreateAssignment(ctx, devs["IT-01"].ID, ss[0].ID)
	require.NoError(t, err)

	got, err := r.Dissolve(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.DissolvedAt)

	d := reloadDevice(t, r, devs["IT-01"].ID)
	assert.Equal(t, models.DeviceAvailable, d.Status)
	assert.Nil(t, d.CurrentAssignmentID)
	s, err := r.FindStudentByID(ctx, ss[0].ID)
	require.NoError(t, err)
	assert.Nil(t, s.CurrentAssignmentID)

	_, err = r.Dissolve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = r.Dissolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// 新的配对生成新记录，不复活旧记录
	b, err := r.CreateAssignment(ctx, devs["IT-01"].ID, ss[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, reloadAssignment(t, r, a.ID).Active)
}

func TestBatchDissolve(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedDevices(t, r, "IT-01", "IT-02")
	seedStudents(t, r, "Anna Schmidt 5a", "Ben Klein 6b")
	res, err := r.AutoAssign(ctx)
	require.NoError(t, err)
	first := res.Pairs[0].AssignmentID
	_, err = r.Dissolve(ctx, first)
	require.NoError(t, err)

	out := r.BatchDissolve(ctx, []string{first, res.Pairs[1].AssignmentID, "missing"})
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 2, out.Failed)
	require.Len(t, out.Items, 3)
	assert.Equal(t, "invalid_state", out.Items[0].Kind)
	assert.True(t, out.Items[1].OK)
	assert.Equal(t, "not_found", out.Items[2].Kind)

	active, err := r.ListAssignments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := r.ListAssignments(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFilterAssignments(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedDevices(t, r, "IT-01", "IT-02")
	seedStudents(t, r, "Lena Müller 8c", "Paul Meyer 9a")
	_, err := r.AutoAssign(ctx)
	require.NoError(t, err)

	got, err := r.FilterAssignments(ctx, AssignmentFilter{LastName: "Müller"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lena", got[0].StudentFirstName)
	assert.Equal(t, "IT-01", got[0].InventoryNumber)

	got, err = r.FilterAssignments(ctx, AssignmentFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = r.FilterAssignments(ctx, AssignmentFilter{LastName: "me", Class: "9"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Meyer", got[0].StudentLastName)

	got, err = r.FilterAssignments(ctx, AssignmentFilter{LastName: "meyer", InventoryNumber: "IT-01"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Dissolve(ctx, assignmentIDFor(t, r, "Meyer"))
	require.NoError(t, err)
	got, err = r.FilterAssignments(ctx, AssignmentFilter{Scope: ScopeActive})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = r.FilterAssignments(ctx, AssignmentFilter{Scope: ScopeDissolved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Meyer", got[0].StudentLastName)
}

func assignmentIDFor(t *testing.T, r *Repo, lastName string) string {
	t.Helper()
	rows, err := r.FilterAssignments(context.Background(), AssignmentFilter{LastName: lastName})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0].ID
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("", ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, ScopeActive, s)
	s, err = ParseScope(" Dissolved ", ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, ScopeDissolved, s)
	_, err = ParseScope("old", ScopeAll)
	assert.ErrorIs(t, err, ErrValidation)
}

// 自动分配、手动配对与解除同时进行时，每台设备与每个学生最多只有一个 active 分配
func TestAssignments_ConcurrentWriters(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	devs := seedDevices(t, r, "IT-01", "IT-02", "IT-03", "IT-04", "IT-05", "IT-06")
	ss := seedStudents(t, r, "Anna Schmidt 5a", "Ben Klein 6b", "Cem Yilmaz 7c",
		"Dana Wolf 8a", "Emil Roth 9b", "Fritz Berg 10a")

	pre, err := r.CreateAssignment(ctx, devs["IT-06"].ID, ss[5].ID)
	require.NoError(t, err)

	// 冲突与状态错误是预期的竞争结果，其余错误让测试失败
	tolerate := func(err error) error {
		if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState) {
			return nil
		}
		return err
	}

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := r.AutoAssign(ctx)
			return tolerate(err)
		})
	}
	for i, itnr := range []string{"IT-01", "IT-02", "IT-03"} {
		d, s := devs[itnr], ss[i]
		g.Go(func() error {
			_, err := r.CreateAssignment(ctx, d.ID, s.ID)
			return tolerate(err)
		})
		g.Go(func() error {
			_, err := r.CreateAssignment(ctx, d.ID, ss[3].ID)
			return tolerate(err)
		})
	}
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := r.Dissolve(ctx, pre.ID)
			return tolerate(err)
		})
	}
	require.NoError(t, g.Wait())

	assertActiveUniqueness(t, r)
	assert.False(t, reloadAssignment(t, r, pre.ID).Active)

	// 设备/学生上的指针与 active 分配一致
	active, err := r.ListAssignments(ctx, ScopeActive)
	require.NoError(t, err)
	for _, a := range active {
		d := reloadDevice(t, r, a.DeviceID)
		require.NotNil(t, d.CurrentAssignmentID)
		assert.Equal(t, a.ID, *d.CurrentAssignmentID)
		assert.Equal(t, models.DeviceAssigned, d.Status)
		st, err := r.FindStudentByID(ctx, a.StudentID)
		require.NoError(t, err)
		require.NotNil(t, st.CurrentAssignmentID)
		assert.Equal(t, a.ID, *st.CurrentAssignmentID)
	}
	var assigned int64
	require.NoError(t, r.DB.Model(&models.Device{}).Where("status = ?", models.DeviceAssigned).Count(&assigned).Error)
	assert.Equal(t, int64(len(active)), assigned)
}

func TestAssignments_OwnerScope(t *testing.T) {
	base, _ := newTestRepo(t)
	ctx := context.Background()
	alice := base.As(Viewer{UserID: "11111111-1111-1111-1111-111111111111"})
	bob := base.As(Viewer{UserID: "22222222-2222-2222-2222-222222222222"})

	aDevs := seedDevices(t, alice, "A-01")
	aStud := seedStudents(t, alice, "Anna Schmidt 5a")
	bDevs := seedDevices(t, bob, "B-01")
	bStud := seedStudents(t, bob, "Ben Klein 6b")

	_, err := alice.FindDeviceByID(ctx, bDevs["B-01"].ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = alice.CreateAssignment(ctx, aDevs["A-01"].ID, bStud[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// 管理员可以跨账号访问，但不同账号的设备与学生不能配对
	admin := base.As(Viewer{UserID: "33333333-3333-3333-3333-333333333333", Admin: true})
	_, err = admin.CreateAssignment(ctx, aDevs["A-01"].ID, bStud[0].ID)
	assert.ErrorIs(t, err, ErrConflict)

	res, err := base.AutoAssign(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Matched)
	for _, p := range res.Pairs {
		switch p.InventoryNumber {
		case "A-01":
			assert.Equal(t, aStud[0].ID, p.StudentID)
		case "B-01":
			assert.Equal(t, bStud[0].ID, p.StudentID)
		}
	}

	mine, err := alice.ListAssignments(ctx, ScopeAll)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "A-01", mine[0].InventoryNumber)
	require.NotNil(t, mine[0].UserID)

	_, err = alice.Dissolve(ctx, assignmentIDFor(t, bob, "Klein"))
	assert.ErrorIs(t, err, ErrForbidden)
	all, err := admin.ListAssignments(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFilterAssignments_LiteralWildcards(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedDevices(t, r, "IT_01", "IT-01")
	seedStudents(t, r, "Lena Müller 8c", "Paul Meyer 9a")
	_, err := r.AutoAssign(ctx)
	require.NoError(t, err)

	got, err := r.FilterAssignments(ctx, AssignmentFilter{InventoryNumber: "IT_"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "IT_01", got[0].InventoryNumber)

	got, err = r.FilterAssignments(ctx, AssignmentFilter{LastName: "%"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
