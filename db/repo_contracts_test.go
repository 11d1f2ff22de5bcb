package db

import (
	"context"
	"testing"

	"device_inventory_tool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAssigned(t *testing.T) (*Repo, *models.Assignment) {
	t.Helper()
	r, _ := newTestRepo(t)
	devs := seedDevices(t, r, "IT-01", "IT-02")
	ss := seedStudents(t, r, "Anna Schmidt 5a", "Ben Klein 6b")
	a, err := r.CreateAssignment(context.Background(), devs["IT-01"].ID, ss[0].ID)
	require.NoError(t, err)
	return r, a
}

func TestIngestContract_LinksAndSupersedes(t *testing.T) {
	r, a := setupAssigned(t)
	ctx := context.Background()

	first, err := r.IngestContract(ctx, ContractUpload{
		Filename: "vertrag.pdf",
		Data:     []byte("%PDF-1"),
		Raw:      map[string]any{"ITNr": "IT-01", "NutzungEinhaltung": "/Yes"},
		Fields:   validFields("IT-01", " Anna", "schmidt "),
	})
	require.NoError(t, err)
	assert.True(t, first.Linked)
	assert.True(t, first.Valid)
	require.NotNil(t, first.AssignmentID)
	assert.Equal(t, a.ID, *first.AssignmentID)

	got := reloadAssignment(t, r, a.ID)
	require.NotNil(t, got.ContractID)
	assert.Equal(t, first.ContractID, *got.ContractID)
	assert.False(t, got.ContractWarning)

	c, err := r.GetContract(ctx, first.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "/Yes", c.Fields["NutzungEinhaltung"])

	// 第二份合同两项都勾选：替换旧合同并产生警告
	bad := validFields("IT-01", "Anna", "Schmidt")
	bad.IssuedUsed = true
	second, err := r.IngestContract(ctx, ContractUpload{Filename: "neu.pdf", Data: []byte("%PDF-2"), Fields: bad})
	require.NoError(t, err)
	assert.True(t, second.Linked)
	assert.False(t, second.Valid)
	assert.Contains(t, second.Problems, "both issuance conditions ticked")

	prior, err := r.GetContract(ctx, first.ContractID)
	require.NoError(t, err)
	assert.False(t, prior.Active)
	assert.NotNil(t, prior.SupersededAt)
	require.NotNil(t, prior.AssignmentID, "superseded contract keeps its assignment")

	got = reloadAssignment(t, r, a.ID)
	assert.Equal(t, second.ContractID, *got.ContractID)
	assert.True(t, got.ContractWarning)
	assert.False(t, got.WarningDismissed)

	data, err := r.ContractData(ctx, first.ContractID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1"), data.Data)
}

func TestIngestContract_Unlinked(t *testing.T) {
	r, _ := setupAssigned(t)
	ctx := context.Background()

	cases := []struct {
		name string
		up   ContractUpload
		note string
	}{
		{"no match", ContractUpload{Filename: "a.pdf", Fields: validFields("IT-02", "Ben", "Klein")}, "no active assignment matches"},
		{"wrong name", ContractUpload{Filename: "b.pdf", Fields: validFields("IT-01", "Anna", "Schmitt")}, "no active assignment matches"},
		{"missing identity", ContractUpload{Filename: "c.pdf", Fields: models.ContractFields{UsageAcknowledged: true}}, "missing ITNr or student name"},
		{"extraction failed", ContractUpload{Filename: "d.pdf", ExtractErr: "not a form"}, "field extraction failed: not a form"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := r.IngestContract(ctx, tc.up)
			require.NoError(t, err)
			assert.False(t, out.Linked)
			assert.Nil(t, out.AssignmentID)
			assert.Equal(t, tc.note, out.MatchNote)
		})
	}

	list, err := r.ListUnassignedContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(cases))
}

func TestIngestMany(t *testing.T) {
	r, _ := setupAssigned(t)
	ctx := context.Background()

	res := r.IngestMany(ctx, []ContractUpload{
		{Filename: "ok.pdf", Fields: validFields("IT-01", "Anna", "Schmidt")},
		{Filename: "orphan.pdf", Fields: validFields("IT-99", "X", "Y")},
	})
	assert.Equal(t, 1, res.Linked)
	assert.Equal(t, 1, res.Unassigned)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "orphan.pdf", res.Items[1].Filename)
}

func TestManualAssignContract(t *testing.T) {
	r, a := setupAssigned(t)
	ctx := context.Background()

	f := validFields("IT-77", "Someone", "Else")
	f.UsageAcknowledged = false
	out, err := r.IngestContract(ctx, ContractUpload{Filename: "scan.pdf", Fields: f})
	require.NoError(t, err)
	require.False(t, out.Linked)

	_, err = r.ManualAssignContract(ctx, out.ContractID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	linked, err := r.ManualAssignContract(ctx, out.ContractID, a.ID)
	require.NoError(t, err)
	assert.True(t, linked.Linked)
	assert.False(t, linked.Valid)
	assert.Empty(t, linked.MatchNote)
	assert.True(t, reloadAssignment(t, r, a.ID).ContractWarning)

	_, err = r.ManualAssignContract(ctx, out.ContractID, a.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "already linked")

	other, err := r.IngestContract(ctx, ContractUpload{Filename: "x.pdf", Fields: f})
	require.NoError(t, err)
	_, err = r.Dissolve(ctx, a.ID)
	require.NoError(t, err)
	_, err = r.ManualAssignContract(ctx, other.ContractID, a.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "dissolved assignment")
}

func TestDismissWarningAndReplace(t *testing.T) {
	r, a := setupAssigned(t)
	ctx := context.Background()

	_, err := r.DismissWarning(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "no warning yet")
	_, err = r.DismissWarning(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	f := validFields("IT-01", "Anna", "Schmidt")
	f.IssuedNew = false
	_, err = r.IngestContract(ctx, ContractUpload{Filename: "v1.pdf", Fields: f})
	require.NoError(t, err)

	got, err := r.DismissWarning(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.WarningDismissed)
	assert.True(t, got.ContractWarning, "dismissal does not re-validate")
	_, err = r.DismissWarning(ctx, a.ID)
	require.NoError(t, err, "idempotent")

	// 替换合同会重新校验并重置确认标记
	out, err := r.ReplaceContract(ctx, a.ID, ContractUpload{Filename: "v2.pdf", Fields: validFields("IT-99", "Other", "Name")})
	require.NoError(t, err)
	assert.True(t, out.Linked)
	assert.True(t, out.Valid)
	after := reloadAssignment(t, r, a.ID)
	assert.False(t, after.ContractWarning)
	assert.False(t, after.WarningDismissed)
	assert.Equal(t, out.ContractID, *after.ContractID)

	out, err = r.ReplaceContract(ctx, a.ID, ContractUpload{Filename: "v3.pdf", Fields: f})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	after = reloadAssignment(t, r, a.ID)
	assert.True(t, after.ContractWarning)
	assert.False(t, after.WarningDismissed)

	_, err = r.ReplaceContract(ctx, "missing", ContractUpload{Filename: "x.pdf"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteContract(t *testing.T) {
	r, a := setupAssigned(t)
	ctx := context.Background()

	f := validFields("IT-01", "Anna", "Schmidt")
	f.UsageAcknowledged = false
	out, err := r.IngestContract(ctx, ContractUpload{Filename: "v1.pdf", Fields: f})
	require.NoError(t, err)
	require.True(t, reloadAssignment(t, r, a.ID).ContractWarning)

	c, err := r.DeleteContract(ctx, out.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "v1.pdf", c.Filename)

	got := reloadAssignment(t, r, a.ID)
	assert.Nil(t, got.ContractID)
	assert.False(t, got.ContractWarning)
	_, err = r.GetContract(ctx, out.ContractID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.DeleteContract(ctx, out.ContractID)
	assert.ErrorIs(t, err, ErrNotFound)
}
