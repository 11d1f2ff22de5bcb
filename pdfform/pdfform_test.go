package pdfform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"device_inventory_tool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContractFields(t *testing.T) {
	raw := map[string]any{
		"ITNr":                 " IT-01 ",
		"SuSVorn":              "Lena",
		"SuSNachn":             "Müller",
		"NutzungEinhaltung":    "/Yes",
		"NutzungKenntnisnahme": "/Yes",
		"ausgabeNeu":           "/Off",
		"ausgabeGebraucht":     "/Yes",
	}
	got := ToContractFields(raw)
	assert.Equal(t, models.ContractFields{
		InventoryNumber: "IT-01", StudentFirstName: "Lena", StudentLastName: "Müller",
		UsageAcknowledged: true, IssuedUsed: true,
	}, got)
	ok, problems := got.Validate()
	assert.True(t, ok)
	assert.Empty(t, problems)

	// 两个使用条款复选框缺一即视为未确认
	raw["NutzungKenntnisnahme"] = "/Off"
	assert.False(t, ToContractFields(raw).UsageAcknowledged)

	num := ToContractFields(map[string]any{"ITNr": float64(1234), "ausgabeNeu": true})
	assert.Equal(t, "1234", num.InventoryNumber)
	assert.True(t, num.IssuedNew)
}

func TestCheckExtension(t *testing.T) {
	assert.NoError(t, CheckExtension("vertrag.pdf"))
	assert.NoError(t, CheckExtension("VERTRAG.PDF"))
	assert.ErrorIs(t, CheckExtension("vertrag.docx"), ErrNotPDF)
	assert.ErrorIs(t, CheckExtension("vertrag"), ErrNotPDF)
}

func TestParseFieldsJSON(t *testing.T) {
	raw, err := ParseFieldsJSON(`{"ITNr":"IT-01","ausgabeNeu":"/Yes"}`)
	require.NoError(t, err)
	assert.Equal(t, "IT-01", raw["ITNr"])

	raw, err = ParseFieldsJSON(`null`)
	require.NoError(t, err)
	assert.NotNil(t, raw)

	_, err = ParseFieldsJSON(`{`)
	assert.Error(t, err)
}

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch string(body) {
		case "%PDF-form":
			assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
			assert.Equal(t, "v.pdf", r.Header.Get("X-Filename"))
			_, _ = io.WriteString(w, `{"fields":{"ITNr":"IT-01","SuSVorn":"Lena"}}`)
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"error":"no AcroForm"}`)
		}
	}))
	defer srv.Close()

	ex := New(srv.URL, 5*time.Second)
	fields, err := ex.Extract(context.Background(), "v.pdf", []byte("%PDF-form"))
	require.NoError(t, err)
	assert.Equal(t, "IT-01", fields["ITNr"])

	_, err = ex.Extract(context.Background(), "scan.pdf", []byte("%PDF-scan"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no AcroForm")
}

func TestNoExtractor(t *testing.T) {
	_, err := New("", time.Second).Extract(context.Background(), "a.pdf", nil)
	assert.ErrorIs(t, err, ErrNoExtractor)
}
