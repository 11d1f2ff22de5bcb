// Package pdfform turns the AcroForm fields of a signed loan contract into
// the identity and checkbox values the reconciliation engine works with.
package pdfform

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"device_inventory_tool/models"
)

var ErrNotPDF = errors.New("only .pdf files are allowed")

// CheckExtension 只接受 .pdf
func CheckExtension(filename string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("%w: %s", ErrNotPDF, filename)
	}
	return nil
}

// 合同表单字段名
const (
	FieldInventoryNumber  = "ITNr"
	FieldFirstName        = "SuSVorn"
	FieldLastName         = "SuSNachn"
	FieldUsageCompliance  = "NutzungEinhaltung"
	FieldUsageAcknowledge = "NutzungKenntnisnahme"
	FieldIssuedNew        = "ausgabeNeu"
	FieldIssuedUsed       = "ausgabeGebraucht"
)

// checked 复选框的导出值因填写工具而异
func checked(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "/yes", "yes", "/on", "on", "true", "1", "x", "ja":
			return true
		}
	}
	return false
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// ToContractFields maps raw form values. Usage counts as acknowledged only
// when both usage checkboxes are ticked.
func ToContractFields(raw map[string]any) models.ContractFields {
	return models.ContractFields{
		InventoryNumber:   text(raw[FieldInventoryNumber]),
		StudentFirstName:  text(raw[FieldFirstName]),
		StudentLastName:   text(raw[FieldLastName]),
		UsageAcknowledged: checked(raw[FieldUsageCompliance]) && checked(raw[FieldUsageAcknowledge]),
		IssuedNew:         checked(raw[FieldIssuedNew]),
		IssuedUsed:        checked(raw[FieldIssuedUsed]),
	}
}

// ParseFieldsJSON 解析客户端随上传附带的已提取字段
func ParseFieldsJSON(s string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
