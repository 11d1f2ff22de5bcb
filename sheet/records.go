package sheet

import (
	"io"
	"time"

	"device_inventory_tool/models"
)

// 设备列
const (
	colITNr          = "ITNr"
	colSNr           = "SNr"
	colTyp           = "Typ"
	colPencil        = "Pencil"
	colKarton        = "Karton"
	colAnschJahr     = "AnschJahr"
	colAusleiheDatum = "AusleiheDatum"
	colHuelle        = "Hülle"
	colSpeicher      = "Speicher"
)

// 学生列
const (
	colSchuelerID = "SchuelerID"
	colSuSVorn    = "SuSVorn"
	colSuSNachn   = "SuSNachn"
	colSuSKl      = "SuSKl"
	colSuSGeb     = "SuSGeb"
	colSuSStrHNr  = "SuSStrHNr"
	colSuSPLZ     = "SuSPLZ"
	colSuSOrt     = "SuSOrt"
)

var deviceHeader = []string{colITNr, colSNr, colTyp, colPencil, colKarton, colAnschJahr, colAusleiheDatum, colHuelle, colSpeicher}

var studentHeader = []string{
	colSchuelerID, colSuSVorn, colSuSNachn, colSuSKl, colSuSGeb, colSuSStrHNr, colSuSPLZ, colSuSOrt,
	"Erz1Vorn", "Erz1Nachn", "Erz1StrHNr", "Erz1PLZ", "Erz1Ort",
	"Erz2Vorn", "Erz2Nachn", "Erz2StrHNr", "Erz2PLZ", "Erz2Ort",
}

func (t *table) device(i int, row []string) models.DeviceRecord {
	return models.DeviceRecord{
		Row:             sheetRowNumber(i),
		InventoryNumber: t.get(row, colITNr),
		SerialNumber:    t.get(row, colSNr),
		Model:           t.get(row, colTyp),
		Stylus:          t.get(row, colPencil),
		Packaging:       t.get(row, colKarton),
		AcquisitionYear: t.get(row, colAnschJahr),
		LoanDate:        t.get(row, colAusleiheDatum),
		Case:            t.get(row, colHuelle),
		StorageSize:     t.get(row, colSpeicher),
	}
}

func (t *table) guardian(row []string, prefix string) models.Guardian {
	return models.Guardian{
		FirstName:  t.get(row, prefix+"Vorn"),
		LastName:   t.get(row, prefix+"Nachn"),
		Street:     t.get(row, prefix+"StrHNr"),
		PostalCode: t.get(row, prefix+"PLZ"),
		City:       t.get(row, prefix+"Ort"),
	}
}

func (t *table) student(i int, row []string) models.StudentRecord {
	return models.StudentRecord{
		Row:        sheetRowNumber(i),
		ExternalID: t.get(row, colSchuelerID),
		FirstName:  t.get(row, colSuSVorn),
		LastName:   t.get(row, colSuSNachn),
		Class:      t.get(row, colSuSKl),
		BirthDate:  t.get(row, colSuSGeb),
		Street:     t.get(row, colSuSStrHNr),
		PostalCode: t.get(row, colSuSPLZ),
		City:       t.get(row, colSuSOrt),
		Guardian1:  t.guardian(row, "Erz1"),
		Guardian2:  t.guardian(row, "Erz2"),
	}
}

// ParseDevices reads a device list. Only the ITNr column is required.
func ParseDevices(r io.Reader) ([]models.DeviceRecord, error) {
	t, err := readTable(r, colITNr)
	if err != nil {
		return nil, err
	}
	out := make([]models.DeviceRecord, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		out = append(out, t.device(i, row))
	}
	return out, nil
}

// ParseStudents reads a student list exported from the school system.
func ParseStudents(r io.Reader) ([]models.StudentRecord, error) {
	t, err := readTable(r, colSuSVorn, colSuSNachn)
	if err != nil {
		return nil, err
	}
	out := make([]models.StudentRecord, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		out = append(out, t.student(i, row))
	}
	return out, nil
}

// ParseInventory reads device rows that may carry the current holder.
func ParseInventory(r io.Reader) ([]models.InventoryRecord, error) {
	t, err := readTable(r, colITNr, colSNr, colTyp, colPencil)
	if err != nil {
		return nil, err
	}
	withStudents := t.has(colSuSVorn) || t.has(colSuSNachn)

	out := make([]models.InventoryRecord, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		rec := models.InventoryRecord{Device: t.device(i, row)}
		if withStudents {
			s := t.student(i, row)
			if s.FirstName != "" || s.LastName != "" {
				rec.Student = &s
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteInventory 与 ParseInventory 的格式互逆
func WriteInventory(w io.Writer, rows []models.InventoryRow) error {
	header := append(append([]string{}, deviceHeader...), "Status")
	header = append(header, studentHeader...)
	sw, err := newWriter(header)
	if err != nil {
		return err
	}
	for _, r := range rows {
		d := r.Device
		vals := []any{d.InventoryNumber, d.SerialNumber, d.Model, d.Stylus, d.Packaging,
			d.AcquisitionYear, d.LoanDate, d.Case, d.StorageSize, d.Status.Label()}
		if s := r.Student; s != nil {
			ext := ""
			if s.ExternalID != nil {
				ext = *s.ExternalID
			}
			vals = append(vals, ext, s.FirstName, s.LastName, s.Class, s.BirthDate, s.Street, s.PostalCode, s.City,
				s.Guardian1.FirstName, s.Guardian1.LastName, s.Guardian1.Street, s.Guardian1.PostalCode, s.Guardian1.City,
				s.Guardian2.FirstName, s.Guardian2.LastName, s.Guardian2.Street, s.Guardian2.PostalCode, s.Guardian2.City)
		}
		if err := sw.append(vals); err != nil {
			return err
		}
	}
	return sw.flush(w)
}

var assignmentHeader = []string{
	colITNr, colSuSVorn, colSuSNachn, colSuSKl, "Zugewiesen", "Aufgelöst", "Aktiv", "Vertrag", "Vertragswarnung", "Warnung bestätigt",
}

const dateLayout = "02.01.2006"

// WriteAssignments 导出分配列表（德语表头，与学校表格一致）
func WriteAssignments(w io.Writer, rows []models.AssignmentView) error {
	sw, err := newWriter(assignmentHeader)
	if err != nil {
		return err
	}
	for _, a := range rows {
		dissolved := ""
		if a.DissolvedAt != nil {
			dissolved = a.DissolvedAt.Format(dateLayout)
		}
		if err := sw.append([]any{
			a.InventoryNumber, a.StudentFirstName, a.StudentLastName, a.StudentClass,
			a.AssignedAt.In(time.UTC).Format(dateLayout), dissolved,
			yesNo(a.Active), a.ContractFilename, yesNo(a.ContractWarning), yesNo(a.WarningDismissed),
		}); err != nil {
			return err
		}
	}
	return sw.flush(w)
}

func yesNo(b bool) string {
	if b {
		return "ja"
	}
	return "nein"
}
