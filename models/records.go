package models

// DeviceRecord 表格中的一行设备数据（已去空白）
type DeviceRecord struct {
	Row             int
	InventoryNumber string
	SerialNumber    string
	Model           string
	StorageSize     string
	Stylus          string
	Case            string
	AcquisitionYear string
	Packaging       string
	LoanDate        string
}

type StudentRecord struct {
	Row        int
	ExternalID string
	FirstName  string
	LastName   string
	Class      string
	BirthDate  string
	Street     string
	PostalCode string
	City       string
	Guardian1  Guardian
	Guardian2  Guardian
}

// InventoryRecord 设备行，附带可选的学生（用于导入已有借用关系）
type InventoryRecord struct {
	Device  DeviceRecord
	Student *StudentRecord
}

// InventoryRow 导出用：设备 + 当前借用学生
type InventoryRow struct {
	Device  Device
	Student *Student
}
