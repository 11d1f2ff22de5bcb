package db

const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// RowOutcome 导入时每一行的结果
type RowOutcome struct {
	Row     int    `json:"row"`
	Key     string `json:"key"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

type ImportResult struct {
	Processed int          `json:"processed_count"`
	Created   int          `json:"created_count"`
	Updated   int          `json:"updated_count"`
	Skipped   int          `json:"skipped_count"`
	Errors    int          `json:"error_count"`
	Details   []RowOutcome `json:"details"`
}

func (res *ImportResult) add(o RowOutcome) {
	switch o.Outcome {
	case OutcomeCreated:
		res.Created++
		res.Processed++
	case OutcomeUpdated:
		res.Updated++
		res.Processed++
	case OutcomeSkipped:
		res.Skipped++
	case OutcomeError:
		res.Errors++
	}
	res.Details = append(res.Details, o)
}

// ItemOutcome 批量操作中单个 id 的结果
type ItemOutcome struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

type BatchResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items"`
}

func (b *BatchResult) record(id string, err error) {
	if err != nil {
		b.Failed++
		b.Items = append(b.Items, ItemOutcome{ID: id, Kind: ErrorKind(err), Error: err.Error()})
		return
	}
	b.Succeeded++
	b.Items = append(b.Items, ItemOutcome{ID: id, OK: true})
}
