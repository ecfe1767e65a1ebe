package audit

import "time"

// Category mengelompokkan log berdasarkan area data.
type Category string

const (
	CategoryAccount    Category = "ACCOUNT"
	CategoryJournal    Category = "JOURNAL"
	CategoryLedger     Category = "LEDGER"
	CategoryInvoice    Category = "INVOICE"
	CategoryCash       Category = "CASH"
	CategorySettlement Category = "SETTLEMENT"
	CategoryProvision  Category = "PROVISION"
	CategoryMapping    Category = "CONFIGURATION"
	CategoryOther      Category = "OTHER"
)

// Severity menandai tingkat risiko sebuah aksi.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Action names a financial mutation.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionPost     Action = "POST"
	ActionUnpost   Action = "UNPOST"
	ActionCancel   Action = "CANCEL"
	ActionAllocate Action = "ALLOCATE"
	ActionReverse  Action = "REVERSE"
	ActionActivate Action = "ACTIVATE"
)

// Entry adalah satu baris audit_logs yang tidak pernah diubah.
type Entry struct {
	ID            string         `json:"id"`
	TableName     string         `json:"table_name"`
	RecordID      string         `json:"record_id"`
	Action        Action         `json:"action"`
	UserID        int64          `json:"user_id"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	ChangedFields []string       `json:"changed_fields"`
	Category      Category       `json:"category"`
	Severity      Severity       `json:"severity"`
	Description   string         `json:"description,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Input carries what callers know about a mutation. Category and Severity
// are derived when empty.
type Input struct {
	TableName   string
	RecordID    string
	Action      Action
	UserID      int64
	OldValues   map[string]any
	NewValues   map[string]any
	Category    Category
	Severity    Severity
	Description string
	IPAddress   string
	UserAgent   string
}

// TimelineFilters menampung filter dasar untuk audit timeline.
type TimelineFilters struct {
	From      time.Time
	To        time.Time
	TableName string
	RecordID  string
	Action    string
	Page      int
	PageSize  int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
