package models

// TableInfo describes a user table in a project database.
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// ColumnInfo describes a single column of a user table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema is the full column layout of a user table.
type TableSchema struct {
	Table    string       `json:"table"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"row_count"`
}
