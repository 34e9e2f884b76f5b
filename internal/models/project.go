// Package models defines core data structures for projects, tables, documents,
// vectorization jobs, and query results.
package models

import "time"

// Project represents a workspace with its own embedded database file.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
