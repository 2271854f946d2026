// internal/model/template.go
package model

import "time"

// Template is an editable subject/body pair. Edits mutate it in place;
// campaigns keep their own copy of the patterns.
type Template struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Subject      string     `db:"subject" json:"subject"`
	Body         string     `db:"body" json:"body"`
	Placeholders []string   `db:"placeholders" json:"placeholders"`
	Category     string     `db:"category" json:"category"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
