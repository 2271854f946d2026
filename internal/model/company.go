// internal/model/company.go
package model

// Company is a recipient record owned by the external company directory.
type Company struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email"`
	Industry string `db:"industry" json:"industry"`
	Region   string `db:"region" json:"region"`
}

// TargetSpec selects recipients either by explicit company ids or by a filter.
// The two modes are exclusive.
type TargetSpec struct {
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	Region     string  `json:"region,omitempty"`
	Industry   string  `json:"industry,omitempty"`
	NameQuery  string  `json:"name_query,omitempty"`
}

// IsExplicit reports whether the spec lists company ids.
func (t TargetSpec) IsExplicit() bool {
	return len(t.CompanyIDs) > 0
}

// HasFilter reports whether any filter criterion is set.
func (t TargetSpec) HasFilter() bool {
	return t.Region != "" || t.Industry != "" || t.NameQuery != ""
}
