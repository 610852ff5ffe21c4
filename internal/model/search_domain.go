package model

// SearchDomain is a web search endpoint used to look up identifiers.
// URLTemplate contains a {q} placeholder for the escaped query.
type SearchDomain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URLTemplate string `json:"url_template"`
	Enabled     bool   `json:"enabled"`
	IsBuiltIn   bool   `json:"is_default"`
}
