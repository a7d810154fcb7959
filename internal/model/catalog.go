package model

// CatalogPage is one page of enriched catalog tokens.
type CatalogPage struct {
	Tokens   []Token `json:"tokens"`
	NextPage *int    `json:"next_page,omitempty"`
}
