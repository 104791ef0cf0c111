package model

// Market is a supermarket chain or store publishing offers.
type Market struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Category groups products. A product name is scoped to its category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is identified by its name within a category.
type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CategoryID int64  `json:"category_id"`
}

// ProductKey is the natural key of a product.
type ProductKey struct {
	Name       string
	CategoryID int64
}

// NamedRef is an id/name pair used by the filter listing.
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Filters holds the reference values offered to clients for filtering.
type Filters struct {
	Markets    []NamedRef `json:"markets"`
	Categories []NamedRef `json:"categories"`
}
