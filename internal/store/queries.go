package store

// cheapestOffersSQL ranks every product's offers valid on the bound date by
// price, breaking ties by market name, and keeps the first of each product.
// Both drivers support window functions; they differ in placeholder syntax
// and in how price sorts.
func cheapestOffersSQL(placeholder, priceOrder string) string {
	return `WITH ranked AS (
		SELECT p.id AS product_id, p.name AS product_name, f.price, m.name AS market_name,
		       ROW_NUMBER() OVER (PARTITION BY p.id ORDER BY ` + priceOrder + `, m.name) AS rn
		FROM price_facts f
		JOIN products p ON p.id = f.product_id
		JOIN markets m ON m.id = f.market_id
		WHERE f.validity_date = ` + placeholder + `
	)
	SELECT product_id, product_name, price, market_name
	FROM ranked WHERE rn = 1
	ORDER BY product_name, product_id`
}
