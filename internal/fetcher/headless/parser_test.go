package headless

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

const gridFixture = `
<html><body>
<div class="product-grid">
  <div class="product-grid-body">
    <div class="product-grid-name">
      <a href="/en/product/amul-whey-protein-32g">Amul Whey Protein, 32 g | Pack of 30 Sachets</a>
    </div>
    <div class="product-grid-price">&#8377; 2,400</div>
    <a class="btn" href="#">Add to Cart</a>
  </div>
  <div class="product-grid-body">
    <div class="product-grid-name">
      <a href="/en/product/amul-high-protein-lassi">Amul High Protein Rose Lassi, 200 mL</a>
    </div>
    <div class="product-grid-price">&#8377; 30</div>
    <a class="btn" title="Notify Me" href="#">Notify Me</a>
  </div>
  <div class="product-grid-body">
    <div class="product-grid-name"><a href=""></a></div>
  </div>
  <div class="product-grid-body">
    <div class="product-grid-name">
      <a href="/en/product/amul-protein-buttermilk">Amul High Protein Buttermilk, 200 mL</a>
    </div>
    <div class="product-grid-price">&#8377; 35</div>
  </div>
</div>
</body></html>`

func TestParseGridExtractsProductsAndStates(t *testing.T) {
	t.Parallel()

	products, err := ParseGrid(gridFixture)
	require.NoError(t, err)

	// The card with no title or href is skipped.
	require.Len(t, products, 3)

	require.Equal(t, alert.ProductAvailability{
		ID:    "/en/product/amul-whey-protein-32g",
		Title: "Amul Whey Protein, 32 g | Pack of 30 Sachets",
		State: alert.StateInStock,
	}, products[0])

	require.Equal(t, "/en/product/amul-high-protein-lassi", products[1].ID)
	require.Equal(t, alert.StateSoldOut, products[1].State)

	require.Equal(t, alert.StateInStock, products[2].State)
}

func TestParseGridEmptyPage(t *testing.T) {
	t.Parallel()

	products, err := ParseGrid("<html><body><p>Maintenance</p></body></html>")
	require.NoError(t, err)
	require.Empty(t, products)
}
