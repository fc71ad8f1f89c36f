package headless

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// ParseGrid extracts product availability from a rendered category page.
// A card with a "Notify Me" affordance is sold out; its absence means in
// stock. Cards that fail to parse are skipped so one broken card never
// fails the whole snapshot.
func ParseGrid(html string) ([]alert.ProductAvailability, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	var products []alert.ProductAvailability
	doc.Find("div.product-grid-body").Each(func(_ int, card *goquery.Selection) {
		name := card.Find("div.product-grid-name a").First()
		title := strings.TrimSpace(name.Text())
		href, ok := name.Attr("href")
		if title == "" || !ok || href == "" {
			return
		}

		state := alert.StateInStock
		if card.Find(`a[title="Notify Me"]`).Length() > 0 {
			state = alert.StateSoldOut
		}

		products = append(products, alert.ProductAvailability{
			ID:    href,
			Title: title,
			State: state,
		})
	})
	return products, nil
}
