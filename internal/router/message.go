package router

import (
	"fmt"
	"strings"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// FormatChangeMessage renders the consolidated per-pincode alert with
// grouped in-stock and sold-out sections.
func FormatChangeMessage(pincode string, inStock, soldOut []alert.Product) string {
	parts := []string{fmt.Sprintf("*Stock Update for %s*", pincode)}

	if len(inStock) > 0 {
		links := make([]string, 0, len(inStock))
		for _, p := range inStock {
			links = append(links, fmt.Sprintf("• [%s](%s)", p.Title, p.ID))
		}
		parts = append(parts, "\n✅ *Now IN STOCK*\n"+strings.Join(links, "\n"))
	}

	if len(soldOut) > 0 {
		links := make([]string, 0, len(soldOut))
		for _, p := range soldOut {
			links = append(links, fmt.Sprintf("• [%s](%s)", p.Title, p.ID))
		}
		parts = append(parts, "\n❌ *Now SOLD OUT*\n"+strings.Join(links, "\n"))
	}

	return strings.Join(parts, "\n")
}

// FormatDigestMessage renders queued alerts into one consolidated
// digest, grouped the same way as instant alerts.
func FormatDigestMessage(pending []alert.PendingAlert) string {
	var inStock, soldOut []alert.Product
	for _, pa := range pending {
		p := alert.Product{Title: pa.ProductTitle, ID: pa.ProductID}
		if pa.State == alert.StateInStock {
			inStock = append(inStock, p)
		} else {
			soldOut = append(soldOut, p)
		}
	}

	parts := []string{"*Your Stock Digest*"}
	if len(inStock) > 0 {
		links := make([]string, 0, len(inStock))
		for _, p := range inStock {
			links = append(links, fmt.Sprintf("• [%s](%s)", p.Title, p.ID))
		}
		parts = append(parts, "\n✅ *Back IN STOCK*\n"+strings.Join(links, "\n"))
	}
	if len(soldOut) > 0 {
		links := make([]string, 0, len(soldOut))
		for _, p := range soldOut {
			links = append(links, fmt.Sprintf("• [%s](%s)", p.Title, p.ID))
		}
		parts = append(parts, "\n❌ *Went SOLD OUT*\n"+strings.Join(links, "\n"))
	}
	return strings.Join(parts, "\n")
}
