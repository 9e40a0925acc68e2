// Package embedding turns listings into canonical text and vectors.
package embedding

import (
	"strconv"
	"strings"

	"billboard/internal/models"
)

// GenerateText renders the canonical embedding text of a listing: one line
// per present field, always in the same order. Absent fields produce no line.
func GenerateText(l *models.Listing) string {
	var b strings.Builder
	line := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	line("Title", l.Title)
	line("Description", l.Description)
	line("Content", l.Content)
	line("Location", l.Location)
	line("City", l.City)
	line("District", l.District)
	line("Address", l.Address)
	line("Category", string(l.Category))
	line("Type", string(l.Type))
	if l.Price != nil {
		line("Price", formatFloat(*l.Price)+priceSuffix(l.Currency, l.PricePeriod))
	}
	if l.Size != nil {
		line("Size", formatFloat(*l.Size)+" sqm")
	}
	if l.Rooms != nil {
		line("Rooms", strconv.Itoa(*l.Rooms))
	}
	if l.Bedrooms != nil {
		line("Bedrooms", strconv.Itoa(*l.Bedrooms))
	}
	if l.Bathrooms != nil {
		line("Bathrooms", strconv.Itoa(*l.Bathrooms))
	}
	line("Features", strings.Join(Features(l), ", "))
	line("Amenities", strings.Join(l.Amenities, ", "))
	line("Hashtags", strings.Join(l.Hashtags, ", "))

	return strings.TrimSuffix(b.String(), "\n")
}

// Features lists the true-valued feature flags in fixed order.
func Features(l *models.Listing) []string {
	flags := []struct {
		on   bool
		name string
	}{
		{l.Furnished, "furnished"},
		{l.Balcony, "balcony"},
		{l.Garden, "garden"},
		{l.Parking, "parking"},
		{l.Elevator, "elevator"},
		{l.PetsAllowed, "pets allowed"},
		{l.SmokingAllowed, "smoking allowed"},
		{l.Accessible, "accessible"},
	}
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if f.on {
			out = append(out, f.name)
		}
	}
	return out
}

func priceSuffix(currency, period string) string {
	currency = strings.TrimSpace(currency)
	period = strings.TrimSpace(period)
	switch {
	case currency != "" && period != "":
		return " " + currency + "/" + period
	case currency != "":
		return " " + currency
	case period != "":
		return " per " + period
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
