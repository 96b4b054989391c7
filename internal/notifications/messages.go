package notifications

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const dateLayout = "2006-01-02"

var printer = message.NewPrinter(language.English)

// OrderCreated is sent to every production user when an order is opened.
func OrderCreated(reference, customer string, deadline time.Time) string {
	return printer.Sprintf("New production order for quotation %s (%s). Delivery deadline: %s.",
		reference, customer, deadline.Format(dateLayout))
}

// OrderStatusChanged is sent to the quotation owner after a status transition.
func OrderStatusChanged(reference, status, note string) string {
	msg := printer.Sprintf("Production order for quotation %s is now %s.", reference, Humanize(status))
	if note = strings.TrimSpace(note); note != "" {
		msg += " Note: " + note
	}
	return msg
}

// ProgressUpdated is sent to the quotation owner after item progress changes.
func ProgressUpdated(reference string, completed, total int, percent float64, note string) string {
	msg := printer.Sprintf("Production progress for quotation %s: %d of %d units done (%.1f%%).",
		reference, completed, total, percent)
	if note = strings.TrimSpace(note); note != "" {
		msg += " Note: " + note
	}
	return msg
}

// Amount formats a decimal string with thousands separators, keeping two places.
func Amount(value string) string {
	whole, frac, _ := strings.Cut(value, ".")
	sign := ""
	if strings.HasPrefix(whole, "-") {
		sign, whole = "-", whole[1:]
	}
	var n int64
	if _, err := fmt.Sscan(whole, &n); err != nil {
		return value
	}
	frac = (frac + "00")[:2]
	return sign + printer.Sprintf("%d", n) + "." + frac
}

// Humanize turns snake_case status values into words.
func Humanize(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
