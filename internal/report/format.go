package report

import (
	"fmt"
	"strings"
	"time"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with binary prefixes. Values are divided
// by 1024 per step through B..TB and shown without decimals; PB is the
// terminal fallback unit and keeps one decimal place.
func FormatBytes(n int64) string {
	value := float64(n)

	for _, unit := range byteUnits {
		if value < 1024 {
			return fmt.Sprintf("%.0f %s", value, unit)
		}
		value /= 1024
	}

	return fmt.Sprintf("%.1f PB", value)
}

// Format renders the report as the summary message sent to recipients.
func (r Report) Format(now time.Time) string {
	var b strings.Builder

	b.WriteString("📊 <b>Status report</b>\n\n")
	fmt.Fprintf(&b, "📈 <b>Upload:</b> [ %s ]\n", FormatBytes(r.TotalUp))
	fmt.Fprintf(&b, "📥 <b>Download:</b> [ %s ]\n\n", FormatBytes(r.TotalDown))
	fmt.Fprintf(&b, "👥 <b>Clients:</b> [ %d ]\n", r.UserCount)
	fmt.Fprintf(&b, "🟢 <b>Online:</b> [ %d ]\n", r.OnlineCount)
	fmt.Fprintf(&b, "⏳ <b>Expiring soon:</b> [ %d ]\n", r.ExpiringCount)
	fmt.Fprintf(&b, "🚫 <b>Expired:</b> [ %d ]\n", r.ExpiredCount)
	fmt.Fprintf(&b, "📉 <b>Low traffic:</b> [ %d ]\n\n", r.LowTrafficCount)
	fmt.Fprintf(&b, "Last updated: %s", now.Format("2006-01-02 15:04:05"))

	return b.String()
}

// FormatList renders one of the status lists (online/expiring/expired) with
// its header and per-client lines.
func FormatList(header string, items []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s [ %d ]\n", header, len(items))
	for _, item := range items {
		fmt.Fprintf(&b, "\n👤 - [ %s ]", escapeHTML(item))
	}

	return b.String()
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
