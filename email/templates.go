package email

import (
	"fmt"
	"strings"

	"psut-lecture-notifier/pkg/lecture"
)

// Subject returns the notification subject for n lectures.
func Subject(n int) string {
	return fmt.Sprintf("PSUT Lectures Update: %d Found", n)
}

// CapacityStatus summarises registration capacity: "FULL" once current reaches max,
// "N spots left" below that, and "Available" when either count is unknown.
func CapacityStatus(current, maxRegs *int) string {
	if current == nil || maxRegs == nil {
		return "Available"
	}
	if *current >= *maxRegs {
		return "FULL"
	}
	return fmt.Sprintf("%d spots left", *maxRegs-*current)
}

// RenderBody renders all records into one HTML document. Absent fields are
// omitted along with their labels.
func RenderBody(records []*lecture.Record) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #1e6fb8; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".lecture { margin-bottom: 24px; padding: 16px 20px; border: 1px solid #dde3ea; border-radius: 8px; }\n")
	b.WriteString(".lecture h3 { margin: 0 0 8px 0; color: #1e6fb8; }\n")
	b.WriteString(".meta { margin: 4px 0; }\n")
	b.WriteString(".label { color: #7f8c8d; font-weight: 600; }\n")
	b.WriteString(".status { display: inline-block; padding: 2px 10px; border-radius: 12px; font-weight: 600; font-size: 0.9em; background: #e8f5e9; color: #2e7d32; }\n")
	b.WriteString(".status.full { background: #fdecea; color: #c62828; }\n")
	b.WriteString(".section { margin-top: 10px; padding-top: 8px; border-top: 1px dashed #dde3ea; font-size: 0.95em; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; font-size: 0.9em; color: #7f8c8d; border-top: 1px solid #ddd; }\n")
	b.WriteString("a { color: #1e6fb8; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".lecture { border-color: #444; }\n")
	b.WriteString(".lecture h3, a { color: #6fb1ee; }\n")
	b.WriteString(".label, .footer { color: #a0a0a0; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	if len(records) == 1 {
		b.WriteString("<h2>New PSUT Lecture Found</h2>\n")
	} else {
		b.WriteString(fmt.Sprintf("<h2>%d New PSUT Lectures Found</h2>\n", len(records)))
	}
	b.WriteString("</div>\n")

	for _, r := range records {
		if r != nil {
			renderLecture(&b, r)
		}
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString("Register through the university portal before the registration window closes.\n")
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")
	return b.String()
}

func renderLecture(b *strings.Builder, r *lecture.Record) {
	b.WriteString("<div class=\"lecture\">\n")

	title := "Community Service Lecture"
	if v := value(r.Title); v != "" {
		title = v
	}
	b.WriteString(fmt.Sprintf("<h3 dir=\"auto\">%s</h3>\n", escapeHTML(title)))

	when := joinPresent(" at ", value(r.Date), value(r.Time))
	writeMeta(b, "When", when)
	writeMeta(b, "Location", value(r.Location))
	writeMeta(b, "Activity hours", value(r.ActivityHours))

	status := CapacityStatus(r.CurrentRegistrations, r.MaxRegistrations)
	statusClass := "status"
	if status == "FULL" {
		statusClass = "status full"
	}
	b.WriteString(fmt.Sprintf("<div class=\"meta\"><span class=\"label\">Capacity:</span> <span class=\"%s\">%s</span>", statusClass, escapeHTML(status)))
	if r.CurrentRegistrations != nil && r.MaxRegistrations != nil {
		b.WriteString(fmt.Sprintf(" (%d/%d registered)", *r.CurrentRegistrations, *r.MaxRegistrations))
	}
	b.WriteString("</div>\n")

	if value(r.StartDate) != "" || value(r.EndDate) != "" {
		b.WriteString("<div class=\"section\">\n")
		writeMeta(b, "Registration opens", value(r.StartDate))
		writeMeta(b, "Registration closes", value(r.EndDate))
		b.WriteString("</div>\n")
	}

	if v := value(r.Restrictions); v != "" {
		b.WriteString("<div class=\"section\">\n")
		writeMeta(b, "Restrictions", v)
		b.WriteString("</div>\n")
	}

	if value(r.OfficerName) != "" || value(r.OfficerEmail) != "" || value(r.OfficerPhone) != "" {
		b.WriteString("<div class=\"section\">\n")
		writeMeta(b, "Officer", value(r.OfficerName))
		if v := value(r.OfficerEmail); v != "" {
			b.WriteString(fmt.Sprintf("<div class=\"meta\"><span class=\"label\">Email:</span> <a href=\"mailto:%s\">%s</a></div>\n", escapeHTML(v), escapeHTML(v)))
		}
		writeMeta(b, "Phone", value(r.OfficerPhone))
		b.WriteString("</div>\n")
	}

	if r.SourceURL != "" {
		b.WriteString(fmt.Sprintf("<div class=\"meta\"><a href=\"%s\">View on the portal</a></div>\n", escapeHTML(r.SourceURL)))
	}
	b.WriteString("</div>\n")
}

func writeMeta(b *strings.Builder, label, v string) {
	if v == "" {
		return
	}
	b.WriteString(fmt.Sprintf("<div class=\"meta\" dir=\"auto\"><span class=\"label\">%s:</span> %s</div>\n", label, escapeHTML(v)))
}

// value dereferences an optional field, treating blanks and literal null markers as absent.
func value(p *string) string {
	if p == nil {
		return ""
	}
	v := strings.TrimSpace(*p)
	switch strings.ToLower(v) {
	case "none", "null", "n/a":
		return ""
	}
	return v
}

func joinPresent(sep string, parts ...string) string {
	var present []string
	for _, p := range parts {
		if p != "" {
			present = append(present, p)
		}
	}
	return strings.Join(present, sep)
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
