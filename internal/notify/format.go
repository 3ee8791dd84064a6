package notify

import (
	"fmt"
	"strings"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Format renders an event into a platform-neutral message.
func Format(ev Event) Message {
	switch ev.Kind {
	case KindStatusChange:
		return formatStatusChange(ev)
	case KindWatchedChange:
		return formatWatchedChange(ev)
	case KindDueDateAlert:
		return formatDueDateAlert(ev)
	case KindSystemLog:
		return formatSystemLog(ev)
	default:
		return Message{Title: string(ev.Kind), Body: ev.Message, Severity: "info", Color: ColorInfo}
	}
}

func formatStatusChange(ev Event) Message {
	title := fmt.Sprintf("Status sync: %d ticket(s) updated", len(ev.Transitions))

	var lines []string
	var fields []Field
	for _, tr := range ev.Transitions {
		lines = append(lines, fmt.Sprintf("%s: %s → %s", tr.TicketID, tr.From, tr.To))
		fields = append(fields, Field{Name: tr.TicketID, Value: tr.From + " → " + tr.To, Short: true})
	}

	return Message{
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		Severity: "success",
		Color:    ColorSuccess,
		Fields:   fields,
	}
}

func formatWatchedChange(ev Event) Message {
	title := fmt.Sprintf("Ticket %s changed", ev.TicketID)

	var lines []string
	var fields []Field
	for _, ch := range ev.Changes {
		lines = append(lines, fmt.Sprintf("%s: %q → %q", ch.Field, ch.Old, ch.New))
		fields = append(fields, Field{Name: ch.Field, Value: ch.Old + " → " + ch.New, Short: true})
	}
	if ev.URL != "" {
		lines = append(lines, ev.URL)
	}

	return Message{
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		Severity: "info",
		Color:    ColorInfo,
		Fields:   fields,
	}
}

func formatDueDateAlert(ev Event) Message {
	total := len(ev.DueToday) + len(ev.DueTomorrow)
	title := fmt.Sprintf("Due date alert: %d ticket(s) due soon", total)

	var lines []string
	if len(ev.DueToday) > 0 {
		lines = append(lines, "Due today: "+strings.Join(ev.DueToday, ", "))
	}
	if len(ev.DueTomorrow) > 0 {
		lines = append(lines, "Due tomorrow: "+strings.Join(ev.DueTomorrow, ", "))
	}

	severity := "info"
	if len(ev.DueToday) > 0 {
		severity = "warning"
	}

	var fields []Field
	if len(ev.DueToday) > 0 {
		fields = append(fields, Field{Name: "Today", Value: strings.Join(ev.DueToday, ", "), Short: true})
	}
	if len(ev.DueTomorrow) > 0 {
		fields = append(fields, Field{Name: "Tomorrow", Value: strings.Join(ev.DueTomorrow, ", "), Short: true})
	}

	return Message{
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

func formatSystemLog(ev Event) Message {
	severity := ev.Severity
	if severity == "" {
		severity = "info"
	}
	title := "Semaphore"
	if ev.SubjectID != "" {
		title = fmt.Sprintf("Semaphore: %s", ev.SubjectID)
	}
	return Message{
		Title:    title,
		Body:     ev.Message,
		Severity: severity,
		Color:    severityColor(severity),
	}
}
