package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/dedent"
	"github.com/raine/didup-famiglia/internal/didup"
)

func formatText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006")
}

func formatLogin(c *didup.Client, p *didup.Profile) string {
	expires := "-"
	if at, ok := c.ExpiresAt(); ok {
		expires = at.Local().Format(time.DateTime)
	}

	return formatText(`
		Logged in as %s (%s)

		School:  %s
		Class:   %s%s %s
		Year:    %s - %s
		Student: %s
		Email:   %s

		Token expires at %s`,
		c.Username(), c.SchoolCode(),
		p.School.Name,
		p.School.Class, p.School.Section, p.School.Course,
		formatDate(p.School.YearStart), formatDate(p.School.YearEnd),
		p.User.FullName,
		p.User.Email,
		expires,
	)
}

func formatDashboard(d *didup.Dashboard) string {
	var b strings.Builder

	b.WriteString(formatText(`
		General average: %.2f
		Inbox: %d messages, %d unread`,
		d.GeneralAverage, len(d.Inbox), countUnread(d.Inbox)))
	b.WriteString("\n\nPeriods:\n")
	for _, p := range d.Periods {
		fmt.Fprintf(&b, "  %-24s %s - %s", p.Name, formatDate(p.Start), formatDate(p.End))
		if p.IsAverage {
			fmt.Fprintf(&b, "  avg %.2f", p.Average)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nSubjects:\n")
	for _, s := range d.Subjects {
		fmt.Fprintf(&b, "  %-8s %s\n", s.Shortcut, s.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func countUnread(items []*didup.InboxItem) int {
	n := 0
	for _, item := range items {
		if !item.Viewed() {
			n++
		}
	}
	return n
}
