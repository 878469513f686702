package models

import (
	"fmt"
	"strconv"
	"time"
)

// MilestoneSummary describes a milestone shown in the deletion confirmation
type MilestoneSummary struct {
	Title   string     `json:"title"`
	Amount  *float64   `json:"amount,omitempty"`
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// AmountDisplay renders the amount, "0" when no amount is set
func (m MilestoneSummary) AmountDisplay() string {
	if m.Amount == nil {
		return "0"
	}
	return strconv.FormatFloat(*m.Amount, 'f', -1, 64)
}

// DueDateDisplay renders the due date as YYYY-MM-DD, empty when unset
func (m MilestoneSummary) DueDateDisplay() string {
	if m.DueDate == nil {
		return ""
	}
	return m.DueDate.UTC().Format("2006-01-02")
}

// ConfirmationMessage is the prompt shown before a milestone is deleted
func (m MilestoneSummary) ConfirmationMessage() string {
	title := m.Title
	if title == "" {
		title = "this milestone"
	} else {
		title = fmt.Sprintf("%q", title)
	}
	return fmt.Sprintf("Are you sure you want to delete %s (amount %s)? This action cannot be undone.", title, m.AmountDisplay())
}

// Metadata returns remark metadata describing the milestone
func (m MilestoneSummary) Metadata() Metadata {
	md := Metadata{
		"milestoneAmount": StringValue(m.AmountDisplay()),
	}
	if m.Title != "" {
		md["milestoneTitle"] = StringValue(m.Title)
	}
	if m.DueDate != nil {
		md["milestoneDueDate"] = StringValue(m.DueDateDisplay())
	}
	return md
}
