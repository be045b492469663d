package view

import (
	"fmt"
	"strings"
	"time"

	"notedb/internal/domain"
)

const isoDay = "2006-01-02"

// Day is one cell of the month grid.
type Day struct {
	Date    string                `json:"date"`
	Day     int                   `json:"day"`
	InMonth bool                  `json:"inMonth"`
	Rows    []*domain.DatabaseRow `json:"rows"`
}

// Calendar is a Monday-first month grid plus the rows without a usable date.
type Calendar struct {
	DateColumn string                `json:"dateColumn"`
	Year       int                   `json:"year"`
	Month      time.Month            `json:"month"`
	Weeks      [][]Day               `json:"weeks"`
	NoDate     []*domain.DatabaseRow `json:"noDate"`
}

// DateColumn resolves the calendar's date column, defaulting to the first
// date column.
func DateColumn(schema *domain.DatabaseSchema, id string) (*domain.ColumnDef, error) {
	if id == "" {
		if c := firstColumnOfType(schema, domain.ColTypeDate); c != nil {
			return c, nil
		}
		return nil, domain.ErrInvalidDateColumn
	}
	col, ok := schema.Column(id)
	if !ok || col.Type != domain.ColTypeDate {
		return nil, fmt.Errorf("date column %q: %w", id, domain.ErrInvalidDateColumn)
	}
	return col, nil
}

// RowDay returns the YYYY-MM-DD day a date value falls on.
func RowDay(v domain.FieldValue) (string, bool) {
	day := domain.DatePrefix(strings.TrimSpace(v.String()))
	if _, err := time.Parse(isoDay, day); err != nil {
		return "", false
	}
	return day, true
}

// ParseDay validates and normalizes a day string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(isoDay, domain.DatePrefix(strings.TrimSpace(s)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// BuildCalendar lays out the month containing (year, month). Rows are placed
// under the day matching the first 10 characters of their date; rows with a
// missing or unparseable date go to NoDate.
func BuildCalendar(schema *domain.DatabaseSchema, dateColumn string, rows []*domain.DatabaseRow, year int, month time.Month) (*Calendar, error) {
	col, err := DateColumn(schema, dateColumn)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]*domain.DatabaseRow)
	cal := &Calendar{DateColumn: col.ID, Year: year, Month: month, NoDate: []*domain.DatabaseRow{}}
	for _, r := range rows {
		day, ok := RowDay(r.Field(col.ID))
		if !ok {
			cal.NoDate = append(cal.NoDate, r)
			continue
		}
		byDay[day] = append(byDay[day], r)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(first.Weekday()) + 6) % 7 // Monday = 0
	cur := first.AddDate(0, 0, -offset)
	last := first.AddDate(0, 1, -1)

	for !cur.After(last) {
		week := make([]Day, 7)
		for i := range week {
			key := cur.Format(isoDay)
			cells := byDay[key]
			if cells == nil {
				cells = []*domain.DatabaseRow{}
			}
			week[i] = Day{Date: key, Day: cur.Day(), InMonth: cur.Month() == month, Rows: cells}
			cur = cur.AddDate(0, 0, 1)
		}
		cal.Weeks = append(cal.Weeks, week)
	}
	return cal, nil
}

// Find returns the grid cell for date, if it is part of the grid.
func (c *Calendar) Find(date string) (*Day, bool) {
	for wi := range c.Weeks {
		for di := range c.Weeks[wi] {
			if c.Weeks[wi][di].Date == date {
				return &c.Weeks[wi][di], true
			}
		}
	}
	return nil, false
}
