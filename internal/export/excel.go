// Package export renders a season's allocation as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"bookaway/internal/calendar"
	"bookaway/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "2006-01-02 15:04:05"
	WeeksSheet     = "Weeks"
	BookingsSheet  = "Bookings"
	maxSheetLength = 31
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sheetWriter appends rows to the sheets of a workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if len(name) > maxSheetLength {
		name = name[:maxSheetLength]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := w.file.SetCellStyle(w.currentSheet, start, end, style); err != nil {
		return err
	}
	return w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func (w *sheetWriter) writeRow(row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d of %s: %w", w.currentRow, w.currentSheet, err)
	}
	w.currentRow++
	return nil
}

// WriteSeason writes the workbook of a season to out. The Weeks sheet has one
// row per week with its winner; the Bookings sheet lists every booking.
func WriteSeason(out io.Writer, season *models.Season, weeks []models.WeekWithBookings) error {
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(WeeksSheet); err != nil {
		return err
	}
	if err := w.writeHeader([]string{
		"Week", "From", "To", "Bookability", "Not bookable days", "Bookable days", "Winner", "Points", "Requests",
	}); err != nil {
		return err
	}
	for _, week := range weeks {
		winner, points := "", 0
		for _, b := range week.Bookings {
			if b.Status == models.BookingBooked {
				winner, points = b.UserID, b.PointsSpent
			}
		}
		if err := w.writeRow([]any{
			week.WeekNumber,
			week.From.Format(dateLayout),
			week.To.Format(dateLayout),
			string(week.Bookability),
			formatDays(week),
			len(calendar.BookableDays(week.Week)),
			winner,
			points,
			len(week.Bookings),
		}); err != nil {
			return err
		}
	}

	if err := w.addSheet(BookingsSheet); err != nil {
		return err
	}
	if err := w.writeHeader([]string{
		"Booking", "Week", "User", "Priority", "Points", "Status", "Requested at",
	}); err != nil {
		return err
	}
	for _, week := range weeks {
		for _, b := range week.Bookings {
			if err := w.writeRow([]any{
				b.ID,
				week.WeekNumber,
				b.UserID,
				string(b.Priority),
				b.PointsSpent,
				string(b.Status),
				b.RequestedAt.UTC().Format(timeLayout),
			}); err != nil {
				return err
			}
		}
	}

	if err := w.file.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s (%s)", season.Name, season.Status),
		Creator: "bookaway",
	}); err != nil {
		return err
	}
	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName returns the download name of a season workbook.
func FileName(season *models.Season) string {
	return fmt.Sprintf("season_%d_%s.xlsx", season.ID, season.From.Format(dateLayout))
}

func formatDays(week models.WeekWithBookings) string {
	days := make([]string, len(week.NotBookableDays))
	for i, d := range week.NotBookableDays {
		days[i] = d.Format(dateLayout)
	}
	return strings.Join(days, ", ")
}
