package recipients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/sheets/v4"
)

const (
	// DefaultSheetName is the tab Google Forms writes responses to.
	DefaultSheetName = "Form Responses 1"
	// DefaultEmailColumn is the 1-based column holding addresses in a form response sheet.
	DefaultEmailColumn = 2
)

// SheetSource reads addresses from one column of a spreadsheet, skipping the header row.
type SheetSource struct {
	service     *sheets.Service
	logger      *slog.Logger
	sheetID     string
	sheetName   string
	emailColumn int
}

// NewSheetSource creates a source reading column emailColumn of sheetName.
// Empty sheetName and zero emailColumn select the form response defaults.
func NewSheetSource(service *sheets.Service, sheetID, sheetName string, emailColumn int, logger *slog.Logger) *SheetSource {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	if emailColumn <= 0 {
		emailColumn = DefaultEmailColumn
	}
	return &SheetSource{
		service:     service,
		logger:      logger,
		sheetID:     sheetID,
		sheetName:   sheetName,
		emailColumn: emailColumn,
	}
}

// Fetch returns the normalized addresses. When the named tab does not exist,
// the first tab of the spreadsheet is read instead.
func (s *SheetSource) Fetch(ctx context.Context) ([]string, error) {
	if s.sheetID == "" {
		return nil, ErrNotConfigured
	}
	startTime := time.Now()

	tab, err := s.resolveTab(ctx)
	if err != nil {
		return nil, err
	}

	col := columnLetter(s.emailColumn)
	readRange := fmt.Sprintf("'%s'!%s:%s", strings.ReplaceAll(tab, "'", "''"), col, col)
	resp, err := s.service.Spreadsheets.Values.Get(s.sheetID, readRange).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read recipients column: %w", err)
	}

	var values []string
	if len(resp.Values) > 0 {
		column := resp.Values[0]
		// First row is the header.
		for i := 1; i < len(column); i++ {
			if v, ok := column[i].(string); ok {
				values = append(values, v)
			}
		}
	}
	emails := Normalize(values)

	s.logger.Info("Recipients loaded from sheet",
		"tab", tab,
		"rows", len(values),
		"recipients", len(emails),
		"duration_ms", time.Since(startTime).Milliseconds())
	return emails, nil
}

func (s *SheetSource) resolveTab(ctx context.Context) (string, error) {
	ss, err := s.service.Spreadsheets.Get(s.sheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("open spreadsheet (is it shared with the service account?): %w", err)
	}
	if len(ss.Sheets) == 0 {
		return "", fmt.Errorf("spreadsheet %s has no worksheets", s.sheetID)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheetName {
			return s.sheetName, nil
		}
	}
	first := ""
	if ss.Sheets[0].Properties != nil {
		first = ss.Sheets[0].Properties.Title
	}
	s.logger.Warn("Worksheet not found, using first worksheet", "wanted", s.sheetName, "using", first)
	return first, nil
}

// columnLetter converts a 1-based column number to A1 notation.
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
