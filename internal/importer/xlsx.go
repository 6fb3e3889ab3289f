package importer

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/flipstack/internal/domain"
)

// ReadXLSX reads cards from columns A and B of the workbook's first sheet.
func ReadXLSX(path string) ([]domain.Card, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	var cards []domain.Card
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		front, back := cleanCell(row[0]), cleanCell(row[1])
		if front == "" || back == "" {
			continue
		}
		cards = append(cards, newCard(front, back))
	}
	return cards, nil
}
