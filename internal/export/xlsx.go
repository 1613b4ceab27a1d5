package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/xuri/excelize/v2"
)

const messagesSheet = "Messages"

var messageHeadings = []string{"ID", "Sender", "Body", "Kind", "OccurredAt", "ReceivedAt"}

// WriteMessagesXLSX renders msgs as a one-sheet workbook, one row per message.
func WriteMessagesXLSX(w io.Writer, msgs []model.Message) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", messagesSheet); err != nil {
		return err
	}

	for i, h := range messageHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(messagesSheet, cell, h); err != nil {
			return err
		}
	}

	for i, m := range msgs {
		row := []any{
			m.ID,
			m.Sender,
			m.Body,
			m.Kind,
			m.OccurredAt.UTC().Format(time.RFC3339),
			m.ReceivedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(messagesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}
