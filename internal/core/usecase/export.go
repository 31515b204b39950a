package usecase

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

const exportSheet = "Transactions"

// exportTypes is the column order of the workbook, one column per
// related-document type.
var exportTypes = []domain.Classification{
	domain.ClassSalesQuotation,
	domain.ClassPurchaseOrder,
	domain.ClassOrderConfirmation,
	domain.ClassShippingDocument,
	domain.ClassPackingSlip,
	domain.ClassInventoryReceipt,
	domain.ClassPayment,
	domain.ClassRMA,
	domain.ClassCredit,
}

// Export renders the session's bundle list to an xlsx workbook: one row
// per invoice anchor, with the first related document id per type.
func (s *BinderService) Export(sessionID string, w io.Writer) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	bundles := session.snapshot()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("name export sheet: %w", err)
	}

	header := []any{"Invoice Document", "PO Number", "Related Count"}
	for _, t := range exportTypes {
		header = append(header, exportColumnTitle(t))
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for i, bundle := range bundles {
		poNumber := bundle.Invoice.PONumber
		if !bundle.Invoice.HasPONumber() {
			poNumber = "N/A"
		}
		row := []any{bundle.Invoice.DocumentID, poNumber, len(bundle.Related)}
		for _, t := range exportTypes {
			if rec, ok := bundle.SelectByType(t); ok {
				row = append(row, rec.DocumentID)
			} else {
				row = append(row, "")
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("compute export cell: %w", err)
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write export workbook: %w", err)
	}
	return nil
}

func exportColumnTitle(t domain.Classification) string {
	words := strings.Split(strings.ToLower(string(t)), "_")
	for i, word := range words {
		if word == "rma" {
			words[i] = "RMA"
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
