package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type ExportService interface {
	// ExportRequestsXLSX builds an XLSX workbook of purchase requests in a
	// date window and returns its bytes with a suggested file name. Roles
	// without global visibility export only their own requests.
	ExportRequestsXLSX(ctx context.Context, actor model.Actor, from, to *time.Time) ([]byte, string, error)
}

type exportService struct {
	requests       repository.RequestRepository
	financeViewAll bool
	now            func() time.Time
}

func NewExportService(requests repository.RequestRepository, financeViewAll bool) ExportService {
	return &exportService{requests: requests, financeViewAll: financeViewAll, now: time.Now}
}

func (s *exportService) ExportRequestsXLSX(ctx context.Context, actor model.Actor, from, to *time.Time) ([]byte, string, error) {
	// Normalize bounds to whole days in UTC; an open upper bound with a set
	// lower bound closes at today.
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := s.now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	var ownerID *uuid.UUID
	if !actor.Role.CanViewAllRequests(s.financeViewAll) {
		ownerID = &actor.ID
	}

	requests, err := s.requests.ListBetween(ctx, ownerID, fromDate, toDate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch purchase requests: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Purchase Requests"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("failed to drop default sheet: %w", err)
	}
	index, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(index)

	headers := []string{
		"Created",
		"Title",
		"Description",
		"Amount",
		"Status",
		"Requester",
		"Vendor",
		"PO Number",
		"PO Generated",
		"Receipt Valid",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, req := range requests {
		row := rowIdx + 2
		write := func(col int, v interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		vendor := ""
		poNumber := ""
		poGenerated := ""
		if req.DocumentMetadata != nil {
			vendor = req.DocumentMetadata.Vendor
			if req.DocumentMetadata.PurchaseOrder != nil {
				poNumber = req.DocumentMetadata.PurchaseOrder.PONumber
			}
		}
		if req.POGeneratedAt != nil {
			poGenerated = req.POGeneratedAt.Format("2006-01-02")
		}
		receiptValid := ""
		if req.ReceiptValidation != nil {
			receiptValid = "no"
			if req.ReceiptValidation.IsValid {
				receiptValid = "yes"
			}
		}
		requester := ""
		if req.CreatedBy != nil {
			requester = req.CreatedBy.Name
		}

		write(1, req.CreatedAt.Format("2006-01-02"))
		write(2, req.Title)
		write(3, req.Description)
		write(4, req.Amount.StringFixed(2))
		write(5, req.Status)
		write(6, requester)
		write(7, vendor)
		write(8, poNumber)
		write(9, poGenerated)
		write(10, receiptValid)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 30)
	_ = f.SetColWidth(sheet, "C", "C", 40)
	_ = f.SetColWidth(sheet, "D", "E", 12)
	_ = f.SetColWidth(sheet, "F", "G", 22)
	_ = f.SetColWidth(sheet, "H", "I", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("purchase_requests_%s.xlsx", s.now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}
