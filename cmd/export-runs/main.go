// export-runs renders the Export tab into an xlsx workbook for accounting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"github.com/xuri/excelize/v2"
)

func main() {
	out := flag.String("out", "runs-export.xlsx", "Output xlsx path")
	from := flag.String("from", "", "Only include runs on or after this date (YYYY-MM-DD)")
	to := flag.String("to", "", "Only include runs on or before this date (YYYY-MM-DD)")
	shopId := flag.String("shop-id", "", "Only include this shop")
	flag.Parse()

	ctx := context.Background()
	client, err := sheets.NewClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize sheets client: %v\n", err)
		os.Exit(1)
	}

	records, err := repository.NewExportRepository(client).ListAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read export records: %v\n", err)
		os.Exit(1)
	}

	filtered := make([]models.ExportRecord, 0, len(records))
	for _, record := range records {
		if *from != "" && record.RunDate < *from {
			continue
		}
		if *to != "" && record.RunDate > *to {
			continue
		}
		if *shopId != "" && record.ShopId != *shopId {
			continue
		}
		filtered = append(filtered, record)
	}

	if err := writeWorkbook(*out, filtered); err != nil {
		fmt.Fprintf(os.Stderr, "write workbook: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d runs to %s\n", len(filtered), *out)
}

func writeWorkbook(path string, records []models.ExportRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Runs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, header := range models.ExportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	for rowIdx, record := range records {
		for col, value := range record.ToRow() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}
