package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

func newExportTestService(t *testing.T) (ExportService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	repo := newTestRepo(t, db)
	svc := NewExportService(repo, db, testLogger())
	return svc, db
}

func TestExportProgressWorkbook(t *testing.T) {
	svc, db := newExportTestService(t)

	className := "9A"
	user := seedUser(t, db, "export-user")
	user.ClassName = &className
	user.TotalPoints = 700
	user.Rank = models.RankSilver
	if err := user.SetBadges([]string{"first-steps", "quiz-veteran"}); err != nil {
		t.Fatalf("failed to set badges: %v", err)
	}
	err := user.SetProgressSeries([]models.ProgressSnapshot{
		{Date: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), Points: 300},
		{Date: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC), Points: 700},
	})
	if err != nil {
		t.Fatalf("failed to set progress series: %v", err)
	}
	if err := db.Save(user).Error; err != nil {
		t.Fatalf("failed to update user: %v", err)
	}

	now := time.Now().UTC()
	seedResult(t, db, "export-user", "Math", 8, 10, now.Add(-24*time.Hour))
	seedResult(t, db, "export-user", "Science", 5, 5, now)

	result, err := svc.ExportProgress(context.Background(), "export-user")
	if err != nil {
		t.Fatalf("ExportProgress() error = %v", err)
	}

	wantName := fmt.Sprintf("progress-%s.xlsx", time.Now().Format("2006-01-02"))
	if result.FileName != wantName {
		t.Errorf("FileName = %q, want %q", result.FileName, wantName)
	}
	if result.ContentType != xlsxContentType {
		t.Errorf("ContentType = %q, want %q", result.ContentType, xlsxContentType)
	}
	if len(result.Content) == 0 {
		t.Fatal("exported workbook is empty")
	}

	wb, err := excelize.OpenReader(bytes.NewReader(result.Content))
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	wantSheets := []string{summarySheetName, historySheetName, progressSheetName}
	if len(sheets) != len(wantSheets) {
		t.Fatalf("sheets = %v, want %v", sheets, wantSheets)
	}
	for i, want := range wantSheets {
		if sheets[i] != want {
			t.Errorf("sheets[%d] = %s, want %s", i, sheets[i], want)
		}
	}

	summaryCells := map[string]string{
		"B1": "Test Student",
		"B3": "9A",
		"B4": "Silver",
		"B5": "700",
		"B6": "2",
		"B7": "86.7%",
		"B8": "first-steps, quiz-veteran",
	}
	for cell, want := range summaryCells {
		got, err := wb.GetCellValue(summarySheetName, cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s) error = %v", cell, err)
		}
		if got != want {
			t.Errorf("summary %s = %q, want %q", cell, got, want)
		}
	}

	// History lists newest first.
	historyRows, err := wb.GetRows(historySheetName)
	if err != nil {
		t.Fatalf("GetRows(history) error = %v", err)
	}
	if len(historyRows) != 3 {
		t.Fatalf("history rows = %d, want header plus 2 results", len(historyRows))
	}
	if historyRows[1][1] != "Science" || historyRows[1][4] != "100.0%" {
		t.Errorf("history row 2 = %v, want Science at 100.0%%", historyRows[1])
	}
	if historyRows[2][1] != "Math" || historyRows[2][4] != "80.0%" {
		t.Errorf("history row 3 = %v, want Math at 80.0%%", historyRows[2])
	}

	progressRows, err := wb.GetRows(progressSheetName)
	if err != nil {
		t.Fatalf("GetRows(progress) error = %v", err)
	}
	if len(progressRows) != 3 {
		t.Fatalf("progress rows = %d, want header plus 2 snapshots", len(progressRows))
	}
	if progressRows[1][0] != "2026-08-01" || progressRows[1][1] != "300" {
		t.Errorf("progress row 2 = %v, want the first snapshot", progressRows[1])
	}
	if progressRows[2][0] != "2026-08-15" || progressRows[2][1] != "700" {
		t.Errorf("progress row 3 = %v, want the second snapshot", progressRows[2])
	}
}

func TestExportProgressEmptyHistory(t *testing.T) {
	svc, db := newExportTestService(t)
	seedUser(t, db, "fresh-user")

	result, err := svc.ExportProgress(context.Background(), "fresh-user")
	if err != nil {
		t.Fatalf("ExportProgress() error = %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(result.Content))
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer wb.Close()

	got, err := wb.GetCellValue(summarySheetName, "B6")
	if err != nil {
		t.Fatalf("GetCellValue(B6) error = %v", err)
	}
	if got != "0" {
		t.Errorf("quizzes taken = %q, want 0", got)
	}
	got, err = wb.GetCellValue(summarySheetName, "B7")
	if err != nil {
		t.Fatalf("GetCellValue(B7) error = %v", err)
	}
	if got != "0.0%" {
		t.Errorf("accuracy = %q, want 0.0%%", got)
	}
	got, err = wb.GetCellValue(summarySheetName, "B8")
	if err != nil {
		t.Fatalf("GetCellValue(B8) error = %v", err)
	}
	if got != "none" {
		t.Errorf("badges = %q, want none placeholder", got)
	}

	historyRows, err := wb.GetRows(historySheetName)
	if err != nil {
		t.Fatalf("GetRows(history) error = %v", err)
	}
	if len(historyRows) != 1 {
		t.Errorf("history rows = %d, want header only", len(historyRows))
	}
}

func TestExportProgressUnknownUser(t *testing.T) {
	svc, _ := newExportTestService(t)

	_, err := svc.ExportProgress(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ExportProgress() error = %v, want ErrUserNotFound", err)
	}
}
