package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/repositories"
)

const (
	summarySheetName  = "Summary"
	historySheetName  = "Quiz History"
	progressSheetName = "Progress"

	// exportHistoryLimit caps how many result rows go into the workbook.
	exportHistoryLimit = 1000

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ===== SERVICE IMPLEMENTATION =====

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportProgress renders the user's learning record as an xlsx workbook
// with a summary, the quiz history and the progress series.
func (s *exportService) ExportProgress(ctx context.Context, userID string) (*ExportResult, error) {
	s.logger.Info("Exporting progress workbook", "user_id", userID)

	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	stats, err := s.repo.Quiz().GetQuizStats(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz stats: %w", err)
	}

	results, _, err := s.repo.Quiz().ListResults(ctx, nil, userID, repositories.QuizResultFilters{
		Limit:     exportHistoryLimit,
		SortBy:    "taken_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz results: %w", err)
	}

	wb := excelize.NewFile()
	defer func() {
		if err := wb.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := wb.SetSheetName("Sheet1", summarySheetName); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}

	headerStyle, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	badges := strings.Join(user.BadgeSet(), ", ")
	if badges == "" {
		badges = "none"
	}
	className := ""
	if user.ClassName != nil {
		className = *user.ClassName
	}

	summaryRows := [][]interface{}{
		{"Student", user.FullName},
		{"Email", user.Email},
		{"Class", className},
		{"Rank", string(user.Rank)},
		{"Total points", user.TotalPoints},
		{"Quizzes taken", stats.TotalQuizzes},
		{"Overall accuracy", fmt.Sprintf("%.1f%%", stats.Accuracy)},
		{"Badges", badges},
		{"Exported at", time.Now().Format("2006-01-02 15:04")},
	}
	for i, row := range summaryRows {
		if err := setRow(wb, summarySheetName, i+1, row...); err != nil {
			return nil, fmt.Errorf("failed to write summary sheet: %w", err)
		}
	}
	if err := wb.SetCellStyle(summarySheetName, "A1", fmt.Sprintf("A%d", len(summaryRows)), headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style summary sheet: %w", err)
	}
	if err := wb.SetColWidth(summarySheetName, "A", "A", 20); err != nil {
		return nil, fmt.Errorf("failed to size summary sheet: %w", err)
	}
	if err := wb.SetColWidth(summarySheetName, "B", "B", 40); err != nil {
		return nil, fmt.Errorf("failed to size summary sheet: %w", err)
	}

	if _, err := wb.NewSheet(historySheetName); err != nil {
		return nil, fmt.Errorf("failed to create history sheet: %w", err)
	}
	if err := setRow(wb, historySheetName, 1, "#", "Subject", "Score", "Total", "Accuracy", "Taken at"); err != nil {
		return nil, fmt.Errorf("failed to write history sheet: %w", err)
	}
	if err := wb.SetCellStyle(historySheetName, "A1", "F1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style history sheet: %w", err)
	}
	for i, result := range results {
		accuracy := 0.0
		if result.Total > 0 {
			accuracy = float64(result.Score) / float64(result.Total) * 100
		}
		err := setRow(wb, historySheetName, i+2,
			i+1,
			result.Subject,
			result.Score,
			result.Total,
			fmt.Sprintf("%.1f%%", accuracy),
			result.TakenAt.Format("2006-01-02 15:04"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to write history sheet: %w", err)
		}
	}
	if err := wb.SetColWidth(historySheetName, "B", "B", 30); err != nil {
		return nil, fmt.Errorf("failed to size history sheet: %w", err)
	}
	if err := wb.SetColWidth(historySheetName, "F", "F", 18); err != nil {
		return nil, fmt.Errorf("failed to size history sheet: %w", err)
	}

	if _, err := wb.NewSheet(progressSheetName); err != nil {
		return nil, fmt.Errorf("failed to create progress sheet: %w", err)
	}
	if err := setRow(wb, progressSheetName, 1, "Date", "Points"); err != nil {
		return nil, fmt.Errorf("failed to write progress sheet: %w", err)
	}
	if err := wb.SetCellStyle(progressSheetName, "A1", "B1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style progress sheet: %w", err)
	}
	for i, point := range user.ProgressSeries() {
		if err := setRow(wb, progressSheetName, i+2, point.Date.Format("2006-01-02"), point.Points); err != nil {
			return nil, fmt.Errorf("failed to write progress sheet: %w", err)
		}
	}
	if err := wb.SetColWidth(progressSheetName, "A", "A", 14); err != nil {
		return nil, fmt.Errorf("failed to size progress sheet: %w", err)
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("Progress workbook exported",
		"user_id", userID,
		"results", len(results),
		"bytes", buf.Len())

	return &ExportResult{
		FileName:    fmt.Sprintf("progress-%s.xlsx", time.Now().Format("2006-01-02")),
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}, nil
}

// ===== HELPER FUNCTIONS =====

// setRow writes values into consecutive cells of a row, starting at column A.
func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}
