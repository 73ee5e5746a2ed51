package gateway

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tuition-reconciliation/internal/domain"
)

var receiptHeader = []string{"receipt_id", "student_id", "term_id", "amount", "currency", "kind", "paid_at", "notes"}

func writeCSV(t *testing.T, name string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			t.Fatalf("failed to write temp CSV file: %v", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		t.Fatalf("failed to flush temp CSV file: %v", err)
	}
	return path
}

func mustParseTime(timeStr string) time.Time {
	ts, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		panic(err)
	}
	return ts
}

func mustParseDate(dateStr string) time.Time {
	ts, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestCSVRepository_Receipts(t *testing.T) {
	rows := [][]string{
		receiptHeader,
		{"R-1", "S-1", "2019FA", "800.00", "USD", "PAYMENT", "2019-09-03T10:00:00Z", ""},
		{"R-2", "S-2", "2019FA", "150.50", "USD", "CREDIT", "2019-09-04T09:30:00Z", "senior project fee"},
		{"R-3", "S-3", "2020SP", "400.00", "USD", "PAYMENT", "2020-01-15T08:00:00Z", ""},
	}
	path := writeCSV(t, "receipts.csv", rows)
	repo := NewCSVRepository(path, "", "")

	all, err := repo.Receipts(context.Background(), domain.RunParams{})
	assert.NoError(t, err)
	assert.Equal(t, []domain.Receipt{
		{
			ID: "R-1", StudentID: "S-1", TermID: "2019FA",
			Amount: 80000, Currency: "USD", Kind: domain.ReceiptPayment,
			PaidAt: mustParseTime("2019-09-03T10:00:00Z"),
		},
		{
			ID: "R-2", StudentID: "S-2", TermID: "2019FA",
			Amount: 15050, Currency: "USD", Kind: domain.ReceiptCredit,
			PaidAt: mustParseTime("2019-09-04T09:30:00Z"),
			Notes:  "senior project fee",
		},
		{
			ID: "R-3", StudentID: "S-3", TermID: "2020SP",
			Amount: 40000, Currency: "USD", Kind: domain.ReceiptPayment,
			PaidAt: mustParseTime("2020-01-15T08:00:00Z"),
		},
	}, all)
}

func TestCSVRepository_Receipts_Filters(t *testing.T) {
	rows := [][]string{
		receiptHeader,
		{"R-1", "S-1", "2019FA", "800.00", "USD", "PAYMENT", "2019-09-03T10:00:00Z", ""},
		{"R-2", "S-2", "2019FA", "150.50", "USD", "CREDIT", "2019-09-04T09:30:00Z", ""},
		{"R-3", "S-3", "2020SP", "400.00", "USD", "PAYMENT", "2020-01-15T08:00:00Z", ""},
	}
	path := writeCSV(t, "receipts.csv", rows)
	repo := NewCSVRepository(path, "", "")

	tests := []struct {
		name    string
		params  domain.RunParams
		wantIDs []string
	}{
		{
			name:    "no filters keeps everything",
			params:  domain.RunParams{},
			wantIDs: []string{"R-1", "R-2", "R-3"},
		},
		{
			name:    "term filter",
			params:  domain.RunParams{TermID: "2019FA"},
			wantIDs: []string{"R-1", "R-2"},
		},
		{
			name:    "student lower bound is inclusive",
			params:  domain.RunParams{StudentFrom: "S-2"},
			wantIDs: []string{"R-2", "R-3"},
		},
		{
			name:    "student upper bound is inclusive",
			params:  domain.RunParams{StudentTo: "S-1"},
			wantIDs: []string{"R-1"},
		},
		{
			name:    "paid-at lower bound",
			params:  domain.RunParams{From: mustParseDate("2019-09-04")},
			wantIDs: []string{"R-2", "R-3"},
		},
		{
			name:    "paid-at upper bound",
			params:  domain.RunParams{To: mustParseTime("2019-09-03T23:59:59Z")},
			wantIDs: []string{"R-1"},
		},
		{
			name:    "combined filters",
			params:  domain.RunParams{TermID: "2019FA", StudentFrom: "S-2", StudentTo: "S-2"},
			wantIDs: []string{"R-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Receipts(context.Background(), tt.params)
			assert.NoError(t, err)

			gotIDs := make([]string, 0, len(got))
			for _, rec := range got {
				gotIDs = append(gotIDs, rec.ID)
			}
			assert.Equal(t, tt.wantIDs, gotIDs)
		})
	}
}

func TestCSVRepository_Receipts_BadRows(t *testing.T) {
	tests := []struct {
		name string
		row  []string
	}{
		{
			name: "invalid amount",
			row:  []string{"R-1", "S-1", "2019FA", "eight hundred", "USD", "PAYMENT", "2019-09-03T10:00:00Z", ""},
		},
		{
			name: "sub-cent amount",
			row:  []string{"R-1", "S-1", "2019FA", "800.001", "USD", "PAYMENT", "2019-09-03T10:00:00Z", ""},
		},
		{
			name: "invalid paid_at",
			row:  []string{"R-1", "S-1", "2019FA", "800.00", "USD", "PAYMENT", "yesterday", ""},
		},
		{
			name: "wrong column count",
			row:  []string{"R-1", "S-1", "2019FA", "800.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, "receipts.csv", [][]string{receiptHeader, tt.row})
			repo := NewCSVRepository(path, "", "")

			got, err := repo.Receipts(context.Background(), domain.RunParams{})
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestCSVRepository_EnrollmentsFor(t *testing.T) {
	rows := [][]string{
		{"course_id", "student_id", "term_id", "status", "category", "cohort_size", "citizenship", "program"},
		{"MATH101", "S-1", "2019FA", "ACTIVE", "REGULAR", "", "", ""},
		{"CSCI490", "S-1", "2019FA", "ACTIVE", "SENIOR_PROJECT", "4", "FOREIGN", "UGRD"},
		{"ARTS150", "S-1", "2019FA", "DROPPED", "REGULAR", "", "", ""},
		{"ENGL210", "S-2", "2019FA", "WAIVED", "REGULAR", "", "DOMESTIC", ""},
		{"MATH101", "S-1", "2020SP", "ACTIVE", "REGULAR", "", "", ""},
	}
	path := writeCSV(t, "enrollments.csv", rows)
	repo := NewCSVRepository("", path, "")
	ctx := context.Background()

	got, err := repo.EnrollmentsFor(ctx, "S-1", "2019FA")
	assert.NoError(t, err)
	assert.Equal(t, []domain.Enrollment{
		{
			CourseID: "MATH101", StudentID: "S-1", TermID: "2019FA",
			Status: domain.EnrollmentActive, Category: domain.CategoryRegular,
			Citizenship: domain.CitizenDomestic,
		},
		{
			CourseID: "CSCI490", StudentID: "S-1", TermID: "2019FA",
			Status: domain.EnrollmentActive, Category: domain.CategorySeniorProject,
			CohortSize: 4, Citizenship: domain.CitizenForeign, Program: "UGRD",
		},
		{
			CourseID: "ARTS150", StudentID: "S-1", TermID: "2019FA",
			Status: domain.EnrollmentDropped, Category: domain.CategoryRegular,
			Citizenship: domain.CitizenDomestic,
		},
	}, got)

	other, err := repo.EnrollmentsFor(ctx, "S-1", "2020SP")
	assert.NoError(t, err)
	assert.Len(t, other, 1)

	none, err := repo.EnrollmentsFor(ctx, "S-404", "2019FA")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestCSVRepository_EnrollmentsFor_LoadErrorSticks(t *testing.T) {
	rows := [][]string{
		{"course_id", "student_id", "term_id", "status", "category", "cohort_size", "citizenship", "program"},
		{"MATH101", "S-1", "2019FA", "ACTIVE", "REGULAR", "a few", "", ""},
	}
	path := writeCSV(t, "enrollments.csv", rows)
	repo := NewCSVRepository("", path, "")
	ctx := context.Background()

	_, err := repo.EnrollmentsFor(ctx, "S-1", "2019FA")
	if err == nil {
		t.Fatal("expected error for bad cohort_size, got nil")
	}

	// The file is read once; later calls report the same failure.
	_, err2 := repo.EnrollmentsFor(ctx, "S-2", "2019FA")
	assert.Equal(t, err, err2)
}

func TestCSVRepository_Rules(t *testing.T) {
	rows := [][]string{
		{"rule_id", "kind", "version", "effective_from", "effective_to", "term_id", "program", "course_id", "category", "rate", "foreign_rate", "price", "tiers"},
		{"DEF-2019", "DEFAULT", "2", "2019-01-01", "", "2019FA", "", "", "", "400.00", "520.00", "", ""},
		{"FIX-CHEM500", "FIXED_COURSE", "1", "2019-01-01", "2019-12-31", "", "", "CHEM500", "", "", "", "725.50", ""},
		{"TIER-SENIOR", "TIERED_SCHEDULE", "1", "2019-01-01", "", "", "", "", "SENIOR_PROJECT", "", "", "", "1-2:100.00|3-5:80.00|6-15:60.00"},
	}
	path := writeCSV(t, "rules.csv", rows)
	repo := NewCSVRepository("", "", path)

	got, err := repo.Rules(context.Background())
	assert.NoError(t, err)

	retired := mustParseDate("2019-12-31")
	assert.Equal(t, []domain.PricingRule{
		{
			ID: "DEF-2019", Kind: domain.RuleDefault, Version: 2,
			EffectiveFrom: mustParseDate("2019-01-01"),
			TermID:        "2019FA",
			Rate:          40000, ForeignRate: 52000,
		},
		{
			ID: "FIX-CHEM500", Kind: domain.RuleFixedCourse, Version: 1,
			EffectiveFrom: mustParseDate("2019-01-01"), EffectiveTo: &retired,
			CourseID: "CHEM500",
			Price:    72550,
		},
		{
			ID: "TIER-SENIOR", Kind: domain.RuleTieredSchedule, Version: 1,
			EffectiveFrom: mustParseDate("2019-01-01"),
			Category:      domain.CategorySeniorProject,
			Tiers: []domain.Tier{
				{MinSize: 1, MaxSize: 2, Price: 10000},
				{MinSize: 3, MaxSize: 5, Price: 8000},
				{MinSize: 6, MaxSize: 15, Price: 6000},
			},
		},
	}, got)
}

func TestCSVRepository_Rules_BadRows(t *testing.T) {
	header := []string{"rule_id", "kind", "version", "effective_from", "effective_to", "term_id", "program", "course_id", "category", "rate", "foreign_rate", "price", "tiers"}

	tests := []struct {
		name string
		row  []string
	}{
		{
			name: "invalid version",
			row:  []string{"DEF-2019", "DEFAULT", "two", "2019-01-01", "", "", "", "", "", "400.00", "", "", ""},
		},
		{
			name: "invalid effective_from",
			row:  []string{"DEF-2019", "DEFAULT", "1", "January", "", "", "", "", "", "400.00", "", "", ""},
		},
		{
			name: "invalid effective_to",
			row:  []string{"DEF-2019", "DEFAULT", "1", "2019-01-01", "soon", "", "", "", "", "400.00", "", "", ""},
		},
		{
			name: "invalid rate",
			row:  []string{"DEF-2019", "DEFAULT", "1", "2019-01-01", "", "", "", "", "", "free", "", "", ""},
		},
		{
			name: "tier missing price",
			row:  []string{"TIER-X", "TIERED_SCHEDULE", "1", "2019-01-01", "", "", "", "", "READING", "", "", "", "1-5"},
		},
		{
			name: "tier missing range",
			row:  []string{"TIER-X", "TIERED_SCHEDULE", "1", "2019-01-01", "", "", "", "", "READING", "", "", "", "5:100.00"},
		},
		{
			name: "tier bad bounds",
			row:  []string{"TIER-X", "TIERED_SCHEDULE", "1", "2019-01-01", "", "", "", "", "READING", "", "", "", "a-b:100.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, "rules.csv", [][]string{header, tt.row})
			repo := NewCSVRepository("", "", path)

			got, err := repo.Rules(context.Background())
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestCSVRepository_FileErrors(t *testing.T) {
	repo := NewCSVRepository("no_receipts.csv", "no_enrollments.csv", "no_rules.csv")
	ctx := context.Background()

	t.Run("receipts file not found", func(t *testing.T) {
		_, err := repo.Receipts(ctx, domain.RunParams{})
		if err == nil {
			t.Error("expected error for nonexistent file, got nil")
		}
	})

	t.Run("enrollments file not found", func(t *testing.T) {
		_, err := repo.EnrollmentsFor(ctx, "S-1", "2019FA")
		if err == nil {
			t.Error("expected error for nonexistent file, got nil")
		}
	})

	t.Run("rules file not found", func(t *testing.T) {
		_, err := repo.Rules(ctx)
		if err == nil {
			t.Error("expected error for nonexistent file, got nil")
		}
	})

	t.Run("receipts file with no header", func(t *testing.T) {
		path := writeCSV(t, "empty.csv", nil)
		repo := NewCSVRepository(path, "", "")
		_, err := repo.Receipts(ctx, domain.RunParams{})
		if err == nil {
			t.Error("expected error for empty file, got nil")
		}
	})
}

func BenchmarkReceipts(b *testing.B) {
	rows := [][]string{receiptHeader}
	for i := 0; i < 1000; i++ {
		rows = append(rows, []string{"R-1", "S-1", "2019FA", "800.00", "USD", "PAYMENT", "2019-09-03T10:00:00Z", ""})
	}

	path := filepath.Join(b.TempDir(), "receipts.csv")
	file, err := os.Create(path)
	if err != nil {
		b.Fatalf("failed to create temp file: %v", err)
	}
	writer := csv.NewWriter(file)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			b.Fatalf("failed to write temp file: %v", err)
		}
	}
	writer.Flush()
	file.Close()

	repo := NewCSVRepository(path, "", "")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := repo.Receipts(ctx, domain.RunParams{}); err != nil {
			b.Fatalf("error in benchmark: %v", err)
		}
	}
}
