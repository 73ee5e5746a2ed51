package gateway

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tuition-reconciliation/internal/domain"
)

// Column counts are enforced by the csv reader so malformed exports fail
// with a row error instead of an index panic.
const (
	receiptColumns    = 8  // receipt_id,student_id,term_id,amount,currency,kind,paid_at,notes
	enrollmentColumns = 8  // course_id,student_id,term_id,status,category,cohort_size,citizenship,program
	ruleColumns       = 13 // rule_id,kind,version,effective_from,effective_to,term_id,program,course_id,category,rate,foreign_rate,price,tiers
)

// CSVRepository implements the ReceiptSource, EnrollmentSource and
// RuleSource interfaces on top of SIS export files.
type CSVRepository struct {
	receiptsPath    string
	enrollmentsPath string
	rulesPath       string

	// Enrollments are loaded once and indexed by student and term; the
	// orchestrator asks for them per student from multiple workers.
	enrollOnce sync.Once
	enrollErr  error
	enrollIdx  map[enrollmentKey][]domain.Enrollment
}

type enrollmentKey struct {
	studentID string
	termID    string
}

// NewCSVRepository creates a repository over the three export files.
func NewCSVRepository(receiptsPath, enrollmentsPath, rulesPath string) *CSVRepository {
	return &CSVRepository{
		receiptsPath:    receiptsPath,
		enrollmentsPath: enrollmentsPath,
		rulesPath:       rulesPath,
	}
}

// Receipts reads and parses the receipt export, keeping only rows that
// fall inside the run's filters.
func (r *CSVRepository) Receipts(ctx context.Context, params domain.RunParams) ([]domain.Receipt, error) {
	file, err := os.Open(r.receiptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt file %s: %w", r.receiptsPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = receiptColumns
	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", r.receiptsPath, err)
	}

	var receipts []domain.Receipt
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", r.receiptsPath, err)
		}

		amount, err := domain.ParseMoney(record[3])
		if err != nil {
			return nil, fmt.Errorf("could not parse amount '%s': %w", record[3], err)
		}

		paidAt, err := time.Parse(time.RFC3339, record[6])
		if err != nil {
			return nil, fmt.Errorf("could not parse paid_at '%s': %w", record[6], err)
		}

		rec := domain.Receipt{
			ID:        record[0],
			StudentID: record[1],
			TermID:    record[2],
			Amount:    amount,
			Currency:  record[4],
			Kind:      domain.ReceiptKind(record[5]),
			PaidAt:    paidAt,
			Notes:     record[7],
		}
		if !inScope(rec, params) {
			continue
		}
		receipts = append(receipts, rec)
	}
	return receipts, nil
}

// inScope applies the run filters; zero-valued params leave their bound
// open. Both student bounds and both date bounds are inclusive.
func inScope(rec domain.Receipt, params domain.RunParams) bool {
	if params.TermID != "" && rec.TermID != params.TermID {
		return false
	}
	if params.StudentFrom != "" && rec.StudentID < params.StudentFrom {
		return false
	}
	if params.StudentTo != "" && rec.StudentID > params.StudentTo {
		return false
	}
	if !params.From.IsZero() && rec.PaidAt.Before(params.From) {
		return false
	}
	if !params.To.IsZero() && rec.PaidAt.After(params.To) {
		return false
	}
	return true
}

// EnrollmentsFor returns the student's registrations for one term.
func (r *CSVRepository) EnrollmentsFor(ctx context.Context, studentID, termID string) ([]domain.Enrollment, error) {
	r.enrollOnce.Do(r.loadEnrollments)
	if r.enrollErr != nil {
		return nil, r.enrollErr
	}
	return r.enrollIdx[enrollmentKey{studentID: studentID, termID: termID}], nil
}

func (r *CSVRepository) loadEnrollments() {
	file, err := os.Open(r.enrollmentsPath)
	if err != nil {
		r.enrollErr = fmt.Errorf("failed to open enrollment file %s: %w", r.enrollmentsPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = enrollmentColumns
	// Skip header
	if _, err := reader.Read(); err != nil {
		r.enrollErr = fmt.Errorf("failed to read header from %s: %w", r.enrollmentsPath, err)
		return
	}

	idx := make(map[enrollmentKey][]domain.Enrollment)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.enrollErr = fmt.Errorf("error reading record from %s: %w", r.enrollmentsPath, err)
			return
		}

		cohort := 0
		if record[5] != "" {
			cohort, err = strconv.Atoi(record[5])
			if err != nil {
				r.enrollErr = fmt.Errorf("could not parse cohort_size '%s': %w", record[5], err)
				return
			}
		}

		citizenship := domain.Citizenship(record[6])
		if citizenship == "" {
			citizenship = domain.CitizenDomestic
		}

		enr := domain.Enrollment{
			CourseID:    record[0],
			StudentID:   record[1],
			TermID:      record[2],
			Status:      domain.EnrollmentStatus(record[3]),
			Category:    domain.CourseCategory(record[4]),
			CohortSize:  cohort,
			Citizenship: citizenship,
			Program:     record[7],
		}
		key := enrollmentKey{studentID: enr.StudentID, termID: enr.TermID}
		idx[key] = append(idx[key], enr)
	}
	r.enrollIdx = idx
}

// Rules reads and parses the pricing rule export.
func (r *CSVRepository) Rules(ctx context.Context) ([]domain.PricingRule, error) {
	file, err := os.Open(r.rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file %s: %w", r.rulesPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = ruleColumns
	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", r.rulesPath, err)
	}

	var rules []domain.PricingRule
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", r.rulesPath, err)
		}

		version, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("could not parse version '%s': %w", record[2], err)
		}

		effectiveFrom, err := time.Parse("2006-01-02", record[3])
		if err != nil {
			return nil, fmt.Errorf("could not parse effective_from '%s': %w", record[3], err)
		}

		var effectiveTo *time.Time
		if record[4] != "" {
			to, err := time.Parse("2006-01-02", record[4])
			if err != nil {
				return nil, fmt.Errorf("could not parse effective_to '%s': %w", record[4], err)
			}
			effectiveTo = &to
		}

		rate, err := parseOptionalMoney(record[9])
		if err != nil {
			return nil, fmt.Errorf("could not parse rate '%s': %w", record[9], err)
		}
		foreignRate, err := parseOptionalMoney(record[10])
		if err != nil {
			return nil, fmt.Errorf("could not parse foreign_rate '%s': %w", record[10], err)
		}
		price, err := parseOptionalMoney(record[11])
		if err != nil {
			return nil, fmt.Errorf("could not parse price '%s': %w", record[11], err)
		}

		tiers, err := parseTiers(record[12])
		if err != nil {
			return nil, fmt.Errorf("could not parse tiers '%s': %w", record[12], err)
		}

		rules = append(rules, domain.PricingRule{
			ID:            record[0],
			Kind:          domain.RuleKind(record[1]),
			Version:       version,
			EffectiveFrom: effectiveFrom,
			EffectiveTo:   effectiveTo,
			TermID:        record[5],
			Program:       record[6],
			CourseID:      record[7],
			Category:      domain.CourseCategory(record[8]),
			Rate:          rate,
			ForeignRate:   foreignRate,
			Price:         price,
			Tiers:         tiers,
		})
	}
	return rules, nil
}

func parseOptionalMoney(s string) (domain.Money, error) {
	if s == "" {
		return 0, nil
	}
	return domain.ParseMoney(s)
}

// parseTiers decodes a tier schedule of the form
// "1-2:100.00|3-5:80.00|6-15:60.00".
func parseTiers(s string) ([]domain.Tier, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "|")
	tiers := make([]domain.Tier, 0, len(parts))
	for _, part := range parts {
		rng, priceStr, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("tier '%s' is missing a price", part)
		}
		minStr, maxStr, found := strings.Cut(rng, "-")
		if !found {
			return nil, fmt.Errorf("tier '%s' is missing a cohort range", part)
		}

		minSize, err := strconv.Atoi(minStr)
		if err != nil {
			return nil, fmt.Errorf("tier '%s' has a bad minimum: %w", part, err)
		}
		maxSize, err := strconv.Atoi(maxStr)
		if err != nil {
			return nil, fmt.Errorf("tier '%s' has a bad maximum: %w", part, err)
		}
		price, err := domain.ParseMoney(priceStr)
		if err != nil {
			return nil, fmt.Errorf("tier '%s' has a bad price: %w", part, err)
		}

		tiers = append(tiers, domain.Tier{MinSize: minSize, MaxSize: maxSize, Price: price})
	}
	return tiers, nil
}
