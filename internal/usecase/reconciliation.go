package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tuition-reconciliation/internal/domain"
	"tuition-reconciliation/internal/matching"
	"tuition-reconciliation/internal/pricing"
)

const (
	defaultWorkers   = 4
	defaultBatchSize = 500
	defaultCurrency  = "USD"
)

// Config carries the orchestrator knobs. Zero values fall back to the
// defaults above.
type Config struct {
	Workers   int
	BatchSize int
	Currency  string
	// DryRun computes and counts results but never writes them.
	DryRun bool
	// Force disables the unchanged-fingerprint skip shortcut.
	Force  bool
	Logger *log.Logger
}

// Orchestrator drives reconciliation over batches of receipts: validate,
// match, score, persist, aggregate. Receipts are partitioned per student
// and students are sharded across a worker pool; per-receipt outcomes are
// independent of worker count and batch size.
type Orchestrator struct {
	receipts    ReceiptSource
	enrollments EnrollmentSource
	rules       RuleSource
	sink        ResultSink
	cfg         Config
}

func NewOrchestrator(receipts ReceiptSource, enrollments EnrollmentSource, rules RuleSource, sink ResultSink, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Orchestrator{
		receipts:    receipts,
		enrollments: enrollments,
		rules:       rules,
		sink:        sink,
		cfg:         cfg,
	}
}

// Run reconciles every receipt selected by params and returns the
// aggregate report. Per-receipt failures are recorded as REJECTED or
// FLAGGED results and never abort the run; only source/sink failures and
// cancellation do. A cancelled run returns the partial report alongside
// the context error: completed results stay written, the remainder is
// simply not processed.
func (o *Orchestrator) Run(ctx context.Context, params domain.RunParams) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:     uuid.NewString(),
		Params:    params,
		DryRun:    o.cfg.DryRun,
		Force:     o.cfg.Force,
		Workers:   o.cfg.Workers,
		BatchSize: o.cfg.BatchSize,
	}

	// Step 1: materialize the pricing catalog once; it is immutable and
	// shared read-only across workers for the whole run.
	rules, err := o.rules.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load pricing rules: %w", err)
	}
	catalog := pricing.NewCatalog(rules)

	// Step 2: pull the receipts in scope, in stable ID order.
	receipts, err := o.receipts.Receipts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("could not load receipts: %w", err)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ID < receipts[j].ID })

	o.cfg.Logger.Printf("[INFO] run %s: %d receipts, %d rules, %d workers, dry-run=%v",
		report.RunID, len(receipts), catalog.Len(), o.cfg.Workers, o.cfg.DryRun)

	// Step 3: process batch by batch; per-student caches live inside one
	// batch and are discarded at its boundary.
	for start := 0; start < len(receipts); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(receipts) {
			end = len(receipts)
		}
		if err := o.runBatch(ctx, receipts[start:end], catalog, report); err != nil {
			return report, err
		}
	}

	o.cfg.Logger.Printf("[INFO] run %s complete: %d processed, %d reconciled, %d flagged, %d rejected, %d skipped",
		report.RunID, report.Processed, report.Reconciled, report.Flagged, report.Rejected, report.Skipped)
	return report, nil
}

type studentJob struct {
	studentID string
	receipts  []domain.Receipt
}

type outcome struct {
	result  domain.ReconciliationResult
	skipped bool
	err     error // source/sink failure; aborts the run
}

func (o *Orchestrator) runBatch(ctx context.Context, batch []domain.Receipt, catalog *pricing.Catalog, report *domain.RunReport) error {
	// Partition by student, keeping receipt ID order within each student.
	byStudent := make(map[string][]domain.Receipt)
	var order []string
	for _, r := range batch {
		if _, seen := byStudent[r.StudentID]; !seen {
			order = append(order, r.StudentID)
		}
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	jobs := make(chan studentJob)
	out := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				o.processStudent(ctx, job, catalog, out)
			}
		}()
	}
	go func() {
		for _, sid := range order {
			jobs <- studentJob{studentID: sid, receipts: byStudent[sid]}
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	var firstErr error
	for oc := range out {
		if oc.err != nil {
			if firstErr == nil {
				firstErr = oc.err
			}
			continue
		}
		report.CountResult(oc.result, oc.skipped)
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// processStudent walks one student's receipts in order. Enrollments are
// fetched once per term and cached for the duration of the job.
func (o *Orchestrator) processStudent(ctx context.Context, job studentJob, catalog *pricing.Catalog, out chan<- outcome) {
	enrollmentsByTerm := make(map[string][]domain.Enrollment)

	for _, r := range job.receipts {
		// Cancellation is checked at receipt boundaries only; whatever
		// was already written stays written.
		if ctx.Err() != nil {
			return
		}
		oc := o.processOne(ctx, r, catalog, enrollmentsByTerm)
		out <- oc
		if oc.err != nil {
			return
		}
	}
}

func (o *Orchestrator) processOne(ctx context.Context, r domain.Receipt, catalog *pricing.Catalog, cache map[string][]domain.Enrollment) outcome {
	if rerr := validateReceipt(r, o.cfg.Currency); rerr != nil {
		// Rejection fingerprints cover the receipt alone: enrollments and
		// rules never entered the decision.
		fp := fingerprint(r, nil, nil)
		if prior, skip, err := o.skipUnchanged(ctx, r.ID, fp); err != nil {
			return outcome{err: err}
		} else if skip {
			return outcome{result: prior, skipped: true}
		}
		res := rejectedResult(r, rerr.Reason, rerr.Detail)
		res.Fingerprint = fp
		return o.write(ctx, res)
	}

	enrollments, cached := cache[r.TermID]
	if !cached {
		var err error
		enrollments, err = o.enrollments.EnrollmentsFor(ctx, r.StudentID, r.TermID)
		if err != nil {
			return outcome{err: fmt.Errorf("could not load enrollments for student %s term %s: %w", r.StudentID, r.TermID, err)}
		}
		cache[r.TermID] = enrollments
	}

	fp := fingerprint(r, enrollments, catalog.VersionsFor(r.TermID, r.PaidAt))
	if prior, skip, err := o.skipUnchanged(ctx, r.ID, fp); err != nil {
		return outcome{err: err}
	} else if skip {
		return outcome{result: prior, skipped: true}
	}

	sel, err := matching.Match(r, enrollments, catalog)
	if err != nil {
		// Invariant violations are fatal for this receipt only.
		o.cfg.Logger.Printf("[WARN] receipt %s student %s: %v", r.ID, r.StudentID, err)
		res := rejectedResult(r, domain.RejectInternalInvariant, err.Error())
		res.Fingerprint = fp
		return o.write(ctx, res)
	}

	res := matching.Score(r, enrollments, sel)
	res.Fingerprint = fp
	return o.write(ctx, res)
}

// skipUnchanged reports whether a prior result with the same fingerprint
// already exists, in which case matching is skipped and nothing is
// rewritten. Force disables the shortcut.
func (o *Orchestrator) skipUnchanged(ctx context.Context, receiptID, fp string) (domain.ReconciliationResult, bool, error) {
	if o.cfg.Force {
		return domain.ReconciliationResult{}, false, nil
	}
	prior, found, err := o.sink.Get(ctx, receiptID)
	if err != nil {
		return domain.ReconciliationResult{}, false, fmt.Errorf("could not read prior result for receipt %s: %w", receiptID, err)
	}
	return prior, found && prior.Fingerprint == fp, nil
}

func (o *Orchestrator) write(ctx context.Context, res domain.ReconciliationResult) outcome {
	if o.cfg.DryRun {
		return outcome{result: res}
	}
	if err := o.sink.Upsert(ctx, res); err != nil {
		return outcome{err: fmt.Errorf("could not write result for receipt %s: %w", res.ReceiptID, err)}
	}
	return outcome{result: res}
}

// validateReceipt runs the structural checks that gate matching and
// returns nil when the receipt may proceed. Zero amounts are valid; the
// zero-charge candidate reconciles them.
func validateReceipt(r domain.Receipt, currency string) *domain.RejectionError {
	reject := func(reason domain.RejectReason, detail string) *domain.RejectionError {
		return &domain.RejectionError{ReceiptID: r.ID, Reason: reason, Detail: detail}
	}
	switch {
	case r.StudentID == "":
		return reject(domain.RejectMissingStudent, "receipt has no student link")
	case r.TermID == "":
		return reject(domain.RejectMissingTerm, "receipt has no term link")
	case r.Kind != domain.ReceiptCredit && r.Amount.IsNegative():
		return reject(domain.RejectNegativeAmount, fmt.Sprintf("negative amount %s on a %s receipt", r.Amount, r.Kind))
	case r.Currency != "" && r.Currency != currency:
		return reject(domain.RejectCurrencyMismatch, fmt.Sprintf("currency %s does not match run currency %s", r.Currency, currency))
	}
	return nil
}

func rejectedResult(r domain.Receipt, reason domain.RejectReason, detail string) domain.ReconciliationResult {
	return domain.ReconciliationResult{
		ReceiptID:    r.ID,
		StudentID:    r.StudentID,
		TermID:       r.TermID,
		Status:       domain.StatusRejected,
		Actual:       r.Amount,
		RejectReason: reason,
		Reasons:      []string{detail},
	}
}

// fingerprint digests everything a receipt's result depends on: the
// receipt itself, the student's enrollments in stable order, and the rule
// versions in effect. Unchanged inputs therefore reproduce the identical
// fingerprint, which powers the skip shortcut.
func fingerprint(r domain.Receipt, enrollments []domain.Enrollment, ruleRefs []string) string {
	sorted := make([]domain.Enrollment, len(enrollments))
	copy(sorted, enrollments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CourseID < sorted[j].CourseID })

	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(r)
	_ = enc.Encode(sorted)
	_ = enc.Encode(ruleRefs)
	return hex.EncodeToString(h.Sum(nil))
}
