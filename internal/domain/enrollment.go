package domain

// EnrollmentStatus is the registration state of one course enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive  EnrollmentStatus = "ACTIVE"
	EnrollmentDropped EnrollmentStatus = "DROPPED"
	EnrollmentWaived  EnrollmentStatus = "WAIVED"
)

// CourseCategory selects which pricing rules can apply to an enrollment.
type CourseCategory string

const (
	CategoryRegular       CourseCategory = "REGULAR"
	CategorySeniorProject CourseCategory = "SENIOR_PROJECT"
	CategoryReading       CourseCategory = "READING"
	CategoryLanguage      CourseCategory = "LANGUAGE"
)

// Citizenship is the student's rate class where foreign/domestic pricing applies.
type Citizenship string

const (
	CitizenDomestic Citizenship = "DOMESTIC"
	CitizenForeign  Citizenship = "FOREIGN"
)

// Enrollment is one course registration for a student in a term.
type Enrollment struct {
	CourseID  string           `json:"course_id"`
	StudentID string           `json:"student_id"`
	TermID    string           `json:"term_id"`
	Status    EnrollmentStatus `json:"status"`
	Category  CourseCategory   `json:"category"`

	// CohortSize is the offering's cohort size when the registrar recorded
	// it; 0 means unknown and leaves tier selection to inference.
	CohortSize int `json:"cohort_size,omitempty"`

	Citizenship Citizenship `json:"citizenship"`
	Program     string      `json:"program,omitempty"`
}

// Chargeable reports whether the enrollment can carry a charge at all.
// Waived enrollments are never charged; dropped ones are ambiguous (the
// charge may predate the drop) and are handled by candidate generation.
func (e Enrollment) Chargeable() bool {
	return e.Status != EnrollmentWaived
}
