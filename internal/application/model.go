package application

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/0x13a/jobapply/internal/job"
	"github.com/0x13a/jobapply/internal/user"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusReviewing   Status = "reviewing"
	StatusShortlisted Status = "shortlisted"
	StatusRejected    Status = "rejected"
	StatusAccepted    Status = "accepted"
)

var statuses = []Status{StatusPending, StatusReviewing, StatusShortlisted, StatusRejected, StatusAccepted}

// ParseStatus accepts only the closed set of workflow states.
func ParseStatus(s string) (Status, bool) {
	for _, st := range statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

const (
	defaultNoticePeriod = "Immediate"
	minAge              = 18
	maxAge              = 100
)

type Application struct {
	ID              string    `json:"id"`
	JobID           string    `json:"jobId"`
	UserID          *string   `json:"userId"`
	FullName        string    `json:"fullName"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Age             int       `json:"age"`
	Experience      int       `json:"experience"`
	CurrentCompany  string    `json:"currentCompany"`
	CurrentPosition string    `json:"currentPosition"`
	Education       string    `json:"education"`
	ResumeURL       string    `json:"resumeUrl"`
	CoverLetter     string    `json:"coverLetter"`
	PortfolioURL    string    `json:"portfolioUrl"`
	LinkedinURL     string    `json:"linkedinUrl"`
	Status          Status    `json:"status"`
	NoticePeriod    string    `json:"noticePeriod"`
	ExpectedSalary  float64   `json:"expectedSalary"`
	AppliedAt       time.Time `json:"appliedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Job  *job.Summary  `json:"job,omitempty"`
	User *user.Summary `json:"user,omitempty"`
}

// Fields is the applicant part of a submission, typed at the HTTP boundary.
// Values that failed to parse are remembered and reported by Validate, so a
// malformed age surfaces with the other field errors and not before the job
// and duplicate checks.
type Fields struct {
	FullName        string
	Email           string
	Phone           string
	Age             int
	Experience      int
	CurrentCompany  string
	CurrentPosition string
	Education       string
	CoverLetter     string
	PortfolioURL    string
	LinkedinURL     string
	NoticePeriod    string
	ExpectedSalary  float64

	parseErrs map[string]string
}

// ParseFields reads the applicant fields of a multipart form.
func ParseFields(form url.Values) Fields {
	p := bluemonday.StrictPolicy()
	f := Fields{
		FullName:        strings.TrimSpace(form.Get("fullName")),
		Email:           strings.ToLower(strings.TrimSpace(form.Get("email"))),
		Phone:           strings.TrimSpace(form.Get("phone")),
		CurrentCompany:  strings.TrimSpace(p.Sanitize(form.Get("currentCompany"))),
		CurrentPosition: strings.TrimSpace(p.Sanitize(form.Get("currentPosition"))),
		Education:       strings.TrimSpace(p.Sanitize(form.Get("education"))),
		CoverLetter:     strings.TrimSpace(p.Sanitize(form.Get("coverLetter"))),
		PortfolioURL:    strings.TrimSpace(form.Get("portfolioUrl")),
		LinkedinURL:     strings.TrimSpace(form.Get("linkedinUrl")),
		NoticePeriod:    strings.TrimSpace(p.Sanitize(form.Get("noticePeriod"))),
		parseErrs:       make(map[string]string),
	}
	if v := strings.TrimSpace(form.Get("age")); v == "" {
		f.parseErrs["age"] = "Age is required"
	} else if n, err := strconv.Atoi(v); err != nil {
		f.parseErrs["age"] = "Age must be a whole number"
	} else {
		f.Age = n
	}
	if v := strings.TrimSpace(form.Get("experience")); v == "" {
		f.parseErrs["experience"] = "Years of experience is required"
	} else if n, err := strconv.Atoi(v); err != nil {
		f.parseErrs["experience"] = "Years of experience must be a whole number"
	} else {
		f.Experience = n
	}
	if v := strings.TrimSpace(form.Get("expectedSalary")); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			f.parseErrs["expectedSalary"] = "Expected salary must be a number"
		} else {
			f.ExpectedSalary = n
		}
	}
	return f
}

// Validate returns every offending field with a message, empty when the
// fields can be persisted.
func (f Fields) Validate() map[string]string {
	errs := make(map[string]string, len(f.parseErrs))
	for k, v := range f.parseErrs {
		errs[k] = v
	}
	if f.FullName == "" {
		errs["fullName"] = "Full name is required"
	}
	if f.Email == "" {
		errs["email"] = "Email is required"
	} else if !isEmail(f.Email) {
		errs["email"] = "Please provide a valid email"
	}
	if f.Phone == "" {
		errs["phone"] = "Phone number is required"
	}
	if _, ok := errs["age"]; !ok && (f.Age < minAge || f.Age > maxAge) {
		errs["age"] = "Age must be between 18 and 100"
	}
	if _, ok := errs["experience"]; !ok && f.Experience < 0 {
		errs["experience"] = "Years of experience cannot be negative"
	}
	if f.Education == "" {
		errs["education"] = "Education qualification is required"
	}
	if _, ok := errs["expectedSalary"]; !ok && f.ExpectedSalary < 0 {
		errs["expectedSalary"] = "Expected salary cannot be negative"
	}
	if f.PortfolioURL != "" && !isURL(f.PortfolioURL) {
		errs["portfolioUrl"] = "Portfolio URL must be a valid http(s) URL"
	}
	if f.LinkedinURL != "" && !isURL(f.LinkedinURL) {
		errs["linkedinUrl"] = "LinkedIn URL must be a valid http(s) URL"
	}
	return errs
}

func (f Fields) noticePeriod() string {
	if f.NoticePeriod == "" {
		return defaultNoticePeriod
	}
	return f.NoticePeriod
}

func isEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
