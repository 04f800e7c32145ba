package job

import (
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

type Job struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	Salary           string    `json:"salary"`
	Company          string    `json:"company"`
	Benefits         []string  `json:"benefits"`
	Responsibilities []string  `json:"responsibilities"`
	Requirements     []string  `json:"requirements"`
	Slug             string    `json:"slug"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Summary is the slice of a job shown next to an application. It is gob
// encoded into the cache so fields stay exported.
type Summary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Salary   string `json:"salary"`
}

type JobRq struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Location         string   `json:"location"`
	Salary           string   `json:"salary"`
	Company          string   `json:"company"`
	Benefits         []string `json:"benefits"`
	Responsibilities []string `json:"responsibilities"`
	Requirements     []string `json:"requirements"`
}

// Sanitize strips markup and surrounding blanks from every field.
func (rq *JobRq) Sanitize() {
	p := bluemonday.StrictPolicy()
	rq.Title = strings.TrimSpace(p.Sanitize(rq.Title))
	rq.Description = strings.TrimSpace(p.Sanitize(rq.Description))
	rq.Location = strings.TrimSpace(p.Sanitize(rq.Location))
	rq.Salary = strings.TrimSpace(p.Sanitize(rq.Salary))
	rq.Company = strings.TrimSpace(p.Sanitize(rq.Company))
	rq.Benefits = sanitizeList(p, rq.Benefits)
	rq.Responsibilities = sanitizeList(p, rq.Responsibilities)
	rq.Requirements = sanitizeList(p, rq.Requirements)
}

// Validate reports missing fields for a new job.
func (rq JobRq) Validate() map[string]string {
	errs := make(map[string]string)
	if rq.Title == "" {
		errs["title"] = "Title is required"
	}
	if rq.Company == "" {
		errs["company"] = "Company is required"
	}
	if rq.Description == "" {
		errs["description"] = "Description is required"
	}
	if rq.Location == "" {
		errs["location"] = "Location is required"
	}
	return errs
}

// merge fills empty request fields from the stored job.
func (rq JobRq) merge(j *Job) JobRq {
	if rq.Title == "" {
		rq.Title = j.Title
	}
	if rq.Description == "" {
		rq.Description = j.Description
	}
	if rq.Location == "" {
		rq.Location = j.Location
	}
	if rq.Salary == "" {
		rq.Salary = j.Salary
	}
	if rq.Company == "" {
		rq.Company = j.Company
	}
	if rq.Benefits == nil {
		rq.Benefits = j.Benefits
	}
	if rq.Responsibilities == nil {
		rq.Responsibilities = j.Responsibilities
	}
	if rq.Requirements == nil {
		rq.Requirements = j.Requirements
	}
	return rq
}

func sanitizeList(p *bluemonday.Policy, in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(p.Sanitize(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
