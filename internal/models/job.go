package models

import "time"

// Job is the record every scraper converges on. (JobID, Source) identifies a row.
type Job struct {
	JobID       string    `json:"job_id"`
	Title       string    `json:"job_title"`
	Location    string    `json:"location,omitempty"`
	Skills      string    `json:"skills,omitempty"`
	Salary      string    `json:"salary,omitempty"`
	Education   string    `json:"education,omitempty"`
	JobType     string    `json:"job_type,omitempty"`
	Company     string    `json:"company_name,omitempty"`
	URL         string    `json:"job_url,omitempty"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	Subtitle    string    `json:"job_subtitle,omitempty"`
	PostedDate  time.Time `json:"posted_date"`
}

// SkillSet is one enriched keyword with the skills the model returned for it.
type SkillSet struct {
	JobID    int      `json:"job_id"`
	JobTitle string   `json:"job_title"`
	Skills   []string `json:"skills"`
}
