package models

import "time"

// PostType distinguishes tutors offering lessons from students looking for one.
type PostType string

const (
	PostTypeTeacher PostType = "TEACHER"
	PostTypeStudent PostType = "STUDENT"
)

// Post is a listing published by a user.
type Post struct {
	ID          string    `db:"id" json:"id"`
	AuthorID    string    `db:"author_id" json:"author_id"`
	AuthorName  string    `db:"author_name" json:"author_name,omitempty"`
	Type        PostType  `db:"type" json:"type"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Subject     string    `db:"subject" json:"subject"`
	Location    string    `db:"location" json:"location"`
	HourlyRate  *int      `db:"hourly_rate" json:"hourly_rate,omitempty"`
	Online      bool      `db:"online" json:"online"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PostFilter captures search criteria for listing posts.
type PostFilter struct {
	Type      *PostType
	Subject   string
	Location  string
	Online    *bool
	MinRate   *int
	MaxRate   *int
	AuthorID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
