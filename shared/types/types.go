// Package types holds the wire types shared by the service and its client.
package types

import "time"

// DiffRequest asks the service for a release diff.
type DiffRequest struct {
	Repository string `json:"repository"`
	Base       string `json:"base,omitempty"`
	Head       string `json:"head"`
	Component  string `json:"component,omitempty"`
	TagPrefix  string `json:"tag_prefix,omitempty"`
	Order      string `json:"order,omitempty"`
	Title      string `json:"title,omitempty"`
}

// DiffSummary describes an archived diff without its text.
type DiffSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	Repository  string    `json:"repository"`
	Component   string    `json:"component,omitempty"`
	Base        string    `json:"base"`
	Head        string    `json:"head"`
	BaseDerived bool      `json:"base_derived"`
	Plan        []string  `json:"plan"`
	Size        int       `json:"size"`
}

// DiffReport is an archived diff with its text.
type DiffReport struct {
	DiffSummary
	Text string `json:"text"`
}
