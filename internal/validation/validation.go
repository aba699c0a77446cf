package validation

import (
	"encoding/json"
	"net/http"
	"strings"

	"reldiff/internal/diff"
	"reldiff/internal/errors"
	"reldiff/internal/release"
	"reldiff/internal/tags"
	"reldiff/internal/treeish"
	"reldiff/shared/types"
)

const maxBodySize = 1 << 20

// ValidateDiffRequest decodes a diff request body and turns it into a
// release request. Every invalid field is reported in the error details.
func ValidateDiffRequest(w http.ResponseWriter, r *http.Request) (*release.Request, error) {
	var in types.DiffRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, errors.ValidationError("invalid request body", map[string]string{"body": err.Error()})
	}

	problems := make(map[string]string)
	head, base := strings.TrimSpace(in.Head), strings.TrimSpace(in.Base)

	if strings.TrimSpace(in.Repository) == "" {
		problems["repository"] = "required"
	}
	if head == "" {
		problems["head"] = "required"
	} else if _, err := treeish.Parse(head); err != nil {
		problems["head"] = err.Error()
	}
	if base != "" {
		if _, err := treeish.Parse(base); err != nil {
			problems["base"] = err.Error()
		}
	}

	var order tags.OrderPolicy
	if strings.TrimSpace(in.Order) != "" {
		var err error
		if order, err = tags.ParseOrderPolicy(in.Order); err != nil {
			problems["order"] = err.Error()
		}
	}
	component, err := diff.CleanComponent(in.Component)
	if err != nil {
		problems["component"] = err.Error()
	}

	if len(problems) > 0 {
		return nil, errors.ValidationError("invalid diff request", problems)
	}

	return &release.Request{
		RepoPath:  in.Repository,
		Base:      base,
		Head:      head,
		Component: component,
		TagPrefix: in.TagPrefix,
		Order:     order,
		Title:     in.Title,
	}, nil
}
