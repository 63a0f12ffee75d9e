package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkflowKey identifies a workflow by repository and issue.
type WorkflowKey struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Issue int    `json:"issue"`
}

// String renders the key as "owner/repo#issue".
func (k WorkflowKey) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Owner, k.Repo, k.Issue)
}

// ID renders the key in a form safe for file names and storage keys.
// Owners cannot contain underscores, so the first one separates the owner.
func (k WorkflowKey) ID() string {
	return fmt.Sprintf("%s_%s_%d", k.Owner, k.Repo, k.Issue)
}

// Validate checks that every component is present.
func (k WorkflowKey) Validate() error {
	switch {
	case k.Owner == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidKey)
	case strings.ContainsAny(k.Owner, "/_"):
		return fmt.Errorf("%w: invalid owner %q", ErrInvalidKey, k.Owner)
	case k.Repo == "":
		return fmt.Errorf("%w: repository is required", ErrInvalidKey)
	case strings.Contains(k.Repo, "/"):
		return fmt.Errorf("%w: invalid repository %q", ErrInvalidKey, k.Repo)
	case k.Issue <= 0:
		return fmt.Errorf("%w: issue number must be positive", ErrInvalidKey)
	}
	return nil
}

// ParseKey parses "owner/repo#issue".
func ParseKey(s string) (WorkflowKey, error) {
	repo, num, ok := strings.Cut(s, "#")
	if !ok {
		return WorkflowKey{}, fmt.Errorf("%w: %q is not owner/repo#issue", ErrInvalidKey, s)
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return WorkflowKey{}, fmt.Errorf("%w: %q is not owner/repo#issue", ErrInvalidKey, s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return WorkflowKey{}, fmt.Errorf("%w: issue number %q", ErrInvalidKey, num)
	}
	k := WorkflowKey{Owner: owner, Repo: name, Issue: n}
	return k, k.Validate()
}

// ParseRepository splits "owner/repo".
func ParseRepository(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: %q is not owner/repo", ErrInvalidKey, s)
	}
	return owner, repo, nil
}
