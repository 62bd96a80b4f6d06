package model

import "encoding/json"

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// VisibilityFromFlag maps the "public" query parameter to a Visibility.
func VisibilityFromFlag(public bool) Visibility {
	if public {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

type CreateRequest struct {
	OwnerID     string
	Public      bool
	ContentType string
	Body        []byte
}

// DocumentRef points at a stored document. Location is root-relative and
// includes the visibility segment, e.g. /private/alice/<id>.json.
type DocumentRef struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Visibility Visibility `json:"visibility"`
	Location   string     `json:"location"`
}

type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeDeleted
	OutcomePartialFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDeleted:
		return "deleted"
	case OutcomePartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// RootResult records what happened to one of the owner's two subtrees.
type RootResult struct {
	Visibility Visibility `json:"visibility"`
	Path       string     `json:"-"`
	Existed    bool       `json:"existed"`
	Removed    int        `json:"removed"`
	Err        error      `json:"-"`
}

type DeleteResult struct {
	OwnerID string       `json:"owner_id"`
	Outcome Outcome      `json:"outcome"`
	Roots   []RootResult `json:"roots"`
}

// Combine folds per-root results into the overall outcome.
func Combine(ownerID string, roots []RootResult) *DeleteResult {
	res := &DeleteResult{OwnerID: ownerID, Outcome: OutcomeNotFound, Roots: roots}
	existed := false
	for _, r := range roots {
		if r.Err != nil {
			res.Outcome = OutcomePartialFailure
			return res
		}
		if r.Existed {
			existed = true
		}
	}
	if existed {
		res.Outcome = OutcomeDeleted
	}
	return res
}

type ErrorResponse struct {
	Error string `json:"error"`
}
