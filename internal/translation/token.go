package translation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// keyDelimiter joins the components of item keys and correlation tokens.
// Ids are decimal and paths are validated, so it never occurs inside a component.
const keyDelimiter = "]["

var ErrMalformedToken = errors.New("malformed correlation token")

// ItemKey identifies a data item within a job.
type ItemKey struct {
	JobItemID int64
	Path      string
}

func (k ItemKey) String() string {
	return strconv.FormatInt(k.JobItemID, 10) + keyDelimiter + k.Path
}

// ParseItemKey parses "<job_item_id>][<path>".
func ParseItemKey(raw string) (ItemKey, error) {
	parts := strings.SplitN(raw, keyDelimiter, 2)
	if len(parts) != 2 {
		return ItemKey{}, fmt.Errorf("%w: %q", ErrMalformedToken, raw)
	}
	itemID, err := parseCanonicalID(parts[0])
	if err != nil {
		return ItemKey{}, fmt.Errorf("%w: %q: %v", ErrMalformedToken, raw, err)
	}
	if err := ValidatePath(parts[1]); err != nil {
		return ItemKey{}, fmt.Errorf("%w: %q: %v", ErrMalformedToken, raw, err)
	}
	return ItemKey{JobItemID: itemID, Path: parts[1]}, nil
}

// Token is the correlation value sent as custom_data and echoed back by the
// provider.
type Token struct {
	JobID int64
	Item  ItemKey
}

func NewToken(jobID, jobItemID int64, path string) Token {
	return Token{JobID: jobID, Item: ItemKey{JobItemID: jobItemID, Path: path}}
}

func (t Token) String() string {
	return strconv.FormatInt(t.JobID, 10) + keyDelimiter + t.Item.String()
}

// ParseToken parses "<job_id>][<job_item_id>][<path>". Only the canonical
// encoding is accepted, so ParseToken(s).String() == s for every valid s.
func ParseToken(raw string) (Token, error) {
	parts := strings.SplitN(raw, keyDelimiter, 2)
	if len(parts) != 2 {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformedToken, raw)
	}
	jobID, err := parseCanonicalID(parts[0])
	if err != nil {
		return Token{}, fmt.Errorf("%w: %q: %v", ErrMalformedToken, raw, err)
	}
	item, err := ParseItemKey(parts[1])
	if err != nil {
		return Token{}, err
	}
	return Token{JobID: jobID, Item: item}, nil
}

// ValidatePath rejects data item paths that cannot be carried in a token.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("data item path is empty")
	}
	if strings.Contains(path, keyDelimiter) {
		return fmt.Errorf("data item path %q contains %q", path, keyDelimiter)
	}
	return nil
}

func parseCanonicalID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not a number", raw)
	}
	if id <= 0 || strconv.FormatInt(id, 10) != raw {
		return 0, fmt.Errorf("id %q is not a positive decimal", raw)
	}
	return id, nil
}
