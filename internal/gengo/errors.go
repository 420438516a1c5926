package gengo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error is returned for transport failures and provider-reported errors.
type Error struct {
	Op      string
	Method  string
	URL     string
	Status  int
	Code    int64
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Code != 0:
		return fmt.Sprintf("gengo %s: service returned error #%d %s", e.Op, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("gengo %s: unable to connect to Gengo service at %s: %v", e.Op, e.URL, e.Err)
	case e.Message != "":
		return fmt.Sprintf("gengo %s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("gengo %s: unexpected HTTP status %d at %s", e.Op, e.Status, e.URL)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsProviderError reports whether err carries a provider-assigned error code.
func IsProviderError(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Code != 0
}

// AsError extracts the typed error from err.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

type providerErr struct {
	Code FlexInt `json:"code"`
	Msg  string  `json:"msg"`
}

// parseProviderErr handles both the single error object and the keyed map of
// error lists. Only the first error of a map is reported; they are usually
// identical.
func parseProviderErr(raw json.RawMessage) (int64, string) {
	if len(raw) == 0 {
		return 0, ""
	}

	var single providerErr
	if err := json.Unmarshal(raw, &single); err == nil && (single.Code != 0 || strings.TrimSpace(single.Msg) != "") {
		return int64(single.Code), strings.TrimSpace(single.Msg)
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil || len(keyed) == 0 {
		return 0, ""
	}
	keys := make([]string, 0, len(keyed))
	for key := range keyed {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := keyed[key]
		var list []providerErr
		if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
			return int64(list[0].Code), strings.TrimSpace(list[0].Msg)
		}
		var one providerErr
		if err := json.Unmarshal(value, &one); err == nil && (one.Code != 0 || one.Msg != "") {
			return int64(one.Code), strings.TrimSpace(one.Msg)
		}
	}
	return 0, ""
}
