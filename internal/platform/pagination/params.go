package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidParam marks a malformed page or limit value.
var ErrInvalidParam = errors.New("pagination: invalid parameter")

// Params carries the raw page and limit values of a list request. Zero means the caller omitted
// the value and the service default applies.
type Params struct {
	Page  int
	Limit int
}

// FromRequest parses page and limit from the request query string.
func FromRequest(r *http.Request) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query())
}

// Parse reads page and limit from values. Clamping is left to the service layer.
func Parse(values url.Values) (Params, error) {
	var params Params
	var err error
	if params.Page, err = Int(values, "page"); err != nil {
		return Params{}, err
	}
	if params.Limit, err = Int(values, "limit"); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Int parses an optional integer query parameter. A missing value yields zero.
func Int(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Name: name}
	}
	return value, nil
}

// ParamError reports which parameter failed to parse.
type ParamError struct {
	Name string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s must be an integer", e.Name)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParam
}
