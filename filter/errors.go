package filter

import "fmt"

var (
	ErrEmpty        = fmt.Errorf("filter: empty string")
	ErrTerm         = fmt.Errorf("filter: expected a valid term")
	ErrIndex        = fmt.Errorf("filter: invalid index")
	ErrOpValue      = fmt.Errorf("filter: value expected")
	ErrConjunction  = fmt.Errorf("filter: expected 'and'")
	ErrInterval     = fmt.Errorf("filter: interval begin_time > end_time")
	ErrUnknownKind  = fmt.Errorf("filter: unknown filter kind")
	ErrInvalidValue = fmt.Errorf("filter: invalid value")
)
