package roll

import (
	"errors"

	"github.com/chosenoffset/roll/pkg/roll/parser"
)

var (
	// ErrInvalidPool reports a negative die count or a non-positive die size.
	ErrInvalidPool = errors.New("invalid dice pool")

	// ErrNonTerminatingExplosion reports a repeating explosion whose
	// threshold every die meets, so the reroll loop could never end.
	ErrNonTerminatingExplosion = errors.New("explosion can never terminate")

	// ErrLimitExceeded is matched by every *ResourceLimitError.
	ErrLimitExceeded = errors.New("resource limit exceeded")

	ErrNilExpression = errors.New("nil expression")

	// ErrInvalidModifierArgument is the parser's sentinel, re-exported for
	// trees built by hand with unusable modifier arguments.
	ErrInvalidModifierArgument = parser.ErrInvalidModifierArgument
)
