package recurrence

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/tally/internal/model"
)

//go:embed pattern.cue
var patternSchema string

// patternValidator owns the compiled #Pattern definition. A cue.Context is
// not safe for concurrent use, so every unification holds mu.
type patternValidator struct {
	once sync.Once
	mu   sync.Mutex
	ctx  *cue.Context
	def  cue.Value
	err  error
}

var validator patternValidator

func (v *patternValidator) init() {
	v.ctx = cuecontext.New()
	schema := v.ctx.CompileString(patternSchema, cue.Filename("pattern.cue"))
	if err := schema.Err(); err != nil {
		v.err = fmt.Errorf("compile pattern schema: %w", err)
		return
	}
	v.def = schema.LookupPath(cue.ParsePath("#Pattern"))
	if err := v.def.Err(); err != nil {
		v.err = fmt.Errorf("lookup #Pattern: %w", err)
	}
}

// ValidatePattern checks p against the #Pattern schema. A nil pattern, an
// unknown type or a non-positive interval yields a *PatternError.
func ValidatePattern(p *model.RecurrencePattern) error {
	if p == nil {
		return &PatternError{Code: ErrPatternMissing, Message: "recurring source has no pattern"}
	}

	validator.once.Do(validator.init)
	if validator.err != nil {
		return validator.err
	}

	doc := map[string]any{
		"type":     string(p.Type),
		"interval": p.Interval,
	}
	if p.HasEnd() {
		doc["endDate"] = p.EndDate.String()
	}

	validator.mu.Lock()
	defer validator.mu.Unlock()

	val := validator.ctx.Encode(doc)
	if err := validator.def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &PatternError{
			Code:    ErrPatternSchema,
			Message: firstCUEError(err),
			Pattern: *p,
		}
	}
	return nil
}

// firstCUEError returns the message of the first error in a CUE error list.
func firstCUEError(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
