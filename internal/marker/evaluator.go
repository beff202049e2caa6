package marker

import "errors"

// Evaluator decides whether a marker applies, taking into account the active
// extras of the package whose metadata declared it.
type Evaluator struct {
	Env Environment
}

func NewEvaluator(env Environment) Evaluator {
	return Evaluator{Env: env}
}

// Applies evaluates m against the ambient environment. When that fails only
// because "extra" is undefined, m is evaluated once per active extra (or once
// with the empty string when there are none) and applies if any candidate
// matches.
func (e Evaluator) Applies(m *Marker, extras []string) (bool, error) {
	if m == nil {
		return true, nil
	}
	ok, err := m.Evaluate(e.Env)
	if err == nil {
		return ok, nil
	}
	var undef *UndefinedNameError
	if !errors.As(err, &undef) || undef.Name != ExtraName {
		return false, err
	}

	candidates := extras
	if len(candidates) == 0 {
		candidates = []string{""}
	}
	for _, extra := range candidates {
		ok, err := m.Evaluate(e.Env.With(ExtraName, extra))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
