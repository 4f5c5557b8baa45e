//go:build !js_eval

package cascade

// NewJSEvaluator returns nil in builds without the js_eval tag.
// NewEvaluator reports ErrEngineUnavailable in that case.
func NewJSEvaluator(...EngineOption) Evaluator {
	return nil
}
