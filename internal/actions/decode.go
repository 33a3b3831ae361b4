// Package actions is the closed set of concrete Action implementations
// named in the action registry: clean_html, parse_html, save_note,
// the fan-out schedulers, completion-check sentinels, and the per-line
// workers' actions.
package actions

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decode unmarshals raw JSON (a job's initial []byte payload) into dst and
// applies struct-tag validation. Used by each pipeline's first action,
// which is the only stage that ever sees raw bytes — every later stage
// receives the already-decoded, already-enriched struct from its
// predecessor.
func decode(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return validate.Struct(dst)
}

// asBytes asserts that data is the raw []byte a worker hands the first
// action in a pipeline.
func asBytes(data any) ([]byte, bool) {
	b, ok := data.([]byte)
	return b, ok
}

// encode marshals a job payload for a queue.Add call. Schedulers build the
// next pipeline's initial []byte payload this way.
func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
