package reconcile

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
)

// BreakdownSchema returns the JSON Schema of ChunkBreakdown, the shape each
// breakdown chunk is asked to produce.
func BreakdownSchema() json.RawMessage {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			Anonymous:                  true,
		}
		schema := reflector.Reflect(&ChunkBreakdown{})
		b, err := json.Marshal(schema)
		if err != nil {
			panic(err)
		}
		schemaJSON = b
	})
	return schemaJSON
}
