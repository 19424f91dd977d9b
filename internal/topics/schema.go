package topics

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/datakettle/dp-composer/internal/domain"
)

var (
	schemaOnce sync.Once
	schemaJSON string
)

// ResultSchema returns the JSON schema of the agent response contract,
// reflected from the Go type so the prompt contract and the parser cannot
// drift. Embedded verbatim into every topic's system prompt.
func ResultSchema() string {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}

		schema := reflector.Reflect(&domain.AgentResult{})
		schema.Title = "AgentResult"
		schema.Description = "Structured reply returned for every interview turn"

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			panic("topics: reflect agent result schema: " + err.Error())
		}
		schemaJSON = string(data)
	})
	return schemaJSON
}
