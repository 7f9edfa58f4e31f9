package dispatcher

import (
	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/schema"
)

// validateStruct checks data against every schema the handler declares and
// returns the parsed data.
func validateStruct(h apiview.Structured, data map[string]interface{}) (map[string]interface{}, error) {
	schemas := h.Struct()
	if len(schemas) == 0 {
		return data, nil
	}
	return schema.All(schemas...).Validate(data)
}
