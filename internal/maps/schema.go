package maps

import (
	"github.com/invopop/jsonschema"

	"ipg-server/internal/game"
)

// Schema describes the map file format for map authors and tooling.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}

	schema := reflector.Reflect(&game.Map{})
	schema.Title = "Inter Planet Game map"
	schema.Description = "Map format v0.4. Each planet's possession table is indexed by player count minus two; 0 is neutral and n is the n-th player to join."
	return schema
}
