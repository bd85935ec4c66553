package fieldops

import "github.com/xraph/fieldops/id"

// ID is the primary identifier type for all FieldOps entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
