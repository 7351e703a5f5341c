package state

// Tag identifies a country, e.g. "SWE". Provinces reference their owner by
// Tag and resolve it through WorldState.Countries; the model never holds
// cross-entity pointers so snapshots stay trivially cloneable.
type Tag string

type ProvinceID uint32

type ArmyID uint32

type FleetID uint32

type WarID uint32
