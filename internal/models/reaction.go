package models

// DefaultReactionType is the label stored when a reaction has no explicit type.
// Reactions only exist at the schema level; no handler creates or reads them.
const DefaultReactionType = "resonance"
