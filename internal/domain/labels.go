package domain

// LabelNamespace is the prefix every abwart label carries (spec.md §6).
const LabelNamespace = "abwart"

// EnableLabel is the literal label key gating discovery (spec.md §4.6).
const EnableLabel = LabelNamespace + ".enable"
