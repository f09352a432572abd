package pipeline

// DefaultLocation is the zone in which notification dates are written.
const DefaultLocation = "America/Sao_Paulo"

// DefaultModelName is the default Gemini model used by the advisor.
const DefaultModelName = "gemini-2.5-flash"
