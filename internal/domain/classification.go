package domain

// TicketCategory is the fixed taxonomy used for AI classification.
type TicketCategory string

const (
	CategoryDataGeneration       TicketCategory = "DATA_GENERATION"
	CategoryBackendInvestigation TicketCategory = "BACKEND_INVESTIGATION"
	CategoryManualAdmin          TicketCategory = "MANUAL_ADMIN"
	CategoryContentManagement    TicketCategory = "CONTENT_MANAGEMENT"
	CategoryConfiguration        TicketCategory = "CONFIGURATION"
	CategorySimpleResponse       TicketCategory = "SIMPLE_RESPONSE"
	CategoryEscalationNeeded     TicketCategory = "ESCALATION_NEEDED"
)

// TicketCategories lists every category with a short description, in prompt order.
var TicketCategories = []struct {
	Category    TicketCategory
	Description string
}{
	{CategoryDataGeneration, "Reports, analytics, data exports"},
	{CategoryBackendInvestigation, "System bugs, technical debugging"},
	{CategoryManualAdmin, "User/account management"},
	{CategoryContentManagement, "Course creation, content publishing"},
	{CategoryConfiguration, "System settings, integrations"},
	{CategorySimpleResponse, "How-to questions, information requests"},
	{CategoryEscalationNeeded, "Complex issues requiring human judgment"},
}

// Valid reports whether c is a member of the taxonomy.
func (c TicketCategory) Valid() bool {
	for _, entry := range TicketCategories {
		if entry.Category == c {
			return true
		}
	}
	return false
}

// Complexity is the model's effort estimate.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// TicketClassification is the categorisation of a single ticket.
type TicketClassification struct {
	PrimaryCategory     TicketCategory   `json:"primary_category"`
	SecondaryCategories []TicketCategory `json:"secondary_categories"`
	Confidence          float64          `json:"confidence"`
	Reasoning           string           `json:"reasoning"`
	RequiredInfo        []string         `json:"required_info"`
	EstimatedComplexity Complexity       `json:"estimated_complexity"`
	AutoResolvable      bool             `json:"auto_resolvable"`
}

// FallbackClassification is returned whenever model output cannot be used.
func FallbackClassification(reasoning string) TicketClassification {
	return TicketClassification{
		PrimaryCategory:     CategorySimpleResponse,
		SecondaryCategories: []TicketCategory{},
		Confidence:          0.5,
		Reasoning:           reasoning,
		RequiredInfo:        []string{},
		EstimatedComplexity: ComplexityMedium,
		AutoResolvable:      false,
	}
}
