package cel

// AcceptExpressionExamples are ready-made values for ingestion.accept_expression.
var AcceptExpressionExamples = map[string]string{
	"accept_all":          `true`,
	"has_display_name":    `has(fields.display_name) && fields.display_name != ""`,
	"skip_test_leads":     `!lead_id.startsWith("test-")`,
	"status_in":           `has(fields.status_label) && fields.status_label in ["Potential", "Qualified"]`,
	"known_subscription":  `has(payload.subscription_id) && payload.subscription_id != ""`,
	"company_domain_only": `!has(fields.email) || !fields.email.endsWith("@gmail.com")`,
}
