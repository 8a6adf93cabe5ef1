package health

// Rule maps one dependency in one state to an overall status.
type Rule struct {
	Service string
	When    Status
	Then    Overall
}

// DefaultRules is evaluated top to bottom; the first match wins and no match means ok.
var DefaultRules = []Rule{
	{ServiceStorage, StatusDown, OverallDown},
	{ServiceEmbedder, StatusDown, OverallDown},
	{ServiceEmbedder, StatusInitializing, OverallDegraded},
	{ServiceTelemetry, StatusDown, OverallDegraded},
	{ServiceStorage, StatusInitializing, OverallDegraded},
	{ServiceTelemetry, StatusInitializing, OverallDegraded},
}

// Evaluate applies rules to services. Services absent from the map match no rule.
func Evaluate(rules []Rule, services map[string]ServiceStatus) Overall {
	for _, r := range rules {
		if st, ok := services[r.Service]; ok && st.Status == r.When {
			return r.Then
		}
	}
	return OverallOK
}
