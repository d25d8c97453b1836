package engine

// Action is a tagged instruction forwarded to the engine's plan. The
// task manager never inspects action contents beyond construction.
type Action struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Known action names the engine understands.
const (
	ActionDetectLocation  = "detect_location"
	ActionFindBestWebsite = "find_best_website"
	ActionSearchEcommerce = "search_ecommerce"
)

// DetectLocation builds the geolocation detection action.
func DetectLocation() Action {
	return Action{Name: ActionDetectLocation}
}

// FindBestWebsite builds the site-selection action.
func FindBestWebsite(purpose, category string) Action {
	return Action{
		Name: ActionFindBestWebsite,
		Params: map[string]interface{}{
			"purpose":  purpose,
			"category": category,
		},
	}
}

// Custom builds an engine-defined action the server only forwards.
func Custom(name string, params map[string]interface{}) Action {
	return Action{Name: name, Params: params}
}
