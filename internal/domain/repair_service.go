package domain

type RepairService struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	Category              string     `json:"category"`
	BasePrice             float64    `json:"base_price"`
	EstimatedMinutes      int        `json:"estimated_minutes"`
	Difficulty            Difficulty `json:"difficulty"`
	WarrantyDays          int        `json:"warranty_days"`
	CompatibleDeviceTypes []string   `json:"compatible_device_types"`
}

// CompatibleWith reports whether the service applies to the given device
// category.
func (s RepairService) CompatibleWith(category string) bool {
	for _, t := range s.CompatibleDeviceTypes {
		if t == category {
			return true
		}
	}
	return false
}

// ServiceSnapshot is the price/duration capture stored on a session when a
// service is selected. Later catalog edits must not change an in-flight quote.
type ServiceSnapshot struct {
	ServiceID        string  `json:"service_id"`
	Name             string  `json:"name"`
	BasePrice        float64 `json:"base_price"`
	EffectivePrice   float64 `json:"effective_price"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	WarrantyDays     int     `json:"warranty_days"`
}

// Quote is the deterministic pricing result for an exact set of snapshots.
type Quote struct {
	Total            float64 `json:"total"`
	EstimatedMinutes int     `json:"estimated_minutes"`
}
