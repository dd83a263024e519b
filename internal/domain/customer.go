package domain

type CustomerInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
}

type Urgency string

const (
	UrgencyStandard  Urgency = "STANDARD"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyEmergency Urgency = "EMERGENCY"
)

func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyStandard, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// Condition is the customer-reported state of the device at drop-off.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

func ValidCondition(c Condition) bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}
