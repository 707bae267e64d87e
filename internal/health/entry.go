package health

// Storage keys of the four persisted collections. No versioning,
// a structurally incompatible stored value is replaced by defaults.
const (
	KeyWeights  = "vitalscale_weights"
	KeyWaters   = "vitalscale_waters"
	KeyAerobics = "vitalscale_aerobics"
	KeyProfile  = "vitalscale_profile"
)

const DefaultHeight = 170

type WeightEntry struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"` // kg
	Date   string  `json:"date"`   // calendar date, YYYY-MM-DD
}

type WaterEntry struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"` // ml
	Date   string `json:"date"`
}

type AerobicEntry struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"` // km
	Duration int     `json:"duration"` // minutes
	Date     string  `json:"date"`
}

type UserProfile struct {
	Height       int      `json:"height"` // cm
	Age          *int     `json:"age,omitempty"`
	TargetWeight *float64 `json:"targetWeight,omitempty"` // kg
	Name         string   `json:"name,omitempty"`
	Photo        string   `json:"photo,omitempty"` // base64 encoded image
}

func DefaultProfile() UserProfile {
	return UserProfile{
		Height: DefaultHeight,
	}
}
