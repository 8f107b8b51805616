package domain

// ServiceIdentifierType tells the identity index how to match a service
// identifier.
type ServiceIdentifierType string

const (
	ServiceDomain ServiceIdentifierType = "domain"
	ServiceURL    ServiceIdentifierType = "url"
)

// Identity is one credential identity published to the OS identity index.
type Identity struct {
	ServiceIdentifier string                `json:"service_identifier"`
	ServiceType       ServiceIdentifierType `json:"service_type"`
	Username          string                `json:"username"`
	RecordID          string                `json:"record_id"`
}
