package types

import "github.com/m-mizutani/goerr/v2"

// Platform identifies the external system an integration connection talks to
type Platform string

const (
	PlatformAzureDevOps Platform = "AZURE_DEVOPS"
	PlatformAsana       Platform = "ASANA"
	PlatformConfluence  Platform = "CONFLUENCE"
)

// ErrInvalidPlatform is returned when a platform string is not recognized
var ErrInvalidPlatform = goerr.New("invalid platform")

// AllPlatforms returns all supported platforms
func AllPlatforms() []Platform {
	return []Platform{
		PlatformAzureDevOps,
		PlatformAsana,
		PlatformConfluence,
	}
}

// IsValid checks if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformAzureDevOps,
		PlatformAsana,
		PlatformConfluence:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable platform name used in sync error messages
func (p Platform) DisplayName() string {
	switch p {
	case PlatformAzureDevOps:
		return "Azure DevOps"
	case PlatformAsana:
		return "Asana"
	case PlatformConfluence:
		return "Confluence"
	default:
		return string(p)
	}
}

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform parses a string into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.IsValid() {
		return "", goerr.Wrap(ErrInvalidPlatform, "unknown platform", goerr.V("platform", s))
	}
	return p, nil
}
