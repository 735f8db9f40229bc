// version.go
package version

import "fmt"

const (
	// UserAgentBase is the product token sent in the User-Agent header.
	UserAgentBase = "go-api-auth-client"
	// SDKVersion is the current version of the client.
	SDKVersion = "0.1.0"
)

// GetUserAgentHeader returns "<UserAgentBase>/<SDKVersion>".
func GetUserAgentHeader() string {
	return fmt.Sprintf("%s/%s", UserAgentBase, SDKVersion)
}
