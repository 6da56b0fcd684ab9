package gatekeeper

// Environment identifies the deployment environment the application is running in. The
// only behavioural distinction made here is between local development and everything
// else: local deployments speak plain HTTP to the identity service and set cookies
// without the Secure attribute.
type Environment string

const (
	EnvLocal   Environment = "local"
	EnvTest    Environment = "test"
	EnvStaging Environment = "staging"
	EnvLive    Environment = "live"
)

// IsLocal reports whether this is a developer machine.
func (e Environment) IsLocal() bool {
	return e == EnvLocal
}

func (e Environment) scheme() string {
	if e.IsLocal() {
		return "http"
	}
	return "https"
}
