package utilities

// Version is git commit or release tag from which this binary was built.
var Version string

// UserAgent is the product token sent to third-party services.
func UserAgent(product string) string {
	if Version == "" {
		return product + "/dev"
	}
	return product + "/" + Version
}
