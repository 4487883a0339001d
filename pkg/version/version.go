package version

import "fmt"

// DeployVersion indicates what version of deploy-brew-operator the binary belongs to
var DeployVersion string

// GitCommit indicates which git commit the binary was built from
var GitCommit string

// String returns a pretty string concatenation of DeployVersion and GitCommit
func String() string {
	return fmt.Sprintf("deploy-brew-operator Version: %s\n Git commit: %s\n", DeployVersion, GitCommit)
}
