package theme

import "fmt"

// Version is the released version of the robot.
const Version = "3.1.0"

// Banner returns the CLI banner with version.
func Banner() string {
	return fmt.Sprintf("Karlsruher Twitter Robot v%s", Version)
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Println(Banner())
}
