// Command imagefinder finds, taps and long-presses UI elements by reference image.
package main

import "github.com/devicelab-dev/imagefinder/pkg/cli"

func main() {
	cli.Execute()
}
