package main

const HelpBanner = `
┬  ┬┬┌─┐┬┬
└┐┌┘││ ┬││
 └┘ ┴└─┘┴┴─┘

Drowsiness and color detection toolkit.
    Version: %s
`

// pipeName is the file name that indicates stdin is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version = "dev"

func main() {
	Execute()
}
