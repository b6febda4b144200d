/*
Package vigil is a drowsiness and color detection library. It estimates eye openness
from face and eye detections, debounces the per-frame eye state into escalating alerts,
and classifies image pixels into a palette of named colors.

The package provides a command line interface with subcommands for camera monitoring,
face-mesh landmark replay, color classification and an HTTP service.
To check the supported commands type:

	$ vigil --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"

		"github.com/esimov/vigil"
	)

	func main() {
		m, err := vigil.NewMonitor(vigil.DefaultMonitorConfig(), vigil.Discard)
		if err != nil {
			fmt.Printf("Error creating the monitor: %s", err.Error())
			return
		}

		for _, reading := range readings {
			v := m.Observe(reading)
			fmt.Println(v.Alert)
		}
	}
*/
package vigil
