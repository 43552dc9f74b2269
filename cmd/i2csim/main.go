// i2csim runs a multi-client I2C system described by a YAML file.
package main

import "github.com/sarchlab/i2cmux/cmd/i2csim/cmd"

func main() {
	cmd.Execute()
}
