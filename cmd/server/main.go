// Command server runs the fan-share exchange core.
package main

func main() {
	Execute()
}
